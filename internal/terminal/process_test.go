package terminal

import (
	"bytes"
	"errors"
	"os/exec"
	"testing"
	"time"
)

func TestParseShell(t *testing.T) {
	tests := []struct {
		in      string
		want    Shell
		wantErr bool
	}{
		{"bash", ShellBash, false},
		{"powershell", ShellPowerShell, false},
		{"cmd", ShellCmd, false},
		{"", ShellBash, false}, // default
		{"fish", "", true},
		{"BASH", "", true},
	}
	for _, tt := range tests {
		got, err := ParseShell(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseShell(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if err == nil && got != tt.want {
			t.Errorf("ParseShell(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestBinary_UnknownShell(t *testing.T) {
	if _, err := Shell("tcsh").Binary(); err == nil {
		t.Fatal("expected error for unknown shell")
	}
}

func requireBash(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("bash"); err != nil {
		t.Skip("bash not available")
	}
}

func TestStart_MissingWorkingDirectory(t *testing.T) {
	requireBash(t)
	_, err := PtyRunner{}.Start(ShellBash, "/definitely/not/a/dir", 80, 24)
	if err == nil {
		t.Fatal("expected spawn error")
	}
	var spawnErr *SpawnError
	if !errors.As(err, &spawnErr) {
		t.Fatalf("error type = %T, want *SpawnError", err)
	}
	if spawnErr.Shell != ShellBash {
		t.Errorf("SpawnError.Shell = %q, want bash", spawnErr.Shell)
	}
}

func TestProcess_OutputAndExit(t *testing.T) {
	requireBash(t)
	h, err := PtyRunner{}.Start(ShellBash, t.TempDir(), 80, 24)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer h.Kill()

	h.Write([]byte("echo termbridge-ready && exit 0\n"))

	var out bytes.Buffer
	deadline := time.After(5 * time.Second)
	for {
		select {
		case chunk, ok := <-h.Output():
			if !ok {
				goto done
			}
			out.Write(chunk)
		case <-deadline:
			t.Fatalf("timeout; output so far: %q", out.String())
		}
	}
done:
	if !bytes.Contains(out.Bytes(), []byte("termbridge-ready")) {
		t.Errorf("output missing marker: %q", out.String())
	}

	select {
	case status := <-h.Exit():
		if status.Crashed {
			t.Errorf("clean exit reported as crash: %+v", status)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for exit status")
	}
}

func TestProcess_KillIsIdempotent(t *testing.T) {
	requireBash(t)
	h, err := PtyRunner{}.Start(ShellBash, t.TempDir(), 80, 24)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	h.Kill()
	h.Kill() // second call must not panic or error

	// Drain output so the read loop can finish.
	for range h.Output() {
	}
	select {
	case <-h.Exit():
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for exit after kill")
	}

	// Write after exit is a logged no-op.
	h.Write([]byte("ignored\n"))
}

func TestProcess_Resize(t *testing.T) {
	requireBash(t)
	h, err := PtyRunner{}.Start(ShellBash, t.TempDir(), 80, 24)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer h.Kill()

	if err := h.Resize(120, 40); err != nil {
		t.Errorf("Resize: %v", err)
	}
}
