package terminal

import (
	"fmt"
	"log"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"

	"github.com/creack/pty"
)

// outputChunkSize is the PTY read buffer size.
const outputChunkSize = 32 * 1024

// outputQueueDepth bounds the chunks buffered between the PTY read loop
// and the session output pump.
const outputQueueDepth = 64

// ExitStatus describes how a shell process ended.
type ExitStatus struct {
	// Code is the process exit code; -1 when it could not be determined.
	Code int
	// Crashed is true when the process ended without a clean exit
	// (killed, signaled, or a non-zero exit nobody asked for).
	Crashed bool
}

// SpawnError reports a failure to start a shell process.
type SpawnError struct {
	Shell Shell
	Cwd   string
	Err   error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("spawn %s in %s: %v", e.Shell, e.Cwd, e.Err)
}

func (e *SpawnError) Unwrap() error { return e.Err }

// Handle is the session manager's view of one live shell process.
type Handle interface {
	// Write forwards raw bytes to the process input. After exit it is a
	// no-op with a logged warning, never an error.
	Write(p []byte)
	// Resize adjusts the PTY dimensions without disturbing output.
	Resize(cols, rows uint16) error
	// Kill terminates the process. Idempotent.
	Kill()
	// Output delivers raw output chunks in order; closed when the
	// process stops producing.
	Output() <-chan []byte
	// Exit delivers exactly one ExitStatus, then is closed.
	Exit() <-chan ExitStatus
}

// Runner starts shell processes. The PTY-backed implementation is
// PtyRunner; tests substitute a fake.
type Runner interface {
	Start(shell Shell, cwd string, cols, rows uint16) (Handle, error)
}

// PtyRunner starts real shell processes on a pseudo-terminal.
type PtyRunner struct{}

// Start spawns the shell in cwd with the given initial dimensions.
// A missing shell binary or working directory yields a *SpawnError.
func (PtyRunner) Start(shell Shell, cwd string, cols, rows uint16) (Handle, error) {
	bin, err := shell.Binary()
	if err != nil {
		return nil, &SpawnError{Shell: shell, Cwd: cwd, Err: err}
	}
	info, err := os.Stat(cwd)
	if err != nil {
		return nil, &SpawnError{Shell: shell, Cwd: cwd, Err: fmt.Errorf("working directory: %w", err)}
	}
	if !info.IsDir() {
		return nil, &SpawnError{Shell: shell, Cwd: cwd, Err: fmt.Errorf("working directory %s is not a directory", cwd)}
	}

	cmd := exec.Command(bin)
	cmd.Dir = cwd
	cmd.Env = append(os.Environ(), "TERM=xterm-256color")

	ptmx, err := pty.StartWithSize(cmd, &pty.Winsize{Cols: cols, Rows: rows})
	if err != nil {
		return nil, &SpawnError{Shell: shell, Cwd: cwd, Err: err}
	}

	p := &Process{
		cmd:    cmd,
		ptmx:   ptmx,
		output: make(chan []byte, outputQueueDepth),
		exit:   make(chan ExitStatus, 1),
	}
	go p.readLoop()
	return p, nil
}

// Process is a shell process on a PTY. Exactly one Process exists per
// session and it is destroyed exactly once, on session destroy.
type Process struct {
	cmd  *exec.Cmd
	ptmx *os.File

	output chan []byte
	exit   chan ExitStatus

	exited   atomic.Bool
	killed   atomic.Bool
	killOnce sync.Once
}

// readLoop pumps PTY output into the output channel, then waits for the
// process and publishes its exit status.
func (p *Process) readLoop() {
	buf := make([]byte, outputChunkSize)
	for {
		n, err := p.ptmx.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			p.output <- chunk
		}
		if err != nil {
			break
		}
	}
	close(p.output)

	err := p.cmd.Wait()
	p.exited.Store(true)

	status := ExitStatus{Code: p.cmd.ProcessState.ExitCode()}
	if p.killed.Load() {
		// Deliberate kill is a clean end regardless of the exit code.
		status.Crashed = false
	} else if err != nil || status.Code != 0 {
		status.Crashed = true
	}
	p.exit <- status
	close(p.exit)
	p.ptmx.Close()
}

func (p *Process) Write(data []byte) {
	if p.exited.Load() {
		log.Printf("[process] write of %d bytes after exit, dropped", len(data))
		return
	}
	if _, err := p.ptmx.Write(data); err != nil {
		log.Printf("[process] write failed: %v", err)
	}
}

func (p *Process) Resize(cols, rows uint16) error {
	return pty.Setsize(p.ptmx, &pty.Winsize{Cols: cols, Rows: rows})
}

// Kill terminates the process. Safe to call any number of times and
// concurrently with Write.
func (p *Process) Kill() {
	p.killOnce.Do(func() {
		p.killed.Store(true)
		if p.cmd.Process != nil {
			p.cmd.Process.Kill()
		}
		// Closing the PTY unblocks the read loop.
		p.ptmx.Close()
	})
}

func (p *Process) Output() <-chan []byte   { return p.output }
func (p *Process) Exit() <-chan ExitStatus { return p.exit }
