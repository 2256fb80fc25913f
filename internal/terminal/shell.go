// Package terminal owns the native shell process behind each session:
// spawning it on a PTY, streaming its output, resizing and killing it.
package terminal

import (
	"fmt"
	"os/exec"
)

// Shell identifies which native shell a session runs.
type Shell string

const (
	ShellBash       Shell = "bash"
	ShellPowerShell Shell = "powershell"
	ShellCmd        Shell = "cmd"
)

// shellBinaries maps each shell to its candidate binaries, tried in order.
var shellBinaries = map[Shell][]string{
	ShellBash:       {"bash", "sh"},
	ShellPowerShell: {"pwsh", "powershell"},
	ShellCmd:        {"cmd.exe", "cmd"},
}

// ParseShell converts a wire-level shell name to a Shell.
func ParseShell(s string) (Shell, error) {
	switch Shell(s) {
	case ShellBash, ShellPowerShell, ShellCmd:
		return Shell(s), nil
	case "":
		return ShellBash, nil
	}
	return "", fmt.Errorf("unknown shell %q (want bash, powershell or cmd)", s)
}

// Binary resolves the shell to an executable on PATH.
func (s Shell) Binary() (string, error) {
	candidates, ok := shellBinaries[s]
	if !ok {
		return "", fmt.Errorf("unknown shell %q", string(s))
	}
	for _, name := range candidates {
		if path, err := exec.LookPath(name); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("no binary found for shell %q (tried %v)", string(s), candidates)
}

func (s Shell) String() string { return string(s) }
