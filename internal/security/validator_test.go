package security

import "testing"

func bashCtx() Context {
	return Context{Shell: "bash", WorkbranchRoot: "/work/main"}
}

func psCtx() Context {
	return Context{Shell: "powershell", WorkbranchRoot: `C:\work\main`}
}

func TestValidate_InvalidInput(t *testing.T) {
	v := NewValidator()
	for _, cmd := range []string{"", "   ", "\t\n"} {
		verdict := v.Validate(cmd, bashCtx())
		if verdict.Allowed {
			t.Errorf("Validate(%q) allowed, want rejected", cmd)
		}
		if verdict.Reason != ReasonInvalidInput {
			t.Errorf("Validate(%q) reason = %s, want %s", cmd, verdict.Reason, ReasonInvalidInput)
		}
	}
}

func TestValidate_DangerousPatterns(t *testing.T) {
	v := NewValidator()
	dangerous := []string{
		"rm -rf /",
		"rm -fr .",
		"cat ../../etc/passwd",
		"Remove-Item C:\\ -Recurse -Force",
		"del /s /q C:\\Windows",
		"rmdir /s build",
		"format c:",
		"mkfs.ext4 /dev/sda1",
		"dd if=/dev/zero of=/dev/sda",
		"shutdown -h now",
		"sudo reboot",
		"Restart-Computer",
		"echo hi; rm -rf /",
		"ls && shutdown now",
		"true | dd if=/dev/sda",
	}
	// Dangerous commands are rejected regardless of shell or workbranch.
	for _, vctx := range []Context{bashCtx(), psCtx(), {Shell: "cmd"}} {
		for _, cmd := range dangerous {
			verdict := v.Validate(cmd, vctx)
			if verdict.Allowed {
				t.Errorf("Validate(%q, shell=%s) allowed, want rejected", cmd, vctx.Shell)
				continue
			}
			if verdict.Reason != ReasonDangerousPattern {
				t.Errorf("Validate(%q, shell=%s) reason = %s, want %s", cmd, vctx.Shell, verdict.Reason, ReasonDangerousPattern)
			}
			if verdict.Guidance == "" {
				t.Errorf("Validate(%q) has no guidance", cmd)
			}
		}
	}
}

func TestValidate_SafeWhitelist(t *testing.T) {
	v := NewValidator()
	safe := []string{
		"npm run build",
		"npm install",
		"pnpm test",
		"yarn start",
		"npm run build:prod",
		"git status",
		"git commit -m 'wip'",
		"git log --oneline",
		"ps aux",
		"tasklist",
		"Get-Process node",
	}
	for _, cmd := range safe {
		verdict := v.Validate(cmd, bashCtx())
		if !verdict.Allowed {
			t.Errorf("Validate(%q) rejected (%s), want whitelisted", cmd, verdict.Reason)
			continue
		}
		if verdict.Reason != ReasonWhitelisted {
			t.Errorf("Validate(%q) reason = %s, want %s", cmd, verdict.Reason, ReasonWhitelisted)
		}
	}
}

// Whitelisted commands short-circuit: metacharacters that would trip the
// PowerShell syntax gate do not matter once the whitelist matches.
func TestValidate_WhitelistShortCircuitsSyntaxGate(t *testing.T) {
	v := NewValidator()
	verdict := v.Validate("git status | Select-String modified", psCtx())
	if !verdict.Allowed || verdict.Reason != ReasonWhitelisted {
		t.Errorf("got %+v, want whitelist allow", verdict)
	}
}

func TestValidate_PowerShellSyntaxGate(t *testing.T) {
	v := NewValidator()

	allowed := []string{
		"Get-Process node | Where-Object {$_.CPU -gt 100}",
		"Get-Process node | Stop-Process",
		"Get-Process chrome | Stop-Process -Force",
		"if (Get-Process node -ErrorAction SilentlyContinue) { Stop-Process -Name node }",
	}
	for _, cmd := range allowed {
		verdict := v.Validate(cmd, psCtx())
		if !verdict.Allowed {
			t.Errorf("Validate(%q) rejected (%s), want allowed", cmd, verdict.Reason)
		}
	}

	rejected := []string{
		"Invoke-Expression $env:PAYLOAD",
		"Get-Content secrets.txt | Out-File leak.txt",
		"$x = Get-Credential",
	}
	for _, cmd := range rejected {
		verdict := v.Validate(cmd, psCtx())
		if verdict.Allowed {
			t.Errorf("Validate(%q) allowed, want %s", cmd, ReasonPowerShellSyntax)
			continue
		}
		if verdict.Reason != ReasonPowerShellSyntax {
			t.Errorf("Validate(%q) reason = %s, want %s", cmd, verdict.Reason, ReasonPowerShellSyntax)
		}
	}
}

// The syntax gate only applies to PowerShell sessions. For bash the same
// text falls through to the base allowlist instead.
func TestValidate_SyntaxGateOnlyForPowerShell(t *testing.T) {
	v := NewValidator()
	verdict := v.Validate("echo $HOME", bashCtx())
	if verdict.Reason == ReasonPowerShellSyntax {
		t.Errorf("bash command hit the PowerShell gate: %+v", verdict)
	}
	if verdict.Reason != ReasonNotWhitelisted {
		t.Errorf("reason = %s, want %s", verdict.Reason, ReasonNotWhitelisted)
	}
}

func TestValidate_BaseCommandAllowlist(t *testing.T) {
	tests := []struct {
		cmd     string
		allowed bool
	}{
		{"cd src", true},
		{"node server.js", true},
		{"code .", true},
		{"NPM view react version", true}, // case-insensitive token
		{"git.exe fancy-subcommand", true},
		{"node.exe --version", true},
		{"curl http://example.com", false},
		{"python script.py", false},
		{"bash -c 'anything'", false},
	}
	v := NewValidator()
	for _, tt := range tests {
		verdict := v.Validate(tt.cmd, bashCtx())
		if verdict.Allowed != tt.allowed {
			t.Errorf("Validate(%q) allowed = %v, want %v (reason %s)", tt.cmd, verdict.Allowed, tt.allowed, verdict.Reason)
		}
		if !tt.allowed && verdict.Reason != ReasonNotWhitelisted {
			t.Errorf("Validate(%q) reason = %s, want %s", tt.cmd, verdict.Reason, ReasonNotWhitelisted)
		}
	}
}

func TestValidate_GuidanceDistinctPerReason(t *testing.T) {
	seen := map[string]ReasonCode{}
	for reason, text := range guidance {
		if text == "" {
			t.Errorf("reason %s has empty guidance", reason)
		}
		if prev, ok := seen[text]; ok {
			t.Errorf("reasons %s and %s share guidance %q", prev, reason, text)
		}
		seen[text] = reason
	}
}

func TestBaseCommand(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"npm run build", "npm"},
		{"Git.EXE status", "git"},
		{"node.cmd x", "node"},
		{"setup.bat", "setup"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := baseCommand(tt.in); got != tt.want {
			t.Errorf("baseCommand(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
