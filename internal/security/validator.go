// Package security classifies shell commands before they reach a live
// process. It is the single source of truth for the dangerous-pattern,
// safe-whitelist, and base-command rules, shared by every caller that
// forwards input to a terminal session.
package security

import (
	"fmt"
	"regexp"
	"strings"
)

// ReasonCode identifies why a command was allowed or rejected.
type ReasonCode string

const (
	ReasonOK               ReasonCode = "ok"
	ReasonWhitelisted      ReasonCode = "whitelisted"
	ReasonInvalidInput     ReasonCode = "invalid-input"
	ReasonDangerousPattern ReasonCode = "dangerous-pattern"
	ReasonPowerShellSyntax ReasonCode = "powershell-syntax"
	ReasonNotWhitelisted   ReasonCode = "not-whitelisted"
)

// Verdict is the result of validating a single command. It is never
// stored beyond the request that produced it.
type Verdict struct {
	Allowed  bool       `json:"allowed"`
	Reason   ReasonCode `json:"reasonCode"`
	Guidance string     `json:"guidance,omitempty"`
}

// Context carries the session attributes validation depends on.
type Context struct {
	// Shell is the wire-level shell name: "bash", "powershell" or "cmd".
	Shell string
	// WorkbranchRoot is the directory the session is scoped to.
	WorkbranchRoot string
}

// guidance maps each rejection reason to the text returned to callers.
var guidance = map[ReasonCode]string{
	ReasonInvalidInput:     "command must be a non-empty string",
	ReasonDangerousPattern: "review command for destructive operations",
	ReasonPowerShellSyntax: "only simple process query and termination pipelines are permitted",
	ReasonNotWhitelisted:   "command is not in the approved command list; run it from a trusted terminal instead",
}

// dangerousPatterns match commands that must never reach a shell,
// including the same commands smuggled in behind ; | or &&.
var dangerousPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\.\.[\\/]`),                                             // path traversal
	regexp.MustCompile(`(?i)\brm\s+(-\w*r\w*f|-\w*f\w*r)\b`),                    // recursive force delete
	regexp.MustCompile(`(?i)\brm\s+(-\w+\s+)*[\\/]\s*$`),                        // delete of filesystem root
	regexp.MustCompile(`(?i)\bremove-item\b.*\s-recurse\b.*\s-force\b`),         // PowerShell recursive delete
	regexp.MustCompile(`(?i)\bdel\s+/[sq]\b`),                                   // cmd recursive/quiet delete
	regexp.MustCompile(`(?i)\brmdir\s+/s\b`),                                    // cmd tree delete
	regexp.MustCompile(`(?i)\bformat\s+[a-z]:`),                                 // drive format
	regexp.MustCompile(`(?i)\bmkfs(\.\w+)?\b`),                                  // filesystem creation
	regexp.MustCompile(`(?i)\bdd\s+if=`),                                        // raw device write
	regexp.MustCompile(`(?i)\b(shutdown|reboot|halt|poweroff)\b`),               // system shutdown
	regexp.MustCompile(`(?i)\b(restart|stop)-computer\b`),                       // PowerShell shutdown
	regexp.MustCompile(`(?i)[;&|]\s*(rm|del|rmdir|format|mkfs|dd|shutdown|reboot|halt)\b`), // chained into the above
}

// safePatterns short-circuit validation: a match is allowed immediately,
// even when the command carries characters the later stages would reject.
var safePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^(npm|pnpm|yarn)\s+(run\s+[\w:.-]+|install|ci|test|start|build|audit)\b`),
	regexp.MustCompile(`(?i)^git\s+(status|log|diff|add|commit|push|pull|fetch|checkout|switch|branch|stash|merge|rebase|remote)\b`),
	regexp.MustCompile(`(?i)^(ps|tasklist)\b`),
	regexp.MustCompile(`(?i)^get-process(\s+[\w.*-]+)?\s*$`),
}

// powershellIdioms are the only extended-syntax forms accepted when the
// session shell is PowerShell. Everything else using pipes or variable
// expansion is rejected.
var powershellIdioms = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^get-process(\s+[\w.*-]+)?\s*\|\s*where-object\s+[^;&]+$`),
	regexp.MustCompile(`(?i)^get-process\s+[\w.*-]+\s*\|\s*stop-process(\s+-force)?\s*$`),
	regexp.MustCompile(`(?i)^if\s*\(\s*get-process\s+[^)]+\)\s*\{\s*stop-process\s+[^}]+\}\s*$`),
}

// baseCommands is the fallback allowlist checked against the first token
// of the command, lowercased and stripped of Windows executable suffixes.
var baseCommands = map[string]bool{
	"npm":  true,
	"pnpm": true,
	"yarn": true,
	"node": true,
	"git":  true,
	"cd":   true,
	"code": true,
	"vim":  true,
	"nano": true,
}

// extendedSyntax detects shell features (pipes, variable expansion,
// subexpressions) that route PowerShell commands through the curated
// idiom check.
var extendedSyntax = regexp.MustCompile(`[|$(]`)

// Validator applies the classification pipeline to candidate commands.
// The zero value is not usable; construct with NewValidator.
type Validator struct {
	dangerous []*regexp.Regexp
	safe      []*regexp.Regexp
	idioms    []*regexp.Regexp
	base      map[string]bool
}

// NewValidator returns a Validator with the built-in rule sets.
func NewValidator() *Validator {
	return &Validator{
		dangerous: dangerousPatterns,
		safe:      safePatterns,
		idioms:    powershellIdioms,
		base:      baseCommands,
	}
}

// NewValidatorWithPolicy extends the built-in rules with a site policy.
func NewValidatorWithPolicy(p *Policy) (*Validator, error) {
	v := NewValidator()
	if p == nil {
		return v, nil
	}
	for _, expr := range p.DangerousPatterns {
		re, err := regexp.Compile(expr)
		if err != nil {
			return nil, fmt.Errorf("compile dangerous pattern %q: %w", expr, err)
		}
		v.dangerous = append(v.dangerous, re)
	}
	for _, expr := range p.SafePatterns {
		re, err := regexp.Compile(expr)
		if err != nil {
			return nil, fmt.Errorf("compile safe pattern %q: %w", expr, err)
		}
		v.safe = append(v.safe, re)
	}
	if len(p.AllowedCommands) > 0 {
		base := make(map[string]bool, len(v.base)+len(p.AllowedCommands))
		for k := range v.base {
			base[k] = true
		}
		for _, c := range p.AllowedCommands {
			base[strings.ToLower(c)] = true
		}
		v.base = base
	}
	return v, nil
}

// Validate classifies command. First match wins: dangerous patterns,
// then the safe whitelist, then the PowerShell syntax gate, then the
// base-command allowlist. It performs no I/O and spawns nothing.
func (v *Validator) Validate(command string, vctx Context) Verdict {
	trimmed := strings.TrimSpace(command)
	if trimmed == "" {
		return reject(ReasonInvalidInput)
	}

	for _, re := range v.dangerous {
		if re.MatchString(trimmed) {
			return reject(ReasonDangerousPattern)
		}
	}

	for _, re := range v.safe {
		if re.MatchString(trimmed) {
			return Verdict{Allowed: true, Reason: ReasonWhitelisted}
		}
	}

	if vctx.Shell == "powershell" && extendedSyntax.MatchString(trimmed) {
		for _, re := range v.idioms {
			if re.MatchString(trimmed) {
				return Verdict{Allowed: true, Reason: ReasonOK}
			}
		}
		return reject(ReasonPowerShellSyntax)
	}

	if v.base[baseCommand(trimmed)] {
		return Verdict{Allowed: true, Reason: ReasonOK}
	}
	return reject(ReasonNotWhitelisted)
}

func reject(reason ReasonCode) Verdict {
	return Verdict{Allowed: false, Reason: reason, Guidance: guidance[reason]}
}

// baseCommand extracts the first whitespace-delimited token, lowercased,
// with any Windows executable suffix removed.
func baseCommand(command string) string {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return ""
	}
	tok := strings.ToLower(fields[0])
	for _, suffix := range []string{".exe", ".cmd", ".bat"} {
		if strings.HasSuffix(tok, suffix) {
			return strings.TrimSuffix(tok, suffix)
		}
	}
	return tok
}
