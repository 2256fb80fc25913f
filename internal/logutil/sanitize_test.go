package logutil

import "testing"

func TestSanitize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "npm run build", "npm run build"},
		{"newline injection", "git status\nFAKE LOG LINE", "git status FAKE LOG LINE"},
		{"carriage return", "ls\r\nrm", "ls  rm"},
		{"tab", "a\tb", "a b"},
		{"control chars dropped", "a\x00\x1bb", "ab"},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Sanitize(tt.in); got != tt.want {
				t.Errorf("Sanitize(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestTruncate(t *testing.T) {
	if got := Truncate("abcdef", 3); got != "abc..." {
		t.Errorf("Truncate = %q, want abc...", got)
	}
	if got := Truncate("ab", 3); got != "ab" {
		t.Errorf("Truncate short = %q, want ab", got)
	}
}
