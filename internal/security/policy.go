package security

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Policy is an optional site-specific overlay on the built-in rule sets.
// Patterns are Go regular expressions; allowed commands are bare program
// names matched against the command's first token.
type Policy struct {
	DangerousPatterns []string `yaml:"dangerous_patterns"`
	SafePatterns      []string `yaml:"safe_patterns"`
	AllowedCommands   []string `yaml:"allowed_commands"`
}

// LoadPolicy reads a Policy from a YAML file. A malformed file is a hard
// error so a typo cannot silently weaken validation.
func LoadPolicy(path string) (*Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read security policy: %w", err)
	}
	var p Policy
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse security policy %s: %w", path, err)
	}
	return &p, nil
}
