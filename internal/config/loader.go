package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"
)

// Placeholders in flowgate.yaml take the form ${VAR} or ${VAR:-default}.
// Worker secrets, the proxy key and the upstream token are expected to
// arrive this way so the file itself carries no credentials.
var placeholder = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-((?:[^}\\]|\\.)*))?\}`)

// Load reads the gateway configuration file, substitutes environment
// placeholders, and decodes the result. Structural checks live in
// Validate, kept separate so `flowgate config check` can report every
// problem in one run.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}

	substituted, err := substituteEnv(raw)
	if err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(substituted, &cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	return &cfg, nil
}

// substituteEnv resolves every placeholder against the environment,
// falling back to the inline default when one is given. Placeholders
// with neither are collected and reported together, so a deployment
// missing three secrets learns about all three at once.
func substituteEnv(raw []byte) ([]byte, error) {
	var missing []error

	out := placeholder.ReplaceAllFunc(raw, func(match []byte) []byte {
		groups := placeholder.FindSubmatch(match)
		name := string(groups[1])

		if value, ok := os.LookupEnv(name); ok {
			return []byte(value)
		}
		if groups[2] != nil {
			return groups[2]
		}
		missing = append(missing, fmt.Errorf("unresolved variable: %s", name))
		return match
	})

	return out, errors.Join(missing...)
}
