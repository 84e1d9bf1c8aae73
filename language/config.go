package language

import (
	"fmt"
	"strings"

	"github.com/isdmx/coderun/config"
)

// NewFromConfig builds the process-wide registry: the languages file when one
// is configured, the built-in profiles otherwise, with per-language overrides applied
func NewFromConfig(cfg *config.Config) (*Registry, error) {
	base := Default()
	if cfg.Sandbox.LanguagesFile != "" {
		loaded, err := LoadFile(cfg.Sandbox.LanguagesFile)
		if err != nil {
			return nil, err
		}
		base = loaded
	}

	if len(cfg.Languages) == 0 {
		return base, nil
	}

	overrides := make(map[string]Override, len(cfg.Languages))
	for name, lc := range cfg.Languages {
		if _, ok := base.Lookup(name); !ok {
			return nil, fmt.Errorf("override for unknown language: %s", name)
		}
		env, err := parseEnvironment(lc.Environment)
		if err != nil {
			return nil, fmt.Errorf("language %s: %w", name, err)
		}
		overrides[name] = Override{
			Image:       lc.Image,
			Version:     lc.Version,
			Environment: env,
		}
	}

	return WithOverrides(base, overrides)
}

func parseEnvironment(entries []string) (map[string]string, error) {
	env := make(map[string]string, len(entries))
	for _, entry := range entries {
		key, value, ok := strings.Cut(entry, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid environment entry %q, expected KEY=VALUE", entry)
		}
		env[key] = value
	}
	return env, nil
}
