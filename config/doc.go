// Package config provides application configuration management.
//
// The config package loads configuration with viper from an optional YAML
// file, CODERUN_* environment variables and built-in defaults, then validates
// it. It covers the HTTP API, the MCP transport, sandbox execution limits,
// the remote execution service, logging, the AI assistant collaborator and
// per-language overrides.
//
// Usage:
//
//	cfg, err := config.New()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Printf("Sandbox backend: %s\n", cfg.Sandbox.Backend)
package config
