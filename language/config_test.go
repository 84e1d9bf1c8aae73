package language

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/isdmx/coderun/config"
)

func TestNewFromConfig(t *testing.T) {
	t.Run("Defaults", func(t *testing.T) {
		reg, err := NewFromConfig(&config.Config{})
		require.NoError(t, err)
		assert.Equal(t, Default().Names(), reg.Names())
	})

	t.Run("Overrides", func(t *testing.T) {
		reg, err := NewFromConfig(&config.Config{
			Languages: map[string]config.LanguageConfig{
				"cpp": {Image: "gcc:14", Environment: []string{"LANG=C.UTF-8"}},
			},
		})
		require.NoError(t, err)

		cpp, ok := reg.Lookup(CPP)
		require.True(t, ok)
		assert.Equal(t, "gcc:14", cpp.Image)
		assert.Equal(t, "C.UTF-8", cpp.Environment["LANG"])
	})

	t.Run("UnknownLanguageOverride", func(t *testing.T) {
		_, err := NewFromConfig(&config.Config{
			Languages: map[string]config.LanguageConfig{"cobol": {Image: "cobol:1"}},
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unknown language")
	})

	t.Run("BadEnvironmentEntry", func(t *testing.T) {
		_, err := NewFromConfig(&config.Config{
			Languages: map[string]config.LanguageConfig{"python": {Environment: []string{"NOEQUALS"}}},
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "expected KEY=VALUE")
	})

	t.Run("LanguagesFile", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "languages.yaml")
		doc := "languages:\n  - name: ruby\n    kind: interpreted\n    source_file: main.rb\n    run: [ruby, \"{source}\"]\n"
		require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))

		cfg := &config.Config{}
		cfg.Sandbox.LanguagesFile = path

		reg, err := NewFromConfig(cfg)
		require.NoError(t, err)
		assert.Equal(t, []string{"ruby"}, reg.Names())
	})

	t.Run("MissingLanguagesFile", func(t *testing.T) {
		cfg := &config.Config{}
		cfg.Sandbox.LanguagesFile = filepath.Join(t.TempDir(), "nope.yaml")

		_, err := NewFromConfig(cfg)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to read languages file")
	})
}
