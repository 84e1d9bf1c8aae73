package sandbox

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/isdmx/coderun/config"
	"github.com/isdmx/coderun/language"
	"github.com/isdmx/coderun/metrics"
)

func factoryConfig(t *testing.T) *config.Config {
	return &config.Config{
		Sandbox: config.SandboxConfig{
			Backend:            config.BackendLocal,
			TimeoutMS:          5000,
			OutputLimitBytes:   1000,
			WorkspaceRoot:      t.TempDir(),
			Isolation:          config.IsolationNone,
			MemoryMB:           128,
			QueryEngine:        config.QueryEngineCLI,
			JanitorSchedule:    "@every 5m",
			JanitorMaxAge:      "10m",
			EnableLocalBackend: true,
		},
		Remote: config.RemoteConfig{
			URL:              "http://piston.test/api/v2/execute",
			RunTimeoutMS:     1500,
			CompileTimeoutMS: 4000,
			HTTPTimeoutSec:   5,
		},
	}
}

func TestNewBackend(t *testing.T) {
	logger := zaptest.NewLogger(t)
	registry := language.Default()
	collector := metrics.New()

	t.Run("Local", func(t *testing.T) {
		backend, err := NewBackend(logger, factoryConfig(t), registry, collector)
		require.NoError(t, err)

		local, ok := backend.(*LocalBackend)
		require.True(t, ok)
		assert.IsType(t, &QueryCLIExecutor{}, local.query)
		assert.IsType(t, HostIsolation{}, local.isolation)

		runner, ok := local.runner.(*RealCommandRunner)
		require.True(t, ok)
		assert.Equal(t, 1000, runner.OutputLimit)
		assert.Equal(t, int64(5000), runner.Timeout.Milliseconds())
	})

	t.Run("LocalEmbeddedQueryEngine", func(t *testing.T) {
		cfg := factoryConfig(t)
		cfg.Sandbox.QueryEngine = config.QueryEngineEmbedded

		backend, err := NewBackend(logger, cfg, registry, collector)
		require.NoError(t, err)
		assert.IsType(t, &EmbeddedQueryExecutor{}, backend.(*LocalBackend).query)
	})

	t.Run("LocalDocker", func(t *testing.T) {
		cfg := factoryConfig(t)
		cfg.Sandbox.Isolation = config.IsolationDocker

		backend, err := NewBackend(logger, cfg, registry, collector)
		require.NoError(t, err)
		assert.IsType(t, &ContainerIsolation{}, backend.(*LocalBackend).isolation)
	})

	t.Run("LocalDisabled", func(t *testing.T) {
		cfg := factoryConfig(t)
		cfg.Sandbox.EnableLocalBackend = false

		_, err := NewBackend(logger, cfg, registry, collector)
		require.Error(t, err)
	})

	t.Run("Remote", func(t *testing.T) {
		cfg := factoryConfig(t)
		cfg.Sandbox.Backend = config.BackendRemote

		backend, err := NewBackend(logger, cfg, registry, collector)
		require.NoError(t, err)

		remote, ok := backend.(*RemoteBackend)
		require.True(t, ok)
		assert.Equal(t, "http://piston.test/api/v2/execute", remote.url)
		assert.Equal(t, int64(1500), remote.runTimeout.Milliseconds())
		assert.Equal(t, int64(4000), remote.compileTimeout.Milliseconds())
		assert.Equal(t, 1000, remote.outputLimit)
	})

	t.Run("Unsupported", func(t *testing.T) {
		cfg := factoryConfig(t)
		cfg.Sandbox.Backend = "kubernetes"

		_, err := NewBackend(logger, cfg, registry, collector)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unsupported backend")
	})
}

func TestNewJanitorFromConfig(t *testing.T) {
	logger := zaptest.NewLogger(t)

	cfg := factoryConfig(t)
	j := NewJanitorFromConfig(logger, cfg, nil)
	assert.Equal(t, "@every 5m", j.schedule)
	assert.Equal(t, cfg.Sandbox.WorkspaceRoot, j.root)

	cfg.Sandbox.Backend = config.BackendRemote
	j = NewJanitorFromConfig(logger, cfg, nil)
	assert.Empty(t, j.schedule)
}
