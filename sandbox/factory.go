package sandbox

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/isdmx/coderun/config"
	"github.com/isdmx/coderun/language"
	"github.com/isdmx/coderun/metrics"
)

// NewBackend creates the backend selected by the configuration
func NewBackend(logger *zap.Logger, cfg *config.Config, registry *language.Registry, collector *metrics.Collector) (Backend, error) {
	switch cfg.Sandbox.Backend {
	case config.BackendLocal:
		if !cfg.Sandbox.EnableLocalBackend {
			return nil, fmt.Errorf("local backend is disabled")
		}
		return newLocalBackendFromConfig(logger, cfg, registry, collector)
	case config.BackendRemote:
		return NewRemoteBackend(logger, registry, cfg.Remote.URL,
			WithRemoteHTTPClient(&http.Client{Timeout: time.Duration(cfg.Remote.HTTPTimeoutSec) * time.Second}),
			WithRemoteTimeouts(
				time.Duration(cfg.Remote.RunTimeoutMS)*time.Millisecond,
				time.Duration(cfg.Remote.CompileTimeoutMS)*time.Millisecond,
			),
			WithRemoteOutputLimit(cfg.Sandbox.OutputLimitBytes),
		), nil
	default:
		return nil, fmt.Errorf("unsupported backend: %s", cfg.Sandbox.Backend)
	}
}

func newLocalBackendFromConfig(logger *zap.Logger, cfg *config.Config, registry *language.Registry, collector *metrics.Collector) (*LocalBackend, error) {
	isolation, err := NewIsolation(logger, cfg.Sandbox.Isolation, cfg.Sandbox.MemoryMB, cfg.Sandbox.NetworkEnabled)
	if err != nil {
		return nil, err
	}

	wsOpts := []WorkspaceOption{WithWorkspaceMetrics(collector)}
	if c, ok := isolation.(*ContainerIsolation); ok && c.RequiresSharedWorkspace() {
		wsOpts = append(wsOpts, WithWorkspacePermission(os.ModePerm))
	}
	workspaces := NewWorkspaceManager(logger, cfg.Sandbox.WorkspaceRoot, wsOpts...)

	runner := NewCommandRunner(cfg.Sandbox.OutputLimitBytes, cfg.GetTimeout())

	opts := []LocalBackendOption{
		WithLocalCommandRunner(runner),
		WithLocalIsolation(isolation),
	}
	if cfg.Sandbox.QueryEngine == config.QueryEngineEmbedded {
		opts = append(opts, WithLocalQueryExecutor(NewEmbeddedQueryExecutor(cfg.Sandbox.OutputLimitBytes, cfg.GetTimeout())))
	}

	return NewLocalBackend(logger, registry, workspaces, opts...), nil
}

// NewJanitorFromConfig creates the workspace janitor for the local backend
func NewJanitorFromConfig(logger *zap.Logger, cfg *config.Config, collector *metrics.Collector) *Janitor {
	schedule := cfg.Sandbox.JanitorSchedule
	if cfg.Sandbox.Backend != config.BackendLocal {
		schedule = ""
	}
	root := cfg.Sandbox.WorkspaceRoot
	if root == "" {
		root = os.TempDir()
	}
	return NewJanitor(logger, root, schedule, cfg.GetJanitorMaxAge(), WithJanitorMetrics(collector))
}
