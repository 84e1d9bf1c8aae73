package main

import (
	"context"

	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"github.com/isdmx/coderun/assistant"
	"github.com/isdmx/coderun/config"
	"github.com/isdmx/coderun/httpapi"
	"github.com/isdmx/coderun/language"
	"github.com/isdmx/coderun/logger"
	"github.com/isdmx/coderun/mcpserver"
	"github.com/isdmx/coderun/metrics"
	"github.com/isdmx/coderun/sandbox"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API, the optional MCP transport and the workspace janitor",
	RunE:  runServe,
}

func runServe(_ *cobra.Command, _ []string) error {
	app := fx.New(
		// Provide dependencies
		fx.Provide(
			// Config
			loadConfig,

			// Logger with configuration
			logger.NewFromConfig,

			// Prometheus collector on a private registry
			metrics.New,

			// Language registry with configured overrides
			language.NewFromConfig,

			// Local or remote backend based on config
			sandbox.NewBackend,

			// Orchestrator is the only SandboxExecutor
			fx.Annotate(newOrchestrator, fx.As(new(sandbox.SandboxExecutor))),

			// AI assistant, offline without an API key
			fx.Annotate(assistant.NewFromConfig, fx.As(new(assistant.Assistant))),

			httpapi.New,
			mcpserver.New,
			sandbox.NewJanitorFromConfig,
		),

		fx.Invoke(registerLifecycle),

		// Use the application logger for fx logs
		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log}
		}),
	)

	if err := app.Err(); err != nil {
		return err
	}

	// Blocks until SIGINT or SIGTERM
	app.Run()
	return nil
}

func loadConfig() (*config.Config, error) {
	return config.Load(configPath)
}

func newOrchestrator(logger *zap.Logger, registry *language.Registry, backend sandbox.Backend, collector *metrics.Collector) *sandbox.Orchestrator {
	return sandbox.NewOrchestrator(logger, registry, backend, sandbox.WithMetrics(collector))
}

// registerLifecycle starts the janitor before accepting traffic and stops
// the transports before the janitor
func registerLifecycle(
	lc fx.Lifecycle,
	log *zap.Logger,
	janitor *sandbox.Janitor,
	api *httpapi.Server,
	mcp *mcpserver.MCPServer,
) {
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			return janitor.Start()
		},
		OnStop: func(context.Context) error {
			janitor.Stop()
			_ = log.Sync()
			return nil
		},
	})
	lc.Append(fx.Hook{
		OnStart: api.Start,
		OnStop:  api.Stop,
	})
	lc.Append(fx.Hook{
		OnStart: mcp.Start,
		OnStop:  mcp.Stop,
	})
}
