package sandbox

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/isdmx/coderun/language"
)

// LocalBackend runs code with toolchains available to the service, on the
// host or in docker/podman containers depending on the isolation
type LocalBackend struct {
	logger     *zap.Logger
	registry   *language.Registry
	workspaces *WorkspaceManager
	runner     CommandRunner
	isolation  Isolation

	interpreted LanguageExecutor
	compiled    LanguageExecutor
	query       LanguageExecutor
}

// LocalBackendOption defines a functional option for LocalBackend
type LocalBackendOption func(*LocalBackend)

// WithLocalCommandRunner sets the CommandRunner for LocalBackend
func WithLocalCommandRunner(runner CommandRunner) LocalBackendOption {
	return func(b *LocalBackend) {
		b.runner = runner
	}
}

// WithLocalIsolation sets how commands are wrapped before they run
func WithLocalIsolation(isolation Isolation) LocalBackendOption {
	return func(b *LocalBackend) {
		b.isolation = isolation
	}
}

// WithLocalQueryExecutor replaces the query engine, e.g. with the
// in-process EmbeddedQueryExecutor
func WithLocalQueryExecutor(exec LanguageExecutor) LocalBackendOption {
	return func(b *LocalBackend) {
		b.query = exec
	}
}

// NewLocalBackend creates a LocalBackend with default implementations and optional interfaces
func NewLocalBackend(logger *zap.Logger, registry *language.Registry, workspaces *WorkspaceManager, opts ...LocalBackendOption) *LocalBackend {
	b := &LocalBackend{
		logger:     logger,
		registry:   registry,
		workspaces: workspaces,
		runner:     NewCommandRunner(DefaultOutputLimit, DefaultTimeout),
		isolation:  HostIsolation{},
	}

	for _, opt := range opts {
		opt(b)
	}

	b.interpreted = NewInterpretedExecutor(b.runner, b.isolation)
	b.compiled = NewCompiledExecutor(b.runner, b.isolation)
	if b.query == nil {
		b.query = NewQueryCLIExecutor(b.runner, b.isolation)
	}

	return b
}

// Name implements Backend
func (*LocalBackend) Name() string {
	return "local"
}

// Run acquires a workspace, runs the language pipeline in it and releases
// the workspace whatever happens
func (b *LocalBackend) Run(ctx context.Context, req ExecuteRequest) (ExecuteResult, error) {
	profile, ok := b.registry.Lookup(req.Language)
	if !ok {
		return ExecuteResult{}, fmt.Errorf("%w: unsupported language: %s", ErrInvalidRequest, req.Language)
	}

	exec, err := b.executorFor(profile)
	if err != nil {
		return ExecuteResult{}, err
	}

	ws, err := b.workspaces.Acquire()
	if err != nil {
		return ExecuteResult{}, err
	}
	defer b.workspaces.Release(ws)

	b.logger.Debug("workspace acquired",
		zap.String("workspace", ws.ID),
		zap.String("language", profile.Name),
	)

	return exec.Execute(ctx, ws, profile, req)
}
