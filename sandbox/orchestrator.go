package sandbox

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/isdmx/coderun/language"
	"github.com/isdmx/coderun/metrics"
)

// Orchestrator validates requests, applies the safety gate and dispatches
// to the configured backend. It implements SandboxExecutor.
type Orchestrator struct {
	logger   *zap.Logger
	registry *language.Registry
	backend  Backend
	metrics  *metrics.Collector
}

// OrchestratorOption defines a functional option for Orchestrator
type OrchestratorOption func(*Orchestrator)

// WithMetrics records executions on the collector
func WithMetrics(c *metrics.Collector) OrchestratorOption {
	return func(o *Orchestrator) {
		o.metrics = c
	}
}

// NewOrchestrator creates an orchestrator dispatching to backend
func NewOrchestrator(logger *zap.Logger, registry *language.Registry, backend Backend, opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		logger:   logger,
		registry: registry,
		backend:  backend,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Execute runs one request. Only malformed requests return an error
// (wrapping ErrInvalidRequest); everything else resolves to a result.
// Caller cancellation is ignored: timeout and output cap are the only ways
// an execution ends early.
func (o *Orchestrator) Execute(ctx context.Context, req ExecuteRequest) (ExecuteResult, error) {
	profile, ok := o.registry.Lookup(req.Language)
	if !ok {
		return ExecuteResult{}, fmt.Errorf("%w: unsupported language: %s", ErrInvalidRequest, req.Language)
	}
	if strings.TrimSpace(req.Code) == "" {
		return ExecuteResult{}, fmt.Errorf("%w: code is required", ErrInvalidRequest)
	}

	logger := o.logger.With(zap.String("language", profile.Name), zap.String("backend", o.backend.Name()))

	if profile.Kind == language.KindQuery && !IsSafe(req.Code) {
		o.metrics.RecordSafetyRejection(profile.Name)
		o.metrics.RecordExecution(profile.Name, string(OutcomeSecurityRejected), 0)
		logger.Warn("query rejected by safety gate")
		return ExecuteResult{
			Stderr:   SecurityErrorMessage,
			ExitCode: 1,
			Outcome:  OutcomeSecurityRejected,
		}, nil
	}

	done := o.metrics.ExecutionStarted()
	defer done()

	start := time.Now()
	result := o.dispatch(context.WithoutCancel(ctx), logger, req)
	elapsed := time.Since(start)
	result.DurationMillis = elapsed.Milliseconds()

	o.metrics.RecordExecution(profile.Name, string(result.Outcome), elapsed)
	logger.Info("execution finished",
		zap.String("outcome", string(result.Outcome)),
		zap.Int("exit_code", result.ExitCode),
		zap.Int64("duration_ms", result.DurationMillis),
	)

	return result, nil
}

// dispatch converts backend errors and panics into internal fault results
func (o *Orchestrator) dispatch(ctx context.Context, logger *zap.Logger, req ExecuteRequest) (result ExecuteResult) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("execution panicked", zap.Any("panic", r), zap.Stack("stack"))
			result = internalFault(fmt.Sprintf("internal error: %v", r))
		}
	}()

	result, err := o.backend.Run(ctx, req)
	if err != nil {
		if errors.Is(err, ErrInvalidRequest) {
			logger.Warn("backend rejected request", zap.Error(err))
		} else {
			logger.Error("execution failed", zap.Error(err))
		}
		return internalFault(err.Error())
	}
	if result.Outcome == "" {
		result.Outcome = OutcomeOK
		if result.ExitCode != 0 {
			result.Outcome = OutcomeRuntimeFailed
		}
	}
	return result
}

func internalFault(msg string) ExecuteResult {
	return ExecuteResult{
		Stderr:   msg,
		ExitCode: 1,
		Outcome:  OutcomeInternalFault,
	}
}
