package sandbox

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/isdmx/coderun/language"
	"github.com/isdmx/coderun/metrics"
)

// MockBackend implements Backend for testing
type MockBackend struct {
	calls      atomic.Int32
	result     ExecuteResult
	err        error
	delay      time.Duration
	panicValue any
	ctxErr     error
}

func (*MockBackend) Name() string {
	return "mock"
}

func (m *MockBackend) Run(ctx context.Context, _ ExecuteRequest) (ExecuteResult, error) {
	m.calls.Add(1)
	if m.panicValue != nil {
		panic(m.panicValue)
	}
	if m.delay > 0 {
		time.Sleep(m.delay)
	}
	m.ctxErr = ctx.Err()
	return m.result, m.err
}

func newTestOrchestrator(t *testing.T, backend Backend) (*Orchestrator, *metrics.Collector) {
	t.Helper()
	collector := metrics.New()
	return NewOrchestrator(zaptest.NewLogger(t), language.Default(), backend, WithMetrics(collector)), collector
}

func TestOrchestratorValidation(t *testing.T) {
	backend := &MockBackend{}
	o, _ := newTestOrchestrator(t, backend)

	tests := []struct {
		name string
		req  ExecuteRequest
	}{
		{"UnknownLanguage", ExecuteRequest{Language: "cobol", Code: "DISPLAY 'x'."}},
		{"EmptyLanguage", ExecuteRequest{Code: "print(1)"}},
		{"EmptyCode", ExecuteRequest{Language: language.Python}},
		{"WhitespaceCode", ExecuteRequest{Language: language.Python, Code: " \n\t "}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := o.Execute(context.Background(), tt.req)
			require.ErrorIs(t, err, ErrInvalidRequest)
		})
	}

	assert.Equal(t, int32(0), backend.calls.Load(), "invalid requests must not reach the backend")
}

func TestOrchestratorSafetyGate(t *testing.T) {
	backend := &MockBackend{result: ExecuteResult{Stdout: "rows"}}
	o, collector := newTestOrchestrator(t, backend)

	res, err := o.Execute(context.Background(), ExecuteRequest{Language: language.SQL, Code: "DROP TABLE users;"})
	require.NoError(t, err)
	assert.Equal(t, 1, res.ExitCode)
	assert.Equal(t, SecurityErrorMessage, res.Stderr)
	assert.Equal(t, OutcomeSecurityRejected, res.Outcome)
	assert.Equal(t, int32(0), backend.calls.Load())

	res, err = o.Execute(context.Background(), ExecuteRequest{Language: language.SQL, Code: "SELECT * FROM users;"})
	require.NoError(t, err)
	assert.Equal(t, "rows", res.Stdout)
	assert.Equal(t, int32(1), backend.calls.Load())

	families, err := collector.Registry.Gather()
	require.NoError(t, err)
	var rejections float64
	for _, mf := range families {
		if mf.GetName() == "coderun_safety_rejections_total" {
			rejections = mf.GetMetric()[0].GetCounter().GetValue()
		}
	}
	assert.Equal(t, 1.0, rejections)

	t.Run("NotAppliedToOtherLanguages", func(t *testing.T) {
		res, err := o.Execute(context.Background(), ExecuteRequest{Language: language.Python, Code: "print('DROP TABLE')"})
		require.NoError(t, err)
		assert.NotEqual(t, OutcomeSecurityRejected, res.Outcome)
	})
}

func TestOrchestratorDuration(t *testing.T) {
	backend := &MockBackend{delay: 50 * time.Millisecond, result: ExecuteResult{Stdout: "x", Outcome: OutcomeOK}}
	o, _ := newTestOrchestrator(t, backend)

	res, err := o.Execute(context.Background(), ExecuteRequest{Language: language.Python, Code: "print(1)"})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, res.DurationMillis, int64(50))
}

func TestOrchestratorInternalFaults(t *testing.T) {
	t.Run("BackendError", func(t *testing.T) {
		o, _ := newTestOrchestrator(t, &MockBackend{err: errors.New("failed to create workspace: disk full")})

		res, err := o.Execute(context.Background(), ExecuteRequest{Language: language.Python, Code: "print(1)"})
		require.NoError(t, err)
		assert.Equal(t, 1, res.ExitCode)
		assert.Equal(t, OutcomeInternalFault, res.Outcome)
		assert.Contains(t, res.Stderr, "disk full")
	})

	t.Run("BackendPanic", func(t *testing.T) {
		o, _ := newTestOrchestrator(t, &MockBackend{panicValue: "nil map"})

		res, err := o.Execute(context.Background(), ExecuteRequest{Language: language.Python, Code: "print(1)"})
		require.NoError(t, err)
		assert.Equal(t, 1, res.ExitCode)
		assert.Equal(t, OutcomeInternalFault, res.Outcome)
		assert.Contains(t, res.Stderr, "nil map")
	})

	t.Run("MissingOutcomeIsDerived", func(t *testing.T) {
		o, _ := newTestOrchestrator(t, &MockBackend{result: ExecuteResult{ExitCode: 2}})

		res, err := o.Execute(context.Background(), ExecuteRequest{Language: language.Python, Code: "print(1)"})
		require.NoError(t, err)
		assert.Equal(t, OutcomeRuntimeFailed, res.Outcome)
	})
}

func TestOrchestratorDetachesCancellation(t *testing.T) {
	backend := &MockBackend{}
	o, _ := newTestOrchestrator(t, backend)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := o.Execute(ctx, ExecuteRequest{Language: language.Python, Code: "print(1)"})
	require.NoError(t, err)
	assert.NoError(t, backend.ctxErr)
}
