package sandbox

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/isdmx/coderun/language"
)

// Remote service defaults
const (
	DefaultRemoteURL            = "https://emkc.org/api/v2/piston/execute"
	DefaultRemoteRunTimeout     = 3 * time.Second
	DefaultRemoteCompileTimeout = 10 * time.Second
	DefaultRemoteHTTPTimeout    = 30 * time.Second
)

// pistonRequest is the body of a Piston execute call
type pistonRequest struct {
	Language       string       `json:"language"`
	Version        string       `json:"version"`
	Files          []pistonFile `json:"files"`
	Stdin          string       `json:"stdin"`
	RunTimeout     int          `json:"run_timeout"`
	CompileTimeout int          `json:"compile_timeout"`
}

type pistonFile struct {
	Name    string `json:"name"`
	Content string `json:"content"`
}

type pistonResponse struct {
	Run     *pistonStage `json:"run"`
	Compile *pistonStage `json:"compile"`
	Message string       `json:"message"`
}

// maxResponseBytes bounds the decoded service response. A stage carries
// stdout, stderr and combined output, JSON may spend 6 bytes per escaped
// byte, and both compile and run stages can be present.
func maxResponseBytes(outputLimit int) int64 {
	const streams, stages, escape, slack = 3, 2, 6, 64 << 10
	return int64(streams*stages*escape*outputLimit + slack)
}

type pistonStage struct {
	Stdout string  `json:"stdout"`
	Stderr string  `json:"stderr"`
	Code   *int    `json:"code"`
	Signal *string `json:"signal"`
}

// exitCode treats a missing code as a signal kill when a signal is reported
func (s *pistonStage) exitCode() int {
	if s.Code != nil {
		return *s.Code
	}
	if s.Signal != nil && *s.Signal != "" {
		return 1
	}
	return 0
}

// RemoteBackend delegates execution to a Piston-style HTTP service
type RemoteBackend struct {
	logger         *zap.Logger
	registry       *language.Registry
	client         *http.Client
	url            string
	runTimeout     time.Duration
	compileTimeout time.Duration
	outputLimit    int
}

// RemoteBackendOption defines a functional option for RemoteBackend
type RemoteBackendOption func(*RemoteBackend)

// WithRemoteHTTPClient sets the HTTP client used for the service calls
func WithRemoteHTTPClient(client *http.Client) RemoteBackendOption {
	return func(b *RemoteBackend) {
		b.client = client
	}
}

// WithRemoteTimeouts sets the run and compile limits sent to the service
func WithRemoteTimeouts(run, compile time.Duration) RemoteBackendOption {
	return func(b *RemoteBackend) {
		if run > 0 {
			b.runTimeout = run
		}
		if compile > 0 {
			b.compileTimeout = compile
		}
	}
}

// WithRemoteOutputLimit caps each returned stream
func WithRemoteOutputLimit(limit int) RemoteBackendOption {
	return func(b *RemoteBackend) {
		if limit > 0 {
			b.outputLimit = limit
		}
	}
}

// NewRemoteBackend creates a backend posting to url
func NewRemoteBackend(logger *zap.Logger, registry *language.Registry, url string, opts ...RemoteBackendOption) *RemoteBackend {
	if url == "" {
		url = DefaultRemoteURL
	}
	b := &RemoteBackend{
		logger:         logger,
		registry:       registry,
		client:         &http.Client{Timeout: DefaultRemoteHTTPTimeout},
		url:            url,
		runTimeout:     DefaultRemoteRunTimeout,
		compileTimeout: DefaultRemoteCompileTimeout,
		outputLimit:    DefaultOutputLimit,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Name implements Backend
func (*RemoteBackend) Name() string {
	return "remote"
}

// Run implements Backend. Transport and service failures are results with
// exit code 1, never errors.
func (b *RemoteBackend) Run(ctx context.Context, req ExecuteRequest) (ExecuteResult, error) {
	profile, ok := b.registry.Lookup(req.Language)
	if !ok {
		return ExecuteResult{}, fmt.Errorf("%w: unsupported language: %s", ErrInvalidRequest, req.Language)
	}

	payload := pistonRequest{
		Language: profile.RemoteName(),
		Version:  profile.RemoteVersionOrAny(),
		Files: []pistonFile{{
			Name:    profile.SourceFileName(req.Code),
			Content: profile.WithPreamble(req.Code),
		}},
		Stdin:          req.Stdin,
		RunTimeout:     int(b.runTimeout.Milliseconds()),
		CompileTimeout: int(b.compileTimeout.Milliseconds()),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return ExecuteResult{}, fmt.Errorf("failed to encode remote request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, b.url, bytes.NewReader(body))
	if err != nil {
		return ExecuteResult{}, fmt.Errorf("failed to build remote request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := b.client.Do(httpReq)
	if err != nil {
		b.logger.Warn("remote execution service unreachable", zap.String("url", b.url), zap.Error(err))
		return serviceFailure(fmt.Sprintf("Execution Service Error: %v", err)), nil
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b.logger.Warn("remote execution service returned an error",
			zap.String("url", b.url),
			zap.Int("status", resp.StatusCode),
		)
		return serviceFailure(fmt.Sprintf("Execution Service Error: %d %s", resp.StatusCode, http.StatusText(resp.StatusCode))), nil
	}

	limit := maxResponseBytes(b.outputLimit)
	limited := &io.LimitedReader{R: resp.Body, N: limit}

	var decoded pistonResponse
	if err := json.NewDecoder(limited).Decode(&decoded); err != nil {
		if limited.N <= 0 {
			b.logger.Warn("remote execution response exceeded the read bound", zap.Int64("limit", limit))
			return ExecuteResult{
				Stderr:   TruncationMarker,
				ExitCode: 1,
				Outcome:  OutcomeOutputOverflow,
			}, nil
		}
		return serviceFailure(fmt.Sprintf("Execution Service Error: invalid response: %v", err)), nil
	}

	return b.normalize(decoded), nil
}

func (b *RemoteBackend) normalize(resp pistonResponse) ExecuteResult {
	if resp.Compile != nil && resp.Compile.exitCode() != 0 {
		code := resp.Compile.exitCode()
		return ExecuteResult{
			Stdout:   b.capped(resp.Compile.Stdout),
			Stderr:   b.capped(resp.Compile.Stderr),
			ExitCode: code,
			Outcome:  OutcomeCompileFailed,
		}
	}

	if resp.Run == nil {
		msg := resp.Message
		if msg == "" {
			msg = "missing run stage"
		}
		return serviceFailure("Execution Service Error: " + msg)
	}

	result := ExecuteResult{
		Stdout:   b.capped(resp.Run.Stdout),
		Stderr:   b.capped(resp.Run.Stderr),
		ExitCode: resp.Run.exitCode(),
		Outcome:  OutcomeOK,
	}

	switch {
	case len(resp.Run.Stdout) > b.outputLimit || len(resp.Run.Stderr) > b.outputLimit:
		result.Outcome = OutcomeOutputOverflow
		result.ExitCode = 1
	case resp.Run.Signal != nil && *resp.Run.Signal == "SIGKILL":
		result.Outcome = OutcomeTimedOut
		result.ExitCode = 1
		result.Stderr += "\n" + TimeoutMarker
	case result.ExitCode != 0:
		result.Outcome = OutcomeRuntimeFailed
	}

	return result
}

func (b *RemoteBackend) capped(s string) string {
	if len(s) <= b.outputLimit {
		return s
	}
	return trimPartialRune(s[:b.outputLimit]) + TruncationMarker
}

func serviceFailure(msg string) ExecuteResult {
	return ExecuteResult{
		Stderr:   msg,
		ExitCode: 1,
		Outcome:  OutcomeInternalFault,
	}
}
