package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/isdmx/coderun/assistant"
	"github.com/isdmx/coderun/config"
	"github.com/isdmx/coderun/language"
	"github.com/isdmx/coderun/metrics"
	"github.com/isdmx/coderun/sandbox"
)

// MockExecutor records requests and returns a canned result
type MockExecutor struct {
	mu       sync.Mutex
	requests []sandbox.ExecuteRequest
	result   sandbox.ExecuteResult
	err      error
	panicMsg string
}

func (m *MockExecutor) Execute(_ context.Context, req sandbox.ExecuteRequest) (sandbox.ExecuteResult, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	m.mu.Unlock()
	if m.panicMsg != "" {
		panic(m.panicMsg)
	}
	return m.result, m.err
}

func (m *MockExecutor) lastRequest(t *testing.T) sandbox.ExecuteRequest {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	require.NotEmpty(t, m.requests)
	return m.requests[len(m.requests)-1]
}

// MockAssistant returns a canned answer
type MockAssistant struct {
	answer   string
	err      error
	question string
	language string
	history  []assistant.Message
}

func (m *MockAssistant) Ask(_ context.Context, question, language string, history []assistant.Message) (string, error) {
	m.question, m.language, m.history = question, language, history
	return m.answer, m.err
}

func newTestServer(t *testing.T, exec sandbox.SandboxExecutor, asst assistant.Assistant) *Server {
	t.Helper()
	cfg := &config.Config{Server: config.ServerConfig{HTTPPort: 8080, ReadTimeoutSec: 15, WriteTimeoutSec: 60}}
	return New(cfg, zaptest.NewLogger(t), exec, language.Default(), asst, metrics.New())
}

func doRequest(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, req)
	return rr
}

func scrape(t *testing.T, s *Server) string {
	t.Helper()
	rr := doRequest(t, s, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rr.Code)
	return rr.Body.String()
}

func decodeExecute(t *testing.T, rr *httptest.ResponseRecorder) executeResponse {
	t.Helper()
	var res executeResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&res))
	return res
}

func TestHandleExecute(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		exec := &MockExecutor{result: sandbox.ExecuteResult{
			Stdout:         "Hello World\n",
			ExitCode:       0,
			DurationMillis: 42,
			Outcome:        sandbox.OutcomeOK,
		}}
		s := newTestServer(t, exec, &MockAssistant{})

		rr := doRequest(t, s, http.MethodPost, "/api/execute", `{"code":"print('Hello World')","language":"python","input":"x"}`)
		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))

		res := decodeExecute(t, rr)
		assert.Equal(t, executeResponse{Output: "Hello World\n", ExitCode: 0, ExecutionTime: 42}, res)

		req := exec.lastRequest(t)
		assert.Equal(t, "python", req.Language)
		assert.Equal(t, "print('Hello World')", req.Code)
		assert.Equal(t, "x", req.Stdin)
	})

	t.Run("ExecutionFailureIsOK", func(t *testing.T) {
		exec := &MockExecutor{result: sandbox.ExecuteResult{
			Stderr:   "main.c:1: error: expected ';'",
			ExitCode: 1,
			Outcome:  sandbox.OutcomeCompileFailed,
		}}
		s := newTestServer(t, exec, &MockAssistant{})

		rr := doRequest(t, s, http.MethodPost, "/api/execute", `{"code":"int main(){return 0}","language":"c"}`)
		assert.Equal(t, http.StatusOK, rr.Code)

		res := decodeExecute(t, rr)
		assert.Equal(t, 1, res.ExitCode)
		assert.Contains(t, res.Error, "expected ';'")
	})

	t.Run("SecurityRejectionIsOK", func(t *testing.T) {
		exec := &MockExecutor{result: sandbox.ExecuteResult{
			Stderr:   sandbox.SecurityErrorMessage,
			ExitCode: 1,
			Outcome:  sandbox.OutcomeSecurityRejected,
		}}
		s := newTestServer(t, exec, &MockAssistant{})

		rr := doRequest(t, s, http.MethodPost, "/api/execute", `{"code":"DROP TABLE users;","language":"sql"}`)
		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, sandbox.SecurityErrorMessage, decodeExecute(t, rr).Error)
	})

	t.Run("MalformedJSON", func(t *testing.T) {
		exec := &MockExecutor{}
		s := newTestServer(t, exec, &MockAssistant{})

		rr := doRequest(t, s, http.MethodPost, "/api/execute", `{"code":`)
		assert.Equal(t, http.StatusBadRequest, rr.Code)

		res := decodeExecute(t, rr)
		assert.Equal(t, 1, res.ExitCode)
		assert.Equal(t, msgInvalidBody, res.Error)
		assert.Empty(t, exec.requests)
	})

	t.Run("InvalidRequest", func(t *testing.T) {
		exec := &MockExecutor{err: fmt.Errorf("%w: code is required", sandbox.ErrInvalidRequest)}
		s := newTestServer(t, exec, &MockAssistant{})

		rr := doRequest(t, s, http.MethodPost, "/api/execute", `{"code":"","language":"python"}`)
		assert.Equal(t, http.StatusBadRequest, rr.Code)

		res := decodeExecute(t, rr)
		assert.Equal(t, 1, res.ExitCode)
		assert.Contains(t, res.Error, "code is required")
		assert.Empty(t, res.Output)
	})

	t.Run("UnexpectedError", func(t *testing.T) {
		exec := &MockExecutor{err: errors.New("boom")}
		s := newTestServer(t, exec, &MockAssistant{})

		rr := doRequest(t, s, http.MethodPost, "/api/execute", `{"code":"x","language":"python"}`)
		assert.Equal(t, http.StatusInternalServerError, rr.Code)
		assert.Equal(t, 1, decodeExecute(t, rr).ExitCode)
	})

	t.Run("BodyTooLarge", func(t *testing.T) {
		exec := &MockExecutor{}
		s := newTestServer(t, exec, &MockAssistant{})

		body := `{"language":"python","code":"` + strings.Repeat("a", MaxBodyBytes) + `"}`
		rr := doRequest(t, s, http.MethodPost, "/api/execute", body)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Empty(t, exec.requests)
	})

	t.Run("LanguageIsNormalized", func(t *testing.T) {
		exec := &MockExecutor{}
		s := newTestServer(t, exec, &MockAssistant{})

		doRequest(t, s, http.MethodPost, "/api/execute", `{"code":"x","language":" Python "}`)
		assert.Equal(t, "python", exec.lastRequest(t).Language)
	})
}

func TestHandleRun(t *testing.T) {
	exec := &MockExecutor{result: sandbox.ExecuteResult{Stdout: "3\n", DurationMillis: 7}}
	s := newTestServer(t, exec, &MockAssistant{})

	rr := doRequest(t, s, http.MethodPost, "/run/javascript", `{"code":"console.log(1+2)","language":"python","input":""}`)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "3\n", decodeExecute(t, rr).Output)
	assert.Equal(t, "javascript", exec.lastRequest(t).Language)

	assert.Contains(t, scrape(t, s), `coderun_http_requests_total{method="POST",route="/run/{language}",status="200"} 1`)
}

func TestHandleLanguages(t *testing.T) {
	s := newTestServer(t, &MockExecutor{}, &MockAssistant{})

	rr := doRequest(t, s, http.MethodGet, "/api/languages", "")
	require.Equal(t, http.StatusOK, rr.Code)

	var langs []languageResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&langs))
	require.Len(t, langs, 6)
	assert.Equal(t, languageResponse{Name: "c", DisplayName: "C", Version: "10.2.0", Kind: "compiled"}, langs[0])

	names := make([]string, 0, len(langs))
	for _, l := range langs {
		names = append(names, l.Name)
	}
	assert.Equal(t, language.Default().Names(), names)
}

func TestHandleAsk(t *testing.T) {
	t.Run("Answer", func(t *testing.T) {
		asst := &MockAssistant{answer: "Use `for i in range(3)`."}
		s := newTestServer(t, &MockExecutor{}, asst)

		body := `{"question":"loop?","language":"python","history":[{"role":"user","content":"hi"}]}`
		rr := doRequest(t, s, http.MethodPost, "/ai/ask", body)
		require.Equal(t, http.StatusOK, rr.Code)

		var res askResponse
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&res))
		assert.Equal(t, "Use `for i in range(3)`.", res.Answer)
		assert.Equal(t, "loop?", asst.question)
		assert.Equal(t, "python", asst.language)
		assert.Equal(t, []assistant.Message{{Role: "user", Content: "hi"}}, asst.history)
	})

	t.Run("EmptyQuestion", func(t *testing.T) {
		asst := &MockAssistant{}
		s := newTestServer(t, &MockExecutor{}, asst)

		rr := doRequest(t, s, http.MethodPost, "/ai/ask", `{"question":"   "}`)
		assert.Equal(t, http.StatusBadRequest, rr.Code)

		var res askResponse
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&res))
		assert.Equal(t, msgEmptyQuestion, res.Answer)
		assert.Empty(t, asst.question)
	})

	t.Run("AssistantErrorFallsBack", func(t *testing.T) {
		s := newTestServer(t, &MockExecutor{}, &MockAssistant{err: errors.New("unreachable")})

		rr := doRequest(t, s, http.MethodPost, "/ai/ask", `{"question":"hello"}`)
		require.Equal(t, http.StatusOK, rr.Code)

		var res askResponse
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&res))
		assert.Equal(t, assistant.OfflineAnswer, res.Answer)
	})
}

func TestHealthAndMetrics(t *testing.T) {
	s := newTestServer(t, &MockExecutor{}, &MockAssistant{})

	rr := doRequest(t, s, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rr.Body.String())

	rr = doRequest(t, s, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `coderun_http_requests_total{method="GET",route="/healthz",status="200"} 1`)
}

func TestMiddleware(t *testing.T) {
	t.Run("RequestID", func(t *testing.T) {
		s := newTestServer(t, &MockExecutor{}, &MockAssistant{})

		req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
		req.Header.Set("X-Request-Id", "abc-123")
		rr := httptest.NewRecorder()
		s.Handler().ServeHTTP(rr, req)
		assert.Equal(t, http.StatusOK, rr.Code)
	})

	t.Run("PanicRecovered", func(t *testing.T) {
		s := newTestServer(t, &MockExecutor{panicMsg: "kaboom"}, &MockAssistant{})

		rr := doRequest(t, s, http.MethodPost, "/api/execute", `{"code":"x","language":"python"}`)
		assert.Equal(t, http.StatusInternalServerError, rr.Code)
		assert.Contains(t, scrape(t, s), `coderun_http_requests_total{method="POST",route="/api/execute",status="500"} 1`)
	})

	t.Run("UnmatchedRoute", func(t *testing.T) {
		s := newTestServer(t, &MockExecutor{}, &MockAssistant{})

		rr := doRequest(t, s, http.MethodGet, "/nope", "")
		assert.Equal(t, http.StatusNotFound, rr.Code)
		assert.Contains(t, scrape(t, s), `coderun_http_requests_total{method="GET",route="unmatched",status="404"} 1`)
	})
}

func TestStartStop(t *testing.T) {
	cfg := &config.Config{Server: config.ServerConfig{HTTPPort: 0}}
	s := New(cfg, zaptest.NewLogger(t), &MockExecutor{}, language.Default(), &MockAssistant{}, nil)

	require.NoError(t, s.Start(context.Background()))
	require.NoError(t, s.Stop(context.Background()))
}
