package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/isdmx/coderun/assistant"
	"github.com/isdmx/coderun/sandbox"
)

const (
	msgInvalidBody    = "Invalid request body"
	msgEmptyQuestion  = "Please ask a question."
	statusHealthyText = "ok"
)

type executeRequest struct {
	Code     string `json:"code"`
	Language string `json:"language"`
	Input    string `json:"input"`
}

type executeResponse struct {
	Output        string `json:"output"`
	Error         string `json:"error"`
	ExitCode      int    `json:"exitCode"`
	ExecutionTime int64  `json:"executionTime"`
}

type languageResponse struct {
	Name        string `json:"name"`
	DisplayName string `json:"displayName"`
	Version     string `json:"version"`
	Kind        string `json:"kind"`
}

type askRequest struct {
	Question string              `json:"question"`
	Language string              `json:"language"`
	History  []assistant.Message `json:"history"`
}

type askResponse struct {
	Answer string `json:"answer"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(s.logger, w, http.StatusOK, map[string]string{"status": statusHealthyText})
}

func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	var req executeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.logger.Warn("invalid execution request body", zap.Error(err))
		writeJSON(s.logger, w, http.StatusBadRequest, badRequest(msgInvalidBody))
		return
	}
	s.execute(w, r, req)
}

// handleRun takes the language from the path; a language in the body is ignored
func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	var req executeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.logger.Warn("invalid run request body", zap.Error(err))
		writeJSON(s.logger, w, http.StatusBadRequest, badRequest(msgInvalidBody))
		return
	}
	req.Language = chi.URLParam(r, "language")
	s.execute(w, r, req)
}

func (s *Server) execute(w http.ResponseWriter, r *http.Request, req executeRequest) {
	result, err := s.executor.Execute(r.Context(), sandbox.ExecuteRequest{
		Language: strings.ToLower(strings.TrimSpace(req.Language)),
		Code:     req.Code,
		Stdin:    req.Input,
	})
	if err != nil {
		if errors.Is(err, sandbox.ErrInvalidRequest) {
			writeJSON(s.logger, w, http.StatusBadRequest, badRequest(err.Error()))
			return
		}
		s.logger.Error("execution failed", zap.Error(err))
		writeJSON(s.logger, w, http.StatusInternalServerError, badRequest("Internal server error"))
		return
	}

	writeJSON(s.logger, w, http.StatusOK, executeResponse{
		Output:        result.Stdout,
		Error:         result.Stderr,
		ExitCode:      result.ExitCode,
		ExecutionTime: result.DurationMillis,
	})
}

func (s *Server) handleLanguages(w http.ResponseWriter, _ *http.Request) {
	profiles := s.registry.Profiles()
	out := make([]languageResponse, 0, len(profiles))
	for _, p := range profiles {
		out = append(out, languageResponse{
			Name:        p.Name,
			DisplayName: p.DisplayName,
			Version:     p.Version,
			Kind:        string(p.Kind),
		})
	}
	writeJSON(s.logger, w, http.StatusOK, out)
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	var req askRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.logger.Warn("invalid ask request body", zap.Error(err))
		writeJSON(s.logger, w, http.StatusBadRequest, askResponse{Answer: msgEmptyQuestion})
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		writeJSON(s.logger, w, http.StatusBadRequest, askResponse{Answer: msgEmptyQuestion})
		return
	}

	answer, err := s.assistant.Ask(r.Context(), req.Question, req.Language, req.History)
	if err != nil {
		s.logger.Warn("assistant failed", zap.Error(err))
		answer = assistant.OfflineAnswer
	}
	writeJSON(s.logger, w, http.StatusOK, askResponse{Answer: answer})
}

func badRequest(msg string) executeResponse {
	return executeResponse{Error: msg, ExitCode: 1}
}

func writeJSON(logger *zap.Logger, w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error("failed to encode JSON response", zap.Error(err))
	}
}
