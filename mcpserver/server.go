package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"sync"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/isdmx/coderun/config"
	"github.com/isdmx/coderun/language"
	"github.com/isdmx/coderun/sandbox"
)

// ToolName is the name of the code execution tool
const ToolName = "execute_code"

// MCPServer represents the MCP server
type MCPServer struct {
	config      *config.Config
	logger      *zap.Logger
	registry    *language.Registry
	sandboxExec sandbox.SandboxExecutor
	mcpServer   *server.MCPServer

	mu         sync.Mutex
	httpServer *server.StreamableHTTPServer
	cancel     context.CancelFunc
}

// toolResult is the JSON document returned by the execute_code tool
type toolResult struct {
	Stdout          string `json:"stdout"`
	Stderr          string `json:"stderr"`
	ExitCode        int    `json:"exit_code"`
	ExecutionTimeMS int64  `json:"execution_time_ms"`
	Outcome         string `json:"outcome"`
}

// New creates a new MCPServer
func New(cfg *config.Config, logger *zap.Logger, registry *language.Registry, sandboxExec sandbox.SandboxExecutor) (*MCPServer, error) {
	s := &MCPServer{
		config:      cfg,
		logger:      logger,
		registry:    registry,
		sandboxExec: sandboxExec,
	}

	logger.Info("configuration loaded",
		zap.String("mcp.transport", cfg.MCP.Transport),
		zap.Int("mcp.http_port", cfg.MCP.HTTPPort),
		zap.Int("server.http_port", cfg.Server.HTTPPort),
		zap.String("sandbox.backend", cfg.Sandbox.Backend),
		zap.String("sandbox.isolation", cfg.Sandbox.Isolation),
		zap.String("sandbox.query_engine", cfg.Sandbox.QueryEngine),
		zap.Int("sandbox.timeout_ms", cfg.Sandbox.TimeoutMS),
		zap.Int("sandbox.output_limit_bytes", cfg.Sandbox.OutputLimitBytes),
		zap.Int("sandbox.memory_mb", cfg.Sandbox.MemoryMB),
		zap.Bool("sandbox.network_enabled", cfg.Sandbox.NetworkEnabled),
		zap.Strings("languages", registry.Names()),
	)

	s.mcpServer = server.NewMCPServer("coderun-executor", "A multi-language code execution server")
	s.registerExecuteCodeTool()

	return s, nil
}

// registerExecuteCodeTool registers the execute_code tool. The language enum
// mirrors the registry.
func (s *MCPServer) registerExecuteCodeTool() {
	tool := mcp.Tool{
		Name:        ToolName,
		Description: "Compile and run a source snippet and return its stdout, stderr and exit code",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"code": map[string]any{
					"type":        "string",
					"description": "Source code to execute",
				},
				"language": map[string]any{
					"type":        "string",
					"description": "Language identifier",
					"enum":        s.registry.Names(),
				},
				"stdin": map[string]any{
					"type":        "string",
					"description": "Text fed to the program's standard input (optional)",
				},
			},
			Required: []string{"code", "language"},
		},
	}

	s.mcpServer.AddTool(tool, s.handleExecuteCode)
}

// handleExecuteCode handles the execute_code tool. Invalid requests become
// tool errors; execution failures are normal results.
func (s *MCPServer) handleExecuteCode(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	code, err := request.RequireString("code")
	if err != nil {
		return toolError(fmt.Sprintf("code parameter is required: %v", err)), nil
	}

	lang, err := request.RequireString("language")
	if err != nil {
		return toolError(fmt.Sprintf("language parameter is required: %v", err)), nil
	}

	stdin := request.GetString("stdin", "")

	s.logger.Info("code execution requested",
		zap.String("language", lang),
		zap.Bool("has_stdin", stdin != ""))

	result, err := s.sandboxExec.Execute(ctx, sandbox.ExecuteRequest{
		Language: lang,
		Code:     code,
		Stdin:    stdin,
	})
	if err != nil {
		if !errors.Is(err, sandbox.ErrInvalidRequest) {
			s.logger.Error("sandbox execution failed", zap.Error(err), zap.String("language", lang))
		}
		return toolError(fmt.Sprintf("Execution failed: %v", err)), nil
	}

	payload, err := json.Marshal(toolResult{
		Stdout:          result.Stdout,
		Stderr:          result.Stderr,
		ExitCode:        result.ExitCode,
		ExecutionTimeMS: result.DurationMillis,
		Outcome:         string(result.Outcome),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode result: %w", err)
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{
				Type: "text",
				Text: string(payload),
			},
		},
	}, nil
}

func toolError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{
				Type: "text",
				Text: msg,
			},
		},
		IsError: true,
	}
}

// Start serves the configured transport in the background. It is a no-op
// for the "none" transport.
func (s *MCPServer) Start(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.config.MCP.Transport {
	case config.TransportNone, "":
		s.logger.Info("MCP transport disabled")
		return nil
	case config.TransportStdio:
		ctx, cancel := context.WithCancel(context.Background())
		s.cancel = cancel
		s.logger.Info("starting MCP server on stdio")
		go func() {
			stdio := server.NewStdioServer(s.mcpServer)
			if err := stdio.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
				s.logger.Error("MCP stdio transport stopped", zap.Error(err))
			}
		}()
		return nil
	case config.TransportHTTP:
		port := s.config.MCP.HTTPPort
		s.httpServer = server.NewStreamableHTTPServer(s.mcpServer)
		s.logger.Info("starting MCP server on HTTP", zap.Int("port", port))
		httpServer := s.httpServer
		go func() {
			if err := httpServer.Start(fmt.Sprintf(":%d", port)); err != nil && !errors.Is(err, http.ErrServerClosed) {
				s.logger.Error("MCP HTTP transport stopped", zap.Error(err))
			}
		}()
		return nil
	default:
		return fmt.Errorf("unsupported transport: %s", s.config.MCP.Transport)
	}
}

// Stop shuts down the running transport
func (s *MCPServer) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	if s.httpServer != nil {
		err := s.httpServer.Shutdown(ctx)
		s.httpServer = nil
		if err != nil {
			return fmt.Errorf("failed to stop MCP HTTP transport: %w", err)
		}
	}
	return nil
}

// GetMCPServer returns the underlying MCP server
func (s *MCPServer) GetMCPServer() *server.MCPServer {
	return s.mcpServer
}
