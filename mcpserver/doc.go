// Package mcpserver provides the Model Context Protocol (MCP) server implementation.
//
// The server exposes a single execute_code tool backed by the execution
// orchestrator. Its language argument is restricted to the registered
// languages. The tool returns the execution result as a JSON document:
//
//	{"stdout": "...", "stderr": "...", "exit_code": 0, "execution_time_ms": 12, "outcome": "ok"}
//
// Malformed requests (unknown language, blank code) are reported as tool
// errors. Compile errors, runtime errors and timeouts are normal results.
//
// The transport is chosen by mcp.transport: "none", "stdio" or "http"
// (streamable HTTP on mcp.http_port).
//
// Usage:
//
//	server, err := mcpserver.New(cfg, logger, registry, orchestrator)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	err = server.Start(ctx)
package mcpserver
