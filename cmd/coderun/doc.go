// Package main is the entry point for the coderun execution service.
//
// coderun compiles and runs untrusted snippets in Python, JavaScript, C, C++,
// Java and SQL, either on local toolchains inside per-request workspaces or
// by delegating to a remote Piston-style service. The service exposes an
// HTTP API, an optional MCP tool and a one-shot CLI.
//
// Commands:
//
//	coderun serve [--config FILE]                        run the HTTP API (default command)
//	coderun exec [--language L] [--stdin S] FILE         run one file and exit with its exit code
//	coderun languages                                    list registered languages
//	coderun version                                      print the version
//
// The serve command uses Uber's fx framework for dependency injection and
// lifecycle management, with zap for structured logging and viper for
// configuration. A .env file in the working directory is loaded on startup.
package main
