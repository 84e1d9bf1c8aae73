package sandbox

import (
	"context"
	"fmt"

	"github.com/isdmx/coderun/language"
)

// LanguageExecutor runs one language pipeline inside a workspace. The
// returned error is reserved for internal faults; compile and runtime
// failures are results.
type LanguageExecutor interface {
	Execute(ctx context.Context, ws *Workspace, p language.Profile, req ExecuteRequest) (ExecuteResult, error)
}

type toolchain struct {
	runner    CommandRunner
	isolation Isolation
}

func (t toolchain) run(ctx context.Context, ws *Workspace, p language.Profile, argv []string, stdin string, hasStdin bool) ProcessResult {
	cmd := t.isolation.Wrap(ws, p, argv, hasStdin)
	cmd.Stdin = stdin
	return t.runner.RunCommand(ctx, cmd)
}

// InterpretedExecutor writes the source and hands it to the interpreter
type InterpretedExecutor struct {
	toolchain
}

// NewInterpretedExecutor creates an executor for interpreted languages
func NewInterpretedExecutor(runner CommandRunner, isolation Isolation) *InterpretedExecutor {
	return &InterpretedExecutor{toolchain{runner: runner, isolation: isolation}}
}

// Execute implements LanguageExecutor
func (e *InterpretedExecutor) Execute(ctx context.Context, ws *Workspace, p language.Profile, req ExecuteRequest) (ExecuteResult, error) {
	source := p.SourceFileName(req.Code)
	if err := ws.WriteFile(source, p.WithPreamble(req.Code)); err != nil {
		return ExecuteResult{}, err
	}
	return e.run(ctx, ws, p, p.RunArgv(source), req.Stdin, req.Stdin != "").toResult(), nil
}

// CompiledExecutor compiles the source and runs the artifact. A failed
// compile short-circuits: the artifact is never run.
type CompiledExecutor struct {
	toolchain
}

// NewCompiledExecutor creates an executor for compiled languages
func NewCompiledExecutor(runner CommandRunner, isolation Isolation) *CompiledExecutor {
	return &CompiledExecutor{toolchain{runner: runner, isolation: isolation}}
}

// Execute implements LanguageExecutor
func (e *CompiledExecutor) Execute(ctx context.Context, ws *Workspace, p language.Profile, req ExecuteRequest) (ExecuteResult, error) {
	source := p.SourceFileName(req.Code)
	if err := ws.WriteFile(source, p.WithPreamble(req.Code)); err != nil {
		return ExecuteResult{}, err
	}

	compiled := e.run(ctx, ws, p, p.CompileArgv(source), "", false)
	if compiled.ExitCode != 0 {
		result := compiled.toResult()
		if result.Outcome == OutcomeRuntimeFailed {
			result.Outcome = OutcomeCompileFailed
		}
		return result, nil
	}

	return e.run(ctx, ws, p, p.RunArgv(source), req.Stdin, req.Stdin != "").toResult(), nil
}

// QueryCLIExecutor pipes the script into the sqlite3 shell. The request
// stdin is ignored: the script itself is the engine's input.
type QueryCLIExecutor struct {
	toolchain
}

// NewQueryCLIExecutor creates an executor driving the query engine CLI
func NewQueryCLIExecutor(runner CommandRunner, isolation Isolation) *QueryCLIExecutor {
	return &QueryCLIExecutor{toolchain{runner: runner, isolation: isolation}}
}

// Execute implements LanguageExecutor
func (e *QueryCLIExecutor) Execute(ctx context.Context, ws *Workspace, p language.Profile, req ExecuteRequest) (ExecuteResult, error) {
	source := p.SourceFileName(req.Code)
	return e.run(ctx, ws, p, p.RunArgv(source), p.WithPreamble(req.Code)+"\n", true).toResult(), nil
}

// executorFor picks the pipeline for a profile kind
func (b *LocalBackend) executorFor(p language.Profile) (LanguageExecutor, error) {
	switch p.Kind {
	case language.KindInterpreted:
		return b.interpreted, nil
	case language.KindCompiled:
		return b.compiled, nil
	case language.KindQuery:
		return b.query, nil
	default:
		return nil, fmt.Errorf("no executor for kind %q", p.Kind)
	}
}
