// Package sandbox runs untrusted code and returns a normalized result.
//
// An Orchestrator validates each request, applies the query safety gate and
// dispatches to a Backend chosen by configuration:
//
//   - LocalBackend creates a private Workspace per execution, runs the
//     language pipeline (interpreted, compiled, or query) through a
//     CommandRunner and removes the workspace afterwards. Commands run on
//     the host or inside docker/podman containers.
//   - RemoteBackend delegates to a Piston-style execution service.
//
// The RealCommandRunner bounds every child process by a wall-clock timeout
// and a per-stream output cap; both end in a SIGKILL to the process group.
// Failures below the orchestrator are always results, never errors: only an
// unknown language or blank code yields ErrInvalidRequest.
//
// Usage:
//
//	backend, err := sandbox.NewBackend(logger, cfg, registry, collector)
//	if err != nil {
//	    return err
//	}
//	orchestrator := sandbox.NewOrchestrator(logger, registry, backend, sandbox.WithMetrics(collector))
//	result, err := orchestrator.Execute(ctx, sandbox.ExecuteRequest{
//	    Language: "python",
//	    Code:     "print('Hello, World!')",
//	})
package sandbox
