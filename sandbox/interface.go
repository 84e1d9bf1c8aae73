package sandbox

import (
	"context"
	"errors"
	"os"
	"time"
)

// ExecuteRequest represents the parameters for code execution
type ExecuteRequest struct {
	Language string
	Code     string
	Stdin    string
}

// Outcome classifies how an execution ended. It drives metrics and logs and
// is not part of the wire shape.
type Outcome string

const (
	OutcomeOK               Outcome = "ok"
	OutcomeCompileFailed    Outcome = "compile_failed"
	OutcomeRuntimeFailed    Outcome = "runtime_failed"
	OutcomeTimedOut         Outcome = "timed_out"
	OutcomeOutputOverflow   Outcome = "output_overflow"
	OutcomeSpawnFailed      Outcome = "spawn_failed"
	OutcomeSecurityRejected Outcome = "security_rejected"
	OutcomeInternalFault    Outcome = "internal_fault"
)

// ExecuteResult represents the result of code execution. Execution failures
// are results with a non-zero ExitCode, never errors.
type ExecuteResult struct {
	Stdout         string
	Stderr         string
	ExitCode       int
	DurationMillis int64
	Outcome        Outcome
}

// ErrInvalidRequest is returned for an unregistered language or blank code,
// before any resource is touched
var ErrInvalidRequest = errors.New("invalid execution request")

// SecurityErrorMessage is the stderr of a query rejected by the safety gate
const SecurityErrorMessage = "Security Error: Destructive SQL commands are not allowed."

// SandboxExecutor defines the interface for sandbox execution
type SandboxExecutor interface {
	Execute(ctx context.Context, req ExecuteRequest) (ExecuteResult, error)
}

// Backend runs an already validated request. The local backend spawns
// toolchains in a workspace, the remote backend delegates to a Piston-style
// service. DurationMillis is stamped by the orchestrator.
type Backend interface {
	Name() string
	Run(ctx context.Context, req ExecuteRequest) (ExecuteResult, error)
}

// Command describes one child process
type Command struct {
	Path     string
	Args     []string
	Dir      string
	Env      []string
	Stdin    string
	HasStdin bool
	// Timeout overrides the runner default when positive
	Timeout time.Duration
	// OnKill runs after a forced kill, e.g. to remove a container the
	// killed client process was attached to
	OnKill func()
}

// ProcessResult is the outcome of one child process. At most one of
// TimedOut, Overflowed and SpawnFailed is set.
type ProcessResult struct {
	Stdout      string
	Stderr      string
	ExitCode    int
	TimedOut    bool
	Overflowed  bool
	SpawnFailed bool
}

// Outcome maps the process result to an execution outcome
func (r ProcessResult) Outcome() Outcome {
	switch {
	case r.SpawnFailed:
		return OutcomeSpawnFailed
	case r.TimedOut:
		return OutcomeTimedOut
	case r.Overflowed:
		return OutcomeOutputOverflow
	case r.ExitCode != 0:
		return OutcomeRuntimeFailed
	default:
		return OutcomeOK
	}
}

func (r ProcessResult) toResult() ExecuteResult {
	return ExecuteResult{
		Stdout:   r.Stdout,
		Stderr:   r.Stderr,
		ExitCode: r.ExitCode,
		Outcome:  r.Outcome(),
	}
}

// CommandRunner defines an interface for executing system commands
type CommandRunner interface {
	RunCommand(ctx context.Context, cmd Command) ProcessResult
}

// FileSystem defines an interface for file system operations
type FileSystem interface {
	Mkdir(path string, perm os.FileMode) error
	WriteFile(filename string, data []byte, perm os.FileMode) error
	ReadDir(name string) ([]os.DirEntry, error)
	RemoveAll(path string) error
}

// RealFileSystem implements FileSystem using actual file system operations
type RealFileSystem struct{}

func (RealFileSystem) Mkdir(path string, perm os.FileMode) error {
	return os.Mkdir(path, perm)
}

func (RealFileSystem) WriteFile(filename string, data []byte, perm os.FileMode) error {
	return os.WriteFile(filename, data, perm)
}

func (RealFileSystem) ReadDir(name string) ([]os.DirEntry, error) {
	return os.ReadDir(name)
}

func (RealFileSystem) RemoveAll(path string) error {
	return os.RemoveAll(path)
}

// File permission constants
const (
	DirPermission  = 0o700
	FilePermission = 0o644
)
