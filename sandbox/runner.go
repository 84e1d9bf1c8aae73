package sandbox

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"
	"unicode/utf8"
)

// Runner defaults
const (
	DefaultOutputLimit = 50000
	DefaultTimeout     = 10 * time.Second
	DefaultWaitDelay   = 2 * time.Second
)

// Markers appended to captured output
const (
	TruncationMarker = "\n[output truncated]"
	TimeoutMarker    = "Execution timed out"
)

var errOutputOverflow = errors.New("output limit exceeded")

// RealCommandRunner implements CommandRunner with os/exec. Each stream is
// captured up to OutputLimit bytes; the first write past the limit kills the
// child.
type RealCommandRunner struct {
	OutputLimit int
	Timeout     time.Duration
	// WaitDelay bounds the wait for pipes still held by orphaned grandchildren
	WaitDelay time.Duration
}

// NewCommandRunner creates a runner with the given output cap and default
// timeout, falling back to the package defaults for non-positive values
func NewCommandRunner(outputLimit int, timeout time.Duration) *RealCommandRunner {
	if outputLimit <= 0 {
		outputLimit = DefaultOutputLimit
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &RealCommandRunner{
		OutputLimit: outputLimit,
		Timeout:     timeout,
		WaitDelay:   DefaultWaitDelay,
	}
}

// RunCommand runs the command to completion. It always resolves: spawn
// failures, timeouts and output overflow are reported in the result.
func (r *RealCommandRunner) RunCommand(ctx context.Context, c Command) ProcessResult {
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = r.Timeout
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	limit := r.OutputLimit
	if limit <= 0 {
		limit = DefaultOutputLimit
	}

	timeoutCtx, cancelTimeout := context.WithTimeout(ctx, timeout)
	defer cancelTimeout()
	runCtx, cancel := context.WithCancelCause(timeoutCtx)
	defer cancel(nil)

	overflow := func() { cancel(errOutputOverflow) }
	stdout := &cappedBuffer{limit: limit, onOverflow: overflow}
	stderr := &cappedBuffer{limit: limit, onOverflow: overflow}

	cmd := exec.CommandContext(runCtx, c.Path, c.Args...) //nolint:gosec // Running submitted code is the purpose
	cmd.Dir = c.Dir
	cmd.Env = c.Env
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	if c.HasStdin {
		cmd.Stdin = strings.NewReader(c.Stdin)
	}
	cmd.WaitDelay = r.WaitDelay
	configureProcess(cmd)

	if err := cmd.Start(); err != nil {
		return ProcessResult{
			Stderr:      err.Error(),
			ExitCode:    1,
			SpawnFailed: true,
		}
	}

	waitErr := cmd.Wait()

	result := ProcessResult{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}
	classify(&result, context.Cause(runCtx), cmd.ProcessState, waitErr)

	if (result.TimedOut || result.Overflowed) && c.OnKill != nil {
		c.OnKill()
	}

	return result
}

// classify sets the outcome of a finished process. cause is the cancellation
// cause of the run context, nil while it is still live. A child that exited
// on its own is never reported as timed out, even if the deadline passed
// before Wait returned.
func classify(result *ProcessResult, cause error, state *os.ProcessState, waitErr error) {
	switch {
	case errors.Is(cause, errOutputOverflow):
		result.Overflowed = true
		result.ExitCode = 1
	case cause != nil && (state == nil || killed(state)):
		result.TimedOut = true
		result.ExitCode = 1
		result.Stderr += "\n" + TimeoutMarker
	case state != nil:
		result.ExitCode = exitCode(state)
	default:
		result.ExitCode = 1
		if waitErr != nil {
			result.Stderr += waitErr.Error()
		}
	}
}

// trimPartialRune drops an incomplete UTF-8 sequence at the end of s
func trimPartialRune(s string) string {
	for i := len(s) - 1; i >= 0 && i >= len(s)-utf8.UTFMax; i-- {
		if utf8.RuneStart(s[i]) {
			if !utf8.FullRuneInString(s[i:]) {
				return s[:i]
			}
			return s
		}
	}
	return s
}

// cappedBuffer keeps at most limit bytes. The write that crosses the limit
// stores the prefix that fits, appends TruncationMarker and fires onOverflow once.
type cappedBuffer struct {
	mu         sync.Mutex
	buf        bytes.Buffer
	limit      int
	overflowed bool
	onOverflow func()
}

func (b *cappedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.overflowed {
		return len(p), nil
	}

	room := b.limit - b.buf.Len()
	if len(p) <= room {
		return b.buf.Write(p)
	}

	b.buf.Write(p[:room])
	b.buf.Truncate(len(trimPartialRune(b.buf.String())))
	b.buf.WriteString(TruncationMarker)
	b.overflowed = true
	if b.onOverflow != nil {
		b.onOverflow()
	}
	// Report the full length so the copier keeps draining the pipe until the kill lands.
	return len(p), nil
}

func (b *cappedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func (b *cappedBuffer) Overflowed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.overflowed
}
