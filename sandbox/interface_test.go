package sandbox

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestProcessResultOutcome(t *testing.T) {
	tests := []struct {
		name     string
		result   ProcessResult
		expected Outcome
	}{
		{"Exited", ProcessResult{ExitCode: 0}, OutcomeOK},
		{"NonZeroExit", ProcessResult{ExitCode: 2}, OutcomeRuntimeFailed},
		{"Signal", ProcessResult{ExitCode: 139}, OutcomeRuntimeFailed},
		{"TimedOut", ProcessResult{ExitCode: 1, TimedOut: true}, OutcomeTimedOut},
		{"Overflowed", ProcessResult{ExitCode: 1, Overflowed: true}, OutcomeOutputOverflow},
		{"SpawnFailed", ProcessResult{ExitCode: 1, SpawnFailed: true}, OutcomeSpawnFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.result.Outcome())
		})
	}
}

func TestProcessResultToResult(t *testing.T) {
	res := ProcessResult{Stdout: "out", Stderr: "err", ExitCode: 3}.toResult()
	assert.Equal(t, ExecuteResult{Stdout: "out", Stderr: "err", ExitCode: 3, Outcome: OutcomeRuntimeFailed}, res)
}

func TestFilePermissionConstants(t *testing.T) {
	assert.Equal(t, 0o700, DirPermission)
	assert.Equal(t, 0o644, FilePermission)
}
