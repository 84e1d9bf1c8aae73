//go:build !unix

package sandbox

import (
	"os"
	"os/exec"
)

func configureProcess(cmd *exec.Cmd) {
	cmd.Cancel = func() error {
		return cmd.Process.Kill()
	}
}

func exitCode(state *os.ProcessState) int {
	if code := state.ExitCode(); code >= 0 {
		return code
	}
	return 1
}

// killed cannot tell a forced kill from a normal exit here, so any
// unsuccessful exit after the deadline counts as killed
func killed(state *os.ProcessState) bool {
	return !state.Success()
}
