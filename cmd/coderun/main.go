package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "coderun",
	Short: "coderun runs untrusted code snippets in isolated workspaces.",
	Long: `coderun is a multi-language code execution service.
Each request gets a private workspace, bounded wall-clock time and bounded
output. Execution failures are reported as results, never as transport errors.`,
	RunE:          runServe, // Default to serve mode.
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file (default ./config.yaml or ./config/config.yaml)")
	rootCmd.AddCommand(serveCmd, execCmd, languagesCmd, versionCmd)
	_ = godotenv.Load()
}

func main() {
	os.Exit(exitStatus(rootCmd.Execute(), os.Stderr))
}

// exitStatus maps a command error to the process exit code. An exitCodeError
// is passed through silently; anything else is reported as fatal.
func exitStatus(err error, stderr io.Writer) int {
	if err == nil {
		return 0
	}
	var exit exitCodeError
	if errors.As(err, &exit) {
		return exit.code
	}
	fmt.Fprintf(stderr, "fatal: %v\n", err)
	return 1
}
