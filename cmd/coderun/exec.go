package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/isdmx/coderun/config"
	"github.com/isdmx/coderun/language"
	"github.com/isdmx/coderun/logger"
	"github.com/isdmx/coderun/sandbox"
)

var (
	execLanguage string
	execStdin    string
	execVerbose  bool
)

var execCmd = &cobra.Command{
	Use:   "exec FILE",
	Short: "Run one source file and exit with its exit code",
	Long: `Run a single source file through the same orchestrator the HTTP API uses.
The program's stdout and stderr are copied to the terminal and coderun exits
with the program's exit code.

When --language is omitted it is inferred from the file extension.

Examples:
  coderun exec hello.py
  coderun exec --language c --stdin "3 4" sum.c
  coderun exec query.sql`,
	Args: cobra.ExactArgs(1),
	RunE: runExec,
}

func init() {
	execCmd.Flags().StringVarP(&execLanguage, "language", "l", "", "language identifier (inferred from the file extension when empty)")
	execCmd.Flags().StringVar(&execStdin, "stdin", "", "text fed to the program's standard input")
	execCmd.Flags().BoolVarP(&execVerbose, "verbose", "v", false, "log at the configured level instead of warn")
}

func runExec(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	level := "warn"
	if execVerbose {
		level = cfg.Logging.Level
	}
	log, err := logger.New(cfg.Logging.Mode, level)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	code, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read source file: %w", err)
	}

	registry, err := language.NewFromConfig(cfg)
	if err != nil {
		return err
	}

	lang := execLanguage
	if lang == "" {
		var ok bool
		if lang, ok = languageForFile(registry, args[0]); !ok {
			return fmt.Errorf("cannot infer language of %s, use --language", args[0])
		}
	}

	backend, err := sandbox.NewBackend(log, cfg, registry, nil)
	if err != nil {
		return err
	}
	orchestrator := sandbox.NewOrchestrator(log, registry, backend)

	result, err := orchestrator.Execute(context.Background(), sandbox.ExecuteRequest{
		Language: lang,
		Code:     string(code),
		Stdin:    execStdin,
	})
	if err != nil {
		return err
	}

	fmt.Fprint(cmd.OutOrStdout(), result.Stdout)
	fmt.Fprint(cmd.ErrOrStderr(), result.Stderr)
	if result.ExitCode != 0 {
		return exitCodeError{code: result.ExitCode}
	}
	return nil
}

// exitCodeError carries the snippet's exit code up to main so that deferred
// cleanup runs before the process exits.
type exitCodeError struct {
	code int
}

func (e exitCodeError) Error() string {
	return fmt.Sprintf("exit status %d", e.code)
}

// languageForFile matches the file extension against the default source
// file of each registered profile
func languageForFile(registry *language.Registry, path string) (string, bool) {
	ext := strings.ToLower(filepath.Ext(path))
	if ext == "" {
		return "", false
	}
	for _, p := range registry.Profiles() {
		if strings.ToLower(filepath.Ext(p.SourceFile)) == ext {
			return p.Name, true
		}
	}
	return "", false
}
