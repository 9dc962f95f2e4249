package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	configPath string
	logLevel   string
	logFormat  string
)

var rootCmd = &cobra.Command{
	Use:   "rcguard",
	Short: "rcguard - command policy engine for autonomous coding agents",
	Long: `rcguard decides, before an agent's shell command runs, whether it may run,
must be blocked, or needs a human to approve it. Commands are parsed into
their segments, normalized, and classified against a declarative rule
catalog; every decision is written to an append-only audit log.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to rcguard.yaml (default: ./rcguard.yaml, ~/.rcguard/rcguard.yaml, /etc/rcguard/rcguard.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Operational log level: debug, info, warn, error (overrides config)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "Operational log format: text or json (overrides config)")
}

// ExitError carries a process exit code out of a command.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("exit status %d", e.Code)
	}
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error { return e.Err }

// Execute runs the CLI and returns the process exit code.
func Execute() int {
	err := rootCmd.Execute()
	var exitErr *ExitError
	if err != nil && (!errors.As(err, &exitErr) || exitErr.Err != nil) {
		fmt.Fprintf(os.Stderr, "rcguard: %v\n", err)
	}
	return exitCode(err)
}
