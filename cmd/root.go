package cmd

import (
	"errors"
	"fmt"
	"os"

	"dispenser-sync/core/config"
	"dispenser-sync/core/logger"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// RootCmd represents the base command when called without any subcommands
var RootCmd = &cobra.Command{
	Use:   "dispenser-sync",
	Short: "Pill dispenser data reconciliation",
	Long: `dispenser-sync detects and repairs drift between the document store and
the realtime store that back the pill dispenser application.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// ExitError carries a specific process exit code.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// Execute runs the root command and exits non-zero on failure: the code of an
// ExitError, or 2 for any other command error.
func Execute() {
	err := RootCmd.Execute()
	if err == nil {
		return
	}

	code := 2
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		code = exitErr.Code
	}

	// Console format with debug config for ISO8601 timestamps on a terminal.
	l, logErr := logger.New(&logger.Config{Level: "debug", Format: "console"})
	if logErr == nil {
		l.Error("command failed", zap.Error(err), zap.Int("exit_code", code))
		_ = l.Sync()
	} else {
		fmt.Fprintln(os.Stderr, err)
	}
	os.Exit(code)
}

// bootstrap loads the configuration and builds the logger.
func bootstrap() (*config.Config, *zap.Logger, error) {
	cfg, err := config.LoadConfig(".")
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	l, err := logger.New(&cfg.Log)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return cfg, l, nil
}
