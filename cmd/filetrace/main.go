// filetrace traces file system calls and prints them the way the file_trace
// tracer renders them: one line per open, close, lseek, read and write, with
// read and write payloads dumped in hex.
package main

import (
	"fmt"
	"os"

	"github.com/mrzor/file-tracer/internal/config"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// Version information injected by GoReleaser at build time.
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// app is the state shared by every subcommand.
type app struct {
	cfg    *config.Config
	logger *zap.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}

	cfg, err := config.Load()
	if err != nil {
		// Flags still parse; the error surfaces when a command runs.
		cfg = &config.Config{}
	}
	a.cfg = cfg

	root := &cobra.Command{
		Use:           "filetrace",
		Short:         "Trace file system calls as file_trace lines",
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			if err != nil {
				return err
			}
			if err := a.cfg.Validate(); err != nil {
				return err
			}
			logger, lerr := newLogger(a.cfg.Verbose)
			if lerr != nil {
				return lerr
			}
			a.logger = logger
			return nil
		},
		PersistentPostRun: func(_ *cobra.Command, _ []string) {
			if a.logger != nil {
				_ = a.logger.Sync() //nolint:errcheck // stderr sync fails on some terminals
			}
		},
	}
	a.cfg.BindFlags(root.PersistentFlags())

	root.AddCommand(
		newRunCmd(a),
		newReplayCmd(a),
		newParseCmd(a),
		newTracersCmd(a),
	)
	return root
}

func newLogger(verbose bool) (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	return cfg.Build()
}
