// Package cmd provides the CLI commands for SearchKit.
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	skerrors "github.com/Aman-CERP/searchkit/internal/errors"
	"github.com/Aman-CERP/searchkit/internal/logging"
	"github.com/Aman-CERP/searchkit/internal/profiling"
	"github.com/Aman-CERP/searchkit/pkg/version"
)

// Profiling flags
var (
	profileOpts    profiling.Options
	profileSession *profiling.Session
)

// Global flags
var (
	debugMode      bool
	noColor        bool
	indexOverride  string
	loggingCleanup func()
)

// NewRootCmd creates the root command for the searchkit CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "searchkit",
		Short: "Full-text indexing and progressive search for local documents",
		Long: `SearchKit indexes text, PDF and spreadsheet documents and searches them
progressively: results arrive in chunks, each bounded by a time budget,
and every result can be annotated with the lines that match.

The index lives in .searchkit/index below the project root unless
--index or index.path says otherwise.`,
		Version:       version.Version,
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	cmd.SetVersionTemplate("searchkit version {{.Version}}\n")

	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging to ~/.searchkit/logs/ and stderr")
	cmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")
	cmd.PersistentFlags().StringVar(&indexOverride, "index", "", "Index directory (overrides index.path)")

	cmd.PersistentFlags().StringVar(&profileOpts.CPU, "profile-cpu", "", "Write CPU profile to file")
	cmd.PersistentFlags().StringVar(&profileOpts.Heap, "profile-mem", "", "Write memory profile to file")
	cmd.PersistentFlags().StringVar(&profileOpts.Trace, "profile-trace", "", "Write execution trace to file")
	cmd.PersistentFlags().StringVar(&profileOpts.Goroutines, "profile-goroutines", "", "Write goroutine dump to file on exit")

	cmd.PersistentPreRunE = startProfilingAndLogging
	cmd.PersistentPostRunE = stopProfilingAndLogging

	cmd.AddCommand(newIndexCmd())
	cmd.AddCommand(newAddTextCmd())
	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newDocumentsCmd())
	cmd.AddCommand(newRemoveCmd())
	cmd.AddCommand(newTermsCmd())
	cmd.AddCommand(newCleanupCmd())
	cmd.AddCommand(newCompactCmd())
	cmd.AddCommand(newWatchCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newStatsCmd())
	cmd.AddCommand(newDoctorCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newLogsCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// startProfilingAndLogging installs the default logger and starts
// profiling if requested.
func startProfilingAndLogging(cmd *cobra.Command, _ []string) error {
	cfg := loggingConfig(cmd.Name())
	logger, cleanup, err := logging.Setup(cfg)
	if err != nil {
		if debugMode {
			return fmt.Errorf("failed to setup debug logging: %w", err)
		}
		// File logging is best effort outside debug mode.
		logger, cleanup, _ = logging.Setup(logging.Config{Level: cfg.Level})
	}
	loggingCleanup = cleanup
	slog.SetDefault(logger)
	slog.Debug("command_started",
		slog.String("command", cmd.CommandPath()),
		slog.String("version", version.Version))

	if profileOpts.Enabled() {
		profileSession, err = profiling.Start(profileOpts)
		if err != nil {
			return err
		}
	}
	return nil
}

// stopProfilingAndLogging writes requested profiles and closes the log.
func stopProfilingAndLogging(cmd *cobra.Command, _ []string) error {
	var err error
	if profileSession != nil {
		err = profileSession.Stop()
		profileSession = nil
	}

	if loggingCleanup != nil {
		slog.Debug("command_finished", slog.String("command", cmd.CommandPath()))
		loggingCleanup()
		loggingCleanup = nil
	}
	return err
}

// loggingConfig picks where logs go. Commands log to the log file only,
// --debug adds stderr, and serve never touches stdio.
func loggingConfig(command string) logging.Config {
	level := "info"
	if debugMode {
		level = "debug"
	}
	if command == "serve" {
		return logging.ServeConfig(level)
	}

	cfg := logging.DefaultConfig()
	cfg.Level = level
	cfg.WriteToStderr = debugMode
	cfg.Command = command
	return cfg
}

// Execute runs the root command and prints failures to stderr.
func Execute() error {
	cmd := NewRootCmd()
	err := cmd.Execute()
	if err != nil {
		_, _ = fmt.Fprint(os.Stderr, skerrors.FormatForCLI(err))
		// Cobra skips the post-run hook when RunE fails.
		_ = stopProfilingAndLogging(cmd, nil)
	}
	return err
}
