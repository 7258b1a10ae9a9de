package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	applog "github.com/nao1215/littlebusters/internal/log"
)

// errArchivesFailed is returned when at least one archive could not be
// processed. The individual errors have already been reported.
var errArchivesFailed = errors.New("one or more archives failed")

// NewRootCmd creates the root command for littlebusters.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "littlebusters",
		Short: "Remove undersized pages from comic archives",
		Long: `littlebusters finds pages in comic and manga archives (.cbz/.zip) whose
resolution is far below the average page of the same archive, and removes them.

A page is flagged when its area is less than (1 - threshold) of the average
page area. Double-page spreads are recognized and counted as one page before
the average is taken. Use --dry-run to only report flagged pages.`,
		Version:       getVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags that apply to all commands
	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")
	cmd.PersistentFlags().Bool("log-json", false, "Write logs to stderr as JSON")

	// Add subcommands
	cmd.AddCommand(NewCheckCmd())
	cmd.AddCommand(NewWatchCmd())
	cmd.AddCommand(NewHistoryCmd())
	cmd.AddCommand(NewInitCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		if !errors.Is(err, errArchivesFailed) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}

// getPersistentBool retrieves a persistent flag from the command or the root.
func getPersistentBool(cmd *cobra.Command, name string) bool {
	value, err := cmd.Flags().GetBool(name)
	if err != nil {
		value, err = cmd.Root().PersistentFlags().GetBool(name)
		if err != nil {
			return false
		}
	}
	return value
}

// getVerboseFlag retrieves the verbose flag from the command or its parent.
func getVerboseFlag(cmd *cobra.Command) bool {
	return getPersistentBool(cmd, "verbose")
}

// newLogger creates the logger for a command, writing to its stderr, and
// installs it as the default logger.
func newLogger(cmd *cobra.Command, verbose bool) *slog.Logger {
	var logger *slog.Logger
	if getPersistentBool(cmd, "log-json") {
		logger = applog.NewJSONLogger(cmd.ErrOrStderr(), verbose)
	} else {
		logger = applog.NewLogger(cmd.ErrOrStderr(), verbose)
	}
	slog.SetDefault(logger)
	return logger
}
