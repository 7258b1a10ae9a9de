package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nao1215/littlebusters/internal/config"
	"github.com/nao1215/littlebusters/internal/model"
	"github.com/nao1215/littlebusters/internal/report"
	"github.com/nao1215/littlebusters/internal/watcher"
)

// NewWatchCmd creates the watch command.
func NewWatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch <directory>",
		Short: "Check archives as they arrive in a directory",
		Long: `Watch monitors a directory and checks every archive that is created in it
or moved into it, with the same rules as the check command.

An archive is checked once no change has been seen for the settle period,
so that copies in progress are not analyzed. Archives are checked one at a
time. Watch runs until interrupted.

Examples:
  # Clean up everything dropped into the inbox
  littlebusters watch ~/Comics/inbox

  # Only report, and wait longer for slow network copies
  littlebusters watch --dry-run --settle 10s /mnt/share/incoming`,
		Args: cobra.ExactArgs(1),
		RunE: runWatchCmd,
	}

	addAnalysisFlags(cmd)

	cmd.Flags().Duration("settle", config.DefaultWatchSettle,
		"Quiet period before a new archive is checked")
	cmd.Flags().StringSlice("ext", config.DefaultWatchExtensions,
		"Archive extensions to watch")

	return cmd
}

// runWatchCmd executes the watch command.
func runWatchCmd(cmd *cobra.Command, args []string) error {
	cfg, err := buildConfig(cmd, nil)
	if err != nil {
		return err
	}

	cfg.WatchSettle, err = cmd.Flags().GetDuration("settle")
	if err != nil {
		return err
	}
	cfg.WatchExtensions, err = cmd.Flags().GetStringSlice("ext")
	if err != nil {
		return err
	}

	if err := cfg.ValidateWatch(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	logger := newLogger(cmd, cfg.Verbose)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := openHistory(cfg, logger)
	if err != nil {
		return err
	}
	if db != nil {
		defer db.Close()
	}

	batch := newBatch(cfg, logger)
	console := report.NewSimpleWriter(cmd.OutOrStdout(), report.WithVerbose(cfg.Verbose))

	handler := func(ctx context.Context, path string) error {
		r := batch.Run(ctx, path)
		if _, err := console.Write(r); err != nil {
			logger.Error("failed to write console output", "path", path, "error", err)
		}
		if err := saveHistory(ctx, db, []*model.ArchiveReport{r}, logger); err != nil {
			logger.Error("failed to save history", "path", path, "error", err)
		}
		return r.Error
	}

	w := watcher.New(args[0], handler,
		watcher.WithSettle(cfg.WatchSettle),
		watcher.WithExtensions(cfg.WatchExtensions...),
		watcher.WithLogger(logger),
	)

	return w.Run(ctx)
}
