package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nao1215/littlebusters/internal/config"
	"github.com/nao1215/littlebusters/internal/database"
	"github.com/nao1215/littlebusters/internal/model"
	"github.com/nao1215/littlebusters/internal/pipeline"
	"github.com/nao1215/littlebusters/internal/report"
)

// NewCheckCmd creates the check command.
func NewCheckCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check [archive...]",
		Short: "Find and remove undersized pages from archives",
		Long: `Check analyzes every page of each archive, flags pages whose area is far
below the average page, and rewrites the archive without them.

Each flagged page is printed as one line:

  issue-001.cbz: p010/010 (4.7% < 80%)

meaning page 10 of 10 has 4.7% of the average page area, while at least
80% (1 - threshold) is required.

Archives are processed one at a time. A failed archive does not stop the
others; the exit status is non-zero if any archive failed.

Examples:
  # Remove undersized pages
  littlebusters check issue-001.cbz issue-002.cbz

  # Only report, never rewrite
  littlebusters check --dry-run *.cbz

  # Looser threshold for archives with many inserts
  littlebusters check -t 0.35 annual.cbz

  # Write a Markdown report and keep console lines on stdout
  littlebusters check -m -o report.md *.cbz

Configuration file (.littlebusters.yaml) example:
  defaults:
    threshold: 0.2
  archives:
    "*-annual-*.cbz":
      threshold: 0.35
    "*.zip":
      dryRun: true`,
		Args: cobra.ArbitraryArgs,
		RunE: runCheckCmd,
	}

	addAnalysisFlags(cmd)

	// Report flags
	cmd.Flags().BoolP("json", "j", false,
		"Output JSON report (mutually exclusive with --markdown)")
	cmd.Flags().BoolP("markdown", "m", false,
		"Output Markdown report (mutually exclusive with --json)")
	cmd.Flags().StringP("output", "o", "",
		"Write report to specified file path (creates directories if needed)")

	return cmd
}

// addAnalysisFlags adds the flags shared by check and watch.
func addAnalysisFlags(cmd *cobra.Command) {
	cmd.Flags().BoolP("dry-run", "n", false,
		"Report flagged pages without rewriting archives")
	cmd.Flags().Float64P("threshold", "t", config.DefaultThreshold,
		"Allowed relative deviation from the average page, in (0,1)")
	cmd.Flags().Bool("exif-orientation", false,
		"Swap width and height of pages rotated by their EXIF orientation")
	cmd.Flags().Int64("max-entry-size", 0,
		"Maximum bytes buffered per page for EXIF decoding (0 = default)")
	cmd.Flags().Int("page-workers", config.DefaultPageWorkers,
		"Number of pages of one archive decoded at once")

	cmd.Flags().StringP("config", "c", "",
		"Configuration file path (default: .littlebusters.yaml in current or home directory)")

	cmd.Flags().Bool("no-history", false,
		"Do not record results in the history database")
	cmd.Flags().String("db-dir", config.XDGDataDir(),
		"Directory of the history database")
}

// runCheckCmd executes the check command.
func runCheckCmd(cmd *cobra.Command, args []string) error {
	cfg, err := buildConfig(cmd, args)
	if err != nil {
		return err
	}
	if err := applyReportFlags(cmd, cfg); err != nil {
		return err
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	logger := newLogger(cmd, cfg.Verbose)

	// Cancel on interrupt; the archive in progress is left untouched.
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return runCheck(ctx, cfg, cmd.OutOrStdout(), logger)
}

// buildConfig creates a Config from the analysis flags and the
// configuration file.
func buildConfig(cmd *cobra.Command, args []string) (*config.Config, error) {
	cfg := config.NewConfig()
	cfg.Verbose = getVerboseFlag(cmd)

	var err error

	cfg.DryRun, err = cmd.Flags().GetBool("dry-run")
	if err != nil {
		return nil, err
	}

	cfg.Threshold, err = cmd.Flags().GetFloat64("threshold")
	if err != nil {
		return nil, err
	}
	cfg.ThresholdFromFlag = cmd.Flags().Changed("threshold")

	cfg.EXIFOrientation, err = cmd.Flags().GetBool("exif-orientation")
	if err != nil {
		return nil, err
	}

	cfg.MaxEntrySize, err = cmd.Flags().GetInt64("max-entry-size")
	if err != nil {
		return nil, err
	}

	cfg.PageWorkers, err = cmd.Flags().GetInt("page-workers")
	if err != nil {
		return nil, err
	}

	noHistory, err := cmd.Flags().GetBool("no-history")
	if err != nil {
		return nil, err
	}
	cfg.SaveHistory = !noHistory

	cfg.DBDir, err = cmd.Flags().GetString("db-dir")
	if err != nil {
		return nil, err
	}

	cfg.ConfigFilePath, err = cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}

	// If the user explicitly specified a config file path, error if not found.
	// If no path was specified, silently use an empty file if none is found.
	explicitConfigPath := cfg.ConfigFilePath != ""
	configPath := config.FindConfigFile(cfg.ConfigFilePath)

	switch {
	case configPath != "":
		cfg.File, err = config.LoadConfigFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	case explicitConfigPath:
		return nil, fmt.Errorf("%w: %s", config.ErrConfigNotFound, cfg.ConfigFilePath)
	default:
		cfg.File = config.NewFile()
	}

	cfg.Targets = args

	return cfg, nil
}

// applyReportFlags reads the report format flags of the check command.
func applyReportFlags(cmd *cobra.Command, cfg *config.Config) error {
	var err error

	cfg.JSONReport, err = cmd.Flags().GetBool("json")
	if err != nil {
		return err
	}

	cfg.MarkdownReport, err = cmd.Flags().GetBool("markdown")
	if err != nil {
		return err
	}

	cfg.ReportFile, err = cmd.Flags().GetString("output")
	return err
}

// settingsFunc resolves the pipeline settings of one archive from cfg.
func settingsFunc(cfg *config.Config) func(path string) pipeline.Settings {
	return func(path string) pipeline.Settings {
		s := cfg.SettingsFor(path)
		return pipeline.Settings{
			Threshold:       s.Threshold,
			DryRun:          s.DryRun,
			EXIFOrientation: s.EXIFOrientation,
			MaxEntrySize:    cfg.MaxEntrySize,
			PageWorkers:     cfg.PageWorkers,
		}
	}
}

// newBatch creates the batch processor used by check and watch.
func newBatch(cfg *config.Config, logger *slog.Logger) *pipeline.Batch {
	return pipeline.NewBatch(
		func() *pipeline.Pipeline {
			return pipeline.DefaultPipeline(logger)
		},
		pipeline.WithBatchLogger(logger),
		pipeline.WithSettingsFunc(settingsFunc(cfg)),
	)
}

// openHistory opens the history database if saving is enabled.
// It returns nil when history is disabled.
func openHistory(cfg *config.Config, logger *slog.Logger) (*database.HistoryDB, error) {
	if !cfg.SaveHistory {
		return nil, nil
	}
	db, err := database.Open(cfg.DBDir, database.DefaultOptions())
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}
	logger.Debug("history database opened", "path", db.Path())
	return db, nil
}

// runCheck processes every target archive and writes the reports.
func runCheck(ctx context.Context, cfg *config.Config, stdout io.Writer, logger *slog.Logger) error {
	if len(cfg.Targets) == 0 {
		return errors.New("no archives provided (specify one or more archive files as arguments)")
	}

	logger.Info("starting check",
		"archives", len(cfg.Targets),
		"threshold", cfg.Threshold,
		"dryRun", cfg.DryRun,
		"saveHistory", cfg.SaveHistory,
	)

	db, err := openHistory(cfg, logger)
	if err != nil {
		return err
	}
	if db != nil {
		defer db.Close()
	}

	// Console lines stream to stdout unless a structured report takes its place.
	structured := cfg.JSONReport || cfg.MarkdownReport
	var console *report.SimpleWriter
	if !structured || cfg.ReportFile != "" {
		console = report.NewSimpleWriter(stdout, report.WithVerbose(cfg.Verbose))
	}

	batch := newBatch(cfg, logger)
	reports := make([]*model.ArchiveReport, 0, len(cfg.Targets))
	batch.ProcessWithCallback(ctx, cfg.Targets, func(r *model.ArchiveReport, _ int) {
		reports = append(reports, r)
		if console == nil {
			return
		}
		if _, err := console.Write(r); err != nil {
			logger.Error("failed to write console output", "path", r.Path, "error", err)
		}
	})

	if console != nil && cfg.Verbose {
		if _, err := console.WriteSummary(reports); err != nil {
			logger.Error("failed to write summary", "error", err)
		}
	}

	if err := outputReport(cfg, stdout, reports); err != nil {
		return err
	}

	if err := saveHistory(ctx, db, reports, logger); err != nil {
		logger.Error("failed to save history", "error", err)
	}

	if failed := pipeline.Failures(reports); failed > 0 {
		logger.Warn("some archives failed", "failed", failed, "total", len(reports))
		return errArchivesFailed
	}
	return nil
}

// outputReport writes the JSON, Markdown or plain report to the report
// file, or the structured report to stdout when no file is given.
func outputReport(cfg *config.Config, stdout io.Writer, reports []*model.ArchiveReport) error {
	structured := cfg.JSONReport || cfg.MarkdownReport
	if cfg.ReportFile == "" && !structured {
		return nil
	}

	output := stdout
	if cfg.ReportFile != "" {
		// Create directories if they don't exist
		dir := filepath.Dir(cfg.ReportFile)
		if dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0750); err != nil {
				return fmt.Errorf("failed to create output directory: %w", err)
			}
		}

		f, err := os.OpenFile(cfg.ReportFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		output = f
	}

	var w report.Writer
	switch {
	case cfg.JSONReport:
		w = report.NewJSONWriter(output, report.WithPrettyPrint(), report.WithVersion(getVersion()))
	case cfg.MarkdownReport:
		w = report.NewMarkdownWriter(output)
	default:
		w = report.NewSimpleWriter(output, report.WithColor(false), report.WithVerbose(true))
	}

	if _, err := w.WriteAll(reports); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}

// saveHistory records the run in the history database.
// If db is nil, this function is a no-op.
func saveHistory(ctx context.Context, db *database.HistoryDB, reports []*model.ArchiveReport, logger *slog.Logger) error {
	if db == nil || len(reports) == 0 {
		return nil
	}

	// An interrupted run is still recorded.
	runID, err := db.SaveRun(context.WithoutCancel(ctx), reports)
	if err != nil {
		return err
	}

	logger.Info("run saved to history", "run", runID, "archives", len(reports))
	return nil
}
