package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/nao1215/littlebusters/internal/model"
)

// Batch processes several archives, one at a time.
//
// Design decision: We keep a separate Batch rather than adding batch
// functionality to Pipeline because:
// 1. It keeps the Pipeline focused on a single archive
// 2. Per-archive settings are resolved here, per path
// 3. It isolates failures: an archive that fails is recorded and the
//    next one still runs
//
// Archives are never processed concurrently. Rewriting replaces files on
// disk, and a batch commonly holds several archives in one directory.
type Batch struct {
	// pipelineFactory creates a new pipeline for each archive.
	// We use a factory to ensure each archive gets a fresh pipeline instance.
	pipelineFactory func() *Pipeline

	// settingsFor resolves the settings for one archive path.
	settingsFor func(path string) Settings

	// logger is used for batch-level logging.
	logger *slog.Logger
}

// BatchOption configures a Batch.
type BatchOption func(*Batch)

// WithBatchLogger sets a custom logger for batch processing.
func WithBatchLogger(logger *slog.Logger) BatchOption {
	return func(b *Batch) {
		b.logger = logger
	}
}

// WithSettingsFunc sets the function resolving per-archive settings.
// Without it every archive uses DefaultSettings.
func WithSettingsFunc(fn func(path string) Settings) BatchOption {
	return func(b *Batch) {
		b.settingsFor = fn
	}
}

// NewBatch creates a new Batch.
func NewBatch(pipelineFactory func() *Pipeline, opts ...BatchOption) *Batch {
	b := &Batch{
		pipelineFactory: pipelineFactory,
	}

	for _, opt := range opts {
		opt(b)
	}

	if b.logger == nil {
		b.logger = slog.Default()
	}
	if b.settingsFor == nil {
		b.settingsFor = func(string) Settings { return DefaultSettings() }
	}

	return b
}

// Run processes one archive to completion and returns its report.
// Errors are recorded in the report.
func (b *Batch) Run(ctx context.Context, path string) *model.ArchiveReport {
	job := NewJob(path, b.settingsFor(path))
	if err := b.pipelineFactory().Execute(ctx, job); err != nil {
		b.logger.Warn("archive failed",
			"path", path,
			"error", err,
		)
	}
	return job.Report
}

// Process runs every archive in order and returns one report per path,
// index-aligned with paths, including reports of archives that failed.
//
// Cancellation stops the batch between archives. Archives that were not
// started are reported as failed with the context error.
func (b *Batch) Process(ctx context.Context, paths []string) []*model.ArchiveReport {
	reports := make([]*model.ArchiveReport, 0, len(paths))
	b.ProcessWithCallback(ctx, paths, func(report *model.ArchiveReport, _ int) {
		reports = append(reports, report)
	})
	return reports
}

// ProcessWithCallback runs every archive in order and calls callback with
// each report as soon as the archive is finished. This is useful for
// streaming results.
func (b *Batch) ProcessWithCallback(
	ctx context.Context,
	paths []string,
	callback func(report *model.ArchiveReport, index int),
) {
	b.logger.Info("starting batch processing", "total_archives", len(paths))
	startTime := time.Now()

	for i, path := range paths {
		if err := ctx.Err(); err != nil {
			report := NewJob(path, b.settingsFor(path)).Report
			report.Fail(err)
			callback(report, i)
			continue
		}

		b.logger.Info("processing archive",
			"path", path,
			"index", i+1,
			"total", len(paths),
		)

		callback(b.Run(ctx, path), i)
	}

	b.logger.Info("batch processing complete",
		"total_archives", len(paths),
		"elapsed", time.Since(startTime),
	)
}

// Failures counts the reports whose archive failed.
func Failures(reports []*model.ArchiveReport) int {
	n := 0
	for _, r := range reports {
		if r.Failed() {
			n++
		}
	}
	return n
}
