package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nao1215/littlebusters/internal/archive"
	"github.com/nao1215/littlebusters/internal/model"
	"github.com/nao1215/littlebusters/internal/resolution"
)

// Step names, as recorded in ArchiveReport.PerformedSteps.
const (
	StepOpen             = "open"
	StepExtractSizes     = "extract_sizes"
	StepNormalizeSpreads = "normalize_spreads"
	StepDetectOutliers   = "detect_outliers"
	StepRewrite          = "rewrite"
)

// OpenStep opens the archive container and lists its pages.
type OpenStep struct {
	logger *slog.Logger
}

// NewOpenStep creates a new open step.
func NewOpenStep(logger *slog.Logger) *OpenStep {
	if logger == nil {
		logger = slog.Default()
	}
	return &OpenStep{logger: logger}
}

// Name returns the step name.
func (s *OpenStep) Name() string {
	return StepOpen
}

// Do opens the archive and records its entries and fingerprint.
func (s *OpenStep) Do(_ context.Context, job *Job) error {
	report := job.Report

	a, err := archive.Open(report.Path)
	if err != nil {
		return err
	}
	job.SetArchive(a)

	fingerprint, err := a.Fingerprint()
	if err != nil {
		return err
	}

	report.Fingerprint = fingerprint
	report.Entries = a.Entries()

	s.logger.Debug("archive opened",
		"path", report.Path,
		"entries", len(report.Entries),
		"fingerprint", fingerprint,
	)

	return report.Advance(model.StateOpened)
}

// ExtractSizesStep decodes the dimensions of every page.
type ExtractSizesStep struct{}

// NewExtractSizesStep creates a new size extraction step.
func NewExtractSizesStep() *ExtractSizesStep {
	return &ExtractSizesStep{}
}

// Name returns the step name.
func (s *ExtractSizesStep) Name() string {
	return StepExtractSizes
}

// Do measures every page. A page that fails to decode aborts the archive.
func (s *ExtractSizesStep) Do(ctx context.Context, job *Job) error {
	a := job.Archive()
	if a == nil {
		return fmt.Errorf("%s: archive is not open", StepExtractSizes)
	}

	sizes, err := a.Sizes(ctx,
		archive.WithEXIFOrientation(job.Settings.EXIFOrientation),
		archive.WithMaxEntrySize(job.Settings.MaxEntrySize),
		archive.WithConcurrency(job.Settings.PageWorkers),
	)
	if err != nil {
		return err
	}

	report := job.Report
	for i := range report.Entries {
		report.Entries[i].Size = sizes[i]
	}
	report.Sizes = sizes

	return report.Advance(model.StateSizesExtracted)
}

// NormalizeSpreadsStep halves the width of double-page spreads.
type NormalizeSpreadsStep struct {
	logger *slog.Logger
}

// NewNormalizeSpreadsStep creates a new spread normalization step.
func NewNormalizeSpreadsStep(logger *slog.Logger) *NormalizeSpreadsStep {
	if logger == nil {
		logger = slog.Default()
	}
	return &NormalizeSpreadsStep{logger: logger}
}

// Name returns the step name.
func (s *NormalizeSpreadsStep) Name() string {
	return StepNormalizeSpreads
}

// Do corrects spreads in report.Sizes. Entries keep their raw sizes.
func (s *NormalizeSpreadsStep) Do(_ context.Context, job *Job) error {
	report := job.Report

	avg, err := resolution.Average(report.Sizes)
	if err != nil {
		return fmt.Errorf("%s: %w", report.Path, err)
	}

	corrected, spreads := resolution.ApplySpreadCorrection(report.Sizes, avg, job.Settings.Threshold)
	report.Sizes = corrected
	report.Spreads = spreads
	for _, i := range spreads {
		report.Entries[i].Spread = true
	}

	if len(spreads) > 0 {
		s.logger.Debug("double spreads corrected",
			"path", report.Path,
			"spreads", len(spreads),
		)
	}

	return report.Advance(model.StateNormalized)
}

// DetectOutliersStep flags pages that are too small.
type DetectOutliersStep struct{}

// NewDetectOutliersStep creates a new outlier detection step.
func NewDetectOutliersStep() *DetectOutliersStep {
	return &DetectOutliersStep{}
}

// Name returns the step name.
func (s *DetectOutliersStep) Name() string {
	return StepDetectOutliers
}

// Do recomputes the average over the corrected sizes and flags outliers.
func (s *DetectOutliersStep) Do(_ context.Context, job *Job) error {
	report := job.Report

	avg, err := resolution.Average(report.Sizes)
	if err != nil {
		return fmt.Errorf("%s: %w", report.Path, err)
	}

	report.Average = avg
	report.Outliers = resolution.DetectOutliersWithAverage(report.Sizes, avg, job.Settings.Threshold)

	return report.Advance(model.StateOutliersComputed)
}

// RewriteStep drops flagged pages from the archive on disk.
type RewriteStep struct {
	logger *slog.Logger
	hook   archive.StagingHook
}

// RewriteStepOption configures a RewriteStep.
type RewriteStepOption func(*RewriteStep)

// WithRewriteLogger sets a custom logger for the rewrite step.
func WithRewriteLogger(logger *slog.Logger) RewriteStepOption {
	return func(s *RewriteStep) {
		s.logger = logger
	}
}

// WithRewriteStagingHook installs a hook that runs before each staged entry.
func WithRewriteStagingHook(hook archive.StagingHook) RewriteStepOption {
	return func(s *RewriteStep) {
		s.hook = hook
	}
}

// NewRewriteStep creates a new rewrite step.
func NewRewriteStep(opts ...RewriteStepOption) *RewriteStep {
	s := &RewriteStep{logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name returns the step name.
func (s *RewriteStep) Name() string {
	return StepRewrite
}

// Do finishes the archive:
//   - no outliers: Done, the archive is left alone
//   - dry run: Reported, then Done
//   - otherwise the archive is replaced: Rewritten, Swapped, then Done
func (s *RewriteStep) Do(ctx context.Context, job *Job) error {
	report := job.Report

	if !report.HasOutliers() {
		return report.Advance(model.StateDone)
	}

	if job.Settings.DryRun {
		if err := report.Advance(model.StateReported); err != nil {
			return err
		}
		return report.Advance(model.StateDone)
	}

	// Replace reopens the file under its lock and checks it is still the
	// archive analyzed here; release our handle first.
	if err := job.close(); err != nil {
		return fmt.Errorf("%s: %w", report.Path, err)
	}
	job.archive = nil

	removed, err := archive.Replace(ctx, report.Path, resolution.Indices(report.Outliers),
		archive.WithLogger(s.logger),
		archive.WithStagingHook(s.hook),
		archive.WithExpectedFingerprint(report.Fingerprint),
	)
	if err != nil {
		return err
	}
	report.RemovedEntries = removed

	if err := report.Advance(model.StateRewritten); err != nil {
		return err
	}
	if err := report.Advance(model.StateSwapped); err != nil {
		return err
	}

	return report.Advance(model.StateDone)
}

// DefaultPipeline returns the full analysis pipeline.
func DefaultPipeline(logger *slog.Logger, opts ...RewriteStepOption) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}

	p := New(WithLogger(logger))
	p.AddSteps(
		NewOpenStep(logger),
		NewExtractSizesStep(),
		NewNormalizeSpreadsStep(logger),
		NewDetectOutliersStep(),
		NewRewriteStep(append([]RewriteStepOption{WithRewriteLogger(logger)}, opts...)...),
	)
	return p
}
