package pipeline

import (
	"context"
	"log/slog"

	"github.com/nao1215/littlebusters/internal/archive"
	"github.com/nao1215/littlebusters/internal/model"
)

// Settings are the analysis options for one archive.
type Settings struct {
	// Threshold is the tolerance for both spread and outlier detection.
	Threshold model.Threshold

	// DryRun reports outliers without rewriting the archive.
	DryRun bool

	// EXIFOrientation honours the EXIF orientation tag when measuring pages.
	EXIFOrientation bool

	// MaxEntrySize bounds entry buffering with EXIF orientation. 0 selects
	// archive.DefaultMaxEntrySize.
	MaxEntrySize int64

	// PageWorkers is the number of pages decoded at once. Zero or one
	// decodes them sequentially.
	PageWorkers int
}

// DefaultSettings returns the settings used when nothing is configured.
func DefaultSettings() Settings {
	return Settings{Threshold: model.DefaultThreshold}
}

// Job carries one archive through the pipeline.
type Job struct {
	// Report accumulates the results of every step.
	Report *model.ArchiveReport

	// Settings are the options this archive is analyzed with.
	Settings Settings

	// archive is the open archive, set by the open step.
	archive *archive.Archive
}

// NewJob creates a job for the archive at path.
// The settings are recorded in the report.
func NewJob(path string, settings Settings) *Job {
	report := model.NewArchiveReport(path)
	report.Threshold = settings.Threshold
	report.DryRun = settings.DryRun
	return &Job{Report: report, Settings: settings}
}

// Archive returns the open archive, or nil before the open step ran.
func (j *Job) Archive() *archive.Archive {
	return j.archive
}

// SetArchive attaches an open archive to the job. The pipeline closes it
// when execution ends.
func (j *Job) SetArchive(a *archive.Archive) {
	j.archive = a
}

// close releases the archive, if any.
func (j *Job) close() error {
	if j.archive == nil {
		return nil
	}
	return j.archive.Close()
}

// Step defines the interface that all pipeline steps must implement.
// Steps are executed in sequence, with each step receiving the job
// carrying the report accumulated by previous steps.
//
// Design decision: We use an interface rather than function types because:
// 1. It allows steps to carry configuration state
// 2. It provides a Name() method for logging and debugging
type Step interface {
	// Do executes the pipeline step.
	// It receives the context for cancellation, and the job to modify.
	// Any error aborts processing of the archive.
	Do(ctx context.Context, job *Job) error

	// Name returns the step's name for logging purposes.
	Name() string
}

// Pipeline orchestrates the execution of multiple steps.
// It maintains a list of steps and executes them in order.
type Pipeline struct {
	// steps contains the ordered list of steps to execute.
	steps []Step

	// logger is used for structured logging during execution.
	logger *slog.Logger
}

// Option is a function that configures a Pipeline.
// This follows the functional options pattern for clean API design.
type Option func(*Pipeline)

// WithLogger sets a custom logger for the pipeline.
// If not set, slog.Default() is used.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// New creates a new Pipeline with the given options.
// Steps should be added using AddStep after creation.
func New(opts ...Option) *Pipeline {
	p := &Pipeline{
		steps: make([]Step, 0),
	}

	for _, opt := range opts {
		opt(p)
	}

	if p.logger == nil {
		p.logger = slog.Default()
	}

	return p
}

// AddStep appends a step to the pipeline.
// Steps are executed in the order they are added.
func (p *Pipeline) AddStep(step Step) {
	p.steps = append(p.steps, step)
}

// AddSteps appends multiple steps to the pipeline.
func (p *Pipeline) AddSteps(steps ...Step) {
	p.steps = append(p.steps, steps...)
}

// Execute runs all pipeline steps in sequence.
// It checks for cancellation before each step and stops at the first
// error, which is recorded in the report (State becomes Failed) and
// returned. The archive opened by the job is always closed.
func (p *Pipeline) Execute(ctx context.Context, job *Job) (err error) {
	report := job.Report
	defer func() {
		if cerr := job.close(); cerr != nil {
			p.logger.Warn("failed to close archive", "path", report.Path, "error", cerr)
		}
	}()

	for _, step := range p.steps {
		if report.State.IsTerminal() {
			break
		}

		// Check for cancellation before starting each step
		select {
		case <-ctx.Done():
			p.logger.Warn("pipeline cancelled",
				"step", step.Name(),
				"path", report.Path,
				"reason", ctx.Err(),
			)
			report.Fail(ctx.Err())
			return ctx.Err()
		default:
		}

		p.logger.Debug("executing step",
			"step", step.Name(),
			"path", report.Path,
		)

		if err := step.Do(ctx, job); err != nil {
			p.logger.Error("step failed",
				"step", step.Name(),
				"path", report.Path,
				"state", report.State.String(),
				"error", err,
			)
			report.PerformedSteps = append(report.PerformedSteps, step.Name())
			report.Fail(err)
			return err
		}

		p.logger.Debug("step completed",
			"step", step.Name(),
			"path", report.Path,
			"state", report.State.String(),
		)

		// Track which steps were performed
		report.PerformedSteps = append(report.PerformedSteps, step.Name())
	}

	return nil
}

// StepCount returns the number of steps in the pipeline.
func (p *Pipeline) StepCount() int {
	return len(p.steps)
}

// StepNames returns the names of all steps in execution order.
func (p *Pipeline) StepNames() []string {
	names := make([]string, len(p.steps))
	for i, step := range p.steps {
		names[i] = step.Name()
	}
	return names
}
