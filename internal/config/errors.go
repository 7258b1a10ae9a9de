package config

import "errors"

// Configuration validation errors.
// These errors are returned by Config.Validate() and provide specific
// information about what is wrong with the configuration.
//
// Design decision: We use package-level sentinel errors rather than
// creating new error instances in Validate(). This allows callers to use
// errors.Is() for programmatic error handling while still providing
// human-readable messages.
var (
	// ErrNoTarget is returned when no archive is given on the command line.
	ErrNoTarget = errors.New("no target specified: provide one or more archive files")

	// ErrInvalidThreshold is returned when a threshold lies outside (0,1),
	// either on the command line or in the configuration file.
	ErrInvalidThreshold = errors.New("invalid threshold: must be between 0 and 1 (exclusive)")

	// ErrConflictingReportFormats is returned when both --json and --markdown
	// are specified. Only one output format can be used at a time.
	ErrConflictingReportFormats = errors.New("conflicting report formats: --json and --markdown cannot be used together")

	// ErrInvalidMaxEntrySize is returned when the entry size limit is negative.
	// Use 0 to select the default limit.
	ErrInvalidMaxEntrySize = errors.New("invalid max entry size: must be non-negative")

	// ErrInvalidPageWorkers is returned when fewer than one page worker is requested.
	ErrInvalidPageWorkers = errors.New("invalid page workers: must be at least 1")

	// ErrInvalidWatchSettle is returned when the watch settle delay is not positive.
	ErrInvalidWatchSettle = errors.New("invalid settle delay: must be positive")

	// ErrInvalidPattern is returned when an archive pattern in the
	// configuration file is not a valid glob.
	ErrInvalidPattern = errors.New("invalid archive pattern in configuration file")
)
