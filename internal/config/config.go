package config

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/adrg/xdg"

	"github.com/nao1215/littlebusters/internal/model"
)

// Default configuration values.
const (
	// DefaultThreshold lets a page be up to 20% smaller than the average
	// page area before it is flagged. The same tolerance decides how close
	// an entry must be to twice the average width to count as a spread.
	DefaultThreshold = 0.2

	// AppName is the application name used for XDG directory paths.
	AppName = "littlebusters"

	// DefaultWatchSettle is how long a file in a watched directory must stay
	// quiet before it is analyzed. Copies of large archives arrive as many
	// write events; analyzing before the last one would see a truncated zip.
	DefaultWatchSettle = 2 * time.Second

	// DefaultPageWorkers decodes the pages of an archive one at a time.
	DefaultPageWorkers = 1
)

// DefaultWatchExtensions are the archive extensions picked up by watch mode.
var DefaultWatchExtensions = []string{".cbz", ".zip"}

// Config holds all configuration options for littlebusters.
// This struct is populated from CLI flags (and optionally a configuration
// file) and passed through the application rather than kept as global state.
//
// Design decision: We use a single flat struct instead of nested structs.
// The number of options is small, and the per-archive overrides that do
// need structure live in File.
type Config struct {
	// Threshold is the maximum allowed relative deviation from the average
	// page. It must lie in (0,1).
	Threshold float64

	// ThresholdFromFlag is true when Threshold was given explicitly on the
	// command line. An explicit flag wins over the configuration file.
	ThresholdFromFlag bool

	// DryRun reports flagged pages without ever rewriting an archive.
	// A dry run requested on the command line cannot be turned off by the
	// configuration file.
	DryRun bool

	// EXIFOrientation swaps width and height for pages whose EXIF
	// orientation rotates them by 90 degrees.
	EXIFOrientation bool

	// MaxEntrySize bounds how many bytes of an entry are buffered when
	// EXIF orientation is honoured. 0 selects the default.
	MaxEntrySize int64

	// PageWorkers is the number of pages of one archive decoded at once.
	// Archives themselves are always processed one after another.
	PageWorkers int

	// Verbose enables detailed log output using slog.LevelDebug.
	// When false, only warnings and errors are logged.
	Verbose bool

	// ConfigFilePath is the path to the configuration file.
	// If empty, FindConfigFile searches the default locations.
	ConfigFilePath string

	// File holds the overrides loaded from the configuration file.
	File *File

	// JSONReport enables JSON report output instead of console lines.
	// Mutually exclusive with MarkdownReport.
	JSONReport bool

	// MarkdownReport enables Markdown report output instead of console lines.
	// Mutually exclusive with JSONReport.
	MarkdownReport bool

	// ReportFile is the output file path for the report.
	// When set, the report is written to this file and console lines are
	// still printed to stdout.
	ReportFile string

	// Targets is the list of archive files to analyze.
	Targets []string

	// SaveHistory records every analysis in the history database.
	SaveHistory bool

	// DBDir is the directory holding the history database.
	// Defaults to the XDG data directory (~/.local/share/littlebusters on Linux).
	DBDir string

	// WatchSettle is the quiet period before a watched file is analyzed.
	WatchSettle time.Duration

	// WatchExtensions lists the file extensions picked up by watch mode.
	WatchExtensions []string
}

// NewConfig creates a new Config with default values.
func NewConfig() *Config {
	return &Config{
		Threshold:       DefaultThreshold,
		PageWorkers:     DefaultPageWorkers,
		SaveHistory:     true,
		DBDir:           XDGDataDir(),
		WatchSettle:     DefaultWatchSettle,
		WatchExtensions: append([]string(nil), DefaultWatchExtensions...),
		File:            NewFile(),
	}
}

// XDGDataDir returns the XDG data directory for littlebusters.
// On Linux: ~/.local/share/littlebusters
// On macOS: ~/Library/Application Support/littlebusters
// On Windows: %LOCALAPPDATA%\littlebusters
func XDGDataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// XDGConfigDir returns the XDG config directory for littlebusters.
// On Linux: ~/.config/littlebusters
// On macOS: ~/Library/Application Support/littlebusters
// On Windows: %APPDATA%\littlebusters
func XDGConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// Validate checks if the configuration is valid.
// It returns a specific error describing what is invalid.
//
// We return the first error found rather than collecting all errors
// because fixing one error often makes others irrelevant.
func (c *Config) Validate() error {
	if len(c.Targets) == 0 {
		return ErrNoTarget
	}
	return c.validateOptions()
}

// ValidateWatch checks the configuration for watch mode, which takes a
// directory instead of target archives.
func (c *Config) ValidateWatch() error {
	if c.WatchSettle <= 0 {
		return ErrInvalidWatchSettle
	}
	return c.validateOptions()
}

func (c *Config) validateOptions() error {
	if err := validateThreshold(c.Threshold); err != nil {
		return err
	}

	if c.JSONReport && c.MarkdownReport {
		return ErrConflictingReportFormats
	}

	if c.MaxEntrySize < 0 {
		return ErrInvalidMaxEntrySize
	}

	if c.PageWorkers < 1 {
		return ErrInvalidPageWorkers
	}

	if c.File != nil {
		if err := c.File.Validate(); err != nil {
			return err
		}
	}

	return nil
}

// validateThreshold checks that t lies in (0,1).
func validateThreshold(t float64) error {
	if err := model.Threshold(t).Validate(); err != nil {
		return fmt.Errorf("%w: got %g", ErrInvalidThreshold, t)
	}
	return nil
}

// Settings are the effective analysis options for one archive.
type Settings struct {
	Threshold       model.Threshold
	DryRun          bool
	EXIFOrientation bool
}

// SettingsFor returns the effective settings for the archive at path.
//
// Precedence, lowest first: built-in defaults and flags that were left at
// their default, the configuration file defaults, matching archive patterns
// in the configuration file, and finally flags given explicitly.
func (c *Config) SettingsFor(path string) Settings {
	settings := Settings{
		Threshold:       model.Threshold(c.Threshold),
		DryRun:          c.DryRun,
		EXIFOrientation: c.EXIFOrientation,
	}

	if c.File == nil {
		return settings
	}

	override := c.File.ArchiveConfigFor(path)
	if override.Threshold != 0 && !c.ThresholdFromFlag {
		settings.Threshold = model.Threshold(override.Threshold)
	}
	if override.DryRun != nil && !c.DryRun {
		settings.DryRun = *override.DryRun
	}
	if override.EXIFOrientation != nil && !c.EXIFOrientation {
		settings.EXIFOrientation = *override.EXIFOrientation
	}

	return settings
}
