package config

import (
	"fmt"
	"path/filepath"
	"sort"
)

// ArchiveConfig holds overrides for archives matching a pattern.
// Zero values (and nil pointers) leave the setting unchanged.
type ArchiveConfig struct {
	// Threshold overrides the tolerance for matching archives.
	// Annuals and specials with many inserts often need a looser value.
	Threshold float64 `yaml:"threshold,omitempty" toml:"threshold,omitempty"`

	// DryRun forces report-only mode for matching archives.
	DryRun *bool `yaml:"dryRun,omitempty" toml:"dryRun,omitempty"`

	// EXIFOrientation enables EXIF-aware measurement for matching archives.
	EXIFOrientation *bool `yaml:"exifOrientation,omitempty" toml:"exifOrientation,omitempty"`
}

// File represents the structure of the configuration file.
type File struct {
	// Defaults applies to every archive unless a pattern overrides it.
	Defaults ArchiveConfig `yaml:"defaults,omitempty" toml:"defaults,omitempty"`

	// Archives maps glob patterns to overrides. A pattern is matched
	// against the archive's base name and against its full path.
	Archives map[string]ArchiveConfig `yaml:"archives,omitempty" toml:"archives,omitempty"`
}

// NewFile returns an empty configuration file.
func NewFile() *File {
	return &File{Archives: make(map[string]ArchiveConfig)}
}

// Validate checks every threshold and pattern in the file.
func (f *File) Validate() error {
	if f.Defaults.Threshold != 0 {
		if err := validateThreshold(f.Defaults.Threshold); err != nil {
			return fmt.Errorf("defaults: %w", err)
		}
	}
	for pattern, ac := range f.Archives {
		if _, err := filepath.Match(pattern, ""); err != nil {
			return fmt.Errorf("%w: %q: %w", ErrInvalidPattern, pattern, err)
		}
		if ac.Threshold != 0 {
			if err := validateThreshold(ac.Threshold); err != nil {
				return fmt.Errorf("archives[%q]: %w", pattern, err)
			}
		}
	}
	return nil
}

// ArchiveConfigFor returns the overrides for the archive at path.
// It starts from Defaults and applies every matching pattern in sorted
// order, so that the result does not depend on map iteration.
func (f *File) ArchiveConfigFor(path string) ArchiveConfig {
	result := f.Defaults

	patterns := make([]string, 0, len(f.Archives))
	for pattern := range f.Archives {
		patterns = append(patterns, pattern)
	}
	sort.Strings(patterns)

	base := filepath.Base(path)
	for _, pattern := range patterns {
		if !matches(pattern, base) && !matches(pattern, path) {
			continue
		}
		override := f.Archives[pattern]
		if override.Threshold != 0 {
			result.Threshold = override.Threshold
		}
		if override.DryRun != nil {
			result.DryRun = override.DryRun
		}
		if override.EXIFOrientation != nil {
			result.EXIFOrientation = override.EXIFOrientation
		}
	}

	return result
}

func matches(pattern, name string) bool {
	ok, err := filepath.Match(pattern, name)
	return err == nil && ok
}
