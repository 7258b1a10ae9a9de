// Package config provides configuration structures and utilities for littlebusters.
// It defines the analysis options (threshold, dry run, EXIF handling), report
// output preferences, history storage, watch mode settings, and the optional
// configuration file with per-archive overrides.
package config
