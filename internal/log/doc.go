// Package log provides structured logging for littlebusters, built on top of
// the standard slog package.
//
// This package extends slog to provide:
//   - Shortening of file paths under the user's home directory to "~"
//   - Configurable log levels with verbose mode support
//   - Consistent log formatting across the application
//
// # Path Handling
//
// Archive paths are the values logged most often, and they routinely carry
// the user's account name (/home/alice/Comics/...). The PathHandler rewrites
// the home directory prefix of every string attribute to "~" so logs can be
// shared without exposing it.
//
// # Usage
//
//	// Create a logger
//	logger := log.NewLogger(os.Stderr, true) // verbose=true
//
//	// Use as a standard slog.Logger
//	logger.Info("archive opened",
//	    "path", "/home/alice/Comics/issue-001.cbz", // Logged as "~/Comics/issue-001.cbz"
//	    "pages", 24,
//	)
//
//	// Set as default logger
//	slog.SetDefault(logger)
package log
