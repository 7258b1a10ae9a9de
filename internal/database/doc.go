// Package database provides SQLite-based storage for littlebusters.
//
// This package implements the HistoryDB, which stores:
//   - Runs: one row per invocation of check (or per archive in watch mode)
//   - Archive reports: the full report of every analyzed archive
//
// The history is written after analysis and never read by it; the analysis
// of an archive does not depend on earlier runs.
//
// Design decision: We use SQLite (via modernc.org/sqlite) instead of other
// databases because:
// 1. No external dependencies - the database is a single file
// 2. CGO-free implementation allows easy cross-compilation
// 3. WAL mode lets the history command read while a watcher writes
package database
