package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/nao1215/littlebusters/internal/model"
)

// FileName is the name of the database file inside the database directory.
const FileName = "littlebusters.db"

// timestampLayout is fixed width so that stored timestamps sort as text.
const timestampLayout = "2006-01-02 15:04:05.000000000"

// ErrNotFound is returned when a requested report does not exist.
var ErrNotFound = errors.New("report not found")

// HistoryDB provides SQLite-based storage for analysis history.
//
// Design decision: We store each report as JSON next to a handful of
// indexed summary columns. Listing history only touches the columns;
// the JSON is decoded when a single report is requested.
type HistoryDB struct {
	// db is the underlying SQL database connection.
	db *sql.DB

	// dbPath is the path to the SQLite database file.
	dbPath string
}

// Options configures HistoryDB behavior.
type Options struct {
	// CreateIfNotExists creates the database file if it doesn't exist.
	CreateIfNotExists bool

	// EnableWAL enables Write-Ahead Logging for better concurrent performance.
	// This is recommended for most use cases.
	EnableWAL bool
}

// DefaultOptions returns the default database options.
func DefaultOptions() Options {
	return Options{
		CreateIfNotExists: true,
		EnableWAL:         true,
	}
}

// Open opens or creates a HistoryDB in dbDir.
// If CreateIfNotExists is true, the directory and database file are created.
// If CreateIfNotExists is false and the database doesn't exist, an error is returned.
func Open(dbDir string, opts Options) (*HistoryDB, error) {
	dbPath := filepath.Join(dbDir, FileName)

	if !opts.CreateIfNotExists {
		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("database not found at %s (use CreateIfNotExists option to create)", dbPath)
		} else if err != nil {
			return nil, fmt.Errorf("failed to check database path: %w", err)
		}
	} else if err := os.MkdirAll(dbDir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// modernc.org/sqlite: mode=rw refuses to create the file, mode=rwc allows it.
	dsn := dbPath + "?mode=rw"
	if opts.CreateIfNotExists {
		dsn = dbPath + "?mode=rwc"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	hdb := &HistoryDB{
		db:     db,
		dbPath: dbPath,
	}

	if opts.EnableWAL {
		if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}

	if err := hdb.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return hdb, nil
}

// Path returns the path of the database file.
func (hdb *HistoryDB) Path() string {
	return hdb.dbPath
}

// Close closes the database connection.
func (hdb *HistoryDB) Close() error {
	return hdb.db.Close()
}

// createTables creates the database schema if it doesn't exist.
func (hdb *HistoryDB) createTables() error {
	schema := `
	-- Runs group the archives processed by one invocation
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		started_at TEXT NOT NULL,
		archives INTEGER NOT NULL,
		failed INTEGER NOT NULL
	);

	-- Archive reports store complete analysis results as JSON
	CREATE TABLE IF NOT EXISTS archive_reports (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL REFERENCES runs(id),
		path TEXT NOT NULL,
		name TEXT NOT NULL,
		fingerprint TEXT,
		timestamp TEXT NOT NULL,
		state TEXT NOT NULL,
		pages INTEGER NOT NULL,
		outliers INTEGER NOT NULL,
		removed INTEGER NOT NULL,
		dry_run INTEGER NOT NULL,
		error TEXT,
		report_json TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_reports_path ON archive_reports(path);
	CREATE INDEX IF NOT EXISTS idx_reports_fingerprint ON archive_reports(fingerprint);
	CREATE INDEX IF NOT EXISTS idx_reports_timestamp ON archive_reports(timestamp);
	`

	_, err := hdb.db.ExecContext(context.Background(), schema)
	return err
}

// SaveRun stores a run and all of its reports in one transaction.
// It returns the generated run ID.
func (hdb *HistoryDB) SaveRun(ctx context.Context, reports []*model.ArchiveReport) (string, error) {
	runID := uuid.NewString()
	summary := model.NewSummary(reports)

	tx, err := hdb.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }() //nolint:errcheck // No-op after commit

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO runs (id, started_at, archives, failed) VALUES (?, ?, ?, ?)`,
		runID,
		formatTimestamp(runStart(reports)),
		summary.Archives,
		summary.Failed,
	); err != nil {
		return "", fmt.Errorf("failed to insert run: %w", err)
	}

	for _, r := range reports {
		if err := insertReport(ctx, tx, runID, r); err != nil {
			return "", err
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit run: %w", err)
	}

	return runID, nil
}

// runStart returns the earliest analysis time of the reports, or now.
func runStart(reports []*model.ArchiveReport) time.Time {
	start := time.Now()
	for _, r := range reports {
		if !r.DateAnalyzed.IsZero() && r.DateAnalyzed.Before(start) {
			start = r.DateAnalyzed
		}
	}
	return start
}

// insertReport stores one report within tx.
func insertReport(ctx context.Context, tx *sql.Tx, runID string, report *model.ArchiveReport) error {
	reportJSON, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to serialize report: %w", err)
	}

	query := `
	INSERT INTO archive_reports
		(run_id, path, name, fingerprint, timestamp, state, pages, outliers, removed, dry_run, error, report_json)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = tx.ExecContext(ctx, query,
		runID,
		normalizePath(report.Path),
		report.Name,
		report.Fingerprint,
		formatTimestamp(report.DateAnalyzed),
		report.State.String(),
		report.EntryCount(),
		len(report.Outliers),
		len(report.RemovedEntries),
		report.DryRun,
		report.ErrorMessage,
		string(reportJSON),
	)
	if err != nil {
		return fmt.Errorf("failed to save report for %s: %w", report.Path, err)
	}
	return nil
}

// GetLatestReport retrieves the most recent report for the archive at path.
// It returns ErrNotFound if the archive was never analyzed.
func (hdb *HistoryDB) GetLatestReport(ctx context.Context, path string) (*model.ArchiveReport, error) {
	query := `
	SELECT report_json FROM archive_reports
	WHERE path = ?
	ORDER BY timestamp DESC, id DESC
	LIMIT 1
	`

	return hdb.queryReport(ctx, query, normalizePath(path))
}

// GetReportByID retrieves a report by its database ID.
// It returns ErrNotFound if there is no such report.
func (hdb *HistoryDB) GetReportByID(ctx context.Context, id int64) (*model.ArchiveReport, error) {
	return hdb.queryReport(ctx, `SELECT report_json FROM archive_reports WHERE id = ?`, id)
}

// queryReport runs a query selecting one report_json column.
func (hdb *HistoryDB) queryReport(ctx context.Context, query string, args ...any) (*model.ArchiveReport, error) {
	var reportJSON string
	err := hdb.db.QueryRowContext(ctx, query, args...).Scan(&reportJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get report: %w", err)
	}

	var report model.ArchiveReport
	if err := json.Unmarshal([]byte(reportJSON), &report); err != nil {
		return nil, fmt.Errorf("failed to parse report: %w", err)
	}

	return &report, nil
}

// ListArchives returns every archive path with at least one report.
func (hdb *HistoryDB) ListArchives(ctx context.Context) ([]string, error) {
	rows, err := hdb.db.QueryContext(ctx, `SELECT DISTINCT path FROM archive_reports ORDER BY path`)
	if err != nil {
		return nil, fmt.Errorf("failed to list archives: %w", err)
	}
	defer rows.Close()

	var paths []string
	for rows.Next() {
		var path string
		if err := rows.Scan(&path); err != nil {
			return nil, fmt.Errorf("failed to scan archive: %w", err)
		}
		paths = append(paths, path)
	}

	return paths, rows.Err()
}

// ReportMetadata contains summary information about a stored report.
// This is used for displaying history without loading the full report.
type ReportMetadata struct {
	// ID is the unique identifier of the report in the database.
	ID int64

	// RunID identifies the run the report belongs to.
	RunID string

	// Path is the absolute archive path.
	Path string

	// Name is the archive base name.
	Name string

	// Fingerprint is the archive content hash at analysis time.
	Fingerprint string

	// Timestamp is when the analysis started.
	Timestamp time.Time

	// State is the final state of the archive.
	State model.State

	// Pages is the number of pages in the archive.
	Pages int

	// Outliers is the number of flagged pages.
	Outliers int

	// Removed is the number of pages removed by a rewrite.
	Removed int

	// DryRun is true if the archive was analyzed without rewriting.
	DryRun bool

	// Error is the failure message, if any.
	Error string
}

const metadataColumns = `id, run_id, path, name, fingerprint, timestamp, state, pages, outliers, removed, dry_run, error`

// GetHistory retrieves report metadata for the archive at path, newest first.
func (hdb *HistoryDB) GetHistory(ctx context.Context, path string) ([]ReportMetadata, error) {
	query := `SELECT ` + metadataColumns + ` FROM archive_reports
	WHERE path = ?
	ORDER BY timestamp DESC, id DESC`

	return hdb.queryMetadata(ctx, query, normalizePath(path))
}

// GetRecent retrieves metadata of the most recent reports across all archives.
func (hdb *HistoryDB) GetRecent(ctx context.Context, limit int) ([]ReportMetadata, error) {
	query := `SELECT ` + metadataColumns + ` FROM archive_reports
	ORDER BY timestamp DESC, id DESC
	LIMIT ?`

	return hdb.queryMetadata(ctx, query, limit)
}

// FindByFingerprint retrieves metadata of every report of archives with the
// given content hash, newest first. Copies and renames of an archive share
// a fingerprint.
func (hdb *HistoryDB) FindByFingerprint(ctx context.Context, fingerprint string) ([]ReportMetadata, error) {
	query := `SELECT ` + metadataColumns + ` FROM archive_reports
	WHERE fingerprint = ?
	ORDER BY timestamp DESC, id DESC`

	return hdb.queryMetadata(ctx, query, fingerprint)
}

// queryMetadata runs a query selecting metadataColumns.
func (hdb *HistoryDB) queryMetadata(ctx context.Context, query string, args ...any) ([]ReportMetadata, error) {
	rows, err := hdb.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get history: %w", err)
	}
	defer rows.Close()

	var results []ReportMetadata
	for rows.Next() {
		var meta ReportMetadata
		var timestamp, state string
		var fingerprint, errMsg sql.NullString

		if err := rows.Scan(
			&meta.ID,
			&meta.RunID,
			&meta.Path,
			&meta.Name,
			&fingerprint,
			&timestamp,
			&state,
			&meta.Pages,
			&meta.Outliers,
			&meta.Removed,
			&meta.DryRun,
			&errMsg,
		); err != nil {
			return nil, fmt.Errorf("failed to scan metadata: %w", err)
		}

		meta.Fingerprint = fingerprint.String
		meta.Error = errMsg.String
		meta.Timestamp = parseTimestamp(timestamp)
		if err := meta.State.UnmarshalText([]byte(state)); err != nil {
			meta.State = model.StateFailed
		}

		results = append(results, meta)
	}

	return results, rows.Err()
}

// normalizePath makes path absolute so that the same archive is found
// regardless of the working directory it was checked from.
func normalizePath(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return path
	}
	return abs
}

// formatTimestamp formats t in UTC with timestampLayout.
func formatTimestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

// timestampFormats contains the timestamp formats that may be stored.
// The order matters: more specific formats should come first.
var timestampFormats = []string{
	timestampLayout,
	"2006-01-02 15:04:05",  // SQLite default datetime format
	"2006-01-02T15:04:05Z", // ISO 8601 with Z suffix
	"2006-01-02T15:04:05",  // ISO 8601 without timezone
	time.RFC3339,           // Full RFC3339 format
	time.RFC3339Nano,       // RFC3339 with nanoseconds
}

// parseTimestamp attempts to parse a timestamp string using multiple formats.
// If parsing fails with all formats, returns zero time.
func parseTimestamp(s string) time.Time {
	for _, format := range timestampFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
