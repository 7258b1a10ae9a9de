package database

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/nao1215/littlebusters/internal/model"
)

// setupTestDB creates a temporary database for testing.
func setupTestDB(t *testing.T) (*HistoryDB, func()) {
	t.Helper()

	tmpDir := t.TempDir()

	db, err := Open(tmpDir, DefaultOptions())
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}

	cleanup := func() {
		_ = db.Close()
	}

	return db, cleanup
}

// newReport creates a finished report for path analyzed at the given time.
func newReport(path string, analyzed time.Time, outliers int) *model.ArchiveReport {
	r := model.NewArchiveReport(path)
	r.DateAnalyzed = analyzed
	r.Fingerprint = "fp-" + filepath.Base(path)
	for i := range 10 {
		r.Entries = append(r.Entries, model.Entry{Index: i, Name: "page", Size: model.NewSize(100, 150)})
	}
	for i := range outliers {
		r.Outliers = append(r.Outliers, model.Deviation{Index: 9 - i, Ratio: 0.1})
	}
	r.State = model.StateDone
	return r
}

// TestOpen tests database opening and creation.
func TestOpen(t *testing.T) {
	t.Parallel()

	t.Run("creates database in new directory", func(t *testing.T) {
		t.Parallel()

		dbDir := filepath.Join(t.TempDir(), "newdir", "subdir")
		db, err := Open(dbDir, DefaultOptions())
		if err != nil {
			t.Fatalf("failed to open database: %v", err)
		}
		defer db.Close()

		if _, err := os.Stat(filepath.Join(dbDir, FileName)); os.IsNotExist(err) {
			t.Error("database file was not created")
		}
		if db.Path() != filepath.Join(dbDir, FileName) {
			t.Errorf("unexpected path %s", db.Path())
		}
	})

	t.Run("CreateIfNotExists=false fails on missing database", func(t *testing.T) {
		t.Parallel()

		opts := DefaultOptions()
		opts.CreateIfNotExists = false
		if _, err := Open(filepath.Join(t.TempDir(), "missing"), opts); err == nil {
			t.Error("expected error for missing database")
		}
	})

	t.Run("reopens existing database", func(t *testing.T) {
		t.Parallel()

		dir := t.TempDir()
		db, err := Open(dir, DefaultOptions())
		if err != nil {
			t.Fatalf("failed to open database: %v", err)
		}
		if _, err := db.SaveRun(context.Background(), []*model.ArchiveReport{newReport("/a.cbz", time.Now(), 0)}); err != nil {
			t.Fatalf("failed to save run: %v", err)
		}
		_ = db.Close()

		opts := DefaultOptions()
		opts.CreateIfNotExists = false
		db, err = Open(dir, opts)
		if err != nil {
			t.Fatalf("failed to reopen database: %v", err)
		}
		defer db.Close()

		archives, err := db.ListArchives(context.Background())
		if err != nil {
			t.Fatalf("failed to list archives: %v", err)
		}
		if len(archives) != 1 {
			t.Errorf("expected 1 archive after reopen, got %d", len(archives))
		}
	})
}

// TestSaveRun tests storing runs and reading them back.
func TestSaveRun(t *testing.T) {
	t.Parallel()

	t.Run("stores and retrieves a report", func(t *testing.T) {
		t.Parallel()

		db, cleanup := setupTestDB(t)
		defer cleanup()
		ctx := context.Background()

		report := newReport("/comics/issue-001.cbz", time.Now(), 1)
		report.RemovedEntries = []string{"010.png"}

		runID, err := db.SaveRun(ctx, []*model.ArchiveReport{report})
		if err != nil {
			t.Fatalf("failed to save run: %v", err)
		}
		if runID == "" {
			t.Error("expected a run ID")
		}

		got, err := db.GetLatestReport(ctx, "/comics/issue-001.cbz")
		if err != nil {
			t.Fatalf("failed to get report: %v", err)
		}
		if got.Name != "issue-001.cbz" {
			t.Errorf("expected name issue-001.cbz, got %s", got.Name)
		}
		if len(got.Outliers) != 1 || got.Outliers[0].Index != 9 {
			t.Errorf("unexpected outliers %+v", got.Outliers)
		}
		if got.State != model.StateDone {
			t.Errorf("expected state done, got %s", got.State)
		}
		if !got.Rewritten() {
			t.Error("expected removed entries to round trip")
		}
	})

	t.Run("latest report wins", func(t *testing.T) {
		t.Parallel()

		db, cleanup := setupTestDB(t)
		defer cleanup()
		ctx := context.Background()

		base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
		if _, err := db.SaveRun(ctx, []*model.ArchiveReport{newReport("/a.cbz", base, 2)}); err != nil {
			t.Fatalf("failed to save run: %v", err)
		}
		if _, err := db.SaveRun(ctx, []*model.ArchiveReport{newReport("/a.cbz", base.Add(time.Hour), 0)}); err != nil {
			t.Fatalf("failed to save run: %v", err)
		}

		got, err := db.GetLatestReport(ctx, "/a.cbz")
		if err != nil {
			t.Fatalf("failed to get report: %v", err)
		}
		if got.HasOutliers() {
			t.Error("expected the later clean report")
		}
	})

	t.Run("failed reports are stored", func(t *testing.T) {
		t.Parallel()

		db, cleanup := setupTestDB(t)
		defer cleanup()
		ctx := context.Background()

		failed := model.NewArchiveReport("/broken.cbz")
		failed.Fail(errors.New("malformed archive"))

		if _, err := db.SaveRun(ctx, []*model.ArchiveReport{failed}); err != nil {
			t.Fatalf("failed to save run: %v", err)
		}

		history, err := db.GetHistory(ctx, "/broken.cbz")
		if err != nil {
			t.Fatalf("failed to get history: %v", err)
		}
		if len(history) != 1 {
			t.Fatalf("expected 1 entry, got %d", len(history))
		}
		if history[0].State != model.StateFailed {
			t.Errorf("expected failed state, got %s", history[0].State)
		}
		if history[0].Error != "malformed archive" {
			t.Errorf("unexpected error %q", history[0].Error)
		}
	})

	t.Run("empty run is recorded", func(t *testing.T) {
		t.Parallel()

		db, cleanup := setupTestDB(t)
		defer cleanup()

		if _, err := db.SaveRun(context.Background(), nil); err != nil {
			t.Fatalf("failed to save empty run: %v", err)
		}
	})
}

// TestGetLatestReport tests lookups of unknown archives.
func TestGetLatestReport(t *testing.T) {
	t.Parallel()

	db, cleanup := setupTestDB(t)
	defer cleanup()

	_, err := db.GetLatestReport(context.Background(), "/never-seen.cbz")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	_, err = db.GetReportByID(context.Background(), 42)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

// TestGetHistory tests listing history metadata.
func TestGetHistory(t *testing.T) {
	t.Parallel()

	db, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	base := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
	for i := range 3 {
		r := newReport("/series/vol.cbz", base.Add(time.Duration(i)*time.Minute), i)
		if _, err := db.SaveRun(ctx, []*model.ArchiveReport{r}); err != nil {
			t.Fatalf("failed to save run: %v", err)
		}
	}
	if _, err := db.SaveRun(ctx, []*model.ArchiveReport{newReport("/other.cbz", base, 0)}); err != nil {
		t.Fatalf("failed to save run: %v", err)
	}

	history, err := db.GetHistory(ctx, "/series/vol.cbz")
	if err != nil {
		t.Fatalf("failed to get history: %v", err)
	}
	if len(history) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(history))
	}
	if history[0].Outliers != 2 || history[2].Outliers != 0 {
		t.Errorf("expected newest first, got %+v", history)
	}
	if !history[0].Timestamp.Equal(base.Add(2 * time.Minute)) {
		t.Errorf("unexpected timestamp %v", history[0].Timestamp)
	}
	if history[0].Pages != 10 {
		t.Errorf("expected 10 pages, got %d", history[0].Pages)
	}

	got, err := db.GetReportByID(ctx, history[1].ID)
	if err != nil {
		t.Fatalf("failed to get report by ID: %v", err)
	}
	if len(got.Outliers) != 1 {
		t.Errorf("expected 1 outlier, got %d", len(got.Outliers))
	}

	recent, err := db.GetRecent(ctx, 2)
	if err != nil {
		t.Fatalf("failed to get recent: %v", err)
	}
	if len(recent) != 2 {
		t.Errorf("expected 2 recent entries, got %d", len(recent))
	}

	archives, err := db.ListArchives(ctx)
	if err != nil {
		t.Fatalf("failed to list archives: %v", err)
	}
	if len(archives) != 2 || archives[0] != "/other.cbz" {
		t.Errorf("unexpected archives %v", archives)
	}
}

// TestFindByFingerprint tests lookups by content hash.
func TestFindByFingerprint(t *testing.T) {
	t.Parallel()

	db, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	original := newReport("/inbox/book.cbz", time.Now(), 0)
	copied := newReport("/library/book-renamed.cbz", time.Now(), 0)
	copied.Fingerprint = original.Fingerprint

	if _, err := db.SaveRun(ctx, []*model.ArchiveReport{original, copied}); err != nil {
		t.Fatalf("failed to save run: %v", err)
	}

	matches, err := db.FindByFingerprint(ctx, original.Fingerprint)
	if err != nil {
		t.Fatalf("failed to find by fingerprint: %v", err)
	}
	if len(matches) != 2 {
		t.Errorf("expected 2 matches, got %d", len(matches))
	}
	if matches[0].RunID != matches[1].RunID {
		t.Error("expected both reports in the same run")
	}
}

// TestParseTimestamp tests parsing of stored timestamps.
func TestParseTimestamp(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
		want  time.Time
	}{
		{"fixed width", "2026-01-02 03:04:05.000000006", time.Date(2026, 1, 2, 3, 4, 5, 6, time.UTC)},
		{"sqlite default", "2026-01-02 03:04:05", time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)},
		{"rfc3339", "2026-01-02T03:04:05Z", time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)},
		{"garbage", "not a time", time.Time{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := parseTimestamp(tt.input); !got.Equal(tt.want) {
				t.Errorf("parseTimestamp(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}
