package main

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nao1215/littlebusters/internal/config"
	"github.com/nao1215/littlebusters/internal/database"
	"github.com/nao1215/littlebusters/internal/model"
	"github.com/nao1215/littlebusters/internal/report"
)

// writeIssue writes a ten-page archive to dir/name. The first nine pages
// are 100x150 and the last page has the given size.
func writeIssue(t *testing.T, dir, name string, lastWidth, lastHeight int) string {
	t.Helper()

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for i := range 10 {
		w, h := 100, 150
		if i == 9 {
			w, h = lastWidth, lastHeight
		}
		entry, err := zw.Create(fmt.Sprintf("%03d.png", i+1))
		if err != nil {
			t.Fatalf("failed to create entry: %v", err)
		}
		if err := png.Encode(entry, image.NewGray(image.Rect(0, 0, w, h))); err != nil {
			t.Fatalf("failed to encode page: %v", err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("failed to close zip: %v", err)
	}

	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, buf.Bytes(), 0600); err != nil {
		t.Fatalf("failed to write archive: %v", err)
	}
	return path
}

// entryCount returns the number of entries in the archive at path.
func entryCount(t *testing.T, path string) int {
	t.Helper()

	zr, err := zip.OpenReader(path)
	if err != nil {
		t.Fatalf("failed to open %s: %v", path, err)
	}
	defer zr.Close()
	return len(zr.File)
}

// runRoot executes the root command with args and returns stdout.
func runRoot(t *testing.T, args ...string) (string, error) {
	t.Helper()

	var stdout, stderr bytes.Buffer
	cmd := NewRootCmd()
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)

	err := cmd.Execute()
	return stdout.String(), err
}

// TestNewCheckCmd tests the check command creation.
func TestNewCheckCmd(t *testing.T) {
	t.Parallel()

	cmd := NewCheckCmd()

	flags := []struct {
		name      string
		shorthand string
		defValue  string
	}{
		{"dry-run", "n", "false"},
		{"threshold", "t", "0.2"},
		{"json", "j", "false"},
		{"markdown", "m", "false"},
		{"output", "o", ""},
		{"config", "c", ""},
		{"exif-orientation", "", "false"},
		{"no-history", "", "false"},
		{"max-entry-size", "", "0"},
		{"page-workers", "", "1"},
	}

	for _, f := range flags {
		t.Run("has "+f.name+" flag", func(t *testing.T) {
			t.Parallel()
			flag := cmd.Flags().Lookup(f.name)
			if flag == nil {
				t.Fatalf("expected %s flag", f.name)
			}
			if flag.Shorthand != f.shorthand {
				t.Errorf("expected shorthand %q, got %q", f.shorthand, flag.Shorthand)
			}
			if flag.DefValue != f.defValue {
				t.Errorf("expected default %q, got %q", f.defValue, flag.DefValue)
			}
		})
	}
}

// TestBuildConfig tests building a Config from flags.
func TestBuildConfig(t *testing.T) {
	t.Parallel()

	t.Run("defaults", func(t *testing.T) {
		t.Parallel()

		cmd := NewCheckCmd()
		if err := cmd.ParseFlags([]string{"--db-dir", t.TempDir()}); err != nil {
			t.Fatalf("failed to parse flags: %v", err)
		}

		cfg, err := buildConfig(cmd, []string{"a.cbz"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cfg.Threshold != config.DefaultThreshold {
			t.Errorf("expected default threshold, got %g", cfg.Threshold)
		}
		if cfg.ThresholdFromFlag {
			t.Error("expected ThresholdFromFlag to be false")
		}
		if !cfg.SaveHistory {
			t.Error("expected history to be saved by default")
		}
		if len(cfg.Targets) != 1 || cfg.Targets[0] != "a.cbz" {
			t.Errorf("unexpected targets %v", cfg.Targets)
		}
	})

	t.Run("explicit flags", func(t *testing.T) {
		t.Parallel()

		cmd := NewCheckCmd()
		args := []string{"-n", "-t", "0.35", "--exif-orientation", "--no-history", "--max-entry-size", "1024", "--page-workers", "4"}
		if err := cmd.ParseFlags(args); err != nil {
			t.Fatalf("failed to parse flags: %v", err)
		}

		cfg, err := buildConfig(cmd, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !cfg.DryRun || !cfg.EXIFOrientation || cfg.SaveHistory {
			t.Errorf("unexpected config %+v", cfg)
		}
		if cfg.Threshold != 0.35 || !cfg.ThresholdFromFlag {
			t.Errorf("expected explicit threshold 0.35, got %g (from flag: %v)", cfg.Threshold, cfg.ThresholdFromFlag)
		}
		if cfg.MaxEntrySize != 1024 {
			t.Errorf("expected max entry size 1024, got %d", cfg.MaxEntrySize)
		}
		if cfg.PageWorkers != 4 {
			t.Errorf("expected 4 page workers, got %d", cfg.PageWorkers)
		}
		if got := settingsFunc(cfg)("issue.cbz").PageWorkers; got != 4 {
			t.Errorf("expected pipeline settings to carry 4 page workers, got %d", got)
		}
	})

	t.Run("loads config file", func(t *testing.T) {
		t.Parallel()

		path := filepath.Join(t.TempDir(), "config.yaml")
		content := "defaults:\n  threshold: 0.3\narchives:\n  \"*.zip\":\n    dryRun: true\n"
		if err := os.WriteFile(path, []byte(content), 0600); err != nil {
			t.Fatalf("failed to write config: %v", err)
		}

		cmd := NewCheckCmd()
		if err := cmd.ParseFlags([]string{"-c", path}); err != nil {
			t.Fatalf("failed to parse flags: %v", err)
		}

		cfg, err := buildConfig(cmd, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		settings := settingsFunc(cfg)("/comics/book.zip")
		if settings.Threshold != 0.3 {
			t.Errorf("expected threshold 0.3 from file, got %g", settings.Threshold)
		}
		if !settings.DryRun {
			t.Error("expected dry run from archive pattern")
		}
	})

	t.Run("missing explicit config file", func(t *testing.T) {
		t.Parallel()

		cmd := NewCheckCmd()
		if err := cmd.ParseFlags([]string{"-c", filepath.Join(t.TempDir(), "missing.yaml")}); err != nil {
			t.Fatalf("failed to parse flags: %v", err)
		}

		if _, err := buildConfig(cmd, nil); !errors.Is(err, config.ErrConfigNotFound) {
			t.Errorf("expected ErrConfigNotFound, got %v", err)
		}
	})
}

// TestRunCheckCmd tests the check command end to end.
func TestRunCheckCmd(t *testing.T) {
	t.Parallel()

	t.Run("removes the undersized page", func(t *testing.T) {
		t.Parallel()

		dir := t.TempDir()
		path := writeIssue(t, dir, "issue.cbz", 20, 30)

		out, err := runRoot(t, "check", "--no-history", path)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if out != "issue.cbz: p010/010 (4.7% < 80%)\n" {
			t.Errorf("unexpected output %q", out)
		}
		if n := entryCount(t, path); n != 9 {
			t.Errorf("expected 9 entries after rewrite, got %d", n)
		}
	})

	t.Run("dry run leaves the archive unchanged", func(t *testing.T) {
		t.Parallel()

		dir := t.TempDir()
		path := writeIssue(t, dir, "issue.cbz", 20, 30)
		before, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("failed to read archive: %v", err)
		}

		out, err := runRoot(t, "check", "--no-history", "--dry-run", path)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(out, "p010/010") {
			t.Errorf("expected flagged page in output, got %q", out)
		}

		after, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("failed to read archive: %v", err)
		}
		if !bytes.Equal(before, after) {
			t.Error("expected archive to be byte-identical after dry run")
		}
	})

	t.Run("clean archive prints nothing", func(t *testing.T) {
		t.Parallel()

		path := writeIssue(t, t.TempDir(), "clean.cbz", 100, 150)

		out, err := runRoot(t, "check", "--no-history", path)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if out != "" {
			t.Errorf("expected no output, got %q", out)
		}
	})

	t.Run("failed archive does not stop the batch", func(t *testing.T) {
		t.Parallel()

		dir := t.TempDir()
		broken := filepath.Join(dir, "broken.cbz")
		if err := os.WriteFile(broken, []byte("not a zip"), 0600); err != nil {
			t.Fatalf("failed to write file: %v", err)
		}
		good := writeIssue(t, dir, "good.cbz", 20, 30)

		out, err := runRoot(t, "check", "--no-history", broken, good)
		if !errors.Is(err, errArchivesFailed) {
			t.Errorf("expected errArchivesFailed, got %v", err)
		}
		if !strings.Contains(out, "broken.cbz: failed:") {
			t.Errorf("expected failure line, got %q", out)
		}
		if !strings.Contains(out, "good.cbz: p010/010") {
			t.Errorf("expected the good archive to be processed, got %q", out)
		}
		if n := entryCount(t, good); n != 9 {
			t.Errorf("expected 9 entries after rewrite, got %d", n)
		}
	})

	t.Run("JSON report replaces console lines", func(t *testing.T) {
		t.Parallel()

		path := writeIssue(t, t.TempDir(), "issue.cbz", 20, 30)

		out, err := runRoot(t, "check", "--no-history", "--dry-run", "--json", path)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		var decoded report.JSONReport
		if err := json.Unmarshal([]byte(out), &decoded); err != nil {
			t.Fatalf("expected JSON output, got %q: %v", out, err)
		}
		if len(decoded.Archives) != 1 || len(decoded.Archives[0].Outliers) != 1 {
			t.Errorf("unexpected report %+v", decoded)
		}
	})

	t.Run("Markdown report file keeps console lines", func(t *testing.T) {
		t.Parallel()

		dir := t.TempDir()
		path := writeIssue(t, dir, "issue.cbz", 20, 30)
		reportPath := filepath.Join(dir, "reports", "run.md")

		out, err := runRoot(t, "check", "--no-history", "-n", "-m", "-o", reportPath, path)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(out, "issue.cbz: p010/010") {
			t.Errorf("expected console line, got %q", out)
		}

		content, err := os.ReadFile(reportPath)
		if err != nil {
			t.Fatalf("failed to read report: %v", err)
		}
		if !strings.Contains(string(content), "# littlebusters report") {
			t.Errorf("unexpected report:\n%s", content)
		}
	})

	t.Run("records the run in the history database", func(t *testing.T) {
		t.Parallel()

		dir := t.TempDir()
		dbDir := filepath.Join(dir, "db")
		path := writeIssue(t, dir, "issue.cbz", 20, 30)

		if _, err := runRoot(t, "check", "--db-dir", dbDir, path); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		db, err := database.Open(dbDir, database.DefaultOptions())
		if err != nil {
			t.Fatalf("failed to open database: %v", err)
		}
		defer db.Close()

		history, err := db.GetHistory(context.Background(), path)
		if err != nil {
			t.Fatalf("failed to get history: %v", err)
		}
		if len(history) != 1 {
			t.Fatalf("expected 1 history entry, got %d", len(history))
		}
		if history[0].Removed != 1 || history[0].State != model.StateDone {
			t.Errorf("unexpected history entry %+v", history[0])
		}
	})

	t.Run("rejects missing archives", func(t *testing.T) {
		t.Parallel()

		if _, err := runRoot(t, "check", "--no-history"); !errors.Is(err, config.ErrNoTarget) {
			t.Errorf("expected ErrNoTarget, got %v", err)
		}
	})

	t.Run("rejects conflicting formats", func(t *testing.T) {
		t.Parallel()

		_, err := runRoot(t, "check", "--no-history", "-j", "-m", "a.cbz")
		if !errors.Is(err, config.ErrConflictingReportFormats) {
			t.Errorf("expected ErrConflictingReportFormats, got %v", err)
		}
	})

	t.Run("rejects invalid threshold", func(t *testing.T) {
		t.Parallel()

		_, err := runRoot(t, "check", "--no-history", "-t", "1.5", "a.cbz")
		if !errors.Is(err, config.ErrInvalidThreshold) {
			t.Errorf("expected ErrInvalidThreshold, got %v", err)
		}
	})

	t.Run("rejects NaN threshold and leaves the archive alone", func(t *testing.T) {
		t.Parallel()

		dir := t.TempDir()
		path := writeIssue(t, dir, "issue.cbz", 20, 30)
		before, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("failed to read archive: %v", err)
		}

		_, err = runRoot(t, "check", "--no-history", "-t", "NaN", path)
		if !errors.Is(err, config.ErrInvalidThreshold) {
			t.Errorf("expected ErrInvalidThreshold, got %v", err)
		}

		after, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("failed to read archive: %v", err)
		}
		if !bytes.Equal(before, after) {
			t.Error("expected archive to be unchanged")
		}
	})
}
