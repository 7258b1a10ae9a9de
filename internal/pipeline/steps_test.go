package pipeline

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nao1215/littlebusters/internal/archive"
	"github.com/nao1215/littlebusters/internal/model"
	"github.com/nao1215/littlebusters/internal/resolution"
)

// runDefault runs the default pipeline on path with settings.
func runDefault(t *testing.T, path string, settings Settings, opts ...RewriteStepOption) (*model.ArchiveReport, error) {
	t.Helper()

	job := NewJob(path, settings)
	err := DefaultPipeline(nil, opts...).Execute(context.Background(), job)
	return job.Report, err
}

// TestDefaultPipeline tests the full analysis on real archives.
func TestDefaultPipeline(t *testing.T) {
	t.Parallel()

	t.Run("clean archive is left alone", func(t *testing.T) {
		t.Parallel()

		dir := t.TempDir()
		path := writeArchive(t, dir, "clean.cbz", issue(100, 150))
		before, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("failed to read archive: %v", err)
		}

		report, err := runDefault(t, path, DefaultSettings())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if report.State != model.StateDone {
			t.Errorf("expected state done, got %s", report.State)
		}
		if report.HasOutliers() {
			t.Errorf("expected no outliers, got %v", report.Outliers)
		}
		if len(report.PerformedSteps) != 5 {
			t.Errorf("expected 5 performed steps, got %v", report.PerformedSteps)
		}
		if report.Fingerprint == "" {
			t.Error("expected fingerprint to be recorded")
		}

		after, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("failed to read archive: %v", err)
		}
		if !bytes.Equal(before, after) {
			t.Error("expected archive to be unchanged")
		}
	})

	t.Run("thumbnail is removed", func(t *testing.T) {
		t.Parallel()

		dir := t.TempDir()
		path := writeArchive(t, dir, "issue.cbz", issue(20, 30))

		report, err := runDefault(t, path, DefaultSettings())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if report.State != model.StateDone {
			t.Errorf("expected state done, got %s", report.State)
		}
		if len(report.Outliers) != 1 || report.Outliers[0].Index != 9 {
			t.Fatalf("expected outlier 9, got %v", report.Outliers)
		}
		if !report.Rewritten() || report.RemovedEntries[0] != "010.png" {
			t.Errorf("expected 010.png removed, got %v", report.RemovedEntries)
		}

		a, err := archive.Open(path)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		defer a.Close()
		if a.Len() != 9 {
			t.Errorf("expected 9 pages, got %d", a.Len())
		}
	})

	t.Run("dry run reports without rewriting", func(t *testing.T) {
		t.Parallel()

		dir := t.TempDir()
		path := writeArchive(t, dir, "issue.cbz", issue(20, 30))
		before, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("failed to read archive: %v", err)
		}

		settings := DefaultSettings()
		settings.DryRun = true
		report, err := runDefault(t, path, settings)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !report.HasOutliers() {
			t.Error("expected outliers to be reported")
		}
		if report.Rewritten() {
			t.Error("expected no rewrite in dry run")
		}

		after, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("failed to read archive: %v", err)
		}
		if !bytes.Equal(before, after) {
			t.Error("expected archive to be byte-identical after dry run")
		}
	})

	t.Run("double spread is not flagged", func(t *testing.T) {
		t.Parallel()

		dir := t.TempDir()
		path := writeArchive(t, dir, "spread.cbz", issue(200, 150))

		settings := DefaultSettings()
		settings.DryRun = true
		report, err := runDefault(t, path, settings)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(report.Spreads) != 1 || report.Spreads[0] != 9 {
			t.Errorf("expected spread 9, got %v", report.Spreads)
		}
		if !report.Entries[9].Spread {
			t.Error("expected entry 9 to be marked as spread")
		}
		if report.Entries[9].Size.Width != 200 {
			t.Errorf("expected raw width 200 to be kept, got %g", report.Entries[9].Size.Width)
		}
		if report.Sizes[9].Width != 100 {
			t.Errorf("expected corrected width 100, got %g", report.Sizes[9].Width)
		}
		if report.HasOutliers() {
			t.Errorf("expected no outliers, got %v", report.Outliers)
		}
	})

	t.Run("undecodable entry fails the archive", func(t *testing.T) {
		t.Parallel()

		dir := t.TempDir()
		path := filepath.Join(dir, "broken.cbz")
		var buf bytes.Buffer
		zw := zip.NewWriter(&buf)
		w, err := zw.Create("001.txt")
		if err != nil {
			t.Fatalf("failed to create entry: %v", err)
		}
		if _, err := w.Write([]byte("not an image")); err != nil {
			t.Fatalf("failed to write entry: %v", err)
		}
		if err := zw.Close(); err != nil {
			t.Fatalf("failed to close zip: %v", err)
		}
		if err := os.WriteFile(path, buf.Bytes(), 0600); err != nil {
			t.Fatalf("failed to write archive: %v", err)
		}

		report, err := runDefault(t, path, DefaultSettings())
		if !errors.Is(err, archive.ErrUndecodableEntry) {
			t.Errorf("expected ErrUndecodableEntry, got %v", err)
		}
		if !report.Failed() {
			t.Error("expected report to be failed")
		}
		if len(report.Sizes) != 0 {
			t.Error("expected no partial size list")
		}
	})

	t.Run("empty archive fails with ErrEmpty", func(t *testing.T) {
		t.Parallel()

		dir := t.TempDir()
		path := writeArchive(t, dir, "empty.cbz", nil)

		report, err := runDefault(t, path, DefaultSettings())
		if !errors.Is(err, resolution.ErrEmpty) {
			t.Errorf("expected ErrEmpty, got %v", err)
		}
		if !report.Failed() {
			t.Error("expected report to be failed")
		}
	})

	t.Run("failed rewrite leaves the original and fails the archive", func(t *testing.T) {
		t.Parallel()

		dir := t.TempDir()
		path := writeArchive(t, dir, "issue.cbz", issue(20, 30))
		before, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("failed to read archive: %v", err)
		}

		injected := errors.New("disk full")
		hook := func(name string) error {
			if name == "005.png" {
				return injected
			}
			return nil
		}

		report, err := runDefault(t, path, DefaultSettings(), WithRewriteStagingHook(hook))
		if !errors.Is(err, injected) {
			t.Errorf("expected injected error, got %v", err)
		}
		if !report.Failed() {
			t.Error("expected report to be failed")
		}
		if !strings.Contains(report.ErrorMessage, "disk full") {
			t.Errorf("expected error message to mention the failure, got %q", report.ErrorMessage)
		}

		after, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("failed to read archive: %v", err)
		}
		if !bytes.Equal(before, after) {
			t.Error("expected original archive to be byte-identical")
		}
	})

	t.Run("archive changed after analysis is not rewritten", func(t *testing.T) {
		t.Parallel()

		dir := t.TempDir()
		path := writeArchive(t, dir, "issue.cbz", issue(20, 30))

		// Another process drops the first page between detection and rewrite.
		var changed []byte
		intruder := &mockStep{
			name: "concurrent_rewrite",
			doFunc: func(ctx context.Context, _ *Job) error {
				if _, err := archive.Replace(ctx, path, []int{0}); err != nil {
					return err
				}
				var err error
				changed, err = os.ReadFile(path)
				return err
			},
		}

		p := New()
		p.AddSteps(
			NewOpenStep(nil),
			NewExtractSizesStep(),
			NewNormalizeSpreadsStep(nil),
			NewDetectOutliersStep(),
			intruder,
			NewRewriteStep(),
		)

		job := NewJob(path, DefaultSettings())
		err := p.Execute(context.Background(), job)
		if !errors.Is(err, archive.ErrArchiveChanged) {
			t.Fatalf("expected ErrArchiveChanged, got %v", err)
		}
		if !job.Report.Failed() {
			t.Error("expected report to be failed")
		}
		if len(job.Report.RemovedEntries) != 0 {
			t.Errorf("expected no removed entries, got %v", job.Report.RemovedEntries)
		}

		after, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("failed to read archive: %v", err)
		}
		if !bytes.Equal(changed, after) {
			t.Error("expected the changed archive to be left as the other process wrote it")
		}

		a, err := archive.Open(path)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		defer a.Close()
		if a.Len() != 9 {
			t.Errorf("expected 9 pages, got %d", a.Len())
		}
	})
}
