// Package watcher runs a handler on page archives that appear in a directory.
//
// Archives are usually copied or downloaded in several writes, so a path is
// only handed to the handler after no event has been seen for it during the
// settle period. Paths are handled one at a time, in name order.
//
// Rewriting an archive in place produces events for the same path. The
// watcher records the size and modification time of every path after its
// handler returns and ignores later events while both are unchanged.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Handler processes one archive. An error is logged and does not stop the
// watcher.
type Handler func(ctx context.Context, path string) error

// ErrNotDirectory is returned when the watched path is not a directory.
var ErrNotDirectory = errors.New("not a directory")

// stamp identifies one version of a file.
type stamp struct {
	size    int64
	modTime time.Time
}

func (s stamp) equal(o stamp) bool {
	return s.size == o.size && s.modTime.Equal(o.modTime)
}

// Watcher watches one directory for archives.
type Watcher struct {
	dir        string
	handler    Handler
	settle     time.Duration
	extensions []string
	logger     *slog.Logger

	// pending maps a path to the time of its last event.
	pending map[string]time.Time

	// handled maps a path to its stamp after the handler last ran.
	handled map[string]stamp
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithSettle sets how long a path must be quiet before it is handled.
func WithSettle(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.settle = d
		}
	}
}

// WithExtensions sets the accepted file extensions, e.g. ".cbz".
// Matching is case-insensitive.
func WithExtensions(exts ...string) Option {
	return func(w *Watcher) {
		w.extensions = make([]string, 0, len(exts))
		for _, ext := range exts {
			w.extensions = append(w.extensions, strings.ToLower(ext))
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(w *Watcher) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// New creates a Watcher for dir that calls handler for every settled archive.
func New(dir string, handler Handler, opts ...Option) *Watcher {
	w := &Watcher{
		dir:        dir,
		handler:    handler,
		settle:     2 * time.Second,
		extensions: []string{".cbz", ".zip"},
		logger:     slog.Default(),
		pending:    make(map[string]time.Time),
		handled:    make(map[string]stamp),
	}

	for _, opt := range opts {
		opt(w)
	}

	return w
}

// Accepts reports whether path looks like an archive the watcher handles.
// Hidden files, lock files and staging files are never accepted.
func (w *Watcher) Accepts(path string) bool {
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".") {
		return false
	}
	ext := strings.ToLower(filepath.Ext(base))
	if ext == ".lock" || ext == ".tmp" {
		return false
	}
	return slices.Contains(w.extensions, ext)
}

// Run watches the directory until ctx is cancelled.
// It returns nil on cancellation and an error if watching could not start.
func (w *Watcher) Run(ctx context.Context) error {
	info, err := os.Stat(w.dir)
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", w.dir, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: %s", ErrNotDirectory, w.dir)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer fsw.Close()

	if err := fsw.Add(w.dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", w.dir, err)
	}

	w.logger.Info("watching for archives", "dir", w.dir, "settle", w.settle)

	timer := time.NewTimer(w.settle)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			// Atomic saves and moves arrive as Create, in-place copies as Write.
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}
			if !w.Accepts(event.Name) {
				continue
			}
			w.logger.Debug("archive event", "path", event.Name, "op", event.Op.String())
			w.pending[event.Name] = time.Now()
			timer.Reset(w.settle)

		case <-timer.C:
			if wait := w.flush(ctx, time.Now()); wait > 0 {
				timer.Reset(wait)
			}

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("watcher error", "error", err)
		}
	}
}

// flush handles every pending path that has been quiet for the settle
// period. It returns how long to wait for the remaining paths, or zero if
// none remain.
func (w *Watcher) flush(ctx context.Context, now time.Time) time.Duration {
	var ready []string
	var wait time.Duration

	for path, last := range w.pending {
		if remaining := last.Add(w.settle).Sub(now); remaining > 0 {
			if wait == 0 || remaining < wait {
				wait = remaining
			}
			continue
		}
		ready = append(ready, path)
	}
	slices.Sort(ready)

	for _, path := range ready {
		if ctx.Err() != nil {
			return 0
		}
		delete(w.pending, path)
		w.handle(ctx, path)
	}

	return wait
}

// handle runs the handler on path unless it vanished or is unchanged since
// it was last handled.
func (w *Watcher) handle(ctx context.Context, path string) {
	before, err := statFile(path)
	if err != nil {
		w.logger.Debug("archive disappeared", "path", path)
		delete(w.handled, path)
		return
	}
	if prev, ok := w.handled[path]; ok && prev.equal(before) {
		w.logger.Debug("archive unchanged since last run", "path", path)
		return
	}

	if err := w.handler(ctx, path); err != nil {
		w.logger.Error("failed to process archive", "path", path, "error", err)
	}

	after, err := statFile(path)
	if err != nil {
		delete(w.handled, path)
		return
	}
	w.handled[path] = after
}

// statFile returns the stamp of a regular file.
func statFile(path string) (stamp, error) {
	info, err := os.Stat(path)
	if err != nil {
		return stamp{}, err
	}
	if !info.Mode().IsRegular() {
		return stamp{}, fmt.Errorf("not a regular file: %s", path)
	}
	return stamp{size: info.Size(), modTime: info.ModTime()}, nil
}
