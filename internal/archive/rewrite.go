package archive

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// RewriteExcluding writes to w a new archive holding every entry of src
// except the pages at the excluded indices. Kept entries are copied
// verbatim: same name, same header, same compressed bytes, same relative
// order. Directory entries are always kept. It returns the names of the
// dropped pages.
//
// Every excluded index must name a page of src. An index outside [0, Len())
// is reported as ErrIndexOutOfRange before anything is written.
func RewriteExcluding(ctx context.Context, src *Archive, excluded []int, w io.Writer) ([]string, error) {
	return rewriteExcluding(ctx, src, excluded, w, nil)
}

func rewriteExcluding(ctx context.Context, src *Archive, excluded []int, w io.Writer, hook StagingHook) ([]string, error) {
	skip, err := exclusionSet(src, excluded)
	if err != nil {
		return nil, err
	}

	removed := make([]string, 0, len(skip))
	skipFile := make(map[int]bool, len(skip))
	for index := range skip {
		skipFile[src.pages[index]] = true
	}

	zw := zip.NewWriter(w)
	for i, f := range src.zr.File {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		if skipFile[i] {
			removed = append(removed, f.Name)
			continue
		}

		if hook != nil {
			if err := hook(f.Name); err != nil {
				return nil, err
			}
		}

		// Copy moves the raw compressed stream without recompressing it.
		if err := zw.Copy(f); err != nil {
			return nil, fmt.Errorf("copy entry %q: %w", f.Name, err)
		}
	}

	if err := zw.SetComment(src.Comment()); err != nil {
		return nil, fmt.Errorf("set archive comment: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("finish archive: %w", err)
	}

	return removed, nil
}

// exclusionSet validates excluded against src and returns it as a set.
func exclusionSet(src *Archive, excluded []int) (map[int]bool, error) {
	set := make(map[int]bool, len(excluded))
	for _, index := range excluded {
		if index < 0 || index >= src.Len() {
			return nil, fmt.Errorf("%w: %d not in [0, %d) for %s", ErrIndexOutOfRange, index, src.Len(), src.name)
		}
		set[index] = true
	}
	return set, nil
}

// Rebuild returns a new in-memory archive holding src without the excluded
// pages. src is left untouched.
func Rebuild(ctx context.Context, src *Archive, excluded []int) (*Archive, error) {
	var buf bytes.Buffer
	if _, err := RewriteExcluding(ctx, src, excluded, &buf); err != nil {
		return nil, err
	}
	data := buf.Bytes()
	return NewReader(bytes.NewReader(data), int64(len(data)), src.name)
}

// StagingHook is called before each entry is written to the staging file.
// Returning an error aborts the rewrite. It exists so that failures can be
// injected part-way through a rewrite.
type StagingHook func(entryName string) error

// replaceOptions configures Replace.
type replaceOptions struct {
	hook        StagingHook
	logger      *slog.Logger
	fingerprint string
}

// ReplaceOption configures Replace.
type ReplaceOption func(*replaceOptions)

// WithStagingHook installs a hook that runs before each staged entry.
func WithStagingHook(hook StagingHook) ReplaceOption {
	return func(o *replaceOptions) {
		o.hook = hook
	}
}

// WithExpectedFingerprint makes Replace verify, under the lock, that the
// archive still has the given fingerprint. Excluded indices refer to the
// pages of the archive they were computed from; if the file changed since,
// Replace fails with ErrArchiveChanged and leaves it untouched.
func WithExpectedFingerprint(fingerprint string) ReplaceOption {
	return func(o *replaceOptions) {
		o.fingerprint = fingerprint
	}
}

// WithLogger sets a custom logger for Replace.
func WithLogger(logger *slog.Logger) ReplaceOption {
	return func(o *replaceOptions) {
		o.logger = logger
	}
}

// LockPath returns the advisory lock file used while rewriting path.
// The lock file is left in place after a rewrite: removing it would let a
// later process lock a new file while another still holds the old one.
func LockPath(path string) string {
	return path + ".lock"
}

// Replace removes the excluded pages from the archive at path.
//
// The new archive is written to a temporary file in the same directory,
// synced, and renamed over the original. The original is only touched by
// that final rename, so on any error it is left exactly as it was. The
// temporary file is removed on every path. An advisory lock on LockPath(path)
// keeps two processes from rewriting the same archive at once. A symlinked
// path is resolved first, so the link is kept and its target is rewritten.
//
// It returns the names of the dropped pages.
func Replace(ctx context.Context, path string, excluded []int, opts ...ReplaceOption) (removed []string, err error) {
	o := replaceOptions{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}

	target, err := filepath.EvalSymlinks(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrRewrite, path, err)
	}

	lock := flock.New(LockPath(target))
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("%w: %s: acquire lock: %w", ErrRewrite, path, err)
	}
	if !locked {
		return nil, fmt.Errorf("%w: %s", ErrLocked, path)
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			o.logger.Warn("failed to release archive lock", "path", path, "error", err)
		}
	}()

	info, err := os.Stat(target)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrRewrite, path, err)
	}

	src, err := Open(target)
	if err != nil {
		return nil, err
	}
	defer src.Close()

	if o.fingerprint != "" {
		current, err := src.Fingerprint()
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrRewrite, path, err)
		}
		if current != o.fingerprint {
			return nil, fmt.Errorf("%w: %s", ErrArchiveChanged, path)
		}
	}

	staging, err := os.CreateTemp(filepath.Dir(target), "."+filepath.Base(target)+".*.tmp")
	if err != nil {
		return nil, fmt.Errorf("%w: %s: create staging file: %w", ErrRewrite, path, err)
	}
	stagingPath := staging.Name()
	committed := false
	defer func() {
		if committed {
			return
		}
		_ = staging.Close()        //nolint:errcheck // Already failing
		_ = os.Remove(stagingPath) //nolint:errcheck // Best effort cleanup
	}()

	o.logger.Debug("staging archive rewrite",
		"path", path,
		"staging", stagingPath,
		"excluded", len(excluded),
	)

	removed, err = rewriteExcluding(ctx, src, excluded, staging, o.hook)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrRewrite, path, err)
	}
	if err := staging.Sync(); err != nil {
		return nil, fmt.Errorf("%w: %s: sync staging file: %w", ErrRewrite, path, err)
	}
	if err := staging.Close(); err != nil {
		return nil, fmt.Errorf("%w: %s: close staging file: %w", ErrRewrite, path, err)
	}
	if err := os.Chmod(stagingPath, info.Mode().Perm()); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrRewrite, path, err)
	}

	// The source must be closed before the rename on platforms that
	// refuse to replace open files.
	if err := src.Close(); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrRewrite, path, err)
	}
	if err := os.Rename(stagingPath, target); err != nil {
		return nil, fmt.Errorf("%w: %s: swap in rewritten archive: %w", ErrRewrite, path, err)
	}
	committed = true

	o.logger.Info("archive rewritten", "path", path, "removed", len(removed))
	return removed, nil
}
