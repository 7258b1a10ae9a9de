package archive

import (
	"archive/zip"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/crypto/blake2b"

	"github.com/nao1215/littlebusters/internal/model"
)

// Archive is an open page archive.
// It is read-only; use RewriteExcluding or Replace to drop pages.
type Archive struct {
	// name identifies the archive in errors (usually its path).
	name string

	// zr is the underlying zip reader.
	zr *zip.Reader

	// ra and size describe the raw container, used for fingerprinting.
	ra   io.ReaderAt
	size int64

	// closer releases the backing file, if any.
	closer io.Closer

	// pages holds the positions in zr.File of the page entries.
	pages []int
}

// Open opens the archive at path for reading.
// The returned Archive must be closed by the caller.
func Open(path string) (*Archive, error) {
	f, err := os.Open(path) //nolint:gosec // Archive paths come from the user
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrMalformedArchive, path, err)
	}

	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("%w: %s: %w", ErrMalformedArchive, path, err)
	}
	if info.IsDir() {
		_ = f.Close()
		return nil, fmt.Errorf("%w: %s: is a directory", ErrMalformedArchive, path)
	}

	a, err := NewReader(f, info.Size(), path)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	a.closer = f

	return a, nil
}

// NewReader reads an archive from r, which holds size bytes.
// name is used to identify the archive in errors.
func NewReader(r io.ReaderAt, size int64, name string) (*Archive, error) {
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrMalformedArchive, name, err)
	}

	a := &Archive{
		name:  name,
		zr:    zr,
		ra:    r,
		size:  size,
		pages: make([]int, 0, len(zr.File)),
	}
	for i, f := range zr.File {
		if isDirectory(f) {
			continue
		}
		a.pages = append(a.pages, i)
	}

	return a, nil
}

// isDirectory reports whether f is a directory entry rather than a page.
func isDirectory(f *zip.File) bool {
	return strings.HasSuffix(f.Name, "/") || f.FileInfo().IsDir()
}

// Name returns the name the archive was opened with.
func (a *Archive) Name() string {
	return a.name
}

// Len returns the number of pages in the archive.
func (a *Archive) Len() int {
	return len(a.pages)
}

// Entries returns the pages of the archive in archive order.
// Sizes are left zero; use Sizes to measure them.
func (a *Archive) Entries() []model.Entry {
	entries := make([]model.Entry, len(a.pages))
	for i, pos := range a.pages {
		entries[i] = model.Entry{
			Index: i,
			Name:  a.zr.File[pos].Name,
		}
	}
	return entries
}

// Comment returns the archive comment.
func (a *Archive) Comment() string {
	return a.zr.Comment
}

// page returns the zip entry of the page at index.
func (a *Archive) page(index int) *zip.File {
	return a.zr.File[a.pages[index]]
}

// Fingerprint returns a BLAKE2b-256 hash of the raw container bytes,
// hex encoded. Identical files always have identical fingerprints.
func (a *Archive) Fingerprint() (string, error) {
	h, err := blake2b.New256(nil)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(h, io.NewSectionReader(a.ra, 0, a.size)); err != nil {
		return "", fmt.Errorf("fingerprint %s: %w", a.name, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Close releases the file backing the archive.
// It is safe to call Close more than once.
func (a *Archive) Close() error {
	if a.closer == nil {
		return nil
	}
	err := a.closer.Close()
	a.closer = nil
	return err
}
