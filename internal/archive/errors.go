package archive

import "errors"

// Archive errors.
// Callers match them with errors.Is; the returned errors are wrapped with the
// archive path and, where relevant, the entry name.
var (
	// ErrMalformedArchive is returned when the container cannot be read as a zip file.
	ErrMalformedArchive = errors.New("malformed archive")

	// ErrUndecodableEntry is returned when an entry is not a decodable image.
	ErrUndecodableEntry = errors.New("entry is not a decodable image")

	// ErrEntryTooLarge is returned when an entry exceeds the configured read limit.
	ErrEntryTooLarge = errors.New("entry exceeds size limit")

	// ErrIndexOutOfRange is returned when an excluded index does not name a page.
	// This is a caller bug, not a condition to recover from.
	ErrIndexOutOfRange = errors.New("excluded index out of range")

	// ErrLocked is returned when another process is rewriting the same archive.
	ErrLocked = errors.New("archive is locked by another process")

	// ErrArchiveChanged is returned when the archive on disk is no longer the
	// one the excluded indices were computed from.
	ErrArchiveChanged = errors.New("archive changed since it was analyzed")

	// ErrRewrite is returned when the replacement archive cannot be staged or swapped in.
	ErrRewrite = errors.New("archive rewrite failed")
)
