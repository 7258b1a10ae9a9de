// Package archive reads page archives and rewrites them without selected pages.
//
// A page archive is a zip container (.zip, .cbz) whose file entries are page
// images in reading order. Directory entries are not pages: they are skipped
// when listing pages and carried through unchanged when rewriting.
//
// Measuring pages only decodes image headers (image.DecodeConfig), so the
// whole raster is never loaded. PNG, JPEG and GIF are supported through the
// standard library, BMP, TIFF and WebP through golang.org/x/image.
//
// Rewriting is atomic from the caller's point of view: Replace stages the new
// archive in a temporary file next to the original and renames it into place
// only once it has been fully written and synced. If anything fails the
// original file is left byte-for-byte untouched.
package archive
