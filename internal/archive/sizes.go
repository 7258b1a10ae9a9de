package archive

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"  // Register GIF decoder
	_ "image/jpeg" // Register JPEG decoder
	_ "image/png"  // Register PNG decoder
	"io"

	exif "github.com/dsoprea/go-exif/v3"
	"golang.org/x/sync/errgroup"
	_ "golang.org/x/image/bmp"  // Register BMP decoder
	_ "golang.org/x/image/tiff" // Register TIFF decoder
	_ "golang.org/x/image/webp" // Register WebP decoder

	"github.com/nao1215/littlebusters/internal/model"
)

// DefaultMaxEntrySize bounds how much of an entry is buffered when EXIF
// orientation is honoured. Header-only decoding never buffers.
const DefaultMaxEntrySize = 256 * 1024 * 1024

// sizeOptions configures page measurement.
type sizeOptions struct {
	exifOrientation bool
	maxEntrySize    int64
	concurrency     int
}

// SizeOption configures Sizes and DecodeSize.
type SizeOption func(*sizeOptions)

// WithEXIFOrientation makes measurement honour the EXIF orientation tag:
// pages stored rotated by 90 degrees (orientations 5 to 8) report swapped
// width and height. Disabled by default, which reports the stored raster.
func WithEXIFOrientation(enabled bool) SizeOption {
	return func(o *sizeOptions) {
		o.exifOrientation = enabled
	}
}

// WithMaxEntrySize sets the buffering limit used with EXIF orientation.
func WithMaxEntrySize(n int64) SizeOption {
	return func(o *sizeOptions) {
		if n > 0 {
			o.maxEntrySize = n
		}
	}
}

// WithConcurrency sets how many pages are decoded at once. Pages are
// decoded one at a time unless n is above one.
func WithConcurrency(n int) SizeOption {
	return func(o *sizeOptions) {
		if n > 0 {
			o.concurrency = n
		}
	}
}

func newSizeOptions(opts []SizeOption) sizeOptions {
	o := sizeOptions{
		maxEntrySize: DefaultMaxEntrySize,
		concurrency:  1,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Sizes measures every page of the archive in archive order.
// Any page that cannot be decoded aborts the whole measurement; no partial
// list is returned. When several pages fail, the error of the first one in
// archive order is returned.
//
// With WithConcurrency above one, pages are decoded concurrently. Each page
// is opened through its own reader, so only the shared io.ReaderAt is used
// from several goroutines. The result is the same either way.
func (a *Archive) Sizes(ctx context.Context, opts ...SizeOption) ([]model.Size, error) {
	o := newSizeOptions(opts)
	sizes := make([]model.Size, len(a.pages))
	errs := make([]error, len(a.pages))

	var g errgroup.Group
	g.SetLimit(o.concurrency)

	// A failing page does not stop the others; errs is scanned in order.
	for i := range a.pages {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			sizes[i], errs[i] = a.measure(i, o)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}

	return sizes, nil
}

// measure decodes the size of page i.
func (a *Archive) measure(i int, o sizeOptions) (model.Size, error) {
	f := a.page(i)
	rc, err := f.Open()
	if err != nil {
		return model.Size{}, fmt.Errorf("%w: %s: entry %d %q: %w", ErrMalformedArchive, a.name, i, f.Name, err)
	}
	defer rc.Close()

	size, err := decodeSize(rc, o)
	if err != nil {
		return model.Size{}, fmt.Errorf("%s: entry %d %q: %w", a.name, i, f.Name, err)
	}
	return size, nil
}

// DecodeSize returns the pixel dimensions of the image read from r.
func DecodeSize(r io.Reader, opts ...SizeOption) (model.Size, error) {
	return decodeSize(r, newSizeOptions(opts))
}

func decodeSize(r io.Reader, o sizeOptions) (model.Size, error) {
	if !o.exifOrientation {
		return decodeConfig(r)
	}

	data, err := io.ReadAll(io.LimitReader(r, o.maxEntrySize+1))
	if err != nil {
		return model.Size{}, fmt.Errorf("%w: %w", ErrUndecodableEntry, err)
	}
	if int64(len(data)) > o.maxEntrySize {
		return model.Size{}, fmt.Errorf("%w: more than %d bytes", ErrEntryTooLarge, o.maxEntrySize)
	}

	size, err := decodeConfig(bytes.NewReader(data))
	if err != nil {
		return model.Size{}, err
	}
	if isTransposed(exifOrientation(data)) {
		size.Width, size.Height = size.Height, size.Width
	}
	return size, nil
}

func decodeConfig(r io.Reader) (model.Size, error) {
	cfg, _, err := image.DecodeConfig(r)
	if err != nil {
		return model.Size{}, fmt.Errorf("%w: %w", ErrUndecodableEntry, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return model.Size{}, fmt.Errorf("%w: invalid dimensions %dx%d", ErrUndecodableEntry, cfg.Width, cfg.Height)
	}
	return model.NewSize(cfg.Width, cfg.Height), nil
}

// exifOrientation returns the EXIF orientation of an image, or 1 (normal)
// when the image carries no readable orientation tag.
func exifOrientation(data []byte) int {
	rawExif, err := exif.SearchAndExtractExif(data)
	if err != nil || rawExif == nil {
		return 1
	}

	entries, _, err := exif.GetFlatExifData(rawExif, nil)
	if err != nil {
		return 1
	}

	for _, entry := range entries {
		if entry.TagName != "Orientation" {
			continue
		}
		if values, ok := entry.Value.([]uint16); ok && len(values) > 0 {
			return int(values[0])
		}
	}
	return 1
}

// isTransposed reports whether an EXIF orientation rotates the image by 90
// or 270 degrees.
func isTransposed(orientation int) bool {
	return orientation >= 5 && orientation <= 8
}
