package model

import (
	"errors"
	"fmt"
)

// DefaultThreshold is the tolerance used when none is configured.
// A page may be up to 20% smaller than the average page area before it
// is flagged.
const DefaultThreshold Threshold = 0.2

// ErrInvalidThreshold is returned when a threshold lies outside (0,1).
var ErrInvalidThreshold = errors.New("invalid threshold: must be between 0 and 1 (exclusive)")

// Size is the pixel resolution of a single archive entry.
//
// Width and Height are float64 because spread correction halves the
// recorded width, and a halved odd width must stay exact.
type Size struct {
	// Width is the horizontal resolution in pixels.
	Width float64 `json:"width"`

	// Height is the vertical resolution in pixels.
	Height float64 `json:"height"`
}

// NewSize creates a Size from integer pixel dimensions.
func NewSize(width, height int) Size {
	return Size{Width: float64(width), Height: float64(height)}
}

// Area returns the pixel area of the entry.
func (s Size) Area() float64 {
	return s.Width * s.Height
}

// String returns the size in "WxH" form.
func (s Size) String() string {
	return fmt.Sprintf("%gx%g", s.Width, s.Height)
}

// Average is the mean page resolution over a list of sizes.
// Each coordinate is an independent arithmetic mean.
type Average struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Area returns the area of the average page. Note that this is the
// product of the mean dimensions, not the mean of the areas.
func (a Average) Area() float64 {
	return a.Width * a.Height
}

// Deviation records an entry whose area falls too far below the average.
type Deviation struct {
	// Index is the zero-based position of the entry in the archive.
	Index int `json:"index"`

	// Ratio is the entry's pixel area divided by the average pixel area.
	Ratio float64 `json:"ratio"`
}

// Threshold is the maximum allowed relative deviation from the average.
// The same value drives both spread detection and outlier detection.
type Threshold float64

// Validate reports whether the threshold lies in the open interval (0,1).
// NaN lies in no interval and is rejected.
func (t Threshold) Validate() error {
	if !(t > 0 && t < 1) {
		return fmt.Errorf("%w: got %g", ErrInvalidThreshold, float64(t))
	}
	return nil
}

// Target returns the smallest area ratio a page may have without being
// flagged (1 - threshold).
func (t Threshold) Target() float64 {
	return 1 - float64(t)
}
