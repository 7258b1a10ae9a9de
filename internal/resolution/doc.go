// Package resolution implements the page resolution heuristics.
//
// An issue's typical page size is the arithmetic mean of every entry's
// width and height. Double-page spreads would inflate that mean, so they are
// detected first (about twice the average width, about the average height)
// and their recorded width is halved. Outliers are then entries whose area
// falls more than the threshold below the corrected average area.
//
// Design decision: Spread correction is split into Average and
// ApplySpreadCorrection, both pure. The correction is evaluated against one
// average computed before any entry is corrected, and keeping the average as
// an explicit argument makes that visible at the call site and testable in
// isolation. NormalizeSpreads is the in-place convenience wrapper used by the
// pipeline.
//
// Only under-sized entries are ever flagged. Oversized entries that are not
// spreads pass through untouched.
package resolution
