// Package model defines the core data structures used throughout littlebusters.
//
// This package contains the following main types:
//   - Size: The pixel dimensions of one archive entry
//   - Average: The mean page dimensions of an archive
//   - Deviation: An entry flagged as an outlier, with its area ratio
//   - ArchiveReport: The result of analyzing one archive
//
// Design decision: We separate models into their own package to avoid circular
// dependencies. The archive, resolution, pipeline and report packages all need
// these types, so centralizing them prevents import cycles.
//
// The models are designed to be serializable to JSON for report output and
// database storage.
package model
