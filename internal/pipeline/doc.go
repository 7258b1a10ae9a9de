// Package pipeline runs page archives through the analysis steps in sequence.
//
// Each archive moves through open, extract_sizes, normalize_spreads,
// detect_outliers and rewrite. Every step receives a Job holding the
// archive's report and advances the report's State. A step that fails
// aborts the archive: the report is marked failed and no later step runs.
//
// Design decision: We keep the step pipeline rather than calling the
// resolution and archive packages directly because:
// 1. It gives consistent logging and cancellation across steps
// 2. The report records exactly which steps ran for history and reports
// 3. Tests can run a partial pipeline with mock steps
//
// Archives are processed one at a time by Batch. A failure in one archive
// never affects the next.
package pipeline
