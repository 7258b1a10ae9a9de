package model

import "time"

// Summary condenses the reports of one run into counts.
//
// Design decision: We build a separate summary rather than recounting in
// every writer because:
// 1. Console, JSON and Markdown output must agree on the numbers
// 2. It can be serialized to JSON for tools that only want the totals
type Summary struct {
	// DateGenerated is when the summary was built.
	DateGenerated time.Time `json:"date_generated"`

	// Archives is the number of archives processed.
	Archives int `json:"archives"`

	// Clean is the number of archives without outliers.
	Clean int `json:"clean"`

	// Flagged is the number of archives with at least one outlier.
	Flagged int `json:"flagged"`

	// Rewritten is the number of archives that had pages removed.
	Rewritten int `json:"rewritten"`

	// Failed is the number of archives whose processing aborted.
	Failed int `json:"failed"`

	// PagesAnalyzed is the total number of pages measured.
	PagesAnalyzed int `json:"pages_analyzed"`

	// PagesFlagged is the total number of outlier pages.
	PagesFlagged int `json:"pages_flagged"`

	// PagesRemoved is the total number of pages dropped by rewrites.
	PagesRemoved int `json:"pages_removed"`

	// Failures lists every failed archive with its error message.
	Failures []Failure `json:"failures,omitempty"`
}

// Failure names an archive that could not be processed.
type Failure struct {
	// Path is the archive path.
	Path string `json:"path"`

	// Error is the message of the error that aborted processing.
	Error string `json:"error"`
}

// NewSummary counts the outcome of every report.
func NewSummary(reports []*ArchiveReport) *Summary {
	s := &Summary{
		DateGenerated: time.Now(),
		Archives:      len(reports),
	}

	for _, r := range reports {
		switch {
		case r.Failed():
			s.Failed++
			s.Failures = append(s.Failures, Failure{Path: r.Path, Error: r.ErrorMessage})
			continue
		case r.HasOutliers():
			s.Flagged++
		default:
			s.Clean++
		}

		if r.Rewritten() {
			s.Rewritten++
		}
		s.PagesAnalyzed += len(r.Sizes)
		s.PagesFlagged += len(r.Outliers)
		s.PagesRemoved += len(r.RemovedEntries)
	}

	return s
}

// HasFailures returns true if any archive failed.
func (s *Summary) HasFailures() bool {
	return s.Failed > 0
}
