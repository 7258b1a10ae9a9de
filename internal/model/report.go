package model

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"
)

// State is the processing state of a single archive.
// An archive only ever moves forward through these states.
type State int

const (
	// StatePending means the archive has not been opened yet.
	StatePending State = iota
	// StateOpened means the archive container was read successfully.
	StateOpened
	// StateSizesExtracted means every entry was decoded and measured.
	StateSizesExtracted
	// StateNormalized means double spreads were corrected.
	StateNormalized
	// StateOutliersComputed means outlier detection finished.
	StateOutliersComputed
	// StateReported means outliers were found and reported without rewriting (dry run).
	StateReported
	// StateRewritten means a replacement archive was fully staged.
	StateRewritten
	// StateSwapped means the replacement archive took the place of the original.
	StateSwapped
	// StateDone means processing finished with nothing left to do.
	StateDone
	// StateFailed means processing aborted. It is terminal.
	StateFailed
)

// ErrStateRegression is returned when a report is asked to move backwards.
var ErrStateRegression = errors.New("archive state cannot move backwards")

var stateNames = map[State]string{
	StatePending:          "pending",
	StateOpened:           "opened",
	StateSizesExtracted:   "sizes_extracted",
	StateNormalized:       "normalized",
	StateOutliersComputed: "outliers_computed",
	StateReported:         "reported",
	StateRewritten:        "rewritten",
	StateSwapped:          "swapped",
	StateDone:             "done",
	StateFailed:           "failed",
}

// String returns the lower-case name of the state.
func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *State) UnmarshalText(text []byte) error {
	for state, name := range stateNames {
		if name == string(text) {
			*s = state
			return nil
		}
	}
	return fmt.Errorf("unknown archive state %q", string(text))
}

// IsTerminal reports whether no further transition is possible.
func (s State) IsTerminal() bool {
	return s == StateDone || s == StateFailed
}

// Entry describes one archive entry together with its measured size.
type Entry struct {
	// Index is the zero-based position of the entry in the archive.
	Index int `json:"index"`

	// Name is the entry name inside the archive.
	Name string `json:"name"`

	// Size is the decoded resolution, before spread correction.
	Size Size `json:"size"`

	// Spread is true if the entry was classified as a double spread.
	Spread bool `json:"spread,omitempty"`
}

// ArchiveReport is the result of analyzing a single page archive.
// It is filled in step by step as the archive moves through the pipeline.
//
// Design decision: We keep both the raw sizes (in Entries) and the corrected
// sizes (in Sizes). The corrected list is what the detector works on; the raw
// list is what users expect to see in reports.
type ArchiveReport struct {
	// Path is the archive path as given by the caller.
	Path string `json:"path"`

	// Name is the base name of the archive, used for console output.
	Name string `json:"name"`

	// Fingerprint is a content hash of the archive taken when it was opened.
	Fingerprint string `json:"fingerprint,omitempty"`

	// DateAnalyzed is the time the analysis started.
	DateAnalyzed time.Time `json:"date_analyzed"`

	// Threshold is the tolerance the archive was analyzed with.
	Threshold Threshold `json:"threshold"`

	// DryRun is true if the archive must never be rewritten.
	DryRun bool `json:"dry_run"`

	// Entries lists every archive entry in archive order.
	Entries []Entry `json:"entries"`

	// Sizes is the spread-corrected size list, index-aligned with Entries.
	Sizes []Size `json:"sizes,omitempty"`

	// Spreads lists indices classified as double spreads.
	Spreads []int `json:"spreads,omitempty"`

	// Average is the average resolution after spread correction.
	Average Average `json:"average"`

	// Outliers lists the flagged entries in ascending index order.
	Outliers []Deviation `json:"outliers,omitempty"`

	// RemovedEntries lists the entry names dropped by a rewrite.
	RemovedEntries []string `json:"removed_entries,omitempty"`

	// State is the furthest state the archive reached.
	State State `json:"state"`

	// PerformedSteps lists the pipeline steps that ran.
	PerformedSteps []string `json:"performed_steps"`

	// Error holds the error that aborted processing, if any.
	// It is not serialized; ErrorMessage carries the text.
	Error error `json:"-"`

	// ErrorMessage is the text of Error.
	ErrorMessage string `json:"error,omitempty"`
}

// NewArchiveReport creates an empty report for the archive at path.
func NewArchiveReport(path string) *ArchiveReport {
	return &ArchiveReport{
		Path:           path,
		Name:           filepath.Base(path),
		DateAnalyzed:   time.Now(),
		Threshold:      DefaultThreshold,
		Entries:        make([]Entry, 0),
		PerformedSteps: make([]string, 0),
		State:          StatePending,
	}
}

// Advance moves the report to the given state.
// Moving to an earlier state, or away from a terminal state, is an error.
func (r *ArchiveReport) Advance(state State) error {
	if r.State.IsTerminal() || state < r.State {
		return fmt.Errorf("%w: %s -> %s", ErrStateRegression, r.State, state)
	}
	r.State = state
	return nil
}

// Fail records err and moves the report to StateFailed.
func (r *ArchiveReport) Fail(err error) {
	r.Error = err
	if err != nil {
		r.ErrorMessage = err.Error()
	}
	r.State = StateFailed
}

// Failed reports whether processing of the archive aborted.
func (r *ArchiveReport) Failed() bool {
	return r.State == StateFailed
}

// EntryCount returns the number of entries in the archive.
func (r *ArchiveReport) EntryCount() int {
	return len(r.Entries)
}

// HasOutliers reports whether at least one entry was flagged.
func (r *ArchiveReport) HasOutliers() bool {
	return len(r.Outliers) > 0
}

// EntryName returns the name of the entry at index, or an empty string
// if the index is unknown.
func (r *ArchiveReport) EntryName(index int) string {
	if index < 0 || index >= len(r.Entries) {
		return ""
	}
	return r.Entries[index].Name
}

// Rewritten reports whether flagged entries were removed from the archive.
func (r *ArchiveReport) Rewritten() bool {
	return len(r.RemovedEntries) > 0
}
