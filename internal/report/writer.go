package report

import (
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/nao1215/littlebusters/internal/model"
)

// Writer defines the interface for report output.
// Implementations write archive reports in various formats.
//
// Design decision: We use an interface to allow different output formats
// and destinations. This enables writing to files or stdout with the
// same API.
type Writer interface {
	// Write outputs the report of a single archive.
	// Returns the number of bytes written and any error encountered.
	Write(report *model.ArchiveReport) (int, error)

	// WriteAll outputs the reports of a whole run, including a summary
	// where the format has one.
	WriteAll(reports []*model.ArchiveReport) (int, error)
}

// MultiWriter writes to multiple Writers simultaneously.
// This is useful for outputting to both terminal and file.
//
// Design decision: We implement this as a separate type rather than
// using io.MultiWriter because our Writer interface is different
// from io.Writer - we write reports, not raw bytes.
type MultiWriter struct {
	writers []Writer
}

// NewMultiWriter creates a Writer that writes to all provided Writers.
func NewMultiWriter(writers ...Writer) *MultiWriter {
	return &MultiWriter{writers: writers}
}

// Write outputs the report to all configured Writers.
// Returns the total bytes written across all writers.
// Stops on first error encountered.
func (m *MultiWriter) Write(report *model.ArchiveReport) (int, error) {
	var total int
	for _, w := range m.writers {
		n, err := w.Write(report)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// WriteAll outputs the run to all configured Writers.
func (m *MultiWriter) WriteAll(reports []*model.ArchiveReport) (int, error) {
	var total int
	for _, w := range m.writers {
		n, err := w.WriteAll(reports)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// baseWriter provides common functionality for report writers.
type baseWriter struct {
	output io.Writer
}

// newBaseWriter creates a baseWriter with the given output destination.
func newBaseWriter(output io.Writer) baseWriter {
	return baseWriter{output: output}
}

// IsTerminal reports whether w is a terminal. Only *os.File values can be.
func IsTerminal(w io.Writer) bool {
	file, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// stateLabel returns a display label for a state, e.g. "Outliers Computed".
func stateLabel(s model.State) string {
	return cases.Title(language.English).String(strings.ReplaceAll(s.String(), "_", " "))
}

// outcome describes what happened to an archive in a few words.
func outcome(r *model.ArchiveReport) string {
	switch {
	case r.Failed():
		return "failed"
	case r.Rewritten():
		return "rewritten"
	case r.HasOutliers():
		return "reported"
	case r.State == model.StateDone:
		return "clean"
	default:
		return strings.ToLower(stateLabel(r.State))
	}
}
