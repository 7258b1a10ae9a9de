package report

import (
	"encoding/json"
	"io"

	"github.com/nao1215/littlebusters/internal/model"
)

// JSONWriter outputs reports in JSON format.
// This format is designed for tool integration and programmatic processing.
//
// Design decision: We use standard encoding/json rather than a third-party
// JSON library because the report types only need struct tags and the
// State text marshaler; nothing in the output calls for more.
type JSONWriter struct {
	baseWriter

	// indent enables pretty-printed JSON output.
	// When false, output is compact (no extra whitespace).
	indent bool

	// indentPrefix is the prefix for each line in indented output.
	indentPrefix string

	// indentString is the indentation string (typically "  " or "\t").
	indentString string

	// version is written into run reports.
	version string
}

// JSONWriterOption configures a JSONWriter.
type JSONWriterOption func(*JSONWriter)

// WithIndent enables pretty-printed JSON output.
// The prefix is prepended to each line, and indent is used for each level.
func WithIndent(prefix, indent string) JSONWriterOption {
	return func(w *JSONWriter) {
		w.indent = true
		w.indentPrefix = prefix
		w.indentString = indent
	}
}

// WithPrettyPrint enables pretty-printed JSON with default indentation.
// This is a convenience wrapper for WithIndent("", "  ").
func WithPrettyPrint() JSONWriterOption {
	return WithIndent("", "  ")
}

// WithVersion sets the tool version recorded in run reports.
func WithVersion(version string) JSONWriterOption {
	return func(w *JSONWriter) {
		w.version = version
	}
}

// NewJSONWriter creates a JSONWriter that outputs to the given writer.
func NewJSONWriter(output io.Writer, opts ...JSONWriterOption) *JSONWriter {
	w := &JSONWriter{
		baseWriter: newBaseWriter(output),
	}

	for _, opt := range opts {
		opt(w)
	}

	return w
}

// Write outputs a single archive report as one JSON document.
func (w *JSONWriter) Write(report *model.ArchiveReport) (int, error) {
	return w.writeJSON(report)
}

// WriteAll outputs the whole run wrapped with a summary.
func (w *JSONWriter) WriteAll(reports []*model.ArchiveReport) (int, error) {
	return w.writeJSON(NewJSONReport(reports, w.version))
}

// writeJSON marshals the given value to JSON and writes it to the output.
func (w *JSONWriter) writeJSON(v any) (int, error) {
	var data []byte
	var err error

	if w.indent {
		data, err = json.MarshalIndent(v, w.indentPrefix, w.indentString)
	} else {
		data, err = json.Marshal(v)
	}

	if err != nil {
		return 0, err
	}

	// Add trailing newline for better terminal output
	data = append(data, '\n')

	return w.output.Write(data)
}

// JSONReport wraps the reports of a run with metadata.
//
// Design decision: We wrap the reports rather than adding fields to
// ArchiveReport because this allows us to add output-specific fields
// without polluting the core data structure.
type JSONReport struct {
	// Version is the littlebusters version that generated this report.
	Version string `json:"version,omitempty"`

	// Summary holds the run totals.
	Summary *model.Summary `json:"summary"`

	// Archives holds one report per archive, in processing order.
	Archives []*model.ArchiveReport `json:"archives"`
}

// NewJSONReport creates a JSONReport wrapper with version information.
func NewJSONReport(reports []*model.ArchiveReport, version string) *JSONReport {
	if reports == nil {
		reports = make([]*model.ArchiveReport, 0)
	}
	return &JSONReport{
		Version:  version,
		Summary:  model.NewSummary(reports),
		Archives: reports,
	}
}
