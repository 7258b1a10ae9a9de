package report

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/nao1215/littlebusters/internal/model"
)

// SimpleWriter outputs human-readable console lines.
//
// For every flagged page it writes one line:
//
//	issue-001.cbz: p010/010 (4.7% < 80%)
//
// naming the archive, the one-based page number, the page count, the page's
// area as a share of the average area, and the share required to pass
// (1 - threshold). Clean archives produce no output unless verbose.
//
// Design decision: The line format is kept stable so it can be piped to
// grep and friends. Bold archive names are only emitted when the output is
// a terminal.
type SimpleWriter struct {
	baseWriter

	// colorize enables bold archive names.
	colorize bool

	// verbose adds a page table per archive and a run summary.
	verbose bool
}

// SimpleWriterOption configures a SimpleWriter.
type SimpleWriterOption func(*SimpleWriter)

// WithColor enables or disables bold archive names.
// By default the writer colorizes when the output is a terminal.
func WithColor(colorize bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.colorize = colorize
	}
}

// WithVerbose enables verbose output with additional details.
func WithVerbose(verbose bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.verbose = verbose
	}
}

// NewSimpleWriter creates a SimpleWriter that outputs to the given writer.
func NewSimpleWriter(output io.Writer, opts ...SimpleWriterOption) *SimpleWriter {
	w := &SimpleWriter{
		baseWriter: newBaseWriter(output),
		colorize:   IsTerminal(output),
	}

	for _, opt := range opts {
		opt(w)
	}

	return w
}

// Write outputs the lines for one archive.
func (w *SimpleWriter) Write(report *model.ArchiveReport) (int, error) {
	var sb strings.Builder
	w.writeArchive(&sb, report)
	return io.WriteString(w.output, sb.String())
}

// WriteAll outputs the lines for every archive, followed by a summary
// table when verbose.
func (w *SimpleWriter) WriteAll(reports []*model.ArchiveReport) (int, error) {
	var sb strings.Builder
	for _, r := range reports {
		w.writeArchive(&sb, r)
	}
	if w.verbose && len(reports) > 0 {
		w.writeSummary(&sb, reports)
	}
	return io.WriteString(w.output, sb.String())
}

// WriteSummary outputs the summary table and run totals. It is used after
// archives were streamed one by one with Write.
func (w *SimpleWriter) WriteSummary(reports []*model.ArchiveReport) (int, error) {
	if len(reports) == 0 {
		return 0, nil
	}
	var sb strings.Builder
	w.writeSummary(&sb, reports)
	return io.WriteString(w.output, sb.String())
}

// writeArchive writes the flagged pages of one archive.
func (w *SimpleWriter) writeArchive(sb *strings.Builder, report *model.ArchiveReport) {
	name := w.archiveName(report)

	if report.Failed() {
		fmt.Fprintf(sb, "%s: failed: %s\n", name, report.ErrorMessage)
		return
	}

	for _, line := range OutlierLines(report) {
		sb.WriteString(name)
		sb.WriteString(": ")
		sb.WriteString(line)
		sb.WriteString("\n")
	}

	if !w.verbose {
		return
	}

	if report.Rewritten() {
		fmt.Fprintf(sb, "%s: removed %d page(s)\n", name, len(report.RemovedEntries))
	} else if report.HasOutliers() && report.DryRun {
		fmt.Fprintf(sb, "%s: dry run, archive left unchanged\n", name)
	}
	sb.WriteString(w.pageTable(report))
	sb.WriteString("\n")
}

// archiveName returns the archive name, bold when colorizing.
func (w *SimpleWriter) archiveName(report *model.ArchiveReport) string {
	if w.colorize {
		return text.Bold.Sprint(report.Name)
	}
	return report.Name
}

// OutlierLines formats one line per flagged page, without the archive name,
// e.g. "p010/010 (4.7% < 80%)".
func OutlierLines(report *model.ArchiveReport) []string {
	lines := make([]string, len(report.Outliers))
	target := report.Threshold.Target() * 100
	count := report.EntryCount()
	for i, o := range report.Outliers {
		lines[i] = fmt.Sprintf("p%03d/%03d (%.1f%% < %.0f%%)", o.Index+1, count, o.Ratio*100, target)
	}
	return lines
}

// pageTable renders every page of the archive with its size and verdict.
func (w *SimpleWriter) pageTable(report *model.ArchiveReport) string {
	flagged := make(map[int]float64, len(report.Outliers))
	for _, o := range report.Outliers {
		flagged[o.Index] = o.Ratio
	}

	rows := make([][]string, len(report.Entries))
	for i, e := range report.Entries {
		verdict := ""
		if ratio, ok := flagged[i]; ok {
			verdict = fmt.Sprintf("outlier (%.1f%%)", ratio*100)
		} else if e.Spread {
			verdict = "spread"
		}
		rows[i] = []string{strconv.Itoa(i + 1), e.Name, e.Size.String(), verdict}
	}

	return renderTable(
		[]string{"Page", "Entry", "Size", "Verdict"},
		rows,
		[]text.Align{text.AlignRight, text.AlignLeft, text.AlignRight, text.AlignLeft},
	)
}

// writeSummary writes one row per archive and the run totals.
func (w *SimpleWriter) writeSummary(sb *strings.Builder, reports []*model.ArchiveReport) {
	rows := make([][]string, len(reports))
	for i, r := range reports {
		rows[i] = []string{
			r.Name,
			strconv.Itoa(r.EntryCount()),
			strconv.Itoa(len(r.Outliers)),
			outcome(r),
		}
	}

	sb.WriteString(renderTable(
		[]string{"Archive", "Pages", "Outliers", "Outcome"},
		rows,
		[]text.Align{text.AlignLeft, text.AlignRight, text.AlignRight, text.AlignLeft},
	))
	sb.WriteString("\n")

	s := model.NewSummary(reports)
	fmt.Fprintf(sb, "%d archive(s): %d clean, %d flagged, %d rewritten, %d failed\n",
		s.Archives, s.Clean, s.Flagged, s.Rewritten, s.Failed)
}

// renderTable renders rows with go-pretty's rounded style.
func renderTable(headers []string, rows [][]string, aligns []text.Align) string {
	columns := len(headers)
	if columns == 0 {
		return ""
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, columns)
	for i := range columns {
		header[i] = headers[i]
	}
	tw.AppendHeader(header)

	for _, row := range rows {
		r := make(table.Row, columns)
		for i := range columns {
			if i < len(row) {
				r[i] = row[i]
			} else {
				r[i] = ""
			}
		}
		tw.AppendRow(r)
	}

	configs := make([]table.ColumnConfig, 0, columns)
	for i := range columns {
		align := text.AlignLeft
		if i < len(aligns) {
			align = aligns[i]
		}
		configs = append(configs, table.ColumnConfig{
			Number:      i + 1,
			Align:       align,
			AlignHeader: text.AlignLeft,
		})
	}
	tw.SetColumnConfigs(configs)

	return tw.Render()
}

// RenderTable renders a rounded console table. Rows shorter than headers
// are padded with empty cells.
func RenderTable(headers []string, rows [][]string) string {
	return renderTable(headers, rows, nil)
}
