package report

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/nao1215/markdown"
	"github.com/nao1215/markdown/mermaid/piechart"

	"github.com/nao1215/littlebusters/internal/model"
)

// MarkdownWriter outputs reports in Markdown format.
// This format is designed for documentation and sharing, e.g. attaching
// the result of a library clean-up to an issue.
//
// Design decision: We use the nao1215/markdown library for fluent markdown
// generation which provides:
// 1. Type-safe markdown generation
// 2. Support for tables, lists, and code blocks
// 3. GitHub-flavored markdown alerts
type MarkdownWriter struct {
	baseWriter
}

// NewMarkdownWriter creates a MarkdownWriter that outputs to the given writer.
func NewMarkdownWriter(output io.Writer) *MarkdownWriter {
	return &MarkdownWriter{
		baseWriter: newBaseWriter(output),
	}
}

// Write outputs the report of a single archive as a Markdown document.
func (w *MarkdownWriter) Write(report *model.ArchiveReport) (int, error) {
	md := markdown.NewMarkdown(w.output)

	md.H1("littlebusters report: " + report.Name)
	md.PlainText("")
	w.writeArchive(md, report)
	w.writeFooter(md)

	return len(md.String()), md.Build()
}

// WriteAll outputs a run summary followed by one section per archive.
func (w *MarkdownWriter) WriteAll(reports []*model.ArchiveReport) (int, error) {
	md := markdown.NewMarkdown(w.output)
	summary := model.NewSummary(reports)

	md.H1("littlebusters report")
	md.PlainText("")
	w.writeSummary(md, summary)

	for _, r := range reports {
		md.H2(r.Name)
		md.PlainText("")
		w.writeArchive(md, r)
	}

	w.writeFooter(md)

	return len(md.String()), md.Build()
}

// writeSummary writes the run totals.
func (w *MarkdownWriter) writeSummary(md *markdown.Markdown, s *model.Summary) {
	md.H2("Summary")
	md.PlainText("")

	md.Table(markdown.TableSet{
		Header: []string{"Outcome", "Archives"},
		Rows: [][]string{
			{"✅ Clean", strconv.Itoa(s.Clean)},
			{"🟡 Flagged", strconv.Itoa(s.Flagged)},
			{"✂️ Rewritten", strconv.Itoa(s.Rewritten)},
			{"❌ Failed", strconv.Itoa(s.Failed)},
			{"**Total**", "**" + strconv.Itoa(s.Archives) + "**"},
		},
	})
	md.PlainText("")

	md.Table(markdown.TableSet{
		Header: []string{"Pages", "Count"},
		Rows: [][]string{
			{"Analyzed", strconv.Itoa(s.PagesAnalyzed)},
			{"Flagged", strconv.Itoa(s.PagesFlagged)},
			{"Removed", strconv.Itoa(s.PagesRemoved)},
		},
	})
	md.PlainText("")

	if s.Archives > 1 {
		w.writePieChart(md, s)
	}

	switch {
	case s.HasFailures():
		md.Cautionf("%d archive(s) could not be processed.", s.Failed)
		md.PlainText("")
		rows := make([][]string, len(s.Failures))
		for i, f := range s.Failures {
			rows[i] = []string{"`" + f.Path + "`", f.Error}
		}
		md.Table(markdown.TableSet{Header: []string{"Archive", "Error"}, Rows: rows})
	case s.PagesFlagged > 0:
		md.Warningf("%d page(s) in %d archive(s) fall below the average resolution.", s.PagesFlagged, s.Flagged)
	default:
		md.Tip("No undersized pages found.")
	}
	md.PlainText("")
}

// writePieChart writes a mermaid pie chart of archive outcomes.
func (w *MarkdownWriter) writePieChart(md *markdown.Markdown, s *model.Summary) {
	chart := piechart.NewPieChart(
		io.Discard,
		piechart.WithTitle("Archive Outcomes"),
		piechart.WithShowData(true),
	)

	if s.Clean > 0 {
		chart.LabelAndIntValue("Clean", uint64(s.Clean))
	}
	if s.Flagged > 0 {
		chart.LabelAndIntValue("Flagged", uint64(s.Flagged))
	}
	if s.Failed > 0 {
		chart.LabelAndIntValue("Failed", uint64(s.Failed))
	}

	md.PlainText("")
	md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
	md.PlainText("")
}

// writeArchive writes the details of one archive.
func (w *MarkdownWriter) writeArchive(md *markdown.Markdown, report *model.ArchiveReport) {
	rows := [][]string{
		{"Path", "`" + report.Path + "`"},
		{"Analyzed", report.DateAnalyzed.Format("2006-01-02 15:04:05 MST")},
		{"Pages", strconv.Itoa(report.EntryCount())},
		{"Threshold", fmt.Sprintf("%g (pages below %.0f%% of the average area are flagged)", float64(report.Threshold), report.Threshold.Target()*100)},
		{"State", stateLabel(report.State)},
	}
	if report.Fingerprint != "" {
		rows = append(rows, []string{"Fingerprint", "`" + truncateString(report.Fingerprint, 19) + "`"})
	}
	if report.Average.Width > 0 {
		rows = append(rows, []string{"Average page", fmt.Sprintf("%.1fx%.1f", report.Average.Width, report.Average.Height)})
	}

	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows:   rows,
	})
	md.PlainText("")

	w.writeAlert(md, report)

	if report.HasOutliers() {
		w.writeOutliers(md, report)
	}

	if len(report.Spreads) > 0 {
		names := make([]string, len(report.Spreads))
		for i, index := range report.Spreads {
			names[i] = fmt.Sprintf("p%03d `%s`", index+1, report.EntryName(index))
		}
		md.H3("Double spreads")
		md.PlainText("")
		md.BulletList(names...)
		md.PlainText("")
	}
}

// writeAlert writes an alert describing the outcome.
func (w *MarkdownWriter) writeAlert(md *markdown.Markdown, report *model.ArchiveReport) {
	switch {
	case report.Failed():
		md.Cautionf("Processing failed: %s", report.ErrorMessage)
	case report.Rewritten():
		md.Importantf("%d page(s) were removed from the archive.", len(report.RemovedEntries))
	case report.HasOutliers():
		md.Note("Dry run: flagged pages were reported but the archive was left unchanged.")
	default:
		md.Tip("All pages are within the threshold.")
	}
	md.PlainText("")
}

// writeOutliers writes a table of flagged pages.
func (w *MarkdownWriter) writeOutliers(md *markdown.Markdown, report *model.ArchiveReport) {
	count := report.EntryCount()
	target := report.Threshold.Target() * 100

	rows := make([][]string, len(report.Outliers))
	for i, o := range report.Outliers {
		size := "-"
		if o.Index < len(report.Entries) {
			size = report.Entries[o.Index].Size.String()
		}
		rows[i] = []string{
			fmt.Sprintf("%03d/%03d", o.Index+1, count),
			"`" + report.EntryName(o.Index) + "`",
			size,
			fmt.Sprintf("%.1f%% < %.0f%%", o.Ratio*100, target),
		}
	}

	md.H3("Flagged pages")
	md.PlainText("")
	md.Table(markdown.TableSet{
		Header: []string{"Page", "Entry", "Size", "Area"},
		Rows:   rows,
	})
	md.PlainText("")
}

// writeFooter writes the report footer.
func (w *MarkdownWriter) writeFooter(md *markdown.Markdown) {
	md.HorizontalRule()
	md.PlainText("")
	md.PlainTextf("*Report generated by [littlebusters](https://github.com/nao1215/littlebusters)*")
}

// truncateString truncates a string to maxLen characters with ellipsis.
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return strings.TrimSpace(s[:maxLen-3]) + "..."
}
