package main

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/nao1215/littlebusters/internal/config"
	"github.com/nao1215/littlebusters/internal/database"
	"github.com/nao1215/littlebusters/internal/report"
)

// defaultHistoryLimit is the number of recent entries listed without an archive.
const defaultHistoryLimit = 20

// NewHistoryCmd creates the history command.
// This command shows earlier results stored in the history database.
func NewHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history [archive]",
		Short: "Show results of earlier checks",
		Long: `History lists results recorded by earlier check and watch runs.

Without an argument the most recent results across all archives are listed.
With an archive path, every result for that archive is listed.

Examples:
  # Most recent results
  littlebusters history

  # Every result for one archive
  littlebusters history issue-001.cbz

  # Full report of one result, by ID from the listing
  littlebusters history --id 12

  # Results for any copy of an archive, by content fingerprint
  littlebusters history --fingerprint 0123456789abcdef...

  # All archives in the database
  littlebusters history --list-archives`,
		Args: cobra.MaximumNArgs(1),
		RunE: runHistoryCmd,
	}

	cmd.Flags().IntP("limit", "l", defaultHistoryLimit,
		"Number of recent results to list when no archive is given")
	cmd.Flags().Int64P("id", "i", 0,
		"Show the full report with this ID")
	cmd.Flags().String("fingerprint", "",
		"List results of archives with this content fingerprint")
	cmd.Flags().BoolP("list-archives", "L", false,
		"List all archives in the database")
	cmd.Flags().BoolP("json", "j", false,
		"Output the report selected with --id as JSON")
	cmd.Flags().String("db-dir", config.XDGDataDir(),
		"Directory of the history database")

	return cmd
}

// runHistoryCmd executes the history command.
func runHistoryCmd(cmd *cobra.Command, args []string) error {
	dbDir, err := cmd.Flags().GetString("db-dir")
	if err != nil {
		return err
	}

	db, err := database.Open(dbDir, database.DefaultOptions())
	if err != nil {
		return fmt.Errorf("failed to open history database: %w", err)
	}
	defer db.Close()

	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	listArchives, err := cmd.Flags().GetBool("list-archives")
	if err != nil {
		return err
	}
	if listArchives {
		return listHistoryArchives(ctx, db, out)
	}

	id, err := cmd.Flags().GetInt64("id")
	if err != nil {
		return err
	}
	if id != 0 {
		asJSON, err := cmd.Flags().GetBool("json")
		if err != nil {
			return err
		}
		return showHistoryReport(ctx, db, out, id, asJSON)
	}

	fingerprint, err := cmd.Flags().GetString("fingerprint")
	if err != nil {
		return err
	}

	var entries []database.ReportMetadata
	switch {
	case fingerprint != "":
		entries, err = db.FindByFingerprint(ctx, fingerprint)
	case len(args) == 1:
		entries, err = db.GetHistory(ctx, args[0])
	default:
		limit, lerr := cmd.Flags().GetInt("limit")
		if lerr != nil {
			return lerr
		}
		entries, err = db.GetRecent(ctx, limit)
	}
	if err != nil {
		return fmt.Errorf("failed to get history: %w", err)
	}

	if len(entries) == 0 {
		fmt.Fprintln(out, "No history found.")
		fmt.Fprintln(out, "\nUse 'littlebusters check <archive>' to check an archive.")
		return nil
	}

	fmt.Fprint(out, historyTable(entries))
	fmt.Fprintln(out)
	return nil
}

// listHistoryArchives prints every archive with at least one result.
func listHistoryArchives(ctx context.Context, db *database.HistoryDB, out io.Writer) error {
	archives, err := db.ListArchives(ctx)
	if err != nil {
		return fmt.Errorf("failed to list archives: %w", err)
	}

	if len(archives) == 0 {
		fmt.Fprintln(out, "No archives found in the history database.")
		return nil
	}

	fmt.Fprintf(out, "Checked archives (%d):\n\n", len(archives))
	for _, path := range archives {
		fmt.Fprintf(out, "  • %s\n", path)
	}
	fmt.Fprintln(out, "\nUse 'littlebusters history <archive>' to see the results for an archive.")

	return nil
}

// showHistoryReport prints one stored report in full.
func showHistoryReport(ctx context.Context, db *database.HistoryDB, out io.Writer, id int64, asJSON bool) error {
	r, err := db.GetReportByID(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to get report %d: %w", id, err)
	}

	var w report.Writer
	if asJSON {
		w = report.NewJSONWriter(out, report.WithPrettyPrint())
	} else {
		w = report.NewSimpleWriter(out, report.WithVerbose(true))
	}

	_, err = w.Write(r)
	return err
}

// historyTable renders history entries as a console table.
func historyTable(entries []database.ReportMetadata) string {
	rows := make([][]string, len(entries))
	for i, e := range entries {
		state := e.State.String()
		if e.DryRun && e.Outliers > 0 {
			state += " (dry run)"
		}
		rows[i] = []string{
			strconv.FormatInt(e.ID, 10),
			e.Timestamp.Local().Format("2006-01-02 15:04"),
			e.Path,
			strconv.Itoa(e.Pages),
			strconv.Itoa(e.Outliers),
			strconv.Itoa(e.Removed),
			state,
		}
	}

	return report.RenderTable(
		[]string{"ID", "Date", "Archive", "Pages", "Outliers", "Removed", "State"},
		rows,
	)
}
