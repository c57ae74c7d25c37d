package commands

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/ppiankov/lambdaspectre/internal/pipeline"
	"github.com/ppiankov/lambdaspectre/internal/report"
	"github.com/ppiankov/lambdaspectre/internal/storage"
)

var historyFlags struct {
	limit    int32
	token    string
	all      bool
	format   string
	localDir string
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List completed reports, most recent first",
	Long: `List the archived summaries under summaries/. Archive keys sort newest first,
so each page holds the most recent reports not yet shown. Pass the printed
token back with --token to read the next page.`,
	RunE: runHistory,
}

func init() {
	historyCmd.Flags().Int32Var(&historyFlags.limit, "limit", 20, "Reports per page")
	historyCmd.Flags().StringVar(&historyFlags.token, "token", "", "Continuation token from a previous page")
	historyCmd.Flags().BoolVar(&historyFlags.all, "all", false, "List every archived report instead of one page")
	historyCmd.Flags().StringVar(&historyFlags.format, "format", "text", "Output format: text or json")
	historyCmd.Flags().StringVar(&historyFlags.localDir, "local-dir", "", "Read reports from this directory instead of S3")
}

// historyEntry is one archived report with its headline figures.
type historyEntry struct {
	report.ArchiveEntry
	Summary report.Summary `json:"summary"`
}

func runHistory(cmd *cobra.Command, _ []string) error {
	if historyFlags.localDir != "" && cfg.Bucket == "" {
		cfg.Bucket = "local"
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx := cmd.Context()
	client, err := newClient(ctx)
	if err != nil {
		return err
	}
	store, err := newStore(client, historyFlags.localDir)
	if err != nil {
		return err
	}

	var (
		entries []report.ArchiveEntry
		next    string
	)
	if historyFlags.all {
		entries, err = pipeline.AllHistory(ctx, store, cfg.Bucket)
	} else {
		entries, next, err = pipeline.History(ctx, store, cfg.Bucket, historyFlags.limit, historyFlags.token)
	}
	if err != nil {
		return enhanceError("list report history", err)
	}

	rows := make([]historyEntry, 0, len(entries))
	for _, e := range entries {
		row := historyEntry{ArchiveEntry: e}
		body, err := store.Get(ctx, storage.Location{Bucket: cfg.Bucket, Filename: e.Key})
		if err == nil {
			err = json.Unmarshal(body, &row.Summary)
		}
		if err != nil {
			slog.Warn("Failed to read archived summary", "key", e.Key, "error", err)
		}
		rows = append(rows, row)
	}

	w := cmd.OutOrStdout()
	if historyFlags.format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(struct {
			Reports   []historyEntry `json:"reports"`
			NextToken string         `json:"nextToken,omitempty"`
		}{rows, next})
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ARCHIVED\tREPORT\tWINDOW\tFUNCTIONS\tCOST\tSAVINGS")
	for _, r := range rows {
		functions, cost, savings := "-", "-", "-"
		if st := r.Summary.Statistics; st != nil {
			functions = humanize.Comma(int64(st.FunctionsAnalyzed))
			cost = "$" + humanize.CommafWithDigits(st.TotalCost, 2)
			savings = "$" + humanize.CommafWithDigits(st.PotentialSavings, 2)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s..%s\t%s\t%s\t%s\n",
			humanize.Time(r.Archived), r.ReportID, r.Summary.StartDate, r.Summary.EndDate, functions, cost, savings)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if next != "" {
		fmt.Fprintf(w, "\nMore reports: lambdaspectre history --token %s\n", next)
	}
	return nil
}
