package commands

import (
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/lambdaspectre/internal/analyzer"
	"github.com/ppiankov/lambdaspectre/internal/pipeline"
	"github.com/ppiankov/lambdaspectre/internal/report"
)

var statusFlags struct {
	format     string
	outputFile string
	records    bool
	top        int
	sortBy     string
	localDir   string
}

var statusCmd = &cobra.Command{
	Use:   "status <report-id>",
	Short: "Show the summary of a report",
	Long: `Print the stored summary of a report. A report that was never started
shows status Error. With --records, the per-function table of a completed
report is included.`,
	Args: cobra.ExactArgs(1),
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&statusFlags.format, "format", "text", "Output format: text, json, sarif")
	statusCmd.Flags().StringVarP(&statusFlags.outputFile, "output", "o", "", "Output file path (default: stdout)")
	statusCmd.Flags().BoolVar(&statusFlags.records, "records", false, "Include per-function rows")
	statusCmd.Flags().IntVar(&statusFlags.top, "top", 20, "Functions listed in text output (0 for all)")
	statusCmd.Flags().StringVar(&statusFlags.sortBy, "sort", "savings", "Sort functions by: savings, cost, invocations, overprovisioned")
	statusCmd.Flags().StringVar(&statusFlags.localDir, "local-dir", "", "Read reports from this directory instead of S3")
}

func runStatus(cmd *cobra.Command, args []string) error {
	id := report.ID(args[0])
	sortBy, err := analyzer.ParseSortField(statusFlags.sortBy)
	if err != nil {
		return err
	}
	if statusFlags.localDir != "" && cfg.Bucket == "" {
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
	store, err := newStore(client, statusFlags.localDir)
	if err != nil {
		return err
	}

	summary, err := pipeline.ReadSummary(ctx, store, cfg.Bucket, id)
	if err != nil {
		return enhanceError("read report", err)
	}
	if !summary.Status.Terminal() {
		slog.Warn("Report has not reached a final state", "report_id", id, "status", summary.Status)
	}

	data := report.Data{
		Tool:      "lambdaspectre",
		Version:   version,
		Timestamp: time.Now().UTC(),
		Summary:   summary,
	}
	if summary.Status == report.StatusCompleted && (statusFlags.records || statusFlags.format == "sarif") {
		records, err := pipeline.ReadDetail(ctx, store, cfg.Bucket, id)
		if err != nil {
			slog.Warn("Failed to read detail table", "report_id", id, "error", err)
		}
		data.Records = analyzer.Analyze(records, analyzer.AnalyzerConfig{SortBy: sortBy}).Records
	}

	return writeReport(statusFlags.format, statusFlags.outputFile, statusFlags.top, data)
}
