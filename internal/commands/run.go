package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/briandowns/spinner"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/ppiankov/lambdaspectre/internal/analyzer"
	"github.com/ppiankov/lambdaspectre/internal/aws"
	"github.com/ppiankov/lambdaspectre/internal/pipeline"
	"github.com/ppiankov/lambdaspectre/internal/report"
)

var runFlags struct {
	functions  []string
	all        bool
	days       int
	start      string
	end        string
	reportID   string
	localDir   string
	skipIdle   bool
	format     string
	outputFile string
	top        int
	sortBy     string
	minSavings float64
	noProgress bool
	timeout    time.Duration
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the full report pipeline locally",
	Long: `Run every pipeline stage in-process: initialize the report, analyse each
batch of functions with Logs Insights, aggregate the batch tables and print the
result. A failure in any stage is recorded in the report summary, as the
workflow's error handler would do.`,
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringSliceVar(&runFlags.functions, "functions", nil, "Comma-separated function names")
	runCmd.Flags().BoolVar(&runFlags.all, "all", false, "Analyse every function in the region")
	runCmd.Flags().IntVar(&runFlags.days, "days", 30, "Lookback window when --start is not set (days)")
	runCmd.Flags().StringVar(&runFlags.start, "start", "", "Window start, e.g. 2024-05-01T00:00:00.000Z")
	runCmd.Flags().StringVar(&runFlags.end, "end", "", "Window end (default: now)")
	runCmd.Flags().StringVar(&runFlags.reportID, "report-id", "", "Report id (default: random UUID)")
	runCmd.Flags().StringVar(&runFlags.localDir, "local-dir", "", "Store report files in this directory instead of S3")
	runCmd.Flags().BoolVar(&runFlags.skipIdle, "skip-idle", false, "Skip functions with no invocations in CloudWatch metrics")
	runCmd.Flags().StringVar(&runFlags.format, "format", "text", "Output format: text, json, sarif")
	runCmd.Flags().StringVarP(&runFlags.outputFile, "output", "o", "", "Output file path (default: stdout)")
	runCmd.Flags().IntVar(&runFlags.top, "top", 20, "Functions listed in text output (0 for all)")
	runCmd.Flags().StringVar(&runFlags.sortBy, "sort", "savings", "Sort functions by: savings, cost, invocations, overprovisioned")
	runCmd.Flags().Float64Var(&runFlags.minSavings, "min-savings", 0, "Minimum potential savings to list a function ($)")
	runCmd.Flags().BoolVar(&runFlags.noProgress, "no-progress", false, "Disable progress output")
	runCmd.Flags().DurationVar(&runFlags.timeout, "timeout", 30*time.Minute, "Run timeout")
}

func runRun(cmd *cobra.Command, _ []string) error {
	applyRunConfigDefaults(cmd)

	ctx := cmd.Context()
	if runFlags.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, runFlags.timeout)
		defer cancel()
	}

	if runFlags.localDir != "" && cfg.Bucket == "" {
		cfg.Bucket = "local"
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	sortBy, err := analyzer.ParseSortField(runFlags.sortBy)
	if err != nil {
		return err
	}
	window, err := resolveWindow(time.Now())
	if err != nil {
		return err
	}

	client, err := newClient(ctx)
	if err != nil {
		return err
	}
	accountID, err := client.AccountID(ctx)
	if err != nil {
		slog.Warn("Failed to resolve account", "error", err)
	}

	targets, err := resolveTargets(ctx, client, window)
	if err != nil {
		return err
	}
	if len(targets) == 0 {
		return errors.New("no functions to analyse; use --functions or --all")
	}

	store, err := newStore(client, runFlags.localDir)
	if err != nil {
		return err
	}
	stages := buildStages(client, store)

	reportID := report.ID(runFlags.reportID)
	if reportID == "" {
		reportID = report.ID(uuid.NewString())
	}
	slog.Info("Starting report", "report_id", reportID, "functions", len(targets), "region", client.Region())

	var sp *spinner.Spinner
	if !runFlags.noProgress {
		sp = spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(os.Stderr))
		sp.Suffix = fmt.Sprintf(" Progress: 0/%d functions", len(targets))
		sp.Start()
	}

	summary, err := drivePipeline(ctx, stages, pipeline.InitializeEvent{
		Targets:   targets,
		ReportID:  reportID,
		StartDate: report.FormatDate(window.Start),
		EndDate:   report.FormatDate(window.End),
	}, sp)
	if sp != nil {
		sp.Stop()
	}
	if err != nil {
		return enhanceError("run report "+string(reportID), err)
	}

	records, err := pipeline.ReadDetail(ctx, store, stages.bucket, reportID)
	if err != nil {
		slog.Warn("Failed to read detail table", "error", err)
	}
	analysis := analyzer.Analyze(records, analyzer.AnalyzerConfig{
		MinSavings: runFlags.minSavings,
		SortBy:     sortBy,
	})

	return writeReport(runFlags.format, runFlags.outputFile, runFlags.top, report.Data{
		Tool:      "lambdaspectre",
		Version:   version,
		Timestamp: time.Now().UTC(),
		AccountID: accountID,
		Summary:   summary,
		Records:   analysis.Records,
	})
}

// drivePipeline runs the stages in order with the payloads the workflow would
// pass between them. Batches run concurrently up to the configured limit and
// their results keep batch order. Any stage failure is handed to the error recorder.
func drivePipeline(ctx context.Context, stages *stageSet, event pipeline.InitializeEvent, sp *spinner.Spinner) (report.Summary, error) {
	fail := func(stage string, err error) (report.Summary, error) {
		// The recorder must write even when ctx has expired.
		recordCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
		defer cancel()
		_, _ = stages.recorder.Handle(recordCtx, pipeline.FailureEvent{
			Error:    failureCode(err),
			Cause:    fmt.Sprintf("%s: %v", stage, err),
			ReportID: event.ReportID,
		})
		return report.Summary{}, err
	}

	initialized, err := stages.initializer.Handle(ctx, event)
	if err != nil {
		return fail(pipeline.StageInitializer, err)
	}

	if sp != nil {
		total, done := len(event.Targets), 0
		stages.generator.SetProgressFn(func(p pipeline.Progress) {
			sp.Lock()
			done++
			sp.Suffix = fmt.Sprintf(" Progress: %d/%d functions (%s)", done, total, p.Function)
			sp.Unlock()
		})
	}

	batches := initialized.BatchEvents()
	results := make([]pipeline.BatchResult, len(batches))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(stages.batches, 1))
	for i, batch := range batches {
		g.Go(func() error {
			res, err := stages.generator.Handle(gctx, batch)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return fail(pipeline.StageGenerator, err)
	}

	summary, err := stages.aggregator.Handle(ctx, results)
	if err != nil {
		return fail(pipeline.StageAggregator, err)
	}
	return summary, nil
}

// failureCode mirrors the error names the workflow driver reports.
func failureCode(err error) string {
	switch {
	case errors.Is(err, pipeline.ErrInvalidEvent):
		return "InvalidEvent"
	case errors.Is(err, context.DeadlineExceeded):
		return "States.Timeout"
	case aws.ErrorCode(err) != "":
		return aws.ErrorCode(err)
	default:
		return "States.TaskFailed"
	}
}

func resolveWindow(now time.Time) (report.Window, error) {
	end := now.UTC().Truncate(time.Hour)
	if runFlags.end != "" {
		e, err := time.Parse(time.RFC3339, runFlags.end)
		if err != nil {
			return report.Window{}, fmt.Errorf("parse --end: %w", err)
		}
		end = e
	}
	start := end.AddDate(0, 0, -runFlags.days)
	if runFlags.start != "" {
		s, err := time.Parse(time.RFC3339, runFlags.start)
		if err != nil {
			return report.Window{}, fmt.Errorf("parse --start: %w", err)
		}
		start = s
	}
	return report.ParseWindow(report.FormatDate(start), report.FormatDate(end))
}

func resolveTargets(ctx context.Context, client *aws.Client, window report.Window) ([]string, error) {
	targets := runFlags.functions
	if len(targets) == 0 && runFlags.all {
		names, err := aws.NewFunctionLookup(client.Lambda()).ListFunctionNames(ctx)
		if err != nil {
			return nil, enhanceError("list functions", err)
		}
		targets = names
	}
	targets = cfg.Exclude.Filter(targets)

	if runFlags.skipIdle && len(targets) > 0 {
		before := len(targets)
		targets = aws.DropIdle(ctx, aws.NewMetricsFetcher(client.CloudWatch()), targets, window.Start, window.End)
		slog.Info("Filtered idle functions", "before", before, "after", len(targets))
	}
	return targets, nil
}

func applyRunConfigDefaults(cmd *cobra.Command) {
	if !cmd.Flags().Changed("skip-idle") && cfg.SkipIdle {
		runFlags.skipIdle = true
	}
	if !cmd.Flags().Changed("timeout") {
		if d := cfg.TimeoutDuration(); d > 0 {
			runFlags.timeout = d
		}
	}
}
