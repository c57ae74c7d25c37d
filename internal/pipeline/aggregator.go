package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/ppiankov/lambdaspectre/internal/analyzer"
	"github.com/ppiankov/lambdaspectre/internal/report"
	"github.com/ppiankov/lambdaspectre/internal/storage"
)

// Aggregator merges the batch tables of a report into its detail table and summary.
type Aggregator struct {
	store   storage.BlobStore
	bucket  string
	workers int
	now     func() time.Time
}

// NewAggregator creates the final stage.
func NewAggregator(store storage.BlobStore, opts Options) *Aggregator {
	opts = opts.WithDefaults()
	return &Aggregator{
		store:   store,
		bucket:  opts.Bucket,
		workers: opts.DownloadWorkers,
		now:     time.Now,
	}
}

// Handle reads every batch table, writes <reportId>/analysis.csv and the
// Completed summary, then archives a copy of the summary under summaries/.
// The report id and dates are taken from the first result.
func (a *Aggregator) Handle(ctx context.Context, results []BatchResult) (report.Summary, error) {
	if len(results) == 0 {
		return report.Summary{}, fmt.Errorf("%w: no batch results to aggregate", ErrInvalidEvent)
	}
	first := results[0]
	if err := validateReportID(first.ReportID); err != nil {
		return report.Summary{}, err
	}

	bucket := a.bucket
	if bucket == "" {
		bucket = first.Bucket
	}
	log := slog.With("report_id", first.ReportID)
	log.Info("Aggregating batch tables", "batches", len(results))

	records, err := a.download(ctx, results)
	if err != nil {
		return report.Summary{}, err
	}

	detail, err := report.EncodeCSV(records)
	if err != nil {
		return report.Summary{}, fmt.Errorf("encode detail table: %w", err)
	}
	detailLoc := report.DetailLocation(bucket, first.ReportID)
	if err := a.store.Put(ctx, detailLoc, detail); err != nil {
		return report.Summary{}, fmt.Errorf("write detail table %s: %w", detailLoc.Key(), err)
	}

	stats := analyzer.Summarize(records)
	summary := report.Summary{
		Status:     report.StatusCompleted,
		ReportID:   first.ReportID,
		StartDate:  first.StartDate,
		EndDate:    first.EndDate,
		Statistics: &stats,
	}

	if err := putSummary(ctx, a.store, report.SummaryLocation(bucket, first.ReportID), summary); err != nil {
		return report.Summary{}, err
	}
	archive := report.ArchiveLocation(bucket, first.ReportID, a.now())
	if err := putSummary(ctx, a.store, archive, summary); err != nil {
		return report.Summary{}, err
	}

	log.Info("Report completed", "functions", stats.FunctionsAnalyzed, "total_cost", stats.TotalCost, "archive", archive.Key())
	return summary, nil
}

// download fetches the batch tables concurrently and concatenates them in
// input order. Each goroutine owns one slot.
func (a *Aggregator) download(ctx context.Context, results []BatchResult) ([]report.CostRecord, error) {
	var wg sync.WaitGroup
	errs := make([]error, len(results))
	slots := make([][]report.CostRecord, len(results))
	sem := semaphore.NewWeighted(int64(a.workers))

	for i, res := range results {
		if err := sem.Acquire(ctx, 1); err != nil {
			errs[i] = fmt.Errorf("acquire download slot: %w", err)
			break
		}

		wg.Add(1)
		go func() {
			defer sem.Release(1)
			defer wg.Done()

			slots[i], errs[i] = a.readBatch(ctx, res.Location)
		}()
	}

	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}

	var records []report.CostRecord
	for _, rows := range slots {
		records = append(records, rows...)
	}
	return records, nil
}

func (a *Aggregator) readBatch(ctx context.Context, loc storage.Location) ([]report.CostRecord, error) {
	body, err := a.store.Get(ctx, loc)
	if err != nil {
		return nil, fmt.Errorf("download batch table %s: %w", loc.Key(), err)
	}
	rows, err := report.DecodeCSV(body)
	if err != nil {
		return nil, fmt.Errorf("decode batch table %s: %w", loc.Key(), err)
	}
	return rows, nil
}
