package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/ppiankov/lambdaspectre/internal/report"
	"github.com/ppiankov/lambdaspectre/internal/storage"
)

// CostAnalyzer produces the cost record of one function, or nil when the
// function has no data in the window.
type CostAnalyzer interface {
	Analyze(ctx context.Context, name string, window report.Window) (*report.CostRecord, error)
}

// Progress reports how many functions of a batch have been analysed.
type Progress struct {
	Function string
	Done     int
	Total    int
}

// Generator analyses one batch of functions and stores the rows as CSV.
type Generator struct {
	store             storage.BlobStore
	analyzer          CostAnalyzer
	bucket            string
	workers           int
	failOnLookupError bool
	newName           func() string
	progressFn        func(Progress)
}

// NewGenerator creates the batch stage.
func NewGenerator(store storage.BlobStore, analyzer CostAnalyzer, opts Options) *Generator {
	opts = opts.WithDefaults()
	return &Generator{
		store:             store,
		analyzer:          analyzer,
		bucket:            opts.Bucket,
		workers:           opts.QueryWorkers,
		failOnLookupError: opts.FailOnLookupError,
		newName:           uuid.NewString,
	}
}

// SetProgressFn sets a callback invoked after each function completes.
// Calls within one Run are serialized; concurrent Runs may call it in parallel.
func (g *Generator) SetProgressFn(fn func(Progress)) {
	g.progressFn = fn
}

// Handle reads the batch, analyses every function and writes the batch table.
// Functions without data are left out; the table is header-only if none remain.
func (g *Generator) Handle(ctx context.Context, event BatchEvent) (BatchResult, error) {
	if err := validateReportID(event.ReportID); err != nil {
		return BatchResult{}, err
	}
	window, err := parseWindow(event.StartDate, event.EndDate)
	if err != nil {
		return BatchResult{}, err
	}

	targets, err := LoadBatch(ctx, g.store, event.TargetsLocation)
	if err != nil {
		return BatchResult{}, err
	}

	log := slog.With("report_id", event.ReportID, "batch", event.TargetsLocation.Key())
	log.Info("Generating cost report", "functions", len(targets))

	records, err := g.Run(ctx, targets, window)
	if err != nil {
		return BatchResult{}, err
	}

	body, err := report.EncodeCSV(records)
	if err != nil {
		return BatchResult{}, fmt.Errorf("encode batch table: %w", err)
	}

	bucket := g.bucket
	if bucket == "" {
		bucket = event.TargetsLocation.Bucket
	}
	loc := storage.Location{
		Bucket:    bucket,
		Directory: report.BatchDirectory(event.ReportID),
		Filename:  g.newName() + ".csv",
	}
	if err := g.store.Put(ctx, loc, body); err != nil {
		return BatchResult{}, fmt.Errorf("write batch table %s: %w", loc.Key(), err)
	}

	log.Info("Batch table written", "key", loc.Key(), "rows", len(records))
	return BatchResult{
		Location:  loc,
		ReportID:  event.ReportID,
		StartDate: event.StartDate,
		EndDate:   event.EndDate,
	}, nil
}

// Run analyses targets with bounded concurrency and returns the records that
// have data, in target order.
func (g *Generator) Run(ctx context.Context, targets []string, window report.Window) ([]report.CostRecord, error) {
	var (
		mu   sync.Mutex
		done int
	)
	slots := make([]*report.CostRecord, len(targets))

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(g.workers)

	for i, name := range targets {
		eg.Go(func() error {
			rec, err := g.analyzer.Analyze(egCtx, name, window)
			if err != nil {
				if g.failOnLookupError {
					return err
				}
				slog.Warn("Skipping function", "function", name, "error", err)
				rec = nil
			}
			slots[i] = rec

			mu.Lock()
			done++
			if g.progressFn != nil {
				g.progressFn(Progress{Function: name, Done: done, Total: len(targets)})
			}
			mu.Unlock()
			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("analyse batch: %w", err)
	}

	records := make([]report.CostRecord, 0, len(targets))
	for _, rec := range slots {
		if rec != nil {
			records = append(records, *rec)
		}
	}
	return records, nil
}
