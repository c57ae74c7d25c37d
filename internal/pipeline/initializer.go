package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ppiankov/lambdaspectre/internal/report"
	"github.com/ppiankov/lambdaspectre/internal/storage"
)

// Initializer marks a report as running and stores its target batches.
type Initializer struct {
	store       storage.BlobStore
	bucket      string
	partitioner *Partitioner
}

// NewInitializer creates the first pipeline stage.
func NewInitializer(store storage.BlobStore, opts Options) *Initializer {
	return &Initializer{
		store:       store,
		bucket:      opts.Bucket,
		partitioner: NewPartitioner(store, opts),
	}
}

// Handle validates the event, writes the Running placeholder and uploads the batches.
func (s *Initializer) Handle(ctx context.Context, event InitializeEvent) (InitializeOutput, error) {
	if err := validateReportID(event.ReportID); err != nil {
		return InitializeOutput{}, err
	}
	if len(event.Targets) == 0 {
		return InitializeOutput{}, fmt.Errorf("%w: targets must not be empty", ErrInvalidEvent)
	}
	if _, err := parseWindow(event.StartDate, event.EndDate); err != nil {
		return InitializeOutput{}, err
	}

	log := slog.With("report_id", event.ReportID)
	log.Info("Initializing analysis", "functions", len(event.Targets))

	if err := putSummary(ctx, s.store, report.SummaryLocation(s.bucket, event.ReportID), report.RunningSummary()); err != nil {
		return InitializeOutput{}, err
	}

	locations, err := s.partitioner.Upload(ctx, event.ReportID, event.Targets)
	if err != nil {
		return InitializeOutput{}, err
	}

	log.Info("Analysis initialized", "batches", len(locations))
	return InitializeOutput{
		TargetsLocations: locations,
		ReportID:         event.ReportID,
		StartDate:        event.StartDate,
		EndDate:          event.EndDate,
	}, nil
}
