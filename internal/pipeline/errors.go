package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/ppiankov/lambdaspectre/internal/report"
	"github.com/ppiankov/lambdaspectre/internal/storage"
)

const (
	unknownErrorCode    = "Unknown"
	unknownErrorMessage = "Unknown error occurred"
)

// ErrorRecorder writes the Failed summary when any stage fails.
type ErrorRecorder struct {
	store  storage.BlobStore
	bucket string
	now    func() time.Time
}

// NewErrorRecorder creates the failure stage.
func NewErrorRecorder(store storage.BlobStore, opts Options) *ErrorRecorder {
	return &ErrorRecorder{
		store:  store,
		bucket: opts.Bucket,
		now:    time.Now,
	}
}

// Handle overwrites the report summary with a Failed record. It never
// returns an error: a failed write is logged and the output is still returned.
func (r *ErrorRecorder) Handle(ctx context.Context, event FailureEvent) (FailureOutput, error) {
	id := event.ResolveReportID()
	code := event.Error
	if code == "" {
		code = unknownErrorCode
	}
	cause := event.Cause
	if cause == "" {
		cause = unknownErrorMessage
	}

	log := slog.With("report_id", id)
	log.Error("Pipeline execution failed", "error_code", code, "error_cause", cause)

	out := FailureOutput{Status: report.StatusFailed, ReportID: id, ErrorCode: code}
	if err := validateReportID(id); err != nil {
		log.Error("Cannot record failure without a usable report id", "error", err)
		return out, nil
	}

	summary := report.FailedSummary(id, code, cause, r.now())
	if err := putSummary(ctx, r.store, report.SummaryLocation(r.bucket, id), summary); err != nil {
		log.Error("Failed to write error summary", "error", err)
		return out, nil
	}

	log.Info("Error summary written")
	return out, nil
}
