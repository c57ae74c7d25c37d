// Package costquery derives per-function cost records from Logs Insights.
package costquery

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ppiankov/lambdaspectre/internal/aws"
	"github.com/ppiankov/lambdaspectre/internal/pricing"
	"github.com/ppiankov/lambdaspectre/internal/report"
)

// ConfigSource looks up a function's runtime configuration.
type ConfigSource interface {
	FunctionConfig(ctx context.Context, name string) (aws.FunctionConfig, error)
}

// QueryBackend is the Logs Insights submit/poll protocol.
type QueryBackend interface {
	LogGroupExists(ctx context.Context, name string) (bool, error)
	StartQuery(ctx context.Context, logGroup string, start, end time.Time, query string) (string, error)
	QueryResults(ctx context.Context, queryID string) (aws.QueryResult, error)
}

// Engine computes the cost record of one function.
type Engine struct {
	configs ConfigSource
	backend QueryBackend
	policy  PollPolicy
	sleep   func(ctx context.Context, d time.Duration) error
}

// NewEngine creates an engine. Zero policy fields take their defaults.
func NewEngine(configs ConfigSource, backend QueryBackend, policy PollPolicy) *Engine {
	return &Engine{
		configs: configs,
		backend: backend,
		policy:  policy.WithDefaults(),
		sleep:   sleepContext,
	}
}

// Analyze returns the cost record of a function over the window.
// A nil record with a nil error means the function has no data: its log
// group is missing, the query failed or timed out, or it was never invoked.
// Only the configuration lookup returns an error.
func (e *Engine) Analyze(ctx context.Context, name string, window report.Window) (*report.CostRecord, error) {
	fc, err := e.configs.FunctionConfig(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("look up function %s: %w", name, err)
	}
	log := slog.With("function", name, "log_group", fc.LogGroup)

	exists, err := e.backend.LogGroupExists(ctx, fc.LogGroup)
	if err != nil {
		log.Warn("Failed to check log group", "error", err)
		return nil, nil
	}
	if !exists {
		log.Info("Log group not found, skipping function")
		return nil, nil
	}

	res, ok := e.runQuery(ctx, log, fc, window)
	if !ok {
		return nil, nil
	}
	if len(res.Rows) == 0 {
		log.Info("Query returned no rows")
		return nil, nil
	}

	rec, err := buildRecord(fc, res)
	if err != nil {
		log.Warn("Discarding unparseable query result", "error", err)
		return nil, nil
	}
	if rec.CountInvocations == 0 {
		log.Info("No invocations in window")
		return nil, nil
	}
	return rec, nil
}

// runQuery submits the query and polls until it finishes. It returns false
// for every outcome that should be treated as no data.
func (e *Engine) runQuery(ctx context.Context, log *slog.Logger, fc aws.FunctionConfig, window report.Window) (aws.QueryResult, bool) {
	queryID, err := e.backend.StartQuery(ctx, fc.LogGroup, window.Start, window.End, BuildQuery(fc))
	if err != nil {
		if aws.IsMalformedQuery(err) {
			log.Error("Malformed query", "error", err)
		} else {
			log.Error("Failed to start query", "error", err, "code", aws.ErrorCode(err))
		}
		return aws.QueryResult{}, false
	}
	log = log.With("query_id", queryID)

	for attempt := 0; attempt < e.policy.MaxAttempts; attempt++ {
		res, err := e.backend.QueryResults(ctx, queryID)
		if err != nil {
			if !aws.IsThrottling(err) {
				log.Error("Failed to poll query", "error", err, "code", aws.ErrorCode(err))
				return aws.QueryResult{}, false
			}
			wait := e.policy.ThrottleWait(attempt)
			log.Warn("Throttled while polling query", "attempt", attempt+1, "wait", wait)
			if err := e.sleep(ctx, wait); err != nil {
				log.Warn("Polling interrupted", "error", err)
				return aws.QueryResult{}, false
			}
			continue
		}

		if res.Status == aws.QueryComplete {
			log.Debug("Query complete", "attempt", attempt+1, "rows", len(res.Rows))
			return res, true
		}
		if res.Status.Finished() {
			log.Error("Query did not complete", "status", res.Status)
			return aws.QueryResult{}, false
		}

		wait := e.policy.Wait(attempt)
		log.Debug("Query pending", "status", res.Status, "attempt", attempt+1, "wait", wait)
		if err := e.sleep(ctx, wait); err != nil {
			log.Warn("Polling interrupted", "error", err)
			return aws.QueryResult{}, false
		}
	}

	log.Error("Query polling exhausted", "attempts", e.policy.MaxAttempts)
	return aws.QueryResult{}, false
}

// buildRecord maps the first result row onto a CostRecord. Intermediate
// query fields that are not part of the record are ignored.
func buildRecord(fc aws.FunctionConfig, res aws.QueryResult) (*report.CostRecord, error) {
	rec := &report.CostRecord{
		FunctionName: fc.Name,
		Runtime:      fc.Runtime,
		Architecture: fc.Architecture,
	}
	for field, value := range res.Rows[0] {
		if _, err := rec.SetField(field, value); err != nil {
			return nil, err
		}
	}

	logs := pricing.LogCostsFromBytes(res.BytesScanned)
	rec.LogSizeGB = logs.SizeGB
	rec.LogIngestionCost = logs.IngestionCost
	rec.LogStorageCost = logs.StorageCost
	rec.AnalysisCost = logs.AnalysisCost

	rec.ClampSavings()
	return rec, nil
}
