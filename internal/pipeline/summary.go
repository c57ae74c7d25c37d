package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ppiankov/lambdaspectre/internal/report"
	"github.com/ppiankov/lambdaspectre/internal/storage"
)

func putSummary(ctx context.Context, store storage.BlobStore, loc storage.Location, summary report.Summary) error {
	body, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("encode summary: %w", err)
	}
	if err := store.Put(ctx, loc, body); err != nil {
		return fmt.Errorf("write summary %s: %w", loc.Key(), err)
	}
	return nil
}

// ReadSummary loads the canonical summary of a report.
// A missing summary is reported with status Error.
func ReadSummary(ctx context.Context, store storage.BlobStore, bucket string, id report.ID) (report.Summary, error) {
	body, err := store.Get(ctx, report.SummaryLocation(bucket, id))
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return report.Summary{Status: report.StatusError, ReportID: id}, nil
		}
		return report.Summary{}, fmt.Errorf("read summary of %s: %w", id, err)
	}
	var summary report.Summary
	if err := json.Unmarshal(body, &summary); err != nil {
		return report.Summary{}, fmt.Errorf("decode summary of %s: %w", id, err)
	}
	return summary, nil
}

// History returns one page of archived summaries, most recent first, and the
// token to resume after it. An empty token means the archive is exhausted.
func History(ctx context.Context, store storage.BlobStore, bucket string, limit int32, token string) ([]report.ArchiveEntry, string, error) {
	pager := storage.NewPager(store, bucket, report.ArchivePrefix+"/", limit, token)
	page, err := pager.NextPage(ctx)
	if err != nil {
		return nil, "", fmt.Errorf("list %s: %w", report.ArchivePrefix, err)
	}
	entries := make([]report.ArchiveEntry, 0, len(page.Keys))
	for _, key := range page.Keys {
		if entry, ok := report.ParseArchiveKey(key); ok {
			entries = append(entries, entry)
		}
	}
	return entries, pager.Token(), nil
}

// AllHistory returns every archived summary, most recent first.
func AllHistory(ctx context.Context, store storage.BlobStore, bucket string) ([]report.ArchiveEntry, error) {
	keys, err := storage.ListAll(ctx, store, bucket, report.ArchivePrefix+"/")
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", report.ArchivePrefix, err)
	}
	entries := make([]report.ArchiveEntry, 0, len(keys))
	for _, key := range keys {
		if entry, ok := report.ParseArchiveKey(key); ok {
			entries = append(entries, entry)
		}
	}
	return entries, nil
}

// ReadDetail loads the consolidated detail table of a completed report.
func ReadDetail(ctx context.Context, store storage.BlobStore, bucket string, id report.ID) ([]report.CostRecord, error) {
	loc := report.DetailLocation(bucket, id)
	body, err := store.Get(ctx, loc)
	if err != nil {
		return nil, fmt.Errorf("read detail table %s: %w", loc.Key(), err)
	}
	records, err := report.DecodeCSV(body)
	if err != nil {
		return nil, fmt.Errorf("decode detail table %s: %w", loc.Key(), err)
	}
	return records, nil
}
