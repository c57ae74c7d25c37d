package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ppiankov/lambdaspectre/internal/report"
	"github.com/ppiankov/lambdaspectre/internal/storage"
)

const (
	paramsPrefix = "SF_PARAMS/SF_PARAMS"
	paramsLayout = "2006-01-02-15:04:05"
)

// Partition splits targets into contiguous chunks of at most size, in order.
func Partition(targets []string, size int) [][]string {
	if size <= 0 {
		size = DefaultBatchSize
	}
	chunks := make([][]string, 0, (len(targets)+size-1)/size)
	for start := 0; start < len(targets); start += size {
		end := min(start+size, len(targets))
		chunks = append(chunks, targets[start:end:end])
	}
	return chunks
}

// Partitioner stores target batches so stage payloads carry only locations.
type Partitioner struct {
	store   storage.BlobStore
	bucket  string
	size    int
	workers int
	now     func() time.Time
}

// NewPartitioner creates a partitioner writing to bucket.
func NewPartitioner(store storage.BlobStore, opts Options) *Partitioner {
	opts = opts.WithDefaults()
	return &Partitioner{
		store:   store,
		bucket:  opts.Bucket,
		size:    opts.BatchSize,
		workers: opts.PartitionWorkers,
		now:     time.Now,
	}
}

// Upload writes each chunk as params<i>.json under a directory named by the
// upload time and the report id, and returns the locations in chunk order.
func (p *Partitioner) Upload(ctx context.Context, id report.ID, targets []string) ([]storage.Location, error) {
	chunks := Partition(targets, p.size)
	dir := path.Join(paramsPrefix+p.now().UTC().Format(paramsLayout), string(id))
	locations := make([]storage.Location, len(chunks))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)

	for i, chunk := range chunks {
		g.Go(func() error {
			body, err := json.Marshal(chunk)
			if err != nil {
				return fmt.Errorf("encode batch %d: %w", i, err)
			}
			loc := storage.Location{
				Bucket:    p.bucket,
				Directory: dir,
				Filename:  fmt.Sprintf("params%d.json", i),
			}
			if err := p.store.Put(ctx, loc, body); err != nil {
				return fmt.Errorf("upload batch %s: %w", loc.Key(), err)
			}
			locations[i] = loc
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	slog.Debug("Uploaded target batches", "directory", dir, "batches", len(locations), "targets", len(targets))
	return locations, nil
}

// LoadBatch reads a batch written by Upload.
func LoadBatch(ctx context.Context, store storage.BlobStore, loc storage.Location) ([]string, error) {
	body, err := store.Get(ctx, loc)
	if err != nil {
		return nil, fmt.Errorf("download batch %s: %w", path.Join(loc.Bucket, loc.Key()), err)
	}
	var targets []string
	if err := json.Unmarshal(body, &targets); err != nil {
		return nil, fmt.Errorf("decode batch %s: %w", loc.Key(), err)
	}
	return targets, nil
}
