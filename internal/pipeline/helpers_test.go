package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ppiankov/lambdaspectre/internal/report"
	"github.com/ppiankov/lambdaspectre/internal/storage"
)

const (
	testBucket = "cost-reports"
	testStart  = "2024-05-01T00:00:00.000Z"
	testEnd    = "2024-05-31T23:00:00.000Z"
)

var fixedNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T) *storage.LocalStore {
	t.Helper()
	store, err := storage.NewLocalStore(t.TempDir())
	require.NoError(t, err)
	return store
}

func testOptions() Options {
	return Options{Bucket: testBucket}
}

// failingStore rejects writes and optionally reads.
type failingStore struct {
	storage.BlobStore
	putErr error
	getErr error
}

func (f *failingStore) Put(ctx context.Context, loc storage.Location, body []byte) error {
	if f.putErr != nil {
		return f.putErr
	}
	return f.BlobStore.Put(ctx, loc, body)
}

func (f *failingStore) Get(ctx context.Context, loc storage.Location) ([]byte, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.BlobStore.Get(ctx, loc)
}

var errStoreDown = errors.New("store unavailable")

func readSummary(t *testing.T, store storage.BlobStore, loc storage.Location) report.Summary {
	t.Helper()
	body, err := store.Get(context.Background(), loc)
	require.NoError(t, err)
	var s report.Summary
	require.NoError(t, json.Unmarshal(body, &s))
	return s
}

// putBatchTable stores a batch table and returns the result pointing at it.
func putBatchTable(t *testing.T, store storage.BlobStore, id report.ID, name string, rows []report.CostRecord) BatchResult {
	t.Helper()
	body, err := report.EncodeCSV(rows)
	require.NoError(t, err)
	loc := storage.Location{Bucket: testBucket, Directory: report.BatchDirectory(id), Filename: name + ".csv"}
	require.NoError(t, store.Put(context.Background(), loc, body))
	return BatchResult{Location: loc, ReportID: id, StartDate: testStart, EndDate: testEnd}
}

// inFlight tracks the highest number of concurrent calls between enter and leave.
type inFlight struct {
	current atomic.Int32
	peak    atomic.Int32
}

func (f *inFlight) enter() {
	n := f.current.Add(1)
	for {
		p := f.peak.Load()
		if n <= p || f.peak.CompareAndSwap(p, n) {
			return
		}
	}
}

func (f *inFlight) leave() {
	f.current.Add(-1)
}

// slowStore holds every Put briefly so concurrent uploads overlap.
type slowStore struct {
	storage.BlobStore
	puts inFlight
}

func (s *slowStore) Put(ctx context.Context, loc storage.Location, body []byte) error {
	s.puts.enter()
	defer s.puts.leave()
	time.Sleep(5 * time.Millisecond)
	return s.BlobStore.Put(ctx, loc, body)
}
