package pipeline

// Defaults for the stage worker pools.
const (
	DefaultBatchSize        = 5
	DefaultPartitionWorkers = 20
	DefaultQueryWorkers     = 2
	DefaultDownloadWorkers  = 10
	DefaultBatchWorkers     = 4
)

// Options configures the stages. Zero values take the defaults above.
type Options struct {
	// Bucket receives every blob the pipeline writes.
	Bucket string
	// BatchSize is the number of targets per generator invocation.
	BatchSize int
	// PartitionWorkers bounds concurrent batch uploads.
	PartitionWorkers int
	// QueryWorkers bounds concurrent Logs Insights queries per batch.
	// The query API throttles quickly, so keep this small.
	QueryWorkers int
	// DownloadWorkers bounds concurrent batch downloads in the aggregator.
	DownloadWorkers int
	// BatchWorkers bounds how many batches a single process analyses at once
	// when it drives every stage itself.
	BatchWorkers int
	// FailOnLookupError aborts a batch when one function's configuration
	// cannot be read. By default the function is skipped.
	FailOnLookupError bool
}

// WithDefaults fills zero fields.
func (o Options) WithDefaults() Options {
	if o.BatchSize <= 0 {
		o.BatchSize = DefaultBatchSize
	}
	if o.PartitionWorkers <= 0 {
		o.PartitionWorkers = DefaultPartitionWorkers
	}
	if o.QueryWorkers <= 0 {
		o.QueryWorkers = DefaultQueryWorkers
	}
	if o.DownloadWorkers <= 0 {
		o.DownloadWorkers = DefaultDownloadWorkers
	}
	if o.BatchWorkers <= 0 {
		o.BatchWorkers = DefaultBatchWorkers
	}
	return o
}
