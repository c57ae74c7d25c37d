package aws

// FunctionConfig is the subset of a Lambda function's configuration that drives cost.
type FunctionConfig struct {
	Name               string
	Runtime            string
	MemoryMB           int
	EphemeralStorageMB int
	Architecture       string
	LogGroup           string
}

// QueryStatus mirrors the Logs Insights query states.
type QueryStatus string

const (
	QueryRunning   QueryStatus = "Running"
	QueryComplete  QueryStatus = "Complete"
	QueryFailed    QueryStatus = "Failed"
	QueryCancelled QueryStatus = "Cancelled"
	QueryTimeout   QueryStatus = "Timeout"
	QueryUnknown   QueryStatus = "Unknown"
)

// Finished reports whether the query will not change state again.
func (s QueryStatus) Finished() bool {
	switch s {
	case QueryComplete, QueryFailed, QueryCancelled, QueryTimeout:
		return true
	}
	return false
}

// QueryResult is one poll of a Logs Insights query.
type QueryResult struct {
	Status       QueryStatus
	Rows         []map[string]string
	BytesScanned float64
}
