package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Status is the lifecycle state of a report summary.
type Status string

const (
	StatusRunning   Status = "Running"
	StatusCompleted Status = "Completed"
	StatusFailed    Status = "Failed"
	StatusError     Status = "Error"
)

// Terminal reports whether no further transition is expected.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// ID identifies a report. Workflow payloads may carry it as a JSON string or number.
type ID string

// UnmarshalJSON accepts both "123" and 123.
func (id *ID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*id = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("report id must be a string or number: %w", err)
	}
	*id = ID(n.String())
	return nil
}

// CostRecord holds the cost and right-sizing metrics of one function over one window.
type CostRecord struct {
	FunctionName             string  `json:"functionName"`
	Runtime                  string  `json:"runtime"`
	Architecture             string  `json:"architecture"`
	CountInvocations         float64 `json:"countInvocations"`
	AllDurationInSeconds     float64 `json:"allDurationInSeconds"`
	ProvisionedMemoryMB      float64 `json:"provisionedMemoryMB"`
	MemoryCost               float64 `json:"MemoryCost"`
	InvocationCost           float64 `json:"InvocationCost"`
	StorageCost              float64 `json:"StorageCost"`
	TotalCost                float64 `json:"totalCost"`
	AvgCostPerInvocation     float64 `json:"avgCostPerInvocation"`
	MaxMemoryUsedMB          float64 `json:"maxMemoryUsedMB"`
	OverProvisionedMB        float64 `json:"overProvisionedMB"`
	OptimalMemory            float64 `json:"optimalMemory"`
	PotentialSavings         float64 `json:"potentialSavings"`
	AvgDurationPerInvocation float64 `json:"avgDurationPerInvocation"`
	TimeoutInvocations       float64 `json:"timeoutInvocations"`
	MemoryExceededInvocation float64 `json:"memoryExceededInvocation"`
	LogSizeGB                float64 `json:"logSizeGB"`
	LogIngestionCost         float64 `json:"logIngestionCost"`
	LogStorageCost           float64 `json:"logStorageCost"`
	AnalysisCost             float64 `json:"analysisCost"`
}

// ClampSavings enforces potentialSavings >= 0 and optimalMemory <= provisioned.
// Negative savings mean the right-sizing estimate was wrong, so the
// recommendation falls back to the provisioned size.
func (r *CostRecord) ClampSavings() {
	if r.PotentialSavings < 0 {
		r.PotentialSavings = 0
		r.OptimalMemory = r.ProvisionedMemoryMB
	}
	if r.OptimalMemory > r.ProvisionedMemoryMB {
		r.OptimalMemory = r.ProvisionedMemoryMB
	}
}

// Statistics are the aggregate figures of a completed report.
// Means over zero rows are null.
type Statistics struct {
	FunctionsAnalyzed        int      `json:"functionsAnalyzed"`
	CountInvocations         float64  `json:"countInvocations"`
	AllDurationInSeconds     float64  `json:"allDurationInSeconds"`
	MemoryCost               float64  `json:"MemoryCost"`
	InvocationCost           float64  `json:"InvocationCost"`
	StorageCost              float64  `json:"StorageCost"`
	TotalCost                float64  `json:"totalCost"`
	PotentialSavings         float64  `json:"potentialSavings"`
	TimeoutInvocations       float64  `json:"timeoutInvocations"`
	MemoryExceededInvocation float64  `json:"memoryExceededInvocation"`
	LogSizeGB                float64  `json:"logSizeGB"`
	LogIngestionCost         float64  `json:"logIngestionCost"`
	LogStorageCost           float64  `json:"logStorageCost"`
	AnalysisCost             float64  `json:"analysisCost"`
	AvgCostPerInvocation     *float64 `json:"avgCostPerInvocation"`
	AvgMaxMemoryUsedMB       *float64 `json:"avgMaxMemoryUsedMB"`
	AvgOverProvisionedMB     *float64 `json:"avgOverProvisionedMB"`
	AvgProvisionedMemoryMB   *float64 `json:"avgProvisionedMemoryMB"`
	AvgDurationPerInvocation *float64 `json:"avgDurationPerInvocation"`
}

// Summary is the per-report record stored at <reportId>/summary.json.
type Summary struct {
	Status    Status `json:"status"`
	ReportID  ID     `json:"reportID,omitempty"`
	StartDate string `json:"startDate,omitempty"`
	EndDate   string `json:"endDate,omitempty"`

	*Statistics

	ErrorCode    string `json:"errorCode,omitempty"`
	ErrorMessage string `json:"errorMessage,omitempty"`
	FailureTime  string `json:"failureTime,omitempty"`
}

// RunningSummary is the placeholder written when a report starts.
func RunningSummary() Summary {
	return Summary{Status: StatusRunning}
}

// FailedSummary records a terminal pipeline failure.
func FailedSummary(id ID, code, message string, at time.Time) Summary {
	return Summary{
		Status:       StatusFailed,
		ReportID:     id,
		ErrorCode:    code,
		ErrorMessage: message,
		FailureTime:  at.UTC().Format(time.RFC3339Nano),
	}
}

// Window is the analysed time range.
type Window struct {
	Start time.Time
	End   time.Time
}

// ParseWindow parses ISO-8601 start and end dates such as 2024-05-31T23:00:00.000Z.
func ParseWindow(start, end string) (Window, error) {
	s, err := time.Parse(time.RFC3339, start)
	if err != nil {
		return Window{}, fmt.Errorf("parse start date %q: %w", start, err)
	}
	e, err := time.Parse(time.RFC3339, end)
	if err != nil {
		return Window{}, fmt.Errorf("parse end date %q: %w", end, err)
	}
	if !e.After(s) {
		return Window{}, fmt.Errorf("end date %s is not after start date %s", end, start)
	}
	return Window{Start: s.UTC(), End: e.UTC()}, nil
}

// FormatDate renders t in the payload date format.
func FormatDate(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z")
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
