package pipeline

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/lambdaspectre/internal/report"
)

func newTestRecorder(store *failingStore) *ErrorRecorder {
	r := NewErrorRecorder(store, testOptions())
	r.now = func() time.Time { return fixedNow }
	return r
}

func TestFailureEvent_ResolveReportID(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    report.ID
	}{
		{"top level camel", `{"reportId":"a"}`, "a"},
		{"top level snake", `{"report_id":"b"}`, "b"},
		{"nested preferred", `{"reportId":"top","error_output":{"reportId":"nested"}}`, "nested"},
		{"nested snake", `{"report_id":"top","error_output":{"report_id":"nested"}}`, "nested"},
		{"empty nested falls back", `{"reportId":"top","error_output":{}}`, "top"},
		{"numeric id", `{"error_output":{"report_id":42}}`, "42"},
		{"none", `{"error":"States.Timeout"}`, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var ev FailureEvent
			require.NoError(t, json.Unmarshal([]byte(tt.payload), &ev))
			assert.Equal(t, tt.want, ev.ResolveReportID())
		})
	}
}

func TestErrorRecorder_DefaultsAndOverwrite(t *testing.T) {
	store := &failingStore{BlobStore: newTestStore(t)}
	ctx := context.Background()

	_, err := NewInitializer(store, testOptions()).Handle(ctx, InitializeEvent{
		Targets: []string{"a"}, ReportID: "r1", StartDate: testStart, EndDate: testEnd,
	})
	require.NoError(t, err)

	var ev FailureEvent
	require.NoError(t, json.Unmarshal([]byte(`{"report_id":"r1"}`), &ev))
	out, err := newTestRecorder(store).Handle(ctx, ev)
	require.NoError(t, err)
	assert.Equal(t, FailureOutput{Status: report.StatusFailed, ReportID: "r1", ErrorCode: "Unknown"}, out)

	summary := readSummary(t, store, report.SummaryLocation(testBucket, "r1"))
	assert.Equal(t, report.StatusFailed, summary.Status)
	assert.Equal(t, report.ID("r1"), summary.ReportID)
	assert.Equal(t, "Unknown", summary.ErrorCode)
	assert.Equal(t, "Unknown error occurred", summary.ErrorMessage)
	assert.Equal(t, "2024-06-01T12:00:00Z", summary.FailureTime)
}

func TestErrorRecorder_CarriesErrorAndCause(t *testing.T) {
	store := &failingStore{BlobStore: newTestStore(t)}
	out, err := newTestRecorder(store).Handle(context.Background(), FailureEvent{
		Error:       "States.TaskFailed",
		Cause:       "generator crashed",
		ErrorOutput: &FailureScope{ReportID: "r2"},
	})
	require.NoError(t, err)
	assert.Equal(t, "States.TaskFailed", out.ErrorCode)

	summary := readSummary(t, store, report.SummaryLocation(testBucket, "r2"))
	assert.Equal(t, "generator crashed", summary.ErrorMessage)
}

func TestErrorRecorder_SwallowsWriteFailure(t *testing.T) {
	store := &failingStore{BlobStore: newTestStore(t), putErr: errStoreDown}
	out, err := newTestRecorder(store).Handle(context.Background(), FailureEvent{ReportID: "r3"})
	require.NoError(t, err)
	assert.Equal(t, report.StatusFailed, out.Status)
	assert.Equal(t, report.ID("r3"), out.ReportID)
}

func TestErrorRecorder_NoReportID(t *testing.T) {
	store := &failingStore{BlobStore: newTestStore(t)}
	out, err := newTestRecorder(store).Handle(context.Background(), FailureEvent{Error: "boom"})
	require.NoError(t, err)
	assert.Equal(t, report.ID(""), out.ReportID)
	assert.Equal(t, "boom", out.ErrorCode)
}
