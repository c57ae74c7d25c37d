package analyzer

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/ppiankov/lambdaspectre/internal/report"
)

func TestAnalysisResult_JSON(t *testing.T) {
	r := AnalysisResult{
		Records:    fixtures()[:1],
		Statistics: Summarize(fixtures()[:1]),
	}

	data, err := json.Marshal(r)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(data), `"functionName":"LambdaA"`) {
		t.Fatalf("expected functionName in output: %s", data)
	}

	var decoded AnalysisResult
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.Statistics.CountInvocations != 10 {
		t.Fatalf("expected 10 invocations, got %f", decoded.Statistics.CountInvocations)
	}
}

func TestStatistics_NullMeans(t *testing.T) {
	data, err := json.Marshal(report.Summary{Status: report.StatusCompleted, Statistics: ptr(Summarize(nil))})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(data), `"avgCostPerInvocation":null`) {
		t.Fatalf("expected null mean: %s", data)
	}
}

func ptr[T any](v T) *T { return &v }
