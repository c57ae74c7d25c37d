package analyzer

import (
	"math"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/ppiankov/lambdaspectre/internal/report"
)

func fixtures() []report.CostRecord {
	return []report.CostRecord{
		{FunctionName: "LambdaA", CountInvocations: 10, TimeoutInvocations: 2, AvgCostPerInvocation: 0.5, TotalCost: 5, PotentialSavings: 1, ProvisionedMemoryMB: 128},
		{FunctionName: "LambdaB", CountInvocations: 20, TimeoutInvocations: 1, AvgCostPerInvocation: 0.75, TotalCost: 15, PotentialSavings: 3, ProvisionedMemoryMB: 256},
		{FunctionName: "LambdaC", CountInvocations: 15, TimeoutInvocations: 0, AvgCostPerInvocation: 0.5, TotalCost: 7.5, PotentialSavings: 0, ProvisionedMemoryMB: 512},
	}
}

func TestSummarize_SumsAndMeans(t *testing.T) {
	stats := Summarize(fixtures())

	if stats.FunctionsAnalyzed != 3 {
		t.Fatalf("expected 3 functions, got %d", stats.FunctionsAnalyzed)
	}
	if stats.CountInvocations != 45 {
		t.Fatalf("expected 45 invocations, got %f", stats.CountInvocations)
	}
	if stats.TimeoutInvocations != 3 {
		t.Fatalf("expected 3 timeouts, got %f", stats.TimeoutInvocations)
	}
	if stats.TotalCost != 27.5 {
		t.Fatalf("expected total cost 27.5, got %f", stats.TotalCost)
	}
	if stats.AvgCostPerInvocation == nil || math.Abs(*stats.AvgCostPerInvocation-0.5833333333) > 1e-9 {
		t.Fatalf("expected mean cost per invocation 0.5833, got %v", stats.AvgCostPerInvocation)
	}
	if stats.AvgProvisionedMemoryMB == nil || *stats.AvgProvisionedMemoryMB != 896.0/3 {
		t.Fatalf("expected mean provisioned memory 298.67, got %v", stats.AvgProvisionedMemoryMB)
	}
}

func TestSummarize_Subset(t *testing.T) {
	rows := fixtures()
	stats := Summarize([]report.CostRecord{rows[0], rows[2]})
	if stats.CountInvocations != 25 {
		t.Fatalf("expected 25 invocations, got %f", stats.CountInvocations)
	}
}

func TestSummarize_Empty(t *testing.T) {
	stats := Summarize(nil)

	if stats.FunctionsAnalyzed != 0 || stats.CountInvocations != 0 || stats.TotalCost != 0 {
		t.Fatalf("expected zero sums, got %+v", stats)
	}
	if stats.AvgCostPerInvocation != nil || stats.AvgMaxMemoryUsedMB != nil ||
		stats.AvgOverProvisionedMB != nil || stats.AvgProvisionedMemoryMB != nil ||
		stats.AvgDurationPerInvocation != nil {
		t.Fatal("expected nil means over zero rows")
	}
}

func TestAnalyze_FiltersAndSorts(t *testing.T) {
	analysis := Analyze(fixtures(), AnalyzerConfig{MinSavings: 0.5})

	if len(analysis.Records) != 2 {
		t.Fatalf("expected 2 records after filtering, got %d", len(analysis.Records))
	}
	if analysis.Records[0].FunctionName != "LambdaB" {
		t.Fatalf("expected LambdaB first by savings, got %s", analysis.Records[0].FunctionName)
	}
	if analysis.Statistics.FunctionsAnalyzed != 3 {
		t.Fatalf("statistics must cover all rows, got %d", analysis.Statistics.FunctionsAnalyzed)
	}
}

func TestAnalyze_SortByInvocationsTop(t *testing.T) {
	analysis := Analyze(fixtures(), AnalyzerConfig{SortBy: SortByInvocations, Top: 2})

	if len(analysis.Records) != 2 {
		t.Fatalf("expected top 2, got %d", len(analysis.Records))
	}
	if analysis.Records[0].FunctionName != "LambdaB" || analysis.Records[1].FunctionName != "LambdaC" {
		t.Fatalf("unexpected order: %s, %s", analysis.Records[0].FunctionName, analysis.Records[1].FunctionName)
	}
}

func TestParseSortField(t *testing.T) {
	if f, err := ParseSortField(""); err != nil || f != SortBySavings {
		t.Fatalf("expected default savings, got %q %v", f, err)
	}
	if f, err := ParseSortField("cost"); err != nil || f != SortByCost {
		t.Fatalf("expected cost, got %q %v", f, err)
	}
	if _, err := ParseSortField("name"); err == nil {
		t.Fatal("expected error for unknown field")
	}
}

func TestProperty_SummarizeOrderIndependent(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("reversing rows does not change statistics", prop.ForAll(
		func(counts []float64) bool {
			rows := make([]report.CostRecord, len(counts))
			reversed := make([]report.CostRecord, len(counts))
			for i, c := range counts {
				rows[i] = report.CostRecord{CountInvocations: c, AvgCostPerInvocation: c / 1000}
				reversed[len(counts)-1-i] = rows[i]
			}
			a, b := Summarize(rows), Summarize(reversed)
			if math.Abs(a.CountInvocations-b.CountInvocations) > 1e-6 {
				return false
			}
			if (a.AvgCostPerInvocation == nil) != (b.AvgCostPerInvocation == nil) {
				return false
			}
			return a.AvgCostPerInvocation == nil || math.Abs(*a.AvgCostPerInvocation-*b.AvgCostPerInvocation) < 1e-9
		},
		gen.SliceOf(gen.Float64Range(0, 1e6)),
	))

	properties.TestingRun(t)
}
