package analyzer

import (
	"fmt"

	"github.com/ppiankov/lambdaspectre/internal/report"
)

// SortField orders records in a displayed report.
type SortField string

const (
	SortBySavings         SortField = "savings"
	SortByCost            SortField = "cost"
	SortByInvocations     SortField = "invocations"
	SortByOverProvisioned SortField = "overprovisioned"
)

// ParseSortField validates a --sort flag value. Empty means savings.
func ParseSortField(s string) (SortField, error) {
	switch SortField(s) {
	case "":
		return SortBySavings, nil
	case SortBySavings, SortByCost, SortByInvocations, SortByOverProvisioned:
		return SortField(s), nil
	}
	return "", fmt.Errorf("unknown sort field %q (want savings, cost, invocations or overprovisioned)", s)
}

// AnalysisResult holds the displayed records and statistics over all rows.
type AnalysisResult struct {
	Records    []report.CostRecord `json:"records"`
	Statistics report.Statistics   `json:"statistics"`
}

// AnalyzerConfig controls which records are displayed.
type AnalyzerConfig struct {
	MinSavings float64
	SortBy     SortField
	Top        int
}
