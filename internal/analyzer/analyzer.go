package analyzer

import (
	"sort"

	"github.com/ppiankov/lambdaspectre/internal/report"
)

// Summarize computes the report statistics over all rows.
// Sums cover every additive column; means weight each row equally.
func Summarize(records []report.CostRecord) report.Statistics {
	stats := report.Statistics{FunctionsAnalyzed: len(records)}

	var costPerInvocation, maxMemory, overProvisioned, provisioned, duration float64
	for _, r := range records {
		stats.CountInvocations += r.CountInvocations
		stats.AllDurationInSeconds += r.AllDurationInSeconds
		stats.MemoryCost += r.MemoryCost
		stats.InvocationCost += r.InvocationCost
		stats.StorageCost += r.StorageCost
		stats.TotalCost += r.TotalCost
		stats.PotentialSavings += r.PotentialSavings
		stats.TimeoutInvocations += r.TimeoutInvocations
		stats.MemoryExceededInvocation += r.MemoryExceededInvocation
		stats.LogSizeGB += r.LogSizeGB
		stats.LogIngestionCost += r.LogIngestionCost
		stats.LogStorageCost += r.LogStorageCost
		stats.AnalysisCost += r.AnalysisCost

		costPerInvocation += r.AvgCostPerInvocation
		maxMemory += r.MaxMemoryUsedMB
		overProvisioned += r.OverProvisionedMB
		provisioned += r.ProvisionedMemoryMB
		duration += r.AvgDurationPerInvocation
	}

	if n := float64(len(records)); n > 0 {
		stats.AvgCostPerInvocation = mean(costPerInvocation, n)
		stats.AvgMaxMemoryUsedMB = mean(maxMemory, n)
		stats.AvgOverProvisionedMB = mean(overProvisioned, n)
		stats.AvgProvisionedMemoryMB = mean(provisioned, n)
		stats.AvgDurationPerInvocation = mean(duration, n)
	}
	return stats
}

func mean(sum, n float64) *float64 {
	v := sum / n
	return &v
}

// Analyze filters records for display and summarizes the full set.
func Analyze(records []report.CostRecord, cfg AnalyzerConfig) *AnalysisResult {
	var filtered []report.CostRecord
	for _, r := range records {
		if r.PotentialSavings >= cfg.MinSavings {
			filtered = append(filtered, r)
		}
	}

	sort.SliceStable(filtered, func(i, j int) bool {
		return sortKey(filtered[i], cfg.SortBy) > sortKey(filtered[j], cfg.SortBy)
	})
	if cfg.Top > 0 && len(filtered) > cfg.Top {
		filtered = filtered[:cfg.Top]
	}

	return &AnalysisResult{
		Records:    filtered,
		Statistics: Summarize(records),
	}
}

func sortKey(r report.CostRecord, by SortField) float64 {
	switch by {
	case SortByCost:
		return r.TotalCost
	case SortByInvocations:
		return r.CountInvocations
	case SortByOverProvisioned:
		return r.OverProvisionedMB
	default:
		return r.PotentialSavings
	}
}
