// Package report defines report records, their storage layout and CLI renderers.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
)

// Data is everything a reporter renders.
type Data struct {
	Tool      string       `json:"tool"`
	Version   string       `json:"version"`
	Timestamp time.Time    `json:"timestamp"`
	AccountID string       `json:"account_id,omitempty"`
	Summary   Summary      `json:"summary"`
	Records   []CostRecord `json:"records,omitempty"`
}

// Reporter renders report data to an output.
type Reporter interface {
	Generate(data Data) error
}

// JSONReporter writes Data as indented JSON.
type JSONReporter struct {
	Writer io.Writer
}

// TextReporter writes a human-readable summary.
type TextReporter struct {
	Writer io.Writer
	// Top limits the per-function table; zero prints every record.
	Top int
}

// SARIFReporter writes right-sizing opportunities as SARIF results.
type SARIFReporter struct {
	Writer io.Writer
}

// Generate writes JSON output.
func (r *JSONReporter) Generate(data Data) error {
	enc := json.NewEncoder(r.Writer)
	enc.SetIndent("", "  ")
	if err := enc.Encode(data); err != nil {
		return fmt.Errorf("encode JSON report: %w", err)
	}
	return nil
}

// Generate writes text output.
func (r *TextReporter) Generate(data Data) error {
	s := data.Summary
	w := r.Writer

	fmt.Fprintf(w, "Report %s: %s\n", displayID(s.ReportID), s.Status)
	if s.StartDate != "" || s.EndDate != "" {
		fmt.Fprintf(w, "Window: %s .. %s\n", s.StartDate, s.EndDate)
	}
	if data.AccountID != "" {
		fmt.Fprintf(w, "Account: %s\n", data.AccountID)
	}

	switch s.Status {
	case StatusFailed:
		fmt.Fprintf(w, "Error: %s\n", s.ErrorCode)
		fmt.Fprintf(w, "Cause: %s\n", s.ErrorMessage)
		fmt.Fprintf(w, "Failed at: %s\n", s.FailureTime)
		return nil
	case StatusRunning, StatusError:
		return nil
	}

	if st := s.Statistics; st != nil {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "Functions analyzed:  %d\n", st.FunctionsAnalyzed)
		fmt.Fprintf(w, "Invocations:         %s (%s timed out, %s out of memory)\n",
			humanize.Comma(int64(st.CountInvocations)),
			humanize.Comma(int64(st.TimeoutInvocations)),
			humanize.Comma(int64(st.MemoryExceededInvocation)))
		fmt.Fprintf(w, "Billed duration:     %ss\n", humanize.CommafWithDigits(st.AllDurationInSeconds, 1))
		fmt.Fprintf(w, "Total cost:          $%s\n", humanize.CommafWithDigits(st.TotalCost, 4))
		fmt.Fprintf(w, "Potential savings:   $%s\n", humanize.CommafWithDigits(st.PotentialSavings, 4))
		if st.AvgProvisionedMemoryMB != nil && st.AvgMaxMemoryUsedMB != nil {
			fmt.Fprintf(w, "Avg memory:          %.0f MB provisioned, %.0f MB used\n", *st.AvgProvisionedMemoryMB, *st.AvgMaxMemoryUsedMB)
		}
	}

	if len(data.Records) == 0 {
		return nil
	}

	records := append([]CostRecord(nil), data.Records...)
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].PotentialSavings > records[j].PotentialSavings
	})
	if r.Top > 0 && len(records) > r.Top {
		records = records[:r.Top]
	}

	fmt.Fprintln(w)
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "FUNCTION\tARCH\tMEMORY\tMAX USED\tOPTIMAL\tCOST\tSAVINGS")
	for _, rec := range records {
		fmt.Fprintf(tw, "%s\t%s\t%.0f\t%.0f\t%.0f\t$%.4f\t$%.4f\n",
			rec.FunctionName, rec.Architecture, rec.ProvisionedMemoryMB, rec.MaxMemoryUsedMB,
			rec.OptimalMemory, rec.TotalCost, rec.PotentialSavings)
	}
	return tw.Flush()
}

func displayID(id ID) string {
	if id == "" {
		return "(unknown)"
	}
	return string(id)
}
