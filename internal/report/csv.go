package report

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

type numericColumn struct {
	name  string
	field func(*CostRecord) *float64
}

var numericColumns = []numericColumn{
	{"countInvocations", func(r *CostRecord) *float64 { return &r.CountInvocations }},
	{"allDurationInSeconds", func(r *CostRecord) *float64 { return &r.AllDurationInSeconds }},
	{"provisionedMemoryMB", func(r *CostRecord) *float64 { return &r.ProvisionedMemoryMB }},
	{"MemoryCost", func(r *CostRecord) *float64 { return &r.MemoryCost }},
	{"InvocationCost", func(r *CostRecord) *float64 { return &r.InvocationCost }},
	{"StorageCost", func(r *CostRecord) *float64 { return &r.StorageCost }},
	{"totalCost", func(r *CostRecord) *float64 { return &r.TotalCost }},
	{"avgCostPerInvocation", func(r *CostRecord) *float64 { return &r.AvgCostPerInvocation }},
	{"maxMemoryUsedMB", func(r *CostRecord) *float64 { return &r.MaxMemoryUsedMB }},
	{"overProvisionedMB", func(r *CostRecord) *float64 { return &r.OverProvisionedMB }},
	{"optimalMemory", func(r *CostRecord) *float64 { return &r.OptimalMemory }},
	{"potentialSavings", func(r *CostRecord) *float64 { return &r.PotentialSavings }},
	{"avgDurationPerInvocation", func(r *CostRecord) *float64 { return &r.AvgDurationPerInvocation }},
	{"timeoutInvocations", func(r *CostRecord) *float64 { return &r.TimeoutInvocations }},
	{"memoryExceededInvocation", func(r *CostRecord) *float64 { return &r.MemoryExceededInvocation }},
	{"logSizeGB", func(r *CostRecord) *float64 { return &r.LogSizeGB }},
	{"logIngestionCost", func(r *CostRecord) *float64 { return &r.LogIngestionCost }},
	{"logStorageCost", func(r *CostRecord) *float64 { return &r.LogStorageCost }},
	{"analysisCost", func(r *CostRecord) *float64 { return &r.AnalysisCost }},
}

// Columns is the fixed header of every batch and detail table.
var Columns = func() []string {
	cols := []string{"functionName", "runtime", "architecture"}
	for _, c := range numericColumns {
		cols = append(cols, c.name)
	}
	return cols
}()

// SetField assigns a query result field to the record by column name.
// Unknown names are ignored and report false.
func (r *CostRecord) SetField(name, value string) (bool, error) {
	switch name {
	case "functionName":
		r.FunctionName = value
		return true, nil
	case "runtime":
		r.Runtime = value
		return true, nil
	case "architecture":
		r.Architecture = value
		return true, nil
	}
	for _, c := range numericColumns {
		if c.name != name {
			continue
		}
		if strings.TrimSpace(value) == "" {
			*c.field(r) = 0
			return true, nil
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil {
			return true, fmt.Errorf("column %s: %w", name, err)
		}
		*c.field(r) = v
		return true, nil
	}
	return false, nil
}

func (r *CostRecord) row() []string {
	row := make([]string, 0, len(Columns))
	row = append(row, r.FunctionName, r.Runtime, r.Architecture)
	for _, c := range numericColumns {
		row = append(row, formatFloat(*c.field(r)))
	}
	return row
}

// WriteCSV writes records under the fixed Columns header.
// An empty slice produces a header-only table.
func WriteCSV(w io.Writer, records []CostRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Columns); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for i := range records {
		if err := cw.Write(records[i].row()); err != nil {
			return fmt.Errorf("write row %d: %w", i+1, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// EncodeCSV is WriteCSV into a byte slice.
func EncodeCSV(records []CostRecord) ([]byte, error) {
	var buf bytes.Buffer
	if err := WriteCSV(&buf, records); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ReadCSV parses a table by header name. Columns may appear in any order;
// unknown columns are skipped and missing ones stay zero.
func ReadCSV(r io.Reader) ([]CostRecord, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	var records []CostRecord
	for line := 2; ; line++ {
		fields, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read line %d: %w", line, err)
		}

		var rec CostRecord
		for i, name := range header {
			if i >= len(fields) {
				break
			}
			if _, err := rec.SetField(strings.TrimSpace(name), fields[i]); err != nil {
				return nil, fmt.Errorf("line %d: %w", line, err)
			}
		}
		records = append(records, rec)
	}
	return records, nil
}

// DecodeCSV is ReadCSV over a byte slice.
func DecodeCSV(b []byte) ([]CostRecord, error) {
	return ReadCSV(bytes.NewReader(b))
}
