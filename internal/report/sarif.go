package report

import (
	"encoding/json"
	"fmt"
)

const sarifSchema = "https://raw.githubusercontent.com/oasis-tcs/sarif-spec/main/sarif-2.1/schema/sarif-schema-2.1.0.json"

const (
	ruleOverProvisioned = "OVERPROVISIONED_LAMBDA"
	ruleTimeouts        = "LAMBDA_TIMEOUTS"
	ruleMemoryExceeded  = "LAMBDA_OUT_OF_MEMORY"
)

// sarifReport is the top-level SARIF v2.1.0 structure.
type sarifReport struct {
	Schema  string     `json:"$schema"`
	Version string     `json:"version"`
	Runs    []sarifRun `json:"runs"`
}

type sarifRun struct {
	Tool    sarifTool     `json:"tool"`
	Results []sarifResult `json:"results"`
}

type sarifTool struct {
	Driver sarifDriver `json:"driver"`
}

type sarifDriver struct {
	Name    string      `json:"name"`
	Version string      `json:"version"`
	Rules   []sarifRule `json:"rules"`
}

type sarifRule struct {
	ID               string            `json:"id"`
	ShortDescription sarifMessage      `json:"shortDescription"`
	DefaultConfig    sarifDefaultLevel `json:"defaultConfiguration"`
}

type sarifDefaultLevel struct {
	Level string `json:"level"`
}

type sarifMessage struct {
	Text string `json:"text"`
}

type sarifResult struct {
	RuleID    string         `json:"ruleId"`
	Level     string         `json:"level"`
	Message   sarifMessage   `json:"message"`
	Locations []sarifLoc     `json:"locations,omitempty"`
	Props     map[string]any `json:"properties,omitempty"`
}

type sarifLoc struct {
	PhysicalLocation sarifPhysical `json:"physicalLocation"`
}

type sarifPhysical struct {
	ArtifactLocation sarifArtifact `json:"artifactLocation"`
}

type sarifArtifact struct {
	URI string `json:"uri"`
}

// Generate writes SARIF v2.1.0 output with one result per issue found in the records.
func (r *SARIFReporter) Generate(data Data) error {
	var results []sarifResult

	for _, rec := range data.Records {
		loc := []sarifLoc{{PhysicalLocation: sarifPhysical{
			ArtifactLocation: sarifArtifact{URI: fmt.Sprintf("aws://lambda/%s", rec.FunctionName)},
		}}}

		if rec.PotentialSavings > 0 {
			results = append(results, sarifResult{
				RuleID:    ruleOverProvisioned,
				Level:     "warning",
				Message:   sarifMessage{Text: fmt.Sprintf("Provisioned %.0f MB, max used %.0f MB; %.0f MB would save $%.6f", rec.ProvisionedMemoryMB, rec.MaxMemoryUsedMB, rec.OptimalMemory, rec.PotentialSavings)},
				Locations: loc,
				Props: map[string]any{
					"provisionedMemoryMB": rec.ProvisionedMemoryMB,
					"optimalMemory":       rec.OptimalMemory,
					"potentialSavings":    rec.PotentialSavings,
				},
			})
		}
		if rec.TimeoutInvocations > 0 {
			results = append(results, sarifResult{
				RuleID:    ruleTimeouts,
				Level:     "error",
				Message:   sarifMessage{Text: fmt.Sprintf("%.0f of %.0f invocations timed out", rec.TimeoutInvocations, rec.CountInvocations)},
				Locations: loc,
			})
		}
		if rec.MemoryExceededInvocation > 0 {
			results = append(results, sarifResult{
				RuleID:    ruleMemoryExceeded,
				Level:     "error",
				Message:   sarifMessage{Text: fmt.Sprintf("%.0f of %.0f invocations ran out of memory", rec.MemoryExceededInvocation, rec.CountInvocations)},
				Locations: loc,
			})
		}
	}

	if results == nil {
		results = []sarifResult{}
	}

	report := sarifReport{
		Schema:  sarifSchema,
		Version: "2.1.0",
		Runs: []sarifRun{
			{
				Tool: sarifTool{
					Driver: sarifDriver{
						Name:    data.Tool,
						Version: data.Version,
						Rules:   buildSARIFRules(),
					},
				},
				Results: results,
			},
		},
	}

	enc := json.NewEncoder(r.Writer)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		return fmt.Errorf("encode SARIF report: %w", err)
	}
	return nil
}

func buildSARIFRules() []sarifRule {
	return []sarifRule{
		{ID: ruleOverProvisioned, ShortDescription: sarifMessage{Text: "Lambda memory larger than observed peak usage"}, DefaultConfig: sarifDefaultLevel{Level: "warning"}},
		{ID: ruleTimeouts, ShortDescription: sarifMessage{Text: "Lambda invocations timed out"}, DefaultConfig: sarifDefaultLevel{Level: "error"}},
		{ID: ruleMemoryExceeded, ShortDescription: sarifMessage{Text: "Lambda invocations exceeded memory"}, DefaultConfig: sarifDefaultLevel{Level: "error"}},
	}
}
