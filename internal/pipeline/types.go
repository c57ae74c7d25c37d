// Package pipeline implements the stages of a cost report: initialize,
// generate per-batch tables, aggregate and record failures. Each stage is a
// stateless handler taking and returning the JSON payloads the workflow
// driver passes between stages.
package pipeline

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ppiankov/lambdaspectre/internal/report"
	"github.com/ppiankov/lambdaspectre/internal/storage"
)

// ErrInvalidEvent is returned when a stage payload is missing required fields.
var ErrInvalidEvent = errors.New("invalid event")

// Stage names accepted by the serve and invoke commands.
const (
	StageInitializer  = "initializer"
	StageGenerator    = "generator"
	StageAggregator   = "aggregator"
	StageErrorHandler = "error-handler"
)

// Stages lists every stage in execution order.
var Stages = []string{StageInitializer, StageGenerator, StageAggregator, StageErrorHandler}

// InitializeEvent starts a report.
type InitializeEvent struct {
	Targets   []string  `json:"targets"`
	ReportID  report.ID `json:"reportId"`
	StartDate string    `json:"startDate"`
	EndDate   string    `json:"endDate"`
}

// InitializeOutput carries one batch location per partition to the generators.
type InitializeOutput struct {
	TargetsLocations []storage.Location `json:"targetsLocations"`
	ReportID         report.ID          `json:"reportId"`
	StartDate        string             `json:"startDate"`
	EndDate          string             `json:"endDate"`
}

// BatchEvents fans the output out into one generator event per batch.
func (o InitializeOutput) BatchEvents() []BatchEvent {
	events := make([]BatchEvent, len(o.TargetsLocations))
	for i, loc := range o.TargetsLocations {
		events[i] = BatchEvent{
			TargetsLocation: loc,
			ReportID:        o.ReportID,
			StartDate:       o.StartDate,
			EndDate:         o.EndDate,
		}
	}
	return events
}

// BatchEvent asks a generator to analyse one stored batch of targets.
type BatchEvent struct {
	TargetsLocation storage.Location `json:"targetsLocation"`
	ReportID        report.ID        `json:"reportId"`
	StartDate       string           `json:"startDate"`
	EndDate         string           `json:"endDate"`
}

// BatchResult points at a generated batch table and echoes the report fields.
type BatchResult struct {
	storage.Location
	ReportID  report.ID `json:"reportId"`
	StartDate string    `json:"startDate"`
	EndDate   string    `json:"endDate"`
}

// FailureEvent is the workflow's catch payload. The report id may sit at the
// top level or under error_output, in either camel or snake case.
type FailureEvent struct {
	Error       string        `json:"error"`
	Cause       string        `json:"cause"`
	ReportID    report.ID     `json:"reportId"`
	ReportIDAlt report.ID     `json:"report_id"`
	ErrorOutput *FailureScope `json:"error_output,omitempty"`
}

// FailureScope is the state the failing stage received.
type FailureScope struct {
	ReportID    report.ID `json:"reportId"`
	ReportIDAlt report.ID `json:"report_id"`
}

// ResolveReportID prefers the nested id over the top-level one.
func (e FailureEvent) ResolveReportID() report.ID {
	if e.ErrorOutput != nil {
		if id := firstID(e.ErrorOutput.ReportID, e.ErrorOutput.ReportIDAlt); id != "" {
			return id
		}
	}
	return firstID(e.ReportID, e.ReportIDAlt)
}

func firstID(ids ...report.ID) report.ID {
	for _, id := range ids {
		if id != "" {
			return id
		}
	}
	return ""
}

// FailureOutput confirms what the error recorder wrote.
type FailureOutput struct {
	Status    report.Status `json:"status"`
	ReportID  report.ID     `json:"reportID"`
	ErrorCode string        `json:"errorCode"`
}

// validateReportID rejects ids that cannot be used as a storage directory.
func validateReportID(id report.ID) error {
	s := string(id)
	if s == "" {
		return fmt.Errorf("%w: reportId is required", ErrInvalidEvent)
	}
	if strings.ContainsAny(s, "/\\") || s == "." || s == ".." {
		return fmt.Errorf("%w: reportId %q is not a valid directory name", ErrInvalidEvent, s)
	}
	return nil
}

// parseWindow validates the echoed dates of a payload.
func parseWindow(start, end string) (report.Window, error) {
	w, err := report.ParseWindow(start, end)
	if err != nil {
		return report.Window{}, fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}
	return w, nil
}
