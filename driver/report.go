package driver

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/cite-sa/MobiusCore/iox"
	"github.com/cite-sa/MobiusCore/types"
)

// TaskReport is the JSON report written by `mobius submit --report`.
type TaskReport struct {
	Outcome      types.OutcomeStatus `json:"outcome"`
	Message      string              `json:"message"`
	Phase        string              `json:"phase,omitempty"`
	ExitCode     int                 `json:"exit_code"`
	Reusable     bool                `json:"reusable"`
	DurationMs   int64               `json:"duration_ms"`
	RecordsOut   int                 `json:"records_out"`
	Accumulators map[string]any      `json:"accumulators,omitempty"`
	Timing       ReportTiming        `json:"timing"`
	Stderr       string              `json:"stderr,omitempty"`
}

// ReportTiming is the worker's timing block in the report.
type ReportTiming struct {
	BootTime   int64 `json:"boot_time"`
	InitTime   int64 `json:"init_time"`
	FinishTime int64 `json:"finish_time"`
}

// BuildReport composes a report from a task result.
func BuildReport(r *TaskResult) *TaskReport {
	report := &TaskReport{
		Outcome:    r.Outcome.Status,
		Message:    r.Outcome.Message,
		Phase:      r.Outcome.Phase,
		ExitCode:   r.ExitCode,
		Reusable:   r.Reusable,
		DurationMs: r.Duration.Milliseconds(),
		RecordsOut: len(r.Records),
		Timing: ReportTiming{
			BootTime:   r.Timing.BootTime,
			InitTime:   r.Timing.InitTime,
			FinishTime: r.Timing.FinishTime,
		},
		Stderr: r.Stderr,
	}
	if len(r.Accumulators) > 0 {
		report.Accumulators = make(map[string]any, len(r.Accumulators))
		for _, e := range r.Accumulators {
			report.Accumulators[fmt.Sprint(e.ID)] = e.Value
		}
	}
	return report
}

// WriteReport writes the report as indented JSON to path, or to stderr
// when path is "-".
func WriteReport(report *TaskReport, path string) error {
	if path == "" {
		return errors.New("report path must not be empty")
	}
	if path == "-" {
		if err := writeReportTo(report, os.Stderr); err != nil {
			return fmt.Errorf("failed to write report to stderr: %w", err)
		}
		return nil
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create report %s: %w", path, err)
	}
	if err := writeReportTo(report, f); err != nil {
		iox.DiscardClose(f)
		return fmt.Errorf("failed to write report to %s: %w", path, err)
	}
	return f.Close()
}

func writeReportTo(report *TaskReport, w io.Writer) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}
	_, err = w.Write(append(data, '\n'))
	return err
}
