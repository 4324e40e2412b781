// Package report renders a run's results as a JSON document and as a
// colored console summary.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/afero"

	"github.com/tugboatci/tugboat/runner"
	"github.com/tugboatci/tugboat/trace"
)

// JSONReport is the serializable form of one run.
type JSONReport struct {
	GeneratedAt time.Time           `json:"generatedAt"`
	Summary     runner.Summary      `json:"summary"`
	Results     []runner.TestResult `json:"results"`
	Trace       []trace.Entry       `json:"trace,omitempty"`
}

// BuildJSON assembles the report for a result set.
func BuildJSON(summary *runner.Summary, results []runner.TestResult, entries []trace.Entry) *JSONReport {
	return &JSONReport{
		GeneratedAt: time.Now().UTC(),
		Summary:     *summary,
		Results:     results,
		Trace:       entries,
	}
}

// WriteJSON writes the report to path on fs.
func WriteJSON(fs afero.Fs, path string, rep *JSONReport) error {
	buf, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling report: %w", err)
	}
	if err := afero.WriteFile(fs, path, buf, 0o644); err != nil {
		return fmt.Errorf("writing report to %s: %w", path, err)
	}
	return nil
}

// ParseJSON is the inverse of WriteJSON.
func ParseJSON(buf []byte) (*JSONReport, error) {
	var rep JSONReport
	if err := json.Unmarshal(buf, &rep); err != nil {
		return nil, fmt.Errorf("parsing report: %w", err)
	}
	return &rep, nil
}

// WriteConsole renders a human-readable summary.
func WriteConsole(w io.Writer, rep *JSONReport, noColor bool) {
	green := color.New(color.FgGreen).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()
	if noColor {
		plain := fmt.Sprint
		green, red, yellow = plain, plain, plain
	}

	for _, res := range rep.Results {
		switch res.Status {
		case runner.StatusPassed:
			fmt.Fprintf(w, "  %s %s / %s (%s)\n", green("✓"), res.Suite, res.Name, res.Duration)
		case runner.StatusFailed:
			fmt.Fprintf(w, "  %s %s / %s (%s)\n", red("✗"), res.Suite, res.Name, res.Duration)
			if res.Error != nil {
				fmt.Fprintf(w, "      %s: %s\n", res.Error.Kind, res.Error.Message)
			}
		case runner.StatusSkipped:
			fmt.Fprintf(w, "  %s %s / %s\n", yellow("-"), res.Suite, res.Name)
		}
	}

	s := rep.Summary
	line := fmt.Sprintf("%d total, %d passed, %d failed", s.Total, s.Passed, s.Failed)
	if s.Skipped > 0 {
		line += fmt.Sprintf(", %d skipped", s.Skipped)
	}
	line += fmt.Sprintf(" in %s", s.Duration)
	if s.Failed > 0 || s.Skipped > 0 {
		fmt.Fprintf(w, "\n%s\n", red(line))
		return
	}
	fmt.Fprintf(w, "\n%s\n", green(line))
}
