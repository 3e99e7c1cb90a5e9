// Package report records the outcome of a run in the report-results folder.
package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Status is the final outcome of a test.
type Status string

const (
	StatusPassed  Status = "passed"
	StatusFailed  Status = "failed"
	StatusFlaky   Status = "flaky"
	StatusSkipped Status = "skipped"
)

// RunSummary contains the results of one run
type RunSummary struct {
	RunID     string        `json:"run_id"`
	StartTime time.Time     `json:"start_time"`
	EndTime   time.Time     `json:"end_time"`
	Duration  time.Duration `json:"duration"`
	Results   []TestResult  `json:"results"`
	Totals    Totals        `json:"totals"`
}

// TestResult is the outcome of a single test across all its attempts
type TestResult struct {
	Name      string        `json:"name"`
	Status    Status        `json:"status"`
	Attempts  int           `json:"attempts"`
	Error     string        `json:"error,omitempty"`
	Duration  time.Duration `json:"duration"`
	Artifacts []string      `json:"artifacts,omitempty"`
}

// Totals counts results per status
type Totals struct {
	Passed  int `json:"passed"`
	Failed  int `json:"failed"`
	Flaky   int `json:"flaky"`
	Skipped int `json:"skipped"`
}

// Tally recomputes Totals from Results.
func (s *RunSummary) Tally() {
	s.Totals = Totals{}
	for _, r := range s.Results {
		switch r.Status {
		case StatusPassed:
			s.Totals.Passed++
		case StatusFailed:
			s.Totals.Failed++
		case StatusFlaky:
			s.Totals.Flaky++
		case StatusSkipped:
			s.Totals.Skipped++
		}
	}
}

// OK reports whether no test failed.
func (s *RunSummary) OK() bool {
	for _, r := range s.Results {
		if r.Status == StatusFailed {
			return false
		}
	}
	return true
}

// Writer handles writing run reports
type Writer struct {
	outputDir string
}

// NewWriter creates a writer for outputDir, normally the report-results
// folder of the artifacts layout
func NewWriter(outputDir string) *Writer {
	return &Writer{outputDir: outputDir}
}

// WriteAll writes results.json and summary.md
func (w *Writer) WriteAll(summary *RunSummary) error {
	if err := os.MkdirAll(w.outputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	if err := w.WriteResultsJSON(summary); err != nil {
		return err
	}

	return w.WriteSummaryMarkdown(summary)
}

// WriteResultsJSON writes the full run summary as JSON
func (w *Writer) WriteResultsJSON(summary *RunSummary) error {
	path := filepath.Join(w.outputDir, "results.json")

	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal run summary: %w", err)
	}

	if writeErr := os.WriteFile(path, data, 0644); writeErr != nil {
		return fmt.Errorf("failed to write results JSON: %w", writeErr)
	}

	return nil
}

// WriteSummaryMarkdown writes a human-readable markdown summary
func (w *Writer) WriteSummaryMarkdown(summary *RunSummary) error {
	path := filepath.Join(w.outputDir, "summary.md")

	var md strings.Builder

	md.WriteString("# Test Run Summary\n\n")
	md.WriteString(fmt.Sprintf("**Run:** %s\n\n", summary.RunID))
	md.WriteString(fmt.Sprintf("**Started:** %s\n\n", summary.StartTime.Format(time.RFC3339)))
	md.WriteString(fmt.Sprintf("**Completed:** %s\n\n", summary.EndTime.Format(time.RFC3339)))
	md.WriteString(fmt.Sprintf("**Duration:** %s\n\n", summary.Duration))

	md.WriteString("## Totals\n\n")
	md.WriteString(fmt.Sprintf("- **Passed:** %d\n", summary.Totals.Passed))
	md.WriteString(fmt.Sprintf("- **Failed:** %d\n", summary.Totals.Failed))
	md.WriteString(fmt.Sprintf("- **Flaky:** %d\n", summary.Totals.Flaky))
	md.WriteString(fmt.Sprintf("- **Skipped:** %d\n\n", summary.Totals.Skipped))

	if len(summary.Results) > 0 {
		md.WriteString("## Tests\n\n")
		for _, result := range summary.Results {
			md.WriteString(fmt.Sprintf("%s **%s** (%s, %d attempt(s), %s)\n",
				statusIcon(result.Status), result.Name, result.Status, result.Attempts, result.Duration))
			if result.Error != "" {
				md.WriteString(fmt.Sprintf("   Error: %s\n", result.Error))
			}
			for _, artifact := range result.Artifacts {
				md.WriteString(fmt.Sprintf("   - `%s`\n", artifact))
			}
		}
		md.WriteString("\n")
	}

	if writeErr := os.WriteFile(path, []byte(md.String()), 0644); writeErr != nil {
		return fmt.Errorf("failed to write summary markdown: %w", writeErr)
	}

	return nil
}

func statusIcon(status Status) string {
	switch status {
	case StatusPassed:
		return "✅"
	case StatusFlaky:
		return "⚠️"
	case StatusSkipped:
		return "⏭"
	default:
		return "❌"
	}
}
