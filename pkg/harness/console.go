package harness

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"

	"github.com/entrhq/qaharness/pkg/report"
)

// Level represents the console verbosity level
type Level int

const (
	// LevelQuiet shows only failures and the final summary
	LevelQuiet Level = iota
	// LevelNormal shows one line per test (default)
	LevelNormal
	// LevelVerbose also shows retries and artifacts
	LevelVerbose
	// LevelDebug shows scenario log lines
	LevelDebug
)

// ParseLevel maps a verbosity name to a Level, defaulting to LevelNormal.
func ParseLevel(verbosity string) Level {
	switch strings.ToLower(verbosity) {
	case "quiet":
		return LevelQuiet
	case "verbose":
		return LevelVerbose
	case "debug":
		return LevelDebug
	default:
		return LevelNormal
	}
}

var (
	passedColor  = color.New(color.FgGreen)
	failedColor  = color.New(color.FgRed)
	flakyColor   = color.New(color.FgYellow)
	skippedColor = color.New(color.Faint, color.FgBlue)
	debugColor   = color.New(color.Faint)
	headerColor  = color.New(color.Bold)
)

// Console prints test progress for humans. Safe for concurrent use.
type Console struct {
	level Level
	out   io.Writer
	mu    sync.Mutex
}

// NewConsole creates a console writing to out (stdout when nil).
func NewConsole(level Level, out io.Writer) *Console {
	if out == nil {
		out = os.Stdout
	}
	return &Console{level: level, out: out}
}

func (c *Console) printf(min Level, col *color.Color, format string, args ...interface{}) {
	if c.level < min {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	_, _ = col.Fprintf(c.out, format, args...)
}

// Header prints the run banner.
func (c *Console) Header(format string, args ...interface{}) {
	c.printf(LevelNormal, headerColor, "\n"+format+"\n", args...)
}

// TestStarted announces an attempt.
func (c *Console) TestStarted(name string, attempt int) {
	if attempt > 1 {
		c.printf(LevelVerbose, flakyColor, "[%s] retry #%d\n", name, attempt-1)
		return
	}
	c.printf(LevelVerbose, debugColor, "[%s]\n", name)
}

// TestError prints the error of a failed attempt.
func (c *Console) TestError(name string, err error) {
	for _, line := range strings.Split(err.Error(), "\n") {
		c.printf(LevelQuiet, flakyColor, "  %s: %s\n", name, line)
	}
}

// TestFinished prints the final outcome of a test.
func (c *Console) TestFinished(result report.TestResult) {
	switch result.Status {
	case report.StatusPassed:
		c.printf(LevelNormal, passedColor, "  ✓ %s (%s)\n", result.Name, round(result.Duration))
	case report.StatusFlaky:
		c.printf(LevelNormal, flakyColor, "  ~ %s (flaky, %d attempts)\n", result.Name, result.Attempts)
	case report.StatusSkipped:
		if result.Error == "" {
			c.printf(LevelNormal, skippedColor, "  - SKIPPED: %s\n", result.Name)
		} else {
			c.printf(LevelNormal, skippedColor, "  - SKIPPED: %s (%s)\n", result.Name, result.Error)
		}
	default:
		c.printf(LevelQuiet, failedColor, "  ✗ FAILED: %s\n", result.Name)
	}
	for _, artifact := range result.Artifacts {
		c.printf(LevelVerbose, debugColor, "      %s\n", artifact)
	}
}

// Debugf prints scenario log lines at debug verbosity.
func (c *Console) Debugf(format string, args ...interface{}) {
	c.printf(LevelDebug, debugColor, "    "+format+"\n", args...)
}

// PrintResults prints the summary line and the list of failed tests.
func (c *Console) PrintResults(summary *report.RunSummary) {
	t := summary.Totals
	line := fmt.Sprintf("%d passed, %d failed, %d flaky, %d skipped in %s",
		t.Passed, t.Failed, t.Flaky, t.Skipped, round(summary.Duration))

	if summary.OK() {
		c.printf(LevelQuiet, passedColor, "\n%s\n", line)
		return
	}

	c.printf(LevelQuiet, failedColor, "\n%s\nFAILED TESTS (%d):\n", line, t.Failed)
	for _, r := range summary.Results {
		if r.Status == report.StatusFailed {
			c.printf(LevelQuiet, failedColor, "  * %s\n", r.Name)
		}
	}
}

func round(d time.Duration) time.Duration {
	return d.Round(time.Millisecond)
}
