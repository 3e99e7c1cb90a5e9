// Package harness runs end-to-end scenarios against a browser driver with
// the runner policies from config: parallel workers, whole-test retries,
// failure screenshots, traces, videos and a written report.
package harness

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/entrhq/qaharness/pkg/artifacts"
	"github.com/entrhq/qaharness/pkg/browser"
	"github.com/entrhq/qaharness/pkg/config"
	"github.com/entrhq/qaharness/pkg/logging"
	"github.com/entrhq/qaharness/pkg/report"
)

// ErrOnlyForbidden is returned when a scenario is marked Only while
// forbid_only is set.
var ErrOnlyForbidden = errors.New("scenario marked Only while forbid_only is set")

// Setup prepares the artifacts tree and opens the run log inside it. Any
// error is fatal for the run.
func Setup(cfg *config.Config) (artifacts.Layout, *logging.Logger, error) {
	layout, actions, err := artifacts.EnsureLayout(cfg.Artifacts.Dir, cfg.Folders())
	if err != nil {
		return artifacts.Layout{}, nil, fmt.Errorf("failed to prepare artifacts: %w", err)
	}

	logger, err := logging.NewLogger(layout.TestResults(), "harness")
	if err != nil {
		// The fallback logger still works; the layout itself is fine.
		logger.Warnf("file logging unavailable: %v", err)
	}

	for _, action := range actions {
		logger.Infof("layout: %s", action)
	}
	return layout, logger, nil
}

// Suite holds registered scenarios and runs them.
type Suite struct {
	cfg       *config.Config
	layout    artifacts.Layout
	driver    browser.Driver
	log       *logging.Logger
	console   *Console
	writer    *report.Writer
	scenarios []Scenario
}

// Option customizes a Suite.
type Option func(*Suite)

// WithLogger sets the run logger.
func WithLogger(logger *logging.Logger) Option {
	return func(s *Suite) { s.log = logger }
}

// WithConsole sets the console printer.
func WithConsole(console *Console) Option {
	return func(s *Suite) { s.console = console }
}

// NewSuite creates a suite running on driver and writing into layout.
func NewSuite(cfg *config.Config, layout artifacts.Layout, driver browser.Driver, opts ...Option) *Suite {
	s := &Suite{
		cfg:    cfg,
		layout: layout,
		driver: driver,
		writer: report.NewWriter(layout.ReportResults()),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = logging.Discard("harness")
	}
	if s.console == nil {
		s.console = NewConsole(LevelQuiet, io.Discard)
	}
	return s
}

// Register adds scenarios to the suite.
func (s *Suite) Register(scenarios ...Scenario) {
	s.scenarios = append(s.scenarios, scenarios...)
}

// Run executes the scenarios selected by patterns and writes the report.
// Test failures are reported in the summary, not as an error.
func (s *Suite) Run(patterns []string) (*report.RunSummary, error) {
	selected, err := s.selectScenarios(patterns)
	if err != nil {
		return nil, err
	}

	workers := s.cfg.Workers
	if workers < 1 {
		workers = 1
	}

	summary := &report.RunSummary{
		RunID:     s.log.RunID(),
		StartTime: time.Now(),
		Results:   make([]report.TestResult, len(selected)),
	}
	s.console.Header("Running %d test(s) using %d worker(s)", len(selected), workers)
	s.log.Infof("running %d scenario(s) with %d worker(s), %d retries", len(selected), workers, s.cfg.Retries)

	slugs := uniqueSlugs(selected)
	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup
	for i, sc := range selected {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, sc Scenario) {
			defer wg.Done()
			defer func() { <-sem }()

			result := s.runScenario(sc, slugs[i])
			summary.Results[i] = result
			s.console.TestFinished(result)
		}(i, sc)
	}
	wg.Wait()

	summary.EndTime = time.Now()
	summary.Duration = summary.EndTime.Sub(summary.StartTime)
	summary.Tally()

	if err := s.writer.WriteAll(summary); err != nil {
		return summary, fmt.Errorf("failed to write report: %w", err)
	}
	s.console.PrintResults(summary)
	return summary, nil
}

func (s *Suite) selectScenarios(patterns []string) ([]Scenario, error) {
	filter, err := NewFilter(patterns)
	if err != nil {
		return nil, err
	}

	var matched, only []Scenario
	for _, sc := range s.scenarios {
		if !filter.Match(sc) {
			continue
		}
		matched = append(matched, sc)
		if sc.Only {
			only = append(only, sc)
		}
	}

	if len(only) > 0 {
		if s.cfg.ForbidOnly {
			return nil, fmt.Errorf("%w: %s", ErrOnlyForbidden, only[0].Name)
		}
		return only, nil
	}
	return matched, nil
}

// uniqueSlugs returns one slug per scenario. Names that slug to the same
// value get a numeric suffix in selection order: "a", "a-2", "a-3".
func uniqueSlugs(scenarios []Scenario) []string {
	slugs := make([]string, len(scenarios))
	taken := make(map[string]bool, len(scenarios))
	for i, sc := range scenarios {
		base := Slug(sc.Name)
		slug := base
		for n := 2; taken[slug]; n++ {
			slug = fmt.Sprintf("%s-%d", base, n)
		}
		taken[slug] = true
		slugs[i] = slug
	}
	return slugs
}

// runScenario runs all attempts of one scenario.
func (s *Suite) runScenario(sc Scenario, slug string) report.TestResult {
	result := report.TestResult{Name: sc.Name}
	if sc.Skip != "" {
		result.Status = report.StatusSkipped
		result.Error = sc.Skip
		return result
	}

	start := time.Now()
	maxAttempts := s.cfg.Retries + 1
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		result.Attempts = attempt
		s.console.TestStarted(sc.Name, attempt)

		produced, err := s.runAttempt(sc, slug, attempt)
		result.Artifacts = append(result.Artifacts, produced...)

		if err == nil {
			result.Status = report.StatusPassed
			if attempt > 1 {
				result.Status = report.StatusFlaky
			}
			result.Error = ""
			break
		}

		result.Status = report.StatusFailed
		result.Error = err.Error()
		s.log.Errorf("%s attempt %d/%d failed: %v", sc.Name, attempt, maxAttempts, err)
		s.console.TestError(sc.Name, err)
	}

	result.Duration = time.Since(start)
	return result
}

// runAttempt opens a fresh tab, runs the scenario once and collects the
// attempt's artifacts along with the scenario's error.
func (s *Suite) runAttempt(sc Scenario, slug string, attempt int) ([]string, error) {
	dir := filepath.Join(s.layout.TestResults(), slug)

	tab, err := s.driver.Open(fmt.Sprintf("%s#%d", slug, attempt))
	if err != nil {
		return nil, fmt.Errorf("failed to open browser: %w", err)
	}

	var produced []string
	tracing := s.cfg.Trace == config.TraceOn || (s.cfg.Trace == config.TraceOnFirstRetry && attempt == 2)
	if tracing {
		if err := tab.StartTracing(); err != nil {
			s.log.Warnf("%s: %v", sc.Name, err)
			tracing = false
		}
	}

	env := &Env{
		Tab:      tab,
		Layout:   s.layout,
		Config:   s.cfg,
		Attempt:  attempt,
		scenario: sc.Name,
		slug:     slug,
		log:      s.log.With(slug),
		console:  s.console,
	}
	runErr := invoke(sc, env)

	if s.cfg.Screenshot == config.ScreenshotOn || (s.cfg.Screenshot == config.ScreenshotOnlyOnFailure && runErr != nil) {
		kind := "screenshot"
		if runErr != nil {
			kind = "failure"
		}
		path := filepath.Join(dir, fmt.Sprintf("%s-%d.png", kind, attempt))
		if err := tab.Screenshot(path); err != nil {
			s.log.Warnf("%s: %v", sc.Name, err)
		} else {
			produced = append(produced, path)
		}
	}

	if tracing {
		path := filepath.Join(dir, fmt.Sprintf("trace-%d.zip", attempt))
		if err := tab.StopTracing(path); err != nil {
			s.log.Warnf("%s: %v", sc.Name, err)
		} else if _, statErr := os.Stat(path); statErr == nil {
			produced = append(produced, path)
		}
	}

	closed, err := tab.Close()
	if err != nil {
		s.log.Warnf("%s: %v", sc.Name, err)
	}
	produced = append(produced, closed...)

	return produced, runErr
}

// invoke runs the scenario body, turning panics into failures.
func invoke(sc Scenario, env *Env) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("scenario panicked: %v", r)
		}
	}()
	if sc.Run == nil {
		return fmt.Errorf("scenario %q has no body", sc.Name)
	}
	return sc.Run(env)
}
