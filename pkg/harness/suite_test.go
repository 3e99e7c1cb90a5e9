package harness

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/qaharness/pkg/artifacts"
	"github.com/entrhq/qaharness/pkg/browser"
	"github.com/entrhq/qaharness/pkg/config"
	"github.com/entrhq/qaharness/pkg/pages"
	"github.com/entrhq/qaharness/pkg/report"
)

// fakeDriver rejects a name that is still open, like the real engines do.
type fakeDriver struct {
	mu       sync.Mutex
	opened   []string
	live     map[string]bool
	videoDir string
	openErr  error
}

func (d *fakeDriver) Open(name string) (browser.Tab, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.openErr != nil {
		return nil, d.openErr
	}
	if d.live[name] {
		return nil, fmt.Errorf("session %q already exists", name)
	}
	if d.live == nil {
		d.live = make(map[string]bool)
	}
	d.live[name] = true
	d.opened = append(d.opened, name)
	return &fakeTab{name: name, videoDir: d.videoDir, driver: d}, nil
}

func (d *fakeDriver) release(name string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.live, name)
}

func (d *fakeDriver) Close() error { return nil }

type fakeTab struct {
	name     string
	videoDir string
	tracing  bool
	driver   *fakeDriver
}

func (t *fakeTab) Name() string { return t.name }

func (t *fakeTab) Goto(string) error { return nil }

func (t *fakeTab) URL() string { return "about:blank" }

func (t *fakeTab) Locator(string) pages.Control { return nil }

func (t *fakeTab) ExpectDownload(func() error) (pages.Download, error) {
	return nil, pages.ErrTimeout
}

func (t *fakeTab) Screenshot(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte("png"), 0600)
}

func (t *fakeTab) StartTracing() error {
	t.tracing = true
	return nil
}

func (t *fakeTab) StopTracing(path string) error {
	if !t.tracing {
		return errors.New("not tracing")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte("zip"), 0600)
}

func (t *fakeTab) Close() ([]string, error) {
	t.driver.release(t.name)
	if t.videoDir == "" {
		return nil, nil
	}
	return []string{filepath.Join(t.videoDir, t.name+".webm")}, nil
}

func newTestSuite(t *testing.T, mutate func(*config.Config)) (*Suite, *fakeDriver, artifacts.Layout) {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.Artifacts.Dir = filepath.Join(t.TempDir(), ".artifacts")
	cfg.Workers = 2
	if mutate != nil {
		mutate(cfg)
	}

	layout, logger, err := Setup(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { logger.Close() })

	driver := &fakeDriver{}
	return NewSuite(cfg, layout, driver, WithLogger(logger)), driver, layout
}

func pass(*Env) error { return nil }

func TestSetupCreatesLayoutAndLog(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Artifacts.Dir = filepath.Join(t.TempDir(), ".artifacts")

	layout, logger, err := Setup(cfg)
	require.NoError(t, err)
	defer logger.Close()

	for _, name := range artifacts.DefaultFolders() {
		assert.DirExists(t, layout.Dir(name))
	}
	assert.FileExists(t, logger.LogPath())
	assert.Equal(t, layout.TestResults(), filepath.Dir(logger.LogPath()))
}

func TestRunPassingAndFailing(t *testing.T) {
	suite, _, layout := newTestSuite(t, nil)
	suite.Register(
		Scenario{Name: "download pdf", Run: pass},
		Scenario{Name: "download zip", Run: func(*Env) error {
			return pages.ErrDownloadTimeout
		}},
	)

	summary, err := suite.Run(nil)
	require.NoError(t, err)
	require.Len(t, summary.Results, 2)

	assert.Equal(t, report.StatusPassed, summary.Results[0].Status)
	assert.Empty(t, summary.Results[0].Artifacts)

	failed := summary.Results[1]
	assert.Equal(t, report.StatusFailed, failed.Status)
	assert.Equal(t, 1, failed.Attempts)
	assert.Contains(t, failed.Error, "download was not received")

	shot := filepath.Join(layout.TestResults(), "download-zip", "failure-1.png")
	assert.Contains(t, failed.Artifacts, shot)
	assert.FileExists(t, shot)

	assert.False(t, summary.OK())
	assert.Equal(t, report.Totals{Passed: 1, Failed: 1}, summary.Totals)

	data, err := os.ReadFile(filepath.Join(layout.ReportResults(), "results.json"))
	require.NoError(t, err)
	var written report.RunSummary
	require.NoError(t, json.Unmarshal(data, &written))
	assert.Len(t, written.Results, 2)
	assert.FileExists(t, filepath.Join(layout.ReportResults(), "summary.md"))
}

func TestRetriesMarkFlakyAndTraceFirstRetry(t *testing.T) {
	suite, driver, layout := newTestSuite(t, func(c *config.Config) { c.Retries = 2 })

	var calls int32
	suite.Register(Scenario{Name: "Flaky Download", Run: func(env *Env) error {
		if atomic.AddInt32(&calls, 1) < 3 {
			return errors.New("boom")
		}
		assert.Equal(t, 3, env.Attempt)
		return nil
	}})

	summary, err := suite.Run(nil)
	require.NoError(t, err)

	result := summary.Results[0]
	assert.Equal(t, report.StatusFlaky, result.Status)
	assert.Equal(t, 3, result.Attempts)
	assert.Empty(t, result.Error)
	assert.Equal(t, []string{"flaky-download#1", "flaky-download#2", "flaky-download#3"}, driver.opened)

	dir := filepath.Join(layout.TestResults(), "flaky-download")
	assert.Contains(t, result.Artifacts, filepath.Join(dir, "trace-2.zip"))
	assert.NoFileExists(t, filepath.Join(dir, "trace-1.zip"))
	assert.NoFileExists(t, filepath.Join(dir, "trace-3.zip"))
	assert.FileExists(t, filepath.Join(dir, "failure-1.png"))
	assert.FileExists(t, filepath.Join(dir, "failure-2.png"))
	assert.NoFileExists(t, filepath.Join(dir, "failure-3.png"))
	assert.True(t, summary.OK())
}

func TestVideosAreCollected(t *testing.T) {
	suite, driver, layout := newTestSuite(t, nil)
	driver.videoDir = layout.Videos()
	suite.Register(Scenario{Name: "video", Run: pass})

	summary, err := suite.Run(nil)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(layout.Videos(), "video#1.webm")}, summary.Results[0].Artifacts)
}

func TestFilterSkipAndPanic(t *testing.T) {
	suite, _, _ := newTestSuite(t, nil)
	suite.Register(
		Scenario{Name: "download pdf", Tags: []string{"@smoke"}, Run: pass},
		Scenario{Name: "download csv", Skip: "not deployed", Run: pass},
		Scenario{Name: "upload file", Run: pass},
		Scenario{Name: "download broken", Run: func(*Env) error { panic("nil page") }},
	)

	summary, err := suite.Run([]string{"download *"})
	require.NoError(t, err)
	require.Len(t, summary.Results, 3)

	byName := map[string]report.TestResult{}
	for _, r := range summary.Results {
		byName[r.Name] = r
	}
	assert.Equal(t, report.StatusPassed, byName["download pdf"].Status)
	assert.Equal(t, report.StatusSkipped, byName["download csv"].Status)
	assert.Equal(t, "not deployed", byName["download csv"].Error)
	assert.Equal(t, report.StatusFailed, byName["download broken"].Status)
	assert.Contains(t, byName["download broken"].Error, "panicked")

	summary, err = suite.Run([]string{"@smoke"})
	require.NoError(t, err)
	require.Len(t, summary.Results, 1)
	assert.Equal(t, "download pdf", summary.Results[0].Name)
}

func TestCollidingNamesGetSeparateTabsAndFolders(t *testing.T) {
	suite, driver, layout := newTestSuite(t, func(c *config.Config) { c.Workers = 2 })

	var wg sync.WaitGroup
	wg.Add(2)
	// Both scenarios hold their tab until the other one has opened its own.
	hold := func(env *Env) error {
		wg.Done()
		wg.Wait()
		return errors.New("fail to force screenshots")
	}
	suite.Register(
		Scenario{Name: "Download A", Run: hold},
		Scenario{Name: "download-a", Run: hold},
	)

	summary, err := suite.Run(nil)
	require.NoError(t, err)
	require.Len(t, summary.Results, 2)

	for _, r := range summary.Results {
		assert.NotContains(t, r.Error, "already exists", r.Name)
		assert.Contains(t, r.Error, "fail to force screenshots", r.Name)
	}
	assert.ElementsMatch(t, []string{"download-a#1", "download-a-2#1"}, driver.opened)

	first := filepath.Join(layout.TestResults(), "download-a", "failure-1.png")
	second := filepath.Join(layout.TestResults(), "download-a-2", "failure-1.png")
	assert.Equal(t, []string{first}, summary.Results[0].Artifacts)
	assert.Equal(t, []string{second}, summary.Results[1].Artifacts)
	assert.FileExists(t, first)
	assert.FileExists(t, second)
}

func TestUniqueSlugs(t *testing.T) {
	got := uniqueSlugs([]Scenario{
		{Name: "Download A"},
		{Name: "download-a"},
		{Name: "download a"},
		{Name: "download-a-2"},
		{Name: "other"},
	})
	assert.Equal(t, []string{"download-a", "download-a-2", "download-a-3", "download-a-2-2", "other"}, got)
}

func TestOnlyScenarios(t *testing.T) {
	suite, _, _ := newTestSuite(t, nil)
	suite.Register(
		Scenario{Name: "a", Run: pass},
		Scenario{Name: "b", Only: true, Run: pass},
	)

	summary, err := suite.Run(nil)
	require.NoError(t, err)
	require.Len(t, summary.Results, 1)
	assert.Equal(t, "b", summary.Results[0].Name)

	forbidden, _, _ := newTestSuite(t, func(c *config.Config) { c.ForbidOnly = true })
	forbidden.Register(Scenario{Name: "b", Only: true, Run: pass})
	_, err = forbidden.Run(nil)
	assert.True(t, errors.Is(err, ErrOnlyForbidden))
}

func TestWorkersBoundConcurrency(t *testing.T) {
	suite, _, _ := newTestSuite(t, func(c *config.Config) { c.Workers = 2 })

	var running, peak int32
	body := func(*Env) error {
		n := atomic.AddInt32(&running, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		atomic.AddInt32(&running, -1)
		return nil
	}
	for _, name := range []string{"one", "two", "three", "four", "five"} {
		suite.Register(Scenario{Name: name, Run: body})
	}

	summary, err := suite.Run(nil)
	require.NoError(t, err)
	assert.Equal(t, 5, summary.Totals.Passed)
	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(2))
}

func TestOpenFailureFailsScenario(t *testing.T) {
	suite, driver, _ := newTestSuite(t, nil)
	driver.openErr = errors.New("browser crashed")
	suite.Register(Scenario{Name: "any", Run: pass})

	summary, err := suite.Run(nil)
	require.NoError(t, err)
	assert.Equal(t, report.StatusFailed, summary.Results[0].Status)
	assert.Contains(t, summary.Results[0].Error, "browser crashed")
}

func TestConsoleOutput(t *testing.T) {
	var buf bytes.Buffer
	console := NewConsole(LevelNormal, &buf)

	console.TestFinished(report.TestResult{Name: "ok", Status: report.StatusPassed})
	console.TestFinished(report.TestResult{Name: "bad", Status: report.StatusFailed})
	console.Debugf("hidden at normal verbosity")

	out := buf.String()
	assert.Contains(t, out, "ok")
	assert.Contains(t, out, "FAILED: bad")
	assert.NotContains(t, out, "hidden")

	assert.Equal(t, LevelQuiet, ParseLevel("quiet"))
	assert.Equal(t, LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, LevelNormal, ParseLevel(""))
}

func TestSlug(t *testing.T) {
	assert.Equal(t, "download-file-pdf", Slug("Download File (PDF)"))
	assert.Equal(t, "a-b", Slug("--a  b--"))
	assert.Equal(t, "scenario", Slug("!!!"))
}
