package harness

import (
	"fmt"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/gobwas/glob"

	"github.com/entrhq/qaharness/pkg/artifacts"
	"github.com/entrhq/qaharness/pkg/browser"
	"github.com/entrhq/qaharness/pkg/config"
	"github.com/entrhq/qaharness/pkg/logging"
)

// Scenario is one end-to-end test.
type Scenario struct {
	Name string
	Tags []string

	// Only restricts a run to scenarios marked Only, unless forbid_only
	// is set, in which case the run fails
	Only bool

	// Skip, when not empty, skips the scenario with this reason
	Skip string

	Run func(env *Env) error
}

// Env is what a scenario attempt gets to work with.
type Env struct {
	Tab     browser.Tab
	Layout  artifacts.Layout
	Config  *config.Config
	Attempt int

	scenario string
	slug     string
	log      *logging.Logger
	console  *Console
}

// Logf writes a line to the run log and, at debug verbosity, the console.
func (e *Env) Logf(format string, args ...interface{}) {
	e.log.Infof(format, args...)
	e.console.Debugf("%s: "+format, append([]interface{}{e.scenario}, args...)...)
}

// ResultsDir is the per-scenario folder under test-results.
func (e *Env) ResultsDir() string {
	return filepath.Join(e.Layout.TestResults(), e.slug)
}

// Filter selects scenarios by glob patterns matched against names and tags.
type Filter struct {
	patterns []glob.Glob
}

// NewFilter compiles patterns. No patterns selects everything.
func NewFilter(patterns []string) (*Filter, error) {
	f := &Filter{}
	for _, pattern := range patterns {
		if pattern == "" {
			continue
		}
		g, err := glob.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid pattern '%s': %w", pattern, err)
		}
		f.patterns = append(f.patterns, g)
	}
	return f, nil
}

// Match reports whether the scenario is selected.
func (f *Filter) Match(sc Scenario) bool {
	if len(f.patterns) == 0 {
		return true
	}
	for _, pattern := range f.patterns {
		if pattern.Match(sc.Name) {
			return true
		}
		for _, tag := range sc.Tags {
			if pattern.Match(tag) {
				return true
			}
		}
	}
	return false
}

// Slug turns a scenario name into a file-system friendly folder name.
func Slug(name string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(name) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	slug := strings.TrimSuffix(b.String(), "-")
	if slug == "" {
		return "scenario"
	}
	return slug
}
