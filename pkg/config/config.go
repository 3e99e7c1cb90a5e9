// Package config holds the runner configuration: target application, browser
// and context options, timeouts, parallelism, retries and artifact layout.
//
// Values come from three layers applied in order: built-in defaults, an
// optional YAML file, and the environment (process variables first, then a
// dotenv file).
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"runtime"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/entrhq/qaharness/pkg/artifacts"
)

// Engine selects the browser automation backend.
type Engine string

const (
	// EnginePlaywright drives Chromium through playwright-go (default)
	EnginePlaywright Engine = "playwright"
	// EngineRod drives Chrome through go-rod
	EngineRod Engine = "rod"
)

// ScreenshotMode controls when screenshots are captured.
type ScreenshotMode string

const (
	ScreenshotOff           ScreenshotMode = "off"
	ScreenshotOn            ScreenshotMode = "on"
	ScreenshotOnlyOnFailure ScreenshotMode = "only-on-failure"
)

// TraceMode controls when traces are recorded.
type TraceMode string

const (
	TraceOff          TraceMode = "off"
	TraceOn           TraceMode = "on"
	TraceOnFirstRetry TraceMode = "on-first-retry"
)

// Default values
const (
	DefaultActionTimeout     = 30 * time.Second
	DefaultNavigationTimeout = 60 * time.Second
	DefaultViewportWidth     = 1280
	DefaultViewportHeight    = 720

	// ciRetries and ciWorkers apply when the CI variable is set
	ciRetries = 2
	ciWorkers = 1
)

// Config is the complete runner configuration.
type Config struct {
	// BaseURL is prepended to relative navigation targets
	BaseURL string `yaml:"base_url" json:"base_url"`

	// Browser options
	Engine          Engine   `yaml:"engine" json:"engine"`
	Headless        bool     `yaml:"headless" json:"headless"`
	InstallBrowsers bool     `yaml:"install_browsers" json:"install_browsers"`
	Viewport        Viewport `yaml:"viewport" json:"viewport"`

	// Timeouts
	ActionTimeout     time.Duration `yaml:"action_timeout" json:"action_timeout"`
	NavigationTimeout time.Duration `yaml:"navigation_timeout" json:"navigation_timeout"`

	// Execution
	Workers    int  `yaml:"workers" json:"workers"`
	Retries    int  `yaml:"retries" json:"retries"`
	ForbidOnly bool `yaml:"forbid_only" json:"forbid_only"`

	// Artifacts
	Artifacts  ArtifactConfig `yaml:"artifacts" json:"artifacts"`
	Video      bool           `yaml:"video" json:"video"`
	Screenshot ScreenshotMode `yaml:"screenshot" json:"screenshot"`
	Trace      TraceMode      `yaml:"trace" json:"trace"`

	Logging LoggingConfig `yaml:"logging" json:"logging"`
}

// Viewport is the browser page size.
type Viewport struct {
	Width  int `yaml:"width" json:"width"`
	Height int `yaml:"height" json:"height"`
}

// ArtifactConfig locates the artifacts tree.
type ArtifactConfig struct {
	Dir     string   `yaml:"dir" json:"dir"`
	Folders []string `yaml:"folders" json:"folders"`
}

// LoggingConfig defines logging configuration
type LoggingConfig struct {
	// Verbosity controls console output: quiet, normal, verbose, debug
	Verbosity string `yaml:"verbosity" json:"verbosity"`
}

// DefaultConfig returns the configuration used when nothing is overridden.
func DefaultConfig() *Config {
	return &Config{
		Engine:            EnginePlaywright,
		Headless:          true,
		InstallBrowsers:   true,
		Viewport:          Viewport{Width: DefaultViewportWidth, Height: DefaultViewportHeight},
		ActionTimeout:     DefaultActionTimeout,
		NavigationTimeout: DefaultNavigationTimeout,
		Workers:           defaultWorkers(),
		Retries:           0,
		Artifacts: ArtifactConfig{
			Dir:     artifacts.DefaultRoot,
			Folders: artifacts.DefaultFolders(),
		},
		Video:      true,
		Screenshot: ScreenshotOnlyOnFailure,
		Trace:      TraceOnFirstRetry,
		Logging:    LoggingConfig{Verbosity: "normal"},
	}
}

// defaultWorkers uses half of the available cores.
func defaultWorkers() int {
	if n := runtime.NumCPU() / 2; n > 1 {
		return n
	}
	return 1
}

// Load builds a configuration from defaults, the YAML file at path (if not
// empty) and the environment, where process variables take precedence over
// the dotenv file at envFile.
func Load(path, envFile string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		if err := cfg.LoadFile(path); err != nil {
			return nil, err
		}
	}

	dotenv, err := LoadEnvFile(envFile)
	if err != nil {
		return nil, err
	}

	lookup := func(key string) (string, bool) {
		if v, ok := os.LookupEnv(key); ok {
			return v, true
		}
		v, ok := dotenv[key]
		return v, ok
	}

	if err := cfg.ApplyEnv(lookup); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// LoadFile overlays the YAML file at path onto c.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// LoadEnvFile reads a dotenv file without modifying the process
// environment. A missing file yields an empty map.
func LoadEnvFile(path string) (map[string]string, error) {
	if path == "" {
		return map[string]string{}, nil
	}
	values, err := godotenv.Read(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("failed to read env file %s: %w", path, err)
	}
	return values, nil
}

// ApplyEnv applies environment overrides. A non-empty CI variable switches
// to CI defaults (retries, a single worker, forbid-only) before explicit
// RETRIES and WORKERS values are applied.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup("CI"); ok && v != "" {
		c.Retries = ciRetries
		c.Workers = ciWorkers
		c.ForbidOnly = true
	}

	if v, ok := lookup("BASE_URL"); ok {
		c.BaseURL = v
	}
	if v, ok := lookup("BROWSER_ENGINE"); ok && v != "" {
		c.Engine = Engine(v)
	}
	if v, ok := lookup("ARTIFACTS_DIR"); ok && v != "" {
		c.Artifacts.Dir = v
	}

	if v, ok := lookup("HEADLESS"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid HEADLESS value %q: %w", v, err)
		}
		c.Headless = b
	}

	durations := []struct {
		key  string
		dest *time.Duration
	}{
		{"ACTION_TIMEOUT", &c.ActionTimeout},
		{"NAVIGATION_TIMEOUT", &c.NavigationTimeout},
	}
	for _, d := range durations {
		v, ok := lookup(d.key)
		if !ok || v == "" {
			continue
		}
		parsed, err := parseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid %s value %q: %w", d.key, v, err)
		}
		*d.dest = parsed
	}

	ints := []struct {
		key  string
		dest *int
	}{
		{"WORKERS", &c.Workers},
		{"RETRIES", &c.Retries},
	}
	for _, i := range ints {
		v, ok := lookup(i.key)
		if !ok || v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s value %q: %w", i.key, v, err)
		}
		*i.dest = n
	}

	return nil
}

// parseDuration accepts Go duration strings and bare milliseconds.
func parseDuration(v string) (time.Duration, error) {
	if ms, err := strconv.Atoi(v); err == nil {
		return time.Duration(ms) * time.Millisecond, nil
	}
	return time.ParseDuration(v)
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Engine != EnginePlaywright && c.Engine != EngineRod {
		return fmt.Errorf("invalid engine: %s (must be 'playwright' or 'rod')", c.Engine)
	}

	if c.ActionTimeout <= 0 {
		return fmt.Errorf("action_timeout must be positive")
	}

	if c.NavigationTimeout <= 0 {
		return fmt.Errorf("navigation_timeout must be positive")
	}

	if c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", c.Workers)
	}

	if c.Retries < 0 {
		return fmt.Errorf("retries cannot be negative")
	}

	if c.Viewport.Width <= 0 || c.Viewport.Height <= 0 {
		return fmt.Errorf("viewport must be positive, got %dx%d", c.Viewport.Width, c.Viewport.Height)
	}

	if c.Artifacts.Dir == "" {
		return fmt.Errorf("artifacts directory is required")
	}

	switch c.Screenshot {
	case ScreenshotOff, ScreenshotOn, ScreenshotOnlyOnFailure:
	default:
		return fmt.Errorf("invalid screenshot mode: %s (must be 'off', 'on', or 'only-on-failure')", c.Screenshot)
	}

	switch c.Trace {
	case TraceOff, TraceOn, TraceOnFirstRetry:
	default:
		return fmt.Errorf("invalid trace mode: %s (must be 'off', 'on', or 'on-first-retry')", c.Trace)
	}

	// Set default verbosity if not specified
	if c.Logging.Verbosity == "" {
		c.Logging.Verbosity = "normal"
	}

	validLevels := map[string]bool{
		"quiet":   true,
		"normal":  true,
		"verbose": true,
		"debug":   true,
	}
	if !validLevels[c.Logging.Verbosity] {
		return fmt.Errorf("invalid logging verbosity: %s (must be 'quiet', 'normal', 'verbose', or 'debug')", c.Logging.Verbosity)
	}

	return nil
}

// Folders returns the managed artifact folders, falling back to the
// defaults when none are configured.
func (c *Config) Folders() []string {
	if len(c.Artifacts.Folders) == 0 {
		return artifacts.DefaultFolders()
	}
	return c.Artifacts.Folders
}
