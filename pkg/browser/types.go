package browser

import (
	"fmt"
	"time"

	"github.com/entrhq/qaharness/pkg/artifacts"
	"github.com/entrhq/qaharness/pkg/config"
	"github.com/entrhq/qaharness/pkg/logging"
	"github.com/entrhq/qaharness/pkg/pages"
)

// Driver launches isolated tabs on one browser.
type Driver interface {
	// Open creates a new isolated context with one page
	Open(name string) (Tab, error)

	// Close closes every open tab, the browser and the engine
	Close() error
}

// Tab is a page in its own browser context.
type Tab interface {
	pages.Surface

	// Name is the identifier the tab was opened with
	Name() string

	// Screenshot writes a PNG of the current page to path
	Screenshot(path string) error

	// StartTracing begins recording a trace of the context
	StartTracing() error

	// StopTracing stops recording and writes the trace archive to path
	StopTracing(path string) error

	// Close releases the context and returns the paths of artifacts that
	// only become available on close, such as recorded videos
	Close() ([]string, error)
}

// Options configures a driver. It is derived from config.Config.
type Options struct {
	BaseURL           string
	Headless          bool
	InstallBrowsers   bool
	Viewport          Viewport
	ActionTimeout     time.Duration
	NavigationTimeout time.Duration
	MaxSessions       int

	// VideoDir enables video recording when not empty
	VideoDir string
}

// Viewport represents the browser viewport dimensions.
type Viewport struct {
	Width  int
	Height int
}

// Default values for various operations
const (
	DefaultTimeout        = 30 * time.Second
	DefaultViewportWidth  = 1280
	DefaultViewportHeight = 720
	DefaultMaxSessions    = 5
)

// OptionsFromConfig maps the runner configuration onto driver options.
func OptionsFromConfig(cfg *config.Config, layout artifacts.Layout) Options {
	opts := Options{
		BaseURL:           cfg.BaseURL,
		Headless:          cfg.Headless,
		InstallBrowsers:   cfg.InstallBrowsers,
		Viewport:          Viewport{Width: cfg.Viewport.Width, Height: cfg.Viewport.Height},
		ActionTimeout:     cfg.ActionTimeout,
		NavigationTimeout: cfg.NavigationTimeout,
		MaxSessions:       cfg.Workers,
	}
	if cfg.Video {
		opts.VideoDir = layout.Videos()
	}
	return opts
}

// withDefaults fills zero values.
func (o Options) withDefaults() Options {
	if o.Viewport.Width == 0 || o.Viewport.Height == 0 {
		o.Viewport = Viewport{Width: DefaultViewportWidth, Height: DefaultViewportHeight}
	}
	if o.ActionTimeout == 0 {
		o.ActionTimeout = DefaultTimeout
	}
	if o.NavigationTimeout == 0 {
		o.NavigationTimeout = 2 * DefaultTimeout
	}
	if o.MaxSessions == 0 {
		o.MaxSessions = DefaultMaxSessions
	}
	return o
}

// NewDriver starts the engine selected by cfg.
func NewDriver(cfg *config.Config, layout artifacts.Layout, logger *logging.Logger) (Driver, error) {
	opts := OptionsFromConfig(cfg, layout)

	switch cfg.Engine {
	case config.EnginePlaywright, "":
		m := NewSessionManager(opts, logger)
		if err := m.Initialize(); err != nil {
			return nil, err
		}
		return m, nil
	case config.EngineRod:
		return NewRodDriver(opts, logger)
	default:
		return nil, fmt.Errorf("unsupported engine: %s", cfg.Engine)
	}
}

// milliseconds converts d to the float milliseconds playwright expects.
func milliseconds(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
