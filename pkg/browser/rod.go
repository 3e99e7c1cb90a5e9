package browser

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	"github.com/entrhq/qaharness/pkg/logging"
	"github.com/entrhq/qaharness/pkg/pages"
)

// RodDriver drives Chrome through go-rod. Each tab lives in its own
// incognito context.
type RodDriver struct {
	mu       sync.Mutex
	browser  *rod.Browser
	launcher *launcher.Launcher
	tabs     map[string]*rodTab
	opts     Options
	log      *logging.Logger
	closed   bool
}

var _ Driver = (*RodDriver)(nil)

// NewRodDriver launches Chrome and connects to it.
func NewRodDriver(opts Options, logger *logging.Logger) (*RodDriver, error) {
	if logger == nil {
		logger = logging.Discard("browser")
	}
	opts = opts.withDefaults()

	l := launcher.New().
		Headless(opts.Headless).
		Set("no-sandbox").
		Set("disable-gpu")

	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("failed to launch Chrome: %w", err)
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		l.Kill()
		return nil, fmt.Errorf("failed to connect to Chrome: %w", err)
	}

	logger.Infof("connected to chrome at %s (headless=%v)", controlURL, opts.Headless)
	return &RodDriver{
		browser:  browser,
		launcher: l,
		tabs:     make(map[string]*rodTab),
		opts:     opts,
		log:      logger,
	}, nil
}

// Open creates an incognito context with one page.
func (d *RodDriver) Open(name string) (Tab, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.tabs[name]; exists {
		return nil, fmt.Errorf("session %q already exists", name)
	}
	if len(d.tabs) >= d.opts.MaxSessions {
		return nil, fmt.Errorf("maximum number of sessions (%d) reached", d.opts.MaxSessions)
	}

	incognito, err := d.browser.Incognito()
	if err != nil {
		return nil, fmt.Errorf("failed to create context: %w", err)
	}

	page, err := incognito.Page(proto.TargetCreateTarget{})
	if err != nil {
		_ = incognito.Close()
		return nil, fmt.Errorf("failed to create page: %w", err)
	}

	if err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             d.opts.Viewport.Width,
		Height:            d.opts.Viewport.Height,
		DeviceScaleFactor: 1,
	}); err != nil {
		_ = incognito.Close()
		return nil, fmt.Errorf("failed to set viewport: %w", err)
	}

	tab := &rodTab{
		name:    name,
		browser: incognito,
		page:    page,
		driver:  d,
		log:     d.log.With("session:" + name),
	}
	d.tabs[name] = tab
	return tab, nil
}

func (d *RodDriver) forget(name string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.tabs, name)
}

// Close closes all tabs and the browser, then stops the Chrome process.
func (d *RodDriver) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	tabs := make([]*rodTab, 0, len(d.tabs))
	for _, tab := range d.tabs {
		tabs = append(tabs, tab)
	}
	d.mu.Unlock()

	var errs []error
	for _, tab := range tabs {
		if _, err := tab.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	if err := d.browser.Close(); err != nil {
		errs = append(errs, err)
	}
	d.launcher.Cleanup()

	if len(errs) > 0 {
		return fmt.Errorf("errors during shutdown: %v", errs)
	}
	return nil
}

// rodTab is a page in an incognito browser context.
type rodTab struct {
	name      string
	browser   *rod.Browser
	page      *rod.Page
	driver    *RodDriver
	log       *logging.Logger
	closeOnce sync.Once
	closeErr  error
}

var _ Tab = (*rodTab)(nil)

func (t *rodTab) Name() string { return t.name }

// Goto navigates and waits for the load event. Relative URLs resolve
// against the base URL.
func (t *rodTab) Goto(target string) error {
	resolved, err := resolveURL(t.driver.opts.BaseURL, target)
	if err != nil {
		return err
	}

	page := t.page.Timeout(t.driver.opts.NavigationTimeout)
	defer page.CancelTimeout()

	if err := page.Navigate(resolved); err != nil {
		return fmt.Errorf("navigation failed: %w", translateRodError(err))
	}
	if err := page.WaitLoad(); err != nil {
		return fmt.Errorf("navigation failed: %w", translateRodError(err))
	}
	return nil
}

func (t *rodTab) URL() string {
	info, err := t.page.Info()
	if err != nil {
		return ""
	}
	return info.URL
}

func (t *rodTab) Locator(selector string) pages.Control {
	return &rodControl{page: t.page, selector: selector, timeout: t.driver.opts.ActionTimeout}
}

// ExpectDownload enables downloads into a scratch directory before running
// trigger, then waits for the download to complete.
func (t *rodTab) ExpectDownload(trigger func() error) (pages.Download, error) {
	dir, err := os.MkdirTemp("", "qaharness-download-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create download scratch directory: %w", err)
	}

	waiter := t.browser.Timeout(t.driver.opts.ActionTimeout)
	wait := waiter.WaitDownload(dir)

	if err := trigger(); err != nil {
		waiter.CancelTimeout()
		_ = os.RemoveAll(dir)
		return nil, err
	}

	info := wait()
	ctxErr := waiter.GetContext().Err()
	waiter.CancelTimeout()

	if errors.Is(ctxErr, context.DeadlineExceeded) || info == nil {
		_ = os.RemoveAll(dir)
		return nil, fmt.Errorf("%w: waiting for download", pages.ErrTimeout)
	}

	return &rodDownload{
		path:      filepath.Join(dir, info.GUID),
		dir:       dir,
		suggested: info.SuggestedFilename,
	}, nil
}

func (t *rodTab) Screenshot(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create screenshot directory: %w", err)
	}
	data, err := t.page.Screenshot(true, nil)
	if err != nil {
		return fmt.Errorf("screenshot failed: %w", translateRodError(err))
	}
	return os.WriteFile(path, data, 0644)
}

// StartTracing is not supported by rod; traces are skipped.
func (t *rodTab) StartTracing() error { return nil }

// StopTracing is not supported by rod; no file is written.
func (t *rodTab) StopTracing(string) error { return nil }

func (t *rodTab) Close() ([]string, error) {
	t.closeOnce.Do(func() {
		if err := t.browser.Close(); err != nil {
			t.closeErr = fmt.Errorf("failed to close context: %w", err)
		}
		t.driver.forget(t.name)
	})
	return nil, t.closeErr
}

// rodControl locates its element lazily on every click.
type rodControl struct {
	page     *rod.Page
	selector string
	timeout  time.Duration
}

func (c *rodControl) Click() error {
	page := c.page.Timeout(c.timeout)
	defer page.CancelTimeout()

	var (
		el  *rod.Element
		err error
	)
	if xpath, ok := asXPath(c.selector); ok {
		el, err = page.ElementX(xpath)
	} else {
		el, err = page.Element(c.selector)
	}
	if err != nil {
		return translateRodError(err)
	}
	return translateRodError(el.Click(proto.InputMouseButtonLeft, 1))
}

// rodDownload is a completed download sitting in a scratch directory.
type rodDownload struct {
	path      string
	dir       string
	suggested string
}

func (d *rodDownload) SuggestedFilename() string { return d.suggested }

// SaveAs copies the payload to path, replacing any existing file.
func (d *rodDownload) SaveAs(path string) error {
	defer os.RemoveAll(d.dir)

	src, err := os.Open(d.path)
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return err
	}
	return dst.Close()
}

// asXPath reports whether selector is an XPath expression, using the same
// conventions as playwright: an explicit xpath= prefix or a leading slash.
func asXPath(selector string) (string, bool) {
	if strings.HasPrefix(selector, "xpath=") {
		return strings.TrimPrefix(selector, "xpath="), true
	}
	if strings.HasPrefix(selector, "/") || strings.HasPrefix(selector, "(/") {
		return selector, true
	}
	return selector, false
}

func resolveURL(base, target string) (string, error) {
	if base == "" {
		return target, nil
	}
	baseURL, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid base URL %q: %w", base, err)
	}
	ref, err := url.Parse(target)
	if err != nil {
		return "", fmt.Errorf("invalid URL %q: %w", target, err)
	}
	return baseURL.ResolveReference(ref).String(), nil
}

func translateRodError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", pages.ErrTimeout, err)
	}
	return err
}
