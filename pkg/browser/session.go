package browser

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/entrhq/qaharness/pkg/logging"
	"github.com/entrhq/qaharness/pkg/pages"
)

// Session is a playwright browser context with its single page.
type Session struct {
	name string

	// Context is the isolated browser context
	Context playwright.BrowserContext

	// Page is the page tests drive
	Page playwright.Page

	// CreatedAt is the timestamp when the session was created
	CreatedAt time.Time

	manager   *SessionManager
	log       *logging.Logger
	closeOnce sync.Once
	artifacts []string
	closeErr  error
}

var _ Tab = (*Session)(nil)

// Name returns the session name.
func (s *Session) Name() string {
	return s.name
}

// Goto navigates the page. Relative URLs resolve against the base URL.
func (s *Session) Goto(url string) error {
	if _, err := s.Page.Goto(url); err != nil {
		return fmt.Errorf("navigation failed: %w", translateError(err))
	}
	s.log.Debugf("navigated to %s", s.Page.URL())
	return nil
}

// URL returns the current page URL.
func (s *Session) URL() string {
	return s.Page.URL()
}

// Locator returns a control for the element matching selector.
func (s *Session) Locator(selector string) pages.Control {
	return &locatorControl{locator: s.Page.Locator(selector)}
}

// ExpectDownload arms playwright's download waiter, runs trigger and waits
// for the download event.
func (s *Session) ExpectDownload(trigger func() error) (pages.Download, error) {
	download, err := s.Page.ExpectDownload(trigger)
	if err != nil {
		return nil, translateError(err)
	}
	s.log.Debugf("download started: %s (%s)", download.SuggestedFilename(), download.URL())
	return download, nil
}

// Screenshot writes a PNG of the page to path.
func (s *Session) Screenshot(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create screenshot directory: %w", err)
	}
	if _, err := s.Page.Screenshot(playwright.PageScreenshotOptions{
		Path:     playwright.String(path),
		FullPage: playwright.Bool(true),
	}); err != nil {
		return fmt.Errorf("screenshot failed: %w", translateError(err))
	}
	return nil
}

// StartTracing starts a trace with screenshots and DOM snapshots.
func (s *Session) StartTracing() error {
	err := s.Context.Tracing().Start(playwright.TracingStartOptions{
		Name:        playwright.String(s.name),
		Screenshots: playwright.Bool(true),
		Snapshots:   playwright.Bool(true),
	})
	if err != nil {
		return fmt.Errorf("failed to start tracing: %w", err)
	}
	return nil
}

// StopTracing stops the trace and saves it to path.
func (s *Session) StopTracing(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create trace directory: %w", err)
	}
	if err := s.Context.Tracing().Stop(path); err != nil {
		return fmt.Errorf("failed to stop tracing: %w", err)
	}
	return nil
}

// Close closes the page and its context. Videos are finalized when the
// context closes, so their paths are returned here. Safe to call twice.
func (s *Session) Close() ([]string, error) {
	s.closeOnce.Do(func() {
		video := s.Page.Video()

		if err := s.Context.Close(); err != nil {
			s.closeErr = fmt.Errorf("failed to close context: %w", err)
		}

		if video != nil {
			if path, err := video.Path(); err == nil && path != "" {
				s.artifacts = append(s.artifacts, path)
			}
		}

		s.manager.forget(s.name)
		s.log.Debugf("closed session (artifacts: %v)", s.artifacts)
	})
	return s.artifacts, s.closeErr
}

// locatorControl adapts a playwright locator to pages.Control.
type locatorControl struct {
	locator playwright.Locator
}

func (c *locatorControl) Click() error {
	return translateError(c.locator.Click())
}

// translateError marks playwright timeouts with pages.ErrTimeout.
func translateError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, playwright.ErrTimeout) && !errors.Is(err, pages.ErrTimeout) {
		return fmt.Errorf("%w: %w", pages.ErrTimeout, err)
	}
	return err
}
