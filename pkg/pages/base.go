// Package pages contains page objects that drive the application under test
// through a browser automation engine.
//
// Page objects depend only on the Surface capability set, so the same page
// works against any engine adapter in pkg/browser and against fakes in tests.
package pages

import (
	"errors"
	"fmt"
)

// Surface is a navigable page that can locate controls and report downloads.
type Surface interface {
	// Goto navigates to url, relative urls resolve against the base URL
	Goto(url string) error

	// URL returns the current page URL
	URL() string

	// Locator returns a lazy handle to the element matching selector
	Locator(selector string) Control

	// ExpectDownload arms a download listener, runs trigger and waits for
	// the download to start. The listener is in place before trigger runs.
	ExpectDownload(trigger func() error) (Download, error)
}

// Control is an element that can be activated.
type Control interface {
	Click() error
}

// Download is a file transfer reported by the engine.
type Download interface {
	SuggestedFilename() string
	SaveAs(path string) error
}

var (
	// ErrTimeout is wrapped by engine adapters around their timeout errors.
	ErrTimeout = errors.New("timeout exceeded")

	// ErrDownloadTimeout means the triggering click succeeded but no
	// download event arrived in time.
	ErrDownloadTimeout = errors.New("download was not received")

	// ErrInvalidFileName is returned for download names that are not a bare
	// file name.
	ErrInvalidFileName = errors.New("invalid file name")
)

// ActionError reports a UI action that failed, typically because its
// element could not be located.
type ActionError struct {
	Action   string
	Selector string
	Err      error
}

func (e *ActionError) Error() string {
	return fmt.Sprintf("%s %q failed: %v", e.Action, e.Selector, e.Err)
}

func (e *ActionError) Unwrap() error {
	return e.Err
}

// BasePage gives page objects access to the underlying surface.
type BasePage struct {
	surface Surface
}

// NewBasePage wraps surface.
func NewBasePage(surface Surface) BasePage {
	return BasePage{surface: surface}
}

// Surface returns the wrapped automation handle.
func (p BasePage) Surface() Surface {
	return p.surface
}

// Open navigates to path.
func (p BasePage) Open(path string) error {
	if err := p.surface.Goto(path); err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	return nil
}

// click activates the control, reporting failures as an ActionError.
func (p BasePage) click(control Control, selector string) error {
	if err := control.Click(); err != nil {
		return &ActionError{Action: "click", Selector: selector, Err: err}
	}
	return nil
}
