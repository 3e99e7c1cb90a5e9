package pages

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Default selectors for the download section.
const (
	DefaultHeadingSelector = `//h3[text()="Download File"]`
	DefaultButtonSelector  = `a.btn.btn-lg.btn-green-outline`
)

// DownloadRecord describes a single completed download. It lives only for
// the call that produced it.
type DownloadRecord struct {
	ExpectedFileName  string
	SuggestedFilename string
	SavedPath         string
}

// DownloadFilePage drives the "Download File" section of the QA page.
type DownloadFilePage struct {
	BasePage

	headingSelector string
	buttonSelector  string
	downloadDir     string
}

// DownloadOption customizes a DownloadFilePage.
type DownloadOption func(*DownloadFilePage)

// WithHeadingSelector overrides the section heading selector.
func WithHeadingSelector(selector string) DownloadOption {
	return func(p *DownloadFilePage) { p.headingSelector = selector }
}

// WithButtonSelector overrides the download button selector.
func WithButtonSelector(selector string) DownloadOption {
	return func(p *DownloadFilePage) { p.buttonSelector = selector }
}

// NewDownloadFilePage creates the page object. Files are saved into
// downloadDir, normally the downloads folder of the artifacts layout.
func NewDownloadFilePage(surface Surface, downloadDir string, opts ...DownloadOption) *DownloadFilePage {
	p := &DownloadFilePage{
		BasePage:        NewBasePage(surface),
		headingSelector: DefaultHeadingSelector,
		buttonSelector:  DefaultButtonSelector,
		downloadDir:     downloadDir,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// DownloadDir returns the directory files are saved to.
func (p *DownloadFilePage) DownloadDir() string {
	return p.downloadDir
}

// DownloadAndSave opens the download section, downloads the file and saves
// it as expectedFileName. It returns the absolute path of the saved file.
//
// An existing file with the same name is overwritten. Checking the file is
// left to the caller.
func (p *DownloadFilePage) DownloadAndSave(expectedFileName string) (string, error) {
	record, err := p.Download(expectedFileName)
	if err != nil {
		return "", err
	}
	return record.SavedPath, nil
}

// Download is DownloadAndSave returning the full record.
func (p *DownloadFilePage) Download(expectedFileName string) (DownloadRecord, error) {
	if err := validateFileName(expectedFileName); err != nil {
		return DownloadRecord{}, err
	}

	heading := p.surface.Locator(p.headingSelector)
	if err := p.click(heading, p.headingSelector); err != nil {
		return DownloadRecord{}, err
	}

	button := p.surface.Locator(p.buttonSelector)
	var clickErr error
	download, err := p.surface.ExpectDownload(func() error {
		clickErr = p.click(button, p.buttonSelector)
		return clickErr
	})
	if err != nil {
		if clickErr != nil {
			return DownloadRecord{}, clickErr
		}
		if errors.Is(err, ErrTimeout) {
			return DownloadRecord{}, fmt.Errorf("%w after clicking %q: %w", ErrDownloadTimeout, p.buttonSelector, err)
		}
		return DownloadRecord{}, fmt.Errorf("failed waiting for download: %w", err)
	}

	dir, err := filepath.Abs(p.downloadDir)
	if err != nil {
		return DownloadRecord{}, fmt.Errorf("failed to resolve download directory: %w", err)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return DownloadRecord{}, fmt.Errorf("failed to create download directory: %w", err)
	}

	path := filepath.Join(dir, expectedFileName)
	if err := download.SaveAs(path); err != nil {
		return DownloadRecord{}, fmt.Errorf("failed to save download to %s: %w", path, err)
	}

	return DownloadRecord{
		ExpectedFileName:  expectedFileName,
		SuggestedFilename: download.SuggestedFilename(),
		SavedPath:         path,
	}, nil
}

func validateFileName(name string) error {
	if name == "" || name == "." || name == ".." {
		return fmt.Errorf("%w: %q", ErrInvalidFileName, name)
	}
	if strings.ContainsAny(name, `/\`) || filepath.Base(name) != name {
		return fmt.Errorf("%w: %q must not contain a path", ErrInvalidFileName, name)
	}
	return nil
}
