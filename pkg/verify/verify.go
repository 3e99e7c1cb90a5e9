// Package verify holds caller-side assertions for downloaded files.
package verify

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pdfcpu/pdfcpu/pkg/api"
)

func init() {
	// Keep pdfcpu from creating a config directory under the user's home.
	api.DisableConfigDir()
}

// Downloaded checks that path is an absolute path to a regular file named
// expectedName.
func Downloaded(path, expectedName string) error {
	if !filepath.IsAbs(path) {
		return fmt.Errorf("download path %q is not absolute", path)
	}
	if base := filepath.Base(path); base != expectedName {
		return fmt.Errorf("download saved as %q, expected %q", base, expectedName)
	}

	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("downloaded file missing: %w", err)
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("download path %q is not a regular file", path)
	}
	return nil
}

// PDF validates that path holds a well-formed PDF document.
func PDF(path string) error {
	if err := api.ValidateFile(path, nil); err != nil {
		return fmt.Errorf("invalid PDF %s: %w", path, err)
	}
	return nil
}

// PageCount returns the number of pages of the PDF at path.
func PageCount(path string) (int, error) {
	n, err := api.PageCountFile(path)
	if err != nil {
		return 0, fmt.Errorf("failed to count pages of %s: %w", path, err)
	}
	return n, nil
}
