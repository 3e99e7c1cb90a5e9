// Package artifacts manages the directory tree that holds every output of a
// test run: report results, recorded videos, per-test results and downloads.
//
// The layout is reconciled once at startup. Folders left behind at the
// project root by older runs (the "legacy" location, the root's parent) are
// moved under the artifacts root, replacing whatever was there before.
//
// Policy and I/O are kept apart: Reconcile and Plan are pure and return the
// actions to perform, Apply executes them.
package artifacts

import (
	"fmt"
	"os"
	"path/filepath"
)

// Managed subfolder names.
const (
	ReportResults = "report-results"
	Videos        = "videos"
	TestResults   = "test-results"
	Downloads     = "downloads"
)

// DefaultRoot is the artifacts root used when none is configured.
const DefaultRoot = ".artifacts"

// DefaultFolders returns the managed subfolders in their canonical order.
func DefaultFolders() []string {
	return []string{ReportResults, Videos, TestResults, Downloads}
}

// Layout resolves managed folder paths under an artifacts root.
type Layout struct {
	Root string
}

// Dir returns the managed location of the named folder.
func (l Layout) Dir(name string) string {
	return filepath.Join(l.Root, name)
}

// Legacy returns the location a folder of the same name had before it was
// managed: a sibling of the artifacts root.
func (l Layout) Legacy(name string) string {
	return filepath.Join(filepath.Dir(l.Root), name)
}

// Downloads returns the folder downloaded files are saved to.
func (l Layout) Downloads() string { return l.Dir(Downloads) }

// Videos returns the folder browser contexts record videos into.
func (l Layout) Videos() string { return l.Dir(Videos) }

// TestResults returns the folder for screenshots, traces and logs.
func (l Layout) TestResults() string { return l.Dir(TestResults) }

// ReportResults returns the folder reporters write into.
func (l Layout) ReportResults() string { return l.Dir(ReportResults) }

// EnsureLayout guarantees that root and every named subfolder exist,
// migrating legacy folders into place first. It returns the resolved
// (absolute) layout and the actions that were applied; calling it again on
// a satisfied tree applies nothing.
func EnsureLayout(root string, names []string) (Layout, []Action, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return Layout{}, nil, fmt.Errorf("failed to resolve artifacts root %s: %w", root, err)
	}

	rootExists, states, err := Inspect(abs, names)
	if err != nil {
		return Layout{}, nil, err
	}

	actions := Plan(abs, rootExists, states, names)
	if err := Apply(actions); err != nil {
		return Layout{}, nil, err
	}

	return Layout{Root: abs}, actions, nil
}

// Inspect reports whether root exists and, for every name, whether the
// legacy and managed folders exist.
func Inspect(root string, names []string) (bool, map[string]FolderState, error) {
	layout := Layout{Root: root}

	rootExists, err := exists(root)
	if err != nil {
		return false, nil, err
	}

	states := make(map[string]FolderState, len(names))
	for _, name := range names {
		var st FolderState

		legacy := layout.Legacy(name)
		// A root named after one of its own folders is not a legacy copy.
		if filepath.Clean(legacy) != filepath.Clean(root) {
			if st.Legacy, err = exists(legacy); err != nil {
				return false, nil, err
			}
		}
		if st.Managed, err = exists(layout.Dir(name)); err != nil {
			return false, nil, err
		}

		states[name] = st
	}

	return rootExists, states, nil
}

func exists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, fmt.Errorf("failed to stat %s: %w", path, err)
}
