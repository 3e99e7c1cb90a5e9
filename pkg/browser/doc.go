// Package browser adapts browser automation engines to the capability set
// page objects depend on (pages.Surface).
//
// # Architecture
//
// The package is built around two interfaces:
//
//  1. Driver: owns the engine process and one launched browser
//  2. Tab: an isolated browser context with a single page, implementing
//     pages.Surface plus artifact capture (screenshots, traces, videos)
//
// Every Tab gets its own context, so tests running in parallel never share
// cookies, storage or downloads.
//
// # Engines
//
// Two engines are available, selected by config.Engine:
//
//   - playwright (default): Chromium through playwright-go. Supports video
//     recording, tracing, base URL resolution and per-action timeouts.
//   - rod: Chrome through go-rod. Tracing and video are not available.
//
// # Timeouts
//
// The action timeout bounds locating and clicking elements and waiting for
// downloads; the navigation timeout bounds page loads. Engine timeout
// errors are wrapped with pages.ErrTimeout.
//
// # Example Usage
//
//	driver, err := browser.NewDriver(cfg, layout, logger)
//	if err != nil {
//	    return err
//	}
//	defer driver.Close()
//
//	tab, err := driver.Open("download-file")
//	if err != nil {
//	    return err
//	}
//	defer tab.Close()
//
//	page := pages.NewDownloadFilePage(tab, layout.Downloads())
//	path, err := page.DownloadAndSave("sample.pdf")
package browser
