package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/entrhq/qaharness/pkg/harness"
	"github.com/entrhq/qaharness/pkg/pages"
	"github.com/entrhq/qaharness/pkg/verify"
)

// downloadScenario opens the download page, saves the file under
// downloads/ and checks what landed on disk.
func downloadScenario(path, fileName string) harness.Scenario {
	return harness.Scenario{
		Name: fmt.Sprintf("download %s", fileName),
		Tags: []string{"@smoke", "@download"},
		Run: func(env *harness.Env) error {
			page := pages.NewDownloadFilePage(env.Tab, env.Layout.Downloads())
			if err := page.Open(path); err != nil {
				return err
			}
			env.Logf("opened %s", env.Tab.URL())

			saved, err := page.DownloadAndSave(fileName)
			if err != nil {
				return err
			}
			env.Logf("saved %s", saved)

			if err := verify.Downloaded(saved, fileName); err != nil {
				return err
			}
			if strings.EqualFold(filepath.Ext(fileName), ".pdf") {
				return verify.PDF(saved)
			}
			return nil
		},
	}
}
