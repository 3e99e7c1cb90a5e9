package verify

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDownloaded(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "report.pdf")
	require.NoError(t, os.WriteFile(path, []byte("payload"), 0600))

	assert.NoError(t, Downloaded(path, "report.pdf"))
	assert.Error(t, Downloaded(path, "other.pdf"))
	assert.Error(t, Downloaded("report.pdf", "report.pdf"))
	assert.Error(t, Downloaded(filepath.Join(dir, "missing.pdf"), "missing.pdf"))

	sub := filepath.Join(dir, "folder.pdf")
	require.NoError(t, os.Mkdir(sub, 0755))
	assert.Error(t, Downloaded(sub, "folder.pdf"))
}

func TestPDFRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fake.pdf")
	require.NoError(t, os.WriteFile(path, []byte("this is not a pdf"), 0600))

	assert.Error(t, PDF(path))

	_, err := PageCount(path)
	assert.Error(t, err)
}
