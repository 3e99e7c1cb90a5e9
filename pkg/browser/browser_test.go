package browser

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/playwright-community/playwright-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/qaharness/pkg/artifacts"
	"github.com/entrhq/qaharness/pkg/config"
	"github.com/entrhq/qaharness/pkg/pages"
)

func TestOptionsFromConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.BaseURL = "https://qa.example.com"
	cfg.Workers = 3
	layout := artifacts.Layout{Root: "/tmp/run/.artifacts"}

	opts := OptionsFromConfig(cfg, layout)
	assert.Equal(t, "https://qa.example.com", opts.BaseURL)
	assert.Equal(t, Viewport{Width: 1280, Height: 720}, opts.Viewport)
	assert.Equal(t, 30*time.Second, opts.ActionTimeout)
	assert.Equal(t, 60*time.Second, opts.NavigationTimeout)
	assert.Equal(t, 3, opts.MaxSessions)
	assert.Equal(t, layout.Videos(), opts.VideoDir)

	cfg.Video = false
	assert.Empty(t, OptionsFromConfig(cfg, layout).VideoDir)
}

func TestOptionsWithDefaults(t *testing.T) {
	opts := Options{}.withDefaults()
	assert.Equal(t, Viewport{Width: DefaultViewportWidth, Height: DefaultViewportHeight}, opts.Viewport)
	assert.Equal(t, DefaultTimeout, opts.ActionTimeout)
	assert.Equal(t, 2*DefaultTimeout, opts.NavigationTimeout)
	assert.Equal(t, DefaultMaxSessions, opts.MaxSessions)
}

func TestMilliseconds(t *testing.T) {
	assert.Equal(t, 30000.0, milliseconds(30*time.Second))
	assert.Equal(t, 1.5, milliseconds(1500*time.Microsecond))
}

func TestTranslateError(t *testing.T) {
	assert.NoError(t, translateError(nil))

	timeout := translateError(fmt.Errorf("waiting for locator: %w", playwright.ErrTimeout))
	assert.True(t, errors.Is(timeout, pages.ErrTimeout))
	assert.True(t, errors.Is(timeout, playwright.ErrTimeout))

	other := errors.New("target closed")
	assert.Same(t, other, translateError(other))
}

func TestTranslateRodError(t *testing.T) {
	assert.NoError(t, translateRodError(nil))

	timeout := translateRodError(fmt.Errorf("element: %w", context.DeadlineExceeded))
	assert.True(t, errors.Is(timeout, pages.ErrTimeout))

	other := errors.New("no such node")
	assert.Same(t, other, translateRodError(other))
}

func TestAsXPath(t *testing.T) {
	tests := []struct {
		selector string
		want     string
		isXPath  bool
	}{
		{`//h3[text()="Download File"]`, `//h3[text()="Download File"]`, true},
		{`xpath=//a`, `//a`, true},
		{`(//a)[2]`, `(//a)[2]`, true},
		{`a.btn.btn-lg`, `a.btn.btn-lg`, false},
	}
	for _, tt := range tests {
		got, ok := asXPath(tt.selector)
		assert.Equal(t, tt.isXPath, ok, tt.selector)
		assert.Equal(t, tt.want, got, tt.selector)
	}
}

func TestResolveURL(t *testing.T) {
	got, err := resolveURL("https://qa.example.com/app/", "download")
	require.NoError(t, err)
	assert.Equal(t, "https://qa.example.com/app/download", got)

	got, err = resolveURL("https://qa.example.com/app/", "/download")
	require.NoError(t, err)
	assert.Equal(t, "https://qa.example.com/download", got)

	got, err = resolveURL("", "https://other.example.com")
	require.NoError(t, err)
	assert.Equal(t, "https://other.example.com", got)

	_, err = resolveURL("://bad", "x")
	assert.Error(t, err)
}

func TestStartSessionRequiresInitialize(t *testing.T) {
	m := NewSessionManager(Options{}, nil)
	_, err := m.Open("first")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not initialized")
	assert.Empty(t, m.ListSessions())
	assert.NoError(t, m.Close())
}

func TestNewDriverRejectsUnknownEngine(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Engine = "selenium"
	_, err := NewDriver(cfg, artifacts.Layout{Root: t.TempDir()}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported engine")
}
