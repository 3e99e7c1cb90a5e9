package browser

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/entrhq/qaharness/pkg/logging"
)

// SessionManager is the playwright Driver. It runs one playwright instance
// and one Chromium browser; every session gets its own browser context.
type SessionManager struct {
	mu          sync.RWMutex
	sessions    map[string]*Session
	playwright  *playwright.Playwright
	browser     playwright.Browser
	opts        Options
	log         *logging.Logger
	initialized bool
}

var _ Driver = (*SessionManager)(nil)

// NewSessionManager creates a new session manager.
func NewSessionManager(opts Options, logger *logging.Logger) *SessionManager {
	if logger == nil {
		logger = logging.Discard("browser")
	}
	return &SessionManager{
		sessions: make(map[string]*Session),
		opts:     opts.withDefaults(),
		log:      logger,
	}
}

// Initialize installs (when configured) and starts playwright, then
// launches Chromium. It must be called before opening sessions.
func (m *SessionManager) Initialize() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.initialized {
		return nil
	}

	runOpts := &playwright.RunOptions{
		Browsers: []string{"chromium"},
		Verbose:  false,
		Stdout:   io.Discard,
		Stderr:   io.Discard,
	}

	if m.opts.InstallBrowsers {
		m.log.Infof("installing playwright driver and chromium")
		if err := playwright.Install(runOpts); err != nil {
			return fmt.Errorf("failed to install playwright: %w", err)
		}
	}

	pw, err := playwright.Run(runOpts)
	if err != nil {
		return fmt.Errorf("failed to start playwright: %w", err)
	}

	browser, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(m.opts.Headless),
	})
	if err != nil {
		_ = pw.Stop()
		return fmt.Errorf("failed to launch browser: %w", err)
	}

	m.playwright = pw
	m.browser = browser
	m.initialized = true
	m.log.Infof("launched chromium %s (headless=%v)", browser.Version(), m.opts.Headless)
	return nil
}

// Open creates a new session with its own context and page.
func (m *SessionManager) Open(name string) (Tab, error) {
	session, err := m.StartSession(name)
	if err != nil {
		return nil, err
	}
	return session, nil
}

// StartSession creates a new browser session with the given name.
func (m *SessionManager) StartSession(name string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.sessions[name]; exists {
		return nil, fmt.Errorf("session %q already exists", name)
	}

	if len(m.sessions) >= m.opts.MaxSessions {
		return nil, fmt.Errorf("maximum number of sessions (%d) reached", m.opts.MaxSessions)
	}

	if !m.initialized {
		return nil, fmt.Errorf("session manager not initialized")
	}

	size := &playwright.Size{Width: m.opts.Viewport.Width, Height: m.opts.Viewport.Height}
	contextOpts := playwright.BrowserNewContextOptions{
		AcceptDownloads: playwright.Bool(true),
		Viewport:        size,
	}
	if m.opts.BaseURL != "" {
		contextOpts.BaseURL = playwright.String(m.opts.BaseURL)
	}
	if m.opts.VideoDir != "" {
		contextOpts.RecordVideo = &playwright.RecordVideo{Dir: m.opts.VideoDir, Size: size}
	}

	context, err := m.browser.NewContext(contextOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to create context: %w", err)
	}

	context.SetDefaultTimeout(milliseconds(m.opts.ActionTimeout))
	context.SetDefaultNavigationTimeout(milliseconds(m.opts.NavigationTimeout))

	page, err := context.NewPage()
	if err != nil {
		context.Close()
		return nil, fmt.Errorf("failed to create page: %w", err)
	}

	session := &Session{
		name:      name,
		Context:   context,
		Page:      page,
		CreatedAt: time.Now(),
		manager:   m,
		log:       m.log.With("session:" + name),
	}

	m.sessions[name] = session
	m.log.Debugf("opened session %q", name)
	return session, nil
}

// ListSessions returns information about all active sessions.
func (m *SessionManager) ListSessions() []SessionInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()

	infos := make([]SessionInfo, 0, len(m.sessions))
	for _, session := range m.sessions {
		infos = append(infos, SessionInfo{
			Name:       session.name,
			CurrentURL: session.Page.URL(),
			CreatedAt:  session.CreatedAt,
		})
	}

	return infos
}

// forget removes a closed session from the registry.
func (m *SessionManager) forget(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, name)
}

// Close closes all sessions, the browser and playwright.
func (m *SessionManager) Close() error {
	for _, info := range m.ListSessions() {
		m.log.Warnf("session %q still open at shutdown (%s, opened %s ago)",
			info.Name, info.CurrentURL, time.Since(info.CreatedAt).Round(time.Millisecond))
	}

	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, session := range m.sessions {
		sessions = append(sessions, session)
	}
	m.mu.Unlock()

	var errs []error
	for _, session := range sessions {
		if _, err := session.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.initialized {
		if err := m.browser.Close(); err != nil {
			errs = append(errs, err)
		}
		if err := m.playwright.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop playwright: %w", err))
		}
		m.initialized = false
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors during shutdown: %v", errs)
	}
	return nil
}

// SessionInfo contains metadata about a browser session.
type SessionInfo struct {
	Name       string
	CurrentURL string
	CreatedAt  time.Time
}
