package browser

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"
)

const (
	defaultSessionLimit   = 5
	defaultTimeout        = 30 * time.Second
	defaultViewportWidth  = 1280
	defaultViewportHeight = 720
)

// SessionOptions configures a recording session.
type SessionOptions struct {
	Headless bool

	// Viewport defaults to 1280x720.
	Viewport *Viewport

	// Timeout bounds every page operation. Zero means 30s.
	Timeout time.Duration

	// Recorder configures the session's history recorder.
	Recorder []Option
}

// Viewport is the page size in CSS pixels.
type Viewport struct {
	Width  int
	Height int
}

// SessionInfo summarizes a session for listings.
type SessionInfo struct {
	Name       string
	CurrentURL string
	EntryCount int
	Commits    int
	Headless   bool
	CreatedAt  time.Time
	LastUsedAt time.Time
}

// Manager runs the Playwright driver and the sessions opened through it.
type Manager struct {
	mu       sync.Mutex
	pw       *playwright.Playwright
	sessions map[string]*Session
	limit    int
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithSessionLimit caps the number of open sessions.
func WithSessionLimit(n int) ManagerOption {
	return func(m *Manager) {
		if n > 0 {
			m.limit = n
		}
	}
}

// NewManager creates a manager. Call Start before opening sessions.
func NewManager(opts ...ManagerOption) *Manager {
	m := &Manager{
		sessions: make(map[string]*Session),
		limit:    defaultSessionLimit,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start installs Chromium when missing and launches the driver. It is a
// no-op on a started manager.
func (m *Manager) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pw != nil {
		return nil
	}

	// The driver's own output would interleave with ours.
	runOpts := &playwright.RunOptions{
		Browsers: []string{"chromium"},
		Stdout:   io.Discard,
		Stderr:   io.Discard,
	}
	if err := playwright.Install(runOpts); err != nil {
		return fmt.Errorf("failed to install playwright: %w", err)
	}
	pw, err := playwright.Run(runOpts)
	if err != nil {
		return fmt.Errorf("failed to start playwright: %w", err)
	}
	m.pw = pw
	debugLog.Infof("playwright driver started")
	return nil
}

// Open launches Chromium for a new session and starts recording its page.
func (m *Manager) Open(name string, opts SessionOptions) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch {
	case m.pw == nil:
		return nil, errors.New("browser manager not started")
	case m.sessions[name] != nil:
		return nil, fmt.Errorf("session %q already exists", name)
	case len(m.sessions) >= m.limit:
		return nil, fmt.Errorf("session limit (%d) reached", m.limit)
	}

	s, err := m.launch(name, opts)
	if err != nil {
		return nil, err
	}
	s.attach()
	m.sessions[name] = s
	debugLog.Infof("opened session %s (headless=%t)", name, opts.Headless)
	return s, nil
}

// launch creates the browser, context and page of a session, releasing
// whatever was created when a later step fails.
func (m *Manager) launch(name string, opts SessionOptions) (*Session, error) {
	vp := opts.Viewport
	if vp == nil {
		vp = &Viewport{Width: defaultViewportWidth, Height: defaultViewportHeight}
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	b, err := m.pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(opts.Headless),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to launch chromium: %w", err)
	}
	bctx, err := b.NewContext(playwright.BrowserNewContextOptions{
		Viewport: &playwright.Size{Width: vp.Width, Height: vp.Height},
	})
	if err != nil {
		_ = b.Close()
		return nil, fmt.Errorf("failed to create browser context: %w", err)
	}
	page, err := bctx.NewPage()
	if err != nil {
		_ = bctx.Close()
		_ = b.Close()
		return nil, fmt.Errorf("failed to open page: %w", err)
	}
	page.SetDefaultTimeout(float64(timeout.Milliseconds()))

	now := time.Now()
	return &Session{
		Name:       name,
		Browser:    b,
		Context:    bctx,
		Page:       page,
		Recorder:   NewRecorder(opts.Recorder...),
		Headless:   opts.Headless,
		CreatedAt:  now,
		LastUsedAt: now,
	}, nil
}

// Close shuts a session's browser down and returns its recorder, whose
// history stays readable.
func (m *Manager) Close(name string) (*Recorder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[name]
	if !ok {
		return nil, fmt.Errorf("session %q not found", name)
	}
	delete(m.sessions, name)
	return s.Recorder, s.close()
}

// Session returns an open session.
func (m *Manager) Session(name string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[name]
	return s, ok
}

// Sessions summarizes the open sessions, ordered by name.
func (m *Manager) Sessions() []SessionInfo {
	m.mu.Lock()
	defer m.mu.Unlock()

	infos := make([]SessionInfo, 0, len(m.sessions))
	for _, s := range m.sessions {
		infos = append(infos, SessionInfo{
			Name:       s.Name,
			CurrentURL: s.CurrentURL(),
			EntryCount: s.Recorder.EntryCount(),
			Commits:    s.Recorder.Commits(),
			Headless:   s.Headless,
			CreatedAt:  s.CreatedAt,
			LastUsedAt: s.LastUsedAt,
		})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos
}

// Stop closes every session and stops the driver.
func (m *Manager) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var errs []error
	for name, s := range m.sessions {
		if err := s.close(); err != nil {
			errs = append(errs, fmt.Errorf("session %s: %w", name, err))
		}
		delete(m.sessions, name)
	}
	if m.pw != nil {
		if err := m.pw.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop playwright: %w", err))
		}
		m.pw = nil
	}
	return errors.Join(errs...)
}
