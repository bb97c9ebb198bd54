package browser

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/entrhq/navhistory/pkg/history"
)

// Session is a Chromium page whose frame events feed a Recorder.
type Session struct {
	Name string

	Browser playwright.Browser
	Context playwright.BrowserContext
	Page    playwright.Page

	// Recorder holds the history recorded from the page's frames.
	Recorder *Recorder

	Headless   bool
	CreatedAt  time.Time
	LastUsedAt time.Time

	closeOnce sync.Once
	closeErr  error
}

// NavigateOptions configures a browser-initiated load.
type NavigateOptions struct {
	// WaitUntil is "load", "domcontentloaded" or "networkidle".
	WaitUntil string

	// Timeout overrides the session timeout when positive.
	Timeout time.Duration

	// Replace makes the load replace the current entry.
	Replace bool
}

func (s *Session) touch() {
	s.LastUsedAt = time.Now()
}

// attach subscribes the recorder to the page's frame events.
func (s *Session) attach() {
	rec := s.Recorder
	main := s.Page.MainFrame()
	rec.BindMainFrame(main)

	s.Page.OnFrameAttached(func(f playwright.Frame) {
		if err := rec.FrameAttached(f, f.ParentFrame(), f.Name()); err != nil {
			debugLog.Warnf("session %s: frame attach: %v", s.Name, err)
		}
	})
	s.Page.OnFrameNavigated(func(f playwright.Frame) {
		url := f.URL()
		if _, err := rec.FrameNavigated(f, url); err != nil {
			debugLog.Warnf("session %s: frame navigated to %s: %v", s.Name, url, err)
		}
	})
	s.Page.OnFrameDetached(func(f playwright.Frame) {
		rec.FrameDetached(f)
	})
}

// Navigate loads url in the page as a browser-initiated navigation.
// A failed load still commits an error page, which is recorded.
func (s *Session) Navigate(url string, opts NavigateOptions) error {
	s.touch()
	if err := s.Recorder.BeginLoad(url, opts.Replace); err != nil {
		return fmt.Errorf("navigate to %s: %w", url, err)
	}

	var gotoOpts playwright.PageGotoOptions
	if opts.WaitUntil != "" {
		waitUntil := playwright.WaitUntilState(opts.WaitUntil)
		gotoOpts.WaitUntil = &waitUntil
	}
	if opts.Timeout > 0 {
		gotoOpts.Timeout = playwright.Float(float64(opts.Timeout.Milliseconds()))
	}
	if _, err := s.Page.Goto(url, gotoOpts); err != nil {
		return fmt.Errorf("navigate to %s: %w", url, err)
	}
	return nil
}

// GoBack navigates one entry back.
func (s *Session) GoBack() error { return s.goToOffset(-1) }

// GoForward navigates one entry forward.
func (s *Session) GoForward() error { return s.goToOffset(1) }

func (s *Session) goToOffset(delta int) error {
	s.touch()
	if err := s.Recorder.BeginHistoryNavigation(delta); err != nil {
		return err
	}

	var err error
	if delta < 0 {
		_, err = s.Page.GoBack()
	} else {
		_, err = s.Page.GoForward()
	}
	if err != nil {
		return fmt.Errorf("history navigation by %d: %w", delta, err)
	}
	return nil
}

// Reload reloads the current entry.
func (s *Session) Reload() error {
	s.touch()
	if err := s.Recorder.BeginReload(); err != nil {
		return err
	}
	if _, err := s.Page.Reload(); err != nil {
		return fmt.Errorf("reload: %w", err)
	}
	return nil
}

// CurrentURL returns the URL of the last committed entry.
func (s *Session) CurrentURL() string { return s.Recorder.CurrentURL() }

// Snapshot captures the recorded history in restorable form.
func (s *Session) Snapshot() ([]history.RestoreEntry, int, error) {
	return s.Recorder.Snapshot()
}

// close releases the page, context and browser. Later calls return the
// first call's result.
func (s *Session) close() error {
	s.closeOnce.Do(func() {
		s.closeErr = errors.Join(s.Page.Close(), s.Context.Close(), s.Browser.Close())
	})
	return s.closeErr
}
