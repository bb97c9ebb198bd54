package scenario

import (
	"context"
	"fmt"
	"strings"

	"github.com/entrhq/navhistory/pkg/history"
	"github.com/entrhq/navhistory/pkg/logging"
	"github.com/entrhq/navhistory/pkg/siteisolation"
	"github.com/entrhq/navhistory/pkg/tabsim"
)

var debugLog *logging.Logger

func init() {
	var err error
	debugLog, err = logging.NewLogger("scenario")
	if err != nil {
		debugLog.Warnf("Failed to initialize scenario logger: %v", err)
	}
}

// TabObserver builds a history observer for a tab. count reports the
// tab's current entry count.
type TabObserver func(tab string, count func() int) history.Observer

// Option configures a run.
type Option func(*runner)

// WithHistoryOptions passes options to every tab's controller.
func WithHistoryOptions(opts ...history.Option) Option {
	return func(r *runner) { r.historyOpts = append(r.historyOpts, opts...) }
}

// WithTabObserver attaches an observer to each tab as it is opened.
func WithTabObserver(f TabObserver) Option {
	return func(r *runner) { r.observers = append(r.observers, f) }
}

// WithSitePolicy tags commits with sites from p. It takes precedence over
// the scenario's isolated_patterns.
func WithSitePolicy(p history.SitePolicy) Option {
	return func(r *runner) { r.sites = p }
}

// StepResult is the outcome of one step.
type StepResult struct {
	Step     Step
	Details  history.LoadCommittedDetails
	Err      error
	Failures []string
}

// Passed reports whether the step met its expectation.
func (sr StepResult) Passed() bool { return len(sr.Failures) == 0 }

// Result is the outcome of a run.
type Result struct {
	Scenario *Scenario
	Steps    []StepResult
	Browser  *tabsim.Browser

	tabs  map[string]*tabsim.Tab
	order []string
}

// Passed reports whether every step met its expectation.
func (r *Result) Passed() bool {
	for _, s := range r.Steps {
		if !s.Passed() {
			return false
		}
	}
	return true
}

// Failures lists every unmet expectation, prefixed by its step.
func (r *Result) Failures() []string {
	var out []string
	for i, s := range r.Steps {
		for _, f := range s.Failures {
			out = append(out, fmt.Sprintf("step %d (%s): %s", i+1, s.Step.Describe(), f))
		}
	}
	return out
}

// Tab returns a tab opened during the run.
func (r *Result) Tab(id string) (*tabsim.Tab, bool) {
	t, ok := r.tabs[id]
	return t, ok
}

// TabIDs lists the tabs in the order they were opened.
func (r *Result) TabIDs() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

type savedSession struct {
	entries []history.RestoreEntry
	index   int
}

type runner struct {
	historyOpts []history.Option
	observers   []TabObserver
	sites       history.SitePolicy

	result *Result
	slots  map[string]savedSession
}

// Run replays s. Unmet expectations are reported in the result; the
// returned error is reserved for runs that could not start or were
// cancelled.
func Run(ctx context.Context, s *Scenario, opts ...Option) (*Result, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}

	r := &runner{slots: make(map[string]savedSession)}
	for _, opt := range opts {
		opt(r)
	}
	if r.sites == nil && len(s.IsolatedPatterns) > 0 {
		policy, err := siteisolation.New(false, s.IsolatedPatterns)
		if err != nil {
			return nil, err
		}
		r.sites = policy
	}

	var browserOpts []tabsim.BrowserOption
	if r.sites != nil {
		browserOpts = append(browserOpts, tabsim.WithSitePolicy(r.sites))
	}
	if s.MaxEntryCount > 0 {
		browserOpts = append(browserOpts, tabsim.WithHistoryOptions(history.WithMaxEntryCount(s.MaxEntryCount)))
	}
	browserOpts = append(browserOpts, tabsim.WithHistoryOptions(r.historyOpts...))

	r.result = &Result{
		Scenario: s,
		Browser:  tabsim.NewBrowser(s.Web, browserOpts...),
		tabs:     make(map[string]*tabsim.Tab),
	}
	r.openTab(DefaultTab, nil)

	debugLog.Infof("running scenario %q (%d steps)", s.Name, len(s.Steps))
	for i, st := range s.Steps {
		if err := ctx.Err(); err != nil {
			return r.result, fmt.Errorf("scenario %q stopped before step %d: %w", s.Name, i+1, err)
		}
		sr := r.step(st)
		if !sr.Passed() {
			debugLog.Warnf("step %d (%s) failed: %s", i+1, st.Describe(), strings.Join(sr.Failures, "; "))
		}
		r.result.Steps = append(r.result.Steps, sr)
	}
	return r.result, nil
}

// openTab opens id, as a popup of opener when opener is non-nil.
func (r *runner) openTab(id string, opener *tabsim.Tab) *tabsim.Tab {
	var tab *tabsim.Tab
	count := func() int { return tab.History.EntryCount() }
	var opts []history.Option
	for _, f := range r.observers {
		opts = append(opts, history.WithObserver(f(id, count)))
	}
	if opener != nil {
		tab = opener.OpenPopup(id, opts...)
	} else {
		tab = r.result.Browser.NewTab(id, opts...)
	}
	r.result.tabs[id] = tab
	r.result.order = append(r.result.order, id)
	return tab
}

func (r *runner) step(st Step) StepResult {
	sr := StepResult{Step: st}
	id := st.Tab
	if id == "" {
		id = DefaultTab
	}

	tab, ok := r.result.tabs[id]
	switch {
	case st.Action == ActionRestore && !ok:
		tab = r.openTab(id, nil)
	case !ok:
		sr.Err = fmt.Errorf("unknown tab %q", id)
		sr.Failures = append(sr.Failures, sr.Err.Error())
		return sr
	}

	sr.Details, sr.Err = r.do(tab, st)
	sr.Failures = check(tab, st.Expect, sr.Details, sr.Err)
	return sr
}

func (r *runner) do(tab *tabsim.Tab, st Step) (history.LoadCommittedDetails, error) {
	var none history.LoadCommittedDetails

	frame, err := tab.FrameAt(st.Frame...)
	if err != nil {
		return none, err
	}

	switch st.Action {
	case ActionNavigate:
		return tab.Navigate(st.URL)
	case ActionNavigateFrame:
		return tab.NavigateFrame(frame, st.URL)
	case ActionNavigateEmpty:
		return tab.NavigateEmptyURL(), nil
	case ActionClick:
		return tab.ClickLink(frame, st.URL), nil
	case ActionLocationReplace:
		return tab.LocationReplace(frame, st.URL), nil
	case ActionPushState:
		return tab.PushState(frame, st.URL), nil
	case ActionReplaceState:
		return tab.ReplaceState(frame, st.URL), nil
	case ActionFragment:
		return tab.FragmentNavigate(frame, st.URL), nil
	case ActionRecommit:
		return tab.RecommitCurrent(frame), nil
	case ActionReload:
		return tab.Reload()
	case ActionFail:
		p := history.LoadParams{URL: st.URL, Transition: history.TransitionTyped}
		if len(st.Frame) > 0 {
			p.FrameID = frame
		}
		return tab.FailLoad(p)
	case ActionLoadData:
		return tab.LoadDataWithBaseURL(st.URL, st.BaseURL, st.HistoryURL)
	case ActionCreateFrame:
		_, d, err := tab.CreateFrame(frame, st.Name, st.URL)
		return d, err
	case ActionRemoveFrame:
		return none, tab.RemoveFrame(frame)
	case ActionBack:
		return tab.GoBack()
	case ActionForward:
		return tab.GoForward()
	case ActionGo:
		return tab.GoToOffset(st.Offset)
	case ActionPopup:
		if _, exists := r.result.tabs[st.Name]; exists {
			return none, fmt.Errorf("tab %q is already open", st.Name)
		}
		r.openTab(st.Name, tab)
		return none, nil
	case ActionSave:
		entries, index, err := tab.History.Snapshot()
		if err != nil {
			return none, err
		}
		r.slots[st.Name] = savedSession{entries: entries, index: index}
		return none, nil
	case ActionRestore:
		saved, ok := r.slots[st.Name]
		if !ok {
			return none, fmt.Errorf("nothing saved as %q", st.Name)
		}
		return tab.Restore(saved.entries, saved.index)
	case ActionPrune:
		return history.LoadCommittedDetails{PrunedCount: tab.History.PruneAllButLastCommitted()}, nil
	case ActionRemoveEntry:
		return none, tab.History.RemoveEntryAt(st.Index)
	}
	return none, fmt.Errorf("unknown action %q", st.Action)
}

func check(tab *tabsim.Tab, exp *Expectation, d history.LoadCommittedDetails, err error) []string {
	var failures []string
	fail := func(format string, args ...interface{}) {
		failures = append(failures, fmt.Sprintf(format, args...))
	}

	if exp == nil {
		if err != nil {
			fail("unexpected error: %v", err)
		}
		return failures
	}

	switch {
	case exp.Error != "" && err == nil:
		fail("expected error containing %q", exp.Error)
	case exp.Error != "" && !strings.Contains(err.Error(), exp.Error):
		fail("expected error containing %q, got %v", exp.Error, err)
	case exp.Error == "" && err != nil:
		fail("unexpected error: %v", err)
	}

	if exp.Type != "" {
		want, _ := history.ParseNavigationType(exp.Type)
		if d.Type != want {
			fail("expected %s, got %s", want, d.Type)
		}
	}
	if exp.InPage != nil && d.IsInPage != *exp.InPage {
		fail("expected in_page=%t, got %t", *exp.InPage, d.IsInPage)
	}
	if exp.Replaced != nil && d.DidReplaceEntry != *exp.Replaced {
		fail("expected replaced=%t, got %t", *exp.Replaced, d.DidReplaceEntry)
	}
	if exp.Pruned != nil && d.PrunedCount != *exp.Pruned {
		fail("expected %d pruned, got %d", *exp.Pruned, d.PrunedCount)
	}

	h := tab.History
	if exp.EntryCount != nil && h.EntryCount() != *exp.EntryCount {
		fail("expected %d entries, got %d", *exp.EntryCount, h.EntryCount())
	}
	if exp.Index != nil && h.LastCommittedEntryIndex() != *exp.Index {
		fail("expected index %d, got %d", *exp.Index, h.LastCommittedEntryIndex())
	}
	if exp.CanGoBack != nil && h.CanGoBack() != *exp.CanGoBack {
		fail("expected can_go_back=%t", *exp.CanGoBack)
	}
	if exp.CanGoForward != nil && h.CanGoForward() != *exp.CanGoForward {
		fail("expected can_go_forward=%t", *exp.CanGoForward)
	}
	if exp.Pending != nil && (h.PendingEntry() != nil) != *exp.Pending {
		fail("expected pending=%t", *exp.Pending)
	}

	if exp.URL != "" || exp.FrameURLs != nil {
		cur := h.LastCommittedEntry()
		if cur == nil {
			fail("no committed entry")
			return failures
		}
		if exp.URL != "" && cur.URL() != exp.URL {
			fail("expected url %s, got %s", exp.URL, cur.URL())
		}
		if exp.FrameURLs != nil {
			got := cur.Tree().URLs()
			if strings.Join(got, " ") != strings.Join(exp.FrameURLs, " ") {
				fail("expected frame urls %v, got %v", exp.FrameURLs, got)
			}
		}
	}
	return failures
}
