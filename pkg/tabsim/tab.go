// Package tabsim simulates the renderer side of a browser tab: it keeps a
// live frame tree, issues item and document sequence numbers, and delivers
// commit notifications to a history.Controller the way a real renderer
// would for links, history API calls, subframe loads and back/forward.
package tabsim

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/entrhq/navhistory/pkg/history"
	"github.com/entrhq/navhistory/pkg/livetree"
)

// AboutBlank is the URL of a frame's initial empty document.
const AboutBlank = "about:blank"

var ErrNoSuchFrame = errors.New("no frame at path")

// Browser owns the state shared by its tabs: the entry ID sequence and
// the item/document sequence counter.
type Browser struct {
	web         Web
	ids         *history.SequentialIDs
	seq         atomic.Int64
	sites       history.SitePolicy
	historyOpts []history.Option

	mu   sync.Mutex
	tabs map[string]*Tab
}

// BrowserOption configures a Browser.
type BrowserOption func(*Browser)

// WithSitePolicy tags fresh commits and restored entries with sites.
func WithSitePolicy(p history.SitePolicy) BrowserOption {
	return func(b *Browser) { b.sites = p }
}

// WithHistoryOptions passes options to every tab's controller.
func WithHistoryOptions(opts ...history.Option) BrowserOption {
	return func(b *Browser) { b.historyOpts = append(b.historyOpts, opts...) }
}

// NewBrowser creates a browser serving pages from web.
func NewBrowser(web Web, opts ...BrowserOption) *Browser {
	b := &Browser{
		web:  web,
		ids:  history.NewSequentialIDs(1),
		tabs: make(map[string]*Tab),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Browser) nextSeq() int64 {
	return b.seq.Add(1)
}

// ensureSeqAbove makes later sequence numbers larger than n.
func (b *Browser) ensureSeqAbove(n int64) {
	for {
		cur := b.seq.Load()
		if cur >= n || b.seq.CompareAndSwap(cur, n) {
			return
		}
	}
}

// NewTab opens a tab with an empty history. Opening a popup is the same
// operation: the new tab has no committed entry. opts apply to this tab's
// controller after the browser-wide options.
func (b *Browser) NewTab(id string, opts ...history.Option) *Tab {
	frames := livetree.New()
	all := []history.Option{history.WithIDGenerator(b.ids)}
	if b.sites != nil {
		all = append(all, history.WithSitePolicy(b.sites))
	}
	all = append(all, b.historyOpts...)
	all = append(all, opts...)

	t := &Tab{
		ID:      id,
		browser: b,
		Frames:  frames,
		History: history.NewController(frames, all...),
		docs:    make(map[history.FrameID]document),
	}
	frames.AddMainFrame()

	b.mu.Lock()
	b.tabs[id] = t
	b.mu.Unlock()
	return t
}

// Tab returns an open tab by ID.
func (b *Browser) Tab(id string) (*Tab, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	t, ok := b.tabs[id]
	return t, ok
}

// NewTab is a shortcut for a single tab in its own browser.
func NewTab(id string, web Web, opts ...BrowserOption) *Tab {
	return NewBrowser(web, opts...).NewTab(id)
}

type document struct {
	url string
	isn int64
	dsn int64
}

// Commit is one commit delivered to the controller and its outcome.
type Commit struct {
	Params  history.CommitParams
	Details history.LoadCommittedDetails
}

// Tab is one simulated browsing context. Not safe for concurrent use.
type Tab struct {
	ID      string
	Frames  *livetree.Tree
	History *history.Controller

	browser *Browser
	docs    map[history.FrameID]document
	commits []Commit
}

type commitOpts struct {
	replace    bool
	navEntryID int64
	transition history.Transition
	pageType   history.PageType
	initial    bool
}

// MainFrame returns the main frame's ID.
func (t *Tab) MainFrame() history.FrameID { return t.Frames.MainFrame() }

// URL returns the document URL currently shown in frame.
func (t *Tab) URL(frame history.FrameID) string { return t.docs[frame].url }

// Commits returns every commit delivered so far.
func (t *Tab) Commits() []Commit {
	out := make([]Commit, len(t.commits))
	copy(out, t.commits)
	return out
}

// LastCommit returns the most recent commit, if any.
func (t *Tab) LastCommit() (Commit, bool) {
	if len(t.commits) == 0 {
		return Commit{}, false
	}
	return t.commits[len(t.commits)-1], true
}

// FrameAt resolves child indices below the main frame: no indices is the
// main frame, (0) its first child, (0, 1) that child's second child.
func (t *Tab) FrameAt(path ...int) (history.FrameID, error) {
	cur := t.MainFrame()
	for depth, i := range path {
		children := t.Frames.Children(cur)
		if i < 0 || i >= len(children) {
			return 0, fmt.Errorf("index %d at depth %d: %w", i, depth, ErrNoSuchFrame)
		}
		cur = children[i]
	}
	return cur, nil
}

func (t *Tab) framePath(frame history.FrameID) []string {
	var path []string
	for {
		shape, ok := t.Frames.Frame(frame)
		if !ok || shape.IsMainFrame {
			return path
		}
		path = append([]string{shape.UniqueName}, path...)
		frame = shape.ParentID
	}
}

func (t *Tab) commit(frame history.FrameID, url string, isn, dsn int64, o commitOpts) history.LoadCommittedDetails {
	shape, _ := t.Frames.Frame(frame)
	p := history.CommitParams{
		FrameID:                frame,
		URL:                    url,
		Transition:             o.transition,
		ItemSequenceNumber:     isn,
		DocumentSequenceNumber: dsn,
		ReplaceCurrentEntry:    o.replace,
		PageType:               o.pageType,
		FrameHadRealLoad:       shape.CommittedRealLoad,
		InitialEmptyDocument:   o.initial,
		NavEntryID:             o.navEntryID,
	}
	if t.browser.sites != nil && history.IsValidURL(url) {
		p.SiteTag = t.browser.sites.SiteFor(url)
	}

	d := t.History.OnCommit(p)
	_ = t.Frames.MarkCommitted(frame, url, !o.initial)
	t.docs[frame] = document{url: url, isn: isn, dsn: dsn}
	t.commits = append(t.commits, Commit{Params: p, Details: d})
	return d
}

// dropChildren forgets every frame below frame.
func (t *Tab) dropChildren(frame history.FrameID) {
	for _, c := range t.Frames.Children(frame) {
		t.dropChildren(c)
		delete(t.docs, c)
	}
	_ = t.Frames.RemoveChildren(frame)
}

// loadDocument commits a new document in frame and lets the page create
// its subframes. historyEntry is non-zero while loading an entry from
// history, in which case each new subframe loads its stored item.
func (t *Tab) loadDocument(frame history.FrameID, url string, isn, dsn int64, o commitOpts, historyEntry int64) history.LoadCommittedDetails {
	t.dropChildren(frame)
	d := t.commit(frame, url, isn, dsn, o)
	if o.pageType == history.PageTypeError {
		return d
	}
	for _, spec := range t.browser.web.Lookup(url).Frames {
		child, err := t.Frames.AddChild(frame, spec.Name)
		if err != nil {
			continue
		}
		t.loadChild(child, spec, historyEntry)
	}
	return d
}

func (t *Tab) loadChild(child history.FrameID, spec FrameSpec, historyEntry int64) {
	auto := commitOpts{transition: history.TransitionAutoSubframe}
	if historyEntry != 0 {
		fne, matched, err := t.History.ResolveFrameEntry(historyEntry, child, spec.Src)
		if err == nil {
			auto.navEntryID = historyEntry
			switch {
			case matched && fne.ItemSequenceNumber != 0:
				auto.initial = !fne.CommittedRealLoad
				t.loadDocument(child, fne.URL, fne.ItemSequenceNumber, fne.DocumentSequenceNumber, auto, historyEntry)
				return
			case fne.URL != "":
				t.loadDocument(child, fne.URL, t.browser.nextSeq(), t.browser.nextSeq(), auto, historyEntry)
				return
			}
		}
	}
	if spec.Src == "" {
		auto.initial = true
		t.commit(child, AboutBlank, t.browser.nextSeq(), t.browser.nextSeq(), auto)
		return
	}
	t.loadDocument(child, spec.Src, t.browser.nextSeq(), t.browser.nextSeq(), auto, 0)
}

// Load performs a browser-initiated navigation through LoadWithParams.
func (t *Tab) Load(params history.LoadParams) (history.LoadCommittedDetails, error) {
	return t.load(params, history.PageTypeNormal)
}

// FailLoad performs a browser-initiated navigation that commits an error page.
func (t *Tab) FailLoad(params history.LoadParams) (history.LoadCommittedDetails, error) {
	return t.load(params, history.PageTypeError)
}

func (t *Tab) load(params history.LoadParams, pageType history.PageType) (history.LoadCommittedDetails, error) {
	entry, err := t.History.LoadWithParams(params)
	if err != nil {
		return history.LoadCommittedDetails{}, err
	}
	frame := params.FrameID
	if frame == 0 {
		frame = t.MainFrame()
	}
	o := commitOpts{
		navEntryID: entry.UniqueID(),
		transition: params.Transition,
		replace:    t.History.PendingReplacesCurrent(),
		pageType:   pageType,
	}
	return t.loadDocument(frame, params.URL, t.browser.nextSeq(), t.browser.nextSeq(), o, 0), nil
}

// Navigate types url into the address bar.
func (t *Tab) Navigate(url string) (history.LoadCommittedDetails, error) {
	return t.Load(history.LoadParams{URL: url, Transition: history.TransitionTyped | history.TransitionFromAddressBar})
}

// NavigateFrame loads url into frame from the browser side, the way a
// "open frame in place" command does.
func (t *Tab) NavigateFrame(frame history.FrameID, url string) (history.LoadCommittedDetails, error) {
	return t.Load(history.LoadParams{URL: url, FrameID: frame, Transition: history.TransitionManualSubframe})
}

// NavigateEmptyURL commits a main frame document without a URL, as a
// renderer does for an address it cannot parse.
func (t *Tab) NavigateEmptyURL() history.LoadCommittedDetails {
	o := commitOpts{transition: history.TransitionLink}
	return t.loadDocument(t.MainFrame(), "", t.browser.nextSeq(), t.browser.nextSeq(), o, 0)
}

// OpenPopup opens a new tab from this one. The popup shares the browser's
// ID sequence and starts without any committed entry.
func (t *Tab) OpenPopup(id string, opts ...history.Option) *Tab {
	return t.browser.NewTab(id, opts...)
}

// LoadDataWithBaseURL loads inline content that reports historyURL as its
// address and resolves relative URLs against baseURL.
func (t *Tab) LoadDataWithBaseURL(dataURL, baseURL, historyURL string) (history.LoadCommittedDetails, error) {
	return t.Load(history.LoadParams{
		URL:               dataURL,
		Transition:        history.TransitionTyped,
		BaseURLForData:    baseURL,
		HistoryURLForData: historyURL,
	})
}

// ClickLink navigates frame to a new document from the page itself.
func (t *Tab) ClickLink(frame history.FrameID, url string) history.LoadCommittedDetails {
	tr := history.TransitionLink
	if frame != t.MainFrame() {
		tr = history.TransitionManualSubframe
	}
	return t.loadDocument(frame, url, t.browser.nextSeq(), t.browser.nextSeq(), commitOpts{transition: tr}, 0)
}

// LocationReplace is location.replace(url) in frame.
func (t *Tab) LocationReplace(frame history.FrameID, url string) history.LoadCommittedDetails {
	o := commitOpts{replace: true, transition: history.TransitionClientRedirect}
	return t.loadDocument(frame, url, t.browser.nextSeq(), t.browser.nextSeq(), o, 0)
}

// PushState is history.pushState with url in frame.
func (t *Tab) PushState(frame history.FrameID, url string) history.LoadCommittedDetails {
	return t.commit(frame, url, t.browser.nextSeq(), t.docs[frame].dsn, commitOpts{transition: history.TransitionLink})
}

// ReplaceState is history.replaceState with url in frame.
func (t *Tab) ReplaceState(frame history.FrameID, url string) history.LoadCommittedDetails {
	o := commitOpts{replace: true, transition: history.TransitionLink}
	return t.commit(frame, url, t.browser.nextSeq(), t.docs[frame].dsn, o)
}

// FragmentNavigate scrolls frame to a fragment of its current document.
func (t *Tab) FragmentNavigate(frame history.FrameID, fragment string) history.LoadCommittedDetails {
	return t.PushState(frame, WithFragment(t.docs[frame].url, fragment))
}

// RecommitCurrent has frame commit its current item again.
func (t *Tab) RecommitCurrent(frame history.FrameID) history.LoadCommittedDetails {
	doc := t.docs[frame]
	return t.commit(frame, doc.url, doc.isn, doc.dsn, commitOpts{transition: history.TransitionLink})
}

// Reload reloads the main frame, restoring its subframes from history.
func (t *Tab) Reload() (history.LoadCommittedDetails, error) {
	if err := t.History.Reload(); err != nil {
		return history.LoadCommittedDetails{}, err
	}
	cur := t.History.PendingEntry()
	main := t.MainFrame()
	doc := t.docs[main]
	o := commitOpts{navEntryID: cur.UniqueID(), transition: history.TransitionReload}
	return t.loadDocument(main, doc.url, doc.isn, t.browser.nextSeq(), o, cur.UniqueID()), nil
}

// CreateFrame inserts a subframe into parent. Without src the frame
// commits its initial empty document; with src it loads src directly.
func (t *Tab) CreateFrame(parent history.FrameID, name, src string) (history.FrameID, history.LoadCommittedDetails, error) {
	child, err := t.Frames.AddChild(parent, name)
	if err != nil {
		return 0, history.LoadCommittedDetails{}, err
	}
	before := len(t.commits)
	t.loadChild(child, FrameSpec{Name: name, Src: src}, 0)
	if len(t.commits) == before {
		return child, history.LoadCommittedDetails{}, nil
	}
	// The frame's own commit comes first; nested frames follow it.
	return child, t.commits[before].Details, nil
}

// RemoveFrame detaches a subframe.
func (t *Tab) RemoveFrame(frame history.FrameID) error {
	t.dropChildren(frame)
	if err := t.Frames.Remove(frame); err != nil {
		return err
	}
	delete(t.docs, frame)
	return nil
}

// GoBack is the back button.
func (t *Tab) GoBack() (history.LoadCommittedDetails, error) { return t.GoToOffset(-1) }

// GoForward is the forward button.
func (t *Tab) GoForward() (history.LoadCommittedDetails, error) { return t.GoToOffset(1) }

// GoToOffset navigates delta entries through history.
func (t *Tab) GoToOffset(delta int) (history.LoadCommittedDetails, error) {
	if err := t.History.GoToOffset(delta); err != nil {
		return history.LoadCommittedDetails{}, err
	}
	return t.loadPendingHistory(history.TransitionForwardBack), nil
}

// Restore replaces an empty tab's history with persisted entries and
// loads the current one.
func (t *Tab) Restore(entries []history.RestoreEntry, startIndex int) (history.LoadCommittedDetails, error) {
	if err := t.History.Restore(entries, startIndex); err != nil {
		return history.LoadCommittedDetails{}, err
	}
	var highest int64
	for _, e := range t.History.Entries() {
		tree := e.Tree()
		tree.Walk(func(n history.NodeIndex, _ int) bool {
			if fne := tree.Entry(n); fne != nil {
				if fne.ItemSequenceNumber > highest {
					highest = fne.ItemSequenceNumber
				}
				if fne.DocumentSequenceNumber > highest {
					highest = fne.DocumentSequenceNumber
				}
			}
			return true
		})
	}
	t.browser.ensureSeqAbove(highest)

	if err := t.History.LoadIfNecessary(); err != nil {
		return history.LoadCommittedDetails{}, err
	}
	return t.loadPendingHistory(history.TransitionRestore), nil
}

// loadPendingHistory commits the pending history entry in whichever
// frames differ from it.
func (t *Tab) loadPendingHistory(tr history.Transition) history.LoadCommittedDetails {
	target := t.History.PendingEntry()
	if target == nil {
		return history.LoadCommittedDetails{}
	}
	id := target.UniqueID()
	main := t.MainFrame()
	root := target.RootFrameEntry()
	if root == nil {
		t.History.DiscardPendingEntry()
		return history.LoadCommittedDetails{}
	}

	o := commitOpts{navEntryID: id, transition: tr}
	cur := t.docs[main]
	switch {
	case cur.isn == root.ItemSequenceNumber && cur.dsn == root.DocumentSequenceNumber:
		if d, changed := t.syncSubframes(main, target, id); changed {
			return d
		}
		// No live frame differs: load the whole document from history.
		return t.loadDocument(main, root.URL, root.ItemSequenceNumber, root.DocumentSequenceNumber, o, id)
	case cur.dsn == root.DocumentSequenceNumber:
		d := t.commit(main, root.URL, root.ItemSequenceNumber, root.DocumentSequenceNumber, o)
		t.syncSubframes(main, target, id)
		return d
	default:
		return t.loadDocument(main, root.URL, root.ItemSequenceNumber, root.DocumentSequenceNumber, o, id)
	}
}

// syncSubframes navigates each live subframe below parent whose document
// differs from target. Returns the last commit and whether any happened.
func (t *Tab) syncSubframes(parent history.FrameID, target *history.NavigationEntry, id int64) (history.LoadCommittedDetails, bool) {
	var last history.LoadCommittedDetails
	changed := false
	for _, c := range t.Frames.Children(parent) {
		stored := target.FrameEntry(t.framePath(c)...)
		if stored == nil {
			continue
		}
		doc := t.docs[c]
		o := commitOpts{navEntryID: id, transition: history.TransitionAutoSubframe}
		switch {
		case doc.isn == stored.ItemSequenceNumber && doc.dsn == stored.DocumentSequenceNumber:
			if d, ok := t.syncSubframes(c, target, id); ok {
				last, changed = d, true
			}
		case doc.dsn == stored.DocumentSequenceNumber:
			last = t.commit(c, stored.URL, stored.ItemSequenceNumber, stored.DocumentSequenceNumber, o)
			changed = true
		default:
			last = t.loadDocument(c, stored.URL, stored.ItemSequenceNumber, stored.DocumentSequenceNumber, o, id)
			changed = true
		}
	}
	return last, changed
}
