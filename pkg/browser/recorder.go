package browser

import (
	"fmt"
	"strings"
	"sync"

	"github.com/entrhq/navhistory/pkg/history"
	"github.com/entrhq/navhistory/pkg/livetree"
	"github.com/entrhq/navhistory/pkg/logging"
)

var debugLog *logging.Logger

func init() {
	var err error
	debugLog, err = logging.NewLogger("browser")
	if err != nil {
		debugLog.Warnf("Failed to initialize browser logger: %v", err)
	}
}

const (
	// errorPagePrefix is the scheme Chromium commits for network error pages.
	errorPagePrefix = "chrome-error://"

	blankURL = "about:blank"
)

// FrameKey identifies a live frame in the driving browser. Any comparable
// value works; sessions use playwright.Frame values.
type FrameKey interface{}

type document struct {
	url string
	isn int64
	dsn int64
}

// Recorder turns frame lifecycle events of a real browser into commits on
// a history controller. Browsers do not report item and document sequence
// numbers, so the recorder issues them: a URL differing from the current
// one only in its fragment stays in the same document, the same URL again
// is a reload of the same item, and anything else is a new document.
//
// Recorder is safe for concurrent use; event callbacks may arrive on any
// goroutine.
type Recorder struct {
	mu      sync.Mutex
	frames  *livetree.Tree
	history *history.Controller
	sites   history.SitePolicy

	keys map[FrameKey]history.FrameID
	docs map[history.FrameID]document
	seq  int64

	// loadEntry is the pending browser-initiated load, consumed by the
	// next main-frame commit.
	loadEntry int64
	loadURL   string
	// historyEntry is the entry being loaded from history. Frames
	// committing while it is set load its stored items.
	historyEntry int64

	commits int
}

// Option configures a Recorder.
type Option func(*recorderOptions)

type recorderOptions struct {
	historyOpts []history.Option
	sites       history.SitePolicy
}

// WithHistoryOptions passes options to the recorder's controller.
func WithHistoryOptions(opts ...history.Option) Option {
	return func(o *recorderOptions) { o.historyOpts = append(o.historyOpts, opts...) }
}

// WithSitePolicy tags commits with sites.
func WithSitePolicy(p history.SitePolicy) Option {
	return func(o *recorderOptions) { o.sites = p }
}

// NewRecorder creates a recorder with an empty history.
func NewRecorder(opts ...Option) *Recorder {
	var o recorderOptions
	for _, opt := range opts {
		opt(&o)
	}
	hopts := o.historyOpts
	if o.sites != nil {
		hopts = append([]history.Option{history.WithSitePolicy(o.sites)}, hopts...)
	}

	frames := livetree.New()
	frames.AddMainFrame()
	return &Recorder{
		frames:  frames,
		history: history.NewController(frames, hopts...),
		sites:   o.sites,
		keys:    make(map[FrameKey]history.FrameID),
		docs:    make(map[history.FrameID]document),
	}
}

// History returns the recorded history without locking. Use it only
// once events stop arriving or from an observer, which runs inside a
// commit; use Inspect otherwise.
func (r *Recorder) History() *history.Controller { return r.history }

// Inspect calls fn with the history while no event can modify it.
func (r *Recorder) Inspect(fn func(h *history.Controller) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return fn(r.history)
}

// EntryCount returns the number of recorded entries.
func (r *Recorder) EntryCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.history.EntryCount()
}

// CurrentURL returns the URL of the last committed entry.
func (r *Recorder) CurrentURL() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e := r.history.LastCommittedEntry(); e != nil {
		return e.URL()
	}
	return blankURL
}

// Snapshot captures the recorded history in restorable form.
func (r *Recorder) Snapshot() ([]history.RestoreEntry, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.history.Snapshot()
}

// Frames returns the live frame tree.
func (r *Recorder) Frames() *livetree.Tree { return r.frames }

// Commits returns how many commits the recorder delivered.
func (r *Recorder) Commits() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.commits
}

// BindMainFrame associates key with the main frame.
func (r *Recorder) BindMainFrame(key FrameKey) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.keys[key] = r.frames.MainFrame()
}

// BeginLoad records a browser-initiated load of url in the main frame.
func (r *Recorder) BeginLoad(url string, replace bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, err := r.history.LoadWithParams(history.LoadParams{
		URL:                 url,
		Transition:          history.TransitionTyped | history.TransitionFromAddressBar,
		ReplaceCurrentEntry: replace,
	})
	if err != nil {
		return err
	}
	r.loadEntry = entry.UniqueID()
	r.loadURL = url
	r.historyEntry = 0
	return nil
}

// BeginHistoryNavigation records a back/forward navigation by delta.
func (r *Recorder) BeginHistoryNavigation(delta int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.history.GoToOffset(delta); err != nil {
		return err
	}
	r.startHistoryLoad()
	return nil
}

// BeginReload records a reload of the current entry.
func (r *Recorder) BeginReload() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.history.Reload(); err != nil {
		return err
	}
	r.startHistoryLoad()
	return nil
}

func (r *Recorder) startHistoryLoad() {
	r.loadEntry = 0
	r.loadURL = ""
	if p := r.history.PendingEntry(); p != nil {
		r.historyEntry = p.UniqueID()
	}
}

// FrameAttached adds a subframe below parent.
func (r *Recorder) FrameAttached(key, parent FrameKey, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.keys[key]; ok {
		return nil
	}
	parentID, ok := r.keys[parent]
	if !ok {
		return fmt.Errorf("parent of frame %q: %w", name, history.ErrUnknownFrame)
	}
	id, err := r.frames.AddChild(parentID, name)
	if err != nil {
		return err
	}
	r.keys[key] = id
	return nil
}

// FrameDetached removes a frame and everything below it. Unknown frames
// are ignored: their parent's new document already dropped them.
func (r *Recorder) FrameDetached(key FrameKey) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id, ok := r.keys[key]
	if !ok || id == r.frames.MainFrame() {
		return
	}
	r.forgetBelow(id)
	_ = r.frames.Remove(id)
	r.forget(id)
}

// FrameNavigated delivers the commit of url in frame key. The page's own
// initial about:blank document is not a navigation and is ignored.
func (r *Recorder) FrameNavigated(key FrameKey, url string) (history.LoadCommittedDetails, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id, ok := r.keys[key]
	if !ok {
		return history.LoadCommittedDetails{}, fmt.Errorf("navigated frame: %w", history.ErrUnknownFrame)
	}
	main := id == r.frames.MainFrame()
	if main && url == blankURL && r.history.EntryCount() == 0 {
		return history.LoadCommittedDetails{
			Type:               history.NavigationTypeNavIgnore,
			IsMainFrame:        true,
			PreviousEntryIndex: -1,
			EntryIndex:         -1,
		}, nil
	}
	shape, _ := r.frames.Frame(id)
	prev, hadDoc := r.docs[id]

	p := history.CommitParams{
		FrameID:          id,
		URL:              url,
		Transition:       history.TransitionLink,
		FrameHadRealLoad: shape.CommittedRealLoad,
	}
	if !main {
		p.Transition = history.TransitionAutoSubframe
	}

	if strings.HasPrefix(url, errorPagePrefix) {
		p.PageType = history.PageTypeError
		if main && r.loadURL != "" {
			p.URL = r.loadURL
		}
	}

	stored := r.storedItem(id, p.URL, hadDoc)
	switch {
	case stored != nil:
		p.ItemSequenceNumber = stored.ItemSequenceNumber
		p.DocumentSequenceNumber = stored.DocumentSequenceNumber
		if main && prev.isn == stored.ItemSequenceNumber && prev.dsn == stored.DocumentSequenceNumber {
			// Reloading the current item builds a new document.
			p.DocumentSequenceNumber = r.next()
		}
		p.NavEntryID = r.historyEntry
		p.Transition = history.TransitionForwardBack
	case main && r.loadEntry != 0:
		p.ItemSequenceNumber, p.DocumentSequenceNumber = r.next(), r.next()
		p.NavEntryID = r.loadEntry
		p.Transition = history.TransitionTyped | history.TransitionFromAddressBar
		p.ReplaceCurrentEntry = r.history.PendingReplacesCurrent()
	case hadDoc && sameDocument(prev.url, p.URL):
		p.ItemSequenceNumber, p.DocumentSequenceNumber = r.next(), prev.dsn
	case hadDoc && prev.url == p.URL && p.PageType == history.PageTypeNormal:
		p.ItemSequenceNumber, p.DocumentSequenceNumber = prev.isn, r.next()
		p.Transition = history.TransitionReload
	default:
		p.ItemSequenceNumber, p.DocumentSequenceNumber = r.next(), r.next()
	}
	if !main && !hadDoc && url == blankURL {
		p.InitialEmptyDocument = true
	}
	if r.sites != nil && history.IsValidURL(p.URL) {
		p.SiteTag = r.sites.SiteFor(p.URL)
	}

	if stored == nil && hadDoc {
		// A frame left the history item: the history load is over.
		r.historyEntry = 0
	}
	if main {
		r.loadEntry = 0
		r.loadURL = ""
	}
	if p.DocumentSequenceNumber != prev.dsn {
		// A new document has none of the old document's frames.
		r.forgetBelow(id)
		_ = r.frames.RemoveChildren(id)
	}

	d := r.history.OnCommit(p)
	_ = r.frames.MarkCommitted(id, p.URL, !p.InitialEmptyDocument)
	r.docs[id] = document{url: p.URL, isn: p.ItemSequenceNumber, dsn: p.DocumentSequenceNumber}
	r.commits++
	debugLog.Debugf("frame %d committed %s: %s", id, p.URL, d.Type)
	return d, nil
}

// storedItem returns the item frame id should load while a history
// navigation is in progress, if url is what it stores. Frames created by
// the history load are matched through ResolveFrameEntry, which falls back
// for frames the entry never stored.
func (r *Recorder) storedItem(id history.FrameID, url string, existing bool) *history.FrameNavigationEntry {
	if r.historyEntry == 0 {
		return nil
	}
	var fne *history.FrameNavigationEntry
	if existing {
		entry := r.history.EntryWithUniqueID(r.historyEntry)
		if entry == nil {
			return nil
		}
		fne = entry.FrameEntry(r.framePath(id)...)
	} else {
		var matched bool
		var err error
		fne, matched, err = r.history.ResolveFrameEntry(r.historyEntry, id, url)
		if err != nil || !matched {
			return nil
		}
	}
	if fne == nil || fne.URL != url || fne.ItemSequenceNumber == 0 {
		return nil
	}
	return fne
}

func (r *Recorder) framePath(id history.FrameID) []string {
	var path []string
	for {
		shape, ok := r.frames.Frame(id)
		if !ok || shape.IsMainFrame {
			return path
		}
		path = append([]string{shape.UniqueName}, path...)
		id = shape.ParentID
	}
}

func (r *Recorder) next() int64 {
	r.seq++
	return r.seq
}

func (r *Recorder) forgetBelow(id history.FrameID) {
	for _, c := range r.frames.Children(id) {
		r.forgetBelow(c)
		r.forget(c)
	}
}

func (r *Recorder) forget(id history.FrameID) {
	delete(r.docs, id)
	for k, v := range r.keys {
		if v == id {
			delete(r.keys, k)
		}
	}
}

// sameDocument reports whether next only changes prev's fragment.
func sameDocument(prev, next string) bool {
	if prev == next {
		return false
	}
	p, _, _ := strings.Cut(prev, "#")
	n, _, _ := strings.Cut(next, "#")
	return p == n
}
