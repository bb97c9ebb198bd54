package history

import (
	"fmt"
	"time"

	"github.com/entrhq/navhistory/pkg/logging"
)

// DefaultMaxEntryCount is the capacity used when none is configured.
const DefaultMaxEntryCount = 50

// maxFrameDepth bounds parent walks through the frame shape provider.
const maxFrameDepth = 256

var debugLog *logging.Logger

func init() {
	var err error
	debugLog, err = logging.NewLogger("history")
	if err != nil {
		debugLog.Warnf("Failed to initialize history logger: %v", err)
	}
}

// Logger is the logging surface the controller writes to. *logging.Logger
// satisfies it.
type Logger interface {
	Debugf(format string, v ...interface{})
	Infof(format string, v ...interface{})
	Warnf(format string, v ...interface{})
}

// Option configures a Controller.
type Option func(*Controller)

// WithMaxEntryCount sets the list capacity. Values below 1 are ignored.
func WithMaxEntryCount(n int) Option {
	return func(c *Controller) {
		if n > 0 {
			c.maxEntries = n
		}
	}
}

// WithIDGenerator shares or fixes the entry ID sequence.
func WithIDGenerator(ids IDGenerator) Option {
	return func(c *Controller) {
		if ids != nil {
			c.ids = ids
		}
	}
}

// WithSitePolicy sets the collaborator that tags restored frame entries.
func WithSitePolicy(p SitePolicy) Option {
	return func(c *Controller) {
		c.sites = p
	}
}

// WithObserver registers an observer. May be given several times.
func WithObserver(o Observer) Option {
	return func(c *Controller) {
		if o != nil {
			c.observers = append(c.observers, o)
		}
	}
}

// WithLogger replaces the package's component logger.
func WithLogger(l Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.log = l
		}
	}
}

// Controller owns one tab's history: the ordered entries, the index of the
// last committed entry, and at most one pending entry.
//
// A Controller is driven from a single sequence. It performs no locking;
// callers that deliver commits from several goroutines must serialize them.
type Controller struct {
	provider   FrameShapeProvider
	ids        IDGenerator
	sites      SitePolicy
	observers  []Observer
	log        Logger
	maxEntries int

	entries       []*NavigationEntry
	lastCommitted int

	// pending is either a fresh entry (pendingIndex < 0) or the listed
	// entry at pendingIndex being navigated to.
	pending        *NavigationEntry
	pendingIndex   int
	pendingFrame   FrameID
	pendingReplace bool
}

// NewController creates an empty history reading frame shapes from provider.
func NewController(provider FrameShapeProvider, opts ...Option) *Controller {
	c := &Controller{
		provider:      provider,
		ids:           NewSequentialIDs(1),
		log:           debugLog,
		maxEntries:    DefaultMaxEntryCount,
		lastCommitted: -1,
		pendingIndex:  -1,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// MaxEntryCount returns the list capacity.
func (c *Controller) MaxEntryCount() int { return c.maxEntries }

// EntryCount returns the number of committed entries.
func (c *Controller) EntryCount() int { return len(c.entries) }

// EntryAt returns the entry at index, or nil when out of range.
func (c *Controller) EntryAt(index int) *NavigationEntry {
	if index < 0 || index >= len(c.entries) {
		return nil
	}
	return c.entries[index]
}

// Entries returns a copy of the entry list.
func (c *Controller) Entries() []*NavigationEntry {
	out := make([]*NavigationEntry, len(c.entries))
	copy(out, c.entries)
	return out
}

// LastCommittedEntry returns the current entry, or nil before the first commit.
func (c *Controller) LastCommittedEntry() *NavigationEntry {
	return c.EntryAt(c.lastCommitted)
}

// LastCommittedEntryIndex returns the current index, or -1.
func (c *Controller) LastCommittedEntryIndex() int { return c.lastCommitted }

// PendingEntry returns the entry being navigated to, or nil.
func (c *Controller) PendingEntry() *NavigationEntry { return c.pending }

// PendingEntryIndex returns the list index of a pending history
// navigation, or -1 for a new load or no pending entry.
func (c *Controller) PendingEntryIndex() int {
	if c.pending == nil {
		return -1
	}
	return c.pendingIndex
}

// PendingReplacesCurrent reports whether the pending load asked to
// replace the current entry.
func (c *Controller) PendingReplacesCurrent() bool {
	return c.pending != nil && c.pendingReplace
}

// PendingFrameID returns the frame targeted by the pending entry, zero
// for the main frame.
func (c *Controller) PendingFrameID() FrameID { return c.pendingFrame }

// EntryWithUniqueID finds a listed or pending entry by ID.
func (c *Controller) EntryWithUniqueID(id int64) *NavigationEntry {
	if idx := c.state().indexOfID(id); idx >= 0 {
		return c.entries[idx]
	}
	if c.pending != nil && c.pending.uniqueID == id {
		return c.pending
	}
	return nil
}

// IndexOfEntry returns the list index of e, or -1.
func (c *Controller) IndexOfEntry(e *NavigationEntry) int {
	for i, cand := range c.entries {
		if cand == e {
			return i
		}
	}
	return -1
}

// CanGoBack reports whether an entry precedes the current one.
func (c *Controller) CanGoBack() bool { return c.CanGoToOffset(-1) }

// CanGoForward reports whether an entry follows the current one.
func (c *Controller) CanGoForward() bool { return c.CanGoToOffset(1) }

// CanGoToOffset reports whether current index + delta is inside the list.
func (c *Controller) CanGoToOffset(delta int) bool {
	if c.lastCommitted < 0 {
		return false
	}
	target := c.lastCommitted + delta
	return target >= 0 && target < len(c.entries)
}

// GoBack starts a history navigation to the previous entry.
func (c *Controller) GoBack() error { return c.GoToOffset(-1) }

// GoForward starts a history navigation to the next entry.
func (c *Controller) GoForward() error { return c.GoToOffset(1) }

// GoToOffset starts a history navigation delta entries away. Out of range
// offsets return ErrInvalidOffset and change nothing.
func (c *Controller) GoToOffset(delta int) error {
	if !c.CanGoToOffset(delta) {
		return fmt.Errorf("offset %d from index %d of %d: %w", delta, c.lastCommitted, len(c.entries), ErrInvalidOffset)
	}
	return c.GoToIndex(c.lastCommitted + delta)
}

// GoToIndex starts a history navigation to the entry at index.
func (c *Controller) GoToIndex(index int) error {
	if index < 0 || index >= len(c.entries) {
		return fmt.Errorf("index %d of %d: %w", index, len(c.entries), ErrInvalidOffset)
	}
	c.discardPending("history navigation")
	c.setPendingHistory(index)
	c.log.Debugf("pending history navigation to index %d (entry %d)", index, c.entries[index].uniqueID)
	return nil
}

// Reload makes the current entry pending again.
func (c *Controller) Reload() error {
	if c.lastCommitted < 0 {
		return ErrNoEntries
	}
	c.discardPending("reload")
	c.setPendingHistory(c.lastCommitted)
	return nil
}

// LoadIfNecessary starts loading a restored current entry. It does nothing
// when the current entry has already been loaded.
func (c *Controller) LoadIfNecessary() error {
	cur := c.LastCommittedEntry()
	if cur == nil {
		return ErrNoEntries
	}
	if !cur.needsLoad {
		return nil
	}
	c.discardPending("restore load")
	c.setPendingHistory(c.lastCommitted)
	return nil
}

func (c *Controller) setPendingHistory(index int) {
	c.pending = c.entries[index]
	c.pendingIndex = index
	c.pendingFrame = 0
	c.pendingReplace = false
	c.assignSiteTags(c.pending)
}

// LoadWithParams creates the pending entry for a browser-initiated load,
// replacing any previous pending entry. A load targeting a subframe
// produces a copy of the current entry with that frame pointed at URL.
func (c *Controller) LoadWithParams(params LoadParams) (*NavigationEntry, error) {
	cur := c.LastCommittedEntry()
	// A replacing load overwrites the current entry in place, so it names
	// that entry instead of allocating an ID for one never created.
	nextID := c.ids.NextID
	if params.ReplaceCurrentEntry && cur != nil {
		nextID = cur.UniqueID
	}

	var entry *NavigationEntry
	if params.FrameID != 0 {
		if cur == nil {
			return nil, ErrNoEntries
		}
		loc, ok := c.resolveFrame(params.FrameID)
		if !ok {
			return nil, fmt.Errorf("frame %d: %w", params.FrameID, ErrUnknownFrame)
		}
		entry = cur.cloneAs(nextID())
		fne := &FrameNavigationEntry{FrameUniqueName: loc.shape.UniqueName, URL: params.URL}
		if !loc.shape.IsMainFrame {
			updateFrame(entry.tree, loc, fne, true)
		} else {
			entry.tree = NewFrameTree(fne)
		}
	} else {
		entry = newNavigationEntry(nextID(), &FrameNavigationEntry{URL: params.URL})
	}
	entry.transition = params.Transition
	entry.setDataURLs(params.BaseURLForData, params.HistoryURLForData)

	c.discardPending("new load")
	c.pending = entry
	c.pendingIndex = -1
	c.pendingFrame = params.FrameID
	c.pendingReplace = params.ReplaceCurrentEntry
	c.log.Debugf("pending load of %q (entry %d, replace=%v)", params.URL, entry.uniqueID, params.ReplaceCurrentEntry)
	return entry, nil
}

// DiscardPendingEntry drops the pending entry, if any.
func (c *Controller) DiscardPendingEntry() {
	c.discardPending("discarded by caller")
}

func (c *Controller) discardPending(reason string) {
	if c.pending == nil {
		return
	}
	id := c.pending.uniqueID
	url := c.pending.URL()
	c.clearPending()
	c.log.Debugf("discarded pending entry %d (%s)", id, reason)
	c.emit(Event{Type: EventPendingDiscarded, EntryID: id, URL: url, Rule: reason})
}

func (c *Controller) clearPending() {
	c.pending = nil
	c.pendingIndex = -1
	c.pendingFrame = 0
	c.pendingReplace = false
}

// RemoveEntryAt deletes a non-current, non-pending entry.
func (c *Controller) RemoveEntryAt(index int) error {
	if index < 0 || index >= len(c.entries) {
		return fmt.Errorf("index %d of %d: %w", index, len(c.entries), ErrInvalidOffset)
	}
	if index == c.lastCommitted || (c.pending != nil && index == c.pendingIndex) {
		return ErrCannotRemoveCurrent
	}
	c.removeAt(index)
	return nil
}

// PruneAllButLastCommitted leaves only the current entry in the list.
func (c *Controller) PruneAllButLastCommitted() int {
	if c.lastCommitted < 0 {
		return 0
	}
	removed := 0
	for c.lastCommitted > 0 {
		c.removeAt(0)
		removed++
	}
	removed += c.truncateAfter(0)
	if removed > 0 {
		c.emit(Event{Type: EventEntriesPruned, Count: removed})
	}
	return removed
}

// OnCommit classifies one commit and applies it to the list.
func (c *Controller) OnCommit(p CommitParams) LoadCommittedDetails {
	details := LoadCommittedDetails{
		Type:               NavigationTypeNavIgnore,
		PreviousEntryIndex: c.lastCommitted,
		EntryIndex:         c.lastCommitted,
	}

	loc, ok := c.resolveFrame(p.FrameID)
	if !ok {
		c.log.Warnf("ignoring commit of %q for unknown frame %d", p.URL, p.FrameID)
		c.emit(Event{Type: EventNavigationIgnored, Details: &details, Rule: "unknown frame", URL: p.URL})
		return details
	}
	details.IsMainFrame = loc.shape.IsMainFrame

	cls := classify(p, loc, c.state())
	details.Type = cls.Type
	details.IsInPage = cls.IsInPage
	details.DidReplaceEntry = cls.Replace

	if cls.Type == NavigationTypeNavIgnore {
		c.log.Infof("ignoring commit of %q in frame %d: %s", p.URL, p.FrameID, cls.Rule)
		c.emit(Event{Type: EventNavigationIgnored, Details: &details, Rule: cls.Rule, URL: p.URL})
		return details
	}

	fne := c.frameEntryFromCommit(p, loc)
	switch cls.Type {
	case NavigationTypeNewPage:
		details.PrunedCount = c.applyNewPage(p, loc, fne, cls)
	case NavigationTypeExistingPage:
		c.applyExistingPage(p, loc, fne, cls)
	case NavigationTypeSamePage:
		c.applySamePage(p, loc, fne)
	case NavigationTypeNewSubframe:
		details.PrunedCount = c.applyNewSubframe(p, loc, fne, cls)
	case NavigationTypeAutoSubframe:
		c.applyAutoSubframe(loc, fne, cls)
	}
	c.settlePending(p, loc, cls)

	details.EntryIndex = c.lastCommitted
	details.Entry = c.LastCommittedEntry()

	c.log.Debugf("commit %q frame=%d isn=%d dsn=%d -> %s in_page=%v (%s), index %d/%d",
		p.URL, p.FrameID, p.ItemSequenceNumber, p.DocumentSequenceNumber,
		cls.Type, cls.IsInPage, cls.Rule, c.lastCommitted, len(c.entries))
	c.emit(Event{Type: EventNavigationCommitted, Details: &details, Rule: cls.Rule, EntryID: details.Entry.uniqueID, URL: p.URL})
	if details.PrunedCount > 0 {
		c.emit(Event{Type: EventEntriesPruned, Count: details.PrunedCount})
	}
	return details
}

func (c *Controller) state() classifierState {
	return classifierState{
		entries:       c.entries,
		lastCommitted: c.lastCommitted,
		pending:       c.pending,
		pendingIndex:  c.pendingIndex,
		pendingFrame:  c.pendingFrame,
	}
}

// resolveFrame turns a live frame into its unique-name path.
func (c *Controller) resolveFrame(id FrameID) (frameLocation, bool) {
	if c.provider == nil {
		return frameLocation{}, false
	}
	shape, ok := c.provider.Frame(id)
	if !ok {
		return frameLocation{}, false
	}
	loc := frameLocation{shape: shape}
	cur := shape
	for depth := 0; !cur.IsMainFrame; depth++ {
		if depth > maxFrameDepth {
			return frameLocation{}, false
		}
		loc.path = append([]string{cur.UniqueName}, loc.path...)
		parent, ok := c.provider.Frame(cur.ParentID)
		if !ok {
			return frameLocation{}, false
		}
		cur = parent
	}
	return loc, true
}

func (c *Controller) frameEntryFromCommit(p CommitParams, loc frameLocation) *FrameNavigationEntry {
	name := MainFrameUniqueName
	if !loc.shape.IsMainFrame {
		name = loc.shape.UniqueName
	}
	fne := &FrameNavigationEntry{
		FrameUniqueName:        name,
		URL:                    p.URL,
		ItemSequenceNumber:     p.ItemSequenceNumber,
		DocumentSequenceNumber: p.DocumentSequenceNumber,
		SiteTag:                p.SiteTag,
		CommittedRealLoad:      !p.InitialEmptyDocument || p.FrameHadRealLoad,
		PageType:               p.PageType,
	}
	if fne.SiteTag == "" {
		if cur := c.LastCommittedEntry(); cur != nil {
			if stored := cur.tree.EntryAtPath(loc.path); stored.IsItem(fne.ItemSequenceNumber, fne.DocumentSequenceNumber) {
				fne.SiteTag = stored.SiteTag
			}
		}
	}
	return fne
}

func (c *Controller) fulfillsPending(p CommitParams, loc frameLocation) bool {
	return c.state().matchesPending(p, loc)
}

// adoptsPending reports whether the commit creates its entry from the
// pending load. A replacing load shares the current entry's ID and never
// becomes a second entry.
func (c *Controller) adoptsPending(p CommitParams, loc frameLocation) bool {
	return c.pendingIndex < 0 && c.fulfillsPending(p, loc) && c.EntryWithUniqueID(c.pending.uniqueID) == nil
}

func (c *Controller) applyNewPage(p CommitParams, loc frameLocation, fne *FrameNavigationEntry, cls Classification) int {
	prev := c.LastCommittedEntry()

	// A fulfilled pending load keeps its ID and data URL overrides.
	var entry *NavigationEntry
	if c.adoptsPending(p, loc) {
		entry = c.pending
		if p.BaseURLForData != "" || p.HistoryURLForData != "" {
			entry.setDataURLs(p.BaseURLForData, p.HistoryURLForData)
		}
	} else {
		entry = newNavigationEntry(c.ids.NextID(), nil)
		entry.setDataURLs(p.BaseURLForData, p.HistoryURLForData)
	}

	if cls.IsInPage && prev != nil {
		entry.tree = prev.tree.Clone()
		entry.tree.SetEntry(RootNode, fne)
	} else {
		entry.tree = NewFrameTree(fne)
	}
	entry.pageType = p.PageType
	entry.transition = p.Transition
	entry.originalRequestURL = originalRequestURL(p)
	entry.needsLoad = false

	return c.insertEntry(entry)
}

func (c *Controller) applyExistingPage(p CommitParams, loc frameLocation, fne *FrameNavigationEntry, cls Classification) {
	entry := c.entries[cls.TargetIndex]
	switch {
	case cls.Replace && !cls.IsInPage:
		entry.tree = NewFrameTree(fne)
		entry.originalRequestURL = originalRequestURL(p)
		if c.fulfillsPending(p, loc) && c.pendingIndex < 0 {
			entry.setDataURLs(c.pending.baseURLForData, c.pending.historyURLForData)
		} else {
			entry.setDataURLs(p.BaseURLForData, p.HistoryURLForData)
		}
	default:
		// History loads, reloads and in-page updates keep the stored
		// subframes; only an unrelated new document drops them.
		stored := entry.tree.RootEntry()
		entry.tree.SetEntry(RootNode, keepSiteTag(fne, stored))
		if stored == nil ||
			(stored.DocumentSequenceNumber != fne.DocumentSequenceNumber &&
				stored.ItemSequenceNumber != fne.ItemSequenceNumber) {
			entry.tree.ClearChildren(RootNode)
		}
	}
	entry.pageType = p.PageType
	entry.transition = p.Transition
	entry.needsLoad = false
	c.lastCommitted = cls.TargetIndex
}

func (c *Controller) applySamePage(p CommitParams, loc frameLocation, fne *FrameNavigationEntry) {
	entry := c.entries[c.lastCommitted]
	stored := entry.tree.EntryAtPath(loc.path)
	crossDocument := stored == nil || stored.DocumentSequenceNumber != fne.DocumentSequenceNumber
	updateFrame(entry.tree, loc, keepSiteTag(fne, stored), crossDocument)
	if loc.shape.IsMainFrame {
		entry.pageType = p.PageType
		if c.fulfillsPending(p, loc) && c.pendingIndex < 0 {
			entry.setDataURLs(c.pending.baseURLForData, c.pending.historyURLForData)
		}
	}
	entry.needsLoad = false
}

func (c *Controller) applyNewSubframe(p CommitParams, loc frameLocation, fne *FrameNavigationEntry, cls Classification) int {
	// A fulfilled subframe load keeps the ID handed out by LoadWithParams.
	var id int64
	if c.adoptsPending(p, loc) {
		id = c.pending.uniqueID
	} else {
		id = c.ids.NextID()
	}
	entry := c.LastCommittedEntry().cloneAs(id)
	updateFrame(entry.tree, loc, fne, !cls.IsInPage)
	entry.transition = p.Transition | TransitionManualSubframe
	return c.insertEntry(entry)
}

func (c *Controller) applyAutoSubframe(loc frameLocation, fne *FrameNavigationEntry, cls Classification) {
	entry := c.entries[cls.TargetIndex]
	stored := entry.tree.EntryAtPath(loc.path)
	crossDocument := stored == nil || stored.DocumentSequenceNumber != fne.DocumentSequenceNumber
	if !updateFrame(entry.tree, loc, keepSiteTag(fne, stored), crossDocument) {
		c.log.Warnf("auto subframe commit for %v has no parent node in entry %d", loc.path, entry.uniqueID)
	}
	c.lastCommitted = cls.TargetIndex
}

// settlePending clears a pending entry the commit fulfilled, and discards
// one that a new document in its own frame made obsolete. Commits in
// other frames leave it alone.
func (c *Controller) settlePending(p CommitParams, loc frameLocation, cls Classification) {
	if c.pending == nil {
		return
	}
	if c.fulfillsPending(p, loc) {
		c.clearPending()
		return
	}
	sameFrame := (c.pendingFrame == 0 && loc.shape.IsMainFrame) || c.pendingFrame == loc.shape.ID
	if sameFrame && !cls.IsInPage && cls.Type != NavigationTypeSamePage {
		c.discardPending("superseded by commit")
	}
}

// insertEntry truncates the forward branch, appends entry as the current
// entry and prunes the head down to capacity. Returns the pruned count.
func (c *Controller) insertEntry(entry *NavigationEntry) int {
	if c.lastCommitted >= 0 {
		c.truncateAfter(c.lastCommitted)
	}
	c.entries = append(c.entries, entry)
	c.lastCommitted = len(c.entries) - 1

	pruned := 0
	for len(c.entries) > c.maxEntries {
		c.removeAt(0)
		pruned++
	}
	return pruned
}

func (c *Controller) truncateAfter(index int) int {
	removed := len(c.entries) - (index + 1)
	if removed <= 0 {
		return 0
	}
	if c.pending != nil && c.pendingIndex > index {
		c.discardPending("entry truncated")
	}
	for i := index + 1; i < len(c.entries); i++ {
		c.entries[i] = nil
	}
	c.entries = c.entries[:index+1]
	return removed
}

func (c *Controller) removeAt(index int) {
	if c.pending != nil && c.pendingIndex >= 0 {
		switch {
		case c.pendingIndex == index:
			c.discardPending("entry pruned")
		case c.pendingIndex > index:
			c.pendingIndex--
		}
	}
	copy(c.entries[index:], c.entries[index+1:])
	c.entries[len(c.entries)-1] = nil
	c.entries = c.entries[:len(c.entries)-1]
	if c.lastCommitted > index || c.lastCommitted >= len(c.entries) {
		c.lastCommitted--
	}
}

// assignSiteTags asks the site policy to tag frame entries lacking a tag.
func (c *Controller) assignSiteTags(entry *NavigationEntry) {
	if c.sites == nil {
		return
	}
	tree := entry.tree
	tree.Walk(func(n NodeIndex, _ int) bool {
		fne := tree.Entry(n)
		if fne == nil || fne.SiteTag != "" || !IsValidURL(fne.URL) {
			return true
		}
		tagged := *fne
		tagged.SiteTag = c.sites.SiteFor(fne.URL)
		tree.SetEntry(n, &tagged)
		return true
	})
}

func (c *Controller) emit(ev Event) {
	if len(c.observers) == 0 {
		return
	}
	ev.Timestamp = time.Now()
	for _, o := range c.observers {
		o(ev)
	}
}

// updateFrame stores fne at loc's node, adding the node under its parent
// when missing. A cross-document update detaches the node's subtree.
// Returns false when the parent node does not exist.
func updateFrame(tree *FrameTree, loc frameLocation, fne *FrameNavigationEntry, crossDocument bool) bool {
	if n, ok := tree.FindPath(loc.path); ok {
		tree.SetEntry(n, fne)
		if crossDocument {
			tree.ClearChildren(n)
		}
		return true
	}
	parent, ok := tree.FindPath(loc.parentPath())
	if !ok {
		return false
	}
	tree.AddChild(parent, fne)
	return true
}

// keepSiteTag carries the stored site tag over when fne re-commits the
// same item without one.
func keepSiteTag(fne, stored *FrameNavigationEntry) *FrameNavigationEntry {
	if fne.SiteTag != "" || !stored.IsItem(fne.ItemSequenceNumber, fne.DocumentSequenceNumber) {
		return fne
	}
	cp := *fne
	cp.SiteTag = stored.SiteTag
	return &cp
}

func originalRequestURL(p CommitParams) string {
	if p.OriginalRequestURL != "" {
		return p.OriginalRequestURL
	}
	return p.URL
}
