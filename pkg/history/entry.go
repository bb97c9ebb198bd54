package history

// NavigationEntry is one point in a tab's back/forward history. Entries
// are only mutated by the Controller that owns them.
type NavigationEntry struct {
	uniqueID int64

	virtualURL         string
	originalRequestURL string
	baseURLForData     string
	historyURLForData  string
	pageType           PageType
	transition         Transition

	tree *FrameTree

	// needsLoad is set on restored entries until their main frame commits.
	needsLoad bool
}

func newNavigationEntry(id int64, root *FrameNavigationEntry) *NavigationEntry {
	e := &NavigationEntry{
		uniqueID: id,
		tree:     NewFrameTree(root),
	}
	if root != nil {
		e.originalRequestURL = root.URL
	}
	return e
}

// UniqueID returns the entry's ID, stable for the entry's lifetime.
func (e *NavigationEntry) UniqueID() int64 { return e.uniqueID }

// URL returns the main frame URL.
func (e *NavigationEntry) URL() string {
	if root := e.tree.RootEntry(); root != nil {
		return root.URL
	}
	return ""
}

// VirtualURL is the URL shown to the user.
func (e *NavigationEntry) VirtualURL() string {
	if e.virtualURL == "" {
		return e.URL()
	}
	return e.virtualURL
}

// OriginalRequestURL is the URL that was requested before redirects.
func (e *NavigationEntry) OriginalRequestURL() string { return e.originalRequestURL }

// BaseURLForData is the base URL of a data load, empty otherwise.
func (e *NavigationEntry) BaseURLForData() string { return e.baseURLForData }

// HistoryURLForData is the URL a data load shows in history.
func (e *NavigationEntry) HistoryURLForData() string { return e.historyURLForData }

func (e *NavigationEntry) PageType() PageType { return e.pageType }

func (e *NavigationEntry) Transition() Transition { return e.transition }

// Tree returns the entry's frame tree. Callers must not modify it.
func (e *NavigationEntry) Tree() *FrameTree { return e.tree }

// RootFrameEntry returns the main frame's entry.
func (e *NavigationEntry) RootFrameEntry() *FrameNavigationEntry { return e.tree.RootEntry() }

// FrameEntry returns the frame entry at a unique-name path, or nil.
func (e *NavigationEntry) FrameEntry(path ...string) *FrameNavigationEntry {
	return e.tree.EntryAtPath(path)
}

// NeedsLoad reports whether the entry was restored and not yet loaded.
func (e *NavigationEntry) NeedsLoad() bool { return e.needsLoad }

// PersistedState serializes the frame tree. See Serialize.
func (e *NavigationEntry) PersistedState() ([]byte, error) {
	return Serialize(e)
}

// cloneAs returns a deep copy with a new ID.
func (e *NavigationEntry) cloneAs(id int64) *NavigationEntry {
	cp := *e
	cp.uniqueID = id
	cp.tree = e.tree.Clone()
	cp.needsLoad = false
	return &cp
}

// setDataURLs applies the data-load URL overrides of params, or clears them.
func (e *NavigationEntry) setDataURLs(base, history string) {
	e.baseURLForData = base
	e.historyURLForData = history
	// An empty virtual URL falls back to the main frame URL.
	e.virtualURL = history
}
