package history

// Classification is the classifier's verdict for one commit.
type Classification struct {
	Type     NavigationType
	IsInPage bool

	// TargetIndex is the list index the commit lands on, or -1 when the
	// commit creates a new entry or is ignored.
	TargetIndex int

	// Replace is set when the commit overwrites the current entry's
	// document instead of recording a new item.
	Replace bool

	// Rule names the decision that matched, for logs and events.
	Rule string
}

// frameLocation is a committing frame resolved against the live tree.
type frameLocation struct {
	shape FrameShape
	// path holds unique names from the main frame's first child down to
	// the frame. Empty for the main frame.
	path []string
}

func (l frameLocation) parentPath() []string {
	if len(l.path) == 0 {
		return nil
	}
	return l.path[:len(l.path)-1]
}

// classifierState is the read-only view of the list the classifier needs.
type classifierState struct {
	entries       []*NavigationEntry
	lastCommitted int
	pending       *NavigationEntry
	pendingIndex  int
	pendingFrame  FrameID
}

func (s classifierState) current() *NavigationEntry {
	if s.lastCommitted < 0 || s.lastCommitted >= len(s.entries) {
		return nil
	}
	return s.entries[s.lastCommitted]
}

func (s classifierState) indexOfID(id int64) int {
	if id == 0 {
		return -1
	}
	for i, e := range s.entries {
		if e.uniqueID == id {
			return i
		}
	}
	return -1
}

// historyTarget returns the index of the entry named by the commit's
// NavEntryID when that entry already stores the committed item at the
// frame's position. This is how browser-driven history loads, reloads of
// restored entries and subframe back/forward are recognized.
func (s classifierState) historyTarget(p CommitParams, path []string) int {
	idx := s.indexOfID(p.NavEntryID)
	if idx < 0 {
		return -1
	}
	if !s.entries[idx].tree.HasItemAt(path, p.ItemSequenceNumber, p.DocumentSequenceNumber) {
		return -1
	}
	return idx
}

// findItem returns the index of the entry other than the current one that
// stores (isn, dsn) at path, preferring the entry nearest the current index.
func (s classifierState) findItem(path []string, isn, dsn int64) int {
	for dist := 1; dist < len(s.entries); dist++ {
		for _, i := range []int{s.lastCommitted - dist, s.lastCommitted + dist} {
			if i < 0 || i >= len(s.entries) {
				continue
			}
			if s.entries[i].tree.HasItemAt(path, isn, dsn) {
				return i
			}
		}
	}
	return -1
}

// matchesPending reports whether p commits the pending entry. A load must
// commit in the frame it targeted; a history navigation may commit in any
// frame of its entry.
func (s classifierState) matchesPending(p CommitParams, loc frameLocation) bool {
	if s.pending == nil || p.NavEntryID == 0 || p.NavEntryID != s.pending.uniqueID {
		return false
	}
	if s.pendingIndex >= 0 {
		return true
	}
	return s.pendingFrame == loc.shape.ID || (s.pendingFrame == 0 && loc.shape.IsMainFrame)
}

// fulfillsPendingLoad reports whether p commits the pending browser
// initiated load (not a history navigation).
func (s classifierState) fulfillsPendingLoad(p CommitParams, loc frameLocation) bool {
	return s.pendingIndex < 0 && s.matchesPending(p, loc)
}

func verdict(t NavigationType, target int, inPage bool, rule string) Classification {
	return Classification{Type: t, TargetIndex: target, IsInPage: inPage, Rule: rule}
}

func replacing(c Classification) Classification {
	c.Replace = true
	return c
}

// classify decides what a commit does to history. It has no side effects.
func classify(p CommitParams, loc frameLocation, st classifierState) Classification {
	if loc.shape.IsMainFrame {
		return classifyMainFrame(p, loc, st)
	}
	return classifySubframe(p, loc, st)
}

func classifyMainFrame(p CommitParams, loc frameLocation, st classifierState) Classification {
	cur := st.current()
	valid := IsValidURL(p.URL)
	if cur == nil {
		if !valid {
			return verdict(NavigationTypeNavIgnore, -1, false, "no entry and invalid url")
		}
		return verdict(NavigationTypeNewPage, -1, false, "first commit")
	}

	stored := cur.RootFrameEntry()
	inPage := stored != nil &&
		stored.DocumentSequenceNumber == p.DocumentSequenceNumber &&
		stored.ItemSequenceNumber != p.ItemSequenceNumber

	if idx := st.historyTarget(p, loc.path); idx >= 0 {
		return verdict(NavigationTypeExistingPage, idx, inPage, "history navigation")
	}

	if !valid {
		return verdict(NavigationTypeNewPage, -1, false, "invalid url")
	}

	if stored.IsItem(p.ItemSequenceNumber, p.DocumentSequenceNumber) {
		return verdict(NavigationTypeSamePage, st.lastCommitted, false, "same item")
	}

	if inPage {
		if idx := st.findItem(loc.path, p.ItemSequenceNumber, p.DocumentSequenceNumber); idx >= 0 {
			return verdict(NavigationTypeExistingPage, idx, true, "in-page replay")
		}
		if p.ReplaceCurrentEntry {
			return replacing(verdict(NavigationTypeExistingPage, st.lastCommitted, true, "in-page replacement"))
		}
		return verdict(NavigationTypeNewPage, -1, true, "in-page navigation")
	}

	if stored != nil && stored.ItemSequenceNumber == p.ItemSequenceNumber {
		return verdict(NavigationTypeExistingPage, st.lastCommitted, false, "reload")
	}

	if idx := st.findItem(loc.path, p.ItemSequenceNumber, p.DocumentSequenceNumber); idx >= 0 {
		return verdict(NavigationTypeExistingPage, idx, false, "stored item")
	}

	if p.PageType == PageTypeError && cur.pageType == PageTypeError && cur.URL() == p.URL {
		return verdict(NavigationTypeExistingPage, st.lastCommitted, false, "repeated failure")
	}

	if p.ReplaceCurrentEntry {
		return replacing(verdict(NavigationTypeExistingPage, st.lastCommitted, false, "replacement"))
	}

	if st.fulfillsPendingLoad(p, loc) && st.pending.URL() == cur.URL() && p.URL == cur.URL() {
		return verdict(NavigationTypeSamePage, st.lastCommitted, false, "load of current url")
	}

	return verdict(NavigationTypeNewPage, -1, false, "new document")
}

func classifySubframe(p CommitParams, loc frameLocation, st classifierState) Classification {
	cur := st.current()
	if cur == nil {
		return verdict(NavigationTypeNavIgnore, -1, false, "subframe before first entry")
	}

	valid := IsValidURL(p.URL)
	tree := cur.tree
	if _, ok := tree.FindPath(loc.parentPath()); !ok {
		return verdict(NavigationTypeNavIgnore, -1, false, "parent not in tree")
	}
	node, found := tree.FindPath(loc.path)
	if !found && !valid {
		return verdict(NavigationTypeNavIgnore, -1, false, "no node and invalid url")
	}

	var stored *FrameNavigationEntry
	if found {
		stored = tree.Entry(node)
	}
	inPage := stored != nil &&
		stored.DocumentSequenceNumber == p.DocumentSequenceNumber &&
		stored.ItemSequenceNumber != p.ItemSequenceNumber

	if p.InitialEmptyDocument && stored != nil && stored.CommittedRealLoad {
		return verdict(NavigationTypeNavIgnore, -1, false, "initial empty document over stored load")
	}

	if idx := st.historyTarget(p, loc.path); idx >= 0 {
		return verdict(NavigationTypeAutoSubframe, idx, inPage, "subframe history navigation")
	}

	if valid && stored.IsItem(p.ItemSequenceNumber, p.DocumentSequenceNumber) {
		return verdict(NavigationTypeSamePage, st.lastCommitted, false, "same item")
	}

	if p.InitialEmptyDocument || !p.FrameHadRealLoad {
		return verdict(NavigationTypeAutoSubframe, st.lastCommitted, false, "no real load yet")
	}

	if inPage {
		if idx := st.findItem(loc.path, p.ItemSequenceNumber, p.DocumentSequenceNumber); idx >= 0 {
			return verdict(NavigationTypeAutoSubframe, idx, true, "in-page replay")
		}
		if p.ReplaceCurrentEntry {
			return replacing(verdict(NavigationTypeAutoSubframe, st.lastCommitted, true, "in-page replacement"))
		}
		return verdict(NavigationTypeNewSubframe, -1, true, "in-page navigation")
	}

	if stored != nil && stored.ItemSequenceNumber == p.ItemSequenceNumber {
		return verdict(NavigationTypeAutoSubframe, st.lastCommitted, false, "reload")
	}

	if p.ReplaceCurrentEntry {
		return replacing(verdict(NavigationTypeAutoSubframe, st.lastCommitted, false, "replacement"))
	}

	if stored != nil && p.PageType == PageTypeError && stored.PageType == PageTypeError && stored.URL == p.URL {
		return verdict(NavigationTypeAutoSubframe, st.lastCommitted, false, "repeated failure")
	}

	return verdict(NavigationTypeNewSubframe, -1, false, "new document")
}
