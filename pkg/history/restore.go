package history

import "fmt"

// RestoreEntry is the persisted form of one navigation entry.
type RestoreEntry struct {
	PageState          []byte
	OriginalRequestURL string
	BaseURLForData     string
	HistoryURLForData  string
	PageType           PageType
	Transition         Transition
}

// SnapshotEntry captures an entry in restorable form.
func SnapshotEntry(e *NavigationEntry) (RestoreEntry, error) {
	state, err := Serialize(e)
	if err != nil {
		return RestoreEntry{}, err
	}
	return RestoreEntry{
		PageState:          state,
		OriginalRequestURL: e.originalRequestURL,
		BaseURLForData:     e.baseURLForData,
		HistoryURLForData:  e.historyURLForData,
		PageType:           e.pageType,
		Transition:         e.transition,
	}, nil
}

// Restore fills an empty controller with persisted entries and makes
// startIndex the current one. Each restored entry gets a fresh ID and is
// loaded by LoadIfNecessary.
func (c *Controller) Restore(entries []RestoreEntry, startIndex int) error {
	if len(c.entries) > 0 || c.pending != nil {
		return ErrRestoreNotEmpty
	}
	if len(entries) > c.maxEntries {
		return fmt.Errorf("%d entries, max %d: %w", len(entries), c.maxEntries, ErrTooManyEntries)
	}
	if startIndex < 0 || startIndex >= len(entries) {
		return fmt.Errorf("start index %d of %d: %w", startIndex, len(entries), ErrInvalidRestoreIndex)
	}

	// Decode everything before touching the list so a bad entry leaves the
	// controller empty.
	restored := make([]*NavigationEntry, 0, len(entries))
	for i, re := range entries {
		tree, err := DeserializeTree(re.PageState)
		if err != nil {
			return fmt.Errorf("entry %d: %w", i, err)
		}
		e := &NavigationEntry{
			tree:               tree,
			originalRequestURL: re.OriginalRequestURL,
			pageType:           re.PageType,
			transition:         re.Transition | TransitionRestore,
			needsLoad:          true,
		}
		e.setDataURLs(re.BaseURLForData, re.HistoryURLForData)
		restored = append(restored, e)
	}
	for _, e := range restored {
		e.uniqueID = c.ids.NextID()
	}

	c.entries = restored
	c.lastCommitted = startIndex
	c.log.Infof("restored %d entries, current index %d", len(restored), startIndex)
	c.emit(Event{Type: EventSessionRestored, Count: len(restored), EntryID: restored[startIndex].uniqueID})
	return nil
}

// ResolveFrameEntry finds the frame entry a re-created frame should load
// while entry entryID is being loaded from history. Frames are matched by
// unique-name path. On a miss a fresh entry for fallbackURL is added under
// the same parent and returned with matched=false; the stale, unmatched
// node stays in the tree.
func (c *Controller) ResolveFrameEntry(entryID int64, frame FrameID, fallbackURL string) (fne *FrameNavigationEntry, matched bool, err error) {
	entry := c.EntryWithUniqueID(entryID)
	if entry == nil {
		return nil, false, fmt.Errorf("entry %d: %w", entryID, ErrEntryNotFound)
	}
	loc, ok := c.resolveFrame(frame)
	if !ok {
		return nil, false, fmt.Errorf("frame %d: %w", frame, ErrUnknownFrame)
	}

	tree := entry.tree
	if stored := tree.EntryAtPath(loc.path); stored != nil {
		return stored, true, nil
	}

	synth := &FrameNavigationEntry{
		FrameUniqueName: loc.shape.UniqueName,
		URL:             fallbackURL,
	}
	if c.sites != nil && IsValidURL(fallbackURL) {
		synth.SiteTag = c.sites.SiteFor(fallbackURL)
	}
	parent, ok := tree.FindPath(loc.parentPath())
	if !ok {
		// The parent itself was never stored; nothing to attach to.
		return synth, false, nil
	}
	n := tree.AddChild(parent, synth)

	c.log.Infof("no stored frame entry for %q in entry %d, falling back to %q", loc.shape.UniqueName, entryID, fallbackURL)
	c.emit(Event{Type: EventFrameEntryFallback, EntryID: entryID, FrameUniqueName: loc.shape.UniqueName, URL: fallbackURL})
	return tree.Entry(n), false, nil
}

// Snapshot captures every committed entry in restorable form along with
// the last committed index. The pending entry is not included.
func (c *Controller) Snapshot() ([]RestoreEntry, int, error) {
	if len(c.entries) == 0 {
		return nil, -1, ErrNoEntries
	}
	out := make([]RestoreEntry, 0, len(c.entries))
	for i, e := range c.entries {
		re, err := SnapshotEntry(e)
		if err != nil {
			return nil, -1, fmt.Errorf("entry %d: %w", i, err)
		}
		out = append(out, re)
	}
	return out, c.lastCommitted, nil
}
