package history

import "time"

// EventType identifies what happened to a tab's history.
type EventType string

const (
	EventNavigationCommitted EventType = "navigation_committed"
	EventNavigationIgnored   EventType = "navigation_ignored"
	EventEntriesPruned       EventType = "entries_pruned"
	EventPendingDiscarded    EventType = "pending_discarded"
	EventFrameEntryFallback  EventType = "frame_entry_fallback"
	EventSessionRestored     EventType = "session_restored"
)

// Event is delivered to observers after the controller's invariants hold
// again. Only the fields relevant to Type are set.
type Event struct {
	Type      EventType
	Timestamp time.Time

	// Details is set for committed and ignored navigations.
	Details *LoadCommittedDetails
	Rule    string

	// Count is the number of pruned or restored entries.
	Count int

	EntryID         int64
	FrameUniqueName string
	URL             string
}

// Observer receives history events synchronously on the committing
// sequence. Observers must not call back into mutating controller methods.
type Observer func(Event)
