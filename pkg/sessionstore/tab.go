package sessionstore

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/entrhq/navhistory/pkg/history"
)

// SavedTab is the persisted form of one tab's history.
type SavedTab struct {
	ID string `json:"id"`
	// SessionID is unique per save, so two saves of one tab differ.
	SessionID string       `json:"session_id"`
	SavedAt   time.Time    `json:"saved_at"`
	Index     int          `json:"index"`
	Entries   []SavedEntry `json:"entries"`
}

// SavedEntry is one navigation entry. PageState is kept as raw JSON so
// dumps show the frame tree as is.
type SavedEntry struct {
	PageState          json.RawMessage `json:"page_state"`
	OriginalRequestURL string          `json:"original_request_url,omitempty"`
	BaseURLForData     string          `json:"base_url_for_data,omitempty"`
	HistoryURLForData  string          `json:"history_url_for_data,omitempty"`
	PageType           string          `json:"page_type"`
	Transition         uint32          `json:"transition"`
}

// Capture snapshots a controller's committed entries as tab id.
func Capture(id string, c *history.Controller) (*SavedTab, error) {
	entries, index, err := c.Snapshot()
	if err != nil {
		return nil, fmt.Errorf("capture tab %s: %w", id, err)
	}

	tab := &SavedTab{
		ID:        id,
		SessionID: uuid.NewString(),
		SavedAt:   time.Now().UTC(),
		Index:     index,
		Entries:   make([]SavedEntry, 0, len(entries)),
	}
	for _, re := range entries {
		tab.Entries = append(tab.Entries, SavedEntry{
			PageState:          json.RawMessage(re.PageState),
			OriginalRequestURL: re.OriginalRequestURL,
			BaseURLForData:     re.BaseURLForData,
			HistoryURLForData:  re.HistoryURLForData,
			PageType:           re.PageType.String(),
			Transition:         uint32(re.Transition),
		})
	}
	return tab, nil
}

// RestoreEntries converts the saved entries back into restore input and
// returns the saved current index with them.
func (t *SavedTab) RestoreEntries() ([]history.RestoreEntry, int) {
	out := make([]history.RestoreEntry, 0, len(t.Entries))
	for _, e := range t.Entries {
		pt := history.PageTypeNormal
		if e.PageType == history.PageTypeError.String() {
			pt = history.PageTypeError
		}
		out = append(out, history.RestoreEntry{
			PageState:          []byte(e.PageState),
			OriginalRequestURL: e.OriginalRequestURL,
			BaseURLForData:     e.BaseURLForData,
			HistoryURLForData:  e.HistoryURLForData,
			PageType:           pt,
			Transition:         history.Transition(e.Transition),
		})
	}
	return out, t.Index
}

// RestoreInto fills an empty controller with the saved history. The
// current entry still has to be loaded, see Controller.LoadIfNecessary.
func (t *SavedTab) RestoreInto(c *history.Controller) error {
	entries, index := t.RestoreEntries()
	if err := c.Restore(entries, index); err != nil {
		return fmt.Errorf("restore tab %s: %w", t.ID, err)
	}
	return nil
}

// URL returns the main-frame URL of the saved current entry.
func (t *SavedTab) URL() string {
	if t.Index < 0 || t.Index >= len(t.Entries) {
		return ""
	}
	tree, err := history.DeserializeTree(t.Entries[t.Index].PageState)
	if err != nil || tree.RootEntry() == nil {
		return ""
	}
	return tree.RootEntry().URL
}

// Summary describes the tab without its page states.
func (t *SavedTab) Summary() Summary {
	return Summary{
		ID:         t.ID,
		SessionID:  t.SessionID,
		SavedAt:    t.SavedAt,
		EntryCount: len(t.Entries),
		Index:      t.Index,
		URL:        t.URL(),
	}
}
