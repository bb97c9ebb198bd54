package history

import (
	"net/url"
	"strings"
)

// NavigationType is the outcome the classifier assigns to a commit.
type NavigationType int

const (
	NavigationTypeUnknown NavigationType = iota
	// NavigationTypeNewPage creates a new entry for a main-frame commit.
	NavigationTypeNewPage
	// NavigationTypeExistingPage updates an entry already in the list.
	NavigationTypeExistingPage
	// NavigationTypeSamePage re-commits the current history item.
	NavigationTypeSamePage
	// NavigationTypeNewSubframe clones the current entry for a subframe commit.
	NavigationTypeNewSubframe
	// NavigationTypeAutoSubframe updates a subframe in place.
	NavigationTypeAutoSubframe
	// NavigationTypeNavIgnore leaves history untouched.
	NavigationTypeNavIgnore
)

var navigationTypeNames = map[NavigationType]string{
	NavigationTypeUnknown:      "UNKNOWN",
	NavigationTypeNewPage:      "NEW_PAGE",
	NavigationTypeExistingPage: "EXISTING_PAGE",
	NavigationTypeSamePage:     "SAME_PAGE",
	NavigationTypeNewSubframe:  "NEW_SUBFRAME",
	NavigationTypeAutoSubframe: "AUTO_SUBFRAME",
	NavigationTypeNavIgnore:    "NAV_IGNORE",
}

func (t NavigationType) String() string {
	if name, ok := navigationTypeNames[t]; ok {
		return name
	}
	return navigationTypeNames[NavigationTypeUnknown]
}

// ParseNavigationType accepts the names produced by String, case-insensitively.
func ParseNavigationType(s string) (NavigationType, bool) {
	want := strings.ToUpper(strings.TrimSpace(s))
	for t, name := range navigationTypeNames {
		if name == want {
			return t, true
		}
	}
	return NavigationTypeUnknown, false
}

// CreatesEntry reports whether the outcome appends a new entry to the list.
func (t NavigationType) CreatesEntry() bool {
	return t == NavigationTypeNewPage || t == NavigationTypeNewSubframe
}

// PageType distinguishes successful loads from error pages.
type PageType int

const (
	PageTypeNormal PageType = iota
	PageTypeError
)

func (p PageType) String() string {
	if p == PageTypeError {
		return "ERROR"
	}
	return "NORMAL"
}

// Transition is an informational hint describing how a navigation started.
// It never drives classification.
type Transition uint32

const (
	TransitionLink Transition = 1 << iota
	TransitionTyped
	TransitionAutoSubframe
	TransitionManualSubframe
	TransitionReload
	TransitionForwardBack
	TransitionClientRedirect
	TransitionFromAddressBar
	TransitionRestore
)

var transitionNames = []struct {
	bit  Transition
	name string
}{
	{TransitionLink, "link"},
	{TransitionTyped, "typed"},
	{TransitionAutoSubframe, "auto_subframe"},
	{TransitionManualSubframe, "manual_subframe"},
	{TransitionReload, "reload"},
	{TransitionForwardBack, "forward_back"},
	{TransitionClientRedirect, "client_redirect"},
	{TransitionFromAddressBar, "from_address_bar"},
	{TransitionRestore, "restore"},
}

// Has reports whether every bit of flag is set.
func (t Transition) Has(flag Transition) bool {
	return t&flag == flag
}

func (t Transition) String() string {
	if t == 0 {
		return "none"
	}
	var parts []string
	for _, tn := range transitionNames {
		if t.Has(tn.bit) {
			parts = append(parts, tn.name)
		}
	}
	return strings.Join(parts, "|")
}

// FrameID identifies a live frame as reported by the frame shape provider.
// Zero is never a valid frame.
type FrameID int64

// FrameShape is the minimal description of a live frame that the engine
// needs to locate it in an entry's frame tree.
type FrameShape struct {
	ID                FrameID
	ParentID          FrameID
	IsMainFrame       bool
	UniqueName        string
	CommittedRealLoad bool
}

// FrameShapeProvider exposes the live frame tree. The engine only reads it.
type FrameShapeProvider interface {
	Frame(id FrameID) (FrameShape, bool)
}

// SiteTag is an opaque, non-owning handle to an isolation decision. The
// empty tag means no decision has been recorded.
type SiteTag string

// SitePolicy assigns site tags to frame entries that lack one.
type SitePolicy interface {
	SiteFor(url string) SiteTag
}

// CommitParams is one commit notification from the renderer.
type CommitParams struct {
	FrameID            FrameID
	URL                string
	OriginalRequestURL string
	BaseURLForData     string
	HistoryURLForData  string
	Transition         Transition

	ItemSequenceNumber     int64
	DocumentSequenceNumber int64

	ReplaceCurrentEntry bool
	PageType            PageType

	// FrameHadRealLoad is the frame's committed_real_load state before
	// this commit.
	FrameHadRealLoad bool

	// InitialEmptyDocument marks the implicit empty document a new
	// subframe commits before any real navigation.
	InitialEmptyDocument bool

	// NavEntryID is the unique ID of the entry the browser asked this
	// frame to load. Zero for renderer-initiated navigations.
	NavEntryID int64

	SiteTag SiteTag
}

// LoadParams describes a browser-initiated navigation.
type LoadParams struct {
	URL        string
	Transition Transition

	// ReplaceCurrentEntry asks the commit to overwrite the current entry.
	ReplaceCurrentEntry bool

	// BaseURLForData and HistoryURLForData are set when URL is a data
	// URL loaded with an explicit base.
	BaseURLForData    string
	HistoryURLForData string

	// FrameID targets a subframe. Zero targets the main frame.
	FrameID FrameID
}

// LoadCommittedDetails describes what a commit did to the history list.
type LoadCommittedDetails struct {
	Type               NavigationType
	IsInPage           bool
	IsMainFrame        bool
	DidReplaceEntry    bool
	PreviousEntryIndex int
	EntryIndex         int
	Entry              *NavigationEntry
	PrunedCount        int
}

// DidCommit reports whether the commit touched history at all.
func (d LoadCommittedDetails) DidCommit() bool {
	return d.Type != NavigationTypeNavIgnore && d.Type != NavigationTypeUnknown
}

// IsValidURL reports whether rawURL can become the target of a history
// item. Empty strings and values without a scheme are invalid.
func IsValidURL(rawURL string) bool {
	if rawURL == "" {
		return false
	}
	u, err := url.Parse(rawURL)
	return err == nil && u.Scheme != ""
}
