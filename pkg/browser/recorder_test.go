package browser

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/navhistory/pkg/history"
)

const (
	pageA = "https://a.test/"
	pageB = "https://b.test/"
	pageC = "https://c.test/"
	pageD = "https://d.test/"
)

// loadFramed plays the events of loading pageA with one subframe
// showing src.
func loadFramed(t *testing.T, r *Recorder, frameKey, src string) {
	t.Helper()
	require.NoError(t, r.BeginLoad(pageA, false))
	d, err := r.FrameNavigated("main", pageA)
	require.NoError(t, err)
	require.Equal(t, history.NavigationTypeNewPage, d.Type)

	require.NoError(t, r.FrameAttached(frameKey, "main", ""))
	d, err = r.FrameNavigated(frameKey, src)
	require.NoError(t, err)
	require.Equal(t, history.NavigationTypeAutoSubframe, d.Type)
}

func newRecorder(opts ...Option) *Recorder {
	r := NewRecorder(opts...)
	r.BindMainFrame("main")
	return r
}

func TestRecorderSubframeBackAndForward(t *testing.T) {
	r := newRecorder()
	loadFramed(t, r, "f1", pageB)
	h := r.History()
	first := h.LastCommittedEntry().UniqueID()

	d, err := r.FrameNavigated("f1", pageC)
	require.NoError(t, err)
	assert.Equal(t, history.NavigationTypeNewSubframe, d.Type)
	assert.Equal(t, 2, h.EntryCount())

	require.NoError(t, r.BeginHistoryNavigation(-1))
	d, err = r.FrameNavigated("f1", pageB)
	require.NoError(t, err)
	assert.Equal(t, history.NavigationTypeAutoSubframe, d.Type)
	assert.Equal(t, 0, h.LastCommittedEntryIndex())
	assert.Equal(t, first, h.LastCommittedEntry().UniqueID())
	assert.Nil(t, h.PendingEntry())

	require.NoError(t, r.BeginHistoryNavigation(1))
	d, err = r.FrameNavigated("f1", pageC)
	require.NoError(t, err)
	assert.Equal(t, history.NavigationTypeAutoSubframe, d.Type)
	assert.Equal(t, 1, h.LastCommittedEntryIndex())
	assert.Equal(t, 5, r.Commits())
}

func TestRecorderFragmentIsSameDocument(t *testing.T) {
	r := newRecorder()
	loadFramed(t, r, "f1", pageB)

	d, err := r.FrameNavigated("main", pageA+"#top")
	require.NoError(t, err)
	assert.Equal(t, history.NavigationTypeNewPage, d.Type)
	assert.True(t, d.IsInPage)

	_, ok := r.Frames().Frame(r.keys["f1"])
	assert.True(t, ok, "same-document navigation keeps subframes")
	assert.Equal(t, []string{pageA + "#top", pageB}, r.History().LastCommittedEntry().Tree().URLs())
}

func TestRecorderReloadRestoresSubframes(t *testing.T) {
	r := newRecorder()
	loadFramed(t, r, "f1", pageB)
	_, err := r.FrameNavigated("f1", pageC)
	require.NoError(t, err)

	require.NoError(t, r.BeginReload())
	d, err := r.FrameNavigated("main", pageA)
	require.NoError(t, err)
	assert.Equal(t, history.NavigationTypeExistingPage, d.Type)

	// The old subframe went away with the old document.
	_, err = r.FrameNavigated("f1", pageC)
	assert.ErrorIs(t, err, history.ErrUnknownFrame)

	require.NoError(t, r.FrameAttached("f2", "main", ""))
	d, err = r.FrameNavigated("f2", pageC)
	require.NoError(t, err)
	assert.Equal(t, history.NavigationTypeAutoSubframe, d.Type)
	assert.Equal(t, 2, r.History().EntryCount())
}

func TestRecorderBackAcrossDocuments(t *testing.T) {
	r := newRecorder()
	loadFramed(t, r, "f1", pageB)
	_, err := r.FrameNavigated("f1", pageC)
	require.NoError(t, err)

	require.NoError(t, r.BeginLoad(pageD, false))
	r.FrameDetached("f1")
	d, err := r.FrameNavigated("main", pageD)
	require.NoError(t, err)
	assert.Equal(t, history.NavigationTypeNewPage, d.Type)

	require.NoError(t, r.BeginHistoryNavigation(-1))
	d, err = r.FrameNavigated("main", pageA)
	require.NoError(t, err)
	assert.Equal(t, history.NavigationTypeExistingPage, d.Type)
	assert.Equal(t, 1, d.EntryIndex)

	require.NoError(t, r.FrameAttached("f3", "main", ""))
	d, err = r.FrameNavigated("f3", pageC)
	require.NoError(t, err)
	assert.Equal(t, history.NavigationTypeAutoSubframe, d.Type)
	assert.Equal(t, 3, r.History().EntryCount())
	assert.Equal(t, 1, r.History().LastCommittedEntryIndex())
}

func TestRecorderErrorPage(t *testing.T) {
	r := newRecorder()
	require.NoError(t, r.BeginLoad(pageA, false))
	_, err := r.FrameNavigated("main", pageA)
	require.NoError(t, err)

	require.NoError(t, r.BeginLoad(pageD, false))
	d, err := r.FrameNavigated("main", "chrome-error://chromewebdata/")
	require.NoError(t, err)
	assert.Equal(t, history.NavigationTypeNewPage, d.Type)

	e := r.History().LastCommittedEntry()
	assert.Equal(t, pageD, e.URL())
	assert.Equal(t, history.PageTypeError, e.PageType())
}

func TestRecorderInitialEmptySubframe(t *testing.T) {
	r := newRecorder()
	require.NoError(t, r.BeginLoad(pageA, false))
	_, err := r.FrameNavigated("main", pageA)
	require.NoError(t, err)

	require.NoError(t, r.FrameAttached("f1", "main", "ads"))
	d, err := r.FrameNavigated("f1", "about:blank")
	require.NoError(t, err)
	assert.Equal(t, history.NavigationTypeAutoSubframe, d.Type)

	d, err = r.FrameNavigated("f1", pageB)
	require.NoError(t, err)
	assert.Equal(t, history.NavigationTypeAutoSubframe, d.Type, "first real load replaces the initial document")
	assert.Equal(t, 1, r.History().EntryCount())
	assert.Equal(t, pageB, r.History().LastCommittedEntry().FrameEntry("ads").URL)
}

func TestRecorderRendererReloadKeepsItem(t *testing.T) {
	r := newRecorder()
	require.NoError(t, r.BeginLoad(pageA, false))
	_, err := r.FrameNavigated("main", pageA)
	require.NoError(t, err)

	d, err := r.FrameNavigated("main", pageA)
	require.NoError(t, err)
	assert.Equal(t, history.NavigationTypeExistingPage, d.Type)
	assert.Equal(t, 1, r.History().EntryCount())
}

func TestRecorderUnknownFrames(t *testing.T) {
	r := newRecorder()

	err := r.FrameAttached("orphan", "nobody", "")
	assert.ErrorIs(t, err, history.ErrUnknownFrame)

	_, err = r.FrameNavigated("ghost", pageA)
	assert.ErrorIs(t, err, history.ErrUnknownFrame)

	r.FrameDetached("ghost")
	r.FrameDetached("main")
	assert.Equal(t, 1, r.Frames().Len(), "the main frame is never detached")
}

func TestRecorderHistoryNavigationOutOfRange(t *testing.T) {
	r := newRecorder()
	assert.ErrorIs(t, r.BeginHistoryNavigation(-1), history.ErrInvalidOffset)
	assert.ErrorIs(t, r.BeginReload(), history.ErrNoEntries)
}

func TestRecorderTagsSites(t *testing.T) {
	r := newRecorder(WithSitePolicy(hostSites{}))
	require.NoError(t, r.BeginLoad(pageA, false))
	_, err := r.FrameNavigated("main", pageA)
	require.NoError(t, err)

	assert.Equal(t, history.SiteTag("a.test"), r.History().LastCommittedEntry().RootFrameEntry().SiteTag)
}

func TestRecorderIgnoresInitialBlankDocument(t *testing.T) {
	r := newRecorder()

	d, err := r.FrameNavigated("main", "about:blank")
	require.NoError(t, err)
	assert.Equal(t, history.NavigationTypeNavIgnore, d.Type)
	assert.Equal(t, 0, r.EntryCount())
	assert.Equal(t, 0, r.Commits())
	assert.Equal(t, "about:blank", r.CurrentURL())

	require.NoError(t, r.BeginLoad(pageA, false))
	_, err = r.FrameNavigated("main", pageA)
	require.NoError(t, err)

	d, err = r.FrameNavigated("main", "about:blank")
	require.NoError(t, err)
	assert.Equal(t, history.NavigationTypeNewPage, d.Type, "about:blank after a real page is a navigation")
	assert.Equal(t, 2, r.EntryCount())
}

func TestRecorderReplacingLoad(t *testing.T) {
	r := newRecorder()
	require.NoError(t, r.BeginLoad(pageA, false))
	_, err := r.FrameNavigated("main", pageA)
	require.NoError(t, err)
	id := r.History().LastCommittedEntry().UniqueID()

	require.NoError(t, r.BeginLoad(pageB, true))
	d, err := r.FrameNavigated("main", pageB)
	require.NoError(t, err)

	assert.Equal(t, history.NavigationTypeExistingPage, d.Type)
	assert.True(t, d.DidReplaceEntry)
	assert.Equal(t, 1, r.EntryCount())
	assert.Equal(t, pageB, r.CurrentURL())
	assert.Equal(t, id, r.History().LastCommittedEntry().UniqueID())
}

func TestRecorderReadsWhileEventsArrive(t *testing.T) {
	r := newRecorder()
	require.NoError(t, r.BeginLoad(pageA, false))
	_, err := r.FrameNavigated("main", pageA)
	require.NoError(t, err)

	const n = 50
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < n; i++ {
			_, _ = r.FrameNavigated("main", fmt.Sprintf("%s#%d", pageA, i))
		}
	}()

	for i := 0; i < n; i++ {
		err := r.Inspect(func(h *history.Controller) error {
			for _, e := range h.Entries() {
				_ = e.URL()
			}
			return nil
		})
		require.NoError(t, err)
		assert.LessOrEqual(t, r.EntryCount(), history.DefaultMaxEntryCount)
		_ = r.CurrentURL()
	}
	wg.Wait()

	entries, index, err := r.Snapshot()
	require.NoError(t, err)
	assert.Len(t, entries, history.DefaultMaxEntryCount)
	assert.Equal(t, len(entries)-1, index)
	assert.Equal(t, n+1, r.Commits())
}

func TestSameDocument(t *testing.T) {
	tests := []struct {
		prev, next string
		want       bool
	}{
		{pageA, pageA + "#x", true},
		{pageA + "#x", pageA + "#y", true},
		{pageA + "#x", pageA, true},
		{pageA, pageA, false},
		{pageA, pageB, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, sameDocument(tt.prev, tt.next), "%s -> %s", tt.prev, tt.next)
	}
}

type hostSites struct{}

func (hostSites) SiteFor(url string) history.SiteTag {
	return history.SiteTag(url[len("https://") : len(url)-1])
}
