package history

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func snapshotAll(t *testing.T, c *Controller) []RestoreEntry {
	t.Helper()
	var out []RestoreEntry
	for _, e := range c.Entries() {
		re, err := SnapshotEntry(e)
		require.NoError(t, err)
		out = append(out, re)
	}
	return out
}

func hostPolicy() sitePolicyFunc {
	return func(url string) SiteTag {
		rest := url[strings.Index(url, "://")+3:]
		if i := strings.IndexByte(rest, '/'); i >= 0 {
			rest = rest[:i]
		}
		return SiteTag(rest)
	}
}

func TestRestoreRejectsInvalidInput(t *testing.T) {
	src := NewController(newFakeFrames())
	src.OnCommit(mainCommit("https://a.test/", 1, 1))
	saved := snapshotAll(t, src)

	t.Run("controller not empty", func(t *testing.T) {
		c := NewController(newFakeFrames())
		c.OnCommit(mainCommit("https://b.test/", 1, 1))
		assert.ErrorIs(t, c.Restore(saved, 0), ErrRestoreNotEmpty)
	})

	t.Run("pending entry", func(t *testing.T) {
		c := NewController(newFakeFrames())
		_, err := c.LoadWithParams(LoadParams{URL: "https://b.test/"})
		require.NoError(t, err)
		assert.ErrorIs(t, c.Restore(saved, 0), ErrRestoreNotEmpty)
	})

	t.Run("too many entries", func(t *testing.T) {
		c := NewController(newFakeFrames(), WithMaxEntryCount(1))
		assert.ErrorIs(t, c.Restore(append(saved, saved...), 0), ErrTooManyEntries)
	})

	t.Run("start index out of range", func(t *testing.T) {
		c := NewController(newFakeFrames())
		assert.ErrorIs(t, c.Restore(saved, 1), ErrInvalidRestoreIndex)
		assert.ErrorIs(t, c.Restore(saved, -1), ErrInvalidRestoreIndex)
		assert.ErrorIs(t, c.Restore(nil, 0), ErrInvalidRestoreIndex)
	})

	t.Run("corrupt page state leaves controller empty", func(t *testing.T) {
		c := NewController(newFakeFrames())
		bad := append([]RestoreEntry{}, saved...)
		bad = append(bad, RestoreEntry{PageState: []byte("{")})
		assert.ErrorIs(t, c.Restore(bad, 0), ErrInvalidPageState)
		assert.Equal(t, 0, c.EntryCount())
		assert.Nil(t, c.LastCommittedEntry())
	})
}

func TestRestoreRoundTrip(t *testing.T) {
	frames := newFakeFrames()
	frames.add(2, mainID, "child")
	src := NewController(frames)
	src.OnCommit(mainCommit("https://a.test/1", 1, 1))
	src.OnCommit(subCommit(2, "https://b.test/", 2, 2, false))
	src.OnCommit(mainCommit("https://a.test/2", 3, 3))
	saved := snapshotAll(t, src)

	var restoredCount int
	c := NewController(frames,
		WithIDGenerator(NewSequentialIDs(100)),
		WithSitePolicy(hostPolicy()),
		WithObserver(func(ev Event) {
			if ev.Type == EventSessionRestored {
				restoredCount = ev.Count
			}
		}))
	require.NoError(t, c.Restore(saved, 0))

	assert.Equal(t, 2, restoredCount)
	require.Equal(t, 2, c.EntryCount())
	assert.Equal(t, 0, c.LastCommittedEntryIndex())
	assert.Nil(t, c.PendingEntry())
	assert.Equal(t, int64(100), c.EntryAt(0).UniqueID())
	assert.Equal(t, int64(101), c.EntryAt(1).UniqueID())

	first := c.EntryAt(0)
	assert.True(t, first.NeedsLoad())
	assert.True(t, first.Transition().Has(TransitionRestore))
	assert.Equal(t, "https://b.test/", first.FrameEntry("child").URL)
	assert.Empty(t, first.RootFrameEntry().SiteTag, "site tags are assigned on load")

	require.NoError(t, c.LoadIfNecessary())
	require.Same(t, first, c.PendingEntry())
	assert.Equal(t, 0, c.PendingEntryIndex())
	assert.Equal(t, SiteTag("a.test"), first.RootFrameEntry().SiteTag)
	assert.Equal(t, SiteTag("b.test"), first.FrameEntry("child").SiteTag)

	p := mainCommit("https://a.test/1", 1, 1)
	p.NavEntryID = first.UniqueID()
	d := c.OnCommit(p)
	assert.Equal(t, NavigationTypeExistingPage, d.Type)
	assert.False(t, first.NeedsLoad())
	assert.Nil(t, c.PendingEntry())
	assert.Equal(t, SiteTag("a.test"), first.RootFrameEntry().SiteTag, "recommit keeps the assigned tag")

	require.NoError(t, c.LoadIfNecessary())
	assert.Nil(t, c.PendingEntry(), "loaded entries are not reloaded")
}

func TestLoadIfNecessaryWithoutEntries(t *testing.T) {
	c := NewController(newFakeFrames())
	assert.ErrorIs(t, c.LoadIfNecessary(), ErrNoEntries)
	assert.ErrorIs(t, c.Reload(), ErrNoEntries)
}

func TestResolveFrameEntry(t *testing.T) {
	setup := func() (*Controller, fakeFrames, int64) {
		frames := newFakeFrames()
		frames.add(2, mainID, "stored")
		c := NewController(frames, WithSitePolicy(hostPolicy()))
		c.OnCommit(mainCommit("https://a.test/", 1, 1))
		c.OnCommit(subCommit(2, "https://b.test/", 2, 2, false))
		return c, frames, c.LastCommittedEntry().UniqueID()
	}

	t.Run("matched by unique name", func(t *testing.T) {
		c, _, id := setup()
		fne, matched, err := c.ResolveFrameEntry(id, 2, "about:blank")
		require.NoError(t, err)
		assert.True(t, matched)
		assert.Equal(t, "https://b.test/", fne.URL)
	})

	t.Run("fallback keeps the stale node", func(t *testing.T) {
		c, frames, id := setup()
		frames.add(3, mainID, "wrong")

		var fallbacks []Event
		c.observers = append(c.observers, func(ev Event) {
			if ev.Type == EventFrameEntryFallback {
				fallbacks = append(fallbacks, ev)
			}
		})

		fne, matched, err := c.ResolveFrameEntry(id, 3, "https://c.test/")
		require.NoError(t, err)
		assert.False(t, matched)
		assert.Equal(t, "wrong", fne.FrameUniqueName)
		assert.Equal(t, "https://c.test/", fne.URL)
		assert.Equal(t, SiteTag("c.test"), fne.SiteTag)

		tree := c.LastCommittedEntry().Tree()
		assert.Equal(t, 2, tree.ChildCount(RootNode))
		assert.NotNil(t, c.LastCommittedEntry().FrameEntry("stored"))
		require.Len(t, fallbacks, 1)
		assert.Equal(t, "wrong", fallbacks[0].FrameUniqueName)

		again, matched, err := c.ResolveFrameEntry(id, 3, "https://d.test/")
		require.NoError(t, err)
		assert.True(t, matched, "the fallback entry is stored")
		assert.Equal(t, "https://c.test/", again.URL)
	})

	t.Run("unknown entry or frame", func(t *testing.T) {
		c, _, id := setup()
		_, _, err := c.ResolveFrameEntry(id+50, 2, "")
		assert.ErrorIs(t, err, ErrEntryNotFound)
		_, _, err = c.ResolveFrameEntry(id, 77, "")
		assert.ErrorIs(t, err, ErrUnknownFrame)
	})
}

func TestRestoredEntriesRoundTripThroughManyTabs(t *testing.T) {
	src := NewController(newFakeFrames())
	for i := int64(1); i <= 4; i++ {
		src.OnCommit(mainCommit(fmt.Sprintf("https://a.test/%d", i), i, i))
	}
	saved := snapshotAll(t, src)

	shared := NewSequentialIDs(1)
	a := NewController(newFakeFrames(), WithIDGenerator(shared))
	b := NewController(newFakeFrames(), WithIDGenerator(shared))
	require.NoError(t, a.Restore(saved, 3))
	require.NoError(t, b.Restore(saved, 1))

	seen := map[int64]bool{}
	for _, c := range []*Controller{a, b} {
		for _, e := range c.Entries() {
			assert.False(t, seen[e.UniqueID()], "id %d reused", e.UniqueID())
			seen[e.UniqueID()] = true
		}
	}
	assert.Equal(t, "https://a.test/2", b.LastCommittedEntry().URL())
}
