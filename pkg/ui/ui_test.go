package ui

import (
	"errors"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/navhistory/pkg/history"
	"github.com/entrhq/navhistory/pkg/tabsim"
)

const (
	pageA = "https://a.test/"
	pageB = "https://b.test/"
	pageC = "https://c.test/"
)

func twoPageTab(t *testing.T, id string) *tabsim.Tab {
	t.Helper()
	tab := tabsim.NewTab(id, tabsim.Web{
		pageA: {Frames: []tabsim.FrameSpec{{Name: "ads", Src: pageB}}},
	})
	_, err := tab.Navigate(pageA)
	require.NoError(t, err)
	_, err = tab.Navigate(pageC)
	require.NoError(t, err)
	return tab
}

func press(v *Viewer, msg tea.KeyMsg) tea.Cmd {
	_, cmd := v.Update(msg)
	return cmd
}

func runes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestRenderHistory(t *testing.T) {
	tab := twoPageTab(t, "main")
	out := RenderHistory("Tab main", tab.History)

	assert.Contains(t, out, "Tab main")
	assert.Contains(t, out, "2/50 entries")
	assert.Contains(t, out, pageA)
	assert.Contains(t, out, pageC)
	assert.Contains(t, out, "ads")
	assert.Contains(t, out, pageB)
	assert.Contains(t, out, currentMarker)

	lines := strings.Split(out, "\n")
	var current string
	for _, l := range lines {
		if strings.Contains(l, currentMarker) {
			current = l
		}
	}
	assert.Contains(t, current, pageC, "the last committed entry carries the marker")
}

func TestRenderHistoryEmpty(t *testing.T) {
	tab := tabsim.NewTab("empty", nil)
	out := RenderHistory("Tab empty", tab.History)
	assert.Contains(t, out, "(no history)")
}

func TestRenderHistoryBadges(t *testing.T) {
	tab := tabsim.NewTab("main", nil)
	_, err := tab.FailLoad(history.LoadParams{URL: pageA})
	require.NoError(t, err)

	out := RenderHistory("t", tab.History)
	assert.Contains(t, out, "error")
}

func TestRenderHistoryPending(t *testing.T) {
	tab := twoPageTab(t, "main")
	_, err := tab.History.LoadWithParams(history.LoadParams{URL: pageB})
	require.NoError(t, err)

	out := RenderHistory("t", tab.History)
	assert.Contains(t, out, "[new]")
	assert.Contains(t, out, pendingMarker)
}

func TestRenderCommit(t *testing.T) {
	out := RenderCommit(history.LoadCommittedDetails{
		Type:            history.NavigationTypeNewPage,
		IsMainFrame:     true,
		DidReplaceEntry: true,
		EntryIndex:      2,
		PrunedCount:     1,
	})
	assert.Contains(t, out, "NEW_PAGE")
	assert.Contains(t, out, "replaced")
	assert.Contains(t, out, "entry 2")
	assert.Contains(t, out, "pruned 1")
	assert.NotContains(t, out, "subframe")

	ignored := RenderCommit(history.LoadCommittedDetails{Type: history.NavigationTypeNavIgnore})
	assert.Contains(t, ignored, "NAV_IGNORE")
	assert.NotContains(t, ignored, "entry")
}

func TestHighlightJSONKeepsText(t *testing.T) {
	doc := `{"url": "https://a.test/", "isn": 12}`
	out := HighlightJSON(doc)
	for _, part := range []string{`"url"`, `"https://a.test/"`, "12"} {
		assert.Contains(t, out, part)
	}
}

func TestViewerBackAndForward(t *testing.T) {
	tab := twoPageTab(t, "main")
	v := NewViewer(tab)

	press(v, tea.KeyMsg{Type: tea.KeyLeft})
	assert.Equal(t, 0, tab.History.LastCommittedEntryIndex())
	assert.Contains(t, v.status, "EXISTING_PAGE")

	press(v, tea.KeyMsg{Type: tea.KeyLeft})
	assert.True(t, v.statusErr, "going back past the first entry fails")
	assert.Equal(t, 0, tab.History.LastCommittedEntryIndex())

	press(v, runes("l"))
	assert.Equal(t, 1, tab.History.LastCommittedEntryIndex())
	assert.False(t, v.statusErr)

	press(v, runes("r"))
	assert.Equal(t, 1, tab.History.LastCommittedEntryIndex())
	assert.Equal(t, 2, tab.History.EntryCount())
}

func TestViewerCopiesURL(t *testing.T) {
	tab := twoPageTab(t, "main")
	v := NewViewer(tab)
	var copied string
	v.copyURL = func(s string) error {
		copied = s
		return nil
	}

	press(v, runes("y"))
	assert.Equal(t, pageC, copied)
	assert.Contains(t, v.status, "copied")

	v.copyURL = func(string) error { return errors.New("no clipboard") }
	press(v, runes("y"))
	assert.True(t, v.statusErr)
	assert.Contains(t, v.status, "no clipboard")
}

func TestViewerSwitchesTabs(t *testing.T) {
	v := NewViewer(twoPageTab(t, "one"), twoPageTab(t, "two"))
	assert.Equal(t, "one", v.Tab().ID)

	press(v, tea.KeyMsg{Type: tea.KeyTab})
	assert.Equal(t, "two", v.Tab().ID)
	press(v, tea.KeyMsg{Type: tea.KeyTab})
	assert.Equal(t, "one", v.Tab().ID)
}

func TestViewerQuitAndHelp(t *testing.T) {
	v := NewViewer(twoPageTab(t, "main"))

	assert.Nil(t, press(v, runes("?")))
	assert.True(t, v.help.ShowAll)

	cmd := press(v, runes("q"))
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
}

func TestViewerView(t *testing.T) {
	v := NewViewer(twoPageTab(t, "main"))
	v.Update(tea.WindowSizeMsg{Width: 100, Height: 30})

	out := v.View()
	assert.Contains(t, out, "Tab main")
	assert.Contains(t, out, pageC)
	assert.Contains(t, out, "back")

	assert.Contains(t, NewViewer().View(), "no tabs")
}
