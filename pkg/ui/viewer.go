package ui

import (
	"errors"
	"fmt"
	"strings"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/entrhq/navhistory/pkg/history"
	"github.com/entrhq/navhistory/pkg/tabsim"
)

type keyMap struct {
	Back    key.Binding
	Forward key.Binding
	Reload  key.Binding
	NextTab key.Binding
	Copy    key.Binding
	Help    key.Binding
	Quit    key.Binding
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Back, k.Forward, k.Copy, k.Help, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Back, k.Forward, k.Reload},
		{k.NextTab, k.Copy},
		{k.Help, k.Quit},
	}
}

var defaultKeys = keyMap{
	Back: key.NewBinding(
		key.WithKeys("left", "h"),
		key.WithHelp("←/h", "back"),
	),
	Forward: key.NewBinding(
		key.WithKeys("right", "l"),
		key.WithHelp("→/l", "forward"),
	),
	Reload: key.NewBinding(
		key.WithKeys("r"),
		key.WithHelp("r", "reload"),
	),
	NextTab: key.NewBinding(
		key.WithKeys("tab"),
		key.WithHelp("tab", "next tab"),
	),
	Copy: key.NewBinding(
		key.WithKeys("y"),
		key.WithHelp("y", "copy url"),
	),
	Help: key.NewBinding(
		key.WithKeys("?"),
		key.WithHelp("?", "more keys"),
	),
	Quit: key.NewBinding(
		key.WithKeys("q", "esc", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
}

// Viewer is a bubbletea model that walks the history of simulated tabs.
type Viewer struct {
	tabs    []*tabsim.Tab
	current int

	keys keyMap
	help help.Model

	status    string
	statusErr bool

	width  int
	height int

	// copyURL writes to the system clipboard; tests swap it out.
	copyURL func(string) error
}

// NewViewer creates a viewer over tabs. The first tab is shown first.
func NewViewer(tabs ...*tabsim.Tab) *Viewer {
	return &Viewer{
		tabs:    tabs,
		keys:    defaultKeys,
		help:    help.New(),
		copyURL: clipboard.WriteAll,
	}
}

// RunViewer runs the viewer full screen until the user quits.
func RunViewer(tabs ...*tabsim.Tab) error {
	if len(tabs) == 0 {
		return errors.New("no tabs to view")
	}
	p := tea.NewProgram(NewViewer(tabs...), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("failed to run viewer: %w", err)
	}
	return nil
}

// Init implements tea.Model.
func (v *Viewer) Init() tea.Cmd { return nil }

// Tab returns the tab on screen, or nil when there are none.
func (v *Viewer) Tab() *tabsim.Tab {
	if len(v.tabs) == 0 {
		return nil
	}
	return v.tabs[v.current]
}

// Update implements tea.Model.
func (v *Viewer) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		v.width = msg.Width
		v.height = msg.Height
		v.help.Width = msg.Width
		return v, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, v.keys.Quit):
			return v, tea.Quit
		case key.Matches(msg, v.keys.Help):
			v.help.ShowAll = !v.help.ShowAll
		case key.Matches(msg, v.keys.NextTab):
			if len(v.tabs) > 0 {
				v.current = (v.current + 1) % len(v.tabs)
				v.setStatus("switched to tab "+v.Tab().ID, nil)
			}
		case key.Matches(msg, v.keys.Back):
			v.navigate("back", func(t *tabsim.Tab) (history.LoadCommittedDetails, error) { return t.GoBack() })
		case key.Matches(msg, v.keys.Forward):
			v.navigate("forward", func(t *tabsim.Tab) (history.LoadCommittedDetails, error) { return t.GoForward() })
		case key.Matches(msg, v.keys.Reload):
			v.navigate("reload", func(t *tabsim.Tab) (history.LoadCommittedDetails, error) { return t.Reload() })
		case key.Matches(msg, v.keys.Copy):
			v.copyCurrentURL()
		}
	}
	return v, nil
}

func (v *Viewer) navigate(what string, fn func(*tabsim.Tab) (history.LoadCommittedDetails, error)) {
	t := v.Tab()
	if t == nil {
		return
	}
	d, err := fn(t)
	if err != nil {
		v.setStatus(what, err)
		return
	}
	v.setStatus(what+": "+RenderCommit(d), nil)
}

func (v *Viewer) copyCurrentURL() {
	t := v.Tab()
	if t == nil {
		return
	}
	e := t.History.LastCommittedEntry()
	if e == nil {
		v.setStatus("copy", history.ErrNoEntries)
		return
	}
	if err := v.copyURL(e.URL()); err != nil {
		v.setStatus("copy", err)
		return
	}
	v.setStatus("copied "+e.URL(), nil)
}

func (v *Viewer) setStatus(msg string, err error) {
	v.statusErr = err != nil
	if err != nil {
		v.status = fmt.Sprintf("%s: %v", msg, err)
		return
	}
	v.status = msg
}

// View implements tea.Model.
func (v *Viewer) View() string {
	t := v.Tab()
	if t == nil {
		return subtleStyle.Render("no tabs")
	}

	var tabs []string
	for i, other := range v.tabs {
		if i == v.current {
			tabs = append(tabs, currentStyle.Render(other.ID))
		} else {
			tabs = append(tabs, subtleStyle.Render(other.ID))
		}
	}

	body := RenderHistory("Tab "+t.ID, t.History)
	box := boxStyle
	if v.width > 4 {
		box = box.Width(v.width - 4)
	}

	status := v.status
	if v.statusErr {
		status = errorStyle.Render(status)
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		statusBarStyle.Render(strings.Join(tabs, "  ")),
		box.Render(strings.TrimRight(body, "\n")),
		statusBarStyle.Render(status),
		v.help.View(v.keys),
	)
}
