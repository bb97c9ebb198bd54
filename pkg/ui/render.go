// Package ui renders tab histories for the terminal and hosts an
// interactive history viewer.
package ui

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/entrhq/navhistory/pkg/history"
)

const (
	currentMarker = "▶"
	pendingMarker = "…"
)

// RenderHistory draws c's entry list with each entry's frame tree.
// The last committed entry is marked, as is the pending entry when it
// targets an existing one.
func RenderHistory(title string, c *history.Controller) string {
	var b strings.Builder

	b.WriteString(titleStyle.Render(title))
	b.WriteString(subtleStyle.Render(fmt.Sprintf("  %d/%d entries", c.EntryCount(), c.MaxEntryCount())))
	b.WriteString("\n")

	if c.EntryCount() == 0 && c.PendingEntry() == nil {
		b.WriteString(subtleStyle.Render("  (no history)"))
		b.WriteString("\n")
		return b.String()
	}

	pendingIndex := c.PendingEntryIndex()
	for i, e := range c.Entries() {
		marker := " "
		switch {
		case i == c.LastCommittedEntryIndex():
			marker = currentStyle.Render(currentMarker)
		case i == pendingIndex:
			marker = pendingStyle.Render(pendingMarker)
		}
		b.WriteString(renderEntry(marker, strconv.Itoa(i), e, i == c.LastCommittedEntryIndex()))
	}

	if p := c.PendingEntry(); p != nil && pendingIndex < 0 {
		b.WriteString(renderEntry(pendingStyle.Render(pendingMarker), "new", p, false))
	}

	b.WriteString(subtleStyle.Render(fmt.Sprintf("  back %s  forward %s", yesNo(c.CanGoBack()), yesNo(c.CanGoForward()))))
	b.WriteString("\n")
	return b.String()
}

func renderEntry(marker, label string, e *history.NavigationEntry, current bool) string {
	var b strings.Builder

	head := textStyle
	if current {
		head = currentStyle
	}
	fmt.Fprintf(&b, "%s %s %s %s", marker, head.Render("["+label+"]"),
		subtleStyle.Render(fmt.Sprintf("#%d", e.UniqueID())), urlStyle.Render(e.URL()))
	for _, badge := range entryBadges(e) {
		b.WriteString(" " + badgeStyle.Render(badge))
	}
	b.WriteString("\n")

	b.WriteString(RenderFrameTree(e.Tree(), "      "))
	return b.String()
}

func entryBadges(e *history.NavigationEntry) []string {
	var badges []string
	if e.PageType() == history.PageTypeError {
		badges = append(badges, "error")
	}
	if e.NeedsLoad() {
		badges = append(badges, "not loaded")
	}
	if e.VirtualURL() != e.URL() {
		badges = append(badges, "shown as "+e.VirtualURL())
	}
	return badges
}

// RenderFrameTree draws the subframes of t, one per line, indented by
// depth below prefix. The main frame is left to the caller.
func RenderFrameTree(t *history.FrameTree, prefix string) string {
	var b strings.Builder
	t.Walk(func(n history.NodeIndex, depth int) bool {
		if depth == 0 {
			return true
		}
		fne := t.Entry(n)
		if fne == nil {
			return true
		}
		indent := strings.Repeat("  ", depth-1)
		fmt.Fprintf(&b, "%s%s└ %s %s\n", prefix, indent,
			frameStyle.Render(fne.FrameUniqueName), urlStyle.Render(fne.URL))
		return true
	})
	return b.String()
}

// RenderCommit summarizes one commit outcome on a single line.
func RenderCommit(d history.LoadCommittedDetails) string {
	parts := []string{d.Type.String()}
	if !d.DidCommit() {
		return subtleStyle.Render(parts[0])
	}
	if d.IsInPage {
		parts = append(parts, "in-page")
	}
	if d.DidReplaceEntry {
		parts = append(parts, "replaced")
	}
	if !d.IsMainFrame {
		parts = append(parts, "subframe")
	}
	parts = append(parts, fmt.Sprintf("entry %d", d.EntryIndex))
	if d.PrunedCount > 0 {
		parts = append(parts, fmt.Sprintf("pruned %d", d.PrunedCount))
	}
	return textStyle.Render(strings.Join(parts, " · "))
}

func yesNo(ok bool) string {
	if ok {
		return "✓"
	}
	return "✗"
}
