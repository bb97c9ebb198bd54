// Package livetree keeps the shape of a tab's live frame tree and serves
// it to the history engine as a history.FrameShapeProvider.
package livetree

import (
	"errors"
	"fmt"
	"sync"

	"github.com/entrhq/navhistory/pkg/history"
)

var (
	ErrFrameNotFound   = errors.New("frame not found")
	ErrRemoveMainFrame = errors.New("cannot remove the main frame")
)

type frame struct {
	id       history.FrameID
	parent   history.FrameID
	children []history.FrameID

	// segment is this frame's part of its descendants' positional names.
	segment    string
	uniqueName string

	url               string
	committedRealLoad bool
}

// Tree is a goroutine-safe live frame tree.
type Tree struct {
	mu     sync.RWMutex
	frames map[history.FrameID]*frame
	main   history.FrameID
	nextID history.FrameID
}

// New returns an empty tree.
func New() *Tree {
	return &Tree{frames: make(map[history.FrameID]*frame)}
}

// AddMainFrame creates the main frame, or returns the existing one.
func (t *Tree) AddMainFrame() history.FrameID {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.main != 0 {
		return t.main
	}
	t.main = t.allocID()
	t.frames[t.main] = &frame{id: t.main, uniqueName: history.MainFrameUniqueName}
	return t.main
}

func (t *Tree) allocID() history.FrameID {
	t.nextID++
	return t.nextID
}

// AddChild creates a subframe. An explicit name becomes the unique name
// unless a live sibling already uses it, in which case the frame gets a
// positional name like any unnamed frame.
func (t *Tree) AddChild(parent history.FrameID, explicitName string) (history.FrameID, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	p, ok := t.frames[parent]
	if !ok {
		return 0, fmt.Errorf("parent %d: %w", parent, ErrFrameNotFound)
	}

	var ancestors []string
	for cur := p; cur.id != t.main; cur = t.frames[cur.parent] {
		ancestors = append([]string{cur.segment}, ancestors...)
	}

	taken := make(map[string]bool, len(p.children))
	for _, c := range p.children {
		taken[t.frames[c].uniqueName] = true
	}

	f := &frame{id: t.allocID(), parent: parent}
	if explicitName != "" && !taken[explicitName] {
		f.segment = explicitName
		f.uniqueName = explicitName
	} else {
		for i := len(p.children); ; i++ {
			seg := history.PositionalSegment(i)
			name := history.UniqueName("", append(append([]string{}, ancestors...), seg))
			if !taken[name] {
				f.segment = seg
				f.uniqueName = name
				break
			}
		}
	}

	t.frames[f.id] = f
	p.children = append(p.children, f.id)
	return f.id, nil
}

// Remove detaches a subframe and its descendants.
func (t *Tree) Remove(id history.FrameID) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if id == t.main {
		return ErrRemoveMainFrame
	}
	f, ok := t.frames[id]
	if !ok {
		return fmt.Errorf("frame %d: %w", id, ErrFrameNotFound)
	}
	p := t.frames[f.parent]
	for i, c := range p.children {
		if c == id {
			p.children = append(p.children[:i], p.children[i+1:]...)
			break
		}
	}
	t.deleteSubtree(id)
	return nil
}

// RemoveChildren detaches every subframe below id, as a cross-document
// load of id does.
func (t *Tree) RemoveChildren(id history.FrameID) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	f, ok := t.frames[id]
	if !ok {
		return fmt.Errorf("frame %d: %w", id, ErrFrameNotFound)
	}
	for _, c := range f.children {
		t.deleteSubtree(c)
	}
	f.children = nil
	return nil
}

func (t *Tree) deleteSubtree(id history.FrameID) {
	for _, c := range t.frames[id].children {
		t.deleteSubtree(c)
	}
	delete(t.frames, id)
}

// MarkCommitted records a commit in frame id.
func (t *Tree) MarkCommitted(id history.FrameID, url string, realLoad bool) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	f, ok := t.frames[id]
	if !ok {
		return fmt.Errorf("frame %d: %w", id, ErrFrameNotFound)
	}
	f.url = url
	if realLoad {
		f.committedRealLoad = true
	}
	return nil
}

// Frame implements history.FrameShapeProvider.
func (t *Tree) Frame(id history.FrameID) (history.FrameShape, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	f, ok := t.frames[id]
	if !ok {
		return history.FrameShape{}, false
	}
	return history.FrameShape{
		ID:                f.id,
		ParentID:          f.parent,
		IsMainFrame:       f.id == t.main,
		UniqueName:        f.uniqueName,
		CommittedRealLoad: f.committedRealLoad,
	}, true
}

// MainFrame returns the main frame ID, zero before AddMainFrame.
func (t *Tree) MainFrame() history.FrameID {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.main
}

// Children returns the live children of id in creation order.
func (t *Tree) Children(id history.FrameID) []history.FrameID {
	t.mu.RLock()
	defer t.mu.RUnlock()

	f, ok := t.frames[id]
	if !ok {
		return nil
	}
	out := make([]history.FrameID, len(f.children))
	copy(out, f.children)
	return out
}

// URL returns the last committed URL of id.
func (t *Tree) URL(id history.FrameID) string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if f, ok := t.frames[id]; ok {
		return f.url
	}
	return ""
}

// FindByUniqueName returns the live child of parent with the given name.
func (t *Tree) FindByUniqueName(parent history.FrameID, name string) (history.FrameID, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	p, ok := t.frames[parent]
	if !ok {
		return 0, false
	}
	for _, c := range p.children {
		if t.frames[c].uniqueName == name {
			return c, true
		}
	}
	return 0, false
}

// Len returns the number of live frames.
func (t *Tree) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.frames)
}
