package history

// FrameNavigationEntry is the document identity of one frame within one
// navigation entry. Values stored in a FrameTree are never modified in
// place; updates store a fresh copy, which lets cloned trees share them.
type FrameNavigationEntry struct {
	FrameUniqueName string
	URL             string

	ItemSequenceNumber     int64
	DocumentSequenceNumber int64

	// SiteTag may be empty, for example right after a restore.
	SiteTag SiteTag

	// CommittedRealLoad is false only for a frame's initial empty document.
	CommittedRealLoad bool

	PageType PageType
}

// IsItem reports whether f records the history item (isn, dsn).
func (f *FrameNavigationEntry) IsItem(isn, dsn int64) bool {
	return f != nil && f.ItemSequenceNumber == isn && f.DocumentSequenceNumber == dsn
}

// NodeIndex addresses a node inside one FrameTree.
type NodeIndex int

const (
	// RootNode is the main frame's node in every tree.
	RootNode NodeIndex = 0
	// InvalidNode is returned when a lookup fails.
	InvalidNode NodeIndex = -1
)

type treeNode struct {
	entry    *FrameNavigationEntry
	parent   NodeIndex
	children []NodeIndex
}

// FrameTree is an arena of frame nodes. Each node stores its parent and
// the ordered indices of its children. Nodes detached by ClearChildren
// stay in the arena until the next Clone.
type FrameTree struct {
	nodes []treeNode
}

// NewFrameTree returns a tree whose root holds a copy of root.
func NewFrameTree(root *FrameNavigationEntry) *FrameTree {
	t := &FrameTree{nodes: []treeNode{{parent: InvalidNode}}}
	if root != nil {
		t.SetEntry(RootNode, root)
	}
	return t
}

func (t *FrameTree) valid(n NodeIndex) bool {
	return n >= 0 && int(n) < len(t.nodes)
}

// Entry returns the frame entry stored at n, or nil. Callers must not
// modify the returned value.
func (t *FrameTree) Entry(n NodeIndex) *FrameNavigationEntry {
	if !t.valid(n) {
		return nil
	}
	return t.nodes[n].entry
}

// RootEntry returns the main frame's entry.
func (t *FrameTree) RootEntry() *FrameNavigationEntry {
	return t.Entry(RootNode)
}

// Parent returns n's parent, or InvalidNode for the root.
func (t *FrameTree) Parent(n NodeIndex) NodeIndex {
	if !t.valid(n) {
		return InvalidNode
	}
	return t.nodes[n].parent
}

// Children returns a copy of n's child indices in order.
func (t *FrameTree) Children(n NodeIndex) []NodeIndex {
	if !t.valid(n) {
		return nil
	}
	out := make([]NodeIndex, len(t.nodes[n].children))
	copy(out, t.nodes[n].children)
	return out
}

// ChildCount returns the number of children of n.
func (t *FrameTree) ChildCount(n NodeIndex) int {
	if !t.valid(n) {
		return 0
	}
	return len(t.nodes[n].children)
}

// FindChild returns the child of parent whose entry carries name. When
// several match, the most recently added one wins.
func (t *FrameTree) FindChild(parent NodeIndex, name string) (NodeIndex, bool) {
	if !t.valid(parent) {
		return InvalidNode, false
	}
	children := t.nodes[parent].children
	for i := len(children) - 1; i >= 0; i-- {
		e := t.nodes[children[i]].entry
		if e != nil && e.FrameUniqueName == name {
			return children[i], true
		}
	}
	return InvalidNode, false
}

// FindPath walks unique names from the root. An empty path is the root.
func (t *FrameTree) FindPath(path []string) (NodeIndex, bool) {
	n := RootNode
	for _, name := range path {
		child, ok := t.FindChild(n, name)
		if !ok {
			return InvalidNode, false
		}
		n = child
	}
	return n, true
}

// EntryAtPath returns the frame entry at path, or nil.
func (t *FrameTree) EntryAtPath(path []string) *FrameNavigationEntry {
	n, ok := t.FindPath(path)
	if !ok {
		return nil
	}
	return t.Entry(n)
}

// PathOf returns the unique-name path from the root to n.
func (t *FrameTree) PathOf(n NodeIndex) []string {
	var path []string
	for t.valid(n) && n != RootNode {
		name := ""
		if e := t.nodes[n].entry; e != nil {
			name = e.FrameUniqueName
		}
		path = append([]string{name}, path...)
		n = t.nodes[n].parent
	}
	return path
}

// AddChild appends a node holding a copy of fne under parent.
func (t *FrameTree) AddChild(parent NodeIndex, fne *FrameNavigationEntry) NodeIndex {
	if !t.valid(parent) {
		return InvalidNode
	}
	n := NodeIndex(len(t.nodes))
	node := treeNode{parent: parent}
	if fne != nil {
		cp := *fne
		node.entry = &cp
	}
	t.nodes = append(t.nodes, node)
	t.nodes[parent].children = append(t.nodes[parent].children, n)
	return n
}

// SetEntry stores a copy of fne at n, leaving its children alone.
func (t *FrameTree) SetEntry(n NodeIndex, fne *FrameNavigationEntry) {
	if !t.valid(n) {
		return
	}
	if fne == nil {
		t.nodes[n].entry = nil
		return
	}
	cp := *fne
	t.nodes[n].entry = &cp
}

// ClearChildren detaches n's whole subtree.
func (t *FrameTree) ClearChildren(n NodeIndex) {
	if !t.valid(n) {
		return
	}
	t.nodes[n].children = nil
}

// Walk visits reachable nodes depth-first in child order. Returning false
// from fn skips the node's subtree.
func (t *FrameTree) Walk(fn func(n NodeIndex, depth int) bool) {
	var visit func(n NodeIndex, depth int)
	visit = func(n NodeIndex, depth int) {
		if !fn(n, depth) {
			return
		}
		for _, c := range t.nodes[n].children {
			visit(c, depth+1)
		}
	}
	visit(RootNode, 0)
}

// Len returns the number of reachable nodes.
func (t *FrameTree) Len() int {
	count := 0
	t.Walk(func(NodeIndex, int) bool {
		count++
		return true
	})
	return count
}

// Clone returns a compacted copy holding only reachable nodes. Frame
// entries are shared, which is safe because they are never mutated.
func (t *FrameTree) Clone() *FrameTree {
	out := &FrameTree{nodes: make([]treeNode, 0, len(t.nodes))}
	var copyNode func(src NodeIndex, parent NodeIndex) NodeIndex
	copyNode = func(src NodeIndex, parent NodeIndex) NodeIndex {
		n := NodeIndex(len(out.nodes))
		out.nodes = append(out.nodes, treeNode{entry: t.nodes[src].entry, parent: parent})
		for _, c := range t.nodes[src].children {
			child := copyNode(c, n)
			out.nodes[n].children = append(out.nodes[n].children, child)
		}
		return n
	}
	copyNode(RootNode, InvalidNode)
	return out
}

// HasItemAt reports whether the node at path records (isn, dsn).
func (t *FrameTree) HasItemAt(path []string, isn, dsn int64) bool {
	return t.EntryAtPath(path).IsItem(isn, dsn)
}

// URLs returns the URL of every reachable node in walk order. Nodes
// without an entry contribute an empty string.
func (t *FrameTree) URLs() []string {
	var urls []string
	t.Walk(func(n NodeIndex, _ int) bool {
		url := ""
		if e := t.nodes[n].entry; e != nil {
			url = e.URL
		}
		urls = append(urls, url)
		return true
	})
	return urls
}
