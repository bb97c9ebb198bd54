package history

import (
	"encoding/json"
	"fmt"
)

// pageStateVersion is bumped whenever the persisted layout changes.
const pageStateVersion = 1

type pageState struct {
	Version int            `json:"version"`
	Root    *pageStateNode `json:"root"`
}

type pageStateNode struct {
	UniqueName             string           `json:"unique_name"`
	URL                    string           `json:"url"`
	ItemSequenceNumber     int64            `json:"isn"`
	DocumentSequenceNumber int64            `json:"dsn"`
	RealLoad               bool             `json:"real_load,omitempty"`
	Error                  bool             `json:"error,omitempty"`
	Empty                  bool             `json:"empty,omitempty"`
	Children               []*pageStateNode `json:"children,omitempty"`
}

// Serialize encodes an entry's frame tree. Site tags are not persisted:
// they are reassigned by the site policy after restore.
func Serialize(e *NavigationEntry) ([]byte, error) {
	if e == nil {
		return nil, fmt.Errorf("serialize nil entry: %w", ErrInvalidPageState)
	}
	return SerializeTree(e.tree)
}

// SerializeTree encodes every reachable node of t.
func SerializeTree(t *FrameTree) ([]byte, error) {
	var encode func(n NodeIndex) *pageStateNode
	encode = func(n NodeIndex) *pageStateNode {
		out := &pageStateNode{}
		if fne := t.Entry(n); fne != nil {
			out.UniqueName = fne.FrameUniqueName
			out.URL = fne.URL
			out.ItemSequenceNumber = fne.ItemSequenceNumber
			out.DocumentSequenceNumber = fne.DocumentSequenceNumber
			out.RealLoad = fne.CommittedRealLoad
			out.Error = fne.PageType == PageTypeError
		} else {
			out.Empty = true
		}
		for _, c := range t.Children(n) {
			out.Children = append(out.Children, encode(c))
		}
		return out
	}

	data, err := json.Marshal(pageState{Version: pageStateVersion, Root: encode(RootNode)})
	if err != nil {
		return nil, fmt.Errorf("failed to encode page state: %w", err)
	}
	return data, nil
}

// DeserializeTree rebuilds a frame tree node by node from persisted state.
func DeserializeTree(blob []byte) (*FrameTree, error) {
	var ps pageState
	if err := json.Unmarshal(blob, &ps); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPageState, err)
	}
	if ps.Version != pageStateVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrInvalidPageState, ps.Version)
	}
	if ps.Root == nil {
		return nil, fmt.Errorf("%w: missing root", ErrInvalidPageState)
	}

	t := NewFrameTree(ps.Root.frameEntry())
	var decode func(parent NodeIndex, nodes []*pageStateNode, depth int) error
	decode = func(parent NodeIndex, nodes []*pageStateNode, depth int) error {
		if depth > maxFrameDepth {
			return fmt.Errorf("%w: tree deeper than %d", ErrInvalidPageState, maxFrameDepth)
		}
		for _, node := range nodes {
			if node == nil {
				return fmt.Errorf("%w: null node", ErrInvalidPageState)
			}
			child := t.AddChild(parent, node.frameEntry())
			if err := decode(child, node.Children, depth+1); err != nil {
				return err
			}
		}
		return nil
	}
	if err := decode(RootNode, ps.Root.Children, 1); err != nil {
		return nil, err
	}
	return t, nil
}

func (n *pageStateNode) frameEntry() *FrameNavigationEntry {
	if n.Empty {
		return nil
	}
	fne := &FrameNavigationEntry{
		FrameUniqueName:        n.UniqueName,
		URL:                    n.URL,
		ItemSequenceNumber:     n.ItemSequenceNumber,
		DocumentSequenceNumber: n.DocumentSequenceNumber,
		CommittedRealLoad:      n.RealLoad,
	}
	if n.Error {
		fne.PageType = PageTypeError
	}
	return fne
}
