package history

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPageStateRoundTrip(t *testing.T) {
	tree := NewFrameTree(&FrameNavigationEntry{
		URL:                    "https://a.test/",
		ItemSequenceNumber:     7,
		DocumentSequenceNumber: 8,
		CommittedRealLoad:      true,
		SiteTag:                "a.test",
	})
	child := tree.AddChild(RootNode, &FrameNavigationEntry{
		FrameUniqueName: "child",
		URL:             "https://down.test/",
		PageType:        PageTypeError,
	})
	tree.AddChild(child, &FrameNavigationEntry{FrameUniqueName: "grandchild", URL: "about:blank"})

	blob, err := SerializeTree(tree)
	require.NoError(t, err)

	got, err := DeserializeTree(blob)
	require.NoError(t, err)

	assert.Equal(t, tree.URLs(), got.URLs())
	root := got.RootEntry()
	assert.Equal(t, int64(7), root.ItemSequenceNumber)
	assert.Equal(t, int64(8), root.DocumentSequenceNumber)
	assert.True(t, root.CommittedRealLoad)
	assert.Empty(t, root.SiteTag, "site tags are not persisted")
	assert.Equal(t, PageTypeError, got.EntryAtPath([]string{"child"}).PageType)
	assert.NotNil(t, got.EntryAtPath([]string{"child", "grandchild"}))
}

func TestPageStateKeepsEmptyNodes(t *testing.T) {
	tree := NewFrameTree(nil)
	tree.AddChild(RootNode, &FrameNavigationEntry{FrameUniqueName: "x", URL: "https://x.test/"})

	blob, err := SerializeTree(tree)
	require.NoError(t, err)
	got, err := DeserializeTree(blob)
	require.NoError(t, err)

	assert.Nil(t, got.RootEntry())
	assert.Equal(t, "https://x.test/", got.EntryAtPath([]string{"x"}).URL)
}

func TestDeserializeTreeRejectsBadInput(t *testing.T) {
	deep := `{"version":1,"root":{"url":"https://a.test/"` +
		strings.Repeat(`,"children":[{"url":"https://a.test/"`, maxFrameDepth+2) +
		strings.Repeat(`}]`, maxFrameDepth+2) + `}}`

	tests := []struct {
		name string
		blob string
	}{
		{"not json", "page state"},
		{"empty", ""},
		{"wrong version", `{"version":9,"root":{"url":"https://a.test/"}}`},
		{"missing root", `{"version":1}`},
		{"null child", `{"version":1,"root":{"url":"https://a.test/","children":[null]}}`},
		{"too deep", deep},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DeserializeTree([]byte(tt.blob))
			assert.ErrorIs(t, err, ErrInvalidPageState)
		})
	}
}

func TestSerializeNilEntry(t *testing.T) {
	_, err := Serialize(nil)
	assert.ErrorIs(t, err, ErrInvalidPageState)
}
