package history

import (
	"fmt"
	"strings"
)

const (
	framePathPrefix = "<!--framePath /"
	framePathSuffix = "-->"
)

// MainFrameUniqueName is the unique name of every main frame.
const MainFrameUniqueName = ""

// PositionalSegment is the path segment of an unnamed frame created as the
// index-th child of its parent.
func PositionalSegment(index int) string {
	return fmt.Sprintf("<!--frame%d-->", index)
}

// UniqueName derives a subframe's unique name. An explicit name wins.
// Otherwise the name encodes the frame's position through the segments of
// its ancestors below the main frame followed by its own segment, e.g.
// "<!--framePath //<!--frame0-->/<!--frame1-->-->".
func UniqueName(explicitName string, segments []string) string {
	if explicitName != "" {
		return explicitName
	}
	return framePathPrefix + "/" + strings.Join(segments, "/") + framePathSuffix
}

// IsPositionalName reports whether name was generated from tree position.
func IsPositionalName(name string) bool {
	return strings.HasPrefix(name, framePathPrefix) && strings.HasSuffix(name, framePathSuffix)
}
