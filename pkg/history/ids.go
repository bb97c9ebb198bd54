package history

import "sync/atomic"

// IDGenerator hands out navigation entry IDs. Implementations must return
// strictly increasing values and never repeat one.
type IDGenerator interface {
	NextID() int64
}

// SequentialIDs is a monotonic counter safe for use by several
// controllers at once.
type SequentialIDs struct {
	last atomic.Int64
}

// NewSequentialIDs returns a generator whose first ID is start.
func NewSequentialIDs(start int64) *SequentialIDs {
	g := &SequentialIDs{}
	g.last.Store(start - 1)
	return g
}

// NextID returns the next ID.
func (g *SequentialIDs) NextID() int64 {
	return g.last.Add(1)
}

// Last returns the most recently issued ID.
func (g *SequentialIDs) Last() int64 {
	return g.last.Load()
}
