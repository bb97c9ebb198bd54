package history

const mainID FrameID = 1

// fakeFrames is a FrameShapeProvider backed by a map.
type fakeFrames map[FrameID]FrameShape

func newFakeFrames() fakeFrames {
	return fakeFrames{mainID: {ID: mainID, IsMainFrame: true}}
}

func (f fakeFrames) Frame(id FrameID) (FrameShape, bool) {
	s, ok := f[id]
	return s, ok
}

func (f fakeFrames) add(id, parent FrameID, name string) {
	f[id] = FrameShape{ID: id, ParentID: parent, UniqueName: name}
}

type sitePolicyFunc func(string) SiteTag

func (fn sitePolicyFunc) SiteFor(url string) SiteTag { return fn(url) }

func mainCommit(url string, isn, dsn int64) CommitParams {
	return CommitParams{FrameID: mainID, URL: url, ItemSequenceNumber: isn, DocumentSequenceNumber: dsn}
}

func subCommit(frame FrameID, url string, isn, dsn int64, hadRealLoad bool) CommitParams {
	return CommitParams{
		FrameID:                frame,
		URL:                    url,
		ItemSequenceNumber:     isn,
		DocumentSequenceNumber: dsn,
		FrameHadRealLoad:       hadRealLoad,
	}
}

func firstChildName() string {
	return UniqueName("", []string{PositionalSegment(0)})
}
