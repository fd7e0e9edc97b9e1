package application

import "github.com/jmswint/marginalia/internal/domain/model"

// correlationMap indexes local comment records by their remote comment id
// for the duration of a single sync pass. It is rebuilt from confirmed store
// state at pass start rather than held across passes; rebuilding is cheap
// and avoids staleness bugs from concurrent local mutations.
type correlationMap struct {
	localIDs map[string]string        // remote id -> local record id
	records  map[string]model.Comment // remote id -> record snapshot
}

// buildCorrelationMap indexes every record carrying a remote comment id.
func buildCorrelationMap(records []model.Comment) *correlationMap {
	m := &correlationMap{
		localIDs: make(map[string]string, len(records)),
		records:  make(map[string]model.Comment, len(records)),
	}
	for _, c := range records {
		if c.RemoteCommentID != "" {
			m.register(c)
		}
	}
	return m
}

// lookup returns the record snapshot correlated with the remote id.
func (m *correlationMap) lookup(remoteID string) (model.Comment, bool) {
	c, ok := m.records[remoteID]
	return c, ok
}

// register adds or refreshes a correlation. Newly imported records are
// registered immediately so later iterations in the same pass can resolve
// replies to them.
func (m *correlationMap) register(c model.Comment) {
	if c.RemoteCommentID == "" {
		return
	}
	m.localIDs[c.RemoteCommentID] = c.ID
	m.records[c.RemoteCommentID] = c
}

// remoteIDs returns every correlated remote id.
func (m *correlationMap) remoteIDs() []string {
	ids := make([]string, 0, len(m.records))
	for id := range m.records {
		ids = append(ids, id)
	}
	return ids
}
