package conference

import (
	"sync"
	"time"
)

// defaultPeerTimeout is the duration of silence (no Join, Welcome or Ping) after
// which a remote peer is considered gone and the session resets, absent an
// explicit timeout from config.Config.
const defaultPeerTimeout = 6 * time.Second

// peerRecord tracks one remote participant's liveness.
type peerRecord struct {
	clientID   string
	lastSeenAt time.Time
}

// peerTable is the single-room participant table the controller consults
// on every inbound signaling message and on each timeout-check tick.
// Grounded on the peer map maintained alongside P2DSession in the original
// session loop: one remote peer per room, tracked by last-seen timestamp.
type peerTable struct {
	mu      sync.Mutex
	peers   map[string]*peerRecord
	timeout time.Duration
}

// newPeerTable builds a table that considers a peer timed out after the
// given duration; zero falls back to defaultPeerTimeout.
func newPeerTable(timeout time.Duration) *peerTable {
	if timeout <= 0 {
		timeout = defaultPeerTimeout
	}
	return &peerTable{peers: make(map[string]*peerRecord), timeout: timeout}
}

// Touch records (or refreshes) activity from clientID, returning true if
// this is a newly observed peer.
func (t *peerTable) Touch(clientID string, now time.Time) (isNew bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if rec, ok := t.peers[clientID]; ok {
		rec.lastSeenAt = now
		return false
	}
	t.peers[clientID] = &peerRecord{clientID: clientID, lastSeenAt: now}
	return true
}

// Remove deletes clientID from the table, reporting whether it was present.
func (t *peerTable) Remove(clientID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.peers[clientID]; !ok {
		return false
	}
	delete(t.peers, clientID)
	return true
}

// TimedOut returns the IDs of peers whose last activity is older than the
// table's configured timeout relative to now.
func (t *peerTable) TimedOut(now time.Time) []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	var stale []string
	for id, rec := range t.peers {
		if now.Sub(rec.lastSeenAt) > t.timeout {
			stale = append(stale, id)
		}
	}
	return stale
}

// DrainAll removes every tracked peer and returns their ids, for emitting a
// final peer-left per id on orderly session shutdown.
func (t *peerTable) DrainAll() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	ids := make([]string, 0, len(t.peers))
	for id := range t.peers {
		ids = append(ids, id)
	}
	t.peers = make(map[string]*peerRecord)
	return ids
}

// Has reports whether clientID is currently tracked.
func (t *peerTable) Has(clientID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.peers[clientID]
	return ok
}

// Len reports the number of tracked peers.
func (t *peerTable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.peers)
}
