package conference

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPeerTable_TouchReportsNewOnce(t *testing.T) {
	pt := newPeerTable(0)
	now := time.Now()

	isNew := pt.Touch("peer-a", now)
	assert.True(t, isNew)

	isNew = pt.Touch("peer-a", now.Add(time.Second))
	assert.False(t, isNew)
	assert.Equal(t, 1, pt.Len())
}

func TestPeerTable_TimeoutBoundary(t *testing.T) {
	pt := newPeerTable(0)
	start := time.Now()
	pt.Touch("peer-a", start)

	// Exactly at the boundary: not yet timed out (strictly greater-than).
	atBoundary := start.Add(defaultPeerTimeout)
	assert.Empty(t, pt.TimedOut(atBoundary))

	// One tick past the boundary: timed out.
	pastBoundary := start.Add(defaultPeerTimeout + time.Millisecond)
	assert.Equal(t, []string{"peer-a"}, pt.TimedOut(pastBoundary))
}

func TestPeerTable_RemoveAndHas(t *testing.T) {
	pt := newPeerTable(0)
	pt.Touch("peer-a", time.Now())
	assert.True(t, pt.Has("peer-a"))

	removed := pt.Remove("peer-a")
	assert.True(t, removed)
	assert.False(t, pt.Has("peer-a"))

	removed = pt.Remove("peer-a")
	assert.False(t, removed)
}

func TestPeerTable_DrainAllReturnsAndClearsEveryPeer(t *testing.T) {
	pt := newPeerTable(0)
	pt.Touch("peer-a", time.Now())
	pt.Touch("peer-b", time.Now())

	ids := pt.DrainAll()
	assert.ElementsMatch(t, []string{"peer-a", "peer-b"}, ids)
	assert.Equal(t, 0, pt.Len())

	assert.Empty(t, pt.DrainAll())
}
