package relay

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenAssignsDistinctIDs(t *testing.T) {
	l := NewRequestLedger()

	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := l.Open("s1")
		require.False(t, seen[id], "request ID %s assigned twice", id)
		seen[id] = true
	}
}

func TestOpenConcurrentUniqueness(t *testing.T) {
	l := NewRequestLedger()

	const workers = 50
	const perWorker = 100

	ids := make(chan string, workers*perWorker)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				ids <- l.Open("s1")
			}
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[string]bool)
	for id := range ids {
		require.False(t, seen[id], "collision on %s", id)
		seen[id] = true
	}
	assert.Len(t, seen, workers*perWorker)
}

func TestResolvePending(t *testing.T) {
	l := NewRequestLedger()
	id := l.Open("s1")

	req, ok := l.Resolve(id)
	require.True(t, ok)
	assert.Equal(t, id, req.ID)
	assert.Equal(t, "s1", req.OriginSessionID)
	assert.Equal(t, StatusPending, req.Status)
	assert.False(t, req.CreatedAt.IsZero())
}

func TestResolveAbsent(t *testing.T) {
	l := NewRequestLedger()
	_, ok := l.Resolve("nope")
	assert.False(t, ok)
}

func TestCloseIdempotent(t *testing.T) {
	l := NewRequestLedger()
	id := l.Open("s1")

	l.Close(id)
	_, ok := l.Resolve(id)
	assert.False(t, ok)

	// Second close of the same ID and a close of a never-existing ID are
	// both no-ops.
	l.Close(id)
	l.Close("never-existed")
	assert.Equal(t, 0, l.Len())
}

func TestSetStorageRef(t *testing.T) {
	l := NewRequestLedger()
	id := l.Open("s1")

	l.SetStorageRef(id, "capture:"+id)
	req, ok := l.Resolve(id)
	require.True(t, ok)
	assert.Equal(t, "capture:"+id, req.StorageRef)

	// Absent ID is a no-op
	l.SetStorageRef("nope", "ref")
}

func TestSweepEvictsOrphansExactlyOnce(t *testing.T) {
	l := NewRequestLedger()
	id := l.Open("gone-session")

	// Age the entry past the cutoff
	l.mu.Lock()
	l.pending[id].CreatedAt = time.Now().Add(-time.Hour)
	l.mu.Unlock()

	dead := func(string) bool { return false }

	swept := l.Sweep(30*time.Minute, dead)
	require.Equal(t, []string{id}, swept)
	assert.Equal(t, 0, l.Len())

	// A second sweep finds nothing
	assert.Empty(t, l.Sweep(30*time.Minute, dead))
}

func TestSweepSparesLiveSessions(t *testing.T) {
	l := NewRequestLedger()
	id := l.Open("live-session")

	l.mu.Lock()
	l.pending[id].CreatedAt = time.Now().Add(-time.Hour)
	l.mu.Unlock()

	swept := l.Sweep(30*time.Minute, func(sid string) bool { return sid == "live-session" })
	assert.Empty(t, swept)
	assert.Equal(t, 1, l.Len())
}

func TestSweepSparesYoungRequests(t *testing.T) {
	l := NewRequestLedger()
	l.Open("gone-session")

	swept := l.Sweep(30*time.Minute, func(string) bool { return false })
	assert.Empty(t, swept)
	assert.Equal(t, 1, l.Len())
}

func TestSweepReturnsCreationOrder(t *testing.T) {
	l := NewRequestLedger()
	first := l.Open("s1")
	second := l.Open("s2")
	third := l.Open("s1")

	l.mu.Lock()
	for _, req := range l.pending {
		req.CreatedAt = time.Now().Add(-time.Hour)
	}
	l.mu.Unlock()

	swept := l.Sweep(time.Minute, func(string) bool { return false })
	assert.Equal(t, []string{first, second, third}, swept)
}

func TestPendingForSessionOrdered(t *testing.T) {
	l := NewRequestLedger()
	a := l.Open("s1")
	l.Open("s2")
	b := l.Open("s1")

	pending := l.PendingForSession("s1")
	require.Len(t, pending, 2)
	assert.Equal(t, a, pending[0].ID)
	assert.Equal(t, b, pending[1].ID)
}

func TestLen(t *testing.T) {
	l := NewRequestLedger()
	assert.Equal(t, 0, l.Len())
	l.Open("s1")
	l.Open("s2")
	assert.Equal(t, 2, l.Len())
}
