package relay

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"screenrelay/pkg/protocol"
)

// fakeSender records frames and can be made to fail
type fakeSender struct {
	mu      sync.Mutex
	frames  []*protocol.Frame
	failing bool
	closed  bool
}

func (s *fakeSender) Send(f *protocol.Frame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failing {
		return ErrSendBufferFull
	}
	cp := *f
	s.frames = append(s.frames, &cp)
	return nil
}

func (s *fakeSender) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *fakeSender) sent() []*protocol.Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*protocol.Frame, len(s.frames))
	copy(out, s.frames)
	return out
}

func (s *fakeSender) last() *protocol.Frame {
	frames := s.sent()
	if len(frames) == 0 {
		return nil
	}
	return frames[len(frames)-1]
}

func TestRegisterAssignsUniqueIDs(t *testing.T) {
	r := NewConnectionRegistry()

	seen := make(map[uint64]bool)
	for i := 0; i < 100; i++ {
		id := r.Register(&fakeSender{})
		require.False(t, seen[id], "connection ID %d assigned twice", id)
		seen[id] = true
	}
}

func TestIdentifyAndResolve(t *testing.T) {
	r := NewConnectionRegistry()
	id := r.Register(&fakeSender{})

	require.NoError(t, r.Identify(id, protocol.RoleClient, "s1"))

	got, ok := r.Resolve("s1")
	require.True(t, ok)
	assert.Equal(t, id, got)

	role, ok := r.Role(id)
	require.True(t, ok)
	assert.Equal(t, protocol.RoleClient, role)

	sid, ok := r.SessionOf(id)
	require.True(t, ok)
	assert.Equal(t, "s1", sid)
}

func TestIdentifyUnknownConnection(t *testing.T) {
	r := NewConnectionRegistry()
	assert.ErrorIs(t, r.Identify(42, protocol.RoleClient, "s1"), ErrConnNotFound)
}

func TestIdentifyConflictingRole(t *testing.T) {
	r := NewConnectionRegistry()
	id := r.Register(&fakeSender{})

	require.NoError(t, r.Identify(id, protocol.RoleAdmin, ""))
	assert.ErrorIs(t, r.Identify(id, protocol.RoleClient, "s1"), ErrAlreadyIdentified)
}

func TestRepeatedHandshakeSameRoleAccepted(t *testing.T) {
	r := NewConnectionRegistry()
	id := r.Register(&fakeSender{})

	require.NoError(t, r.Identify(id, protocol.RoleClient, "s1"))
	require.NoError(t, r.Identify(id, protocol.RoleClient, "s1"))
}

func TestRehandshakeNewSessionReleasesOldBinding(t *testing.T) {
	r := NewConnectionRegistry()
	c1 := r.Register(&fakeSender{})

	require.NoError(t, r.Identify(c1, protocol.RoleClient, "s1"))
	require.NoError(t, r.Identify(c1, protocol.RoleClient, "s2"))

	// The abandoned session must not keep reporting a live connection
	_, ok := r.Resolve("s1")
	assert.False(t, ok)
	assert.False(t, r.SessionAlive("s1"))

	got, ok := r.Resolve("s2")
	require.True(t, ok)
	assert.Equal(t, c1, got)

	// Closing the connection unbinds the current session too
	r.Remove(c1)
	assert.False(t, r.SessionAlive("s2"))
}

func TestRebindSupersedesDoesNotErase(t *testing.T) {
	r := NewConnectionRegistry()
	c1 := r.Register(&fakeSender{})
	c2 := r.Register(&fakeSender{})

	require.NoError(t, r.Identify(c1, protocol.RoleClient, "s1"))
	require.NoError(t, r.Identify(c2, protocol.RoleClient, "s1"))

	// A close of the superseded connection must not erase the new binding
	r.Remove(c1)

	got, ok := r.Resolve("s1")
	require.True(t, ok, "binding must survive removal of the superseded connection")
	assert.Equal(t, c2, got)
}

func TestRemoveCurrentBindingUnbinds(t *testing.T) {
	r := NewConnectionRegistry()
	c1 := r.Register(&fakeSender{})
	require.NoError(t, r.Identify(c1, protocol.RoleClient, "s1"))

	r.Remove(c1)

	_, ok := r.Resolve("s1")
	assert.False(t, ok)
	assert.False(t, r.SessionAlive("s1"))

	// The session record is preserved for diagnostics
	sessions := r.Sessions()
	require.Len(t, sessions, 1)
	assert.Equal(t, "s1", sessions[0].ClientSessionID)
	assert.False(t, sessions[0].Connected)
	assert.False(t, sessions[0].LastSeenAt.IsZero())
}

func TestRemoveUnknownConnectionIsNoop(t *testing.T) {
	r := NewConnectionRegistry()
	r.Remove(999)
}

func TestAdminConnsSnapshot(t *testing.T) {
	r := NewConnectionRegistry()
	a1 := r.Register(&fakeSender{})
	c1 := r.Register(&fakeSender{})
	a2 := r.Register(&fakeSender{})

	require.NoError(t, r.Identify(a1, protocol.RoleAdmin, ""))
	require.NoError(t, r.Identify(c1, protocol.RoleClient, "s1"))
	require.NoError(t, r.Identify(a2, protocol.RoleAdmin, ""))

	admins := r.AdminConns()
	assert.Equal(t, []uint64{a1, a2}, admins)
}

func TestCounts(t *testing.T) {
	r := NewConnectionRegistry()
	a := r.Register(&fakeSender{})
	c := r.Register(&fakeSender{})
	r.Register(&fakeSender{}) // stays unknown

	require.NoError(t, r.Identify(a, protocol.RoleAdmin, ""))
	require.NoError(t, r.Identify(c, protocol.RoleClient, "s1"))

	clients, admins, unknown := r.Counts()
	assert.Equal(t, 1, clients)
	assert.Equal(t, 1, admins)
	assert.Equal(t, 1, unknown)
}

func TestObservedSessions(t *testing.T) {
	r := NewConnectionRegistry()
	a := r.Register(&fakeSender{})
	require.NoError(t, r.Identify(a, protocol.RoleAdmin, ""))

	r.RecordObserved(a, "s2")
	r.RecordObserved(a, "s1")
	r.RecordObserved(a, "s2") // duplicate

	assert.Equal(t, []string{"s1", "s2"}, r.ObservedSessions(a))
}

func TestRecordObservedIgnoresNonAdmin(t *testing.T) {
	r := NewConnectionRegistry()
	c := r.Register(&fakeSender{})
	require.NoError(t, r.Identify(c, protocol.RoleClient, "s1"))

	r.RecordObserved(c, "s1")
	assert.Empty(t, r.ObservedSessions(c))
}

func TestConcurrentRegisterAndIdentify(t *testing.T) {
	r := NewConnectionRegistry()

	var wg sync.WaitGroup
	ids := make(chan uint64, 200)
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ids <- r.Register(&fakeSender{})
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[uint64]bool)
	for id := range ids {
		require.False(t, seen[id])
		seen[id] = true
	}
	assert.Len(t, seen, 200)
}
