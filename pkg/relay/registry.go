package relay

import (
	"sort"
	"sync"
	"time"

	"screenrelay/pkg/protocol"
)

// Sender delivers a single frame to a live connection. Implementations must
// not block; a full outbound queue returns ErrSendBufferFull instead.
type Sender interface {
	Send(f *protocol.Frame) error
}

// conn is a live transport endpoint tracked by the registry
type conn struct {
	id            uint64
	role          protocol.Role
	sessionID     string // set once identified as client
	establishedAt time.Time
	sender        Sender
	// observed is the set of client sessions ever forwarded to this
	// connection; only populated for admins
	observed map[string]struct{}
}

// session is the logical identity of one agent, independent of any single
// connection. It survives unbinding so lastSeenAt stays available.
type session struct {
	connID     uint64
	bound      bool
	lastSeenAt time.Time
}

// SessionInfo is a diagnostic snapshot of one client session
type SessionInfo struct {
	ClientSessionID string    `json:"clientSessionId"`
	Connected       bool      `json:"connected"`
	LastSeenAt      time.Time `json:"lastSeenAt"`
}

// ConnectionRegistry tracks every live connection and the binding from a
// client session identity to its current connection. All mutations are
// serialized behind a single mutex.
type ConnectionRegistry struct {
	mu       sync.Mutex
	nextID   uint64
	conns    map[uint64]*conn
	sessions map[string]*session
}

// NewConnectionRegistry creates an empty registry
func NewConnectionRegistry() *ConnectionRegistry {
	return &ConnectionRegistry{
		conns:    make(map[uint64]*conn),
		sessions: make(map[string]*session),
	}
}

// Register admits a new transport endpoint in the unknown role and returns
// its process-unique connection ID.
func (r *ConnectionRegistry) Register(sender Sender) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	id := r.nextID
	r.conns[id] = &conn{
		id:            id,
		role:          protocol.RoleUnknown,
		establishedAt: time.Now(),
		sender:        sender,
	}
	return id
}

// Identify sets the role of a connection on receipt of its handshake. For
// clients it binds clientSessionID to this connection, superseding any prior
// binding for the same session; the superseded connection is left open but
// no longer resolvable. A repeated handshake with the same role is accepted
// (reconnecting parties replay their handshake); a conflicting role is not.
func (r *ConnectionRegistry) Identify(connID uint64, role protocol.Role, clientSessionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.conns[connID]
	if !ok {
		return ErrConnNotFound
	}
	if c.role != protocol.RoleUnknown && c.role != role {
		return ErrAlreadyIdentified
	}

	c.role = role
	switch role {
	case protocol.RoleAdmin:
		if c.observed == nil {
			c.observed = make(map[string]struct{})
		}
	case protocol.RoleClient:
		if c.sessionID != "" && c.sessionID != clientSessionID {
			// Re-handshake under a new identity. Release the abandoned
			// session's binding so it can go stale and be swept.
			if old, ok := r.sessions[c.sessionID]; ok && old.bound && old.connID == connID {
				old.bound = false
				old.connID = 0
				old.lastSeenAt = time.Now()
			}
		}
		c.sessionID = clientSessionID
		s, ok := r.sessions[clientSessionID]
		if !ok {
			s = &session{}
			r.sessions[clientSessionID] = s
		}
		s.connID = connID
		s.bound = true
		s.lastSeenAt = time.Now()
	}
	return nil
}

// Resolve returns the connection currently bound to a client session
func (r *ConnectionRegistry) Resolve(clientSessionID string) (uint64, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[clientSessionID]
	if !ok || !s.bound {
		return 0, false
	}
	return s.connID, true
}

// Sender returns the sender for a live connection
func (r *ConnectionRegistry) Sender(connID uint64) (Sender, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.conns[connID]
	if !ok {
		return nil, false
	}
	return c.sender, true
}

// Role returns the identified role of a connection
func (r *ConnectionRegistry) Role(connID uint64) (protocol.Role, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.conns[connID]
	if !ok {
		return protocol.RoleUnknown, false
	}
	return c.role, true
}

// SessionOf returns the client session bound to a connection
func (r *ConnectionRegistry) SessionOf(connID uint64) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.conns[connID]
	if !ok || c.sessionID == "" {
		return "", false
	}
	return c.sessionID, true
}

// Remove drops a connection on channel close. Removal is applied by
// connection ID: the session binding is cleared only if this connection is
// still the current one, so a close racing a supersede cannot erase the
// newer binding. The session record itself is kept for diagnostics.
func (r *ConnectionRegistry) Remove(connID uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.conns[connID]
	if !ok {
		return
	}
	delete(r.conns, connID)

	if c.sessionID == "" {
		return
	}
	if s, ok := r.sessions[c.sessionID]; ok && s.bound && s.connID == connID {
		s.bound = false
		s.connID = 0
		s.lastSeenAt = time.Now()
	}
}

// AdminConns returns a stable snapshot of every identified admin connection,
// ordered by connection ID for deterministic fan-out.
func (r *ConnectionRegistry) AdminConns() []uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := make([]uint64, 0, len(r.conns))
	for id, c := range r.conns {
		if c.role == protocol.RoleAdmin {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// RecordObserved notes that a client session has been forwarded to an admin
// connection. The pool is observational only; it never locks a session to a
// single operator.
func (r *ConnectionRegistry) RecordObserved(adminConnID uint64, clientSessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.conns[adminConnID]
	if !ok || c.role != protocol.RoleAdmin {
		return
	}
	c.observed[clientSessionID] = struct{}{}
}

// ObservedSessions returns the sessions ever forwarded to an admin connection
func (r *ConnectionRegistry) ObservedSessions(adminConnID uint64) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.conns[adminConnID]
	if !ok || c.observed == nil {
		return nil
	}
	out := make([]string, 0, len(c.observed))
	for sid := range c.observed {
		out = append(out, sid)
	}
	sort.Strings(out)
	return out
}

// TouchSession refreshes a session's lastSeenAt, typically on heartbeat
func (r *ConnectionRegistry) TouchSession(clientSessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.sessions[clientSessionID]; ok {
		s.lastSeenAt = time.Now()
	}
}

// SessionAlive reports whether a session currently has a live connection
func (r *ConnectionRegistry) SessionAlive(clientSessionID string) bool {
	_, ok := r.Resolve(clientSessionID)
	return ok
}

// Counts returns the number of identified client, admin, and unidentified
// connections.
func (r *ConnectionRegistry) Counts() (clients, admins, unknown int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, c := range r.conns {
		switch c.role {
		case protocol.RoleClient:
			clients++
		case protocol.RoleAdmin:
			admins++
		default:
			unknown++
		}
	}
	return
}

// Sessions returns a diagnostic snapshot of all known client sessions,
// connected or not, most recently seen first.
func (r *ConnectionRegistry) Sessions() []SessionInfo {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]SessionInfo, 0, len(r.sessions))
	for sid, s := range r.sessions {
		out = append(out, SessionInfo{
			ClientSessionID: sid,
			Connected:       s.bound,
			LastSeenAt:      s.lastSeenAt,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastSeenAt.After(out[j].LastSeenAt) })
	return out
}
