package relay

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// RequestStatus is the lifecycle state of a capture request
type RequestStatus string

const (
	StatusPending  RequestStatus = "pending"
	StatusAnswered RequestStatus = "answered"
	StatusOrphaned RequestStatus = "orphaned"
)

// CaptureRequest is one pending screenshot awaiting an operator answer
type CaptureRequest struct {
	ID              string        `json:"requestId"`
	OriginSessionID string        `json:"originClientSessionId"`
	CreatedAt       time.Time     `json:"createdAt"`
	Status          RequestStatus `json:"status"`
	// StorageRef points at the archived payload, when a persistence sink
	// is configured. Opaque to the ledger.
	StorageRef string `json:"storageRef,omitempty"`

	seq uint64
}

// RequestLedger tracks every pending capture request keyed by request ID.
// IDs combine a strictly increasing sequence with a random suffix, so they
// are collision-free under concurrent Open calls and orderable by prefix.
type RequestLedger struct {
	mu      sync.Mutex
	seq     uint64
	pending map[string]*CaptureRequest
}

// NewRequestLedger creates an empty ledger
func NewRequestLedger() *RequestLedger {
	return &RequestLedger{
		pending: make(map[string]*CaptureRequest),
	}
}

// Open allocates a fresh request ID for a capture from the given session and
// stores a pending entry.
func (l *RequestLedger) Open(originSessionID string) string {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.seq++
	suffix := strings.SplitN(uuid.NewString(), "-", 2)[0]
	id := fmt.Sprintf("r%012d-%s", l.seq, suffix)

	l.pending[id] = &CaptureRequest{
		ID:              id,
		OriginSessionID: originSessionID,
		CreatedAt:       time.Now(),
		Status:          StatusPending,
		seq:             l.seq,
	}
	return id
}

// Resolve looks up a pending request by ID. The returned value is a copy;
// mutations go through the ledger API.
func (l *RequestLedger) Resolve(requestID string) (CaptureRequest, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	req, ok := l.pending[requestID]
	if !ok {
		return CaptureRequest{}, false
	}
	return *req, true
}

// SetStorageRef attaches the persistence sink's reference to a pending entry
func (l *RequestLedger) SetStorageRef(requestID, ref string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if req, ok := l.pending[requestID]; ok {
		req.StorageRef = ref
	}
}

// Close marks a request answered and removes it. Idempotent: closing an
// absent or already-closed ID is a no-op.
func (l *RequestLedger) Close(requestID string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if req, ok := l.pending[requestID]; ok {
		req.Status = StatusAnswered
		delete(l.pending, requestID)
	}
}

// Sweep evicts pending entries older than maxAge whose origin session is no
// longer alive, returning the evicted IDs in creation order.
func (l *RequestLedger) Sweep(maxAge time.Duration, sessionAlive func(clientSessionID string) bool) []string {
	cutoff := time.Now().Add(-maxAge)

	l.mu.Lock()
	defer l.mu.Unlock()

	var stale []*CaptureRequest
	for _, req := range l.pending {
		if req.CreatedAt.Before(cutoff) && !sessionAlive(req.OriginSessionID) {
			stale = append(stale, req)
		}
	}
	sort.Slice(stale, func(i, j int) bool { return stale[i].seq < stale[j].seq })

	ids := make([]string, 0, len(stale))
	for _, req := range stale {
		req.Status = StatusOrphaned
		delete(l.pending, req.ID)
		ids = append(ids, req.ID)
	}
	return ids
}

// PendingForSession returns copies of every pending request opened by a
// session, in creation order. Used to replay server-held context when the
// session reconnects.
func (l *RequestLedger) PendingForSession(clientSessionID string) []CaptureRequest {
	l.mu.Lock()
	defer l.mu.Unlock()

	var out []CaptureRequest
	for _, req := range l.pending {
		if req.OriginSessionID == clientSessionID {
			out = append(out, *req)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].seq < out[j].seq })
	return out
}

// Pending returns copies of all pending requests in creation order
func (l *RequestLedger) Pending() []CaptureRequest {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]CaptureRequest, 0, len(l.pending))
	for _, req := range l.pending {
		out = append(out, *req)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].seq < out[j].seq })
	return out
}

// Len returns the number of pending requests
func (l *RequestLedger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.pending)
}
