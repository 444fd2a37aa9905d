package agent

import (
	"sync"
	"time"

	"screenrelay/pkg/logger"
	"screenrelay/pkg/protocol"
)

// State is the supervisor's view of the channel
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
)

// Supervisor owns the agent's reconnect policy and the bounded queue of
// captures taken while the channel is down. Reconnect delay grows from
// baseDelay up to maxDelay and resets on a successful connection.
type Supervisor struct {
	mu       sync.Mutex
	state    State
	queue    []*protocol.Frame
	maxQueue int

	baseDelay time.Duration
	maxDelay  time.Duration
	attempt   int

	log *logger.Logger
}

// NewSupervisor creates a supervisor. maxQueue bounds offline captures;
// when the bound is hit the oldest capture is dropped.
func NewSupervisor(baseDelay, maxDelay time.Duration, maxQueue int) *Supervisor {
	if baseDelay <= 0 {
		baseDelay = 2 * time.Second
	}
	if maxDelay < baseDelay {
		maxDelay = baseDelay
	}
	if maxQueue < 1 {
		maxQueue = 32
	}
	return &Supervisor{
		state:     StateDisconnected,
		maxQueue:  maxQueue,
		baseDelay: baseDelay,
		maxDelay:  maxDelay,
		log:       logger.Get(),
	}
}

// State returns the current channel state
func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// MarkConnecting records a dial in progress
func (s *Supervisor) MarkConnecting() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = StateConnecting
}

// MarkConnected records an established channel and resets the backoff
func (s *Supervisor) MarkConnected() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = StateConnected
	s.attempt = 0
}

// MarkDisconnected records a lost or failed channel
func (s *Supervisor) MarkDisconnected() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = StateDisconnected
}

// NextDelay returns how long to wait before the next dial. Each call
// doubles the previous delay up to the bound.
func (s *Supervisor) NextDelay() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	delay := s.baseDelay << s.attempt
	if delay > s.maxDelay || delay <= 0 {
		delay = s.maxDelay
	}
	if delay < s.maxDelay {
		s.attempt++
	}
	return delay
}

// Enqueue holds a capture frame for delivery after reconnect. When the
// queue is full the oldest frame is dropped to make room.
func (s *Supervisor) Enqueue(f *protocol.Frame) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.queue) >= s.maxQueue {
		dropped := s.queue[0]
		s.queue = s.queue[1:]
		s.log.WarnWith("offline capture queue full, dropping oldest",
			"queued_at", dropped.Timestamp, "max", s.maxQueue)
	}
	s.queue = append(s.queue, f)
}

// Drain returns and clears the queued frames in capture order
func (s *Supervisor) Drain() []*protocol.Frame {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := s.queue
	s.queue = nil
	return out
}

// QueueLen returns the number of frames waiting for reconnect
func (s *Supervisor) QueueLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}
