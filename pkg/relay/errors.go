package relay

import "errors"

var (
	// ErrConnNotFound is returned when a connection ID is not registered
	ErrConnNotFound = errors.New("connection not found")

	// ErrSendBufferFull is returned by senders when a connection's
	// outbound queue is full
	ErrSendBufferFull = errors.New("send buffer full")

	// ErrAlreadyIdentified is returned when a connection sends a second
	// handshake with a conflicting role
	ErrAlreadyIdentified = errors.New("connection already identified")
)
