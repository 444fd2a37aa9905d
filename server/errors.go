package server

import "errors"

var (
	// ErrServerStarted is returned when Start is called twice
	ErrServerStarted = errors.New("server already started")

	// ErrConnClosed is returned when queueing a frame on a closed connection
	ErrConnClosed = errors.New("connection closed")
)
