// Package protocol provides the wire frames exchanged over the persistent
// WebSocket channel between capture agents, operator consoles, and the relay
// server. It defines the frame structure, role and error-reason constants,
// and utilities for building and validating frames.
package protocol
