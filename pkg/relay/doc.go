// Package relay implements the real-time correlation core of the server:
// tracking live connections, assigning request identifiers to captures, and
// routing operator answers back to the originating agent session.
//
// The package is organized around three owned stores and a dispatcher:
//
// ConnectionRegistry tracks every live transport connection, classifies it
// as client or admin once its handshake arrives, and maintains the binding
// from a client session identity to its current connection. A session may
// reconnect and be re-bound; the previous connection is superseded, never
// erased by a stale close.
//
// RequestLedger assigns a process-unique identifier to every inbound
// capture and keeps the pending entry until the matching answer is
// delivered or the entry is reclaimed by an age-based sweep.
//
// Router validates inbound frames and drives both stores: captures are
// tagged and fanned out to every operator connection, answers are matched
// to their pending request by identifier and forwarded to exactly the
// originating session's current connection.
//
// All mutations to the registry and ledger are serialized behind a mutex
// scoped to each store. No routing operation blocks on network I/O; sends
// go through the non-blocking Sender interface and failures are handled
// where they surface.
package relay
