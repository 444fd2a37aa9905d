// Package storage provides persistent data storage abstraction for the
// relay server.
//
// This package defines interfaces and implementations for archiving capture
// payloads and storing operator accounts. The primary implementation uses
// SQLite for reliability and simplicity; a MySQL backend is available behind
// the same interface.
//
// Usage:
//
//	store, err := storage.NewSQLiteStore("./relay.db")
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer store.Close()
//
//	ref, err := store.SaveCapture(requestID, sessionID, payload, meta)
package storage
