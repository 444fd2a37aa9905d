package storage

import (
	"path/filepath"
	"testing"
	"time"

	"screenrelay/pkg/protocol"
)

func newTestStore(t *testing.T) Store {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSaveAndLoadCapture(t *testing.T) {
	store := newTestStore(t)

	payload := []byte("fake-png-bytes")
	meta := &protocol.CaptureMeta{Format: "png", Width: 1920, Height: 1080}

	ref, err := store.SaveCapture("r000000000001-abcd1234", "session-1", payload, meta)
	if err != nil {
		t.Fatalf("SaveCapture failed: %v", err)
	}
	if ref == "" {
		t.Error("expected non-empty storage reference")
	}

	got, gotMeta, err := store.LoadCapture("r000000000001-abcd1234")
	if err != nil {
		t.Fatalf("LoadCapture failed: %v", err)
	}
	if string(got) != string(payload) {
		t.Errorf("payload mismatch: got %q", got)
	}
	if gotMeta == nil || gotMeta.Format != "png" || gotMeta.Width != 1920 {
		t.Errorf("meta mismatch: %+v", gotMeta)
	}
}

func TestLoadCaptureNotFound(t *testing.T) {
	store := newTestStore(t)

	_, _, err := store.LoadCapture("missing")
	if err != ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestSaveCaptureNilMeta(t *testing.T) {
	store := newTestStore(t)

	if _, err := store.SaveCapture("r1", "s1", []byte("x"), nil); err != nil {
		t.Fatalf("SaveCapture with nil meta failed: %v", err)
	}
	_, meta, err := store.LoadCapture("r1")
	if err != nil {
		t.Fatalf("LoadCapture failed: %v", err)
	}
	if meta != nil {
		t.Errorf("expected nil meta, got %+v", meta)
	}
}

func TestDeleteCapture(t *testing.T) {
	store := newTestStore(t)

	if _, err := store.SaveCapture("r1", "s1", []byte("x"), nil); err != nil {
		t.Fatal(err)
	}
	if err := store.DeleteCapture("r1"); err != nil {
		t.Fatalf("DeleteCapture failed: %v", err)
	}
	if _, _, err := store.LoadCapture("r1"); err != ErrNotFound {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestCountCaptures(t *testing.T) {
	store := newTestStore(t)

	for _, id := range []string{"r1", "r2", "r3"} {
		if _, err := store.SaveCapture(id, "s1", []byte("x"), nil); err != nil {
			t.Fatal(err)
		}
	}
	count, err := store.CountCaptures()
	if err != nil {
		t.Fatal(err)
	}
	if count != 3 {
		t.Errorf("expected 3 captures, got %d", count)
	}
}

func TestPurgeCaptures(t *testing.T) {
	store := newTestStore(t)

	if _, err := store.SaveCapture("r-fresh", "s1", []byte("x"), nil); err != nil {
		t.Fatal(err)
	}

	// Nothing older than an hour yet
	purged, err := store.PurgeCaptures(time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if purged != 0 {
		t.Errorf("expected 0 purged, got %d", purged)
	}

	count, _ := store.CountCaptures()
	if count != 1 {
		t.Errorf("expected 1 capture to remain, got %d", count)
	}
}

func TestOperatorLifecycle(t *testing.T) {
	store := newTestStore(t)

	if err := store.CreateOperator("alice", "hash-a"); err != nil {
		t.Fatalf("CreateOperator failed: %v", err)
	}

	exists, err := store.OperatorExists("alice")
	if err != nil || !exists {
		t.Errorf("expected alice to exist, got %v %v", exists, err)
	}

	op, hash, err := store.GetOperator("alice")
	if err != nil {
		t.Fatalf("GetOperator failed: %v", err)
	}
	if op.Username != "alice" || hash != "hash-a" {
		t.Errorf("unexpected operator %+v hash %q", op, hash)
	}
	if op.LastLogin != nil {
		t.Error("expected no last login for new operator")
	}

	if err := store.UpdateOperatorLastLogin("alice"); err != nil {
		t.Fatalf("UpdateOperatorLastLogin failed: %v", err)
	}
	op, _, err = store.GetOperator("alice")
	if err != nil {
		t.Fatal(err)
	}
	if op.LastLogin == nil {
		t.Error("expected last login to be set")
	}

	if err := store.DeleteOperator("alice"); err != nil {
		t.Fatalf("DeleteOperator failed: %v", err)
	}
	if _, _, err := store.GetOperator("alice"); err != ErrNotFound {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestDuplicateOperatorRejected(t *testing.T) {
	store := newTestStore(t)

	if err := store.CreateOperator("bob", "h1"); err != nil {
		t.Fatal(err)
	}
	if err := store.CreateOperator("bob", "h2"); err == nil {
		t.Error("expected unique constraint violation for duplicate operator")
	}
}

func TestGetAllOperators(t *testing.T) {
	store := newTestStore(t)

	for _, name := range []string{"carol", "alice", "bob"} {
		if err := store.CreateOperator(name, "h"); err != nil {
			t.Fatal(err)
		}
	}
	ops, err := store.GetAllOperators()
	if err != nil {
		t.Fatal(err)
	}
	if len(ops) != 3 {
		t.Fatalf("expected 3 operators, got %d", len(ops))
	}
	if ops[0].Username != "alice" {
		t.Errorf("expected alphabetical order, got %s first", ops[0].Username)
	}
}
