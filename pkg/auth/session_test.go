package auth

import (
	"testing"
	"time"
)

func TestCreateAndGetSession(t *testing.T) {
	sm := NewSessionManager(time.Hour)

	session, err := sm.CreateSession("alice")
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	if session.ID == "" {
		t.Error("session ID should not be empty")
	}
	if session.Username != "alice" {
		t.Errorf("expected alice, got %s", session.Username)
	}

	got, ok := sm.GetSession(session.ID)
	if !ok {
		t.Fatal("GetSession should find the session")
	}
	if got.Username != "alice" {
		t.Errorf("expected alice, got %s", got.Username)
	}
}

func TestGetSessionUnknown(t *testing.T) {
	sm := NewSessionManager(time.Hour)

	if _, ok := sm.GetSession("nope"); ok {
		t.Error("GetSession should not find an unknown session")
	}
}

func TestSessionIDsUnique(t *testing.T) {
	sm := NewSessionManager(time.Hour)

	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		s, err := sm.CreateSession("bob")
		if err != nil {
			t.Fatal(err)
		}
		if seen[s.ID] {
			t.Fatalf("duplicate session ID: %s", s.ID)
		}
		seen[s.ID] = true
	}
}

func TestExpiredSessionRejected(t *testing.T) {
	sm := NewSessionManager(-time.Minute)

	session, err := sm.CreateSession("carol")
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := sm.GetSession(session.ID); ok {
		t.Error("expired session should not be returned")
	}
}

func TestRefreshSession(t *testing.T) {
	sm := NewSessionManager(time.Hour)

	session, _ := sm.CreateSession("dave")
	before := session.ExpiresAt

	time.Sleep(10 * time.Millisecond)
	if !sm.RefreshSession(session.ID) {
		t.Fatal("RefreshSession should succeed for a live session")
	}
	got, _ := sm.GetSession(session.ID)
	if !got.ExpiresAt.After(before) {
		t.Error("refresh should extend expiry")
	}

	if sm.RefreshSession("unknown") {
		t.Error("RefreshSession should fail for an unknown session")
	}
}

func TestDeleteSession(t *testing.T) {
	sm := NewSessionManager(time.Hour)

	session, _ := sm.CreateSession("erin")
	sm.DeleteSession(session.ID)

	if _, ok := sm.GetSession(session.ID); ok {
		t.Error("deleted session should not be returned")
	}
}

func TestGetAllSessionsSkipsExpired(t *testing.T) {
	sm := NewSessionManager(time.Hour)
	sm.CreateSession("alice")
	sm.CreateSession("bob")

	// Insert an already-expired session directly
	sm.mu.Lock()
	sm.sessions["old"] = &Session{
		ID:        "old",
		Username:  "zed",
		CreatedAt: time.Now().Add(-2 * time.Hour),
		ExpiresAt: time.Now().Add(-time.Hour),
	}
	sm.mu.Unlock()

	live := sm.GetAllSessions()
	if len(live) != 2 {
		t.Errorf("expected 2 live sessions, got %d", len(live))
	}
}

func TestHashPasswordRoundTrip(t *testing.T) {
	hash, err := HashPassword("hunter2")
	if err != nil {
		t.Fatal(err)
	}
	if hash == "hunter2" {
		t.Error("hash should not equal the password")
	}
}
