package protocol

import (
	"strings"
	"testing"
)

func TestParseFrameClassifiesTypelessHandshake(t *testing.T) {
	f, err := ParseFrame([]byte(`{"role":"client","clientSessionId":"s1"}`))
	if err != nil {
		t.Fatalf("ParseFrame failed: %v", err)
	}
	if f.Type != FrameTypeHandshake {
		t.Errorf("expected handshake, got %q", f.Type)
	}
	if f.ClientSessionID != "s1" {
		t.Errorf("session id lost: %q", f.ClientSessionID)
	}
}

func TestParseFrameRejectsTypelessRoleless(t *testing.T) {
	if _, err := ParseFrame([]byte(`{"body":"hello"}`)); err != ErrMissingType {
		t.Errorf("expected ErrMissingType, got %v", err)
	}
}

func TestParseFrameRejectsInvalidJSON(t *testing.T) {
	if _, err := ParseFrame([]byte("{nope")); err == nil {
		t.Error("expected error for invalid JSON")
	}
}

func TestEncodeOmitsEmptyFields(t *testing.T) {
	f := NewAnswer("r1", "body")
	raw, err := f.Encode()
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	for _, unexpected := range []string{"payload", "meta", "reason", "token", "stats"} {
		if strings.Contains(string(raw), `"`+unexpected+`"`) {
			t.Errorf("answer frame should not carry %q", unexpected)
		}
	}
}
