package models

import (
	"encoding/json"
	"testing"
	"time"
)

func TestSessionStatusValid(t *testing.T) {
	for _, status := range []SessionStatus{SessionInitiated, SessionActive, SessionCompleted, SessionFailed} {
		if !status.Valid() {
			t.Errorf("expected %s to be valid", status)
		}
	}
	if SessionStatus("paused").Valid() {
		t.Error("expected unknown status to be invalid")
	}
}

func TestSessionStatusTerminal(t *testing.T) {
	cases := map[SessionStatus]bool{
		SessionInitiated: false,
		SessionActive:    false,
		SessionCompleted: true,
		SessionFailed:    true,
	}
	for status, want := range cases {
		if got := status.Terminal(); got != want {
			t.Errorf("%s.Terminal() = %v, want %v", status, got, want)
		}
	}
}

func TestEventTypeValid(t *testing.T) {
	for _, eventType := range []EventType{EventUserSpeech, EventBotSpeech, EventSystem} {
		if !eventType.Valid() {
			t.Errorf("expected %s to be valid", eventType)
		}
	}
	if EventType("whisper").Valid() {
		t.Error("expected unknown type to be invalid")
	}
}

func TestSessionSnapshotRoundtrip(t *testing.T) {
	// The coordinator serializes sessions into the cache as JSON; the
	// snapshot must survive the roundtrip including the nullable endedAt.
	endedAt := time.Date(2026, 3, 1, 11, 0, 0, 0, time.UTC)
	session := Session{
		SessionID: "s1",
		Status:    SessionCompleted,
		Language:  "en-US",
		StartedAt: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
		EndedAt:   &endedAt,
		Metadata:  map[string]interface{}{"channel": "phone"},
	}

	data, err := json.Marshal(session)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	var decoded Session
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}

	if decoded.SessionID != session.SessionID || decoded.Status != session.Status {
		t.Errorf("snapshot mismatch: %+v", decoded)
	}
	if decoded.EndedAt == nil || !decoded.EndedAt.Equal(endedAt) {
		t.Errorf("endedAt lost in roundtrip: %v", decoded.EndedAt)
	}
	if decoded.Metadata["channel"] != "phone" {
		t.Errorf("metadata lost in roundtrip: %v", decoded.Metadata)
	}
}

func TestSessionOmitsNilEndedAt(t *testing.T) {
	data, err := json.Marshal(Session{SessionID: "s1", Status: SessionInitiated})
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if _, present := raw["endedAt"]; present {
		t.Error("expected endedAt omitted while the session is live")
	}
}
