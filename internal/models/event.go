package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// EventType classifies a conversation event
type EventType string

const (
	EventUserSpeech EventType = "user_speech"
	EventBotSpeech  EventType = "bot_speech"
	EventSystem     EventType = "system"
)

// Valid reports whether the event type is one of the known kinds
func (t EventType) Valid() bool {
	switch t {
	case EventUserSpeech, EventBotSpeech, EventSystem:
		return true
	}
	return false
}

// Event is a single timestamped entry in a session's event log.
// Identity is the composite (SessionID, EventID); Timestamp is supplied
// by the caller and drives read ordering, it is not the ingestion time.
// Events are immutable once created.
type Event struct {
	ID        primitive.ObjectID     `bson:"_id,omitempty" json:"-"`
	SessionID string                 `bson:"sessionId" json:"sessionId"`
	EventID   string                 `bson:"eventId" json:"eventId"`
	Type      EventType              `bson:"type" json:"type"`
	Payload   map[string]interface{} `bson:"payload" json:"payload"`
	Timestamp time.Time              `bson:"timestamp" json:"timestamp"`
}

// PaginatedEvents is one page of a session's event log, ordered
// ascending by event timestamp
type PaginatedEvents struct {
	Events  []Event `json:"events"`
	Total   int64   `json:"total"`
	HasMore bool    `json:"hasMore"`
}
