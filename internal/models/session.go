package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// SessionStatus is the lifecycle state of a conversation session
type SessionStatus string

const (
	SessionInitiated SessionStatus = "initiated"
	SessionActive    SessionStatus = "active"
	SessionCompleted SessionStatus = "completed"
	SessionFailed    SessionStatus = "failed"
)

// Valid reports whether the status is one of the known lifecycle states
func (s SessionStatus) Valid() bool {
	switch s {
	case SessionInitiated, SessionActive, SessionCompleted, SessionFailed:
		return true
	}
	return false
}

// Terminal reports whether the status ends the session lifecycle
func (s SessionStatus) Terminal() bool {
	return s == SessionCompleted || s == SessionFailed
}

// Session represents a recorded conversation session.
// SessionID is externally supplied and globally unique; Metadata is set
// once at creation and immutable thereafter.
type Session struct {
	ID        primitive.ObjectID     `bson:"_id,omitempty" json:"-"`
	SessionID string                 `bson:"sessionId" json:"sessionId"`
	Status    SessionStatus          `bson:"status" json:"status"`
	Language  string                 `bson:"language" json:"language"`
	StartedAt time.Time              `bson:"startedAt" json:"startedAt"`
	EndedAt   *time.Time             `bson:"endedAt,omitempty" json:"endedAt,omitempty"`
	Metadata  map[string]interface{} `bson:"metadata" json:"metadata"`
}

// Pagination describes one page of an event scan
type Pagination struct {
	Total   int64 `json:"total"`
	Limit   int   `json:"limit"`
	Offset  int   `json:"offset"`
	HasMore bool  `json:"hasMore"`
}

// SessionWithEvents is the merged read view: session fields plus one
// page of its event log
type SessionWithEvents struct {
	Session
	Events     []Event    `json:"events"`
	Pagination Pagination `json:"pagination"`
}
