package services

import (
	"context"
	"fmt"
	"time"

	"vocalis/internal/database"
	"vocalis/internal/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// SessionStore handles MongoDB CRUD for conversation sessions
type SessionStore struct {
	collection *mongo.Collection
}

// NewSessionStore creates a new session store
func NewSessionStore(mongodb *database.MongoDB) *SessionStore {
	return &SessionStore{
		collection: mongodb.Collection(database.CollectionSessions),
	}
}

// Upsert creates the session if absent and returns it. If a session with
// this id already exists it is returned unchanged: $setOnInsert only
// applies fields on insert, so re-creation never mutates language,
// metadata, or lifecycle state. The unique sessionId index serializes
// concurrent identical creates.
func (s *SessionStore) Upsert(ctx context.Context, sessionID, language string, metadata map[string]interface{}) (*models.Session, error) {
	if metadata == nil {
		metadata = map[string]interface{}{}
	}

	filter := bson.M{"sessionId": sessionID}
	update := bson.M{
		"$setOnInsert": bson.M{
			"sessionId": sessionID,
			"language":  language,
			"status":    models.SessionInitiated,
			"startedAt": time.Now().UTC(),
			"metadata":  metadata,
		},
	}
	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After)

	var session models.Session
	if err := s.collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&session); err != nil {
		return nil, fmt.Errorf("failed to upsert session: %w", err)
	}
	return &session, nil
}

// FindBySessionID returns the session, or nil if no such session exists
func (s *SessionStore) FindBySessionID(ctx context.Context, sessionID string) (*models.Session, error) {
	var session models.Session
	err := s.collection.FindOne(ctx, bson.M{"sessionId": sessionID}).Decode(&session)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find session: %w", err)
	}
	return &session, nil
}

// UpdateStatus sets the session status (and endedAt when given) on the
// existing row, returning the updated session or nil if no such session
// exists
func (s *SessionStore) UpdateStatus(ctx context.Context, sessionID string, status models.SessionStatus, endedAt *time.Time) (*models.Session, error) {
	set := bson.M{"status": status}
	if endedAt != nil {
		set["endedAt"] = *endedAt
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var session models.Session
	err := s.collection.FindOneAndUpdate(ctx, bson.M{"sessionId": sessionID}, bson.M{"$set": set}, opts).Decode(&session)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to update session status: %w", err)
	}
	return &session, nil
}
