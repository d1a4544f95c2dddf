package services

import (
	"context"
	"fmt"
	"time"

	"vocalis/internal/database"
	"vocalis/internal/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// EventStore handles MongoDB CRUD for conversation events
type EventStore struct {
	collection *mongo.Collection
}

// NewEventStore creates a new event store
func NewEventStore(mongodb *database.MongoDB) *EventStore {
	return &EventStore{
		collection: mongodb.Collection(database.CollectionEvents),
	}
}

// Create inserts the event. A duplicate (sessionId, eventId) insert,
// whether a client retry or a concurrent race, resolves to the
// pre-existing event instead of an error; the unique compound index is
// the single source of truth for idempotency.
func (s *EventStore) Create(ctx context.Context, sessionID, eventID string, eventType models.EventType, payload map[string]interface{}, timestamp time.Time) (*models.Event, error) {
	if payload == nil {
		payload = map[string]interface{}{}
	}

	event := models.Event{
		ID:        primitive.NewObjectID(),
		SessionID: sessionID,
		EventID:   eventID,
		Type:      eventType,
		Payload:   payload,
		Timestamp: timestamp,
	}

	_, err := s.collection.InsertOne(ctx, event)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			var existing models.Event
			findErr := s.collection.FindOne(ctx, bson.M{"sessionId": sessionID, "eventId": eventID}).Decode(&existing)
			if findErr != nil {
				return nil, fmt.Errorf("failed to load existing event after duplicate insert: %w", findErr)
			}
			if m := GetMetrics(); m != nil {
				m.EventDuplicates.Inc()
			}
			return &existing, nil
		}
		return nil, fmt.Errorf("failed to create event: %w", err)
	}

	return &event, nil
}

// FindBySession returns one page of the session's events ordered
// ascending by caller-supplied timestamp, independent of insertion order
func (s *EventStore) FindBySession(ctx context.Context, sessionID string, limit, offset int) (*models.PaginatedEvents, error) {
	filter := bson.M{"sessionId": sessionID}

	opts := options.Find().
		SetSort(bson.D{{Key: "timestamp", Value: 1}}).
		SetSkip(int64(offset)).
		SetLimit(int64(limit))

	cursor, err := s.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find events: %w", err)
	}
	defer cursor.Close(ctx)

	events := []models.Event{}
	if err := cursor.All(ctx, &events); err != nil {
		return nil, fmt.Errorf("failed to decode events: %w", err)
	}

	total, err := s.collection.CountDocuments(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to count events: %w", err)
	}

	return &models.PaginatedEvents{
		Events:  events,
		Total:   total,
		HasMore: int64(offset+len(events)) < total,
	}, nil
}

// Exists reports whether an event with this composite identity is stored
func (s *EventStore) Exists(ctx context.Context, sessionID, eventID string) (bool, error) {
	count, err := s.collection.CountDocuments(ctx, bson.M{"sessionId": sessionID, "eventId": eventID})
	if err != nil {
		return false, fmt.Errorf("failed to check event existence: %w", err)
	}
	return count > 0, nil
}
