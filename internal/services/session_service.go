package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"vocalis/internal/logging"
	"vocalis/internal/models"
)

const sessionKeyPrefix = "session:"

// Pagination bounds for event reads
const (
	DefaultEventLimit = 50
	MaxEventLimit     = 100
)

// SessionStorage is the durable store surface for sessions. Lookups
// return (nil, nil) when the session does not exist.
type SessionStorage interface {
	Upsert(ctx context.Context, sessionID, language string, metadata map[string]interface{}) (*models.Session, error)
	FindBySessionID(ctx context.Context, sessionID string) (*models.Session, error)
	UpdateStatus(ctx context.Context, sessionID string, status models.SessionStatus, endedAt *time.Time) (*models.Session, error)
}

// EventStorage is the durable store surface for events
type EventStorage interface {
	Create(ctx context.Context, sessionID, eventID string, eventType models.EventType, payload map[string]interface{}, timestamp time.Time) (*models.Event, error)
	FindBySession(ctx context.Context, sessionID string, limit, offset int) (*models.PaginatedEvents, error)
}

// SnapshotCache is the resilient cache surface. Implementations never
// surface failure: Get degrades to a miss and Set/Delete to a no-op.
type SnapshotCache interface {
	Get(ctx context.Context, key string) (string, bool)
	Set(ctx context.Context, key, value string, ttl time.Duration)
	Delete(ctx context.Context, key string)
}

// SessionService coordinates cache-aside reads and writes over the
// session and event stores. The durable store is the single writer of
// record; the cache holds serialized session snapshots keyed by
// "session:<sessionId>" and is rebuilt from the store whenever absent.
type SessionService struct {
	sessions SessionStorage
	events   EventStorage
	cache    SnapshotCache
	cacheTTL time.Duration
}

// NewSessionService creates a session service from already-constructed
// collaborators
func NewSessionService(sessions SessionStorage, events EventStorage, snapshots SnapshotCache, cacheTTL time.Duration) *SessionService {
	if cacheTTL <= 0 {
		cacheTTL = 600 * time.Second
	}
	return &SessionService{
		sessions: sessions,
		events:   events,
		cache:    snapshots,
		cacheTTL: cacheTTL,
	}
}

func sessionKey(sessionID string) string {
	return sessionKeyPrefix + sessionID
}

// CreateSession creates the session, or returns the existing one
// unchanged when the id was already registered. The fresh snapshot is
// written through to the cache best-effort.
func (s *SessionService) CreateSession(ctx context.Context, sessionID, language string, metadata map[string]interface{}) (*models.Session, error) {
	session, err := s.sessions.Upsert(ctx, sessionID, language, metadata)
	if err != nil {
		return nil, err
	}

	s.cacheSnapshot(ctx, session)

	if m := GetMetrics(); m != nil {
		m.SessionsCreated.Inc()
	}
	return session, nil
}

// AppendEvent appends an event to an existing session. The cache lookup
// is an existence probe only: a hit skips the store read on the hot
// path, a miss falls back to the store (the authority) and back-fills
// the cache. Duplicate (sessionId, eventId) submissions return the
// original event.
func (s *SessionService) AppendEvent(ctx context.Context, sessionID, eventID string, eventType models.EventType, payload map[string]interface{}, timestamp time.Time) (*models.Event, error) {
	if _, ok := s.cache.Get(ctx, sessionKey(sessionID)); !ok {
		s.countCacheMiss()

		session, err := s.sessions.FindBySessionID(ctx, sessionID)
		if err != nil {
			return nil, err
		}
		if session == nil {
			return nil, fmt.Errorf("append event %q: %w", eventID, ErrSessionNotFound)
		}
		s.cacheSnapshot(ctx, session)
	} else {
		s.countCacheHit()
	}

	event, err := s.events.Create(ctx, sessionID, eventID, eventType, payload, timestamp)
	if err != nil {
		return nil, err
	}

	if m := GetMetrics(); m != nil {
		m.EventsAppended.Inc()
	}
	return event, nil
}

// GetSession returns the session merged with one page of its events.
// The session snapshot is read cache-first; events always come live from
// the store, since the log is append-only and a cached page would hide
// newly appended events.
func (s *SessionService) GetSession(ctx context.Context, sessionID string, limit, offset int) (*models.SessionWithEvents, error) {
	limit, offset = clampPagination(limit, offset)

	session, err := s.loadSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	page, err := s.events.FindBySession(ctx, sessionID, limit, offset)
	if err != nil {
		return nil, err
	}

	return &models.SessionWithEvents{
		Session: *session,
		Events:  page.Events,
		Pagination: models.Pagination{
			Total:   page.Total,
			Limit:   limit,
			Offset:  offset,
			HasMore: page.HasMore,
		},
	}, nil
}

// CompleteSession transitions the session to completed. Completing an
// already-completed session is a no-op that returns it unchanged; either
// way the cache is refreshed with the terminal snapshot.
func (s *SessionService) CompleteSession(ctx context.Context, sessionID string) (*models.Session, error) {
	session, err := s.sessions.FindBySessionID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, fmt.Errorf("complete session: %w", ErrSessionNotFound)
	}

	if session.Status == models.SessionCompleted {
		s.cacheSnapshot(ctx, session)
		return session, nil
	}

	now := time.Now().UTC()
	updated, err := s.sessions.UpdateStatus(ctx, sessionID, models.SessionCompleted, &now)
	if err != nil {
		return nil, err
	}
	if updated == nil {
		return nil, fmt.Errorf("complete session: %w", ErrSessionNotFound)
	}

	s.cacheSnapshot(ctx, updated)

	if m := GetMetrics(); m != nil {
		m.SessionsCompleted.Inc()
	}
	return updated, nil
}

// loadSession reads the session cache-first, populating the cache on a
// store read
func (s *SessionService) loadSession(ctx context.Context, sessionID string) (*models.Session, error) {
	if raw, ok := s.cache.Get(ctx, sessionKey(sessionID)); ok {
		var session models.Session
		if err := json.Unmarshal([]byte(raw), &session); err == nil {
			s.countCacheHit()
			return &session, nil
		}
		// Corrupt entry: treat as a miss and rebuild from the store
		logging.WithSession(sessionID).Warn("discarding undecodable session cache entry")
	}
	s.countCacheMiss()

	session, err := s.sessions.FindBySessionID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, fmt.Errorf("get session: %w", ErrSessionNotFound)
	}

	s.cacheSnapshot(ctx, session)
	return session, nil
}

// cacheSnapshot writes the serialized session to the cache best-effort;
// the caller's result is never affected by the cache outcome
func (s *SessionService) cacheSnapshot(ctx context.Context, session *models.Session) {
	data, err := json.Marshal(session)
	if err != nil {
		logging.WithSession(session.SessionID).Warn("failed to serialize session snapshot", "error", err)
		return
	}
	s.cache.Set(ctx, sessionKey(session.SessionID), string(data), s.cacheTTL)
}

func (s *SessionService) countCacheHit() {
	if m := GetMetrics(); m != nil {
		m.CacheHits.Inc()
	}
}

func (s *SessionService) countCacheMiss() {
	if m := GetMetrics(); m != nil {
		m.CacheMisses.Inc()
	}
}

// clampPagination applies the documented defaults and bounds:
// limit defaults to 50 within [1,100], offset to 0
func clampPagination(limit, offset int) (int, int) {
	if limit < 1 {
		limit = DefaultEventLimit
	}
	if limit > MaxEventLimit {
		limit = MaxEventLimit
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
