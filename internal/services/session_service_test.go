package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"vocalis/internal/cache"
	"vocalis/internal/models"
)

type fakeSessionStorage struct {
	mu       sync.Mutex
	sessions map[string]*models.Session

	upsertCalls int
	findCalls   int
	updateCalls int
}

func newFakeSessionStorage() *fakeSessionStorage {
	return &fakeSessionStorage{sessions: make(map[string]*models.Session)}
}

func (f *fakeSessionStorage) Upsert(ctx context.Context, sessionID, language string, metadata map[string]interface{}) (*models.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upsertCalls++

	if existing, ok := f.sessions[sessionID]; ok {
		out := *existing
		return &out, nil
	}
	if metadata == nil {
		metadata = map[string]interface{}{}
	}
	session := &models.Session{
		SessionID: sessionID,
		Status:    models.SessionInitiated,
		Language:  language,
		StartedAt: time.Now().UTC(),
		Metadata:  metadata,
	}
	f.sessions[sessionID] = session
	out := *session
	return &out, nil
}

func (f *fakeSessionStorage) FindBySessionID(ctx context.Context, sessionID string) (*models.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.findCalls++

	session, ok := f.sessions[sessionID]
	if !ok {
		return nil, nil
	}
	out := *session
	return &out, nil
}

func (f *fakeSessionStorage) UpdateStatus(ctx context.Context, sessionID string, status models.SessionStatus, endedAt *time.Time) (*models.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updateCalls++

	session, ok := f.sessions[sessionID]
	if !ok {
		return nil, nil
	}
	session.Status = status
	if endedAt != nil {
		session.EndedAt = endedAt
	}
	out := *session
	return &out, nil
}

type fakeEventStorage struct {
	mu     sync.Mutex
	events map[string]*models.Event

	createCalls int
	findCalls   int
	lastLimit   int
	lastOffset  int
}

func newFakeEventStorage() *fakeEventStorage {
	return &fakeEventStorage{events: make(map[string]*models.Event)}
}

func eventKey(sessionID, eventID string) string {
	return sessionID + "/" + eventID
}

func (f *fakeEventStorage) Create(ctx context.Context, sessionID, eventID string, eventType models.EventType, payload map[string]interface{}, timestamp time.Time) (*models.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createCalls++

	if existing, ok := f.events[eventKey(sessionID, eventID)]; ok {
		out := *existing
		return &out, nil
	}
	event := &models.Event{
		SessionID: sessionID,
		EventID:   eventID,
		Type:      eventType,
		Payload:   payload,
		Timestamp: timestamp,
	}
	f.events[eventKey(sessionID, eventID)] = event
	out := *event
	return &out, nil
}

func (f *fakeEventStorage) FindBySession(ctx context.Context, sessionID string, limit, offset int) (*models.PaginatedEvents, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.findCalls++
	f.lastLimit = limit
	f.lastOffset = offset

	var all []models.Event
	for _, e := range f.events {
		if e.SessionID == sessionID {
			all = append(all, *e)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Timestamp.Before(all[j].Timestamp) })

	total := int64(len(all))
	if offset > len(all) {
		offset = len(all)
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	page := all[offset:end]

	return &models.PaginatedEvents{
		Events:  page,
		Total:   total,
		HasMore: int64(offset+len(page)) < total,
	}, nil
}

type fakeSnapshotCache struct {
	mu   sync.Mutex
	data map[string]string

	getCalls int
	setCalls int
}

func newFakeSnapshotCache() *fakeSnapshotCache {
	return &fakeSnapshotCache{data: make(map[string]string)}
}

func (f *fakeSnapshotCache) Get(ctx context.Context, key string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getCalls++
	value, ok := f.data[key]
	return value, ok
}

func (f *fakeSnapshotCache) Set(ctx context.Context, key, value string, ttl time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.setCalls++
	f.data[key] = value
}

func (f *fakeSnapshotCache) Delete(ctx context.Context, key string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.data, key)
}

func newTestService() (*SessionService, *fakeSessionStorage, *fakeEventStorage, *fakeSnapshotCache) {
	sessions := newFakeSessionStorage()
	events := newFakeEventStorage()
	snapshots := newFakeSnapshotCache()
	return NewSessionService(sessions, events, snapshots, 600*time.Second), sessions, events, snapshots
}

func TestCreateSessionIdempotent(t *testing.T) {
	svc, sessions, _, snapshots := newTestService()
	ctx := context.Background()

	first, err := svc.CreateSession(ctx, "s1", "en-US", map[string]interface{}{"channel": "phone"})
	if err != nil {
		t.Fatalf("first create failed: %v", err)
	}

	// Re-creation with different attributes returns the original row unchanged
	second, err := svc.CreateSession(ctx, "s1", "fr-FR", map[string]interface{}{"channel": "web"})
	if err != nil {
		t.Fatalf("second create failed: %v", err)
	}

	if second.Language != "en-US" {
		t.Errorf("expected original language preserved, got %s", second.Language)
	}
	if second.Metadata["channel"] != "phone" {
		t.Errorf("expected original metadata preserved, got %v", second.Metadata)
	}
	if second.Status != first.Status {
		t.Errorf("expected status unchanged, got %s", second.Status)
	}
	if len(sessions.sessions) != 1 {
		t.Errorf("expected exactly one session row, got %d", len(sessions.sessions))
	}
	if _, ok := snapshots.data["session:s1"]; !ok {
		t.Error("expected session snapshot written through to the cache")
	}
}

func TestAppendEventIdempotent(t *testing.T) {
	svc, _, events, _ := newTestService()
	ctx := context.Background()

	if _, err := svc.CreateSession(ctx, "s1", "en-US", nil); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	ts := time.Now().UTC()
	first, err := svc.AppendEvent(ctx, "s1", "e1", models.EventUserSpeech, map[string]interface{}{"transcript": "hello"}, ts)
	if err != nil {
		t.Fatalf("first append failed: %v", err)
	}
	second, err := svc.AppendEvent(ctx, "s1", "e1", models.EventUserSpeech, map[string]interface{}{"transcript": "changed"}, ts)
	if err != nil {
		t.Fatalf("second append failed: %v", err)
	}

	if second.Payload["transcript"] != first.Payload["transcript"] {
		t.Error("expected duplicate submission to return the original event")
	}
	if len(events.events) != 1 {
		t.Errorf("expected exactly one event row, got %d", len(events.events))
	}
}

func TestAppendEventUnknownSession(t *testing.T) {
	svc, _, events, _ := newTestService()
	ctx := context.Background()

	_, err := svc.AppendEvent(ctx, "missing", "e1", models.EventSystem, nil, time.Now())
	if !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
	if events.createCalls != 0 {
		t.Error("expected no event write for an unknown session")
	}
}

func TestAppendEventCacheProbeSkipsStoreRead(t *testing.T) {
	svc, sessions, _, _ := newTestService()
	ctx := context.Background()

	// CreateSession primes the cache with the snapshot
	if _, err := svc.CreateSession(ctx, "s1", "en-US", nil); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	if _, err := svc.AppendEvent(ctx, "s1", "e1", models.EventBotSpeech, nil, time.Now()); err != nil {
		t.Fatalf("append failed: %v", err)
	}
	if sessions.findCalls != 0 {
		t.Errorf("expected the cache probe to skip the store read, got %d reads", sessions.findCalls)
	}
}

func TestAppendEventBackfillsCacheOnMiss(t *testing.T) {
	svc, sessions, _, snapshots := newTestService()
	ctx := context.Background()

	// Session exists in the store but not in the cache
	if _, err := sessions.Upsert(ctx, "s1", "en-US", nil); err != nil {
		t.Fatal(err)
	}

	if _, err := svc.AppendEvent(ctx, "s1", "e1", models.EventSystem, nil, time.Now()); err != nil {
		t.Fatalf("append failed: %v", err)
	}
	if sessions.findCalls != 1 {
		t.Errorf("expected one store read on cache miss, got %d", sessions.findCalls)
	}
	if _, ok := snapshots.data["session:s1"]; !ok {
		t.Error("expected the cache to be back-filled after the store read")
	}
}

func TestGetSessionCacheFirstEventsAlwaysLive(t *testing.T) {
	svc, sessions, events, _ := newTestService()
	ctx := context.Background()

	if _, err := svc.CreateSession(ctx, "s1", "en-US", nil); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		id := fmt.Sprintf("e%d", i)
		if _, err := svc.AppendEvent(ctx, "s1", id, models.EventUserSpeech, nil, base.Add(time.Duration(i)*time.Second)); err != nil {
			t.Fatalf("append %s failed: %v", id, err)
		}
	}

	sessions.findCalls = 0
	view, err := svc.GetSession(ctx, "s1", 50, 0)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}

	if sessions.findCalls != 0 {
		t.Errorf("expected the session snapshot from the cache, got %d store reads", sessions.findCalls)
	}
	if events.findCalls != 1 {
		t.Errorf("expected events loaded live from the store, got %d calls", events.findCalls)
	}
	if len(view.Events) != 3 {
		t.Errorf("expected 3 events, got %d", len(view.Events))
	}
	if view.Pagination.Total != 3 || view.Pagination.HasMore {
		t.Errorf("unexpected pagination: %+v", view.Pagination)
	}
}

func TestGetSessionMissLoadsStoreAndPopulatesCache(t *testing.T) {
	svc, sessions, _, snapshots := newTestService()
	ctx := context.Background()

	if _, err := sessions.Upsert(ctx, "s1", "de-DE", nil); err != nil {
		t.Fatal(err)
	}

	view, err := svc.GetSession(ctx, "s1", 50, 0)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if view.Language != "de-DE" {
		t.Errorf("unexpected language: %s", view.Language)
	}
	if _, ok := snapshots.data["session:s1"]; !ok {
		t.Error("expected the cache populated on read-through")
	}
}

func TestGetSessionUnknown(t *testing.T) {
	svc, _, _, _ := newTestService()

	_, err := svc.GetSession(context.Background(), "missing", 50, 0)
	if !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestGetSessionCorruptCacheEntryFallsBack(t *testing.T) {
	svc, sessions, _, snapshots := newTestService()
	ctx := context.Background()

	if _, err := sessions.Upsert(ctx, "s1", "en-US", nil); err != nil {
		t.Fatal(err)
	}
	snapshots.data["session:s1"] = "{not json"

	view, err := svc.GetSession(ctx, "s1", 50, 0)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if view.SessionID != "s1" {
		t.Errorf("unexpected session: %s", view.SessionID)
	}
	if sessions.findCalls != 1 {
		t.Errorf("expected fallback to the store on a corrupt entry, got %d reads", sessions.findCalls)
	}
}

func TestGetSessionPaginationClamped(t *testing.T) {
	svc, sessions, events, _ := newTestService()
	ctx := context.Background()

	if _, err := sessions.Upsert(ctx, "s1", "en-US", nil); err != nil {
		t.Fatal(err)
	}

	cases := []struct {
		name                  string
		limit, offset         int
		wantLimit, wantOffset int
	}{
		{"zero limit uses default", 0, 0, 50, 0},
		{"oversized limit capped", 500, 10, 100, 10},
		{"negative offset reset", 25, -5, 25, 0},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			view, err := svc.GetSession(ctx, "s1", tc.limit, tc.offset)
			if err != nil {
				t.Fatalf("get failed: %v", err)
			}
			if events.lastLimit != tc.wantLimit || events.lastOffset != tc.wantOffset {
				t.Errorf("store saw limit=%d offset=%d, want %d/%d", events.lastLimit, events.lastOffset, tc.wantLimit, tc.wantOffset)
			}
			if view.Pagination.Limit != tc.wantLimit || view.Pagination.Offset != tc.wantOffset {
				t.Errorf("pagination reports limit=%d offset=%d, want %d/%d", view.Pagination.Limit, view.Pagination.Offset, tc.wantLimit, tc.wantOffset)
			}
		})
	}
}

func TestCompleteSession(t *testing.T) {
	svc, _, _, snapshots := newTestService()
	ctx := context.Background()

	if _, err := svc.CreateSession(ctx, "s1", "en-US", nil); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	session, err := svc.CompleteSession(ctx, "s1")
	if err != nil {
		t.Fatalf("complete failed: %v", err)
	}
	if session.Status != models.SessionCompleted {
		t.Errorf("expected completed status, got %s", session.Status)
	}
	if session.EndedAt == nil {
		t.Error("expected endedAt set on completion")
	}

	// Cache reflects the terminal snapshot
	raw, ok := snapshots.data["session:s1"]
	if !ok {
		t.Fatal("expected cache refreshed on completion")
	}
	if want := `"status":"completed"`; !strings.Contains(raw, want) {
		t.Errorf("expected cached snapshot to contain %s, got %s", want, raw)
	}
}

func TestCompleteSessionIdempotent(t *testing.T) {
	svc, sessions, _, _ := newTestService()
	ctx := context.Background()

	if _, err := svc.CreateSession(ctx, "s1", "en-US", nil); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	first, err := svc.CompleteSession(ctx, "s1")
	if err != nil {
		t.Fatalf("first complete failed: %v", err)
	}

	second, err := svc.CompleteSession(ctx, "s1")
	if err != nil {
		t.Fatalf("second complete failed: %v", err)
	}

	if sessions.updateCalls != 1 {
		t.Errorf("expected no additional store write on repeat completion, got %d", sessions.updateCalls)
	}
	if !second.EndedAt.Equal(*first.EndedAt) {
		t.Error("expected repeat completion to return the session unchanged")
	}
}

func TestCompleteSessionUnknown(t *testing.T) {
	svc, _, _, _ := newTestService()

	_, err := svc.CompleteSession(context.Background(), "missing")
	if !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

// failingCacheStore always errors, simulating a cache tier that is
// entirely unavailable.
type failingCacheStore struct{}

func (failingCacheStore) Get(ctx context.Context, key string) (string, bool, error) {
	return "", false, errors.New("connection refused")
}
func (failingCacheStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return errors.New("connection refused")
}
func (failingCacheStore) Del(ctx context.Context, key string) error {
	return errors.New("connection refused")
}
func (failingCacheStore) Ping(ctx context.Context) error {
	return errors.New("connection refused")
}

func TestOperationsSurviveCacheOutage(t *testing.T) {
	// Wire the coordinator through the real resilient client over a
	// dead store: every operation must still succeed via the durable
	// store, and no cache failure may escape.
	sessions := newFakeSessionStorage()
	events := newFakeEventStorage()
	deadCache := cache.NewClient(failingCacheStore{}, cache.ClientConfig{CallTimeout: 50 * time.Millisecond})
	svc := NewSessionService(sessions, events, deadCache, 600*time.Second)
	ctx := context.Background()

	if _, err := svc.CreateSession(ctx, "s1", "en-US", nil); err != nil {
		t.Fatalf("create failed during cache outage: %v", err)
	}
	if _, err := svc.AppendEvent(ctx, "s1", "e1", models.EventUserSpeech, nil, time.Now()); err != nil {
		t.Fatalf("append failed during cache outage: %v", err)
	}
	view, err := svc.GetSession(ctx, "s1", 50, 0)
	if err != nil {
		t.Fatalf("get failed during cache outage: %v", err)
	}
	if len(view.Events) != 1 {
		t.Errorf("expected 1 event, got %d", len(view.Events))
	}
	if _, err := svc.CompleteSession(ctx, "s1"); err != nil {
		t.Fatalf("complete failed during cache outage: %v", err)
	}
}
