package handlers

import (
	"context"
	"errors"
	"time"

	"vocalis/internal/models"
	"vocalis/internal/services"

	"github.com/gofiber/fiber/v2"
)

// SessionAPI is the coordinator surface the handlers consume
type SessionAPI interface {
	CreateSession(ctx context.Context, sessionID, language string, metadata map[string]interface{}) (*models.Session, error)
	AppendEvent(ctx context.Context, sessionID, eventID string, eventType models.EventType, payload map[string]interface{}, timestamp time.Time) (*models.Event, error)
	GetSession(ctx context.Context, sessionID string, limit, offset int) (*models.SessionWithEvents, error)
	CompleteSession(ctx context.Context, sessionID string) (*models.Session, error)
}

// SessionHandler handles session-related HTTP requests
type SessionHandler struct {
	service SessionAPI
}

// NewSessionHandler creates a new session handler
func NewSessionHandler(service SessionAPI) *SessionHandler {
	return &SessionHandler{service: service}
}

// CreateSessionRequest is the create-session request body
type CreateSessionRequest struct {
	SessionID string                 `json:"sessionId"`
	Language  string                 `json:"language"`
	Metadata  map[string]interface{} `json:"metadata"`
}

// CreateEventRequest is the append-event request body. Timestamp is the
// caller-supplied event time as an ISO-8601 string.
type CreateEventRequest struct {
	EventID   string                 `json:"eventId"`
	Type      string                 `json:"type"`
	Payload   map[string]interface{} `json:"payload"`
	Timestamp string                 `json:"timestamp"`
}

// Create handles session creation. Re-creating an existing session id
// returns the original session unchanged.
// POST /sessions
func (h *SessionHandler) Create(c *fiber.Ctx) error {
	var req CreateSessionRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if req.SessionID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "sessionId is required",
		})
	}
	if req.Language == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "language is required",
		})
	}

	session, err := h.service.CreateSession(c.Context(), req.SessionID, req.Language, req.Metadata)
	if err != nil {
		return h.serviceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(session)
}

// AppendEvent handles event ingestion. Duplicate (sessionId, eventId)
// submissions return the original event with 201, making retries safe.
// POST /sessions/:sessionId/events
func (h *SessionHandler) AppendEvent(c *fiber.Ctx) error {
	sessionID := c.Params("sessionId")

	var req CreateEventRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if req.EventID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "eventId is required",
		})
	}
	eventType := models.EventType(req.Type)
	if !eventType.Valid() {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "type must be one of user_speech, bot_speech, system",
		})
	}
	timestamp, err := time.Parse(time.RFC3339, req.Timestamp)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "timestamp must be a valid ISO-8601 date-time",
		})
	}

	event, err := h.service.AppendEvent(c.Context(), sessionID, req.EventID, eventType, req.Payload, timestamp)
	if err != nil {
		return h.serviceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(event)
}

// Get returns the session merged with one page of its events.
// GET /sessions/:sessionId?limit=&offset=
func (h *SessionHandler) Get(c *fiber.Ctx) error {
	sessionID := c.Params("sessionId")

	limit := c.QueryInt("limit", services.DefaultEventLimit)
	offset := c.QueryInt("offset", 0)
	if limit < 1 || limit > services.MaxEventLimit {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "limit must be between 1 and 100",
		})
	}
	if offset < 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "offset must not be negative",
		})
	}

	view, err := h.service.GetSession(c.Context(), sessionID, limit, offset)
	if err != nil {
		return h.serviceError(c, err)
	}

	return c.JSON(view)
}

// Complete transitions the session to completed; completing twice
// returns the terminal session unchanged.
// POST /sessions/:sessionId/complete
func (h *SessionHandler) Complete(c *fiber.Ctx) error {
	sessionID := c.Params("sessionId")

	session, err := h.service.CompleteSession(c.Context(), sessionID)
	if err != nil {
		return h.serviceError(c, err)
	}

	return c.JSON(session)
}

// serviceError maps coordinator errors to HTTP responses: the not-found
// sentinel becomes 404, everything else is a store failure and fatal to
// the request
func (h *SessionHandler) serviceError(c *fiber.Ctx, err error) error {
	if errors.Is(err, services.ErrSessionNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Session not found",
		})
	}
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"error": "Internal server error",
	})
}
