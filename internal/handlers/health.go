package handlers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
)

// Pinger checks liveness of a dependency
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler reports service health based on its two dependencies.
// The durable store being down degrades the whole service; the cache
// being down only degrades it (reads and writes keep working through
// the store).
type HealthHandler struct {
	store Pinger
	cache Pinger
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(store, cache Pinger) *HealthHandler {
	return &HealthHandler{store: store, cache: cache}
}

// Handle responds with per-dependency health status
// GET /health
func (h *HealthHandler) Handle(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.Context(), 5*time.Second)
	defer cancel()

	mongoStatus := "down"
	if h.store != nil && h.store.Ping(ctx) == nil {
		mongoStatus = "up"
	}

	redisStatus := "down"
	if h.cache != nil && h.cache.Ping(ctx) == nil {
		redisStatus = "up"
	}

	status := "degraded"
	if mongoStatus == "up" && redisStatus == "up" {
		status = "ok"
	}

	return c.JSON(fiber.Map{
		"status":    status,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"service":   "vocalis",
		"dependencies": fiber.Map{
			"mongodb": mongoStatus,
			"redis":   redisStatus,
		},
	})
}
