package middleware

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// HeaderCorrelationID is the request/response correlation header
const HeaderCorrelationID = "X-Correlation-Id"

// CorrelationID propagates the caller's correlation id, generating one
// when absent, and echoes it on the response. Handlers read it from
// c.Locals("correlation_id").
func CorrelationID() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Get(HeaderCorrelationID)
		if id == "" {
			id = uuid.NewString()
		}
		c.Locals("correlation_id", id)
		c.Set(HeaderCorrelationID, id)
		return c.Next()
	}
}
