package middleware

import (
	"crypto/subtle"

	"captable-backend/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
)

const adminKeyHeader = "X-Admin-Key"

// AdminKey guards the trigger endpoints. Identity and authorization proper
// live outside this service; callers are trusted internal systems holding
// the shared admin key. An empty configured key only passes in development.
func AdminKey(key string, isProduction bool) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if key == "" {
			if isProduction {
				return response.Unauthorized(c, "Admin key not configured")
			}
			return c.Next()
		}
		provided := c.Get(adminKeyHeader)
		if subtle.ConstantTimeCompare([]byte(provided), []byte(key)) != 1 {
			return response.Unauthorized(c, "Unauthorized")
		}
		return c.Next()
	}
}
