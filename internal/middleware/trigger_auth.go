package middleware

import (
	"github.com/asset-gallery/backend/internal/auth"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// TriggerAuthMiddleware guards the monitor trigger with a shared bearer token.
// An empty token disables the check.
func TriggerAuthMiddleware(token string, log *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if token == "" {
			return c.Next()
		}

		presented, ok := auth.BearerToken(c.Get("Authorization"))
		if !ok {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "missing authorization header"})
		}
		if !auth.TokenMatches(presented, token) {
			log.Warn("rejected monitor trigger", zap.String("ip", c.IP()), zap.String("path", c.Path()))
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid token"})
		}

		return c.Next()
	}
}
