package middleware

import (
	"crypto/subtle"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/ListingHub/internal/pkg/usercontext"
)

// ServiceKeyMiddleware authenticates gateway requests carrying the shared
// service key. An empty key disables the check.
func ServiceKeyMiddleware(key string) fiber.Handler {
	key = strings.TrimSpace(key)
	if key == "" {
		log.Warn("[Auth] SERVICE_API_KEY is empty, API routes are not key protected")
	}
	return func(c *fiber.Ctx) error {
		if key == "" {
			return c.Next()
		}
		apiKey := extractAPIKeyFromHeader(c)
		if apiKey == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Missing API key"})
		}
		if subtle.ConstantTimeCompare([]byte(apiKey), []byte(key)) != 1 {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Invalid API key"})
		}

		ctx := usercontext.GetOwnerContext(c)
		ctx.ServiceVerified = true
		usercontext.SetOwnerContext(c, ctx)
		return c.Next()
	}
}

func extractAPIKeyFromHeader(c *fiber.Ctx) string {
	apiKey := strings.TrimSpace(c.Get("X-API-Key"))
	if apiKey != "" {
		return apiKey
	}
	auth := strings.TrimSpace(c.Get("Authorization"))
	if strings.HasPrefix(strings.ToLower(auth), "bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	return ""
}
