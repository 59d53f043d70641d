package middleware

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/ListingHub/internal/pkg/usercontext"
)

// RequireOwner rejects requests without an owner reference with a JSON 401.
func RequireOwner(c *fiber.Ctx) error {
	if !usercontext.IsIdentified(c) {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error":   "unauthorized",
			"message": "X-Owner-Ref header required",
		})
	}
	return c.Next()
}
