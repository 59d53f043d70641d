package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/ListingHub/internal/pkg/media"
	"github.com/ManuelReschke/ListingHub/internal/pkg/usercontext"
)

const maxOwnerRefLength = 191

// OwnerContextMiddleware reads the owner header into the request context.
// Malformed references are treated as anonymous.
func OwnerContextMiddleware(c *fiber.Ctx) error {
	ctx := usercontext.GetOwnerContext(c)
	owner := strings.TrimSpace(c.Get(media.OwnerHeader))
	if validOwnerRef(owner) {
		ctx.OwnerRef = owner
		ctx.IsIdentified = true
	}
	usercontext.SetOwnerContext(c, ctx)
	return c.Next()
}

func validOwnerRef(owner string) bool {
	if owner == "" || len(owner) > maxOwnerRefLength {
		return false
	}
	for _, r := range owner {
		if r <= ' ' || r == 0x7f {
			return false
		}
	}
	return true
}
