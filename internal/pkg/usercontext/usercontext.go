package usercontext

import "github.com/gofiber/fiber/v2"

// OwnerContext identifies the caller of a request. The owner reference is
// opaque and supplied by the gateway in front of the service.
type OwnerContext struct {
	OwnerRef        string `json:"owner_ref"`
	IsIdentified    bool   `json:"is_identified"`
	ServiceVerified bool   `json:"service_verified"`
}

// GetOwnerContext returns the owner context or an anonymous one.
func GetOwnerContext(c *fiber.Ctx) OwnerContext {
	if ctx, ok := c.Locals(KeyOwnerContext).(OwnerContext); ok {
		return ctx
	}
	return OwnerContext{}
}

// SetOwnerContext stores ctx and the legacy single-value locals.
func SetOwnerContext(c *fiber.Ctx, ctx OwnerContext) {
	c.Locals(KeyOwnerContext, ctx)
	c.Locals(KeyOwnerRef, ctx.OwnerRef)
	c.Locals(KeyServiceAuth, ctx.ServiceVerified)
}

func IsIdentified(c *fiber.Ctx) bool {
	return GetOwnerContext(c).IsIdentified
}

// GetOwnerRef returns the caller's owner reference, or "" when anonymous.
func GetOwnerRef(c *fiber.Ctx) string {
	return GetOwnerContext(c).OwnerRef
}
