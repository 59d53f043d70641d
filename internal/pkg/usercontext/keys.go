package usercontext

// Locals keys shared by middlewares and controllers
const (
	KeyOwnerContext = "OWNER_CONTEXT"
	KeyOwnerRef     = "owner_ref"
	KeyServiceAuth  = "service_authenticated"
)
