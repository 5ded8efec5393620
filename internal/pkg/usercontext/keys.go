package usercontext

// Shared Locals keys used across controllers and middlewares
const (
	LocalsKey    = "USER_CONTEXT"
	HeaderUserID = "X-User-ID"
	HeaderAdmin  = "X-Admin-Token"
)
