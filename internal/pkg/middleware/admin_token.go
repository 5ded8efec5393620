package middleware

import (
	"crypto/subtle"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/CaptionFox/internal/pkg/usercontext"
)

// AdminTokenMiddleware marks the request as admin when it carries the
// configured token. An empty token disables admin access entirely.
func AdminTokenMiddleware(token string) fiber.Handler {
	if token == "" {
		log.Warn("[Admin] ADMIN_TOKEN not set, admin endpoints are disabled")
	}
	return func(c *fiber.Ctx) error {
		presented := extractAdminToken(c)
		if token != "" && presented != "" && subtle.ConstantTimeCompare([]byte(presented), []byte(token)) == 1 {
			uc := usercontext.GetUserContext(c)
			uc.IsAdmin = true
			usercontext.SetUserContext(c, uc)
		}
		return c.Next()
	}
}

func extractAdminToken(c *fiber.Ctx) string {
	if v := strings.TrimSpace(c.Get(usercontext.HeaderAdmin)); v != "" {
		return v
	}
	auth := strings.TrimSpace(c.Get(fiber.HeaderAuthorization))
	if len(auth) > 7 && strings.EqualFold(auth[:7], "bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	return ""
}
