package middleware

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/CaptionFox/internal/pkg/usercontext"
)

// RequireUser rejects requests that did not resolve to a known user.
func RequireUser(c *fiber.Ctx) error {
	if !usercontext.IsLoggedIn(c) {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error":   "unauthorized",
			"message": "missing or unknown " + usercontext.HeaderUserID,
		})
	}
	return c.Next()
}

// RequireAdmin passes requests already flagged as admin by AdminTokenMiddleware.
func RequireAdmin(c *fiber.Ctx) error {
	if !usercontext.IsAdmin(c) {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error":   "forbidden",
			"message": "admin token required",
		})
	}
	return c.Next()
}
