package usercontext

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/CaptionFox/internal/pkg/entitlements"
)

// Quota is a point-in-time snapshot of the user's allowance.
type Quota struct {
	PhotosUsed        int `json:"photos_used"`
	PhotoLimit        int `json:"photo_limit"`
	PhotosRemaining   int `json:"photos_remaining"`
	CaptionsUsed      int `json:"captions_used"`
	CaptionLimit      int `json:"caption_limit"`
	CaptionsRemaining int `json:"captions_remaining"`
	DailyPhotosUsed   int `json:"daily_photos_used"`
	Percentage        int `json:"percentage"`
}

// UserContext is passed explicitly into every core operation instead of
// looking up a current user ambiently.
type UserContext struct {
	UserID     uint                    `json:"user_id"`
	Email      string                  `json:"email"`
	IsLoggedIn bool                    `json:"is_logged_in"`
	IsAdmin    bool                    `json:"is_admin"`
	Tier       entitlements.AccessTier `json:"tier"`
	Quota      Quota                   `json:"quota"`
}

// GetUserContext retrieves the user context from fiber context
// Returns a default anonymous context if none is set
func GetUserContext(c *fiber.Ctx) UserContext {
	if ctx, ok := c.Locals(LocalsKey).(UserContext); ok {
		return ctx
	}
	return UserContext{Tier: entitlements.TierStarter}
}

// SetUserContext stores the context for the rest of the request
func SetUserContext(c *fiber.Ctx, uc UserContext) {
	c.Locals(LocalsKey, uc)
}

// IsLoggedIn checks if the current user is logged in
func IsLoggedIn(c *fiber.Ctx) bool {
	return GetUserContext(c).IsLoggedIn
}

// IsAdmin checks if the current user is an admin
func IsAdmin(c *fiber.Ctx) bool {
	return GetUserContext(c).IsAdmin
}

// GetUserID returns the current user's ID, or 0 if not logged in
func GetUserID(c *fiber.Ctx) uint {
	return GetUserContext(c).UserID
}
