package middleware

import (
	"errors"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/ManuelReschke/CaptionFox/app/repository"
	"github.com/ManuelReschke/CaptionFox/internal/pkg/entitlements"
	"github.com/ManuelReschke/CaptionFox/internal/pkg/usage"
	"github.com/ManuelReschke/CaptionFox/internal/pkg/usercontext"
)

// UserContextMiddleware resolves the upstream identity header into the
// request's UserContext: the user, the access tier and a quota snapshot.
// Requests without the header continue as anonymous.
func UserContextMiddleware(repos *repository.Repositories, ledger *usage.Ledger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		anonymous := usercontext.UserContext{Tier: entitlements.TierStarter}

		raw := strings.TrimSpace(c.Get(usercontext.HeaderUserID))
		if raw == "" {
			usercontext.SetUserContext(c, anonymous)
			return c.Next()
		}
		id, err := strconv.ParseUint(raw, 10, 64)
		if err != nil || id == 0 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "invalid " + usercontext.HeaderUserID})
		}

		user, err := repos.User.GetByID(uint(id))
		if errors.Is(err, gorm.ErrRecordNotFound) {
			usercontext.SetUserContext(c, anonymous)
			return c.Next()
		}
		if err != nil {
			log.Errorf("[UserContext] Failed to load user %d: %v", id, err)
			return fiber.ErrInternalServerError
		}

		now := ledger.Now()
		sub, err := repos.Subscription.GetActiveForUser(user.ID, now)
		if err != nil {
			log.Warnf("[UserContext] Subscription lookup failed for user %d: %v", user.ID, err)
		}

		uc := usercontext.UserContext{
			UserID:     user.ID,
			Email:      user.Email,
			IsLoggedIn: true,
			Tier:       entitlements.ResolveTier(user, sub, now),
		}
		if quota, err := ledger.Snapshot(uc); err == nil {
			uc.Quota = quota
		} else {
			log.Warnf("[UserContext] Quota snapshot failed for user %d: %v", user.ID, err)
		}

		usercontext.SetUserContext(c, uc)
		return c.Next()
	}
}
