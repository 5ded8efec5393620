package ratelimit

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/CaptionFox/internal/pkg/entitlements"
	"github.com/ManuelReschke/CaptionFox/internal/pkg/usercontext"
)

func TestPerUser_LimitsEachUserSeparately(t *testing.T) {
	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		if c.Get("X-User") == "1" {
			usercontext.SetUserContext(c, usercontext.UserContext{UserID: 1, IsLoggedIn: true, Tier: entitlements.TierPro})
		}
		return c.Next()
	})
	app.Post("/upload", PerUser(Config{Max: 2, Expiration: time.Minute}), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusCreated)
	})

	do := func(user string) int {
		req := httptest.NewRequest(fiber.MethodPost, "/upload", nil)
		if user != "" {
			req.Header.Set("X-User", user)
		}
		resp, err := app.Test(req)
		require.NoError(t, err)
		return resp.StatusCode
	}

	assert.Equal(t, fiber.StatusCreated, do("1"))
	assert.Equal(t, fiber.StatusCreated, do("1"))
	assert.Equal(t, fiber.StatusTooManyRequests, do("1"))
	assert.Equal(t, fiber.StatusCreated, do(""), "anonymous requests use their own bucket")
}

func TestLoadUploadConfig(t *testing.T) {
	t.Setenv("UPLOAD_RATE_LIMIT", "5")
	cfg := LoadUploadConfig(nil)
	assert.Equal(t, 5, cfg.Max)
	assert.Equal(t, time.Minute, cfg.Expiration)
	assert.Nil(t, cfg.Storage)
}
