package router

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/CaptionFox/app/controllers"
	"github.com/ManuelReschke/CaptionFox/internal/pkg/constants"
)

func (h HttpRouter) registerPublicRoutes(app *fiber.App) {
	app.Get(constants.HealthRoute, func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	if h.deps.StaticDir != "" {
		app.Static(constants.ScriptsRoute, h.deps.StaticDir, fiber.Static{
			CacheDuration: 15 * time.Second,
			Compress:      true,
		})
	}

	webhooks := controllers.NewWebhookController(h.deps.Billing)
	app.Post(constants.StripeWebhookRoute, webhooks.HandleStripe)
}
