package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/CaptionFox/app/controllers"
	"github.com/ManuelReschke/CaptionFox/internal/pkg/constants"
	"github.com/ManuelReschke/CaptionFox/internal/pkg/middleware"
)

func (a ApiRouter) registerAdminRoutes(v1 fiber.Router) {
	queues := controllers.NewAdminQueueController(a.deps.Repos.Queue, a.deps.Jobs)

	admin := v1.Group(constants.AdminRoute, middleware.RequireAdmin)
	admin.Get("/queues", queues.HandleQueueStats)
	admin.Get("/jobs/:id", queues.HandleGetJob)
	admin.Post("/photos/requeue", queues.HandleRequeueStale)
}
