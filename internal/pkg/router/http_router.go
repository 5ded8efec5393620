package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/CaptionFox/internal/pkg/middleware"
)

type HttpRouter struct {
	deps Dependencies
}

func (h HttpRouter) InstallRouter(app *fiber.App) {
	// Resolve identity and admin flag for every request.
	app.Use(middleware.UserContextMiddleware(h.deps.Repos, h.deps.Monitor.Ledger()))
	app.Use(middleware.AdminTokenMiddleware(h.deps.AdminToken))

	h.registerPublicRoutes(app)
}

func NewHttpRouter(deps Dependencies) *HttpRouter {
	return &HttpRouter{deps: deps}
}
