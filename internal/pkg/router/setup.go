package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/CaptionFox/app/repository"
	"github.com/ManuelReschke/CaptionFox/internal/pkg/billing"
	"github.com/ManuelReschke/CaptionFox/internal/pkg/jobqueue"
	"github.com/ManuelReschke/CaptionFox/internal/pkg/photoupload"
	"github.com/ManuelReschke/CaptionFox/internal/pkg/ratelimit"
	"github.com/ManuelReschke/CaptionFox/internal/pkg/usage"
)

// Router registers a group of routes on the app.
type Router interface {
	InstallRouter(app *fiber.App)
}

// Dependencies are the services the handlers are built from.
type Dependencies struct {
	Repos      *repository.Repositories
	Monitor    *usage.Monitor
	Uploads    *photoupload.Service
	Billing    *billing.Service
	Jobs       *jobqueue.Manager
	AdminToken string
	UploadRate ratelimit.Config
	// StaticDir serves public/js for the polling script; empty disables it.
	StaticDir string
}

func InstallRouter(app *fiber.App, deps Dependencies) {
	// The HTTP router installs the identity middleware the API routes depend on.
	setup(app, NewHttpRouter(deps), NewApiRouter(deps))
}

func setup(app *fiber.App, router ...Router) {
	for _, r := range router {
		r.InstallRouter(app)
	}
}
