package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/CaptionFox/app/controllers"
	"github.com/ManuelReschke/CaptionFox/internal/pkg/constants"
	"github.com/ManuelReschke/CaptionFox/internal/pkg/middleware"
	"github.com/ManuelReschke/CaptionFox/internal/pkg/ratelimit"
)

type ApiRouter struct {
	deps Dependencies
}

func (a ApiRouter) InstallRouter(app *fiber.App) {
	v1 := app.Group(constants.APIPrefix)

	photos := controllers.NewPhotoController(a.deps.Uploads, a.deps.Repos)
	usageCtl := controllers.NewUsageController(a.deps.Monitor, a.deps.Repos.Subscription)

	v1.Post(constants.PhotosRoute, middleware.RequireUser, ratelimit.PerUser(a.deps.UploadRate), photos.HandleUpload)
	v1.Get(constants.PhotoStatusRoute, middleware.RequireUser, photos.HandleStatus)
	v1.Get(constants.PhotoRoute, middleware.RequireUser, photos.HandleShow)
	v1.Get(constants.UsageRoute, middleware.RequireUser, usageCtl.HandleUsage)

	a.registerAdminRoutes(v1)
}

func NewApiRouter(deps Dependencies) *ApiRouter {
	return &ApiRouter{deps: deps}
}
