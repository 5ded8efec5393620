package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/ManuelReschke/CaptionFox/app/controllers"
	"github.com/ManuelReschke/CaptionFox/app/repository"
	"github.com/ManuelReschke/CaptionFox/internal/pkg/billing"
	"github.com/ManuelReschke/CaptionFox/internal/pkg/cache"
	"github.com/ManuelReschke/CaptionFox/internal/pkg/captioner"
	"github.com/ManuelReschke/CaptionFox/internal/pkg/database"
	"github.com/ManuelReschke/CaptionFox/internal/pkg/env"
	"github.com/ManuelReschke/CaptionFox/internal/pkg/jobqueue"
	"github.com/ManuelReschke/CaptionFox/internal/pkg/mail"
	"github.com/ManuelReschke/CaptionFox/internal/pkg/photoupload"
	"github.com/ManuelReschke/CaptionFox/internal/pkg/ratelimit"
	"github.com/ManuelReschke/CaptionFox/internal/pkg/router"
	"github.com/ManuelReschke/CaptionFox/internal/pkg/storage"
	"github.com/ManuelReschke/CaptionFox/internal/pkg/upload"
	"github.com/ManuelReschke/CaptionFox/internal/pkg/usage"
)

func main() {
	app, jobs := NewApplication()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		addr := fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "localhost"), env.GetEnv("APP_PORT", "4000"))
		if err := app.Listen(addr); err != nil {
			log.Fatalf("[App] Server stopped: %v", err)
		}
	}()

	<-ctx.Done()
	log.Info("[App] Shutting down")
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		log.Errorf("[App] Shutdown: %v", err)
	}
	jobs.Stop()
}

// NewApplication wires configuration, storage, the job pipeline and the HTTP
// routes. The returned manager is already running.
func NewApplication() (*fiber.App, *jobqueue.Manager) {
	env.SetupEnvFile()
	database.SetupDatabase()
	cache.SetupCache()

	repository.InitializeFactory(database.GetDB())
	repos := repository.GetGlobalRepositories()

	store, err := storage.NewFromEnv(context.Background())
	if err != nil {
		log.Fatalf("[App] Storage setup failed: %v", err)
	}

	ledger := usage.NewLedger(repos.User, repos.Photo, repos.Caption, usage.ParsePolicy(env.GetEnv("USAGE_FREE_TIER_POLICY", "")))
	monitor := usage.NewMonitor(ledger, repos.User, mail.NewFromEnv())

	model, err := captioner.NewOpenAIModelFromEnv()
	if err != nil {
		log.Fatalf("[App] Caption model setup failed: %v", err)
	}
	captions := captioner.NewService(model, ledger, repos, captioner.StoreImageSource{Store: store}).
		WithCallTimeout(env.GetEnvDuration("OPENAI_TIMEOUT", captioner.DefaultCallTimeout))

	cfg := jobqueue.LoadConfig()
	pipeline := jobqueue.NewPipeline(jobqueue.NewQueue(cache.GetClient(), cfg.Workers), repos, store, captions)
	jobs := jobqueue.NewManager(pipeline, cfg)
	jobs.Start()

	app := fiber.New(fiber.Config{
		AppName:      "CaptionFox",
		ErrorHandler: controllers.ErrorHandler,
		// multipart overhead on top of the largest accepted photo
		BodyLimit: int(upload.MaxFileSize) + 2<<20,
	})
	app.Use(recover.New(), logger.New())

	router.InstallRouter(app, router.Dependencies{
		Repos:      repos,
		Monitor:    monitor,
		Uploads:    photoupload.NewService(repos, store, monitor, pipeline),
		Billing:    billing.NewServiceFromEnv(database.GetDB()),
		Jobs:       jobs,
		AdminToken: env.GetEnv("ADMIN_TOKEN", ""),
		UploadRate: ratelimit.LoadUploadConfig(ratelimit.NewRedisStorage()),
		StaticDir:  env.GetEnv("STATIC_DIR", "./public/js"),
	})

	return app, jobs
}
