package ratelimit

import (
	"net"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/storage/redis"

	"github.com/ManuelReschke/CaptionFox/internal/pkg/cache"
	"github.com/ManuelReschke/CaptionFox/internal/pkg/env"
	"github.com/ManuelReschke/CaptionFox/internal/pkg/usercontext"
)

// limiterDatabase keeps limiter counters apart from jobs and stage status in DB 0.
const limiterDatabase = 1

// NewRedisStorage builds limiter storage on the same Redis server as the cache.
func NewRedisStorage() fiber.Storage {
	host := env.GetEnv("CACHE_HOST", "localhost")
	port := env.GetEnvInt("CACHE_PORT", 6379)
	password := env.GetEnv("CACHE_PASSWORD", "")
	if client := cache.GetClient(); client != nil {
		if h, p, err := net.SplitHostPort(client.Options().Addr); err == nil {
			host = h
			if v, err := strconv.Atoi(p); err == nil {
				port = v
			}
		}
		if p := client.Options().Password; p != "" {
			password = p
		}
	}

	log.Infof("[RateLimit] Using redis %s:%d db %d", host, port, limiterDatabase)
	return redis.New(redis.Config{
		Host:     host,
		Port:     port,
		Password: password,
		Database: limiterDatabase,
		Reset:    false,
	})
}

// Config bounds requests per key within a window.
type Config struct {
	Max        int
	Expiration time.Duration
	// Storage is nil for the in-memory store.
	Storage fiber.Storage
}

// LoadUploadConfig reads UPLOAD_RATE_LIMIT (per minute, default 20).
func LoadUploadConfig(storage fiber.Storage) Config {
	return Config{
		Max:        env.GetEnvInt("UPLOAD_RATE_LIMIT", 20),
		Expiration: env.GetEnvDuration("UPLOAD_RATE_WINDOW", time.Minute),
		Storage:    storage,
	}
}

// PerUser limits by resolved user, falling back to the client IP.
func PerUser(cfg Config) fiber.Handler {
	return limiter.New(limiter.Config{
		Max:        cfg.Max,
		Expiration: cfg.Expiration,
		Storage:    cfg.Storage,
		KeyGenerator: func(c *fiber.Ctx) string {
			if id := usercontext.GetUserID(c); id != 0 {
				return "user:" + strconv.FormatUint(uint64(id), 10)
			}
			return "ip:" + c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error":   "too_many_requests",
				"message": "upload rate limit reached, try again shortly",
			})
		},
	})
}
