package router

import (
	"net"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/storage/redis"

	"github.com/ManuelReschke/CourseFox/internal/pkg/cache"
	"github.com/ManuelReschke/CourseFox/internal/pkg/env"
)

// limiterDatabase keeps rate limit counters apart from the cache (DB 0).
const limiterDatabase = 1

// newLimiterStorage shares the rate limit counters between instances through
// redis. Without a cache client the limiter falls back to process memory.
func newLimiterStorage() fiber.Storage {
	client := cache.GetClient()
	if client == nil {
		return nil
	}

	host := "localhost"
	port := 6379
	if h, p, err := net.SplitHostPort(client.Options().Addr); err == nil {
		host = h
		if v, err := strconv.Atoi(p); err == nil {
			port = v
		}
	}
	password := env.GetEnv("CACHE_PASSWORD", "")
	if p := client.Options().Password; p != "" {
		password = p
	}

	log.Infof("[Router] Rate limiter uses redis %s:%d db %d", host, port, limiterDatabase)
	return redis.New(redis.Config{
		Host:     host,
		Port:     port,
		Password: password,
		Database: limiterDatabase,
		Reset:    false,
	})
}

// newLimiter builds a per-IP limiter. RATE_LIMIT_MAX <= 0 disables it.
func newLimiter(storage fiber.Storage) fiber.Handler {
	limit := env.GetEnvInt("RATE_LIMIT_MAX", 120)
	if limit <= 0 {
		return func(c *fiber.Ctx) error { return c.Next() }
	}
	cfg := limiter.Config{
		Max:        limit,
		Expiration: time.Minute,
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error":   "too_many_requests",
				"message": "Rate limit exceeded",
			})
		},
	}
	if storage != nil {
		cfg.Storage = storage
	}
	return limiter.New(cfg)
}
