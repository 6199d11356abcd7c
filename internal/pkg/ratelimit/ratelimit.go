package ratelimit

import (
	"context"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/storage/redis"

	"github.com/ManuelReschke/SubFox/internal/pkg/cache"
	"github.com/ManuelReschke/SubFox/internal/pkg/env"
)

// storageDatabase keeps limiter counters apart from the cache (DB 0).
const storageDatabase = 1

// NewStorage returns a Redis backed limiter storage, or nil when the cache
// server is unreachable so the limiter falls back to in-memory counters.
func NewStorage() fiber.Storage {
	cacheClient := cache.GetClient()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if cacheClient.Ping(ctx).Err() != nil {
		log.Warn("[RateLimit] Cache unavailable, using in-memory rate limit counters")
		return nil
	}

	// Reuse the cache connection settings
	host := "localhost"
	port := 6379
	addr := cacheClient.Options().Addr
	if h, p, err := net.SplitHostPort(addr); err == nil {
		host = h
		if v, err := strconv.Atoi(p); err == nil {
			port = v
		}
	}

	return redis.New(redis.Config{
		Host:     host,
		Port:     port,
		Password: cacheClient.Options().Password,
		Database: storageDatabase,
		Reset:    false,
	})
}

// Config reads RATE_LIMIT_MAX and RATE_LIMIT_WINDOW_SECONDS.
func Config(storage fiber.Storage) limiter.Config {
	return limiter.Config{
		Max:          env.GetEnvInt("RATE_LIMIT_MAX", 120),
		Expiration:   time.Duration(env.GetEnvInt("RATE_LIMIT_WINDOW_SECONDS", 60)) * time.Second,
		Storage:      storage,
		KeyGenerator: KeyFor,
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error":   "too_many_requests",
				"message": "rate limit exceeded",
			})
		},
	}
}

// New returns the limiter middleware for the API.
func New(storage fiber.Storage) fiber.Handler {
	return limiter.New(Config(storage))
}

// KeyFor limits per API key prefix when a key is sent and per client IP otherwise.
func KeyFor(c *fiber.Ctx) string {
	key := strings.TrimSpace(c.Get("X-API-Key"))
	if key == "" {
		auth := strings.TrimSpace(c.Get("Authorization"))
		if strings.HasPrefix(strings.ToLower(auth), "bearer ") {
			key = strings.TrimSpace(auth[7:])
		}
	}
	if key != "" {
		if len(key) > 16 {
			key = key[:16]
		}
		return "key:" + key
	}
	return "ip:" + c.IP()
}
