package middleware

import (
	"fmt"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/makeasinger/ttsstream/pkg/response"
	"github.com/redis/go-redis/v9"
)

// RateLimiter counts requests per caller in fixed Redis windows.
type RateLimiter struct {
	redis *redis.Client
}

func NewRateLimiter(redisClient *redis.Client) *RateLimiter {
	return &RateLimiter{redis: redisClient}
}

// subject identifies the caller: the token's user when auth ran, otherwise
// the client address.
func subject(c *fiber.Ctx) string {
	if id := GetUserID(c); id != "" {
		return "user:" + id
	}
	return "ip:" + c.IP()
}

// Limit allows maxRequests per window for each caller under scope. When
// Redis cannot be reached the request goes through.
func (rl *RateLimiter) Limit(scope string, maxRequests int, window time.Duration) fiber.Handler {
	return func(c *fiber.Ctx) error {
		key := fmt.Sprintf("ratelimit:%s:%s", scope, subject(c))
		ctx := c.UserContext()

		var count *redis.IntCmd
		var ttl *redis.DurationCmd
		if _, err := rl.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			count = pipe.Incr(ctx, key)
			ttl = pipe.TTL(ctx, key)
			return nil
		}); err != nil {
			return c.Next()
		}

		// a fresh key, or one that lost its expiry, starts a new window
		resetIn := ttl.Val()
		if resetIn < 0 {
			rl.redis.Expire(ctx, key, window)
			resetIn = window
		}

		remaining := maxRequests - int(count.Val())
		c.Set("X-RateLimit-Limit", strconv.Itoa(maxRequests))
		c.Set("X-RateLimit-Remaining", strconv.Itoa(max(remaining, 0)))

		if remaining < 0 {
			c.Set("Retry-After", strconv.Itoa(int(resetIn.Seconds())))
			return response.RateLimited(c)
		}
		return c.Next()
	}
}

// UploadLimit caps source uploads per caller per hour.
func (rl *RateLimiter) UploadLimit(maxPerHour int) fiber.Handler {
	return rl.Limit("upload", maxPerHour, time.Hour)
}
