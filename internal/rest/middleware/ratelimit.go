package middleware

import (
	"fmt"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/usageline/usageline/internal/config"
	ierr "github.com/usageline/usageline/internal/errors"
	"github.com/usageline/usageline/internal/logger"
	"github.com/usageline/usageline/internal/types"
)

const rateLimitWindow = time.Minute

// RateLimitMiddleware enforces a fixed per-minute window per tenant and
// client IP using a Redis counter. A batch request counts as one. When
// Redis is unreachable the limiter fails open so ingest stays up.
func RateLimitMiddleware(client *redis.Client, cfg *config.Configuration, log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		limit := cfg.API.RateLimitPerMinute
		if tenantLimit, ok := c.Get(ctxKeyRateLimit); ok {
			if n, ok := tenantLimit.(int); ok && n > 0 {
				limit = n
			}
		}

		subject := types.GetTenantID(ctx)
		if subject == "" {
			subject = "anonymous"
		}
		key := fmt.Sprintf("ratelimit:%s:%s", subject, c.ClientIP())

		count, err := client.Incr(ctx, key).Result()
		if err != nil {
			log.Warnw("rate limiter unavailable, allowing request", "error", err)
			c.Next()
			return
		}
		if count == 1 {
			client.Expire(ctx, key, rateLimitWindow)
		}

		remaining := int64(limit) - count
		if remaining < 0 {
			remaining = 0
		}

		ttl, _ := client.TTL(ctx, key).Result()
		if ttl <= 0 {
			ttl = rateLimitWindow
		}
		reset := time.Now().Add(ttl).Unix()

		c.Header("X-RateLimit-Limit", strconv.Itoa(limit))
		c.Header("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(reset, 10))

		if count > int64(limit) {
			c.Header("Retry-After", strconv.Itoa(int(ttl.Seconds())))
			c.Error(ierr.NewError("rate limit exceeded").
				WithHint("Rate limit exceeded, slow down").
				WithReportableDetails(map[string]any{
					"limit":  limit,
					"window": "1m",
				}).
				Mark(ierr.ErrRateLimited))
			c.Abort()
			return
		}

		c.Next()
	}
}
