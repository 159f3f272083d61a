package middleware

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"

	ierr "github.com/usageline/usageline/internal/errors"
	"github.com/usageline/usageline/internal/logger"
	"github.com/usageline/usageline/internal/service"
	"github.com/usageline/usageline/internal/types"
)

// ctxKeyRateLimit carries the authenticated tenant's per-minute limit
// from auth to the rate limiter.
const ctxKeyRateLimit = "tenant_rate_limit"

// AuthenticateMiddleware resolves the tenant from either the X-API-Key
// header or an Authorization Bearer token and sets the tenant ID in the
// request context for downstream handlers.
func AuthenticateMiddleware(tenantService service.TenantService, logger *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		apiKey := c.GetHeader("X-API-Key")
		if apiKey == "" {
			authHeader := c.GetHeader("Authorization")
			if strings.HasPrefix(authHeader, "Bearer ") {
				apiKey = strings.TrimPrefix(authHeader, "Bearer ")
			}
		}

		if apiKey == "" {
			c.Error(ierr.NewError("missing api key").
				WithHint("Authentication required").
				Mark(ierr.ErrAuthRequired))
			c.Abort()
			return
		}

		t, err := tenantService.Authenticate(c.Request.Context(), apiKey)
		if err != nil {
			logger.Debugw("api key rejected", "error", err)
			c.Error(err)
			c.Abort()
			return
		}

		ctx := c.Request.Context()
		ctx = context.WithValue(ctx, types.CtxTenantID, t.ID)
		c.Request = c.Request.WithContext(ctx)

		if t.RateLimitPerMinute > 0 {
			c.Set(ctxKeyRateLimit, t.RateLimitPerMinute)
		}
		c.Next()
	}
}
