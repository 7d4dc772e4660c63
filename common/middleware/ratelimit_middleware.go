package middleware

import (
	"context"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/pulse/vidmod/common/apperrors"
	"github.com/pulse/vidmod/common/logger"
	"github.com/pulse/vidmod/common/ratelimit"
)

// UsernameContextKey is the echo context key set by the auth middleware
const UsernameContextKey = "username"

// UserLimiter checks a per-user budget
type UserLimiter interface {
	CheckUserLimit(ctx context.Context, username, action string, policy ratelimit.Policy) (*ratelimit.RateLimitResult, error)
}

// UserRateLimitMiddleware checks per-user rate limits for one action.
// Requires username to be set in context by the auth middleware.
// Limiter errors fail open for availability.
func UserRateLimitMiddleware(limiter UserLimiter, action string, policy ratelimit.Policy, log *logger.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			username, ok := c.Get(UsernameContextKey).(string)
			if !ok || username == "" {
				return next(c)
			}

			result, err := limiter.CheckUserLimit(c.Request().Context(), username, action, policy)
			if err != nil {
				log.WithContext(c.Request().Context()).Warn("rate limiter unavailable, allowing request",
					"action", action, "username", username, "error", err)
				return next(c)
			}

			if !result.Allowed {
				c.Response().Header().Set("Retry-After", strconv.FormatInt(result.RetryAfterSeconds, 10))
				return apperrors.New(apperrors.KindRateLimited, "middleware.UserRateLimit",
					"You have exceeded your "+action+" quota. Please wait before trying again.")
			}

			return next(c)
		}
	}
}
