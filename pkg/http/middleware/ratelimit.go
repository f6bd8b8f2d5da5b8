package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// Allower decides whether a request keyed by key may proceed.
type Allower interface {
	Allow(key string) bool
}

// RateLimit rejects requests with 429 once the caller's bucket is empty.
// Callers are keyed by real client IP.
func RateLimit(limiter Allower, skip func(echo.Context) bool) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if skip != nil && skip(c) {
				return next(c)
			}
			if !limiter.Allow(c.RealIP()) {
				c.Response().Header().Set("Retry-After", "1")
				return c.JSON(http.StatusTooManyRequests, map[string]interface{}{
					"status":  http.StatusTooManyRequests,
					"message": http.StatusText(http.StatusTooManyRequests),
				})
			}
			return next(c)
		}
	}
}
