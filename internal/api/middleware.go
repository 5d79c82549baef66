package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/masa-finance/bot-guardian/internal/config"
)

const (
	HealthCheckPath         = "/health"
	DetailedHealthCheckPath = "/health/detailed"
	PingPath                = "/ping"
	MetricsPath             = "/metrics"
	WebhookRestartPath      = "/webhook/restart"
	RefreshPath             = "/refresh"
)

func isUnauthenticatedPath(path string) bool {
	switch path {
	case HealthCheckPath, DetailedHealthCheckPath, PingPath, MetricsPath:
		return true
	}
	return false
}

// APIKeyAuthMiddleware returns an Echo middleware that checks for the API key
// on the mutating endpoints. Probes stay open so monitors need no secret.
func APIKeyAuthMiddleware(cfg config.Configuration) echo.MiddlewareFunc {
	apiKey := cfg.APIKey()
	if apiKey == "" {
		// No API key set; allow all requests (no-op)
		return func(next echo.HandlerFunc) echo.HandlerFunc {
			return next
		}
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if isUnauthenticatedPath(c.Request().URL.Path) {
				return next(c)
			}

			// Check Authorization: Bearer <API_KEY> or X-API-Key header
			header := c.Request().Header.Get("Authorization")
			if header == "Bearer "+apiKey {
				return next(c)
			}
			if c.Request().Header.Get("X-API-Key") == apiKey {
				return next(c)
			}
			// Webhook senders that cannot set headers put it in the URL.
			if c.QueryParam("token") == apiKey {
				return next(c)
			}
			return echo.NewHTTPError(http.StatusUnauthorized, "missing or invalid API key")
		}
	}
}
