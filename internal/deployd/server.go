package deployd

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/sirupsen/logrus"

	"github.com/masa-finance/bot-guardian/api/types"
)

const (
	DispatchPath = "/dispatch"
	HealthPath   = "/health"
)

// NewServer builds the host channel used by external compute. Dispatches
// are accepted (202) before the refresh runs; ctx bounds the refreshes.
func NewServer(ctx context.Context, d *Daemon, token string) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.LoggerWithConfig(middleware.LoggerConfig{
		Skipper: func(c echo.Context) bool {
			return c.Request().URL.Path == HealthPath
		},
	}))

	e.GET(HealthPath, func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]any{"status": "ok", "refreshing": d.InFlight()})
	})
	e.POST(DispatchPath, dispatch(ctx, d), bearerAuth(token))

	return e
}

func bearerAuth(token string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if token == "" {
				return next(c)
			}
			got := strings.TrimPrefix(c.Request().Header.Get("Authorization"), "Bearer ")
			if subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
				return c.JSON(http.StatusUnauthorized, types.ErrorResponse{Error: "invalid token"})
			}
			return next(c)
		}
	}
}

func dispatch(ctx context.Context, d *Daemon) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req types.DispatchRequest
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, types.ErrorResponse{Error: "invalid dispatch request"})
		}
		if req.EventType != types.DispatchEventRestart {
			return c.JSON(http.StatusBadRequest, types.ErrorResponse{Error: "unsupported event type: " + req.EventType})
		}

		logrus.WithFields(logrus.Fields{
			"alert_type": req.AlertType.String(),
			"monitor_id": req.MonitorID,
			"reason":     req.Reason,
		}).Info("Restart dispatch received")

		status := "accepted"
		if !d.Trigger(ctx, "dispatch") {
			status = "coalesced"
		}
		return c.JSON(http.StatusAccepted, types.DispatchResponse{Status: status})
	}
}

// Serve runs the server on address until ctx is done.
func Serve(ctx context.Context, e *echo.Echo, address string) error {
	errCh := make(chan error, 1)
	go func() {
		logrus.WithField("address", address).Info("Starting deploy daemon")
		errCh <- e.Start(address)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}
