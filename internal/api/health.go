package api

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/masa-finance/bot-guardian/api/types"
	"github.com/masa-finance/bot-guardian/internal/health"
)

// Healthz is the liveness probe endpoint. Answering at all proves the
// process is scheduled and serving; the upstream session is not inspected.
func Healthz() func(c echo.Context) error {
	return func(c echo.Context) error {
		return c.JSON(http.StatusOK, types.Liveness{
			Status:  "ok",
			Service: health.ServiceName,
		})
	}
}

// HealthDetailed is the strict probe polled by the external monitor. It
// only reads the reporter's cached state and never touches the network, so
// its latency does not depend on the upstream service.
func HealthDetailed(reporter health.StateReader) func(c echo.Context) error {
	return func(c echo.Context) error {
		snap := reporter.Snapshot()

		code := http.StatusOK
		if !snap.Status.Serving() {
			code = http.StatusServiceUnavailable
			logrus.WithFields(logrus.Fields{
				"reason":            snap.Reason,
				"gateway_connected": snap.GatewayConnected,
				"heartbeat_age":     snap.LastHeartbeatAgeSeconds,
			}).Warn("Detailed health probe failing")
		}

		return c.JSON(code, snap)
	}
}

func Ping() func(c echo.Context) error {
	return func(c echo.Context) error {
		return c.JSON(http.StatusOK, types.Ping{Message: "pong", Timestamp: time.Now().UTC()})
	}
}
