package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/masa-finance/bot-guardian/api/types"
	"github.com/masa-finance/bot-guardian/internal/lifecycle"
)

// Scheduler is the part of the terminator the handlers use.
type Scheduler interface {
	Schedule(reason string) bool
	Generation() string
}

var _ Scheduler = (*lifecycle.Terminator)(nil)

// WebhookRestart handles uptime monitor alerts. Whatever the alert type, the
// answer is an acknowledgement followed by an exit once it has been flushed;
// exiting first would make the monitor record a failed delivery and retry.
func WebhookRestart(term Scheduler) func(c echo.Context) error {
	return func(c echo.Context) error {
		sig := parseRestartSignal(c)
		logrus.WithFields(logrus.Fields{
			"alert_type": sig.AlertType.String(),
			"monitor_id": sig.MonitorID,
		}).Info("External restart webhook triggered")

		return acknowledgeAndExit(c, term, "webhook:"+sig.AlertType.String())
	}
}

// Refresh is the host-daemon channel. Same contract as the webhook.
func Refresh(term Scheduler) func(c echo.Context) error {
	return func(c echo.Context) error {
		logrus.WithField("remote", c.RealIP()).Info("Refresh requested")
		return acknowledgeAndExit(c, term, "refresh")
	}
}

func acknowledgeAndExit(c echo.Context, term Scheduler, reason string) error {
	c.Response().Header().Set(types.GenerationHeader, term.Generation())
	if err := c.JSON(http.StatusOK, types.RestartResponse{Result: types.RestartTriggered}); err != nil {
		return err
	}
	c.Response().Flush()

	term.Schedule(reason)
	return nil
}

// parseRestartSignal reads alertType/monitorID from the query string, a JSON
// body or a form body, in that order. A missing or unreadable alert type is
// treated as a down alert.
func parseRestartSignal(c echo.Context) types.RestartSignal {
	sig := types.RestartSignal{AlertType: types.AlertDown}

	raw := c.QueryParam("alertType")
	monitorID := c.QueryParam("monitorID")

	req := c.Request()
	if raw == "" && req.ContentLength != 0 {
		ct := req.Header.Get(echo.HeaderContentType)
		switch {
		case strings.HasPrefix(ct, echo.MIMEApplicationJSON):
			var body struct {
				AlertType any `json:"alertType"`
				MonitorID any `json:"monitorID"`
			}
			if err := c.Bind(&body); err != nil {
				logrus.WithError(err).Warn("Unreadable webhook body")
			}
			raw = stringify(body.AlertType)
			if monitorID == "" {
				monitorID = stringify(body.MonitorID)
			}
		case strings.HasPrefix(ct, echo.MIMEApplicationForm):
			raw = c.FormValue("alertType")
			if monitorID == "" {
				monitorID = c.FormValue("monitorID")
			}
		}
	}

	sig.MonitorID = monitorID
	if raw != "" {
		at, err := types.ParseAlertType(raw)
		if err != nil {
			logrus.WithError(err).Warn("Treating webhook as a down alert")
		} else {
			sig.AlertType = at
		}
	}

	return sig
}

func stringify(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	default:
		return ""
	}
}
