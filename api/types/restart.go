package types

import (
	"fmt"
	"strconv"
	"strings"
)

// AlertType is the discriminator carried by uptime monitor webhooks.
type AlertType int

const (
	AlertUp   AlertType = 0
	AlertDown AlertType = 1
)

func (a AlertType) String() string {
	switch a {
	case AlertUp:
		return "up"
	case AlertDown:
		return "down"
	default:
		return fmt.Sprintf("unknown(%d)", int(a))
	}
}

// ParseAlertType accepts the numeric form used by monitors ("0", "1") as well
// as the names "up" and "down".
func ParseAlertType(s string) (AlertType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "0", "up":
		return AlertUp, nil
	case "1", "down":
		return AlertDown, nil
	}
	if n, err := strconv.Atoi(s); err == nil {
		return AlertType(n), fmt.Errorf("unsupported alert type %d", n)
	}
	return AlertDown, fmt.Errorf("invalid alert type %q", s)
}

// RestartSignal exists only for the duration of one webhook request.
type RestartSignal struct {
	AlertType AlertType `json:"alertType"`
	MonitorID string    `json:"monitorID,omitempty"`
}

const RestartTriggered = "restart_triggered"

type RestartResponse struct {
	Result string `json:"result"`
}

// GenerationHeader carries the id of the worker process generation that
// accepted an intentional-exit request.
const GenerationHeader = "X-Process-Generation"
