package types

import "time"

// DispatchRequest is sent by external automation to the host deploy daemon.
type DispatchRequest struct {
	EventType string    `json:"event_type"`
	Reason    string    `json:"reason,omitempty"`
	AlertType AlertType `json:"alert_type"`
	MonitorID string    `json:"monitor_id,omitempty"`
	SentAt    time.Time `json:"sent_at"`
}

const DispatchEventRestart = "restart"

type DispatchResponse struct {
	Status string `json:"status"`
}
