package model

import "time"

// AlertType represents the kind of condition an alert reports
type AlertType string

const (
	AlertTypeEscalation   AlertType = "escalation"
	AlertTypeHealthChange AlertType = "health_change"
)

// Alert represents a notification published when a stream escalates or its
// health state changes. Alerts are informational; there is no automatic
// resolution of the underlying condition.
type Alert struct {
	ID        string            `json:"id"`
	Type      AlertType         `json:"type"`
	Stream    string            `json:"stream"`
	Code      string            `json:"code,omitempty"`
	Severity  Severity          `json:"severity"`
	Health    HealthState       `json:"health,omitempty"`
	Message   string            `json:"message"`
	Data      map[string]string `json:"data,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}
