package domain

import "time"

type AlertSeverity string

const (
	AlertSeverityWarning  AlertSeverity = "warning"
	AlertSeverityCritical AlertSeverity = "critical"
)

// Alert represents a raised health condition tracked until resolution.
// One alert exists per (check, status) pair; repeats bump Count.
type Alert struct {
	ID         string        `json:"id"`
	Check      string        `json:"check"`
	Status     HealthStatus  `json:"status"`
	Severity   AlertSeverity `json:"severity"`
	Message    string        `json:"message"`
	Count      int           `json:"count"`
	Active     bool          `json:"active"`
	FirstSeen  time.Time     `json:"first_seen"`
	LastSeen   time.Time     `json:"last_seen"`
	ResolvedAt time.Time     `json:"resolved_at,omitempty"`
}
