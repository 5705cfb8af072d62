package health

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/vietddude/keeper/internal/core/domain"
	"github.com/vietddude/keeper/internal/core/event"
)

// Archive persists alerts as they change. Implementations must be
// safe for concurrent use.
type Archive interface {
	SaveAlert(ctx context.Context, alert *domain.Alert) error
}

// AlertLog tracks raised health conditions. Alerts are keyed by
// check and status so a flapping check bumps the same record instead
// of growing the log. Resolved alerts stay in the log, deactivated.
type AlertLog struct {
	bus     *event.Bus
	archive Archive

	mu     sync.Mutex
	alerts map[string]*domain.Alert
	order  []string
}

// NewAlertLog creates an alert log. Both bus and archive may be nil.
func NewAlertLog(bus *event.Bus, archive Archive) *AlertLog {
	return &AlertLog{
		bus:     bus,
		archive: archive,
		alerts:  make(map[string]*domain.Alert),
	}
}

// Observe feeds one check result into the log. A healthy result
// resolves every active alert for that check; anything else raises
// or bumps the alert keyed by check and status.
func (l *AlertLog) Observe(ctx context.Context, res Result) {
	if res.Status == domain.HealthStatusHealthy {
		l.resolve(ctx, res)
		return
	}
	l.raise(ctx, res)
}

func (l *AlertLog) raise(ctx context.Context, res Result) {
	key := res.Check + ":" + string(res.Status)

	l.mu.Lock()
	alert, ok := l.alerts[key]
	if ok && alert.Active {
		alert.Count++
		alert.LastSeen = res.Timestamp
		alert.Message = res.Message
		snapshot := *alert
		l.mu.Unlock()
		l.persist(ctx, &snapshot)
		return
	}
	if ok {
		// Condition came back after resolving, reactivate the record.
		alert.Active = true
		alert.Count++
		alert.LastSeen = res.Timestamp
		alert.Message = res.Message
		alert.ResolvedAt = time.Time{}
	} else {
		alert = &domain.Alert{
			ID:        key,
			Check:     res.Check,
			Status:    res.Status,
			Severity:  severityFor(res.Status),
			Message:   res.Message,
			Count:     1,
			Active:    true,
			FirstSeen: res.Timestamp,
			LastSeen:  res.Timestamp,
		}
		l.alerts[key] = alert
		l.order = append(l.order, key)
	}
	snapshot := *alert
	l.mu.Unlock()

	slog.Warn("health alert raised",
		"check", snapshot.Check,
		"status", snapshot.Status,
		"severity", snapshot.Severity,
		"message", snapshot.Message)
	l.publish(event.KindHealthAlert, &snapshot)
	l.persist(ctx, &snapshot)
}

func (l *AlertLog) resolve(ctx context.Context, res Result) {
	var resolved []domain.Alert

	l.mu.Lock()
	for _, key := range l.order {
		alert := l.alerts[key]
		if alert.Check != res.Check || !alert.Active {
			continue
		}
		alert.Active = false
		alert.ResolvedAt = res.Timestamp
		resolved = append(resolved, *alert)
	}
	l.mu.Unlock()

	for i := range resolved {
		slog.Info("health alert resolved",
			"check", resolved[i].Check,
			"status", resolved[i].Status)
		l.publish(event.KindHealthAlertResolved, &resolved[i])
		l.persist(ctx, &resolved[i])
	}
}

// Active returns the currently active alerts in raise order.
func (l *AlertLog) Active() []domain.Alert {
	l.mu.Lock()
	defer l.mu.Unlock()

	var out []domain.Alert
	for _, key := range l.order {
		if alert := l.alerts[key]; alert.Active {
			out = append(out, *alert)
		}
	}
	return out
}

// All returns every alert ever raised, resolved ones included.
func (l *AlertLog) All() []domain.Alert {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]domain.Alert, 0, len(l.order))
	for _, key := range l.order {
		out = append(out, *l.alerts[key])
	}
	return out
}

// ActiveCount returns how many alerts are currently active.
func (l *AlertLog) ActiveCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	n := 0
	for _, alert := range l.alerts {
		if alert.Active {
			n++
		}
	}
	return n
}

func (l *AlertLog) publish(kind event.Kind, alert *domain.Alert) {
	if l.bus == nil {
		return
	}
	l.bus.Publish(kind, map[string]any{
		"id":       alert.ID,
		"check":    alert.Check,
		"status":   string(alert.Status),
		"severity": string(alert.Severity),
		"message":  alert.Message,
		"count":    alert.Count,
	})
}

func (l *AlertLog) persist(ctx context.Context, alert *domain.Alert) {
	if l.archive == nil {
		return
	}
	if err := l.archive.SaveAlert(ctx, alert); err != nil {
		slog.Warn("failed to persist alert", "id", alert.ID, "error", err)
	}
}

func severityFor(status domain.HealthStatus) domain.AlertSeverity {
	if status == domain.HealthStatusUnhealthy {
		return domain.AlertSeverityCritical
	}
	return domain.AlertSeverityWarning
}
