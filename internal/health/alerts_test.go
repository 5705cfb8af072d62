package health

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/vietddude/keeper/internal/core/domain"
	"github.com/vietddude/keeper/internal/core/event"
)

// ===== Mocks =====

type signalRecorder struct {
	mu      sync.Mutex
	signals []event.Signal
}

func (r *signalRecorder) add(s event.Signal) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.signals = append(r.signals, s)
}

func (r *signalRecorder) byKind(kind event.Kind) []event.Signal {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []event.Signal
	for _, s := range r.signals {
		if s.Kind == kind {
			out = append(out, s)
		}
	}
	return out
}

type archiveStub struct {
	mu    sync.Mutex
	saved []domain.Alert
	err   error
}

func (a *archiveStub) SaveAlert(ctx context.Context, alert *domain.Alert) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return a.err
	}
	a.saved = append(a.saved, *alert)
	return nil
}

func (a *archiveStub) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.saved)
}

// ===== Tests =====

func TestAlertRaiseAndIncrement(t *testing.T) {
	log := NewAlertLog(nil, nil)
	ctx := context.Background()

	log.Observe(ctx, result("db", domain.HealthStatusUnhealthy, false))
	log.Observe(ctx, result("db", domain.HealthStatusUnhealthy, false))

	active := log.Active()
	if len(active) != 1 {
		t.Fatalf("expected 1 active alert, got %d", len(active))
	}
	alert := active[0]
	if alert.ID != "db:unhealthy" {
		t.Errorf("expected id db:unhealthy, got %s", alert.ID)
	}
	if alert.Count != 2 {
		t.Errorf("expected count 2, got %d", alert.Count)
	}
	if alert.Severity != domain.AlertSeverityCritical {
		t.Errorf("expected critical severity, got %v", alert.Severity)
	}
	if !alert.Active {
		t.Error("expected alert to be active")
	}
}

func TestWarningAlertSeverity(t *testing.T) {
	log := NewAlertLog(nil, nil)
	log.Observe(context.Background(), result("memory", domain.HealthStatusWarning, false))

	active := log.Active()
	if len(active) != 1 {
		t.Fatalf("expected 1 active alert, got %d", len(active))
	}
	if active[0].Severity != domain.AlertSeverityWarning {
		t.Errorf("expected warning severity, got %v", active[0].Severity)
	}
}

func TestWarningAndUnhealthyAreSeparateAlerts(t *testing.T) {
	log := NewAlertLog(nil, nil)
	ctx := context.Background()

	log.Observe(ctx, result("db", domain.HealthStatusWarning, false))
	log.Observe(ctx, result("db", domain.HealthStatusUnhealthy, false))

	active := log.Active()
	if len(active) != 2 {
		t.Fatalf("expected 2 active alerts, got %d", len(active))
	}
	if active[0].ID != "db:warning" || active[1].ID != "db:unhealthy" {
		t.Errorf("unexpected alert ids: %s, %s", active[0].ID, active[1].ID)
	}
}

func TestHealthyResolvesAllAlertsForCheck(t *testing.T) {
	log := NewAlertLog(nil, nil)
	ctx := context.Background()

	log.Observe(ctx, result("db", domain.HealthStatusWarning, false))
	log.Observe(ctx, result("db", domain.HealthStatusUnhealthy, false))
	log.Observe(ctx, result("redis", domain.HealthStatusUnhealthy, false))

	log.Observe(ctx, result("db", domain.HealthStatusHealthy, false))

	active := log.Active()
	if len(active) != 1 {
		t.Fatalf("expected only the redis alert active, got %d", len(active))
	}
	if active[0].Check != "redis" {
		t.Errorf("expected redis alert, got %s", active[0].Check)
	}

	all := log.All()
	if len(all) != 3 {
		t.Fatalf("expected all 3 alerts retained, got %d", len(all))
	}
	for _, alert := range all {
		if alert.Check != "db" {
			continue
		}
		if alert.Active {
			t.Errorf("expected %s deactivated", alert.ID)
		}
		if alert.ResolvedAt.IsZero() {
			t.Errorf("expected %s to have a resolution time", alert.ID)
		}
	}
}

func TestHealthyWithoutAlertsIsNoop(t *testing.T) {
	log := NewAlertLog(nil, nil)
	log.Observe(context.Background(), result("db", domain.HealthStatusHealthy, false))

	if got := len(log.All()); got != 0 {
		t.Errorf("expected no alerts, got %d", got)
	}
}

func TestAlertReactivationKeepsHistory(t *testing.T) {
	log := NewAlertLog(nil, nil)
	ctx := context.Background()
	first := time.Now().Add(-time.Minute)

	res := result("db", domain.HealthStatusUnhealthy, false)
	res.Timestamp = first
	log.Observe(ctx, res)
	log.Observe(ctx, result("db", domain.HealthStatusHealthy, false))
	log.Observe(ctx, result("db", domain.HealthStatusUnhealthy, false))

	all := log.All()
	if len(all) != 1 {
		t.Fatalf("expected a single keyed alert, got %d", len(all))
	}
	alert := all[0]
	if !alert.Active {
		t.Error("expected alert reactivated")
	}
	if alert.Count != 2 {
		t.Errorf("expected count 2 across episodes, got %d", alert.Count)
	}
	if !alert.FirstSeen.Equal(first) {
		t.Errorf("expected first seen preserved, got %v", alert.FirstSeen)
	}
	if !alert.ResolvedAt.IsZero() {
		t.Error("expected resolution time cleared on reactivation")
	}
}

func TestAlertSignals(t *testing.T) {
	bus := event.NewBus(64)
	rec := &signalRecorder{}
	bus.SubscribeAll(rec.add)

	log := NewAlertLog(bus, nil)
	ctx := context.Background()

	log.Observe(ctx, result("db", domain.HealthStatusUnhealthy, false))
	log.Observe(ctx, result("db", domain.HealthStatusUnhealthy, false))
	log.Observe(ctx, result("db", domain.HealthStatusHealthy, false))
	bus.Close()

	raised := rec.byKind(event.KindHealthAlert)
	if len(raised) != 1 {
		t.Fatalf("expected 1 raise signal, got %d", len(raised))
	}
	if raised[0].Fields["check"] != "db" || raised[0].Fields["status"] != "unhealthy" {
		t.Errorf("unexpected raise fields: %v", raised[0].Fields)
	}
	if raised[0].Fields["severity"] != "critical" {
		t.Errorf("expected critical severity field, got %v", raised[0].Fields["severity"])
	}

	resolved := rec.byKind(event.KindHealthAlertResolved)
	if len(resolved) != 1 {
		t.Fatalf("expected 1 resolve signal, got %d", len(resolved))
	}
	if resolved[0].Fields["id"] != "db:unhealthy" {
		t.Errorf("unexpected resolve fields: %v", resolved[0].Fields)
	}
}

func TestAlertReactivationSignalsAgain(t *testing.T) {
	bus := event.NewBus(64)
	rec := &signalRecorder{}
	bus.SubscribeAll(rec.add)

	log := NewAlertLog(bus, nil)
	ctx := context.Background()

	log.Observe(ctx, result("db", domain.HealthStatusUnhealthy, false))
	log.Observe(ctx, result("db", domain.HealthStatusHealthy, false))
	log.Observe(ctx, result("db", domain.HealthStatusUnhealthy, false))
	bus.Close()

	if got := len(rec.byKind(event.KindHealthAlert)); got != 2 {
		t.Errorf("expected raise signal per episode, got %d", got)
	}
}

func TestAlertArchivePersistence(t *testing.T) {
	archive := &archiveStub{}
	log := NewAlertLog(nil, archive)
	ctx := context.Background()

	log.Observe(ctx, result("db", domain.HealthStatusUnhealthy, false))
	log.Observe(ctx, result("db", domain.HealthStatusUnhealthy, false))
	log.Observe(ctx, result("db", domain.HealthStatusHealthy, false))

	if got := archive.count(); got != 3 {
		t.Errorf("expected raise, bump and resolve persisted, got %d saves", got)
	}
}

func TestAlertArchiveFailureIsNotFatal(t *testing.T) {
	archive := &archiveStub{err: fmt.Errorf("connection refused")}
	log := NewAlertLog(nil, archive)

	log.Observe(context.Background(), result("db", domain.HealthStatusUnhealthy, false))

	if got := len(log.Active()); got != 1 {
		t.Errorf("expected alert raised despite archive failure, got %d", got)
	}
}
