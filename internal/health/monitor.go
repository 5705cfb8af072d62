package health

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/vietddude/keeper/internal/core/domain"
	"github.com/vietddude/keeper/internal/core/event"
	"github.com/vietddude/keeper/internal/metrics"
)

type check struct {
	name  string
	cfg   CheckConfig
	probe Probe
}

// Monitor runs registered checks, each on its own interval, and keeps
// the latest result per check. A probe that outruns its timeout is
// reported unhealthy for that cycle.
type Monitor struct {
	alerts *AlertLog
	stats  *Stats

	mu      sync.RWMutex
	checks  map[string]*check
	results map[string]Result
	running bool

	runCtx context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewMonitor creates a monitor. Bus and archive may be nil.
func NewMonitor(bus *event.Bus, archive Archive) *Monitor {
	return &Monitor{
		alerts:  NewAlertLog(bus, archive),
		stats:   &Stats{},
		checks:  make(map[string]*check),
		results: make(map[string]Result),
	}
}

// Register adds a check under the given name, replacing any previous
// registration. When the monitor is already running the check starts
// immediately.
func (m *Monitor) Register(name string, cfg CheckConfig, probe Probe) {
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	c := &check{name: name, cfg: cfg, probe: probe}

	m.mu.Lock()
	m.checks[name] = c
	running := m.running
	ctx := m.runCtx
	m.mu.Unlock()

	if running {
		m.launch(ctx, c)
	}
}

// Start launches one goroutine per registered check. Each runs its
// first probe shortly after start, then on every interval tick.
func (m *Monitor) Start(ctx context.Context) {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return
	}
	m.running = true
	m.runCtx, m.cancel = context.WithCancel(ctx)
	runCtx := m.runCtx
	checks := make([]*check, 0, len(m.checks))
	for _, c := range m.checks {
		checks = append(checks, c)
	}
	m.mu.Unlock()

	for _, c := range checks {
		m.launch(runCtx, c)
	}
	slog.Info("health monitor started", "checks", len(checks))
}

// Stop cancels every check goroutine and waits for them to exit.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	cancel := m.cancel
	m.mu.Unlock()

	cancel()
	m.wg.Wait()
	slog.Info("health monitor stopped")
}

func (m *Monitor) launch(ctx context.Context, c *check) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()

		// First probe runs soon after start so status is available
		// without waiting a full interval.
		initial := c.cfg.Interval / 10
		if initial > time.Second {
			initial = time.Second
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(initial):
		}
		m.runCheck(ctx, c)

		ticker := time.NewTicker(c.cfg.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.runCheck(ctx, c)
			}
		}
	}()
}

func (m *Monitor) runCheck(ctx context.Context, c *check) {
	probeCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	type outcome struct {
		status  domain.HealthStatus
		message string
	}
	done := make(chan outcome, 1)
	start := time.Now()
	go func() {
		status, message := c.probe(probeCtx)
		done <- outcome{status: status, message: message}
	}()

	var res Result
	select {
	case o := <-done:
		res = Result{
			Check:        c.name,
			Status:       o.status,
			Message:      o.message,
			ResponseTime: time.Since(start),
			Timestamp:    time.Now(),
			Critical:     c.cfg.Critical,
		}
	case <-probeCtx.Done():
		if ctx.Err() != nil {
			return
		}
		res = Result{
			Check:        c.name,
			Status:       domain.HealthStatusUnhealthy,
			Message:      fmt.Sprintf("check timed out after %s", c.cfg.Timeout),
			ResponseTime: time.Since(start),
			Timestamp:    time.Now(),
			Critical:     c.cfg.Critical,
		}
	}

	m.record(ctx, res)
}

func (m *Monitor) record(ctx context.Context, res Result) {
	m.mu.Lock()
	m.results[res.Check] = res
	m.mu.Unlock()

	metrics.CheckStatus.WithLabelValues(res.Check).Set(statusValue(res.Status))
	metrics.CheckLatency.WithLabelValues(res.Check).Observe(res.ResponseTime.Seconds())

	switch res.Status {
	case domain.HealthStatusUnhealthy:
		slog.Error("health check unhealthy", "check", res.Check, "message", res.Message)
	case domain.HealthStatusWarning:
		slog.Warn("health check degraded", "check", res.Check, "message", res.Message)
	}

	m.alerts.Observe(ctx, res)
	metrics.ActiveAlerts.Set(float64(m.alerts.ActiveCount()))
}

// Results returns a copy of the latest result per check.
func (m *Monitor) Results() map[string]Result {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]Result, len(m.results))
	for name, res := range m.results {
		out[name] = res
	}
	return out
}

// Overall aggregates the latest results: unhealthy when any critical
// check is unhealthy, warning when any check is off healthy,
// healthy otherwise.
func (m *Monitor) Overall() domain.HealthStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()

	overall := domain.HealthStatusHealthy
	for _, res := range m.results {
		if res.Critical && res.Status == domain.HealthStatusUnhealthy {
			return domain.HealthStatusUnhealthy
		}
		if res.Status != domain.HealthStatusHealthy {
			overall = domain.HealthStatusWarning
		}
	}
	return overall
}

// Alerts exposes the alert log.
func (m *Monitor) Alerts() *AlertLog { return m.alerts }

// RecordRequest feeds one guarded-operation outcome into the stats.
func (m *Monitor) RecordRequest(latency time.Duration, ok bool) {
	m.stats.Record(latency, ok)
}

// Stats returns a snapshot of the request statistics.
func (m *Monitor) Stats() StatsSnapshot { return m.stats.Snapshot() }

// ResetStats clears the request statistics. Alerts and check results
// are not touched.
func (m *Monitor) ResetStats() {
	m.stats.Reset()
	slog.Info("health stats reset")
}

// RequestStats exposes the underlying stats for probes that read them.
func (m *Monitor) RequestStats() *Stats { return m.stats }

func statusValue(status domain.HealthStatus) float64 {
	switch status {
	case domain.HealthStatusHealthy:
		return 0
	case domain.HealthStatusWarning:
		return 1
	default:
		return 2
	}
}
