// Package health provides periodic health checks, alerting and
// request statistics for the keeper agent.
//
// This package contains:
// - Monitor: runs registered checks on their own intervals
// - AlertLog: tracks raised conditions until they resolve
// - Stats: rolling latency window and request counters
// - Server: HTTP endpoints for health and metrics
package health

import (
	"context"
	"sync"
	"time"

	"github.com/vietddude/keeper/internal/core/domain"
)

// Probe runs a single health check and reports the observed status
// with a human-readable message.
type Probe func(ctx context.Context) (domain.HealthStatus, string)

// CheckConfig tunes one registered check.
type CheckConfig struct {
	Interval time.Duration `yaml:"interval"`
	Timeout  time.Duration `yaml:"timeout"`
	Critical bool          `yaml:"critical"`
}

// Result is the latest outcome of one check.
type Result struct {
	Check        string              `json:"check"`
	Status       domain.HealthStatus `json:"status"`
	Message      string              `json:"message"`
	ResponseTime time.Duration       `json:"response_time"`
	Timestamp    time.Time           `json:"timestamp"`
	Critical     bool                `json:"critical"`
}

// statsWindow is the number of latency samples kept for averaging.
const statsWindow = 100

// Stats tracks guarded-operation outcomes. Counters only grow until
// Reset is called explicitly.
type Stats struct {
	mu        sync.Mutex
	latencies [statsWindow]time.Duration
	next      int
	samples   int
	total     uint64
	success   uint64
	failed    uint64
}

// StatsSnapshot is a point-in-time copy of the stats.
type StatsSnapshot struct {
	Total      uint64        `json:"total"`
	Success    uint64        `json:"success"`
	Failed     uint64        `json:"failed"`
	AvgLatency time.Duration `json:"avg_latency"`
	Samples    int           `json:"samples"`
}

// Record adds one operation outcome to the window and counters.
func (s *Stats) Record(latency time.Duration, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.latencies[s.next] = latency
	s.next = (s.next + 1) % statsWindow
	if s.samples < statsWindow {
		s.samples++
	}

	s.total++
	if ok {
		s.success++
	} else {
		s.failed++
	}
}

// Snapshot returns a copy of the current counters and rolling average.
func (s *Stats) Snapshot() StatsSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	var sum time.Duration
	for i := 0; i < s.samples; i++ {
		sum += s.latencies[i]
	}
	snap := StatsSnapshot{
		Total:   s.total,
		Success: s.success,
		Failed:  s.failed,
		Samples: s.samples,
	}
	if s.samples > 0 {
		snap.AvgLatency = sum / time.Duration(s.samples)
	}
	return snap
}

// Reset clears the latency window and all counters.
func (s *Stats) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.latencies = [statsWindow]time.Duration{}
	s.next = 0
	s.samples = 0
	s.total = 0
	s.success = 0
	s.failed = 0
}

// ErrorRate returns the failed percentage of all recorded operations,
// or zero when nothing has been recorded yet.
func (s *Stats) ErrorRate() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.total == 0 {
		return 0
	}
	return float64(s.failed) / float64(s.total) * 100
}
