package health

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health/grpc_health_v1"

	"github.com/vietddude/keeper/internal/core/domain"
)

// Names of the stock checks.
const (
	CheckConnection   = "connection"
	CheckMemory       = "memory"
	CheckErrorRate    = "error_rate"
	CheckResponseTime = "response_time"
	CheckSession      = "session"
	CheckDatabase     = "database"
	CheckRedis        = "redis"
	CheckGateway      = "gateway_backend"
)

// Thresholds tune the built-in checks. A reading at the threshold is
// a warning; well past it the check turns unhealthy.
type Thresholds struct {
	MemoryPercent    float64 `yaml:"memory_percent"`
	ResponseTimeMs   int     `yaml:"response_time_ms"`
	ErrorRatePercent float64 `yaml:"error_rate_percent"`
}

// DefaultThresholds returns the stock threshold values.
func DefaultThresholds() Thresholds {
	return Thresholds{
		MemoryPercent:    80,
		ResponseTimeMs:   5000,
		ErrorRatePercent: 10,
	}
}

// DefaultCheckConfigs returns the per-check settings used when the
// config file does not override them. Only the connection check is
// critical by default.
func DefaultCheckConfigs() map[string]CheckConfig {
	return map[string]CheckConfig{
		CheckConnection:   {Interval: 30 * time.Second, Timeout: 5 * time.Second, Critical: true},
		CheckMemory:       {Interval: time.Minute, Timeout: 2 * time.Second},
		CheckErrorRate:    {Interval: time.Minute, Timeout: 2 * time.Second},
		CheckResponseTime: {Interval: time.Minute, Timeout: 2 * time.Second},
		CheckSession:      {Interval: time.Minute, Timeout: 5 * time.Second},
		CheckDatabase:     {Interval: time.Minute, Timeout: 5 * time.Second},
		CheckRedis:        {Interval: time.Minute, Timeout: 5 * time.Second},
		CheckGateway:      {Interval: time.Minute, Timeout: 5 * time.Second},
	}
}

// ConnectionProbe reports the state of the gateway connection. When
// the manager believes it is connected, verify (if given) confirms
// the link actually responds.
func ConnectionProbe(state func() domain.ConnState, verify func(ctx context.Context) bool) Probe {
	return func(ctx context.Context) (domain.HealthStatus, string) {
		switch st := state(); st {
		case domain.ConnStateConnected:
			if verify != nil && !verify(ctx) {
				return domain.HealthStatusUnhealthy, "connected but gateway not responding"
			}
			return domain.HealthStatusHealthy, "connected"
		case domain.ConnStateConnecting:
			return domain.HealthStatusWarning, "connection in progress"
		default:
			return domain.HealthStatusUnhealthy, fmt.Sprintf("connection %s", st)
		}
	}
}

// MemoryProbe reports heap usage against the configured threshold.
func MemoryProbe(t Thresholds) Probe {
	return func(ctx context.Context) (domain.HealthStatus, string) {
		var ms runtime.MemStats
		runtime.ReadMemStats(&ms)

		used := float64(ms.HeapAlloc) / float64(ms.Sys) * 100
		msg := fmt.Sprintf("heap at %.1f%% of reserved memory (%d MB)", used, ms.HeapAlloc/1024/1024)
		switch {
		case used >= t.MemoryPercent*1.25:
			return domain.HealthStatusUnhealthy, msg
		case used >= t.MemoryPercent:
			return domain.HealthStatusWarning, msg
		}
		return domain.HealthStatusHealthy, msg
	}
}

// ErrorRateProbe reports the failed share of guarded operations.
func ErrorRateProbe(stats *Stats, t Thresholds) Probe {
	return func(ctx context.Context) (domain.HealthStatus, string) {
		rate := stats.ErrorRate()
		msg := fmt.Sprintf("error rate %.1f%%", rate)
		switch {
		case rate >= t.ErrorRatePercent*2:
			return domain.HealthStatusUnhealthy, msg
		case rate >= t.ErrorRatePercent:
			return domain.HealthStatusWarning, msg
		}
		return domain.HealthStatusHealthy, msg
	}
}

// ResponseTimeProbe reports the rolling average operation latency.
func ResponseTimeProbe(stats *Stats, t Thresholds) Probe {
	return func(ctx context.Context) (domain.HealthStatus, string) {
		snap := stats.Snapshot()
		avg := snap.AvgLatency
		limit := time.Duration(t.ResponseTimeMs) * time.Millisecond
		msg := fmt.Sprintf("average latency %s over %d samples", avg, snap.Samples)
		switch {
		case snap.Samples == 0:
			return domain.HealthStatusHealthy, "no samples yet"
		case avg >= limit*2:
			return domain.HealthStatusUnhealthy, msg
		case avg >= limit:
			return domain.HealthStatusWarning, msg
		}
		return domain.HealthStatusHealthy, msg
	}
}

// PingProbe wraps a ping function. An error means unhealthy.
func PingProbe(target string, ping func(ctx context.Context) error) Probe {
	return func(ctx context.Context) (domain.HealthStatus, string) {
		if err := ping(ctx); err != nil {
			return domain.HealthStatusUnhealthy, fmt.Sprintf("%s unreachable: %v", target, err)
		}
		return domain.HealthStatusHealthy, fmt.Sprintf("%s reachable", target)
	}
}

// GRPCHealthProbe queries the standard gRPC health service of the
// gateway backend.
func GRPCHealthProbe(cc *grpc.ClientConn, service string) Probe {
	client := grpc_health_v1.NewHealthClient(cc)
	return func(ctx context.Context) (domain.HealthStatus, string) {
		resp, err := client.Check(ctx, &grpc_health_v1.HealthCheckRequest{Service: service})
		if err != nil {
			return domain.HealthStatusUnhealthy, fmt.Sprintf("grpc health check failed: %v", err)
		}
		if resp.GetStatus() != grpc_health_v1.HealthCheckResponse_SERVING {
			return domain.HealthStatusWarning, fmt.Sprintf("backend reports %s", resp.GetStatus())
		}
		return domain.HealthStatusHealthy, "backend serving"
	}
}
