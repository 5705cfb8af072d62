package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/vietddude/keeper/internal/infra/storage"
)

// Pruner deletes old archive data based on retention policy.
type Pruner struct {
	retention time.Duration
	incidents storage.IncidentRepository
	alerts    storage.AlertRepository
}

// NewPruner creates a new Pruner worker.
func NewPruner(
	retention time.Duration,
	incidents storage.IncidentRepository,
	alerts storage.AlertRepository,
) *Pruner {
	return &Pruner{
		retention: retention,
		incidents: incidents,
		alerts:    alerts,
	}
}

// Start runs the pruner loop.
func (p *Pruner) Start(ctx context.Context) {
	if p.retention <= 0 {
		return // Retention disabled
	}

	// Check interval: 10% of retention, clamped to [1 minute, 1 hour]
	interval := min(p.retention/10, 1*time.Hour)
	interval = max(interval, 1*time.Minute)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// Initial prune
	p.prune(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.prune(ctx)
		}
	}
}

func (p *Pruner) prune(ctx context.Context) {
	cutoff := time.Now().Add(-p.retention)

	if p.incidents != nil {
		removed, err := p.incidents.DeleteOlderThan(ctx, cutoff)
		if err != nil {
			slog.Error("failed to prune incidents", "error", err)
		} else if removed > 0 {
			slog.Info("pruned incidents", "removed", removed)
		}
	}

	if p.alerts != nil {
		removed, err := p.alerts.DeleteResolvedBefore(ctx, cutoff)
		if err != nil {
			slog.Error("failed to prune alerts", "error", err)
		} else if removed > 0 {
			slog.Info("pruned resolved alerts", "removed", removed)
		}
	}
}
