package storage

import (
	"context"
	"time"

	"github.com/vietddude/keeper/internal/core/domain"
)

// IncidentRepository handles the incident archive
type IncidentRepository interface {
	// Save appends one handled incident
	Save(ctx context.Context, incident *domain.Incident) error

	// GetRecent retrieves the most recent incidents, newest first
	GetRecent(ctx context.Context, limit int) ([]*domain.Incident, error)

	// CountByKind returns incident totals grouped by error kind
	CountByKind(ctx context.Context) (map[domain.ErrorKind]int, error)

	// DeleteOlderThan removes incidents recorded before the cutoff
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// AlertRepository handles the alert archive
type AlertRepository interface {
	// Save inserts or updates an alert by its ID
	Save(ctx context.Context, alert *domain.Alert) error

	// GetActive retrieves the currently active alerts
	GetActive(ctx context.Context) ([]*domain.Alert, error)

	// GetRecent retrieves the most recently touched alerts, newest first
	GetRecent(ctx context.Context, limit int) ([]*domain.Alert, error)

	// DeleteResolvedBefore removes resolved alerts older than the cutoff
	DeleteResolvedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
