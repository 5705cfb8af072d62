package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/vietddude/keeper/internal/core/domain"
)

// AlertRepo implements storage.AlertRepository using PostgreSQL.
type AlertRepo struct {
	db *DB
}

// NewAlertRepo creates a new PostgreSQL alert repository.
func NewAlertRepo(db *DB) *AlertRepo {
	return &AlertRepo{db: db}
}

type alertRow struct {
	ID         string       `db:"id"`
	CheckName  string       `db:"check_name"`
	Status     string       `db:"status"`
	Severity   string       `db:"severity"`
	Message    string       `db:"message"`
	Count      int          `db:"count"`
	Active     bool         `db:"active"`
	FirstSeen  time.Time    `db:"first_seen"`
	LastSeen   time.Time    `db:"last_seen"`
	ResolvedAt sql.NullTime `db:"resolved_at"`
}

func (r alertRow) toDomain() *domain.Alert {
	alert := &domain.Alert{
		ID:        r.ID,
		Check:     r.CheckName,
		Status:    domain.HealthStatus(r.Status),
		Severity:  domain.AlertSeverity(r.Severity),
		Message:   r.Message,
		Count:     r.Count,
		Active:    r.Active,
		FirstSeen: r.FirstSeen,
		LastSeen:  r.LastSeen,
	}
	if r.ResolvedAt.Valid {
		alert.ResolvedAt = r.ResolvedAt.Time
	}
	return alert
}

const upsertAlert = `
INSERT INTO alerts (id, check_name, status, severity, message, count, active, first_seen, last_seen, resolved_at)
VALUES (:id, :check_name, :status, :severity, :message, :count, :active, :first_seen, :last_seen, :resolved_at)
ON CONFLICT (id) DO UPDATE SET
	message = EXCLUDED.message,
	count = EXCLUDED.count,
	active = EXCLUDED.active,
	last_seen = EXCLUDED.last_seen,
	resolved_at = EXCLUDED.resolved_at`

// Save inserts or updates an alert by its ID.
func (r *AlertRepo) Save(ctx context.Context, alert *domain.Alert) error {
	row := alertRow{
		ID:        alert.ID,
		CheckName: alert.Check,
		Status:    string(alert.Status),
		Severity:  string(alert.Severity),
		Message:   alert.Message,
		Count:     alert.Count,
		Active:    alert.Active,
		FirstSeen: alert.FirstSeen,
		LastSeen:  alert.LastSeen,
	}
	if !alert.ResolvedAt.IsZero() {
		row.ResolvedAt = sql.NullTime{Time: alert.ResolvedAt, Valid: true}
	}

	if _, err := r.db.NamedExecContext(ctx, upsertAlert, row); err != nil {
		return fmt.Errorf("failed to save alert: %w", err)
	}
	return nil
}

// GetActive retrieves the currently active alerts.
func (r *AlertRepo) GetActive(ctx context.Context) ([]*domain.Alert, error) {
	var rows []alertRow
	err := r.db.SelectContext(ctx, &rows, `
		SELECT id, check_name, status, severity, message, count, active, first_seen, last_seen, resolved_at
		FROM alerts
		WHERE active
		ORDER BY first_seen`)
	if err != nil {
		return nil, fmt.Errorf("failed to get active alerts: %w", err)
	}

	alerts := make([]*domain.Alert, 0, len(rows))
	for _, row := range rows {
		alerts = append(alerts, row.toDomain())
	}
	return alerts, nil
}

// GetRecent retrieves the most recently touched alerts, newest first.
func (r *AlertRepo) GetRecent(ctx context.Context, limit int) ([]*domain.Alert, error) {
	if limit <= 0 {
		limit = 50
	}

	var rows []alertRow
	err := r.db.SelectContext(ctx, &rows, `
		SELECT id, check_name, status, severity, message, count, active, first_seen, last_seen, resolved_at
		FROM alerts
		ORDER BY last_seen DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get alerts: %w", err)
	}

	alerts := make([]*domain.Alert, 0, len(rows))
	for _, row := range rows {
		alerts = append(alerts, row.toDomain())
	}
	return alerts, nil
}

// DeleteResolvedBefore removes resolved alerts older than the cutoff.
func (r *AlertRepo) DeleteResolvedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM alerts
		WHERE NOT active AND resolved_at IS NOT NULL AND resolved_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete alerts: %w", err)
	}
	return res.RowsAffected()
}
