package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/vietddude/keeper/internal/core/domain"
)

// IncidentRepo implements storage.IncidentRepository using PostgreSQL.
type IncidentRepo struct {
	db *DB
}

// NewIncidentRepo creates a new PostgreSQL incident repository.
func NewIncidentRepo(db *DB) *IncidentRepo {
	return &IncidentRepo{db: db}
}

type incidentRow struct {
	ID          string    `db:"id"`
	Kind        string    `db:"kind"`
	Severity    string    `db:"severity"`
	Recoverable bool      `db:"recoverable"`
	Retryable   bool      `db:"retryable"`
	Message     string    `db:"message"`
	Context     string    `db:"context"`
	RetryCount  int       `db:"retry_count"`
	CreatedAt   time.Time `db:"created_at"`
}

func (r incidentRow) toDomain() (*domain.Incident, error) {
	inc := &domain.Incident{
		ID:          r.ID,
		Kind:        domain.ErrorKind(r.Kind),
		Severity:    domain.ErrorSeverity(r.Severity),
		Recoverable: r.Recoverable,
		Retryable:   r.Retryable,
		Message:     r.Message,
		RetryCount:  r.RetryCount,
		Timestamp:   r.CreatedAt,
	}
	if r.Context != "" && r.Context != "null" {
		if err := json.Unmarshal([]byte(r.Context), &inc.Context); err != nil {
			return nil, fmt.Errorf("failed to unmarshal incident context: %w", err)
		}
	}
	return inc, nil
}

const insertIncident = `
INSERT INTO incidents (id, kind, severity, recoverable, retryable, message, context, retry_count, created_at)
VALUES (:id, :kind, :severity, :recoverable, :retryable, :message, CAST(:context AS jsonb), :retry_count, :created_at)
ON CONFLICT (id) DO NOTHING`

// Save appends one handled incident.
func (r *IncidentRepo) Save(ctx context.Context, incident *domain.Incident) error {
	ctxJSON, err := json.Marshal(incident.Context)
	if err != nil {
		return fmt.Errorf("failed to marshal incident context: %w", err)
	}

	row := incidentRow{
		ID:          incident.ID,
		Kind:        string(incident.Kind),
		Severity:    string(incident.Severity),
		Recoverable: incident.Recoverable,
		Retryable:   incident.Retryable,
		Message:     incident.Message,
		Context:     string(ctxJSON),
		RetryCount:  incident.RetryCount,
		CreatedAt:   incident.Timestamp,
	}
	if _, err := r.db.NamedExecContext(ctx, insertIncident, row); err != nil {
		return fmt.Errorf("failed to save incident: %w", err)
	}
	return nil
}

// GetRecent retrieves the most recent incidents, newest first.
func (r *IncidentRepo) GetRecent(ctx context.Context, limit int) ([]*domain.Incident, error) {
	if limit <= 0 {
		limit = 50
	}

	var rows []incidentRow
	err := r.db.SelectContext(ctx, &rows, `
		SELECT id, kind, severity, recoverable, retryable, message, context, retry_count, created_at
		FROM incidents
		ORDER BY created_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get incidents: %w", err)
	}

	incidents := make([]*domain.Incident, 0, len(rows))
	for _, row := range rows {
		inc, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		incidents = append(incidents, inc)
	}
	return incidents, nil
}

// CountByKind returns incident totals grouped by error kind.
func (r *IncidentRepo) CountByKind(ctx context.Context) (map[domain.ErrorKind]int, error) {
	var rows []struct {
		Kind  string `db:"kind"`
		Count int    `db:"count"`
	}
	err := r.db.SelectContext(ctx, &rows, `
		SELECT kind, COUNT(*) AS count
		FROM incidents
		GROUP BY kind`)
	if err != nil {
		return nil, fmt.Errorf("failed to count incidents: %w", err)
	}

	counts := make(map[domain.ErrorKind]int, len(rows))
	for _, row := range rows {
		counts[domain.ErrorKind(row.Kind)] = row.Count
	}
	return counts, nil
}

// DeleteOlderThan removes incidents recorded before the cutoff.
func (r *IncidentRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM incidents WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete incidents: %w", err)
	}
	return res.RowsAffected()
}
