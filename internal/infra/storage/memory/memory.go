package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/vietddude/keeper/internal/core/domain"
)

// MemoryStorage backs the archive repositories without a database.
// Used for testing and for running without PostgreSQL.
type MemoryStorage struct {
	incidents []*domain.Incident
	alerts    map[string]*domain.Alert
	mu        sync.RWMutex
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		alerts: make(map[string]*domain.Alert),
	}
}

// -----------------------------------------------------------------------------
// Incident Repository
// -----------------------------------------------------------------------------

type IncidentRepo struct {
	store *MemoryStorage
}

func NewIncidentRepo(store *MemoryStorage) *IncidentRepo {
	return &IncidentRepo{store: store}
}

func (r *IncidentRepo) Save(ctx context.Context, incident *domain.Incident) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	clone := *incident
	r.store.incidents = append(r.store.incidents, &clone)
	return nil
}

func (r *IncidentRepo) GetRecent(ctx context.Context, limit int) ([]*domain.Incident, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	if limit <= 0 {
		limit = 50
	}
	out := make([]*domain.Incident, 0, limit)
	for i := len(r.store.incidents) - 1; i >= 0 && len(out) < limit; i-- {
		clone := *r.store.incidents[i]
		out = append(out, &clone)
	}
	return out, nil
}

func (r *IncidentRepo) CountByKind(ctx context.Context) (map[domain.ErrorKind]int, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	counts := make(map[domain.ErrorKind]int)
	for _, inc := range r.store.incidents {
		counts[inc.Kind]++
	}
	return counts, nil
}

func (r *IncidentRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	kept := r.store.incidents[:0]
	var removed int64
	for _, inc := range r.store.incidents {
		if inc.Timestamp.Before(cutoff) {
			removed++
			continue
		}
		kept = append(kept, inc)
	}
	r.store.incidents = kept
	return removed, nil
}

// -----------------------------------------------------------------------------
// Alert Repository
// -----------------------------------------------------------------------------

type AlertRepo struct {
	store *MemoryStorage
}

func NewAlertRepo(store *MemoryStorage) *AlertRepo {
	return &AlertRepo{store: store}
}

func (r *AlertRepo) Save(ctx context.Context, alert *domain.Alert) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	clone := *alert
	r.store.alerts[alert.ID] = &clone
	return nil
}

func (r *AlertRepo) GetActive(ctx context.Context) ([]*domain.Alert, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	var out []*domain.Alert
	for _, alert := range r.store.alerts {
		if alert.Active {
			clone := *alert
			out = append(out, &clone)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FirstSeen.Before(out[j].FirstSeen) })
	return out, nil
}

func (r *AlertRepo) GetRecent(ctx context.Context, limit int) ([]*domain.Alert, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	if limit <= 0 {
		limit = 50
	}
	out := make([]*domain.Alert, 0, len(r.store.alerts))
	for _, alert := range r.store.alerts {
		clone := *alert
		out = append(out, &clone)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastSeen.After(out[j].LastSeen) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *AlertRepo) DeleteResolvedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	var removed int64
	for id, alert := range r.store.alerts {
		if !alert.Active && !alert.ResolvedAt.IsZero() && alert.ResolvedAt.Before(cutoff) {
			delete(r.store.alerts, id)
			removed++
		}
	}
	return removed, nil
}
