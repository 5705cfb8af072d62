// Package session stores gateway session credentials so the agent
// can resume a previous login instead of pairing again.
package session

import (
	"context"

	"github.com/vietddude/keeper/internal/core/domain"
)

// Store persists gateway sessions by name.
type Store interface {
	// Get returns the stored session, or nil when none exists.
	Get(ctx context.Context, name string) (*domain.Session, error)
	// Save stores or replaces the session.
	Save(ctx context.Context, sess *domain.Session) error
	// Exists reports whether a session is stored under the name.
	Exists(ctx context.Context, name string) (bool, error)
	// Clear removes the stored session if present.
	Clear(ctx context.Context, name string) error
	// Close releases the underlying connection.
	Close() error
}
