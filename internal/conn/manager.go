// Package conn establishes and re-establishes the gateway connection.
//
// Recovery is two-level: when one strategy fails, fallback tries every
// other registered strategy once in fixed priority order; when a whole
// sequence fails, the manager waits and retries the sequence while the
// retry budget lasts. Fallback handles "this method doesn't currently
// work", the outer retry handles "nothing works right now".
package conn

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/vietddude/keeper/internal/core/domain"
	"github.com/vietddude/keeper/internal/core/event"
	"github.com/vietddude/keeper/internal/metrics"
)

// ErrUnknownStrategy is returned when Connect names an unregistered
// strategy. It is never retried.
var ErrUnknownStrategy = errors.New("unknown connection strategy")

// ErrNoStrategies is returned when no usable strategy exists.
var ErrNoStrategies = errors.New("no connection strategies available")

// Config holds connection manager tuning.
type Config struct {
	MaxRetryAttempts int           `yaml:"max_retry_attempts"`
	RetryDelay       time.Duration `yaml:"retry_delay"`
	EnableFallback   bool          `yaml:"enable_fallback"`
}

// DefaultConfig returns the stock manager tuning.
func DefaultConfig() Config {
	return Config{
		MaxRetryAttempts: 5,
		RetryDelay:       5 * time.Second,
		EnableFallback:   true,
	}
}

// Snapshot is a point-in-time view of the manager for health checks
// and status reporting.
type Snapshot struct {
	State         domain.ConnState
	Strategy      string
	RetryAttempts int
}

// Manager owns the connection state machine:
// disconnected -> connecting -> {connected | failed}.
type Manager struct {
	cfg      Config
	sessions SessionChecker
	bus      *event.Bus

	mu         sync.RWMutex
	strategies map[string]Strategy
	state      domain.ConnState
	current    string
	retries    int
}

// NewManager creates a manager. sessions and bus may be nil; auto
// ordering then skips session restore and signals are dropped.
func NewManager(cfg Config, sessions SessionChecker, bus *event.Bus) *Manager {
	if cfg.MaxRetryAttempts <= 0 {
		cfg.MaxRetryAttempts = 5
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 5 * time.Second
	}
	return &Manager{
		cfg:        cfg,
		sessions:   sessions,
		bus:        bus,
		strategies: make(map[string]Strategy),
		state:      domain.ConnStateDisconnected,
	}
}

// Register adds a strategy under its name. Later registrations replace
// earlier ones.
func (m *Manager) Register(s Strategy) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.strategies[s.Name()] = s
}

// Connect runs the named strategy (Auto for the default ordering),
// falling back and retrying per configuration. On success the state is
// connected and the retry counter is reset; after the retry budget is
// spent the state is failed and the last error is returned.
func (m *Manager) Connect(ctx context.Context, name string) error {
	for {
		err := m.connectOnce(ctx, name)
		if err == nil {
			return nil
		}
		if errors.Is(err, ErrUnknownStrategy) {
			m.setState(domain.ConnStateFailed)
			return err
		}

		m.mu.Lock()
		m.retries++
		attempts := m.retries
		m.mu.Unlock()

		if attempts >= m.cfg.MaxRetryAttempts {
			m.setState(domain.ConnStateFailed)
			return fmt.Errorf("connect failed after %d attempts: %w", attempts, err)
		}

		slog.Warn("connection sequence failed, retrying",
			"attempt", attempts,
			"max_attempts", m.cfg.MaxRetryAttempts,
			"retry_delay", m.cfg.RetryDelay,
			"error", err,
		)

		select {
		case <-ctx.Done():
			m.setState(domain.ConnStateFailed)
			return ctx.Err()
		case <-time.After(m.cfg.RetryDelay):
		}
	}
}

// Disconnect resets state and counters. It does not cancel an in-flight
// attempt; strategies honor their own timeouts.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = domain.ConnStateDisconnected
	m.current = ""
	m.retries = 0
	metrics.ConnectionUp.Set(0)
}

// State returns the current connection state.
func (m *Manager) State() domain.ConnState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Snapshot returns the current state, strategy and retry counter.
func (m *Manager) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Snapshot{State: m.state, Strategy: m.current, RetryAttempts: m.retries}
}

// connectOnce runs one full sequence: the primary order, then fallback
// over the remaining registered strategies.
func (m *Manager) connectOnce(ctx context.Context, name string) error {
	m.setState(domain.ConnStateConnecting)

	primary, err := m.primaryOrder(ctx, name)
	if err != nil {
		return err
	}

	tried := make(map[string]bool)
	var lastErr error

	for _, s := range primary {
		tried[s.Name()] = true
		if err := m.attempt(ctx, s); err != nil {
			lastErr = err
			continue
		}
		return nil
	}

	if m.cfg.EnableFallback {
		for _, fb := range fallbackPriority {
			if tried[fb] {
				continue
			}
			s := m.strategy(fb)
			if s == nil || !configured(s) {
				continue
			}
			tried[fb] = true
			if err := m.attempt(ctx, s); err != nil {
				lastErr = err
				continue
			}
			return nil
		}
	}

	if lastErr == nil {
		return ErrNoStrategies
	}
	return lastErr
}

// primaryOrder resolves the strategies the sequence starts with. For
// Auto: session restore only if a prior session exists, pairing only
// if configured, then qr. An empty order is fine when fallback can
// still contribute.
func (m *Manager) primaryOrder(ctx context.Context, name string) ([]Strategy, error) {
	if name != Auto {
		s := m.strategy(name)
		if s == nil {
			return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, name)
		}
		return []Strategy{s}, nil
	}

	var order []Strategy
	if s := m.strategy(StrategySession); s != nil && m.sessions != nil && m.sessions.Exists(ctx) {
		order = append(order, s)
	}
	if s := m.strategy(StrategyPairing); s != nil && configured(s) {
		order = append(order, s)
	}
	if s := m.strategy(StrategyQR); s != nil {
		order = append(order, s)
	}
	return order, nil
}

func (m *Manager) attempt(ctx context.Context, s Strategy) error {
	m.mu.Lock()
	m.current = s.Name()
	m.mu.Unlock()

	slog.Info("attempting connection", "strategy", s.Name())

	if err := s.Connect(ctx); err != nil {
		metrics.ConnectionAttempts.WithLabelValues(s.Name(), "failure").Inc()
		slog.Warn("connection strategy failed", "strategy", s.Name(), "error", err)
		return fmt.Errorf("strategy %s: %w", s.Name(), err)
	}

	m.mu.Lock()
	m.state = domain.ConnStateConnected
	m.retries = 0
	m.mu.Unlock()

	metrics.ConnectionAttempts.WithLabelValues(s.Name(), "success").Inc()
	metrics.ConnectionUp.Set(1)
	if m.bus != nil {
		m.bus.Publish(event.KindConnectionSuccess, map[string]any{"strategy": s.Name()})
	}
	slog.Info("connection established", "strategy", s.Name())
	return nil
}

func (m *Manager) strategy(name string) Strategy {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.strategies[name]
}

func (m *Manager) setState(state domain.ConnState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = state
}
