package gateway

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/vietddude/keeper/internal/conn"
	"github.com/vietddude/keeper/internal/core/domain"
	"github.com/vietddude/keeper/internal/infra/session"
)

// StoreChecker adapts a session store to the connection manager's
// existence check.
type StoreChecker struct {
	Store session.Store
	Name  string
}

func (c StoreChecker) Exists(ctx context.Context) bool {
	ok, err := c.Store.Exists(ctx, c.Name)
	if err != nil {
		slog.Warn("session existence check failed", "error", err)
		return false
	}
	return ok
}

// SessionStrategy resumes a stored session.
type SessionStrategy struct {
	client *Client
	store  session.Store
	name   string
}

func NewSessionStrategy(client *Client, store session.Store, name string) *SessionStrategy {
	return &SessionStrategy{client: client, store: store, name: name}
}

func (s *SessionStrategy) Name() string { return conn.StrategySession }

func (s *SessionStrategy) Connect(ctx context.Context) error {
	stored, err := s.store.Get(ctx, s.name)
	if err != nil {
		return fmt.Errorf("failed to load session: %w", err)
	}
	if stored == nil {
		return fmt.Errorf("no stored session %q", s.name)
	}

	sess, err := s.client.Resume(ctx, stored)
	if err != nil {
		return err
	}
	saveSession(ctx, s.store, sess)
	return nil
}

// PairingStrategy logs in with a configured pairing code.
type PairingStrategy struct {
	client *Client
	store  session.Store
	code   string
}

func NewPairingStrategy(client *Client, store session.Store, code string) *PairingStrategy {
	return &PairingStrategy{client: client, store: store, code: code}
}

func (s *PairingStrategy) Name() string { return conn.StrategyPairing }

func (s *PairingStrategy) Configured() bool { return s.code != "" }

func (s *PairingStrategy) Connect(ctx context.Context) error {
	sess, err := s.client.Pair(ctx, s.code)
	if err != nil {
		return err
	}
	saveSession(ctx, s.store, sess)
	return nil
}

// QRStrategy logs in via QR scan. Always available.
type QRStrategy struct {
	client *Client
	store  session.Store
}

func NewQRStrategy(client *Client, store session.Store) *QRStrategy {
	return &QRStrategy{client: client, store: store}
}

func (s *QRStrategy) Name() string { return conn.StrategyQR }

func (s *QRStrategy) Connect(ctx context.Context) error {
	slog.Info("requesting qr login, waiting for scan")
	sess, err := s.client.LoginQR(ctx)
	if err != nil {
		return err
	}
	saveSession(ctx, s.store, sess)
	return nil
}

// MultideviceStrategy links the agent as an additional device.
type MultideviceStrategy struct {
	client   *Client
	store    session.Store
	deviceID string
}

func NewMultideviceStrategy(client *Client, store session.Store, deviceID string) *MultideviceStrategy {
	return &MultideviceStrategy{client: client, store: store, deviceID: deviceID}
}

func (s *MultideviceStrategy) Name() string { return conn.StrategyMultidevice }

func (s *MultideviceStrategy) Configured() bool { return s.deviceID != "" }

func (s *MultideviceStrategy) Connect(ctx context.Context) error {
	sess, err := s.client.RegisterDevice(ctx, s.deviceID)
	if err != nil {
		return err
	}
	saveSession(ctx, s.store, sess)
	return nil
}

func saveSession(ctx context.Context, store session.Store, sess *domain.Session) {
	if store == nil {
		return
	}
	if err := store.Save(ctx, sess); err != nil {
		slog.Warn("failed to store session", "name", sess.Name, "error", err)
	}
}
