// Package gateway implements the websocket client for the messaging
// gateway: dialing, the login handshake for each connection method,
// and the link checks used by health monitoring.
package gateway

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vietddude/keeper/internal/core/domain"
)

// Config holds gateway connection configuration.
type Config struct {
	URL              string        `yaml:"url"`
	SessionName      string        `yaml:"session_name"`
	PairingCode      string        `yaml:"pairing_code"`
	DeviceID         string        `yaml:"device_id"`
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`
}

type loginRequest struct {
	Method   string `json:"method"`
	Token    string `json:"token,omitempty"`
	Code     string `json:"code,omitempty"`
	DeviceID string `json:"device_id,omitempty"`
}

type loginResponse struct {
	Status  string          `json:"status"`
	Error   string          `json:"error,omitempty"`
	Session *sessionPayload `json:"session,omitempty"`
}

type sessionPayload struct {
	Token    string `json:"token"`
	DeviceID string `json:"device_id"`
}

// Client maintains the websocket link to the gateway. One login
// handshake per connection; the socket then stays open for traffic.
type Client struct {
	cfg    Config
	dialer *websocket.Dialer

	mu   sync.Mutex
	conn *websocket.Conn
}

// NewClient creates a gateway client.
func NewClient(cfg Config) *Client {
	if cfg.SessionName == "" {
		cfg.SessionName = "default"
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = 30 * time.Second
	}
	return &Client{
		cfg:    cfg,
		dialer: &websocket.Dialer{HandshakeTimeout: cfg.HandshakeTimeout},
	}
}

// Resume re-establishes the link with a previously issued token.
func (c *Client) Resume(ctx context.Context, sess *domain.Session) (*domain.Session, error) {
	out, err := c.login(ctx, loginRequest{Method: "resume", Token: sess.Token})
	if err != nil {
		return nil, err
	}
	if !sess.CreatedAt.IsZero() {
		out.CreatedAt = sess.CreatedAt
	}
	return out, nil
}

// Pair logs in with an 8-character pairing code.
func (c *Client) Pair(ctx context.Context, code string) (*domain.Session, error) {
	return c.login(ctx, loginRequest{Method: "pair", Code: code})
}

// LoginQR requests a QR login. The call blocks until the gateway
// confirms the scan or the context expires.
func (c *Client) LoginQR(ctx context.Context) (*domain.Session, error) {
	return c.login(ctx, loginRequest{Method: "qr"})
}

// RegisterDevice links this agent as an additional device.
func (c *Client) RegisterDevice(ctx context.Context, deviceID string) (*domain.Session, error) {
	return c.login(ctx, loginRequest{Method: "multidevice", DeviceID: deviceID})
}

func (c *Client) login(ctx context.Context, req loginRequest) (*domain.Session, error) {
	endpoint, err := wsEndpoint(c.cfg.URL)
	if err != nil {
		return nil, err
	}

	conn, resp, err := c.dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		return nil, fmt.Errorf("gateway dial failed (status %d): %w", status, err)
	}

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetWriteDeadline(deadline)
		_ = conn.SetReadDeadline(deadline)
	}

	if err := conn.WriteJSON(req); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to send %s login: %w", req.Method, err)
	}

	var res loginResponse
	if err := conn.ReadJSON(&res); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to read %s login response: %w", req.Method, err)
	}
	if res.Status != "ok" || res.Session == nil {
		_ = conn.Close()
		if res.Error == "" {
			res.Error = "login rejected"
		}
		return nil, fmt.Errorf("gateway refused %s login: %s", req.Method, res.Error)
	}

	_ = conn.SetWriteDeadline(time.Time{})
	_ = conn.SetReadDeadline(time.Time{})

	c.mu.Lock()
	if c.conn != nil {
		_ = c.conn.Close()
	}
	c.conn = conn
	c.mu.Unlock()

	now := time.Now()
	return &domain.Session{
		Name:      c.cfg.SessionName,
		Token:     res.Session.Token,
		DeviceID:  res.Session.DeviceID,
		CreatedAt: now,
		LastUsed:  now,
	}, nil
}

// Send writes one JSON payload over the established connection.
func (c *Client) Send(ctx context.Context, v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return fmt.Errorf("not connected to gateway")
	}

	deadline := time.Now().Add(10 * time.Second)
	if d, ok := ctx.Deadline(); ok {
		deadline = d
	}
	_ = c.conn.SetWriteDeadline(deadline)
	if err := c.conn.WriteJSON(v); err != nil {
		return fmt.Errorf("gateway send failed: %w", err)
	}
	return nil
}

// Ping runs a request/response round trip to confirm the link is
// actually alive, not just open.
func (c *Client) Ping(ctx context.Context) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return false
	}

	deadline := time.Now().Add(5 * time.Second)
	if d, ok := ctx.Deadline(); ok {
		deadline = d
	}
	_ = c.conn.SetWriteDeadline(deadline)
	_ = c.conn.SetReadDeadline(deadline)

	if err := c.conn.WriteJSON(loginRequest{Method: "ping"}); err != nil {
		return false
	}
	var res loginResponse
	if err := c.conn.ReadJSON(&res); err != nil {
		return false
	}

	_ = c.conn.SetWriteDeadline(time.Time{})
	_ = c.conn.SetReadDeadline(time.Time{})
	return res.Status == "ok"
}

// Connected reports whether a socket is currently open.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// Close tears down the socket if one is open.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

func wsEndpoint(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid gateway URL: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported gateway scheme %q", u.Scheme)
	}
	return u.String(), nil
}
