package e2e

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vietddude/keeper/internal/control"
	"github.com/vietddude/keeper/internal/core/config"
	"github.com/vietddude/keeper/internal/core/domain"
	"github.com/vietddude/keeper/internal/core/event"
	"github.com/vietddude/keeper/internal/health"
	"github.com/vietddude/keeper/internal/infra/gateway"
	"github.com/vietddude/keeper/internal/ratelimit"
	"github.com/vietddude/keeper/internal/recovery"
)

const healthPort = 18090

// fakeGateway speaks the login/ping protocol over websocket. Payload
// frames are counted but get no reply.
type fakeGateway struct {
	upgrader websocket.Upgrader

	mu     sync.Mutex
	logins []string
	sends  int
}

func (g *fakeGateway) handler(w http.ResponseWriter, r *http.Request) {
	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	for {
		var req map[string]any
		if err := conn.ReadJSON(&req); err != nil {
			return
		}
		method, _ := req["method"].(string)
		switch method {
		case "ping":
			_ = conn.WriteJSON(map[string]any{"status": "ok"})
		case "resume", "pair", "qr", "multidevice":
			g.mu.Lock()
			g.logins = append(g.logins, method)
			g.mu.Unlock()
			_ = conn.WriteJSON(map[string]any{
				"status": "ok",
				"session": map[string]any{
					"token":     "e2e-token",
					"device_id": "e2e-device",
				},
			})
		default:
			g.mu.Lock()
			g.sends++
			g.mu.Unlock()
		}
	}
}

func (g *fakeGateway) loginMethods() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.logins...)
}

func (g *fakeGateway) sendCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.sends
}

func getHealth(t *testing.T) (int, string) {
	t.Helper()
	resp, err := http.Get(fmt.Sprintf("http://localhost:%d/health", healthPort))
	if err != nil {
		return 0, ""
	}
	defer resp.Body.Close()

	var body struct {
		Status string `json:"status"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&body)
	return resp.StatusCode, body.Status
}

func waitForHealth(t *testing.T, wantCode int, timeout time.Duration) bool {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if code, _ := getHealth(t); code == wantCode {
			return true
		}
		time.Sleep(50 * time.Millisecond)
	}
	return false
}

func TestKeeperFlow(t *testing.T) {
	fake := &fakeGateway{}
	srv := httptest.NewServer(http.HandlerFunc(fake.handler))
	defer srv.Close()

	cfg := config.AppConfig{
		Server: config.ServerConfig{Port: healthPort},
		Gateway: gateway.Config{
			URL:         srv.URL,
			SessionName: "e2e",
			PairingCode: "E2E-1234",
		},
		Connection: config.ConnectionConfig{
			MaxRetryAttempts: 2,
			RetryDelay:       10 * time.Millisecond,
		},
		RateLimit: ratelimit.Config{},
		Recovery: recovery.Config{
			BaseDelay: time.Millisecond,
			MaxDelay:  10 * time.Millisecond,
		},
		Health: config.HealthConfig{
			Checks: map[string]health.CheckConfig{
				health.CheckConnection: {Interval: 50 * time.Millisecond, Timeout: time.Second, Critical: true},
			},
		},
	}

	keeper, err := control.NewKeeper(cfg)
	if err != nil {
		t.Fatalf("Failed to create keeper: %v", err)
	}

	alertCh := make(chan event.Signal, 16)
	resolvedCh := make(chan event.Signal, 16)
	keeper.Bus().Subscribe(event.KindHealthAlert, func(sig event.Signal) {
		select {
		case alertCh <- sig:
		default:
		}
	})
	keeper.Bus().Subscribe(event.KindHealthAlertResolved, func(sig event.Signal) {
		select {
		case resolvedCh <- sig:
		default:
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := keeper.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer func() {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer stopCancel()
		_ = keeper.Stop(stopCtx)
	}()

	// Wait for the initial connection.
	deadline := time.Now().Add(5 * time.Second)
	for keeper.Snapshot().State != domain.ConnStateConnected {
		if time.Now().After(deadline) {
			t.Fatalf("Timed out waiting for connection, state=%s", keeper.Snapshot().State)
		}
		time.Sleep(20 * time.Millisecond)
	}

	// No stored session, so the configured pairing code goes first.
	logins := fake.loginMethods()
	if len(logins) == 0 || logins[0] != "pair" {
		t.Errorf("Expected pairing login first, got %v", logins)
	}

	// Wait until the connection check has seen the healthy link.
	if !waitForHealth(t, http.StatusOK, 5*time.Second) {
		t.Fatal("Health endpoint never reported healthy")
	}

	// Send a guarded message over the live link.
	if err := keeper.Send(ctx, "peer-1", map[string]string{"method": "send", "text": "hello"}); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	sendDeadline := time.Now().Add(2 * time.Second)
	for fake.sendCount() == 0 {
		if time.Now().After(sendDeadline) {
			t.Fatal("Gateway never received the payload")
		}
		time.Sleep(10 * time.Millisecond)
	}

	// Drain any startup alerts before breaking the link.
	for {
		select {
		case <-alertCh:
			continue
		case <-resolvedCh:
			continue
		default:
		}
		break
	}

	// Kill the link. The critical connection check must raise an alert
	// and flip the health endpoint to 503.
	srv.CloseClientConnections()

	select {
	case sig := <-alertCh:
		if sig.Fields["check"] != health.CheckConnection {
			t.Errorf("Expected connection alert, got %v", sig.Fields)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("No alert after gateway loss")
	}
	if !waitForHealth(t, http.StatusServiceUnavailable, 5*time.Second) {
		t.Fatal("Health endpoint never reported unhealthy")
	}

	// Recover. The stored session from the pairing login resumes.
	if err := keeper.Reconnect(ctx); err != nil {
		t.Fatalf("Reconnect failed: %v", err)
	}
	logins = fake.loginMethods()
	if logins[len(logins)-1] != "resume" {
		t.Errorf("Expected session resume on reconnect, got %v", logins)
	}

	select {
	case <-resolvedCh:
	case <-time.After(5 * time.Second):
		t.Fatal("Alert was not resolved after reconnect")
	}
	if !waitForHealth(t, http.StatusOK, 5*time.Second) {
		t.Fatal("Health endpoint never recovered")
	}
}
