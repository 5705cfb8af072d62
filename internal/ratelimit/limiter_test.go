package ratelimit

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestAllowExhaustsBudget(t *testing.T) {
	l := New(Config{Rules: map[string]Rule{"message": {Requests: 5, Window: time.Minute}}})
	defer l.Close()

	for i := range 5 {
		ok, err := l.Allow("message", "chat-1")
		if err != nil {
			t.Fatalf("unexpected error on call %d: %v", i+1, err)
		}
		if !ok {
			t.Fatalf("expected call %d to be allowed", i+1)
		}
	}

	ok, err := l.Allow("message", "chat-1")
	if err != nil {
		t.Fatalf("unexpected error in non-strict mode: %v", err)
	}
	if ok {
		t.Error("expected 6th call to be denied")
	}
}

func TestAllowRecoversAfterWindow(t *testing.T) {
	l := New(Config{Rules: map[string]Rule{"message": {Requests: 3, Window: 100 * time.Millisecond}}})
	defer l.Close()

	for range 3 {
		if ok, _ := l.Allow("message", "chat-1"); !ok {
			t.Fatal("expected initial calls to be allowed")
		}
	}
	if ok, _ := l.Allow("message", "chat-1"); ok {
		t.Fatal("expected 4th call to be denied")
	}

	time.Sleep(120 * time.Millisecond)

	if ok, _ := l.Allow("message", "chat-1"); !ok {
		t.Error("expected call to be allowed after the window passed")
	}
}

func TestCheckDoesNotConsume(t *testing.T) {
	l := New(Config{Rules: map[string]Rule{"message": {Requests: 5, Window: time.Minute}}})
	defer l.Close()

	for i := range 10 {
		d := l.Check("message", "chat-1")
		if !d.Allowed {
			t.Fatalf("check %d: expected allowed", i+1)
		}
		if d.Remaining != 5 {
			t.Fatalf("check %d: expected remaining 5, got %d", i+1, d.Remaining)
		}
	}

	if ok, _ := l.Allow("message", "chat-1"); !ok {
		t.Error("expected full budget after repeated checks")
	}
}

func TestDecisionFields(t *testing.T) {
	l := New(Config{Rules: map[string]Rule{"message": {Requests: 5, Window: time.Minute}}})
	defer l.Close()

	for range 2 {
		l.Allow("message", "chat-1")
	}

	d := l.Check("message", "chat-1")
	if !d.Allowed {
		t.Error("expected allowed while budget remains")
	}
	if d.Remaining != 3 {
		t.Errorf("expected remaining 3, got %d", d.Remaining)
	}
	if d.Limit != 5 {
		t.Errorf("expected limit 5, got %d", d.Limit)
	}
	if d.Window != time.Minute {
		t.Errorf("expected window 1m, got %s", d.Window)
	}
	if !d.ResetAt.After(time.Now()) {
		t.Error("expected reset time in the future")
	}
}

func TestKeysAreIndependent(t *testing.T) {
	l := New(Config{Rules: map[string]Rule{"message": {Requests: 1, Window: time.Hour}}})
	defer l.Close()

	l.Allow("message", "chat-1")
	if ok, _ := l.Allow("message", "chat-1"); ok {
		t.Fatal("expected chat-1 budget to be exhausted")
	}
	if ok, _ := l.Allow("message", "chat-2"); !ok {
		t.Error("expected chat-2 to have its own budget")
	}
}

func TestRuleFallback(t *testing.T) {
	withGlobal := New(Config{Rules: map[string]Rule{
		"message":  {Requests: 5, Window: time.Minute},
		GlobalRule: {Requests: 2, Window: time.Minute},
	}})
	defer withGlobal.Close()

	withoutGlobal := New(Config{Rules: map[string]Rule{
		"message": {Requests: 5, Window: time.Minute},
	}})
	defer withoutGlobal.Close()

	tests := []struct {
		name      string
		limiter   *Limiter
		operation string
		wantLimit int
	}{
		{"configured operation", withGlobal, "message", 5},
		{"unconfigured falls back to global", withGlobal, "presence_update", 2},
		{"no global rule uses builtin default", withoutGlobal, "presence_update", 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := tt.limiter.Check(tt.operation, "x")
			if d.Limit != tt.wantLimit {
				t.Errorf("expected limit %d, got %d", tt.wantLimit, d.Limit)
			}
		})
	}
}

func TestStrictModeReturnsError(t *testing.T) {
	l := New(Config{
		StrictMode: true,
		Rules:      map[string]Rule{"message": {Requests: 1, Window: time.Minute}},
	})
	defer l.Close()

	if _, err := l.Allow("message", "chat-1"); err != nil {
		t.Fatalf("unexpected error while budget remains: %v", err)
	}

	ok, err := l.Allow("message", "chat-1")
	if ok {
		t.Fatal("expected denial")
	}
	var le *LimitError
	if !errors.As(err, &le) {
		t.Fatalf("expected *LimitError, got %T", err)
	}
	if !strings.Contains(err.Error(), "rate limit exceeded") {
		t.Errorf("expected rate limit message, got %q", err.Error())
	}
	if le.Operation != "message" || le.Identifier != "chat-1" {
		t.Errorf("unexpected error fields: %+v", le)
	}
}

func TestWindowBoundsRefilledBurst(t *testing.T) {
	l := New(Config{Rules: map[string]Rule{"message": {Requests: 4, Window: 200 * time.Millisecond}}})
	defer l.Close()

	for range 4 {
		l.Allow("message", "chat-1")
	}

	time.Sleep(110 * time.Millisecond)

	// The bucket has lazily refilled part of its capacity but all four
	// window stamps are still live, so admission stays denied.
	d := l.Check("message", "chat-1")
	if d.Allowed {
		t.Error("expected sliding window to keep the key denied")
	}
	if d.Remaining != 0 {
		t.Errorf("expected remaining 0, got %d", d.Remaining)
	}
}

func TestResetRestoresBudget(t *testing.T) {
	l := New(Config{Rules: map[string]Rule{"message": {Requests: 2, Window: time.Hour}}})
	defer l.Close()

	l.Allow("message", "chat-1")
	l.Allow("message", "chat-1")
	if ok, _ := l.Allow("message", "chat-1"); ok {
		t.Fatal("expected exhausted budget")
	}

	l.Reset("message", "chat-1")

	d := l.Check("message", "chat-1")
	if !d.Allowed || d.Remaining != 2 {
		t.Errorf("expected full budget after reset, got allowed=%v remaining=%d", d.Allowed, d.Remaining)
	}
}

func TestDisabledAlwaysAllows(t *testing.T) {
	l := New(Config{
		Disabled: true,
		Rules:    map[string]Rule{"message": {Requests: 1, Window: time.Hour}},
	})
	defer l.Close()

	for i := range 10 {
		ok, err := l.Allow("message", "chat-1")
		if err != nil || !ok {
			t.Fatalf("expected call %d allowed with limiter disabled, got ok=%v err=%v", i+1, ok, err)
		}
	}
}

func TestWaitBlocksUntilAdmission(t *testing.T) {
	l := New(Config{Rules: map[string]Rule{"message": {Requests: 1, Window: 80 * time.Millisecond}}})
	defer l.Close()

	if ok, _ := l.Allow("message", "chat-1"); !ok {
		t.Fatal("expected first call to be allowed")
	}

	start := time.Now()
	if err := l.Wait(context.Background(), "message", "chat-1", time.Second); err != nil {
		t.Fatalf("expected wait to succeed, got %v", err)
	}
	if elapsed := time.Since(start); elapsed < 50*time.Millisecond {
		t.Errorf("expected wait to block for the window, returned after %s", elapsed)
	}
}

func TestWaitTimesOut(t *testing.T) {
	l := New(Config{Rules: map[string]Rule{"message": {Requests: 1, Window: time.Minute}}})
	defer l.Close()

	l.Allow("message", "chat-1")

	err := l.Wait(context.Background(), "message", "chat-1", 50*time.Millisecond)
	var le *LimitError
	if !errors.As(err, &le) {
		t.Fatalf("expected *LimitError after wait budget ran out, got %v", err)
	}
}

func TestWaitHonorsContext(t *testing.T) {
	l := New(Config{Rules: map[string]Rule{"message": {Requests: 1, Window: time.Minute}}})
	defer l.Close()

	l.Allow("message", "chat-1")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	err := l.Wait(ctx, "message", "chat-1", time.Minute)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected context deadline error, got %v", err)
	}
}

func TestSweepDropsIdleKeys(t *testing.T) {
	l := New(Config{
		Rules:      map[string]Rule{"message": {Requests: 1, Window: time.Hour}},
		IdleAfter:  40 * time.Millisecond,
		SweepEvery: 20 * time.Millisecond,
	})
	defer l.Close()

	l.Allow("message", "chat-1")
	if ok, _ := l.Allow("message", "chat-1"); ok {
		t.Fatal("expected budget to be exhausted")
	}

	time.Sleep(120 * time.Millisecond)

	// The hour-long window could not have recovered on its own; only
	// the idle sweep restores the key.
	if ok, _ := l.Allow("message", "chat-1"); !ok {
		t.Error("expected idle key to be swept and budget restored")
	}
}
