package event

import (
	"sync"
	"testing"
	"time"
)

func TestBusDeliversToSubscriber(t *testing.T) {
	bus := NewBus(8)
	defer bus.Close()

	got := make(chan Signal, 1)
	bus.Subscribe(KindConnectionSuccess, func(s Signal) { got <- s })

	bus.Publish(KindConnectionSuccess, map[string]any{"strategy": "qr"})

	select {
	case sig := <-got:
		if sig.Kind != KindConnectionSuccess {
			t.Errorf("expected kind %s, got %s", KindConnectionSuccess, sig.Kind)
		}
		if sig.Fields["strategy"] != "qr" {
			t.Errorf("expected strategy qr, got %v", sig.Fields["strategy"])
		}
		if sig.At.IsZero() {
			t.Error("expected signal timestamp to be set")
		}
	case <-time.After(time.Second):
		t.Fatal("signal not delivered")
	}
}

func TestBusKindIsolation(t *testing.T) {
	bus := NewBus(8)
	defer bus.Close()

	var mu sync.Mutex
	var kinds []Kind
	bus.Subscribe(KindCriticalError, func(s Signal) {
		mu.Lock()
		kinds = append(kinds, s.Kind)
		mu.Unlock()
	})

	done := make(chan struct{})
	bus.Subscribe(KindErrorHandled, func(s Signal) { close(done) })

	bus.Publish(KindErrorHandled, nil)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("signal not delivered")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(kinds) != 0 {
		t.Errorf("expected no critical_error deliveries, got %d", len(kinds))
	}
}

func TestBusSubscribeAll(t *testing.T) {
	bus := NewBus(16)

	var mu sync.Mutex
	seen := make(map[Kind]int)
	bus.SubscribeAll(func(s Signal) {
		mu.Lock()
		seen[s.Kind]++
		mu.Unlock()
	})

	all := []Kind{
		KindConnectionSuccess,
		KindCriticalError,
		KindHealthAlert,
		KindHealthAlertResolved,
		KindErrorHandled,
	}
	for _, k := range all {
		bus.Publish(k, nil)
	}

	// Close drains the queue before returning.
	bus.Close()

	mu.Lock()
	defer mu.Unlock()
	for _, k := range all {
		if seen[k] != 1 {
			t.Errorf("expected 1 delivery for %s, got %d", k, seen[k])
		}
	}
}

func TestBusDropsWhenFull(t *testing.T) {
	bus := NewBus(1)

	started := make(chan struct{})
	gate := make(chan struct{})
	bus.Subscribe(KindHealthAlert, func(s Signal) {
		select {
		case started <- struct{}{}:
		default:
		}
		<-gate
	})

	// First signal occupies the dispatcher, second fills the queue,
	// third has nowhere to go.
	bus.Publish(KindHealthAlert, nil)
	<-started
	bus.Publish(KindHealthAlert, nil)
	bus.Publish(KindHealthAlert, nil)

	if got := bus.Dropped(); got != 1 {
		t.Errorf("expected 1 dropped signal, got %d", got)
	}

	close(gate)
	bus.Close()
}

func TestBusPublishAfterClose(t *testing.T) {
	bus := NewBus(4)
	bus.Close()

	// Must not panic or block.
	bus.Publish(KindConnectionSuccess, nil)
	bus.Close()
}
