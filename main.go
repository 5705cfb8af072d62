package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/vietddude/keeper/internal/conn"
	"github.com/vietddude/keeper/internal/core/event"
	"github.com/vietddude/keeper/internal/infra/gateway"
	"github.com/vietddude/keeper/internal/infra/session"
	"github.com/vietddude/keeper/internal/ratelimit"
)

func main() {
	err := godotenv.Load()
	if err != nil {
		log.Println("No .env file found")
	}

	GATEWAY_URL := os.Getenv("GATEWAY_URL")
	PAIRING_CODE := os.Getenv("PAIRING_CODE")
	if GATEWAY_URL == "" {
		log.Fatalf("GATEWAY_URL is not set")
	}

	ctx := context.Background()

	// 1. Create gateway client and session store
	client := gateway.NewClient(gateway.Config{
		URL:         GATEWAY_URL,
		SessionName: "smoke",
		PairingCode: PAIRING_CODE,
	})
	store := session.NewMemoryStore()

	// 2. Setup signal bus with a visible subscriber
	bus := event.NewBus(64)
	bus.SubscribeAll(func(sig event.Signal) {
		fmt.Printf("🔔 %s: %v\n", sig.Kind, sig.Fields)
	})

	// 3. Setup connection manager with every strategy registered
	manager := conn.NewManager(conn.Config{
		MaxRetryAttempts: 2,
		RetryDelay:       2 * time.Second,
		EnableFallback:   true,
	}, gateway.StoreChecker{Store: store, Name: "smoke"}, bus)
	manager.Register(gateway.NewSessionStrategy(client, store, "smoke"))
	manager.Register(gateway.NewPairingStrategy(client, store, PAIRING_CODE))
	manager.Register(gateway.NewQRStrategy(client, store))

	// 4. Connect using the auto ordering
	if err := manager.Connect(ctx, conn.Auto); err != nil {
		log.Fatalf("Connect failed: %v", err)
	}
	snap := manager.Snapshot()
	fmt.Printf("Connected via %s (state=%s)\n", snap.Strategy, snap.State)

	fmt.Println("=== Testing Guarded Pings ===")

	// 5. Ping through a rate limiter to exercise admission
	limiter := ratelimit.New(ratelimit.Config{
		Rules: map[string]ratelimit.Rule{
			"ping": {Requests: 3, Window: 10 * time.Second},
		},
	})
	defer limiter.Close()

	for i := 0; i < 5; i++ {
		allowed, _ := limiter.Allow("ping", "smoke")
		if !allowed {
			decision := limiter.Check("ping", "smoke")
			fmt.Printf("Ping %d: rate limited, reset at %s\n", i+1, decision.ResetAt.Format(time.RFC3339))
			continue
		}
		ok := client.Ping(ctx)
		fmt.Printf("Ping %d: ok=%v\n", i+1, ok)

		time.Sleep(100 * time.Millisecond)
	}

	fmt.Println()

	// 6. Show what the limiter has left
	decision := limiter.Check("ping", "smoke")
	fmt.Println("=== Limiter State ===")
	fmt.Printf("  Remaining: %d / %d\n", decision.Remaining, decision.Limit)
	fmt.Printf("  Window: %s\n", decision.Window)

	// 7. Clean shutdown
	if err := client.Close(); err != nil {
		log.Printf("Close failed: %v", err)
	}
	manager.Disconnect()
	bus.Close()
	fmt.Printf("Dropped signals: %d\n", bus.Dropped())
}
