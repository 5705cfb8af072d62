package control

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/vietddude/keeper/internal/conn"
	"github.com/vietddude/keeper/internal/core/config"
	"github.com/vietddude/keeper/internal/core/domain"
	"github.com/vietddude/keeper/internal/core/event"
	"github.com/vietddude/keeper/internal/core/worker"
	"github.com/vietddude/keeper/internal/health"
	"github.com/vietddude/keeper/internal/infra/gateway"
	"github.com/vietddude/keeper/internal/infra/session"
	"github.com/vietddude/keeper/internal/infra/storage"
	"github.com/vietddude/keeper/internal/infra/storage/memory"
	"github.com/vietddude/keeper/internal/infra/storage/postgres"
	"github.com/vietddude/keeper/internal/metrics"
	"github.com/vietddude/keeper/internal/ratelimit"
	"github.com/vietddude/keeper/internal/recovery"

	"github.com/pressly/goose/v3"
)

// waitBudget bounds how long a guarded operation waits for rate limit
// capacity when strict mode is off.
const waitBudget = 30 * time.Second

// Keeper is the main application struct that wires the resilience
// components together and manages their lifecycle.
type Keeper struct {
	cfg          config.AppConfig
	bus          *event.Bus
	limiter      *ratelimit.Limiter
	handler      *recovery.Handler
	manager      *conn.Manager
	monitor      *health.Monitor
	healthServer *health.Server
	client       *gateway.Client
	sessions     session.Store
	incidents    storage.IncidentRepository
	alerts       storage.AlertRepository
	db           *postgres.DB
	grpcConn     *grpc.ClientConn
	pruner       *worker.Pruner
	log          *slog.Logger

	mu     sync.Mutex
	lastOp func(ctx context.Context) error
}

// NewKeeper creates a new Keeper instance with all dependencies initialized.
func NewKeeper(cfg config.AppConfig) (*Keeper, error) {
	// Keep the session name consistent across client, store and checker.
	if cfg.Gateway.SessionName == "" {
		cfg.Gateway.SessionName = "default"
	}

	// 1. Initialize Storage
	var incidents storage.IncidentRepository
	var alerts storage.AlertRepository
	var db *postgres.DB

	if cfg.Database.URL != "" {
		var err error
		db, err = postgres.NewDB(context.Background(), cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to init db: %w", err)
		}

		// Run migrations
		// Note: Goose needs direct *sql.DB which sqlx.DB wraps
		if err := goose.SetDialect("postgres"); err != nil {
			return nil, err
		}
		migrations := cfg.Database.MigrationsDir
		if migrations == "" {
			migrations = "migrations"
		}
		if err := goose.Up(db.DB.DB, migrations); err != nil {
			return nil, fmt.Errorf("failed to migrate db: %w", err)
		}

		incidents = postgres.NewIncidentRepo(db)
		alerts = postgres.NewAlertRepo(db)

		slog.Info("Using PostgreSQL storage")
	} else {
		store := memory.NewMemoryStorage()
		incidents = memory.NewIncidentRepo(store)
		alerts = memory.NewAlertRepo(store)

		slog.Info("Using Memory storage")
	}

	// 2. Initialize Session Store
	var sessions session.Store
	if cfg.Redis.URL != "" {
		redisStore, err := session.NewRedisStore(cfg.Redis)
		if err != nil {
			return nil, fmt.Errorf("failed to init session store: %w", err)
		}
		sessions = redisStore
		slog.Info("Using Redis session store")
	} else {
		sessions = session.NewMemoryStore()
		slog.Info("Using Memory session store")
	}

	// 3. Initialize Event Bus
	bus := event.NewBus(256)
	bus.SubscribeAll(func(sig event.Signal) {
		metrics.SignalsTotal.WithLabelValues(string(sig.Kind)).Inc()
	})

	// 4. Initialize Gateway Client and Connection Manager
	client := gateway.NewClient(cfg.Gateway)
	checker := gateway.StoreChecker{Store: sessions, Name: cfg.Gateway.SessionName}
	manager := conn.NewManager(cfg.Connection.Manager(), checker, bus)

	manager.Register(gateway.NewSessionStrategy(client, sessions, cfg.Gateway.SessionName))
	manager.Register(gateway.NewPairingStrategy(client, sessions, cfg.Gateway.PairingCode))
	manager.Register(gateway.NewQRStrategy(client, sessions))
	manager.Register(gateway.NewMultideviceStrategy(client, sessions, cfg.Gateway.DeviceID))

	// 5. Initialize Rate Limiter
	limiter := ratelimit.New(cfg.RateLimit)

	k := &Keeper{
		cfg:       cfg,
		bus:       bus,
		limiter:   limiter,
		manager:   manager,
		client:    client,
		sessions:  sessions,
		incidents: incidents,
		alerts:    alerts,
		db:        db,
		log:       slog.Default(),
	}

	// 6. Initialize Recovery Handler
	// The keeper itself provides the recovery capabilities.
	k.handler = recovery.NewHandler(cfg.Recovery, nil, k, bus, incidentArchive{incidents})

	// 7. Initialize Health Monitor
	monitor := health.NewMonitor(bus, alertArchive{alerts})
	k.monitor = monitor
	k.registerChecks()

	k.healthServer = health.NewServer(monitor, cfg.Server.Port)

	// 8. Initialize Pruner
	if cfg.Retention > 0 {
		k.pruner = worker.NewPruner(cfg.Retention, incidents, alerts)
	}

	return k, nil
}

// registerChecks wires the built-in health checks. Per-check settings
// from the config file override the defaults.
func (k *Keeper) registerChecks() {
	thresholds := k.cfg.Health.Thresholds
	defaults := health.DefaultThresholds()
	if thresholds.MemoryPercent <= 0 {
		thresholds.MemoryPercent = defaults.MemoryPercent
	}
	if thresholds.ResponseTimeMs <= 0 {
		thresholds.ResponseTimeMs = defaults.ResponseTimeMs
	}
	if thresholds.ErrorRatePercent <= 0 {
		thresholds.ErrorRatePercent = defaults.ErrorRatePercent
	}

	configs := health.DefaultCheckConfigs()
	for name, override := range k.cfg.Health.Checks {
		configs[name] = override
	}

	stats := k.monitor.RequestStats()
	k.monitor.Register(health.CheckConnection, configs[health.CheckConnection],
		health.ConnectionProbe(k.manager.State, k.client.Ping))
	k.monitor.Register(health.CheckMemory, configs[health.CheckMemory],
		health.MemoryProbe(thresholds))
	k.monitor.Register(health.CheckErrorRate, configs[health.CheckErrorRate],
		health.ErrorRateProbe(stats, thresholds))
	k.monitor.Register(health.CheckResponseTime, configs[health.CheckResponseTime],
		health.ResponseTimeProbe(stats, thresholds))

	if k.db != nil {
		k.monitor.Register(health.CheckDatabase, configs[health.CheckDatabase],
			health.PingProbe("postgres", k.db.Health))
	}
	if redisStore, ok := k.sessions.(*session.RedisStore); ok {
		k.monitor.Register(health.CheckRedis, configs[health.CheckRedis],
			health.PingProbe("redis", redisStore.Ping))
	}

	if target := k.cfg.Health.GRPCTarget; target != "" {
		cc, err := grpc.NewClient(target, grpc.WithTransportCredentials(insecure.NewCredentials()))
		if err != nil {
			k.log.Warn("Failed to create gRPC health client, check disabled", "target", target, "error", err)
			return
		}
		k.grpcConn = cc
		k.monitor.Register(health.CheckGateway, configs[health.CheckGateway],
			health.GRPCHealthProbe(cc, k.cfg.Health.GRPCService))
	}
}

// Start starts the keeper and all its components.
func (k *Keeper) Start(ctx context.Context) error {
	// Start Health Server
	go func() {
		if err := k.healthServer.Start(); err != nil {
			k.log.Error("Health server failed", "error", err)
		}
	}()

	// Start Health Monitor Background Tasks
	k.monitor.Start(ctx)

	// Start DB Metrics Collector
	if k.db != nil {
		k.db.StartMetricsCollector(ctx)
	}

	// Start Pruner
	if k.pruner != nil {
		k.log.Info("Starting pruner", "retention", k.cfg.Retention)
		go k.pruner.Start(ctx)
	}

	// Establish the initial connection. Failures are surfaced through
	// the connection health check rather than aborting startup.
	strategy := k.cfg.Connection.Strategy
	if strategy == "" {
		strategy = conn.Auto
	}
	go func() {
		if err := k.manager.Connect(ctx, strategy); err != nil {
			k.log.Error("Initial connection failed", "strategy", strategy, "error", err)
		}
	}()

	return nil
}

// Stop stops the keeper.
func (k *Keeper) Stop(ctx context.Context) error {
	k.log.Info("Stopping Keeper...")

	// Stop Health Monitor
	k.monitor.Stop()

	// Close the gateway connection
	if err := k.client.Close(); err != nil {
		k.log.Warn("Failed to close gateway connection", "error", err)
	}
	k.manager.Disconnect()

	// Stop rate limiter sweeper and drain pending signals
	k.limiter.Close()
	k.bus.Close()

	// Close Session Store
	if err := k.sessions.Close(); err != nil {
		k.log.Warn("Failed to close session store", "error", err)
	}

	// Close gRPC probe connection
	if k.grpcConn != nil {
		if err := k.grpcConn.Close(); err != nil {
			k.log.Warn("Failed to close gRPC connection", "error", err)
		}
	}

	// Close Database
	if k.db != nil {
		if err := k.db.Close(); err != nil {
			k.log.Warn("Failed to close database", "error", err)
		}
	}

	// Stop Health Server
	return k.healthServer.Stop(ctx)
}

// Do runs one guarded operation: rate limit admission first, then fn,
// then error handling on failure. It returns nil when fn succeeds or
// when the recovery plan re-ran it successfully, otherwise the
// original error.
func (k *Keeper) Do(ctx context.Context, operation, identifier string, fn func(ctx context.Context) error) error {
	if k.cfg.RateLimit.StrictMode {
		if _, err := k.limiter.Allow(operation, identifier); err != nil {
			metrics.RateLimitDecisions.WithLabelValues(operation, "denied").Inc()
			return err
		}
	} else if err := k.limiter.Wait(ctx, operation, identifier, waitBudget); err != nil {
		metrics.RateLimitDecisions.WithLabelValues(operation, "denied").Inc()
		return err
	}
	metrics.RateLimitDecisions.WithLabelValues(operation, "allowed").Inc()

	start := time.Now()
	err := fn(ctx)
	k.monitor.RecordRequest(time.Since(start), err == nil)

	if err == nil {
		metrics.OperationsTotal.WithLabelValues(operation, "success").Inc()
		return nil
	}
	metrics.OperationsTotal.WithLabelValues(operation, "failure").Inc()

	k.mu.Lock()
	k.lastOp = fn
	k.mu.Unlock()

	result := k.handler.Handle(ctx, err, map[string]any{
		"operation":  operation,
		"identifier": identifier,
	})
	if result.Success && retried(result) {
		return nil
	}
	return err
}

func retried(result recovery.Result) bool {
	for _, a := range result.Executed {
		if a == recovery.ActionRetry {
			return true
		}
	}
	return false
}

// Send transmits one payload over the gateway link as a guarded
// "message" operation scoped to identifier.
func (k *Keeper) Send(ctx context.Context, identifier string, payload any) error {
	return k.Do(ctx, "message", identifier, func(ctx context.Context) error {
		return k.client.Send(ctx, payload)
	})
}

// Bus exposes the signal bus for subscribers.
func (k *Keeper) Bus() *event.Bus { return k.bus }

// Snapshot returns the current connection view.
func (k *Keeper) Snapshot() conn.Snapshot { return k.manager.Snapshot() }

// History returns the handled incident history, oldest first.
func (k *Keeper) History() []domain.Incident { return k.handler.History() }

// ---- recovery.Capabilities ----

// Reconnect tears the connection down and runs the full strategy
// sequence again.
func (k *Keeper) Reconnect(ctx context.Context) error {
	k.manager.Disconnect()
	return k.manager.Connect(ctx, conn.Auto)
}

// Reauthenticate drops the stored session and logs in from scratch.
func (k *Keeper) Reauthenticate(ctx context.Context) error {
	if err := k.sessions.Clear(ctx, k.cfg.Gateway.SessionName); err != nil {
		k.log.Warn("Failed to clear session", "error", err)
	}
	k.manager.Disconnect()
	return k.manager.Connect(ctx, conn.Auto)
}

// Retry re-runs the most recent guarded operation, if any.
func (k *Keeper) Retry(ctx context.Context) error {
	k.mu.Lock()
	fn := k.lastOp
	k.mu.Unlock()
	if fn == nil {
		return nil
	}
	return fn(ctx)
}

// CleanupResources returns unused memory to the OS.
func (k *Keeper) CleanupResources(ctx context.Context) error {
	debug.FreeOSMemory()
	return nil
}

// ClearSession removes the stored session credentials.
func (k *Keeper) ClearSession(ctx context.Context) error {
	return k.sessions.Clear(ctx, k.cfg.Gateway.SessionName)
}

// RestartAuth clears the session and forces a fresh QR login.
func (k *Keeper) RestartAuth(ctx context.Context) error {
	if err := k.sessions.Clear(ctx, k.cfg.Gateway.SessionName); err != nil {
		k.log.Warn("Failed to clear session", "error", err)
	}
	k.manager.Disconnect()
	return k.manager.Connect(ctx, conn.StrategyQR)
}

// VerifyConnected checks the link end to end.
func (k *Keeper) VerifyConnected(ctx context.Context) bool {
	return k.client.Ping(ctx)
}

// incidentArchive adapts the incident repository to the recovery
// handler's archive interface.
type incidentArchive struct {
	repo storage.IncidentRepository
}

func (a incidentArchive) SaveIncident(ctx context.Context, inc *domain.Incident) error {
	return a.repo.Save(ctx, inc)
}

// alertArchive adapts the alert repository to the health monitor's
// archive interface.
type alertArchive struct {
	repo storage.AlertRepository
}

func (a alertArchive) SaveAlert(ctx context.Context, alert *domain.Alert) error {
	return a.repo.Save(ctx, alert)
}
