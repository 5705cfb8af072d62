// Package recovery classifies failures and executes recovery plans.
//
// This package contains:
//   - Classify: substring-priority mapping from error to kind
//   - Taxonomy: static per-kind severity/recoverable/retryable profiles
//   - Plan: pure derivation of a recovery strategy from kind + retry count
//   - Handler: bounded history, retry counters, callbacks, plan execution
//
// The handler holds no connection or session state. Every stateful
// action is delegated to the orchestrator through Capabilities.
package recovery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vietddude/keeper/internal/core/domain"
	"github.com/vietddude/keeper/internal/core/event"
	"github.com/vietddude/keeper/internal/metrics"
)

// Capabilities is the surface recovery actions run against.
type Capabilities interface {
	Reconnect(ctx context.Context) error
	Reauthenticate(ctx context.Context) error
	Retry(ctx context.Context) error
	CleanupResources(ctx context.Context) error
	ClearSession(ctx context.Context) error
	RestartAuth(ctx context.Context) error
	VerifyConnected(ctx context.Context) bool
}

// Archive persists incidents. Failures are logged, never fatal.
type Archive interface {
	SaveIncident(ctx context.Context, inc *domain.Incident) error
}

// Callback observes incidents of one kind. Errors are logged and do
// not affect other callbacks or the recovery outcome.
type Callback func(inc domain.Incident) error

// Result is the outcome of handling one error.
type Result struct {
	Success  bool
	Strategy Strategy
	Executed []Action
	Record   *domain.Incident
	Err      error
}

// Handler routes errors through classification, bookkeeping and
// strategy execution.
type Handler struct {
	cfg      Config
	taxonomy Taxonomy
	caps     Capabilities
	bus      *event.Bus
	archive  Archive

	mu        sync.Mutex
	history   []*domain.Incident
	retries   map[string]int
	callbacks map[domain.ErrorKind][]Callback
}

// NewHandler creates a handler. taxonomy may be nil to use the default
// table; archive may be nil to skip persistence.
func NewHandler(cfg Config, taxonomy Taxonomy, caps Capabilities, bus *event.Bus, archive Archive) *Handler {
	if cfg.MaxRetryAttempts <= 0 {
		cfg.MaxRetryAttempts = 3
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = time.Second
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = 30 * time.Second
	}
	if cfg.RateLimitCooldown <= 0 {
		cfg.RateLimitCooldown = time.Minute
	}
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = 100
	}
	if taxonomy == nil {
		taxonomy = DefaultTaxonomy()
	}
	return &Handler{
		cfg:       cfg,
		taxonomy:  taxonomy,
		caps:      caps,
		bus:       bus,
		archive:   archive,
		retries:   make(map[string]int),
		callbacks: make(map[domain.ErrorKind][]Callback),
	}
}

// OnKind registers a callback invoked for every incident of that kind.
func (h *Handler) OnKind(kind domain.ErrorKind, cb Callback) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.callbacks[kind] = append(h.callbacks[kind], cb)
}

// Handle classifies err, records it, and executes the derived recovery
// strategy. It never panics and never returns a nil Record for a
// non-nil err.
func (h *Handler) Handle(ctx context.Context, err error, errCtx map[string]any) Result {
	if err == nil {
		return Result{Success: true}
	}

	kind := Classify(err)
	profile := h.taxonomy.profileFor(kind)

	h.mu.Lock()
	prior := h.retries[err.Error()]
	h.retries[err.Error()] = prior + 1

	record := &domain.Incident{
		ID:          uuid.New().String(),
		Kind:        kind,
		Severity:    profile.Severity,
		Recoverable: profile.Recoverable,
		Retryable:   profile.Retryable,
		Message:     err.Error(),
		Context:     errCtx,
		RetryCount:  prior,
		Timestamp:   time.Now(),
	}
	h.history = append(h.history, record)
	if len(h.history) > h.cfg.HistorySize {
		h.history = h.history[len(h.history)-h.cfg.HistorySize:]
	}
	callbacks := append([]Callback(nil), h.callbacks[kind]...)
	h.mu.Unlock()

	h.logIncident(record)
	metrics.ErrorsHandled.WithLabelValues(string(kind), string(profile.Severity)).Inc()

	if h.archive != nil {
		if aerr := h.archive.SaveIncident(ctx, record); aerr != nil {
			slog.Warn("failed to archive incident", "id", record.ID, "error", aerr)
		}
	}

	for _, cb := range callbacks {
		if cberr := cb(*record); cberr != nil {
			slog.Warn("error callback failed", "kind", kind, "error", cberr)
		}
	}

	strategy := Plan(kind, profile, prior, h.cfg)
	result, notified := h.execute(ctx, strategy, record)

	// The fail action already published its own critical signal.
	if !profile.Recoverable && kind != domain.ErrorKindValidation && strategy.Kind != StrategyFail {
		h.publish(event.KindCriticalError, signalFields(record, strategy))
	}
	if !notified {
		h.publish(event.KindErrorHandled, signalFields(record, strategy))
	}

	outcome := "success"
	if !result.Success {
		outcome = "failure"
	}
	metrics.RecoveryOutcomes.WithLabelValues(string(strategy.Kind), outcome).Inc()

	return result
}

// History returns a copy of the bounded incident history, oldest first.
func (h *Handler) History() []domain.Incident {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]domain.Incident, len(h.history))
	for i, rec := range h.history {
		out[i] = *rec
	}
	return out
}

// RetryCount reports how many times an error message has been handled.
func (h *Handler) RetryCount(message string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.retries[message]
}

// ResetRetries clears the retry counter for one error message. Counters
// are never cleared implicitly.
func (h *Handler) ResetRetries(message string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.retries, message)
}

// ResetAllRetries clears every retry counter.
func (h *Handler) ResetAllRetries() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.retries = make(map[string]int)
}

// execute runs the strategy's actions strictly in order. A failing
// non-diagnostic action aborts the rest; log and notify never abort.
// The second return reports whether a notify action published the
// error_handled signal.
func (h *Handler) execute(ctx context.Context, strategy Strategy, record *domain.Incident) (Result, bool) {
	result := Result{Success: true, Strategy: strategy, Record: record}
	notified := false

	for _, action := range strategy.Actions {
		var err error
		switch action {
		case ActionWait:
			err = h.wait(ctx, strategy.Delay)
		case ActionReconnect:
			err = h.caps.Reconnect(ctx)
		case ActionReauthenticate:
			err = h.caps.Reauthenticate(ctx)
		case ActionRetry:
			err = h.caps.Retry(ctx)
		case ActionCleanupResources:
			err = h.caps.CleanupResources(ctx)
		case ActionClearSession:
			err = h.caps.ClearSession(ctx)
		case ActionRestartAuth:
			err = h.caps.RestartAuth(ctx)
		case ActionVerify:
			if !h.caps.VerifyConnected(ctx) {
				err = errors.New("connection verification failed")
			}
		case ActionLog:
			slog.Error("surfacing error without retry",
				"id", record.ID,
				"kind", record.Kind,
				"retry_count", record.RetryCount,
				"error", record.Message,
			)
		case ActionNotify:
			h.publish(event.KindErrorHandled, signalFields(record, strategy))
			notified = true
		case ActionFail:
			h.publish(event.KindCriticalError, signalFields(record, strategy))
			err = fmt.Errorf("recovery abandoned after %d attempts: %s", record.RetryCount, record.Message)
		default:
			err = fmt.Errorf("unknown recovery action %q", action)
		}

		result.Executed = append(result.Executed, action)

		if err != nil {
			if action == ActionLog || action == ActionNotify {
				slog.Warn("diagnostic action failed", "action", action, "error", err)
				continue
			}
			result.Success = false
			result.Err = fmt.Errorf("action %s: %w", action, err)
			break
		}
	}

	return result, notified
}

func (h *Handler) wait(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(delay):
		return nil
	}
}

func (h *Handler) publish(kind event.Kind, fields map[string]any) {
	if h.bus != nil {
		h.bus.Publish(kind, fields)
	}
}

func (h *Handler) logIncident(record *domain.Incident) {
	args := []any{
		"id", record.ID,
		"kind", record.Kind,
		"retry_count", record.RetryCount,
		"error", record.Message,
	}
	switch record.Severity {
	case domain.SeverityLow:
		slog.Info("handling error", args...)
	case domain.SeverityMedium:
		slog.Warn("handling error", args...)
	default:
		slog.Error("handling error", args...)
	}
}

func signalFields(record *domain.Incident, strategy Strategy) map[string]any {
	return map[string]any{
		"id":          record.ID,
		"kind":        string(record.Kind),
		"severity":    string(record.Severity),
		"strategy":    string(strategy.Kind),
		"message":     record.Message,
		"retry_count": record.RetryCount,
	}
}
