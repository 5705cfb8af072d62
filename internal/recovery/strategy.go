package recovery

import (
	"math"
	"time"

	"github.com/vietddude/keeper/internal/core/domain"
)

// StrategyKind names a recovery plan family.
type StrategyKind string

const (
	StrategyReconnect      StrategyKind = "reconnect"
	StrategyReauthenticate StrategyKind = "reauthenticate"
	StrategyBackoff        StrategyKind = "backoff"
	StrategyRetry          StrategyKind = "retry"
	StrategyCleanup        StrategyKind = "cleanup"
	StrategyFail           StrategyKind = "fail"
	StrategyLog            StrategyKind = "log"
)

// Action is a single named recovery step. Actions are idempotent and
// execute against the orchestrator's capabilities.
type Action string

const (
	ActionWait             Action = "wait"
	ActionReconnect        Action = "reconnect"
	ActionReauthenticate   Action = "reauthenticate"
	ActionRetry            Action = "retry"
	ActionCleanupResources Action = "cleanup_resources"
	ActionClearSession     Action = "clear_session"
	ActionRestartAuth      Action = "restart_auth"
	ActionVerify           Action = "verify"
	ActionLog              Action = "log"
	ActionNotify           Action = "notify"
	ActionFail             Action = "fail"
)

// Strategy is an ordered recovery plan. Delay is consumed by the wait
// action; plans without a wait leave it zero.
type Strategy struct {
	Kind      StrategyKind
	Actions   []Action
	Delay     time.Duration
	Retryable bool
}

// Config holds recovery handler tuning.
type Config struct {
	MaxRetryAttempts  int           `yaml:"max_retry_attempts"`
	BaseDelay         time.Duration `yaml:"base_delay"`
	MaxDelay          time.Duration `yaml:"max_delay"`
	RateLimitCooldown time.Duration `yaml:"rate_limit_cooldown"`
	HistorySize       int           `yaml:"history_size"`
}

// DefaultConfig returns the stock handler tuning.
func DefaultConfig() Config {
	return Config{
		MaxRetryAttempts:  3,
		BaseDelay:         time.Second,
		MaxDelay:          30 * time.Second,
		RateLimitCooldown: time.Minute,
		HistorySize:       100,
	}
}

// Plan derives the recovery strategy for an error kind, given how many
// times the same error message has already been handled. Pure function:
// same inputs, same plan.
//
// A retryable kind whose retry budget is spent is downgraded to the
// fail plan. No kind retries unboundedly.
func Plan(kind domain.ErrorKind, profile Profile, retryCount int, cfg Config) Strategy {
	if profile.Retryable && retryCount >= cfg.MaxRetryAttempts {
		return Strategy{
			Kind:    StrategyFail,
			Actions: []Action{ActionLog, ActionNotify, ActionFail},
		}
	}

	switch kind {
	case domain.ErrorKindConnection:
		return Strategy{
			Kind:      StrategyReconnect,
			Actions:   []Action{ActionWait, ActionReconnect, ActionVerify},
			Delay:     expBackoff(cfg.BaseDelay, cfg.MaxDelay, retryCount),
			Retryable: true,
		}
	case domain.ErrorKindAuthentication:
		// Requires a fresh user-driven flow, so never retried locally.
		return Strategy{
			Kind:    StrategyReauthenticate,
			Actions: []Action{ActionClearSession, ActionRestartAuth},
		}
	case domain.ErrorKindRateLimit:
		return Strategy{
			Kind:      StrategyBackoff,
			Actions:   []Action{ActionWait, ActionRetry},
			Delay:     cfg.RateLimitCooldown,
			Retryable: true,
		}
	case domain.ErrorKindNetwork:
		return Strategy{
			Kind:      StrategyRetry,
			Actions:   []Action{ActionWait, ActionRetry},
			Delay:     linearBackoff(cfg.BaseDelay, cfg.MaxDelay, retryCount),
			Retryable: true,
		}
	case domain.ErrorKindTimeout:
		return Strategy{
			Kind:      StrategyRetry,
			Actions:   []Action{ActionWait, ActionRetry},
			Delay:     cfg.BaseDelay,
			Retryable: true,
		}
	case domain.ErrorKindResource:
		return Strategy{
			Kind:      StrategyCleanup,
			Actions:   []Action{ActionCleanupResources, ActionRetry},
			Retryable: true,
		}
	default:
		// validation, permission, unknown
		return Strategy{
			Kind:    StrategyLog,
			Actions: []Action{ActionLog, ActionNotify},
		}
	}
}

// expBackoff calculates delay: base * 2^attempt, capped.
func expBackoff(base, ceiling time.Duration, attempt int) time.Duration {
	delay := float64(base) * math.Pow(2, float64(attempt))
	if delay > float64(ceiling) {
		return ceiling
	}
	return time.Duration(delay)
}

func linearBackoff(base, ceiling time.Duration, attempt int) time.Duration {
	delay := base * time.Duration(attempt+1)
	if delay > ceiling {
		return ceiling
	}
	return delay
}
