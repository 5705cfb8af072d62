// Package ratelimit enforces per-operation request budgets.
//
// Admission is decided by two algorithms over the same key: a lazily
// refilled token bucket (burst bound) and a sliding window of request
// timestamps (sustained-rate bound). A request is admitted only when
// both have capacity.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

type entry struct {
	tokens     int
	lastRefill time.Time
	stamps     []time.Time
	lastSeen   time.Time
}

// Limiter tracks per-key budgets. Keys combine an operation name with
// a caller-chosen identifier, so limits apply per conversation, per
// endpoint, or per whatever the caller scopes them to.
type Limiter struct {
	cfg Config

	mu   sync.Mutex
	keys map[string]*entry

	done     chan struct{}
	stopOnce sync.Once
}

// New creates a limiter and starts its idle-key sweeper.
func New(cfg Config) *Limiter {
	if len(cfg.Rules) == 0 {
		cfg.Rules = DefaultConfig().Rules
	}
	if cfg.IdleAfter <= 0 {
		cfg.IdleAfter = 5 * time.Minute
	}
	if cfg.SweepEvery <= 0 {
		cfg.SweepEvery = time.Minute
	}

	l := &Limiter{
		cfg:  cfg,
		keys: make(map[string]*entry),
		done: make(chan struct{}),
	}

	if !cfg.Disabled {
		go l.sweep()
	}
	return l
}

// Check reports what Allow would decide without consuming budget.
// It refreshes the key's idle clock but never debits tokens, so
// consecutive calls return the same decision.
func (l *Limiter) Check(operation, identifier string) Decision {
	rule := l.ruleFor(operation)
	if l.cfg.Disabled {
		return Decision{
			Allowed:   true,
			Remaining: rule.Requests,
			ResetAt:   time.Now(),
			Limit:     rule.Requests,
			Window:    rule.Window,
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	e := l.entryFor(operation, identifier, rule, now)
	l.advance(e, rule, now)
	e.lastSeen = now
	return l.evaluate(e, rule, now)
}

// Allow atomically checks and consumes one unit of budget. The error
// is non-nil only in strict mode, and is always a *LimitError.
func (l *Limiter) Allow(operation, identifier string) (bool, error) {
	allowed, decision := l.admit(operation, identifier)
	if allowed {
		return true, nil
	}
	if l.cfg.StrictMode {
		return false, &LimitError{
			Operation:  operation,
			Identifier: identifier,
			RetryAfter: time.Until(decision.ResetAt),
		}
	}
	return false, nil
}

// Wait blocks until budget is available, the context is done, or
// maxWait elapses. It sleeps until the limiter's own reset estimate
// rather than polling on a fixed interval.
func (l *Limiter) Wait(ctx context.Context, operation, identifier string, maxWait time.Duration) error {
	deadline := time.Now().Add(maxWait)
	for {
		allowed, decision := l.admit(operation, identifier)
		if allowed {
			return nil
		}

		now := time.Now()
		if !now.Before(deadline) {
			return &LimitError{
				Operation:  operation,
				Identifier: identifier,
				RetryAfter: time.Until(decision.ResetAt),
			}
		}

		sleep := decision.ResetAt.Sub(now)
		if sleep < time.Millisecond {
			sleep = time.Millisecond
		}
		if remaining := deadline.Sub(now); sleep > remaining {
			sleep = remaining
		}

		timer := time.NewTimer(sleep)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// Reset restores the full budget for one key.
func (l *Limiter) Reset(operation, identifier string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.keys, key(operation, identifier))
}

// Close stops the sweeper and drops all tracked keys.
func (l *Limiter) Close() {
	l.stopOnce.Do(func() { close(l.done) })
	l.mu.Lock()
	l.keys = make(map[string]*entry)
	l.mu.Unlock()
}

func (l *Limiter) admit(operation, identifier string) (bool, Decision) {
	rule := l.ruleFor(operation)
	if l.cfg.Disabled {
		return true, Decision{
			Allowed:   true,
			Remaining: rule.Requests,
			ResetAt:   time.Now(),
			Limit:     rule.Requests,
			Window:    rule.Window,
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	e := l.entryFor(operation, identifier, rule, now)
	l.advance(e, rule, now)
	e.lastSeen = now

	decision := l.evaluate(e, rule, now)
	if !decision.Allowed {
		return false, decision
	}

	e.tokens--
	e.stamps = append(e.stamps, now)
	decision.Remaining = min(e.tokens, rule.Requests-len(e.stamps))
	return true, decision
}

func (l *Limiter) ruleFor(operation string) Rule {
	if r, ok := l.cfg.Rules[operation]; ok && r.Requests > 0 && r.Window > 0 {
		return r
	}
	if r, ok := l.cfg.Rules[GlobalRule]; ok && r.Requests > 0 && r.Window > 0 {
		return r
	}
	return Rule{Requests: 100, Window: time.Minute}
}

// entryFor returns the tracked state for a key, creating it with a
// full bucket on first sight. Caller holds the lock.
func (l *Limiter) entryFor(operation, identifier string, rule Rule, now time.Time) *entry {
	k := key(operation, identifier)
	e, ok := l.keys[k]
	if !ok {
		e = &entry{
			tokens:     rule.Requests,
			lastRefill: now,
			lastSeen:   now,
		}
		l.keys[k] = e
	}
	return e
}

// advance applies the lazy token refill and prunes expired window
// stamps. Caller holds the lock.
func (l *Limiter) advance(e *entry, rule Rule, now time.Time) {
	if e.tokens < rule.Requests {
		elapsed := now.Sub(e.lastRefill)
		added := int(int64(elapsed) * int64(rule.Requests) / int64(rule.Window))
		if added > 0 {
			e.tokens += added
			if e.tokens >= rule.Requests {
				e.tokens = rule.Requests
				e.lastRefill = now
			} else {
				// Advance only by the time the granted tokens represent
				// so the fractional remainder keeps accruing.
				e.lastRefill = e.lastRefill.Add(
					time.Duration(int64(added) * int64(rule.Window) / int64(rule.Requests)),
				)
			}
		}
	} else {
		e.lastRefill = now
	}

	cutoff := now.Add(-rule.Window)
	keep := 0
	for keep < len(e.stamps) && !e.stamps[keep].After(cutoff) {
		keep++
	}
	if keep > 0 {
		e.stamps = append(e.stamps[:0], e.stamps[keep:]...)
	}
}

// evaluate builds a decision from current state. Caller holds the lock.
func (l *Limiter) evaluate(e *entry, rule Rule, now time.Time) Decision {
	windowRemaining := rule.Requests - len(e.stamps)
	remaining := min(e.tokens, windowRemaining)
	if remaining < 0 {
		remaining = 0
	}

	bucketReset := now
	if e.tokens < rule.Requests {
		missing := rule.Requests - e.tokens
		bucketReset = e.lastRefill.Add(
			time.Duration(int64(missing) * int64(rule.Window) / int64(rule.Requests)),
		)
	}
	windowReset := now
	if len(e.stamps) > 0 {
		windowReset = e.stamps[0].Add(rule.Window)
	}
	resetAt := bucketReset
	if windowReset.After(resetAt) {
		resetAt = windowReset
	}

	return Decision{
		Allowed:   e.tokens > 0 && windowRemaining > 0,
		Remaining: remaining,
		ResetAt:   resetAt,
		Limit:     rule.Requests,
		Window:    rule.Window,
	}
}

func (l *Limiter) sweep() {
	ticker := time.NewTicker(l.cfg.SweepEvery)
	defer ticker.Stop()

	for {
		select {
		case <-l.done:
			return
		case <-ticker.C:
			now := time.Now()
			l.mu.Lock()
			for k, e := range l.keys {
				if now.Sub(e.lastSeen) >= l.cfg.IdleAfter {
					delete(l.keys, k)
				}
			}
			l.mu.Unlock()
		}
	}
}

func key(operation, identifier string) string {
	return operation + ":" + identifier
}
