package ratelimit

import (
	"fmt"
	"time"
)

// GlobalRule is the fallback rule applied to operations without an
// explicit entry in Config.Rules.
const GlobalRule = "global"

// Rule bounds one operation to Requests admissions per Window.
type Rule struct {
	Requests int           `yaml:"requests"`
	Window   time.Duration `yaml:"window"`
}

// Config holds limiter configuration.
type Config struct {
	Disabled   bool            `yaml:"disabled"`
	StrictMode bool            `yaml:"strict_mode"`
	Rules      map[string]Rule `yaml:"rules"`
	IdleAfter  time.Duration   `yaml:"idle_after"`
	SweepEvery time.Duration   `yaml:"sweep_every"`
}

// DefaultConfig returns the stock limiter rules.
func DefaultConfig() Config {
	return Config{
		Rules: map[string]Rule{
			"message":  {Requests: 20, Window: time.Minute},
			GlobalRule: {Requests: 100, Window: time.Minute},
		},
		IdleAfter:  5 * time.Minute,
		SweepEvery: time.Minute,
	}
}

// Decision is the outcome of consulting the limiter for one key.
type Decision struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
	Limit     int
	Window    time.Duration
}

// LimitError is returned by Allow in strict mode and by Wait when the
// wait budget runs out.
type LimitError struct {
	Operation  string
	Identifier string
	RetryAfter time.Duration
}

func (e *LimitError) Error() string {
	return fmt.Sprintf(
		"rate limit exceeded for %s:%s, retry after %s",
		e.Operation, e.Identifier, e.RetryAfter.Round(time.Millisecond),
	)
}
