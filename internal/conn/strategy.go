package conn

import "context"

// Strategy is one named way of establishing the gateway connection.
type Strategy interface {
	Name() string
	Connect(ctx context.Context) error
}

// Conditional lets a strategy opt out of auto ordering and fallback
// when it is not configured (pairing without a pairing code).
type Conditional interface {
	Configured() bool
}

// SessionChecker reports whether a restorable session exists. Auto
// ordering only attempts session restore when it does.
type SessionChecker interface {
	Exists(ctx context.Context) bool
}

// Strategy names recognized by auto ordering and fallback priority.
const (
	StrategySession     = "session"
	StrategyPairing     = "pairing"
	StrategyQR          = "qr"
	StrategyMultidevice = "multidevice"

	// Auto tries session restore, then pairing, then qr.
	Auto = "auto"
)

// fallbackPriority is the fixed order fallback walks after the primary
// sequence fails.
var fallbackPriority = []string{StrategySession, StrategyPairing, StrategyQR, StrategyMultidevice}

func configured(s Strategy) bool {
	if c, ok := s.(Conditional); ok {
		return c.Configured()
	}
	return true
}
