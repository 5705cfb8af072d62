package domain

import "time"

type ErrorKind string

const (
	ErrorKindConnection     ErrorKind = "connection"
	ErrorKindAuthentication ErrorKind = "authentication"
	ErrorKindRateLimit      ErrorKind = "rate_limit"
	ErrorKindValidation     ErrorKind = "validation"
	ErrorKindNetwork        ErrorKind = "network"
	ErrorKindTimeout        ErrorKind = "timeout"
	ErrorKindPermission     ErrorKind = "permission"
	ErrorKindResource       ErrorKind = "resource"
	ErrorKindUnknown        ErrorKind = "unknown"
)

type ErrorSeverity string

const (
	SeverityLow    ErrorSeverity = "low"
	SeverityMedium ErrorSeverity = "medium"
	SeverityHigh   ErrorSeverity = "high"
)

// Incident represents a single classified failure handled by recovery
type Incident struct {
	ID          string
	Kind        ErrorKind
	Severity    ErrorSeverity
	Recoverable bool
	Retryable   bool
	Message     string
	Context     map[string]any
	RetryCount  int
	Timestamp   time.Time
}
