package recovery

import (
	"strings"

	"github.com/vietddude/keeper/internal/core/domain"
)

// Classify maps an error to exactly one kind. Rules are checked in
// priority order and the first match wins, so more specific matches
// (connection, authentication) sit above the generic ones.
func Classify(err error) domain.ErrorKind {
	if err == nil {
		return domain.ErrorKindUnknown
	}

	s := strings.ToLower(err.Error())

	switch {
	case strings.Contains(s, "connection") ||
		strings.Contains(s, "disconnect") ||
		strings.Contains(s, "socket") ||
		strings.Contains(s, "econnrefused") ||
		strings.Contains(s, "econnreset"):
		return domain.ErrorKindConnection

	case strings.Contains(s, "auth") ||
		strings.Contains(s, "unauthorized") ||
		strings.Contains(s, "401") ||
		strings.Contains(s, "session expired") ||
		strings.Contains(s, "logged out"):
		return domain.ErrorKindAuthentication

	case strings.Contains(s, "rate limit") ||
		strings.Contains(s, "too many requests") ||
		strings.Contains(s, "429") ||
		strings.Contains(s, "quota"):
		return domain.ErrorKindRateLimit

	case strings.Contains(s, "validation") ||
		strings.Contains(s, "invalid") ||
		strings.Contains(s, "malformed") ||
		strings.Contains(s, "bad request"):
		return domain.ErrorKindValidation

	case strings.Contains(s, "network") ||
		strings.Contains(s, "dns") ||
		strings.Contains(s, "unreachable") ||
		strings.Contains(s, "no route to host"):
		return domain.ErrorKindNetwork

	case strings.Contains(s, "timeout") ||
		strings.Contains(s, "timed out") ||
		strings.Contains(s, "deadline exceeded"):
		return domain.ErrorKindTimeout

	case strings.Contains(s, "permission") ||
		strings.Contains(s, "forbidden") ||
		strings.Contains(s, "403") ||
		strings.Contains(s, "access denied"):
		return domain.ErrorKindPermission

	case strings.Contains(s, "resource") ||
		strings.Contains(s, "out of memory") ||
		strings.Contains(s, "too many open files") ||
		strings.Contains(s, "overloaded"):
		return domain.ErrorKindResource

	default:
		return domain.ErrorKindUnknown
	}
}
