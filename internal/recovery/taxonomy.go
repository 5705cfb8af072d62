package recovery

import "github.com/vietddude/keeper/internal/core/domain"

// Profile fixes how one error kind is treated. Profiles are static
// configuration, not runtime state.
type Profile struct {
	Severity    domain.ErrorSeverity
	Recoverable bool
	Retryable   bool
}

// Taxonomy maps every error kind to its profile.
type Taxonomy map[domain.ErrorKind]Profile

// DefaultTaxonomy returns the stock profile table. Callers may pass a
// modified copy to NewHandler; the handler never mutates it.
func DefaultTaxonomy() Taxonomy {
	return Taxonomy{
		domain.ErrorKindConnection:     {Severity: domain.SeverityHigh, Recoverable: true, Retryable: true},
		domain.ErrorKindAuthentication: {Severity: domain.SeverityHigh, Recoverable: true, Retryable: false},
		domain.ErrorKindRateLimit:      {Severity: domain.SeverityMedium, Recoverable: true, Retryable: true},
		domain.ErrorKindValidation:     {Severity: domain.SeverityLow, Recoverable: false, Retryable: false},
		domain.ErrorKindNetwork:        {Severity: domain.SeverityMedium, Recoverable: true, Retryable: true},
		domain.ErrorKindTimeout:        {Severity: domain.SeverityMedium, Recoverable: true, Retryable: true},
		domain.ErrorKindPermission:     {Severity: domain.SeverityHigh, Recoverable: false, Retryable: false},
		domain.ErrorKindResource:       {Severity: domain.SeverityMedium, Recoverable: true, Retryable: true},
		domain.ErrorKindUnknown:        {Severity: domain.SeverityHigh, Recoverable: false, Retryable: false},
	}
}

// profileFor falls back to the unknown profile for kinds missing from
// a caller-supplied table.
func (t Taxonomy) profileFor(kind domain.ErrorKind) Profile {
	if p, ok := t[kind]; ok {
		return p
	}
	return Profile{Severity: domain.SeverityHigh, Recoverable: false, Retryable: false}
}
