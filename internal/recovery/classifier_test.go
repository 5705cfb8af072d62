package recovery

import (
	"errors"
	"testing"

	"github.com/vietddude/keeper/internal/core/domain"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want domain.ErrorKind
	}{
		{"connection refused", errors.New("dial tcp: ECONNREFUSED"), domain.ErrorKindConnection},
		{"socket closed", errors.New("websocket: connection closed abnormally"), domain.ErrorKindConnection},
		{"disconnect", errors.New("gateway disconnected us"), domain.ErrorKindConnection},
		{"session expired", errors.New("session expired, please re-authenticate"), domain.ErrorKindAuthentication},
		{"unauthorized", errors.New("401 unauthorized"), domain.ErrorKindAuthentication},
		{"logged out", errors.New("device was logged out"), domain.ErrorKindAuthentication},
		{"rate limited", errors.New("rate limit exceeded for message:chat-1"), domain.ErrorKindRateLimit},
		{"too many requests", errors.New("HTTP 429 Too Many Requests"), domain.ErrorKindRateLimit},
		{"quota", errors.New("daily quota reached"), domain.ErrorKindRateLimit},
		{"validation", errors.New("invalid phone number"), domain.ErrorKindValidation},
		{"malformed", errors.New("malformed payload"), domain.ErrorKindValidation},
		{"network", errors.New("network is unreachable"), domain.ErrorKindNetwork},
		{"dns", errors.New("dns lookup failed"), domain.ErrorKindNetwork},
		{"deadline", errors.New("context deadline exceeded"), domain.ErrorKindTimeout},
		{"timed out", errors.New("request timed out"), domain.ErrorKindTimeout},
		{"forbidden", errors.New("403 Forbidden"), domain.ErrorKindPermission},
		{"access denied", errors.New("access denied for group"), domain.ErrorKindPermission},
		{"file handles", errors.New("too many open files"), domain.ErrorKindResource},
		{"oom", errors.New("process out of memory"), domain.ErrorKindResource},
		{"unmatched", errors.New("something odd happened"), domain.ErrorKindUnknown},
		{"nil error", nil, domain.ErrorKindUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.err); got != tt.want {
				t.Errorf("expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestClassifyPriorityOrder(t *testing.T) {
	// A message matching several rules takes the highest-priority one.
	err := errors.New("connection timed out while authenticating")
	if got := Classify(err); got != domain.ErrorKindConnection {
		t.Errorf("expected connection to win the priority order, got %s", got)
	}
}
