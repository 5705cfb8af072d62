package config

import (
	"time"

	"github.com/vietddude/keeper/internal/conn"
	"github.com/vietddude/keeper/internal/health"
	"github.com/vietddude/keeper/internal/infra/gateway"
	"github.com/vietddude/keeper/internal/infra/session"
	"github.com/vietddude/keeper/internal/infra/storage/postgres"
	"github.com/vietddude/keeper/internal/ratelimit"
	"github.com/vietddude/keeper/internal/recovery"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server     ServerConfig     `yaml:"server"`
	Logging    LoggingConfig    `yaml:"logging"`
	Gateway    gateway.Config   `yaml:"gateway"`
	Connection ConnectionConfig `yaml:"connection"`
	RateLimit  ratelimit.Config `yaml:"rate_limit"`
	Recovery   recovery.Config  `yaml:"recovery"`
	Health     HealthConfig     `yaml:"health"`
	Redis      session.Config   `yaml:"redis"`
	Database   postgres.Config  `yaml:"database"`
	Retention  time.Duration    `yaml:"retention_period"` // 0 = keep archive forever
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// ConnectionConfig holds connection manager settings. EnableFallback
// is a pointer so that an absent key means enabled.
type ConnectionConfig struct {
	Strategy         string        `yaml:"strategy"` // strategy name or "auto"
	MaxRetryAttempts int           `yaml:"max_retry_attempts"`
	RetryDelay       time.Duration `yaml:"retry_delay"`
	EnableFallback   *bool         `yaml:"enable_fallback"`
}

// Manager converts the section into the connection manager's config.
func (c ConnectionConfig) Manager() conn.Config {
	out := conn.DefaultConfig()
	if c.MaxRetryAttempts > 0 {
		out.MaxRetryAttempts = c.MaxRetryAttempts
	}
	if c.RetryDelay > 0 {
		out.RetryDelay = c.RetryDelay
	}
	if c.EnableFallback != nil {
		out.EnableFallback = *c.EnableFallback
	}
	return out
}

// HealthConfig holds health monitor settings. Checks override the
// built-in defaults per check name.
type HealthConfig struct {
	Thresholds  health.Thresholds             `yaml:"thresholds"`
	Checks      map[string]health.CheckConfig `yaml:"checks"`
	GRPCTarget  string                        `yaml:"grpc_target"`
	GRPCService string                        `yaml:"grpc_service"`
}
