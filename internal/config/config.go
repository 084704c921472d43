// Package config loads the handover daemon configuration with the
// precedence ENV > file > defaults.
package config

import (
	"fmt"
	"time"
)

// Defaults applied before file and environment merging.
const (
	DefaultListenAddr      = ":8080"
	DefaultMetricsAddr     = ":9090"
	DefaultTriggerToken    = "SWITCH"
	DefaultTenant          = "default"
	DefaultPollInterval    = 2 * time.Second
	DefaultSearchTimeout   = 60 * time.Second
	DefaultShutdownTimeout = 10 * time.Second
	DefaultReadLimit       = 64 * 1024
	DefaultRateLimitRPM    = 600
)

// AppConfig is the fully-resolved runtime configuration.
type AppConfig struct {
	// Server
	ListenAddr      string
	MetricsAddr     string
	ShutdownTimeout time.Duration

	// Handover behaviour
	TriggerToken  string
	DefaultTenant string
	PollInterval  time.Duration
	SearchTimeout time.Duration

	// Transport
	AllowedOrigins []string
	ReadLimit      int64

	// Rate limiting
	RateLimitEnabled bool
	RateLimitRPM     int

	// Logging
	LogLevel   string
	LogService string
	Version    string
}

// Defaults returns the baseline configuration before file and
// environment merging.
func Defaults() AppConfig {
	return AppConfig{
		ListenAddr:       DefaultListenAddr,
		MetricsAddr:      DefaultMetricsAddr,
		ShutdownTimeout:  DefaultShutdownTimeout,
		TriggerToken:     DefaultTriggerToken,
		DefaultTenant:    DefaultTenant,
		PollInterval:     DefaultPollInterval,
		SearchTimeout:    DefaultSearchTimeout,
		ReadLimit:        DefaultReadLimit,
		RateLimitEnabled: true,
		RateLimitRPM:     DefaultRateLimitRPM,
		LogLevel:         "info",
		LogService:       "handover",
	}
}

// Validate checks the resolved configuration for values that would
// misbehave at runtime.
func (c *AppConfig) Validate() error {
	if c.ListenAddr == "" {
		return fmt.Errorf("listen address must not be empty")
	}
	if c.TriggerToken == "" {
		return fmt.Errorf("trigger token must not be empty")
	}
	if c.DefaultTenant == "" {
		return fmt.Errorf("default tenant must not be empty")
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive, got %s", c.PollInterval)
	}
	if c.SearchTimeout <= 0 {
		return fmt.Errorf("search timeout must be positive, got %s", c.SearchTimeout)
	}
	if c.SearchTimeout < c.PollInterval {
		return fmt.Errorf("search timeout %s is shorter than poll interval %s", c.SearchTimeout, c.PollInterval)
	}
	if c.ReadLimit <= 0 {
		return fmt.Errorf("read limit must be positive, got %d", c.ReadLimit)
	}
	if c.RateLimitEnabled && c.RateLimitRPM <= 0 {
		return fmt.Errorf("rate limit is enabled but requests per minute is %d", c.RateLimitRPM)
	}
	return nil
}
