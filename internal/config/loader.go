package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Loader handles configuration loading with precedence.
type Loader struct {
	configPath string
	version    string
}

// NewLoader creates a new configuration loader. configPath may be empty,
// in which case only defaults and environment variables apply.
func NewLoader(configPath, version string) *Loader {
	return &Loader{configPath: configPath, version: version}
}

// fileConfig mirrors AppConfig for YAML decoding. Pointer fields
// distinguish "absent" from zero values when merging.
type fileConfig struct {
	Listen          *string        `yaml:"listen"`
	MetricsListen   *string        `yaml:"metrics_listen"`
	ShutdownTimeout *time.Duration `yaml:"shutdown_timeout"`
	TriggerToken    *string        `yaml:"trigger_token"`
	DefaultTenant   *string        `yaml:"default_tenant"`
	PollInterval    *time.Duration `yaml:"poll_interval"`
	SearchTimeout   *time.Duration `yaml:"search_timeout"`
	AllowedOrigins  []string       `yaml:"allowed_origins"`
	ReadLimit       *int64         `yaml:"read_limit"`
	RateLimit       *bool          `yaml:"rate_limit"`
	RateLimitRPM    *int           `yaml:"rate_limit_rpm"`
	LogLevel        *string        `yaml:"log_level"`
	LogService      *string        `yaml:"log_service"`
}

// Load resolves the configuration: defaults first, then the YAML file if
// one was given, then environment variables, then validation.
func (l *Loader) Load() (AppConfig, error) {
	cfg := Defaults()
	cfg.Version = l.version

	if l.configPath != "" {
		if err := l.mergeFile(&cfg); err != nil {
			return cfg, fmt.Errorf("load config file: %w", err)
		}
	}

	l.mergeEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

func (l *Loader) mergeFile(cfg *AppConfig) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		return err
	}
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parse %s: %w", l.configPath, err)
	}

	if fc.Listen != nil {
		cfg.ListenAddr = *fc.Listen
	}
	if fc.MetricsListen != nil {
		cfg.MetricsAddr = *fc.MetricsListen
	}
	if fc.ShutdownTimeout != nil {
		cfg.ShutdownTimeout = *fc.ShutdownTimeout
	}
	if fc.TriggerToken != nil {
		cfg.TriggerToken = *fc.TriggerToken
	}
	if fc.DefaultTenant != nil {
		cfg.DefaultTenant = *fc.DefaultTenant
	}
	if fc.PollInterval != nil {
		cfg.PollInterval = *fc.PollInterval
	}
	if fc.SearchTimeout != nil {
		cfg.SearchTimeout = *fc.SearchTimeout
	}
	if fc.AllowedOrigins != nil {
		cfg.AllowedOrigins = fc.AllowedOrigins
	}
	if fc.ReadLimit != nil {
		cfg.ReadLimit = *fc.ReadLimit
	}
	if fc.RateLimit != nil {
		cfg.RateLimitEnabled = *fc.RateLimit
	}
	if fc.RateLimitRPM != nil {
		cfg.RateLimitRPM = *fc.RateLimitRPM
	}
	if fc.LogLevel != nil {
		cfg.LogLevel = *fc.LogLevel
	}
	if fc.LogService != nil {
		cfg.LogService = *fc.LogService
	}
	return nil
}

func (l *Loader) mergeEnv(cfg *AppConfig) {
	cfg.ListenAddr = ParseString("HANDOVER_LISTEN", cfg.ListenAddr)
	cfg.MetricsAddr = ParseString("HANDOVER_METRICS_LISTEN", cfg.MetricsAddr)
	cfg.ShutdownTimeout = ParseDuration("HANDOVER_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	cfg.TriggerToken = ParseString("HANDOVER_TRIGGER_TOKEN", cfg.TriggerToken)
	cfg.DefaultTenant = ParseString("HANDOVER_DEFAULT_TENANT", cfg.DefaultTenant)
	cfg.PollInterval = ParseDuration("HANDOVER_POLL_INTERVAL", cfg.PollInterval)
	cfg.SearchTimeout = ParseDuration("HANDOVER_SEARCH_TIMEOUT", cfg.SearchTimeout)
	if origins := ParseString("HANDOVER_ALLOWED_ORIGINS", ""); origins != "" {
		cfg.AllowedOrigins = SplitCSV(origins)
	}
	cfg.ReadLimit = int64(ParseInt("HANDOVER_READ_LIMIT", int(cfg.ReadLimit)))
	cfg.RateLimitEnabled = ParseBool("HANDOVER_RATE_LIMIT", cfg.RateLimitEnabled)
	cfg.RateLimitRPM = ParseInt("HANDOVER_RATE_LIMIT_RPM", cfg.RateLimitRPM)
	cfg.LogLevel = ParseString("HANDOVER_LOG_LEVEL", cfg.LogLevel)
	cfg.LogService = ParseString("HANDOVER_LOG_SERVICE", cfg.LogService)
}
