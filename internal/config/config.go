package config

import (
	"fmt"
	"time"
)

// Config represents the main Lakon configuration
type Config struct {
	// Rules
	Rules RulesConfig `json:"rules" mapstructure:"rules"`

	// Optimizer
	Optimizer OptimizerConfig `json:"optimizer" mapstructure:"optimizer"`

	// Memory
	Memory MemoryConfig `json:"memory" mapstructure:"memory"`

	// Templates
	Templates TemplatesConfig `json:"templates" mapstructure:"templates"`

	// Gateway
	Gateway GatewayConfig `json:"gateway" mapstructure:"gateway"`

	// Metrics
	Metrics MetricsConfig `json:"metrics" mapstructure:"metrics"`

	// Logging
	Logging LoggingConfig `json:"logging" mapstructure:"logging"`

	// Data directory
	DataDir string `json:"data_dir" mapstructure:"data_dir"`
}

// RulesConfig holds the validation policy.
type RulesConfig struct {
	ForbiddenKeywords []string `json:"forbidden_keywords" mapstructure:"forbidden_keywords"`
	BlockedPatterns   []string `json:"blocked_patterns" mapstructure:"blocked_patterns"`
	AllowedTypes      []string `json:"allowed_types" mapstructure:"allowed_types"`
}

// OptimizerConfig holds the periodic optimizer schedule.
type OptimizerConfig struct {
	Enabled    bool          `json:"enabled" mapstructure:"enabled"`
	Interval   time.Duration `json:"interval" mapstructure:"interval"`
	CronExpr   string        `json:"cron_expr" mapstructure:"cron_expr"`
	MaxPlanAge time.Duration `json:"max_plan_age" mapstructure:"max_plan_age"`
	// Tick is how often the control loop checks whether a pass is due.
	Tick time.Duration `json:"tick" mapstructure:"tick"`
}

// MemoryConfig holds the episodic store location.
type MemoryConfig struct {
	Enabled bool   `json:"enabled" mapstructure:"enabled"`
	Path    string `json:"path" mapstructure:"path"`
}

// TemplatesConfig holds the strategy template directory.
type TemplatesConfig struct {
	Dir   string `json:"dir" mapstructure:"dir"`
	Watch bool   `json:"watch" mapstructure:"watch"`
}

// GatewayConfig holds the websocket event stream settings.
type GatewayConfig struct {
	Enabled bool   `json:"enabled" mapstructure:"enabled"`
	Addr    string `json:"addr" mapstructure:"addr"`
}

// MetricsConfig holds the Prometheus endpoint settings.
type MetricsConfig struct {
	Enabled bool   `json:"enabled" mapstructure:"enabled"`
	Addr    string `json:"addr" mapstructure:"addr"`
}

// LoggingConfig holds logger settings.
type LoggingConfig struct {
	Level     string `json:"level" mapstructure:"level"`
	File      string `json:"file" mapstructure:"file"`
	Console   bool   `json:"console" mapstructure:"console"`
	Pretty    bool   `json:"pretty" mapstructure:"pretty"`
	Redaction bool   `json:"redaction" mapstructure:"redaction"`
}

// DefaultConfig returns a config with sane defaults.
func DefaultConfig() *Config {
	return &Config{
		Optimizer: OptimizerConfig{
			Enabled:    true,
			Interval:   5 * time.Minute,
			MaxPlanAge: time.Hour,
			Tick:       30 * time.Second,
		},
		Memory: MemoryConfig{
			Enabled: true,
		},
		Gateway: GatewayConfig{
			Addr: "127.0.0.1:7600",
		},
		Metrics: MetricsConfig{
			Addr: "127.0.0.1:7601",
		},
		Logging: LoggingConfig{
			Level:     "info",
			Console:   true,
			Pretty:    true,
			Redaction: true,
		},
	}
}

// Validate checks the configuration for inconsistencies.
func (c *Config) Validate() error {
	if c.Optimizer.Tick <= 0 {
		return fmt.Errorf("optimizer tick must be positive")
	}
	if c.Optimizer.CronExpr == "" && c.Optimizer.Interval <= 0 {
		return fmt.Errorf("optimizer requires an interval or a cron expression")
	}
	if c.Gateway.Enabled && c.Gateway.Addr == "" {
		return fmt.Errorf("gateway enabled without an address")
	}
	if c.Metrics.Enabled && c.Metrics.Addr == "" {
		return fmt.Errorf("metrics enabled without an address")
	}
	switch c.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log level: %s", c.Logging.Level)
	}
	return nil
}
