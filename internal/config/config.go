// Package config loads and validates the agent configuration document.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"
)

const (
	DefaultInterval          = 300
	DefaultTimeout           = 30
	DefaultAlertCooldown     = 3600
	DefaultRetentionSchedule = "0 0 3 * * *"
)

// Config is the agent configuration document.
type Config struct {
	Service       ServiceConfig       `yaml:"service"`
	Notifications NotificationsConfig `yaml:"notifications"`
	Checks        []CheckConfig       `yaml:"checks"`
}

// ServiceConfig holds agent-wide settings.
type ServiceConfig struct {
	MetricsFile string `yaml:"metrics_file"`
	Interval    int    `yaml:"interval"` // default check interval in seconds
	LogLevel    string `yaml:"log_level"`
	LogFile     string `yaml:"log_file"`
	BaseDir     string `yaml:"base_dir"` // resolves relative check scripts
	Hostname    string `yaml:"hostname"`

	HistoryDB         string   `yaml:"history_db"`
	HistoryRetention  string   `yaml:"history_retention"`
	RetentionSchedule string   `yaml:"retention_schedule"`
	ListenAddr        string   `yaml:"listen_addr"`
	CORSOrigins       []string `yaml:"cors_origins"`
}

// NotificationsConfig configures alert delivery.
type NotificationsConfig struct {
	WebhookURL    string `yaml:"webhook_url"`
	AlertCooldown int    `yaml:"alert_cooldown"` // seconds
}

// CheckConfig binds one probe to its schedule and environment.
type CheckConfig struct {
	Name        string            `yaml:"name"`
	Script      string            `yaml:"script"`
	Args        []string          `yaml:"args"`
	Timeout     int               `yaml:"timeout"`  // seconds
	Interval    int               `yaml:"interval"` // seconds
	Environment map[string]string `yaml:"environment"`
}

// TimeoutDuration returns the check timeout.
func (c *CheckConfig) TimeoutDuration() time.Duration {
	if c.Timeout <= 0 {
		return DefaultTimeout * time.Second
	}
	return time.Duration(c.Timeout) * time.Second
}

// IntervalDuration returns the check interval.
func (c *CheckConfig) IntervalDuration() time.Duration {
	if c.Interval <= 0 {
		return DefaultInterval * time.Second
	}
	return time.Duration(c.Interval) * time.Second
}

// Cooldown returns the minimum time between two alerts for the same check.
func (n NotificationsConfig) Cooldown() time.Duration {
	return time.Duration(n.AlertCooldown) * time.Second
}

// Retention returns how long history rows are kept, or zero to keep them
// forever.
func (s ServiceConfig) Retention() time.Duration {
	if s.HistoryRetention == "" {
		return 0
	}
	d, _ := time.ParseDuration(s.HistoryRetention)
	return d
}

// DefaultConfig returns the values applied before the file is decoded.
func DefaultConfig() Config {
	return Config{
		Service: ServiceConfig{
			Interval:          DefaultInterval,
			LogLevel:          "info",
			RetentionSchedule: DefaultRetentionSchedule,
		},
		Notifications: NotificationsConfig{
			AlertCooldown: DefaultAlertCooldown,
		},
	}
}

// Load reads the configuration from a YAML file. A missing or invalid file
// is an error; the agent cannot start without its checks.
func Load(path string) (*Config, error) {
	content, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("config file not found: %s", path)
	}
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(content, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if cfg.Service.BaseDir == "" {
		if abs, err := filepath.Abs(filepath.Dir(path)); err == nil {
			cfg.Service.BaseDir = abs
		}
	}
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Service.Interval <= 0 {
		c.Service.Interval = DefaultInterval
	}
	c.Service.LogLevel = strings.ToLower(c.Service.LogLevel)
	if c.Service.LogLevel == "" {
		c.Service.LogLevel = "info"
	}
	if c.Service.RetentionSchedule == "" {
		c.Service.RetentionSchedule = DefaultRetentionSchedule
	}
	for i := range c.Checks {
		check := &c.Checks[i]
		if check.Timeout == 0 {
			check.Timeout = DefaultTimeout
		}
		if check.Interval == 0 {
			check.Interval = c.Service.Interval
		}
	}
}

// Validate reports every problem in the configuration at once.
func (c *Config) Validate() error {
	var errs error

	if c.Service.MetricsFile == "" {
		errs = multierr.Append(errs, errors.New("service.metrics_file is required"))
	}
	if c.Service.Interval <= 0 {
		errs = multierr.Append(errs, errors.New("service.interval must be positive"))
	}
	switch c.Service.LogLevel {
	case "debug", "info", "warn", "warning", "error":
	default:
		errs = multierr.Append(errs, fmt.Errorf("service.log_level %q is not one of debug, info, warn, error", c.Service.LogLevel))
	}
	if c.Service.HistoryRetention != "" {
		if d, err := time.ParseDuration(c.Service.HistoryRetention); err != nil || d <= 0 {
			errs = multierr.Append(errs, fmt.Errorf("service.history_retention %q is not a positive duration", c.Service.HistoryRetention))
		}
	}
	if c.Service.RetentionSchedule != "" {
		parser := cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
		if _, err := parser.Parse(c.Service.RetentionSchedule); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("service.retention_schedule: %w", err))
		}
	}
	if c.Notifications.AlertCooldown < 0 {
		errs = multierr.Append(errs, errors.New("notifications.alert_cooldown must not be negative"))
	}

	if len(c.Checks) == 0 {
		errs = multierr.Append(errs, errors.New("at least one check must be defined"))
	}
	seen := make(map[string]bool, len(c.Checks))
	for i, check := range c.Checks {
		if check.Name == "" {
			errs = multierr.Append(errs, fmt.Errorf("check %d is missing a name", i))
		} else if seen[check.Name] {
			errs = multierr.Append(errs, fmt.Errorf("check %q is defined more than once", check.Name))
		}
		seen[check.Name] = true

		if check.Script == "" {
			errs = multierr.Append(errs, fmt.Errorf("check %q is missing a script", check.Name))
		}
		if check.Timeout < 0 {
			errs = multierr.Append(errs, fmt.Errorf("check %q timeout must not be negative", check.Name))
		}
		if check.Interval < 0 {
			errs = multierr.Append(errs, fmt.Errorf("check %q interval must not be negative", check.Name))
		}
	}

	return errs
}

// Hostname returns the configured host identifier or the system hostname.
func (c *Config) Hostname() string {
	if c.Service.Hostname != "" {
		return c.Service.Hostname
	}
	hostname, err := os.Hostname()
	if err != nil || hostname == "" {
		return "localhost"
	}
	return hostname
}

// Check returns the check with the given name.
func (c *Config) Check(name string) (*CheckConfig, bool) {
	for i := range c.Checks {
		if c.Checks[i].Name == name {
			return &c.Checks[i], true
		}
	}
	return nil, false
}
