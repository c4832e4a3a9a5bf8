// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Backend driver names accepted in database.primaries and database.backup.
const (
	DriverMemory   = "memory"
	DriverLocal    = "local"
	DriverPostgres = "postgres"
	DriverGCS      = "gcs"
	DriverBadger   = "badger"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Publish   PublishConfig   `mapstructure:"publish"`
	Browser   BrowserConfig   `mapstructure:"browser"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Notify    NotifyConfig    `mapstructure:"notify"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// SchedulerConfig governs the periodic duties.
type SchedulerConfig struct {
	ScanIntervalSec       int  `mapstructure:"scan_interval_seconds"`
	InitialDelaySec       int  `mapstructure:"initial_delay_seconds"`
	LoginCheckIntervalSec int  `mapstructure:"login_check_interval_seconds"`
	StartPaused           bool `mapstructure:"start_paused"`
}

// PublishConfig bounds each publish attempt.
type PublishConfig struct {
	TimeoutSec int `mapstructure:"timeout_seconds"`
}

// BrowserConfig drives the headless publish workflow. Selectors are CSS
// selectors evaluated against the platform's pages.
type BrowserConfig struct {
	Enabled          bool   `mapstructure:"enabled"`
	Headless         bool   `mapstructure:"headless"`
	UserDataDir      string `mapstructure:"user_data_dir"`
	UserAgent        string `mapstructure:"user_agent"`
	StepTimeoutSec   int    `mapstructure:"step_timeout_seconds"`
	SessionURL       string `mapstructure:"session_url"`
	LoginURL         string `mapstructure:"login_url"`
	DraftsURL        string `mapstructure:"drafts_url"`
	Username         string `mapstructure:"username"`
	Password         string `mapstructure:"password"`
	LoggedInSelector string `mapstructure:"logged_in_selector"`
	UsernameSelector string `mapstructure:"username_selector"`
	PasswordSelector string `mapstructure:"password_selector"`
	SubmitSelector   string `mapstructure:"submit_selector"`
	DraftSelector    string `mapstructure:"draft_selector"`
	PublishSelector  string `mapstructure:"publish_selector"`
	PublishedBadge   string `mapstructure:"published_selector"`
}

// BackendConfig describes one document backend.
type BackendConfig struct {
	Name            string        `mapstructure:"name"`
	Driver          string        `mapstructure:"driver"`
	DSN             string        `mapstructure:"dsn"`
	Table           string        `mapstructure:"table"`
	DocumentID      string        `mapstructure:"document_id"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	Bucket          string        `mapstructure:"bucket"`
	Object          string        `mapstructure:"object"`
	CredentialsFile string        `mapstructure:"credentials_file"`
	Path            string        `mapstructure:"path"`
}

// DatabaseConfig lists the primaries (in failover order) and the optional backup.
type DatabaseConfig struct {
	Primaries  []BackendConfig `mapstructure:"primaries"`
	Backup     *BackendConfig  `mapstructure:"backup"`
	BackupCron string          `mapstructure:"backup_cron"`
}

// NotifyConfig selects notification sinks.
type NotifyConfig struct {
	BufferSize     int     `mapstructure:"buffer_size"`
	MaxBatchWaitMs int     `mapstructure:"max_batch_wait_ms"`
	SinkTimeoutMs  int     `mapstructure:"sink_timeout_ms"`
	LogEnabled     bool    `mapstructure:"log_enabled"`
	WebhookURL     string  `mapstructure:"webhook_url"`
	WebhookRPS     float64 `mapstructure:"webhook_rps"`
	PubSubProject  string  `mapstructure:"pubsub_project_id"`
	PubSubTopic    string  `mapstructure:"pubsub_topic"`
}

// TelemetryConfig configures tracing export.
type TelemetryConfig struct {
	ServiceName  string `mapstructure:"service_name"`
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`
	Insecure     bool   `mapstructure:"insecure"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("PUBLISHER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.applyBackendDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("logging.development", true)
	v.SetDefault("scheduler.scan_interval_seconds", 60)
	v.SetDefault("scheduler.initial_delay_seconds", 10)
	v.SetDefault("scheduler.login_check_interval_seconds", 900)
	v.SetDefault("scheduler.start_paused", false)
	v.SetDefault("publish.timeout_seconds", 90)
	v.SetDefault("browser.enabled", false)
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.step_timeout_seconds", 30)
	v.SetDefault("database.primaries", []map[string]any{{"name": "primary-0", "driver": DriverMemory}})
	v.SetDefault("database.backup_cron", "0 3 * * *")
	v.SetDefault("notify.buffer_size", 256)
	v.SetDefault("notify.max_batch_wait_ms", 250)
	v.SetDefault("notify.sink_timeout_ms", 10000)
	v.SetDefault("notify.log_enabled", true)
	v.SetDefault("notify.webhook_rps", 1.0)
	v.SetDefault("telemetry.service_name", "scheduled-publisher")
}

func (c *Config) applyBackendDefaults() {
	for i := range c.Database.Primaries {
		if c.Database.Primaries[i].Name == "" {
			c.Database.Primaries[i].Name = fmt.Sprintf("primary-%d", i)
		}
	}
	if c.Database.Backup != nil && c.Database.Backup.Name == "" {
		c.Database.Backup.Name = "backup"
	}
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	if c.Scheduler.ScanIntervalSec <= 0 {
		return fmt.Errorf("scheduler.scan_interval_seconds must be > 0")
	}
	if c.Scheduler.InitialDelaySec < 0 {
		return fmt.Errorf("scheduler.initial_delay_seconds must be >= 0")
	}
	if c.Publish.TimeoutSec <= 0 {
		return fmt.Errorf("publish.timeout_seconds must be > 0")
	}
	if c.Browser.Enabled && (c.Browser.SessionURL == "" || c.Browser.DraftsURL == "") {
		return fmt.Errorf("browser.session_url and browser.drafts_url must be set when the browser is enabled")
	}
	if len(c.Database.Primaries) == 0 {
		return fmt.Errorf("database.primaries must list at least one backend")
	}
	for i, b := range c.Database.Primaries {
		if err := b.Validate(); err != nil {
			return fmt.Errorf("database.primaries[%d]: %w", i, err)
		}
	}
	if c.Database.Backup != nil {
		if err := c.Database.Backup.Validate(); err != nil {
			return fmt.Errorf("database.backup: %w", err)
		}
	}
	return nil
}

// Validate checks the driver-specific required fields.
func (b BackendConfig) Validate() error {
	switch b.Driver {
	case DriverMemory:
	case DriverLocal, DriverBadger:
		if b.Path == "" {
			return fmt.Errorf("path is required for driver %q", b.Driver)
		}
	case DriverPostgres:
		if b.DSN == "" {
			return fmt.Errorf("dsn is required for driver %q", b.Driver)
		}
	case DriverGCS:
		if b.Bucket == "" {
			return fmt.Errorf("bucket is required for driver %q", b.Driver)
		}
	default:
		return fmt.Errorf("unknown driver %q", b.Driver)
	}
	return nil
}

// ScanInterval returns the scan cycle period.
func (c Config) ScanInterval() time.Duration {
	return time.Duration(c.Scheduler.ScanIntervalSec) * time.Second
}

// InitialDelay returns the delay before the first scan cycle.
func (c Config) InitialDelay() time.Duration {
	return time.Duration(c.Scheduler.InitialDelaySec) * time.Second
}

// LoginCheckInterval returns the login health check period; zero disables it.
func (c Config) LoginCheckInterval() time.Duration {
	return time.Duration(c.Scheduler.LoginCheckIntervalSec) * time.Second
}

// PublishTimeout converts publish.timeout_seconds into a duration.
func (c Config) PublishTimeout() time.Duration {
	return time.Duration(c.Publish.TimeoutSec) * time.Second
}
