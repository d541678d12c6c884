// The application's root configuration for the script-wf login automation.
package config

import (
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/spf13/viper"

	"github.com/guhesse/script-wf-sub000/internal/humanoid"
)

var (
	instance *Config
	once     sync.Once
)

// Config is the root configuration structure for the entire application.
type Config struct {
	Logger  LoggerConfig  `mapstructure:"logger"`
	Browser BrowserConfig `mapstructure:"browser"`
	Login   LoginConfig   `mapstructure:"login"`
	Session SessionConfig `mapstructure:"session"`
	Audit   AuditConfig   `mapstructure:"audit"`
	Probe   ProbeConfig   `mapstructure:"probe"`
}

// ColorConfig defines the color settings for different log levels.
// These are used for console output to make logs more readable.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" json:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" json:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" json:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" json:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" json:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" json:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" json:"fatal" yaml:"fatal"`
}

// LoggerConfig holds all the configuration for the logger.
// This is the single source of truth for this struct.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" json:"level" yaml:"level"`
	Format      string      `mapstructure:"format" json:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" json:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" json:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" json:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" json:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" json:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" json:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" json:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" json:"colors" yaml:"colors"`
}

// BrowserConfig holds settings for the automated browser.
type BrowserConfig struct {
	// Headless is the environment default for new browser launches.
	Headless bool `mapstructure:"headless"`
	// ForceVisible wins over every other headless signal when set.
	ForceVisible bool `mapstructure:"force_visible"`
	// AllowOverride controls whether per-call headless overrides are honored.
	AllowOverride bool `mapstructure:"allow_override"`
	// DebugHeadless emits a one-time diagnostic of the resolution inputs.
	DebugHeadless   bool            `mapstructure:"debug_headless"`
	IgnoreTLSErrors bool            `mapstructure:"ignore_tls_errors"`
	ExecPath        string          `mapstructure:"exec_path"`
	DebugDir        string          `mapstructure:"debug_dir"`
	Args            []string        `mapstructure:"args"`
	Viewport        map[string]int  `mapstructure:"viewport"`
	Humanoid        humanoid.Config `mapstructure:"humanoid"`
}

// LoginConfig holds timings, selectors and credentials for the login flow.
type LoginConfig struct {
	EntryURL             string `mapstructure:"entry_url"`
	TargetButtonSelector string `mapstructure:"target_button_selector"`

	GracePeriodMs      int  `mapstructure:"grace_period_ms"`
	PollIntervalMs     int  `mapstructure:"poll_interval_ms"`
	MaxPollDurationMs  int  `mapstructure:"max_poll_duration_ms"`
	MaxPersistAttempts int  `mapstructure:"max_persist_attempts"`
	MultiPersist       bool `mapstructure:"multi_persist"`

	PushWaitPolls      int `mapstructure:"push_wait_polls"`
	PushPollIntervalMs int `mapstructure:"push_poll_interval_ms"`

	SettleMaxTicks   int `mapstructure:"settle_max_ticks"`
	SettleIntervalMs int `mapstructure:"settle_interval_ms"`
	URLStableTicks   int `mapstructure:"url_stable_ticks"`

	NavigationTimeout time.Duration `mapstructure:"navigation_timeout"`

	// Fallback credentials when the caller passes none. Normally injected
	// through SCRIPTWF_LOGIN_* environment variables, never a config file.
	Email           string `mapstructure:"email"`
	PrimaryPassword string `mapstructure:"primary_password"`
	BrokerPassword  string `mapstructure:"broker_password"`
}

// GracePeriod returns the initial quiet window before detection polling.
func (l LoginConfig) GracePeriod() time.Duration {
	return time.Duration(l.GracePeriodMs) * time.Millisecond
}

// PollInterval returns the cadence of the detection poll.
func (l LoginConfig) PollInterval() time.Duration {
	return time.Duration(l.PollIntervalMs) * time.Millisecond
}

// MaxPollDuration returns the total budget of the detection poll.
func (l LoginConfig) MaxPollDuration() time.Duration {
	return time.Duration(l.MaxPollDurationMs) * time.Millisecond
}

// PushPollInterval returns the cadence of the device-confirmation wait.
func (l LoginConfig) PushPollInterval() time.Duration {
	return time.Duration(l.PushPollIntervalMs) * time.Millisecond
}

// SettleInterval returns the cadence of the post-confirmation settle loop.
func (l LoginConfig) SettleInterval() time.Duration {
	return time.Duration(l.SettleIntervalMs) * time.Millisecond
}

// SessionConfig holds settings for the on-disk session store.
type SessionConfig struct {
	Dir    string        `mapstructure:"dir"`
	MaxAge time.Duration `mapstructure:"max_age"`
}

// AuditConfig holds settings for the optional login-attempt audit trail.
// An empty DatabaseURL disables auditing entirely.
type AuditConfig struct {
	DatabaseURL string `mapstructure:"database_url"`
}

// ProbeConfig holds settings for the portal preflight reachability check.
type ProbeConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// SetDefaults registers the default values so the app can run with a
// minimal config file or none at all.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.service_name", "script-wf")
	v.SetDefault("logger.max_size", 10)
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age", 7)
	v.SetDefault("logger.compress", true)

	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.force_visible", false)
	v.SetDefault("browser.allow_override", true)
	v.SetDefault("browser.debug_headless", false)
	v.SetDefault("browser.ignore_tls_errors", false)
	v.SetDefault("browser.humanoid.enabled", true)
	v.SetDefault("browser.humanoid.key_delay_mean_ms", 70)
	v.SetDefault("browser.humanoid.key_delay_jitter_ms", 40)

	v.SetDefault("login.entry_url", "https://experience.adobe.com/")
	v.SetDefault("login.target_button_selector", `[data-testid="main-menu-toggle"]`)
	v.SetDefault("login.grace_period_ms", 40000)
	v.SetDefault("login.poll_interval_ms", 3000)
	v.SetDefault("login.max_poll_duration_ms", 90000)
	v.SetDefault("login.max_persist_attempts", 5)
	v.SetDefault("login.multi_persist", false)
	v.SetDefault("login.push_wait_polls", 20)
	v.SetDefault("login.push_poll_interval_ms", 3000)
	v.SetDefault("login.settle_max_ticks", 15)
	v.SetDefault("login.settle_interval_ms", 3000)
	v.SetDefault("login.url_stable_ticks", 3)
	v.SetDefault("login.navigation_timeout", time.Minute)

	v.SetDefault("session.dir", ".")
	v.SetDefault("session.max_age", 8*time.Hour)

	v.SetDefault("probe.enabled", true)
	v.SetDefault("probe.timeout", 10*time.Second)
}

// Validate checks the configuration for values the application cannot
// recover from at runtime.
func (c *Config) Validate() error {
	if c.Login.EntryURL == "" {
		return fmt.Errorf("login.entry_url is a required configuration field")
	}
	if u, err := url.Parse(c.Login.EntryURL); err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("login.entry_url must be an absolute URL, got %q", c.Login.EntryURL)
	}
	if c.Login.TargetButtonSelector == "" {
		return fmt.Errorf("login.target_button_selector is a required configuration field")
	}
	if c.Login.PollIntervalMs <= 0 {
		return fmt.Errorf("login.poll_interval_ms must be a positive integer")
	}
	if c.Login.MaxPollDurationMs <= 0 {
		return fmt.Errorf("login.max_poll_duration_ms must be a positive integer")
	}
	if c.Login.GracePeriodMs < 0 {
		return fmt.Errorf("login.grace_period_ms must not be negative")
	}
	if c.Session.Dir == "" {
		return fmt.Errorf("session.dir is a required configuration field")
	}
	if c.Session.MaxAge <= 0 {
		return fmt.Errorf("session.max_age must be a positive duration")
	}
	return nil
}

// Load initializes the configuration singleton from Viper.
func Load(v *viper.Viper) error {
	var loadErr error
	once.Do(func() {
		var cfg Config
		if err := v.Unmarshal(&cfg); err != nil {
			loadErr = fmt.Errorf("error unmarshaling config: %w", err)
			return
		}
		instance = &cfg
	})
	return loadErr
}

// Get returns the loaded configuration instance.
func Get() *Config {
	if instance == nil {
		panic("Configuration not initialized. Call config.Load() in the root command.")
	}
	return instance
}
