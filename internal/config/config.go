// File: internal/config/config.go
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

// Interface defines the contract for accessing application configuration.
// This allows for dependency injection and mocking in tests.
type Interface interface {
	Logger() LoggerConfig
	Database() DatabaseConfig
	Browser() BrowserConfig
	Platform() PlatformConfig
	Session() SessionConfig
	QR() QRConfig
	Scraper() ScraperConfig
	RateLimit() RateLimitConfig
	Actuator() ActuatorConfig
	Engine() EngineConfig
	Vault() VaultConfig
	Metrics() MetricsConfig

	SetBrowserHeadless(bool)
	SetDatabaseURL(string)
}

// Config holds the entire application configuration.
type Config struct {
	LoggerCfg    LoggerConfig    `mapstructure:"logger" yaml:"logger"`
	DatabaseCfg  DatabaseConfig  `mapstructure:"database" yaml:"database"`
	BrowserCfg   BrowserConfig   `mapstructure:"browser" yaml:"browser"`
	PlatformCfg  PlatformConfig  `mapstructure:"platform" yaml:"platform"`
	SessionCfg   SessionConfig   `mapstructure:"session" yaml:"session"`
	QRCfg        QRConfig        `mapstructure:"qr" yaml:"qr"`
	ScraperCfg   ScraperConfig   `mapstructure:"scraper" yaml:"scraper"`
	RateLimitCfg RateLimitConfig `mapstructure:"ratelimit" yaml:"ratelimit"`
	ActuatorCfg  ActuatorConfig  `mapstructure:"actuator" yaml:"actuator"`
	EngineCfg    EngineConfig    `mapstructure:"engine" yaml:"engine"`
	VaultCfg     VaultConfig     `mapstructure:"vault" yaml:"vault"`
	MetricsCfg   MetricsConfig   `mapstructure:"metrics" yaml:"metrics"`
}

func (c *Config) Logger() LoggerConfig       { return c.LoggerCfg }
func (c *Config) Database() DatabaseConfig   { return c.DatabaseCfg }
func (c *Config) Browser() BrowserConfig     { return c.BrowserCfg }
func (c *Config) Platform() PlatformConfig   { return c.PlatformCfg }
func (c *Config) Session() SessionConfig     { return c.SessionCfg }
func (c *Config) QR() QRConfig               { return c.QRCfg }
func (c *Config) Scraper() ScraperConfig     { return c.ScraperCfg }
func (c *Config) RateLimit() RateLimitConfig { return c.RateLimitCfg }
func (c *Config) Actuator() ActuatorConfig   { return c.ActuatorCfg }
func (c *Config) Engine() EngineConfig       { return c.EngineCfg }
func (c *Config) Vault() VaultConfig         { return c.VaultCfg }
func (c *Config) Metrics() MetricsConfig     { return c.MetricsCfg }

func (c *Config) SetBrowserHeadless(b bool)  { c.BrowserCfg.Headless = b }
func (c *Config) SetDatabaseURL(url string) { c.DatabaseCfg.URL = url }

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color codes for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// DatabaseConfig holds the database connection details.
// An empty URL selects file-backed credential storage and in-memory interaction handling.
type DatabaseConfig struct {
	URL      string `mapstructure:"url" yaml:"url"`
	MaxConns int32  `mapstructure:"max_conns" yaml:"max_conns"`
}

// BrowserConfig holds settings for the browser instances.
type BrowserConfig struct {
	Headless       bool           `mapstructure:"headless" yaml:"headless"`
	ExecPath       string         `mapstructure:"exec_path" yaml:"exec_path"`
	Args           []string       `mapstructure:"args" yaml:"args"`
	UserAgent      string         `mapstructure:"user_agent" yaml:"user_agent"`
	Locale         string         `mapstructure:"locale" yaml:"locale"`
	Timezone       string         `mapstructure:"timezone" yaml:"timezone"`
	ViewportWidth  int64          `mapstructure:"viewport_width" yaml:"viewport_width"`
	ViewportHeight int64          `mapstructure:"viewport_height" yaml:"viewport_height"`
	LaunchTimeout  time.Duration  `mapstructure:"launch_timeout" yaml:"launch_timeout"`
	Humanoid       HumanoidConfig `mapstructure:"humanoid" yaml:"humanoid"`
}

// HumanoidConfig tunes the pointer and typing model.
type HumanoidConfig struct {
	FittsA         float64 `mapstructure:"fitts_a" yaml:"fitts_a"`
	FittsB         float64 `mapstructure:"fitts_b" yaml:"fitts_b"`
	MinSteps       int     `mapstructure:"min_steps" yaml:"min_steps"`
	MaxSteps       int     `mapstructure:"max_steps" yaml:"max_steps"`
	KeyDelayMinMs  int     `mapstructure:"key_delay_min_ms" yaml:"key_delay_min_ms"`
	KeyDelayMaxMs  int     `mapstructure:"key_delay_max_ms" yaml:"key_delay_max_ms"`
	ClickHoldMinMs int     `mapstructure:"click_hold_min_ms" yaml:"click_hold_min_ms"`
	ClickHoldMaxMs int     `mapstructure:"click_hold_max_ms" yaml:"click_hold_max_ms"`
	TypoRate       float64 `mapstructure:"typo_rate" yaml:"typo_rate"`
}

// PlatformConfig describes the surfaces of the target platform.
type PlatformConfig struct {
	BaseURL       string `mapstructure:"base_url" yaml:"base_url"`
	CookieDomain  string `mapstructure:"cookie_domain" yaml:"cookie_domain"`
	ProbePath     string `mapstructure:"probe_path" yaml:"probe_path"`
	ActivityPath  string `mapstructure:"activity_path" yaml:"activity_path"`
	LoginPath     string `mapstructure:"login_path" yaml:"login_path"`
	QRLoginPath   string `mapstructure:"qr_login_path" yaml:"qr_login_path"`
	SelectorsFile string `mapstructure:"selectors_file" yaml:"selectors_file"`
}

// SessionConfig tunes the session lifecycle.
type SessionConfig struct {
	MaxIdle           time.Duration `mapstructure:"max_idle" yaml:"max_idle"`
	EvictInterval     time.Duration `mapstructure:"evict_interval" yaml:"evict_interval"`
	ValidationTimeout time.Duration `mapstructure:"validation_timeout" yaml:"validation_timeout"`
	SettleTimeout     time.Duration `mapstructure:"settle_timeout" yaml:"settle_timeout"`
	CredentialDir     string        `mapstructure:"credential_dir" yaml:"credential_dir"`
}

// QRConfig tunes the device-handshake polling loop.
type QRConfig struct {
	PollInterval  time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
	MaxAttempts   int           `mapstructure:"max_attempts" yaml:"max_attempts"`
	TTL           time.Duration `mapstructure:"ttl" yaml:"ttl"`
	CollectPeriod time.Duration `mapstructure:"collect_period" yaml:"collect_period"`
}

// ScraperConfig tunes activity extraction.
type ScraperConfig struct {
	ScrollCycles      int           `mapstructure:"scroll_cycles" yaml:"scroll_cycles"`
	ScrollWaitMin     time.Duration `mapstructure:"scroll_wait_min" yaml:"scroll_wait_min"`
	ScrollWaitMax     time.Duration `mapstructure:"scroll_wait_max" yaml:"scroll_wait_max"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
}

// RateLimitConfig bounds outbound volume per account.
type RateLimitConfig struct {
	MessagesPerHour int `mapstructure:"messages_per_hour" yaml:"messages_per_hour"`
	MessagesPerDay  int `mapstructure:"messages_per_day" yaml:"messages_per_day"`
	ActionsPerHour  int `mapstructure:"actions_per_hour" yaml:"actions_per_hour"`
}

// ActuatorConfig tunes the outbound message sequence.
type ActuatorConfig struct {
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
	LookupTimeout     time.Duration `mapstructure:"lookup_timeout" yaml:"lookup_timeout"`
	DelayMin          time.Duration `mapstructure:"delay_min" yaml:"delay_min"`
	DelayMax          time.Duration `mapstructure:"delay_max" yaml:"delay_max"`
}

// EngineConfig configures account fan-out.
type EngineConfig struct {
	Concurrency  int           `mapstructure:"concurrency" yaml:"concurrency"`
	LaunchRate   float64       `mapstructure:"launch_rate" yaml:"launch_rate"`
	SyncInterval time.Duration `mapstructure:"sync_interval" yaml:"sync_interval"`
}

// VaultConfig holds the credential blob key material.
type VaultConfig struct {
	Key     string `mapstructure:"key" yaml:"key"`
	KeyFile string `mapstructure:"key_file" yaml:"key_file"`
}

// MetricsConfig configures the ops HTTP surface.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Addr    string `mapstructure:"addr" yaml:"addr"`
}

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for various configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "sociallink")
	v.SetDefault("logger.log_file", "sociallink.log")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")

	// -- Database --
	v.SetDefault("database.max_conns", 8)

	// -- Browser --
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.user_agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36")
	v.SetDefault("browser.locale", "en-US")
	v.SetDefault("browser.timezone", "America/New_York")
	v.SetDefault("browser.viewport_width", 1366)
	v.SetDefault("browser.viewport_height", 768)
	v.SetDefault("browser.launch_timeout", "30s")
	v.SetDefault("browser.humanoid.fitts_a", 100.0)
	v.SetDefault("browser.humanoid.fitts_b", 120.0)
	v.SetDefault("browser.humanoid.min_steps", 12)
	v.SetDefault("browser.humanoid.max_steps", 25)
	v.SetDefault("browser.humanoid.key_delay_min_ms", 60)
	v.SetDefault("browser.humanoid.key_delay_max_ms", 180)
	v.SetDefault("browser.humanoid.click_hold_min_ms", 50)
	v.SetDefault("browser.humanoid.click_hold_max_ms", 120)
	v.SetDefault("browser.humanoid.typo_rate", 0.0)

	// -- Platform --
	v.SetDefault("platform.base_url", "https://www.tiktok.com")
	v.SetDefault("platform.cookie_domain", ".tiktok.com")
	v.SetDefault("platform.probe_path", "/setting")
	v.SetDefault("platform.activity_path", "/notifications")
	v.SetDefault("platform.login_path", "/login")
	v.SetDefault("platform.qr_login_path", "/login/qrcode")

	// -- Session --
	v.SetDefault("session.max_idle", "1h")
	v.SetDefault("session.evict_interval", "5m")
	v.SetDefault("session.validation_timeout", "30s")
	v.SetDefault("session.settle_timeout", "5s")
	v.SetDefault("session.credential_dir", "~/.sociallink/sessions")

	// -- QR --
	v.SetDefault("qr.poll_interval", "5s")
	v.SetDefault("qr.max_attempts", 60)
	v.SetDefault("qr.ttl", "10m")
	v.SetDefault("qr.collect_period", "30s")

	// -- Scraper --
	v.SetDefault("scraper.scroll_cycles", 6)
	v.SetDefault("scraper.scroll_wait_min", "1200ms")
	v.SetDefault("scraper.scroll_wait_max", "2500ms")
	v.SetDefault("scraper.navigation_timeout", "30s")

	// -- Rate limits --
	v.SetDefault("ratelimit.messages_per_hour", 10)
	v.SetDefault("ratelimit.messages_per_day", 50)
	v.SetDefault("ratelimit.actions_per_hour", 60)

	// -- Actuator --
	v.SetDefault("actuator.navigation_timeout", "30s")
	v.SetDefault("actuator.lookup_timeout", "15s")
	v.SetDefault("actuator.delay_min", "400ms")
	v.SetDefault("actuator.delay_max", "1200ms")

	// -- Engine --
	v.SetDefault("engine.concurrency", 4)
	v.SetDefault("engine.launch_rate", 0.5)
	v.SetDefault("engine.sync_interval", "15m")

	// -- Metrics --
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.addr", ":9464")
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	// Bind environment variables for sensitive data.
	_ = v.BindEnv("vault.key", "SOCIALLINK_VAULT_KEY")
	_ = v.BindEnv("database.url", "SOCIALLINK_DATABASE_URL")

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Manually load the key if Unmarshal didn't pick it up.
	if cfg.VaultCfg.Key == "" {
		cfg.VaultCfg.Key = os.Getenv("SOCIALLINK_VAULT_KEY")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if c.PlatformCfg.BaseURL == "" {
		return fmt.Errorf("platform.base_url is a required configuration field")
	}
	if c.SessionCfg.ValidationTimeout <= 0 {
		return fmt.Errorf("session.validation_timeout must be a positive duration")
	}
	if c.EngineCfg.Concurrency <= 0 {
		return fmt.Errorf("engine.concurrency must be a positive integer")
	}
	if err := c.QRCfg.Validate(); err != nil {
		return fmt.Errorf("qr configuration invalid: %w", err)
	}
	if err := c.RateLimitCfg.Validate(); err != nil {
		return fmt.Errorf("ratelimit configuration invalid: %w", err)
	}
	if c.ScraperCfg.ScrollWaitMax < c.ScraperCfg.ScrollWaitMin {
		return fmt.Errorf("scraper.scroll_wait_max must not be less than scraper.scroll_wait_min")
	}
	return nil
}

// Validate checks the QR polling settings.
func (q *QRConfig) Validate() error {
	if q.PollInterval <= 0 {
		return fmt.Errorf("poll_interval must be a positive duration")
	}
	if q.MaxAttempts <= 0 {
		return fmt.Errorf("max_attempts must be greater than 0")
	}
	if q.TTL <= 0 {
		return fmt.Errorf("ttl must be a positive duration")
	}
	return nil
}

// Validate checks the rate limit settings.
func (r *RateLimitConfig) Validate() error {
	if r.MessagesPerHour <= 0 || r.MessagesPerDay <= 0 || r.ActionsPerHour <= 0 {
		return fmt.Errorf("all limits must be positive integers")
	}
	if r.MessagesPerDay < r.MessagesPerHour {
		return fmt.Errorf("messages_per_day must be at least messages_per_hour")
	}
	return nil
}
