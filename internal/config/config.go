package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"bank-success-rates/internal/bucket"
	"bank-success-rates/internal/logging"
)

// Config materialises application configuration.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Logging   logging.Config  `mapstructure:"logging"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Ingest    IngestConfig    `mapstructure:"ingest"`
	Window    WindowConfig    `mapstructure:"window"`
	Rollup    RollupConfig    `mapstructure:"rollup"`
	Retention RetentionConfig `mapstructure:"retention"`
	Alerting  AlertingConfig  `mapstructure:"alerting"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Export    ExportConfig    `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// RedisConfig encapsulates the counter-store backend connection.
type RedisConfig struct {
	Addr        string        `mapstructure:"addr"`
	Password    string        `mapstructure:"password"`
	DB          int           `mapstructure:"db"`
	KeyPrefix   string        `mapstructure:"key_prefix"`
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
	OpTimeout   time.Duration `mapstructure:"op_timeout"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// IngestConfig governs outcome classification and counter-tier writes.
type IngestConfig struct {
	SuccessStatusCode int           `mapstructure:"success_status_code"`
	BucketSize        time.Duration `mapstructure:"bucket_size"`
	CounterTTL        time.Duration `mapstructure:"counter_ttl"`
	Workers           int           `mapstructure:"workers"`
	RetryAttempts     int           `mapstructure:"retry_attempts"`
	RetryBackoff      time.Duration `mapstructure:"retry_backoff"`
}

// WindowConfig sets the real-time rate computation defaults.
type WindowConfig struct {
	DefaultLookback time.Duration `mapstructure:"default_lookback"`
}

// RollupConfig governs the rollup pipeline.
type RollupConfig struct {
	Units           []string      `mapstructure:"units"`
	CheckInterval   time.Duration `mapstructure:"check_interval"`
	SafetyMargin    time.Duration `mapstructure:"safety_margin"`
	AdvisoryLockKey int64         `mapstructure:"advisory_lock_key"`
	CatchUpOnStart  bool          `mapstructure:"catchup_on_start"`
	OpTimeout       time.Duration `mapstructure:"op_timeout"`
}

// ParsedUnits returns the configured granularities. Validate rejects unknown
// names at startup, so unparseable entries are skipped here.
func (c RollupConfig) ParsedUnits() []bucket.Unit {
	units := make([]bucket.Unit, 0, len(c.Units))
	for _, name := range c.Units {
		unit, err := bucket.ParseUnit(name)
		if err != nil {
			continue
		}
		units = append(units, unit)
	}
	return units
}

// RetentionConfig governs raw-row reclamation.
type RetentionConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Interval time.Duration `mapstructure:"interval"`
}

// AlertingConfig defines low-success-rate alert thresholds and routing.
type AlertingConfig struct {
	Enabled       bool           `mapstructure:"enabled"`
	MinRate       float64        `mapstructure:"min_rate"`
	Lookback      time.Duration  `mapstructure:"lookback"`
	CheckInterval time.Duration  `mapstructure:"check_interval"`
	Cooldown      time.Duration  `mapstructure:"cooldown"`
	Banks         []string       `mapstructure:"banks"`
	Channels      []string       `mapstructure:"channels"`
	Telegram      TelegramConfig `mapstructure:"telegram"`
}

// TelegramConfig describes the Telegram alert channel.
type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
	APIBase  string `mapstructure:"api_base"`
}

// MetricsConfig exposes operational metrics.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDataPoints int `mapstructure:"max_data_points"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("BANKPULSE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "bankpulse")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.key_prefix", "sr")
	v.SetDefault("redis.dial_timeout", "5s")
	v.SetDefault("redis.op_timeout", "2s")

	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")

	v.SetDefault("ingest.success_status_code", 200)
	v.SetDefault("ingest.bucket_size", "60s")
	v.SetDefault("ingest.counter_ttl", "15m")
	v.SetDefault("ingest.workers", 4)
	v.SetDefault("ingest.retry_attempts", 5)
	v.SetDefault("ingest.retry_backoff", "200ms")

	v.SetDefault("window.default_lookback", "15m")

	v.SetDefault("rollup.units", []string{"15min", "hour", "day"})
	v.SetDefault("rollup.check_interval", "1m")
	v.SetDefault("rollup.safety_margin", "2m")
	v.SetDefault("rollup.advisory_lock_key", int64(0x62616E6B))
	v.SetDefault("rollup.catchup_on_start", true)
	v.SetDefault("rollup.op_timeout", "30s")

	v.SetDefault("retention.enabled", false)
	v.SetDefault("retention.interval", "24h")

	v.SetDefault("alerting.enabled", false)
	v.SetDefault("alerting.min_rate", 0.9)
	v.SetDefault("alerting.lookback", "15m")
	v.SetDefault("alerting.check_interval", "1m")
	v.SetDefault("alerting.cooldown", "30m")
	v.SetDefault("alerting.channels", []string{"telegram"})
	v.SetDefault("alerting.telegram.enabled", false)
	v.SetDefault("alerting.telegram.api_base", "https://api.telegram.org")

	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.addr", ":9143")

	v.SetDefault("export.max_data_points", 100000)
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// Validate performs basic sanity checks on the configuration values.
// Violations are fatal at startup; nothing here is recovered at runtime.
func (c *Config) Validate() error {
	if c.Ingest.SuccessStatusCode <= 0 {
		return fmt.Errorf("ingest.success_status_code must be greater than zero")
	}
	if c.Ingest.BucketSize <= 0 {
		return fmt.Errorf("ingest.bucket_size must be greater than zero")
	}
	if c.Window.DefaultLookback <= 0 {
		return fmt.Errorf("window.default_lookback must be greater than zero")
	}
	if c.Ingest.CounterTTL < c.Window.DefaultLookback {
		return fmt.Errorf("ingest.counter_ttl must cover window.default_lookback")
	}
	if c.Ingest.Workers <= 0 {
		return fmt.Errorf("ingest.workers must be greater than zero")
	}
	if len(c.Rollup.Units) == 0 {
		return fmt.Errorf("rollup.units must not be empty")
	}
	for _, name := range c.Rollup.Units {
		if _, err := bucket.ParseUnit(name); err != nil {
			return fmt.Errorf("rollup.units: %w", err)
		}
	}
	if c.Rollup.CheckInterval <= 0 {
		return fmt.Errorf("rollup.check_interval must be greater than zero")
	}
	if c.Rollup.SafetyMargin < 0 {
		return fmt.Errorf("rollup.safety_margin cannot be negative")
	}
	if c.Retention.Enabled && c.Retention.Interval <= 0 {
		return fmt.Errorf("retention.interval must be greater than zero")
	}
	if c.Alerting.MinRate < 0 || c.Alerting.MinRate > 1 {
		return fmt.Errorf("alerting.min_rate must be within [0, 1]")
	}
	if c.Alerting.Telegram.Enabled {
		if c.Alerting.Telegram.BotToken == "" {
			return fmt.Errorf("alerting.telegram.bot_token is required")
		}
		if c.Alerting.Telegram.ChatID == "" {
			return fmt.Errorf("alerting.telegram.chat_id is required")
		}
	}
	if c.Export.MaxDataPoints <= 0 {
		return fmt.Errorf("export.max_data_points must be greater than zero")
	}
	return nil
}

// ResolveMaxPoints returns either the CLI override or config default.
func (c *Config) ResolveMaxPoints(override int) int {
	if override > 0 {
		return override
	}
	return c.Export.MaxDataPoints
}
