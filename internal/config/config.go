// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Browser  BrowserConfig  `mapstructure:"browser"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Metadata MetadataConfig `mapstructure:"metadata"`
	Queue    QueueConfig    `mapstructure:"queue"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port                  int `mapstructure:"port"`
	RequestTimeoutSeconds int `mapstructure:"request_timeout_seconds"`
}

// AuthConfig defines the bearer credential for the scrape endpoints.
type AuthConfig struct {
	BearerToken string `mapstructure:"bearer_token"`
}

// BrowserConfig governs the remote browser pool and navigation driver.
type BrowserConfig struct {
	Endpoint           string `mapstructure:"endpoint"`
	Token              string `mapstructure:"token"`
	UserAgent          string `mapstructure:"user_agent"`
	NavTimeoutSeconds  int    `mapstructure:"nav_timeout_seconds"`
	IdleCeilingSeconds int    `mapstructure:"idle_ceiling_seconds"`
}

// StorageConfig selects and configures the artifact blob store.
type StorageConfig struct {
	Provider  string `mapstructure:"provider"` // gcs | memory | noop
	GCSBucket string `mapstructure:"gcs_bucket"`
}

// MetadataConfig controls access to the page metadata database.
type MetadataConfig struct {
	Provider     string `mapstructure:"provider"` // postgres | noop
	DSN          string `mapstructure:"dsn"`
	Table        string `mapstructure:"table"`
	MaxOpenConns int32  `mapstructure:"max_open_conns"`
	MinOpenConns int32  `mapstructure:"min_open_conns"`
}

// QueueConfig holds queue transport settings for the async path.
type QueueConfig struct {
	Provider               string `mapstructure:"provider"` // pubsub | memory | noop
	ProjectID              string `mapstructure:"project_id"`
	TopicID                string `mapstructure:"topic_id"`
	SubscriptionID         string `mapstructure:"subscription_id"`
	BatchSize              int    `mapstructure:"batch_size"`
	FlushIntervalMs        int    `mapstructure:"flush_interval_ms"`
	MemoryCapacity         int    `mapstructure:"memory_capacity"`
	ReacquireOnSessionLoss bool   `mapstructure:"reacquire_on_session_loss"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("SCRAPPER")
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

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// setDefaults registers every key with Viper. Keys without a real
// default get an empty value so AutomaticEnv can still populate them
// during Unmarshal.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.request_timeout_seconds", 90)
	v.SetDefault("auth.bearer_token", "")
	v.SetDefault("browser.endpoint", "http://localhost:3000")
	v.SetDefault("browser.token", "")
	v.SetDefault("browser.user_agent", "cf-web-scrapper/1.0")
	v.SetDefault("browser.nav_timeout_seconds", 45)
	v.SetDefault("browser.idle_ceiling_seconds", 30)
	v.SetDefault("storage.provider", "memory")
	v.SetDefault("storage.gcs_bucket", "")
	v.SetDefault("metadata.provider", "noop")
	v.SetDefault("metadata.dsn", "")
	v.SetDefault("metadata.table", "pages")
	v.SetDefault("metadata.max_open_conns", 0)
	v.SetDefault("metadata.min_open_conns", 0)
	v.SetDefault("queue.provider", "memory")
	v.SetDefault("queue.project_id", "")
	v.SetDefault("queue.topic_id", "")
	v.SetDefault("queue.subscription_id", "")
	v.SetDefault("queue.batch_size", 10)
	v.SetDefault("queue.flush_interval_ms", 2000)
	v.SetDefault("queue.memory_capacity", 128)
	v.SetDefault("queue.reacquire_on_session_loss", true)
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Auth.BearerToken == "" {
		return fmt.Errorf("auth.bearer_token must be set")
	}
	if c.Browser.Endpoint == "" {
		return fmt.Errorf("browser.endpoint must be set")
	}
	if c.Browser.IdleCeilingSeconds <= 0 {
		return fmt.Errorf("browser.idle_ceiling_seconds must be > 0")
	}
	switch c.Storage.Provider {
	case "gcs":
		if c.Storage.GCSBucket == "" {
			return fmt.Errorf("storage.gcs_bucket must be set when storage.provider is gcs")
		}
	case "memory", "noop":
	default:
		return fmt.Errorf("unknown storage.provider %q", c.Storage.Provider)
	}
	switch c.Metadata.Provider {
	case "postgres":
		if c.Metadata.DSN == "" {
			return fmt.Errorf("metadata.dsn must be set when metadata.provider is postgres")
		}
	case "noop":
	default:
		return fmt.Errorf("unknown metadata.provider %q", c.Metadata.Provider)
	}
	switch c.Queue.Provider {
	case "pubsub":
		if c.Queue.ProjectID == "" || c.Queue.TopicID == "" || c.Queue.SubscriptionID == "" {
			return fmt.Errorf("queue.project_id, queue.topic_id, and queue.subscription_id must be set when queue.provider is pubsub")
		}
	case "memory", "noop":
	default:
		return fmt.Errorf("unknown queue.provider %q", c.Queue.Provider)
	}
	return nil
}

// RequestTimeout converts the HTTP timeout config into a duration.
func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.Server.RequestTimeoutSeconds) * time.Second
}

// NavTimeout converts the navigation timeout config into a duration.
func (c Config) NavTimeout() time.Duration {
	return time.Duration(c.Browser.NavTimeoutSeconds) * time.Second
}

// IdleCeiling converts the idle ceiling config into a duration.
func (c Config) IdleCeiling() time.Duration {
	return time.Duration(c.Browser.IdleCeilingSeconds) * time.Second
}

// FlushInterval converts the queue flush interval config into a duration.
func (c Config) FlushInterval() time.Duration {
	return time.Duration(c.Queue.FlushIntervalMs) * time.Millisecond
}
