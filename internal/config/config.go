package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dyluth/arsketch/pkg/sketch"
	"gopkg.in/yaml.v3"
)

// Defaults applied by Validate when a field is omitted.
const (
	DefaultRedisURL   = "redis://localhost:6379"
	DefaultStorePath  = "arsketch.db"
	DefaultOutboxSize = 64
)

// Environment variables that override values from the file.
const (
	EnvRedisURL = "ARSKETCH_REDIS_URL"
	EnvDevice   = "ARSKETCH_DEVICE"
)

// Config represents the top-level arsketch.yml configuration
type Config struct {
	Version string        `yaml:"version"`
	Session string        `yaml:"session"`
	Device  string        `yaml:"device,omitempty"` // Generated when empty
	Redis   *RedisConfig  `yaml:"redis,omitempty"`
	Store   *StoreConfig  `yaml:"store,omitempty"`
	Sync    *SyncConfig   `yaml:"sync,omitempty"`
	Health  *HealthConfig `yaml:"health,omitempty"`
}

// RedisConfig specifies how to reach the Redis server carrying peer traffic
type RedisConfig struct {
	URL string `yaml:"url"`
}

// StoreConfig specifies where the local snapshot is persisted
type StoreConfig struct {
	Path string `yaml:"path"`
}

// SyncConfig tunes the sync engine
type SyncConfig struct {
	OutboxSize            int      `yaml:"outbox_size,omitempty"`
	RelocalizationTimeout Duration `yaml:"relocalization_timeout,omitempty"` // 0 disables the watchdog
}

// HealthConfig enables the HTTP health endpoint when Addr is set
type HealthConfig struct {
	Addr string `yaml:"addr,omitempty"`
}

// Duration is a time.Duration that unmarshals from strings like "30s".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return fmt.Errorf("duration must be a string like \"30s\": %w", err)
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Default returns a valid configuration for the given session with all defaults applied.
func Default(session string) *Config {
	cfg := &Config{Version: "1.0", Session: session}
	cfg.applyDefaults()
	return cfg
}

// Validate performs strict validation on the configuration and fills in defaults
func (c *Config) Validate() error {
	// Required: version
	if c.Version != "1.0" {
		return fmt.Errorf("unsupported version: %s (expected: 1.0)", c.Version)
	}

	// Required: session
	if c.Session == "" {
		return fmt.Errorf("session is required")
	}
	if strings.ContainsAny(c.Session, ": \t\n") {
		return fmt.Errorf("invalid session name '%s': must not contain ':' or whitespace", c.Session)
	}

	if strings.ContainsAny(c.Device, ": \t\n") {
		return fmt.Errorf("invalid device name '%s': must not contain ':' or whitespace", c.Device)
	}

	c.applyDefaults()

	if !strings.HasPrefix(c.Redis.URL, "redis://") && !strings.HasPrefix(c.Redis.URL, "rediss://") {
		return fmt.Errorf("redis.url must start with redis:// or rediss://, got %s", c.Redis.URL)
	}

	if c.Sync.OutboxSize < 1 {
		return fmt.Errorf("sync.outbox_size must be >= 1, got %d", c.Sync.OutboxSize)
	}

	if c.Sync.RelocalizationTimeout < 0 {
		return fmt.Errorf("sync.relocalization_timeout must be >= 0 (0 = disabled), got %s", time.Duration(c.Sync.RelocalizationTimeout))
	}

	return nil
}

func (c *Config) applyDefaults() {
	if c.Device == "" {
		c.Device = string(sketch.NewDeviceID())
	}
	if c.Redis == nil {
		c.Redis = &RedisConfig{}
	}
	if c.Redis.URL == "" {
		c.Redis.URL = DefaultRedisURL
	}
	if c.Store == nil {
		c.Store = &StoreConfig{}
	}
	if c.Store.Path == "" {
		c.Store.Path = DefaultStorePath
	}
	if c.Sync == nil {
		c.Sync = &SyncConfig{}
	}
	if c.Sync.OutboxSize == 0 {
		c.Sync.OutboxSize = DefaultOutboxSize
	}
	if c.Health == nil {
		c.Health = &HealthConfig{}
	}
}

// ApplyEnv overrides file values with ARSKETCH_* environment variables.
func (c *Config) ApplyEnv() {
	if url := os.Getenv(EnvRedisURL); url != "" {
		if c.Redis == nil {
			c.Redis = &RedisConfig{}
		}
		c.Redis.URL = url
	}
	if device := os.Getenv(EnvDevice); device != "" {
		c.Device = device
	}
}

// Load reads arsketch.yml from the specified path, applies environment overrides and validates it
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	config.ApplyEnv()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// Write serializes the configuration to path.
func Write(path string, c *Config) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}
