// Package config loads and validates the snigate daemon configuration.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/vyrodovalexey/snigate/internal/observability"
	"github.com/vyrodovalexey/snigate/internal/session"
	"github.com/vyrodovalexey/snigate/internal/sni"
)

// Config is the top-level daemon configuration.
type Config struct {
	// Listen is the TLS listener address.
	Listen string `yaml:"listen"`

	// MetricsAddr serves Prometheus metrics and health over plain HTTP.
	// Empty disables the endpoint.
	MetricsAddr string `yaml:"metricsAddr,omitempty"`

	// Logging configures structured logging.
	Logging observability.LogConfig `yaml:"logging"`

	// ValidationPolicy is "strict" or "lenient" handling of malformed
	// certificate names.
	ValidationPolicy string `yaml:"validationPolicy,omitempty"`

	// TicketSeeds is the session ticket seed triple shared by all identities.
	TicketSeeds session.TicketSeeds `yaml:"ticketSeeds,omitempty"`

	// SessionCache sizes the per-identity session caches and optionally wires
	// the shared Redis tier.
	SessionCache SessionCacheConfig `yaml:"sessionCache,omitempty"`

	// Identities is the identity batch published at startup and on reload.
	Identities []sni.IdentityConfig `yaml:"identities"`

	// Reload configures automatic configuration reloading.
	Reload ReloadConfig `yaml:"reload,omitempty"`
}

// SessionCacheConfig configures session resumption caching.
type SessionCacheConfig struct {
	// MaxEntries bounds each identity's local cache tier.
	MaxEntries int `yaml:"maxEntries,omitempty"`

	// TTL is the lifetime of a cached session.
	TTL Duration `yaml:"ttl,omitempty"`

	// Redis enables the shared external cache tier.
	Redis *RedisConfig `yaml:"redis,omitempty"`
}

// Options returns the cache sizing for the session package.
func (c SessionCacheConfig) Options() session.CacheOptions {
	return session.CacheOptions{
		MaxEntries: c.MaxEntries,
		TTL:        c.TTL.Duration(),
	}
}

// RedisConfig configures the Redis session cache tier.
type RedisConfig struct {
	Address      string   `yaml:"address"`
	Password     string   `yaml:"password,omitempty"`
	DB           int      `yaml:"db,omitempty"`
	PoolSize     int      `yaml:"poolSize,omitempty"`
	MinIdleConns int      `yaml:"minIdleConns,omitempty"`
	DialTimeout  Duration `yaml:"dialTimeout,omitempty"`
	ReadTimeout  Duration `yaml:"readTimeout,omitempty"`
	WriteTimeout Duration `yaml:"writeTimeout,omitempty"`
}

// ToSession returns the session package's Redis configuration.
func (c RedisConfig) ToSession() session.RedisConfig {
	return session.RedisConfig{
		Address:      c.Address,
		Password:     c.Password,
		DB:           c.DB,
		PoolSize:     c.PoolSize,
		MinIdleConns: c.MinIdleConns,
		DialTimeout:  c.DialTimeout.Duration(),
		ReadTimeout:  c.ReadTimeout.Duration(),
		WriteTimeout: c.WriteTimeout.Duration(),
	}
}

// ReloadConfig configures file-watch driven reloads.
type ReloadConfig struct {
	// Watch enables reloading when the configuration file changes. SIGHUP
	// reloads regardless.
	Watch bool `yaml:"watch,omitempty"`

	// Debounce coalesces bursts of file events into one reload.
	Debounce Duration `yaml:"debounce,omitempty"`
}

// DefaultConfig returns a configuration with defaults applied.
func DefaultConfig() *Config {
	return &Config{
		Listen:  ":8443",
		Logging: observability.DefaultLogConfig(),
		Reload: ReloadConfig{
			Debounce: Duration(500 * time.Millisecond),
		},
	}
}

// Load reads, parses and validates a configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyDefaults fills unset fields.
func (c *Config) applyDefaults() {
	if c.Listen == "" {
		c.Listen = ":8443"
	}
	if c.ValidationPolicy == "" {
		c.ValidationPolicy = "strict"
	}
	if c.Reload.Debounce <= 0 {
		c.Reload.Debounce = Duration(500 * time.Millisecond)
	}
}

// Validate checks the configuration for structural errors.
func (c *Config) Validate() error {
	if len(c.Identities) == 0 {
		return fmt.Errorf("at least one identity is required")
	}

	switch c.ValidationPolicy {
	case "strict", "lenient":
	default:
		return fmt.Errorf("validationPolicy must be strict or lenient, got %q", c.ValidationPolicy)
	}

	defaults := 0
	for i := range c.Identities {
		if err := c.Identities[i].Validate(); err != nil {
			return fmt.Errorf("identity %d: %w", i, err)
		}
		if c.Identities[i].Default {
			defaults++
		}
	}
	if defaults > 1 {
		return fmt.Errorf("at most one identity may be marked default, got %d", defaults)
	}

	if c.SessionCache.Redis != nil && c.SessionCache.Redis.Address == "" {
		return fmt.Errorf("sessionCache.redis.address is required when redis is configured")
	}

	return nil
}

// Policy returns the parsed validation policy.
func (c *Config) Policy() sni.ValidationPolicy {
	if c.ValidationPolicy == "lenient" {
		return sni.PolicyLenient
	}
	return sni.PolicyStrict
}
