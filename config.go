package authsync

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"
)

// Config is the daemon configuration, loaded from a JSON file.
type Config struct {
	// Listen is the TCP address the gateway accepts clients on.
	Listen string `json:"listen"`

	// Secret is the shared secret clients must prove during the handshake.
	Secret string `json:"secret"`

	// DBDSN is the MySQL data source name for record persistence. Empty
	// disables persistence.
	DBDSN string `json:"db_dsn"`

	// RESTListen is the HTTP address of the introspection API. Empty
	// disables it.
	RESTListen string `json:"rest_listen"`

	// StoreShards is the shard count of the authentication store.
	StoreShards int `json:"store_shards"`

	// ReadTimeoutSec is the idle read deadline for authenticated
	// sessions in seconds. Zero means no idle limit.
	ReadTimeoutSec int `json:"read_timeout_sec"`

	// WriteTimeoutSec is the per-write deadline in seconds.
	WriteTimeoutSec int `json:"write_timeout_sec"`

	// HandshakeTimeoutSec bounds the challenge handshake in seconds.
	HandshakeTimeoutSec int `json:"handshake_timeout_sec"`

	// MaxBodyLength is the largest accepted frame body in bytes.
	MaxBodyLength uint32 `json:"max_body_length"`

	// AcceptRate and AcceptBurst rate-limit incoming connections.
	// AcceptRate 0 disables the limiter.
	AcceptRate  float64 `json:"accept_rate"`
	AcceptBurst int     `json:"accept_burst"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `json:"log_level"`
}

// DefaultConfig returns a config with usable defaults for everything but
// the secret.
func DefaultConfig() *Config {
	return &Config{
		Listen:              ":7001",
		StoreShards:         DefaultStoreShards,
		WriteTimeoutSec:     30,
		HandshakeTimeoutSec: 30,
		MaxBodyLength:       DefaultMaxBodyLength,
		AcceptBurst:         16,
		LogLevel:            "info",
	}
}

// LoadConfig reads a JSON config file, applying defaults for absent fields.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg := DefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the config for values the server cannot run with.
func (c *Config) Validate() error {
	if c.Listen == "" {
		return fmt.Errorf("listen address is required")
	}
	if c.Secret == "" {
		return fmt.Errorf("secret is required")
	}
	if c.StoreShards <= 0 {
		return fmt.Errorf("store_shards must be positive, got %d", c.StoreShards)
	}
	if c.MaxBodyLength < uint32(HeaderLength) {
		return fmt.Errorf("max_body_length %d is too small", c.MaxBodyLength)
	}
	if _, err := c.SlogLevel(); err != nil {
		return err
	}
	return nil
}

// SlogLevel maps the configured log level name onto a slog.Level.
func (c *Config) SlogLevel() (slog.Level, error) {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unknown log level %q", c.LogLevel)
	}
}

// ServerOptions translates the config into server options. The listener is
// not included; the caller opens it separately so bind errors surface
// before the server starts.
func (c *Config) ServerOptions() []ServerOption {
	opts := []ServerOption{
		WithServerSecret(c.Secret),
		WithStoreShards(c.StoreShards),
		WithServerReadTimeout(time.Duration(c.ReadTimeoutSec) * time.Second),
		WithServerWriteTimeout(time.Duration(c.WriteTimeoutSec) * time.Second),
		WithHandshakeTimeout(time.Duration(c.HandshakeTimeoutSec) * time.Second),
		WithServerMaxBodyLength(c.MaxBodyLength),
	}
	if c.AcceptRate > 0 {
		opts = append(opts, WithAcceptRate(c.AcceptRate, c.AcceptBurst))
	}
	return opts
}
