package config

import (
	"fmt"
	"time"
)

// FeedConfig is the root configuration for a feed instance.
type FeedConfig struct {
	Instance      InstanceConfig       `yaml:"instance" toml:"instance"`
	Feed          FeedSection          `yaml:"feed" toml:"feed"`
	Subscriptions []SubscriptionConfig `yaml:"subscriptions" toml:"subscriptions"`
	Database      DatabaseConfig       `yaml:"database" toml:"database"`
	Writers       WritersConfig        `yaml:"writers" toml:"writers"`
	Health        HealthConfig         `yaml:"health" toml:"health"`
	Logging       LoggingConfig        `yaml:"logging" toml:"logging"`
}

// InstanceConfig identifies this feed process.
type InstanceConfig struct {
	ID string `yaml:"id" toml:"id"`
}

// FeedSection holds connection lifecycle and transport settings.
//
// Reconnect and Strategy are independent keys. Automatic reconnection runs
// only when reconnect is true (the default) and strategy is not "none";
// either one alone turns it off.
type FeedSection struct {
	URL                    string   `yaml:"url" toml:"url"`
	Protocols              []string `yaml:"protocols" toml:"protocols"`
	Reconnect              *bool    `yaml:"reconnect" toml:"reconnect"`
	Strategy               string   `yaml:"strategy" toml:"strategy"` // exponential, fixed, none
	ReconnectInterval      Duration `yaml:"reconnect_interval" toml:"reconnect_interval"`
	MaxReconnectInterval   Duration `yaml:"max_reconnect_interval" toml:"max_reconnect_interval"`
	ReconnectDecay         float64  `yaml:"reconnect_decay" toml:"reconnect_decay"`
	TimeoutInterval        Duration `yaml:"timeout_interval" toml:"timeout_interval"`
	MaxReconnectAttempts   int      `yaml:"max_reconnect_attempts" toml:"max_reconnect_attempts"`
	HeartbeatInterval      Duration `yaml:"heartbeat_interval" toml:"heartbeat_interval"`
	PongTimeout            Duration `yaml:"pong_timeout" toml:"pong_timeout"`
	NonRetryableCloseCodes []int    `yaml:"non_retryable_close_codes" toml:"non_retryable_close_codes"`
	BinaryType             string   `yaml:"binary_type" toml:"binary_type"`

	HandshakeTimeout  Duration `yaml:"handshake_timeout" toml:"handshake_timeout"`
	WriteTimeout      Duration `yaml:"write_timeout" toml:"write_timeout"`
	ReadLimit         int64    `yaml:"read_limit" toml:"read_limit"`
	EnableCompression bool     `yaml:"enable_compression" toml:"enable_compression"`
}

// SubscriptionConfig is one channel/instrument pair subscribed at startup.
type SubscriptionConfig struct {
	Channel string `yaml:"channel" toml:"channel"`
	InstID  string `yaml:"inst_id" toml:"inst_id"`
}

// DatabaseConfig holds the TimescaleDB connection for market data.
type DatabaseConfig struct {
	Enabled   bool     `yaml:"enabled" toml:"enabled"`
	Timescale DBConfig `yaml:"timescale" toml:"timescale"`
}

// DBConfig holds a single database connection.
type DBConfig struct {
	Host           string   `yaml:"host" toml:"host"`
	Port           int      `yaml:"port" toml:"port"`
	Name           string   `yaml:"name" toml:"name"`
	User           string   `yaml:"user" toml:"user"`
	Password       string   `yaml:"password" toml:"password"`
	SSLMode        string   `yaml:"ssl_mode" toml:"ssl_mode"`
	MaxConns       int      `yaml:"max_conns" toml:"max_conns"`
	MinConns       int      `yaml:"min_conns" toml:"min_conns"`
	ConnectTimeout Duration `yaml:"connect_timeout" toml:"connect_timeout"`
}

// WritersConfig holds batch writer settings.
type WritersConfig struct {
	BatchSize     int      `yaml:"batch_size" toml:"batch_size"`
	FlushInterval Duration `yaml:"flush_interval" toml:"flush_interval"`
	BufferSize    int      `yaml:"buffer_size" toml:"buffer_size"`
	MaxBufferSize int      `yaml:"max_buffer_size" toml:"max_buffer_size"`
}

// HealthConfig holds the health HTTP server settings. Port 0 disables it.
type HealthConfig struct {
	Port int `yaml:"port" toml:"port"`
}

// LoggingConfig selects the slog handler.
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`   // debug, info, warn, error
	Format string `yaml:"format" toml:"format"` // text, json
}

// Duration is a time.Duration that decodes from strings like "1.5s" in
// both YAML and TOML.
type Duration time.Duration

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", text, err)
	}
	*d = Duration(v)
	return nil
}
