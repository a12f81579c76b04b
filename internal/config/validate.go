package config

import (
	"errors"
	"fmt"
	"net/url"

	"github.com/rickgao/okx-feed/internal/connection"
)

// Validate checks that all required fields are set and values are valid.
func (c *FeedConfig) Validate() error {
	if c.Instance.ID == "" {
		return errors.New("instance.id is required")
	}

	if err := c.Feed.validate("feed"); err != nil {
		return err
	}

	seen := make(map[SubscriptionConfig]bool, len(c.Subscriptions))
	for i, s := range c.Subscriptions {
		if s.Channel == "" {
			return fmt.Errorf("subscriptions[%d].channel is required", i)
		}
		if s.InstID == "" {
			return fmt.Errorf("subscriptions[%d].inst_id is required", i)
		}
		if seen[s] {
			return fmt.Errorf("subscriptions[%d] duplicates %s:%s", i, s.Channel, s.InstID)
		}
		seen[s] = true
	}

	if c.Database.Enabled {
		if err := c.Database.Timescale.validate("database.timescale"); err != nil {
			return err
		}
	}

	if c.Writers.BatchSize < 1 {
		return errors.New("writers.batch_size must be >= 1")
	}
	if c.Writers.FlushInterval <= 0 {
		return errors.New("writers.flush_interval must be > 0")
	}
	if c.Writers.BufferSize < 1 {
		return errors.New("writers.buffer_size must be >= 1")
	}
	if c.Writers.MaxBufferSize != 0 && c.Writers.MaxBufferSize < c.Writers.BufferSize {
		return fmt.Errorf("writers.max_buffer_size (%d) cannot be below buffer_size (%d)",
			c.Writers.MaxBufferSize, c.Writers.BufferSize)
	}

	if c.Health.Port < 0 || c.Health.Port > 65535 {
		return fmt.Errorf("health.port must be between 0 and 65535, got %d", c.Health.Port)
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn or error, got %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format)
	}

	return nil
}

func (f *FeedSection) validate(prefix string) error {
	u, err := url.Parse(f.URL)
	if err != nil {
		return fmt.Errorf("%s.url: %w", prefix, err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("%s.url must use ws or wss, got %q", prefix, u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("%s.url has no host", prefix)
	}

	switch connection.Strategy(f.Strategy) {
	case connection.StrategyExponential, connection.StrategyFixed, connection.StrategyNone:
	default:
		return fmt.Errorf("%s.strategy must be exponential, fixed or none, got %q", prefix, f.Strategy)
	}

	// The remaining constraints mirror connection.Config.Validate so the
	// error carries the config path.
	if err := f.ConnectionConfig().Validate(); err != nil {
		return fmt.Errorf("%s.%w", prefix, err)
	}

	if f.HandshakeTimeout <= 0 {
		return fmt.Errorf("%s.handshake_timeout must be > 0", prefix)
	}
	if f.WriteTimeout <= 0 {
		return fmt.Errorf("%s.write_timeout must be > 0", prefix)
	}
	if f.ReadLimit < 0 {
		return fmt.Errorf("%s.read_limit must be >= 0", prefix)
	}
	return nil
}

func (db *DBConfig) validate(prefix string) error {
	if db.Host == "" {
		return fmt.Errorf("%s.host is required", prefix)
	}
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.Password == "" {
		return fmt.Errorf("%s.password is required", prefix)
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns (%d) cannot exceed max_conns (%d)", prefix, db.MinConns, db.MaxConns)
	}
	if db.ConnectTimeout <= 0 {
		return fmt.Errorf("%s.connect_timeout must be > 0", prefix)
	}
	return nil
}
