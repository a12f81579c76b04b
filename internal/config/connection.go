package config

import "github.com/rickgao/okx-feed/internal/connection"

// ConnectionConfig maps the feed section onto controller settings.
// Reconnect is on when the reconnect key is unset or true and the strategy
// is not none.
func (f FeedSection) ConnectionConfig() connection.Config {
	strategy := connection.Strategy(f.Strategy)
	reconnect := f.Reconnect == nil || *f.Reconnect
	return connection.Config{
		URL:                    f.URL,
		Protocols:              f.Protocols,
		Reconnect:              reconnect && strategy != connection.StrategyNone,
		ReconnectInterval:      f.ReconnectInterval.Std(),
		MaxReconnectInterval:   f.MaxReconnectInterval.Std(),
		ReconnectDecay:         f.ReconnectDecay,
		TimeoutInterval:        f.TimeoutInterval.Std(),
		MaxReconnectAttempts:   f.MaxReconnectAttempts,
		HeartbeatInterval:      f.HeartbeatInterval.Std(),
		PongTimeout:            f.PongTimeout.Std(),
		NonRetryableCloseCodes: f.NonRetryableCloseCodes,
		BinaryType:             f.BinaryType,
		Strategy:               strategy,
	}
}

// TransportConfig maps the feed section onto WebSocket dialer settings.
func (f FeedSection) TransportConfig() connection.ClientConfig {
	cfg := connection.DefaultClientConfig()
	cfg.HandshakeTimeout = f.HandshakeTimeout.Std()
	cfg.WriteTimeout = f.WriteTimeout.Std()
	cfg.ReadLimit = f.ReadLimit
	cfg.EnableCompression = f.EnableCompression
	return cfg
}
