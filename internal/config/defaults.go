package config

import (
	"time"

	"github.com/rickgao/okx-feed/internal/connection"
)

// Default values for optional configuration fields.
const (
	DefaultInstanceID           = "okx-feed"
	DefaultStrategy             = string(connection.StrategyExponential)
	DefaultReconnectInterval    = 1 * time.Second
	DefaultMaxReconnectInterval = 30 * time.Second
	DefaultReconnectDecay       = 1.5
	DefaultTimeoutInterval      = 2 * time.Second
	DefaultMaxReconnectAttempts = 10
	DefaultHeartbeatInterval    = 30 * time.Second
	DefaultPongTimeout          = 10 * time.Second
	DefaultBinaryType           = connection.BinaryArrayBuffer
	DefaultHandshakeTimeout     = 10 * time.Second
	DefaultWriteTimeout         = 5 * time.Second
	DefaultReadLimit            = 4 << 20
	DefaultDBPort               = 5432
	DefaultDBSSLMode            = "prefer"
	DefaultMaxConns             = 10
	DefaultMinConns             = 2
	DefaultDBConnectTimeout     = 30 * time.Second
	DefaultBatchSize            = 1000
	DefaultFlushInterval        = 1 * time.Second
	DefaultBufferSize           = 10000
	DefaultMaxBufferSize        = 1 << 20
	DefaultLogLevel             = "info"
	DefaultLogFormat            = "text"
)

// DefaultNonRetryableCloseCodes lists close codes that end the session
// instead of triggering a reconnect.
var DefaultNonRetryableCloseCodes = []int{1000, 1001, 1005, 4000, 4001, 4002}

func (c *FeedConfig) applyDefaults() {
	if c.Instance.ID == "" {
		c.Instance.ID = DefaultInstanceID
	}

	// Feed defaults
	f := &c.Feed
	if f.URL == "" {
		f.URL = connection.DefaultURL
	}
	if f.Reconnect == nil {
		reconnect := true
		f.Reconnect = &reconnect
	}
	if f.Strategy == "" {
		f.Strategy = DefaultStrategy
	}
	setDuration(&f.ReconnectInterval, DefaultReconnectInterval)
	setDuration(&f.MaxReconnectInterval, DefaultMaxReconnectInterval)
	if f.ReconnectDecay == 0 {
		f.ReconnectDecay = DefaultReconnectDecay
	}
	setDuration(&f.TimeoutInterval, DefaultTimeoutInterval)
	if f.MaxReconnectAttempts == 0 {
		f.MaxReconnectAttempts = DefaultMaxReconnectAttempts
	}
	setDuration(&f.HeartbeatInterval, DefaultHeartbeatInterval)
	setDuration(&f.PongTimeout, DefaultPongTimeout)
	if f.NonRetryableCloseCodes == nil {
		f.NonRetryableCloseCodes = append([]int(nil), DefaultNonRetryableCloseCodes...)
	}
	if f.BinaryType == "" {
		f.BinaryType = DefaultBinaryType
	}
	setDuration(&f.HandshakeTimeout, DefaultHandshakeTimeout)
	setDuration(&f.WriteTimeout, DefaultWriteTimeout)
	if f.ReadLimit == 0 {
		f.ReadLimit = DefaultReadLimit
	}

	// Database defaults
	db := &c.Database.Timescale
	if db.Port == 0 {
		db.Port = DefaultDBPort
	}
	if db.SSLMode == "" {
		db.SSLMode = DefaultDBSSLMode
	}
	if db.MaxConns == 0 {
		db.MaxConns = DefaultMaxConns
	}
	if db.MinConns == 0 {
		db.MinConns = DefaultMinConns
	}
	setDuration(&db.ConnectTimeout, DefaultDBConnectTimeout)

	// Writers defaults
	if c.Writers.BatchSize == 0 {
		c.Writers.BatchSize = DefaultBatchSize
	}
	setDuration(&c.Writers.FlushInterval, DefaultFlushInterval)
	if c.Writers.BufferSize == 0 {
		c.Writers.BufferSize = DefaultBufferSize
	}
	if c.Writers.MaxBufferSize == 0 {
		c.Writers.MaxBufferSize = DefaultMaxBufferSize
	}

	if c.Logging.Level == "" {
		c.Logging.Level = DefaultLogLevel
	}
	if c.Logging.Format == "" {
		c.Logging.Format = DefaultLogFormat
	}
}

func setDuration(d *Duration, def time.Duration) {
	if *d == 0 {
		*d = Duration(def)
	}
}
