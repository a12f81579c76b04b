package connection

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"time"
)

// Errors
var (
	ErrNotOpen           = errors.New("connection not open")
	ErrNotConnected      = errors.New("not connected")
	ErrHandleClosed      = errors.New("handle closed")
	ErrInvalidURL        = errors.New("invalid url")
	ErrUnsupportedScheme = errors.New("unsupported url scheme")
)

// Close codes used by the controller. Values follow RFC 6455.
const (
	CloseNormal    = 1000
	CloseGoingAway = 1001
	CloseNoStatus  = 1005
	CloseAbnormal  = 1006
)

// DefaultURL is the OKX demo-trading public endpoint.
const DefaultURL = "wss://wspap.okx.com:8443/ws/v5/public?brokerId=9999"

// Strategy selects how reconnect delays are computed.
type Strategy string

const (
	StrategyExponential Strategy = "exponential" // initial × decay^(n-1), capped
	StrategyFixed       Strategy = "fixed"       // always the initial delay
	StrategyNone        Strategy = "none"        // never reconnect
)

// Binary frame representations accepted in Config.BinaryType.
const (
	BinaryArrayBuffer = "arraybuffer"
	BinaryBlob        = "blob"
)

// State is the controller's connection phase.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateOpen
	StateClosing
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Config configures a Controller. It is not modified after construction.
type Config struct {
	URL                    string
	Protocols              []string
	Reconnect              bool
	ReconnectInterval      time.Duration // delay before the first reconnect
	MaxReconnectInterval   time.Duration // cap on any reconnect delay
	ReconnectDecay         float64       // multiplier between consecutive delays
	TimeoutInterval        time.Duration // connect timeout
	MaxReconnectAttempts   int
	HeartbeatInterval      time.Duration
	PongTimeout            time.Duration
	NonRetryableCloseCodes []int
	BinaryType             string
	Strategy               Strategy
}

// DefaultConfig returns the standard OKX public feed settings.
func DefaultConfig() Config {
	return Config{
		URL:                    DefaultURL,
		Reconnect:              true,
		ReconnectInterval:      1 * time.Second,
		MaxReconnectInterval:   30 * time.Second,
		ReconnectDecay:         1.5,
		TimeoutInterval:        2 * time.Second,
		MaxReconnectAttempts:   10,
		HeartbeatInterval:      30 * time.Second,
		PongTimeout:            10 * time.Second,
		NonRetryableCloseCodes: []int{1000, 1001, 1005, 4000, 4001, 4002},
		BinaryType:             BinaryArrayBuffer,
		Strategy:               StrategyExponential,
	}
}

// Validate checks the numeric settings. The URL is checked when a
// connection is attempted so that a bad URL surfaces as an error event.
func (c Config) Validate() error {
	if c.ReconnectInterval <= 0 {
		return errors.New("reconnect_interval must be > 0")
	}
	if c.MaxReconnectInterval < c.ReconnectInterval {
		return fmt.Errorf("max_reconnect_interval (%v) cannot be less than reconnect_interval (%v)",
			c.MaxReconnectInterval, c.ReconnectInterval)
	}
	if c.ReconnectDecay <= 1 {
		return fmt.Errorf("reconnect_decay must be > 1, got %v", c.ReconnectDecay)
	}
	if c.TimeoutInterval <= 0 {
		return errors.New("timeout_interval must be > 0")
	}
	if c.MaxReconnectAttempts < 0 {
		return errors.New("max_reconnect_attempts must be >= 0")
	}
	if c.HeartbeatInterval <= 0 {
		return errors.New("heartbeat_interval must be > 0")
	}
	if c.PongTimeout <= 0 || c.PongTimeout >= c.HeartbeatInterval {
		return fmt.Errorf("pong_timeout (%v) must be > 0 and less than heartbeat_interval (%v)",
			c.PongTimeout, c.HeartbeatInterval)
	}
	switch c.BinaryType {
	case "", BinaryArrayBuffer, BinaryBlob:
	default:
		return fmt.Errorf("binary_type must be %q or %q, got %q", BinaryArrayBuffer, BinaryBlob, c.BinaryType)
	}
	switch c.Strategy {
	case "", StrategyExponential, StrategyFixed, StrategyNone:
	default:
		return fmt.Errorf("unknown reconnect strategy %q", c.Strategy)
	}
	return nil
}

// ReconnectDelay returns the wait before reconnect attempt n (1-based):
// min(MaxReconnectInterval, ReconnectInterval × ReconnectDecay^(n-1)).
func (c Config) ReconnectDelay(n int) time.Duration {
	if n < 1 {
		n = 1
	}
	if c.Strategy == StrategyFixed {
		return min(c.ReconnectInterval, c.MaxReconnectInterval)
	}
	d := float64(c.ReconnectInterval) * math.Pow(c.ReconnectDecay, float64(n-1))
	if math.IsInf(d, 0) || math.IsNaN(d) || d >= float64(c.MaxReconnectInterval) {
		return c.MaxReconnectInterval
	}
	return time.Duration(d)
}

// Retryable reports whether a close with code may trigger a reconnect.
func (c Config) Retryable(code int) bool {
	return !slices.Contains(c.NonRetryableCloseCodes, code)
}

func (c Config) reconnectEnabled() bool {
	return c.Reconnect && c.Strategy != StrategyNone
}

// Frame is one WebSocket data frame.
type Frame struct {
	Data   []byte
	Binary bool
}

// CloseInfo describes how a transport connection ended.
type CloseInfo struct {
	Code     int
	Reason   string
	WasClean bool
}
