package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rickgao/okx-feed/internal/connection"
)

func TestLoad(t *testing.T) {
	yaml := `
instance:
  id: feed-a
feed:
  url: wss://ws.okx.com:8443/ws/v5/public
  reconnect_interval: 500ms
  heartbeat_interval: 20s
subscriptions:
  - channel: tickers
    inst_id: BTC-USDT
  - channel: trades
    inst_id: ETH-USDT
database:
  enabled: true
  timescale:
    host: localhost
    name: market
    user: feed
    password: pw
`
	path := writeTempFile(t, "config.yaml", yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Instance.ID != "feed-a" {
		t.Errorf("Instance.ID = %q, want %q", cfg.Instance.ID, "feed-a")
	}
	if cfg.Feed.ReconnectInterval.Std() != 500*time.Millisecond {
		t.Errorf("Feed.ReconnectInterval = %v, want 500ms", cfg.Feed.ReconnectInterval)
	}
	if len(cfg.Subscriptions) != 2 || cfg.Subscriptions[1].InstID != "ETH-USDT" {
		t.Errorf("Subscriptions = %+v", cfg.Subscriptions)
	}
	if !cfg.Database.Enabled || cfg.Database.Timescale.Host != "localhost" {
		t.Errorf("Database = %+v", cfg.Database)
	}
}

func TestLoadTOML(t *testing.T) {
	toml := `
[instance]
id = "feed-toml"

[feed]
strategy = "fixed"
timeout_interval = "3s"

[[subscriptions]]
channel = "books5"
inst_id = "BTC-USDT"
`
	path := writeTempFile(t, "config.toml", toml)

	cfg, err := LoadAndValidate(path)
	if err != nil {
		t.Fatalf("LoadAndValidate failed: %v", err)
	}
	if cfg.Instance.ID != "feed-toml" {
		t.Errorf("Instance.ID = %q", cfg.Instance.ID)
	}
	if cfg.Feed.Strategy != "fixed" || cfg.Feed.TimeoutInterval.Std() != 3*time.Second {
		t.Errorf("Feed = %+v", cfg.Feed)
	}
	if len(cfg.Subscriptions) != 1 || cfg.Subscriptions[0].Channel != "books5" {
		t.Errorf("Subscriptions = %+v", cfg.Subscriptions)
	}
}

func TestLoadUnsupportedExtension(t *testing.T) {
	path := writeTempFile(t, "config.json", "{}")
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for .json config")
	}
}

func TestLoadInvalidDuration(t *testing.T) {
	path := writeTempFile(t, "config.yaml", "feed:\n  pong_timeout: soon\n")
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for invalid duration")
	}
}

func TestLoadWithEnvSubstitution(t *testing.T) {
	t.Setenv("TEST_DB_PASSWORD", "secret123")

	yaml := `
database:
  timescale:
    password: ${TEST_DB_PASSWORD}
`
	cfg, err := Load(writeTempFile(t, "config.yaml", yaml))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Database.Timescale.Password != "secret123" {
		t.Errorf("Password = %q, want %q", cfg.Database.Timescale.Password, "secret123")
	}
}

func TestLoadEnvFile(t *testing.T) {
	envPath := writeTempFile(t, ".env", "OKX_FEED_TEST_HOST=db.internal\nOKX_FEED_TEST_SET=from-file\n")
	t.Setenv("OKX_FEED_TEST_SET", "from-env")
	t.Setenv("OKX_FEED_TEST_HOST", "")
	os.Unsetenv("OKX_FEED_TEST_HOST")

	if err := LoadEnvFile(envPath); err != nil {
		t.Fatalf("LoadEnvFile failed: %v", err)
	}
	if got := os.Getenv("OKX_FEED_TEST_HOST"); got != "db.internal" {
		t.Errorf("OKX_FEED_TEST_HOST = %q, want db.internal", got)
	}
	if got := os.Getenv("OKX_FEED_TEST_SET"); got != "from-env" {
		t.Errorf("OKX_FEED_TEST_SET = %q, existing variables must win", got)
	}

	if err := LoadEnvFile(""); err != nil {
		t.Errorf("LoadEnvFile(\"\") = %v, want nil", err)
	}
	if err := LoadEnvFile(filepath.Join(t.TempDir(), "missing.env")); err == nil {
		t.Error("expected error for missing env file")
	}
}

func TestLoadWithDefaults(t *testing.T) {
	cfg, err := LoadWithDefaults(writeTempFile(t, "config.yaml", "instance:\n  id: x\n"))
	if err != nil {
		t.Fatalf("LoadWithDefaults failed: %v", err)
	}

	if cfg.Feed.URL != connection.DefaultURL {
		t.Errorf("Feed.URL = %q, want %q", cfg.Feed.URL, connection.DefaultURL)
	}
	if cfg.Feed.ReconnectDecay != DefaultReconnectDecay {
		t.Errorf("Feed.ReconnectDecay = %v, want %v", cfg.Feed.ReconnectDecay, DefaultReconnectDecay)
	}
	if cfg.Feed.PongTimeout.Std() != DefaultPongTimeout {
		t.Errorf("Feed.PongTimeout = %v, want %v", cfg.Feed.PongTimeout, DefaultPongTimeout)
	}
	if len(cfg.Feed.NonRetryableCloseCodes) != 6 {
		t.Errorf("NonRetryableCloseCodes = %v", cfg.Feed.NonRetryableCloseCodes)
	}
	if cfg.Database.Timescale.Port != DefaultDBPort {
		t.Errorf("Timescale.Port = %d, want %d", cfg.Database.Timescale.Port, DefaultDBPort)
	}
	if cfg.Writers.BatchSize != DefaultBatchSize {
		t.Errorf("Writers.BatchSize = %d, want %d", cfg.Writers.BatchSize, DefaultBatchSize)
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "text" {
		t.Errorf("Logging = %+v", cfg.Logging)
	}
}

func TestApplyDefaultsKeepsExplicitEmptyCodes(t *testing.T) {
	cfg, err := LoadWithDefaults(writeTempFile(t, "config.yaml", "feed:\n  non_retryable_close_codes: []\n"))
	if err != nil {
		t.Fatalf("LoadWithDefaults failed: %v", err)
	}
	if cfg.Feed.NonRetryableCloseCodes == nil || len(cfg.Feed.NonRetryableCloseCodes) != 0 {
		t.Errorf("NonRetryableCloseCodes = %v, want explicit empty list", cfg.Feed.NonRetryableCloseCodes)
	}
}

func TestValidate(t *testing.T) {
	valid := func() *FeedConfig {
		cfg := &FeedConfig{
			Subscriptions: []SubscriptionConfig{{Channel: "tickers", InstID: "BTC-USDT"}},
			Database: DatabaseConfig{
				Enabled: true,
				Timescale: DBConfig{
					Host: "localhost", Name: "market", User: "feed", Password: "pw",
				},
			},
		}
		cfg.applyDefaults()
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*FeedConfig)
		wantErr string
	}{
		{"valid", func(c *FeedConfig) {}, ""},
		{"missing instance id", func(c *FeedConfig) { c.Instance.ID = "" }, "instance.id"},
		{"http url", func(c *FeedConfig) { c.Feed.URL = "https://ws.okx.com" }, "feed.url"},
		{"url without host", func(c *FeedConfig) { c.Feed.URL = "wss:///ws" }, "feed.url"},
		{"bad strategy", func(c *FeedConfig) { c.Feed.Strategy = "linear" }, "feed.strategy"},
		{"decay too small", func(c *FeedConfig) { c.Feed.ReconnectDecay = 1 }, "feed.reconnect_decay"},
		{"pong not below heartbeat", func(c *FeedConfig) { c.Feed.PongTimeout = c.Feed.HeartbeatInterval }, "feed.pong_timeout"},
		{"bad binary type", func(c *FeedConfig) { c.Feed.BinaryType = "text" }, "feed.binary_type"},
		{"empty channel", func(c *FeedConfig) { c.Subscriptions[0].Channel = "" }, "subscriptions[0].channel"},
		{"duplicate subscription", func(c *FeedConfig) {
			c.Subscriptions = append(c.Subscriptions, c.Subscriptions[0])
		}, "subscriptions[1]"},
		{"missing db host", func(c *FeedConfig) { c.Database.Timescale.Host = "" }, "database.timescale.host"},
		{"db disabled skips db checks", func(c *FeedConfig) {
			c.Database.Enabled = false
			c.Database.Timescale.Host = ""
		}, ""},
		{"min conns above max", func(c *FeedConfig) { c.Database.Timescale.MinConns = 20 }, "min_conns"},
		{"batch size", func(c *FeedConfig) { c.Writers.BatchSize = 0 }, "writers.batch_size"},
		{"max buffer below buffer", func(c *FeedConfig) { c.Writers.MaxBufferSize = 5 }, "writers.max_buffer_size"},
		{"health port", func(c *FeedConfig) { c.Health.Port = 70000 }, "health.port"},
		{"log level", func(c *FeedConfig) { c.Logging.Level = "trace" }, "logging.level"},
		{"log format", func(c *FeedConfig) { c.Logging.Format = "xml" }, "logging.format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() = %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestConnectionConfig(t *testing.T) {
	cfg := &FeedConfig{}
	cfg.applyDefaults()

	got := cfg.Feed.ConnectionConfig()
	want := connection.DefaultConfig()
	if got.ReconnectInterval != want.ReconnectInterval || got.MaxReconnectInterval != want.MaxReconnectInterval {
		t.Errorf("reconnect intervals = %v/%v, want %v/%v",
			got.ReconnectInterval, got.MaxReconnectInterval, want.ReconnectInterval, want.MaxReconnectInterval)
	}
	if got.TimeoutInterval != want.TimeoutInterval || got.PongTimeout != want.PongTimeout {
		t.Errorf("timeouts = %v/%v", got.TimeoutInterval, got.PongTimeout)
	}
	if !got.Reconnect || got.Strategy != connection.StrategyExponential {
		t.Errorf("Reconnect = %v, Strategy = %q", got.Reconnect, got.Strategy)
	}
	if err := got.Validate(); err != nil {
		t.Errorf("mapped config invalid: %v", err)
	}

	cfg.Feed.Strategy = "none"
	if cfg.Feed.ConnectionConfig().Reconnect {
		t.Error("strategy none should disable reconnect")
	}

	tc := cfg.Feed.TransportConfig()
	if tc.HandshakeTimeout != DefaultHandshakeTimeout || tc.ReadLimit != DefaultReadLimit {
		t.Errorf("TransportConfig = %+v", tc)
	}
}

func TestConnectionConfigReconnectKey(t *testing.T) {
	yaml := `
feed:
  strategy: exponential
  reconnect: false
`
	cfg, err := LoadWithDefaults(writeTempFile(t, "config.yaml", yaml))
	if err != nil {
		t.Fatalf("LoadWithDefaults failed: %v", err)
	}
	got := cfg.Feed.ConnectionConfig()
	if got.Reconnect {
		t.Error("reconnect: false should disable reconnect under the exponential strategy")
	}
	if got.Strategy != connection.StrategyExponential {
		t.Errorf("Strategy = %q, want exponential", got.Strategy)
	}

	cfg, err = LoadWithDefaults(writeTempFile(t, "config.yaml", "feed:\n  strategy: fixed\n"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Feed.Reconnect == nil || !*cfg.Feed.Reconnect {
		t.Errorf("Feed.Reconnect = %v, want default true", cfg.Feed.Reconnect)
	}
	if !cfg.Feed.ConnectionConfig().Reconnect {
		t.Error("unset reconnect key should leave reconnect enabled")
	}

	if !(FeedSection{Strategy: "fixed"}).ConnectionConfig().Reconnect {
		t.Error("nil Reconnect should map to enabled")
	}
}

func TestEncodeRoundTripsDurations(t *testing.T) {
	cfg := &FeedConfig{}
	cfg.applyDefaults()

	for _, name := range []string{"out.yaml", "out.toml"} {
		data, err := Encode(cfg, name)
		if err != nil {
			t.Fatalf("Encode(%s) failed: %v", name, err)
		}
		if !strings.Contains(string(data), "1.5s") && !strings.Contains(string(data), "30s") {
			t.Errorf("Encode(%s) did not render durations as text:\n%s", name, data)
		}
		back, err := Load(writeTempFile(t, name, string(data)))
		if err != nil {
			t.Fatalf("Load(%s) failed: %v", name, err)
		}
		if back.Feed.HeartbeatInterval != cfg.Feed.HeartbeatInterval {
			t.Errorf("%s HeartbeatInterval = %v, want %v", name, back.Feed.HeartbeatInterval, cfg.Feed.HeartbeatInterval)
		}
	}
}

func writeTempFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	return path
}
