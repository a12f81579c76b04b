package connection

import (
	"encoding/json"
	"math"
	"testing"
	"time"
)

func TestReconnectDelay(t *testing.T) {
	cfg := DefaultConfig()

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 1000 * time.Millisecond},
		{1, 1000 * time.Millisecond},
		{2, 1500 * time.Millisecond},
		{3, 2250 * time.Millisecond},
		{4, 3375 * time.Millisecond},
		{9, 25628906250 * time.Nanosecond},
		{10, 30 * time.Second},
		{100, 30 * time.Second},
		{math.MaxInt32, 30 * time.Second},
	}

	for _, tt := range tests {
		if got := cfg.ReconnectDelay(tt.attempt); got != tt.want {
			t.Errorf("ReconnectDelay(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestReconnectDelay_MatchesFormula(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ReconnectInterval = 250 * time.Millisecond
	cfg.MaxReconnectInterval = 20 * time.Second
	cfg.ReconnectDecay = 2

	for n := 1; n <= 20; n++ {
		want := math.Min(float64(cfg.MaxReconnectInterval), float64(cfg.ReconnectInterval)*math.Pow(2, float64(n-1)))
		if got := cfg.ReconnectDelay(n); got != time.Duration(want) {
			t.Errorf("ReconnectDelay(%d) = %v, want %v", n, got, time.Duration(want))
		}
		if n > 1 && cfg.ReconnectDelay(n) < cfg.ReconnectDelay(n-1) {
			t.Errorf("ReconnectDelay not monotonic at %d", n)
		}
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"max below initial", func(c *Config) { c.MaxReconnectInterval = 500 * time.Millisecond }, true},
		{"decay of one", func(c *Config) { c.ReconnectDecay = 1 }, true},
		{"zero timeout", func(c *Config) { c.TimeoutInterval = 0 }, true},
		{"negative attempts", func(c *Config) { c.MaxReconnectAttempts = -1 }, true},
		{"zero attempts", func(c *Config) { c.MaxReconnectAttempts = 0 }, false},
		{"pong not below interval", func(c *Config) { c.PongTimeout = c.HeartbeatInterval }, true},
		{"bad binary type", func(c *Config) { c.BinaryType = "text" }, true},
		{"blob binary type", func(c *Config) { c.BinaryType = BinaryBlob }, false},
		{"unknown strategy", func(c *Config) { c.Strategy = "linear" }, true},
		{"empty url allowed", func(c *Config) { c.URL = "" }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_Retryable(t *testing.T) {
	cfg := DefaultConfig()
	for _, code := range []int{1000, 1001, 1005, 4000, 4001, 4002} {
		if cfg.Retryable(code) {
			t.Errorf("Retryable(%d) = true, want false", code)
		}
	}
	for _, code := range []int{1006, 1011, 1012, 4003} {
		if !cfg.Retryable(code) {
			t.Errorf("Retryable(%d) = false, want true", code)
		}
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		data     string
		wantKind inboundKind
		wantErr  bool
	}{
		{"data push", `{"arg":{"channel":"tickers","instId":"BTC-USDT"},"data":[]}`, inboundData, false},
		{"subscribe ack", `{"event":"subscribe","arg":{"channel":"tickers","instId":"BTC-USDT"}}`, inboundData, false},
		{"json pong", `{"event":"pong"}`, inboundPong, false},
		{"bare pong", "pong\n", inboundPong, false},
		{"error", `{"event":"error","code":"60012","msg":"Invalid request"}`, inboundError, false},
		{"numeric error code", `{"event":"error","code":60012,"msg":"x"}`, inboundError, false},
		{"array", `[1,2,3]`, inboundData, false},
		{"malformed", `{"event":`, inboundData, true},
		{"plain text", `hello`, inboundData, true},
		{"empty", ``, inboundData, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kind, _, err := classify([]byte(tt.data))
			if (err != nil) != tt.wantErr {
				t.Fatalf("classify error = %v, wantErr %v", err, tt.wantErr)
			}
			if kind != tt.wantKind {
				t.Errorf("kind = %v, want %v", kind, tt.wantKind)
			}
		})
	}
}

func TestClassify_ErrorFields(t *testing.T) {
	_, ctrl, err := classify([]byte(`{"event":"error","code":60012,"msg":"Invalid request","connId":"a4d3ae55"}`))
	if err != nil {
		t.Fatalf("classify failed: %v", err)
	}
	if ctrl.Code != "60012" || ctrl.Msg != "Invalid request" || ctrl.ConnID != "a4d3ae55" {
		t.Errorf("control = %+v", ctrl)
	}
}

func TestEncodePayload(t *testing.T) {
	tests := []struct {
		name    string
		payload any
		want    string
		wantErr bool
	}{
		{"string", `{"op":"ping"}`, `{"op":"ping"}`, false},
		{"bytes", []byte("raw"), "raw", false},
		{"raw message", json.RawMessage(`{"a":1}`), `{"a":1}`, false},
		{"struct", Request{Op: OpUnsubscribe}, `{"op":"unsubscribe"}`, false},
		{"map", map[string]int{"n": 1}, `{"n":1}`, false},
		{"nil", nil, "", true},
		{"unencodable", make(chan int), "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := encodePayload(tt.payload)
			if (err != nil) != tt.wantErr {
				t.Fatalf("encodePayload error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && string(got) != tt.want {
				t.Errorf("encodePayload = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if !cfg.Reconnect {
		t.Error("Reconnect should default to true")
	}
	if cfg.ReconnectInterval != time.Second || cfg.MaxReconnectInterval != 30*time.Second {
		t.Errorf("intervals = %v/%v", cfg.ReconnectInterval, cfg.MaxReconnectInterval)
	}
	if cfg.ReconnectDecay != 1.5 {
		t.Errorf("ReconnectDecay = %v, want 1.5", cfg.ReconnectDecay)
	}
	if cfg.TimeoutInterval != 2*time.Second {
		t.Errorf("TimeoutInterval = %v, want 2s", cfg.TimeoutInterval)
	}
	if cfg.HeartbeatInterval != 30*time.Second || cfg.PongTimeout != 10*time.Second {
		t.Errorf("heartbeat = %v/%v", cfg.HeartbeatInterval, cfg.PongTimeout)
	}

	cc := DefaultClientConfig()
	if cc.WriteTimeout != 5*time.Second {
		t.Errorf("WriteTimeout = %v, want 5s", cc.WriteTimeout)
	}
	if cc.CloseGrace <= 0 {
		t.Errorf("CloseGrace = %v, want > 0", cc.CloseGrace)
	}
}

func TestStateString(t *testing.T) {
	tests := map[State]string{
		StateDisconnected: "disconnected",
		StateConnecting:   "connecting",
		StateOpen:         "open",
		StateClosing:      "closing",
		State(9):          "state(9)",
	}
	for s, want := range tests {
		if got := s.String(); got != want {
			t.Errorf("State(%d).String() = %q, want %q", int(s), got, want)
		}
	}
}
