package connection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// ClientConfig configures the WebSocket transport.
type ClientConfig struct {
	HandshakeTimeout  time.Duration // Max time for the opening handshake
	WriteTimeout      time.Duration // Write deadline for sends
	CloseGrace        time.Duration // Wait for the peer's close frame before dropping the socket
	ReadLimit         int64         // Max inbound message size (0 = unlimited)
	EnableCompression bool          // Negotiate permessage-deflate
	Header            http.Header   // Extra handshake headers
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		HandshakeTimeout: 10 * time.Second,
		WriteTimeout:     5 * time.Second,
		CloseGrace:       time.Second,
		ReadLimit:        4 << 20,
	}
}

// WSTransport is a Transport backed by gorilla/websocket.
type WSTransport struct {
	cfg    ClientConfig
	logger *slog.Logger
}

// NewWSTransport creates a WebSocket transport.
func NewWSTransport(cfg ClientConfig, logger *slog.Logger) *WSTransport {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultClientConfig()
	if cfg.HandshakeTimeout == 0 {
		cfg.HandshakeTimeout = def.HandshakeTimeout
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	if cfg.CloseGrace == 0 {
		cfg.CloseGrace = def.CloseGrace
	}
	return &WSTransport{cfg: cfg, logger: logger.With("component", "ws_transport")}
}

// Open validates rawURL and dials in the background.
func (t *WSTransport) Open(rawURL string, opts Options, cb Callbacks) (Handle, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedScheme, u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("%w: missing host in %q", ErrInvalidURL, rawURL)
	}

	ctx, cancel := context.WithCancel(context.Background())
	h := &wsHandle{
		cfg:    t.cfg,
		logger: t.logger,
		url:    u.String(),
		opts:   opts,
		cb:     cb,
		ctx:    ctx,
		cancel: cancel,
	}
	go h.run()
	return h, nil
}

// wsHandle is one connection attempt and, once dialed, its socket.
type wsHandle struct {
	cfg    ClientConfig
	logger *slog.Logger
	url    string
	opts   Options
	cb     Callbacks

	ctx    context.Context
	cancel context.CancelFunc

	// Write serialization
	writeMu sync.Mutex

	mu      sync.Mutex
	conn    *websocket.Conn
	closing bool
	grace   *time.Timer

	closeOnce sync.Once
}

func (h *wsHandle) run() {
	dialer := websocket.Dialer{
		Proxy:             http.ProxyFromEnvironment,
		HandshakeTimeout:  h.cfg.HandshakeTimeout,
		Subprotocols:      h.opts.Protocols,
		EnableCompression: h.cfg.EnableCompression,
	}

	conn, _, err := dialer.DialContext(h.ctx, h.url, h.cfg.Header)
	if err != nil {
		if h.ctx.Err() == nil {
			h.cb.OnError(fmt.Errorf("dial %s: %w", h.url, err))
		}
		h.finish(CloseInfo{Code: CloseAbnormal, Reason: "dial failed"})
		return
	}

	h.mu.Lock()
	if h.closing {
		h.mu.Unlock()
		conn.Close()
		h.finish(CloseInfo{Code: CloseAbnormal, Reason: "closed before open"})
		return
	}
	h.conn = conn
	h.mu.Unlock()

	if h.cfg.ReadLimit > 0 {
		conn.SetReadLimit(h.cfg.ReadLimit)
	}

	h.logger.Debug("websocket connected",
		"url", h.url,
		"subprotocol", conn.Subprotocol(),
		"binary_type", h.opts.BinaryType,
	)
	h.cb.OnOpen()
	h.readLoop(conn)
}

// readLoop delivers frames until the socket fails or closes.
func (h *wsHandle) readLoop(conn *websocket.Conn) {
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			info := h.closeInfo(err)
			conn.Close()
			h.finish(info)
			return
		}
		h.cb.OnMessage(Frame{Data: data, Binary: msgType == websocket.BinaryMessage})
	}
}

func (h *wsHandle) closeInfo(err error) CloseInfo {
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		return CloseInfo{Code: ce.Code, Reason: ce.Text, WasClean: ce.Code != CloseAbnormal}
	}

	h.mu.Lock()
	closing := h.closing
	h.mu.Unlock()
	if !closing {
		h.cb.OnError(fmt.Errorf("read: %w", err))
	}
	return CloseInfo{Code: CloseAbnormal, Reason: err.Error()}
}

func (h *wsHandle) finish(info CloseInfo) {
	h.closeOnce.Do(func() {
		h.cancel()
		h.mu.Lock()
		if h.grace != nil {
			h.grace.Stop()
		}
		h.mu.Unlock()
		h.cb.OnClose(info)
	})
}

// Send writes one frame.
func (h *wsHandle) Send(f Frame) error {
	h.mu.Lock()
	conn, closing := h.conn, h.closing
	h.mu.Unlock()
	if closing {
		return ErrHandleClosed
	}
	if conn == nil {
		return ErrNotConnected
	}

	msgType := websocket.TextMessage
	if f.Binary {
		msgType = websocket.BinaryMessage
	}

	h.writeMu.Lock()
	defer h.writeMu.Unlock()

	conn.SetWriteDeadline(time.Now().Add(h.cfg.WriteTimeout))
	return conn.WriteMessage(msgType, f.Data)
}

// Close sends a close frame and drops the socket if the peer does not
// answer within the grace period. A handle still dialing is abandoned.
func (h *wsHandle) Close(code int, reason string) error {
	h.mu.Lock()
	if h.closing {
		h.mu.Unlock()
		return nil
	}
	h.closing = true
	conn := h.conn
	if conn != nil {
		h.grace = time.AfterFunc(h.cfg.CloseGrace, func() { conn.Close() })
	}
	h.mu.Unlock()

	if conn == nil {
		h.cancel()
		return nil
	}

	err := conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason),
		time.Now().Add(h.cfg.WriteTimeout),
	)
	if err != nil {
		conn.Close()
		return fmt.Errorf("write close frame: %w", err)
	}
	return nil
}
