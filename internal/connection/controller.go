package connection

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/rickgao/okx-feed/internal/clock"
	"github.com/rickgao/okx-feed/internal/events"
	"github.com/rickgao/okx-feed/internal/heartbeat"
	"github.com/rickgao/okx-feed/internal/stats"
	"github.com/rickgao/okx-feed/internal/subscription"
)

// Abort reasons for closes the controller forces itself. Such closes are
// reported as CloseAbnormal so they always take the reconnect path.
const (
	reasonConnectTimeout = "connect timeout"
	reasonPongTimeout    = "pong timeout"
)

// Option customizes a Controller.
type Option func(*Controller)

// WithClock sets the clock used for every timer.
func WithClock(clk clock.Clock) Option {
	return func(c *Controller) { c.clock = clk }
}

// WithHub publishes events on hub instead of a private one.
func WithHub(hub *events.Hub) Option {
	return func(c *Controller) { c.hub = hub }
}

// Controller owns one logical connection: it connects, reconnects with
// backoff, keeps subscriptions across reconnects and watches liveness.
//
// State changes happen under mu. Side effects (event publication, transport
// writes and closes) are queued and run in order outside the lock by
// whichever goroutine finds the queue idle, so event handlers may call back
// into the controller.
type Controller struct {
	cfg       Config
	transport Transport
	clock     clock.Clock
	logger    *slog.Logger
	hub       *events.Hub
	stats     *stats.Tracker
	subs      *subscription.Set
	heartbeat *heartbeat.Monitor

	mu             sync.Mutex
	state          State
	handle         Handle
	generation     uint64
	session        uuid.UUID
	attempts       int
	forcedClose    bool
	timedOut       bool
	abortReason    string
	connectTimer   clock.Timer
	reconnectTimer clock.Timer

	outbox   []func()
	draining bool
}

// NewController creates a disconnected controller.
func NewController(cfg Config, transport Transport, logger *slog.Logger, opts ...Option) (*Controller, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid connection config: %w", err)
	}
	if cfg.BinaryType == "" {
		cfg.BinaryType = BinaryArrayBuffer
	}
	if cfg.Strategy == "" {
		cfg.Strategy = StrategyExponential
	}
	if logger == nil {
		logger = slog.Default()
	}

	c := &Controller{
		cfg:       cfg,
		transport: transport,
		clock:     clock.Real(),
		logger:    logger.With("component", "connection"),
		stats:     stats.NewTracker(),
		subs:      subscription.NewSet(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.hub == nil {
		c.hub = events.NewHub(logger)
	}
	c.heartbeat = heartbeat.NewMonitor(heartbeat.Config{
		Interval:    cfg.HeartbeatInterval,
		PongTimeout: cfg.PongTimeout,
	}, c.clock, logger)

	return c, nil
}

// Events returns the hub lifecycle events are published on.
func (c *Controller) Events() *events.Hub {
	return c.hub
}

// State returns the current connection phase.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Session returns the id of the current (or most recent) connection.
func (c *Controller) Session() uuid.UUID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

// Stats returns a snapshot of the connection statistics.
func (c *Controller) Stats() stats.Snapshot {
	return c.stats.Snapshot(c.clock.Now())
}

// ResetStats zeroes the statistics.
func (c *Controller) ResetStats() {
	c.stats.Reset()
}

// Healthy reports whether the connection is open and has recently received
// data.
func (c *Controller) Healthy() bool {
	return c.Stats().Healthy
}

// Subscriptions returns the desired subscriptions in sorted order.
func (c *Controller) Subscriptions() []subscription.Subscription {
	return c.subs.Slice()
}

// Connect starts a connection attempt. It does nothing while connecting or
// open.
func (c *Controller) Connect() {
	c.mu.Lock()
	if c.state == StateConnecting || c.state == StateOpen {
		c.mu.Unlock()
		return
	}
	c.forcedClose = false
	stopTimer(&c.reconnectTimer)
	c.connectLocked()
	c.unlockAndDrain()
}

// Close closes the connection and disables reconnection until the next
// Connect. A zero code means CloseNormal. Repeated calls are no-ops.
func (c *Controller) Close(code int, reason string) {
	if code == 0 {
		code = CloseNormal
	}

	c.mu.Lock()
	c.forcedClose = true
	c.heartbeat.Stop()
	stopTimer(&c.connectTimer)
	stopTimer(&c.reconnectTimer)

	if c.handle != nil && (c.state == StateConnecting || c.state == StateOpen) {
		c.logger.Info("closing connection", "session", c.session, "code", code, "reason", reason)
		c.state = StateClosing
		h := c.handle
		c.enqueue(func() { c.closeHandle(h, code, reason) })
	}
	c.unlockAndDrain()
}

// Send writes payload to the connection. []byte, string and
// json.RawMessage are sent as-is; other values are JSON-encoded. It returns
// false, and publishes an error event, if the connection is not open or the
// write fails.
func (c *Controller) Send(payload any) bool {
	data, err := encodePayload(payload)

	c.mu.Lock()
	if err != nil {
		c.enqueueError("send failed", err)
		c.unlockAndDrain()
		return false
	}
	if c.state != StateOpen || c.handle == nil {
		c.enqueueError("send failed", ErrNotOpen)
		c.unlockAndDrain()
		return false
	}
	h := c.handle
	c.unlockAndDrain()

	if err := h.Send(Frame{Data: data}); err != nil {
		c.mu.Lock()
		c.enqueueError("send failed", err)
		c.unlockAndDrain()
		return false
	}
	return true
}

// Ping sends one ping immediately, outside the heartbeat schedule.
func (c *Controller) Ping() bool {
	data, err := encodeRequest(OpPing, nil)
	if err != nil {
		return false
	}
	return c.Send(data)
}

// Subscribe adds a subscription. If the connection is open and the
// subscription is new it is sent right away; otherwise it is sent on the
// next open.
func (c *Controller) Subscribe(channel, instID string) {
	c.changeSubscription(OpSubscribe, subscription.Subscription{Channel: channel, InstID: instID})
}

// Unsubscribe removes a subscription, notifying the server if open.
func (c *Controller) Unsubscribe(channel, instID string) {
	c.changeSubscription(OpUnsubscribe, subscription.Subscription{Channel: channel, InstID: instID})
}

func (c *Controller) changeSubscription(op string, sub subscription.Subscription) {
	c.mu.Lock()
	var changed bool
	if op == OpSubscribe {
		changed = c.subs.Add(sub)
	} else {
		changed = c.subs.Remove(sub)
	}
	if changed && c.state == StateOpen && c.handle != nil {
		c.enqueueRequest(c.handle, op, []subscription.Subscription{sub})
	}
	c.unlockAndDrain()
}

// connectLocked starts a new connection generation. Caller holds mu.
func (c *Controller) connectLocked() {
	if c.state == StateClosing {
		// The previous handle's close will be ignored as stale.
		c.stats.RecordDisconnect(c.clock.Now())
	}
	stopTimer(&c.connectTimer)
	c.heartbeat.Stop()
	c.timedOut = false
	c.abortReason = ""
	c.generation++
	c.session = uuid.New()
	c.handle = nil
	c.state = StateConnecting

	gen := c.generation
	ev := events.Connecting{URL: c.cfg.URL, Attempt: c.attempts + 1, Session: c.session}
	c.enqueue(func() { c.hub.Publish(ev) })
	c.logger.Info("connecting", "url", c.cfg.URL, "attempt", ev.Attempt, "session", c.session)

	h, err := c.transport.Open(c.cfg.URL, Options{
		Protocols:  c.cfg.Protocols,
		BinaryType: c.cfg.BinaryType,
	}, c.callbacks(gen))
	if err != nil {
		c.state = StateDisconnected
		c.logger.Error("connection failed to start", "error", err, "session", c.session)
		c.enqueueError("connection failed", err)
		return
	}
	c.handle = h
	c.connectTimer = c.clock.AfterFunc(c.cfg.TimeoutInterval, func() { c.connectTimeout(gen) })
}

func (c *Controller) callbacks(gen uint64) Callbacks {
	return Callbacks{
		OnOpen:    func() { c.handleOpen(gen) },
		OnMessage: func(f Frame) { c.handleMessage(gen, f) },
		OnError:   func(err error) { c.handleError(gen, err) },
		OnClose:   func(info CloseInfo) { c.handleClose(gen, info) },
	}
}

func (c *Controller) handleOpen(gen uint64) {
	c.mu.Lock()
	// A dial that completes after the connect timeout is already being
	// closed; its close continues the backoff.
	if gen != c.generation || c.state != StateConnecting || c.timedOut {
		c.mu.Unlock()
		return
	}
	stopTimer(&c.connectTimer)
	c.state = StateOpen
	c.attempts = 0
	c.timedOut = false
	c.stats.RecordConnect(c.clock.Now())

	ev := events.Open{ReconnectCount: c.stats.ReconnectCount(), Session: c.session}
	c.enqueue(func() { c.hub.Publish(ev) })
	c.logger.Info("connected", "session", c.session, "reconnects", ev.ReconnectCount)

	c.heartbeat.Start(func() bool { return c.sendPing(gen) }, func() { c.heartbeatDead(gen) })

	if subs := c.subs.Slice(); len(subs) > 0 {
		c.logger.Debug("resubscribing", "count", len(subs), "session", c.session)
		c.enqueueRequest(c.handle, OpSubscribe, subs)
	}
	c.unlockAndDrain()
}

func (c *Controller) handleMessage(gen uint64, f Frame) {
	c.mu.Lock()
	if gen != c.generation {
		c.mu.Unlock()
		return
	}
	now := c.clock.Now()
	c.stats.RecordMessage(now)
	msg := events.Message{Data: f.Data, Binary: f.Binary, Timestamp: now, Session: c.session}

	if f.Binary {
		c.enqueue(func() { c.hub.Publish(msg) })
		c.unlockAndDrain()
		return
	}

	kind, ctrl, err := classify(f.Data)
	switch {
	case err != nil:
		c.logger.Warn("discarding malformed message", "error", err, "session", c.session)
		c.enqueueError("malformed message", err)
	case kind == inboundPong:
		c.heartbeat.NotifyPong()
	case kind == inboundError:
		c.logger.Warn("server error", "code", string(ctrl.Code), "msg", ctrl.Msg, "session", c.session)
		c.enqueueError(fmt.Sprintf("server error %s: %s", ctrl.Code, ctrl.Msg), nil)
	default:
		c.enqueue(func() { c.hub.Publish(msg) })
	}
	c.unlockAndDrain()
}

func (c *Controller) handleError(gen uint64, err error) {
	c.mu.Lock()
	if gen != c.generation {
		c.mu.Unlock()
		return
	}
	c.logger.Warn("transport error", "error", err, "session", c.session, "state", c.state)
	c.enqueueError("transport error", err)
	c.unlockAndDrain()
}

func (c *Controller) handleClose(gen uint64, info CloseInfo) {
	c.mu.Lock()
	if gen != c.generation {
		c.mu.Unlock()
		return
	}
	stopTimer(&c.connectTimer)
	if c.abortReason != "" {
		info = CloseInfo{Code: CloseAbnormal, Reason: c.abortReason, WasClean: false}
	}
	timedOut := c.timedOut
	c.abortReason = ""
	c.timedOut = false
	c.state = StateDisconnected
	c.handle = nil
	c.heartbeat.Stop()
	c.stats.RecordDisconnect(c.clock.Now())

	ev := events.Close{
		Code:              info.Code,
		Reason:            info.Reason,
		WasClean:          info.WasClean,
		ReconnectAttempts: c.attempts,
		Session:           c.session,
	}
	c.enqueue(func() { c.hub.Publish(ev) })
	c.logger.Info("connection closed",
		"session", c.session,
		"code", info.Code,
		"reason", info.Reason,
		"clean", info.WasClean,
		"timed_out", timedOut,
	)

	if c.shouldReconnectLocked(info.Code) {
		c.scheduleReconnectLocked()
	} else if !c.forcedClose && c.cfg.reconnectEnabled() {
		c.logger.Warn("not reconnecting",
			"code", info.Code,
			"attempts", c.attempts,
			"max_attempts", c.cfg.MaxReconnectAttempts,
		)
	}
	c.unlockAndDrain()
}

func (c *Controller) shouldReconnectLocked(code int) bool {
	return !c.forcedClose &&
		c.cfg.reconnectEnabled() &&
		c.attempts < c.cfg.MaxReconnectAttempts &&
		c.cfg.Retryable(code)
}

func (c *Controller) scheduleReconnectLocked() {
	c.attempts++
	c.stats.RecordReconnectAttempt()
	delay := c.cfg.ReconnectDelay(c.attempts)
	gen := c.generation

	stopTimer(&c.reconnectTimer)
	c.reconnectTimer = c.clock.AfterFunc(delay, func() { c.reconnectDue(gen) })

	ev := events.Reconnect{Attempt: c.attempts, Delay: delay}
	c.enqueue(func() { c.hub.Publish(ev) })
	c.logger.Info("reconnect scheduled", "attempt", c.attempts, "delay", delay)
}

func (c *Controller) reconnectDue(gen uint64) {
	c.mu.Lock()
	if gen != c.generation || c.forcedClose || c.state != StateDisconnected {
		c.mu.Unlock()
		return
	}
	c.reconnectTimer = nil
	c.connectLocked()
	c.unlockAndDrain()
}

func (c *Controller) connectTimeout(gen uint64) {
	c.mu.Lock()
	if gen != c.generation || c.state != StateConnecting || c.handle == nil {
		c.mu.Unlock()
		return
	}
	c.connectTimer = nil
	c.timedOut = true
	c.abortReason = reasonConnectTimeout
	c.logger.Warn("connect timeout", "timeout", c.cfg.TimeoutInterval, "session", c.session)
	h := c.handle
	c.enqueue(func() { c.closeHandle(h, CloseNormal, reasonConnectTimeout) })
	c.unlockAndDrain()
}

func (c *Controller) sendPing(gen uint64) bool {
	c.mu.Lock()
	if gen != c.generation || c.state != StateOpen || c.handle == nil {
		c.mu.Unlock()
		return false
	}
	h := c.handle
	c.mu.Unlock()

	data, _ := encodeRequest(OpPing, nil)
	if err := h.Send(Frame{Data: data}); err != nil {
		c.mu.Lock()
		c.enqueueError("ping failed", err)
		c.unlockAndDrain()
		return false
	}
	return true
}

func (c *Controller) heartbeatDead(gen uint64) {
	c.mu.Lock()
	if gen != c.generation || c.state != StateOpen || c.handle == nil {
		c.mu.Unlock()
		return
	}
	c.logger.Warn("connection unresponsive", "session", c.session, "pong_timeout", c.cfg.PongTimeout)
	c.abortReason = reasonPongTimeout
	c.state = StateClosing
	h := c.handle
	c.enqueue(func() { c.closeHandle(h, CloseNormal, reasonPongTimeout) })
	c.unlockAndDrain()
}

func (c *Controller) closeHandle(h Handle, code int, reason string) {
	if err := h.Close(code, reason); err != nil {
		c.logger.Debug("transport close", "error", err)
	}
}

// enqueueRequest queues an encoded operation for h. Caller holds mu.
func (c *Controller) enqueueRequest(h Handle, op string, subs []subscription.Subscription) {
	data, err := encodeRequest(op, subs)
	if err != nil {
		c.enqueueError(op+" failed", err)
		return
	}
	c.enqueue(func() {
		if err := h.Send(Frame{Data: data}); err != nil {
			c.logger.Warn("request failed", "op", op, "error", err)
			c.mu.Lock()
			c.enqueueError(op+" failed", err)
			c.unlockAndDrain()
		}
	})
}

// enqueueError queues an error event. Caller holds mu.
func (c *Controller) enqueueError(msg string, err error) {
	ev := events.Error{Message: msg, Err: err, State: c.state.String(), Attempt: c.attempts}
	c.enqueue(func() { c.hub.Publish(ev) })
}

func (c *Controller) enqueue(task func()) {
	c.outbox = append(c.outbox, task)
}

// unlockAndDrain runs queued side effects in order, then releases mu. If
// another goroutine is already draining, the queued tasks are left to it.
func (c *Controller) unlockAndDrain() {
	if c.draining {
		c.mu.Unlock()
		return
	}
	c.draining = true
	for len(c.outbox) > 0 {
		task := c.outbox[0]
		c.outbox[0] = nil
		c.outbox = c.outbox[1:]
		c.mu.Unlock()
		c.run(task)
		c.mu.Lock()
	}
	c.outbox = nil
	c.draining = false
	c.mu.Unlock()
}

func (c *Controller) run(task func()) {
	defer func() {
		if p := recover(); p != nil {
			c.logger.Error("side effect panicked", "panic", fmt.Sprint(p))
		}
	}()
	task()
}

func stopTimer(t *clock.Timer) {
	if *t != nil {
		(*t).Stop()
		*t = nil
	}
}
