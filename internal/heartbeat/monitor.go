// Package heartbeat detects dead connections with an application-level
// ping/pong exchange.
package heartbeat

import (
	"log/slog"
	"sync"
	"time"

	"github.com/rickgao/okx-feed/internal/clock"
)

// Config configures a Monitor.
type Config struct {
	Interval    time.Duration // time between pings
	PongTimeout time.Duration // max wait for a pong after a ping was sent
}

// Monitor sends pings on an interval and declares the connection dead when
// a pong does not arrive in time.
type Monitor struct {
	cfg    Config
	clock  clock.Clock
	logger *slog.Logger

	mu        sync.Mutex
	epoch     uint64
	running   bool
	interval  clock.Timer
	pongTimer clock.Timer
	pongSeq   uint64
	ping      func() bool
	onDead    func()
}

// NewMonitor creates a stopped monitor.
func NewMonitor(cfg Config, clk clock.Clock, logger *slog.Logger) *Monitor {
	if clk == nil {
		clk = clock.Real()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Monitor{
		cfg:    cfg,
		clock:  clk,
		logger: logger.With("component", "heartbeat"),
	}
}

// Start begins the ping cycle. ping sends one ping frame and reports whether
// it was sent; onDead is called at most once per Start when a pong is
// overdue. Any previous cycle is stopped first.
func (m *Monitor) Start(ping func() bool, onDead func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.stopLocked()
	m.running = true
	m.ping = ping
	m.onDead = onDead
	m.armIntervalLocked(m.epoch)
}

// NotifyPong cancels the pending pong timeout, if any.
func (m *Monitor) NotifyPong() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pongTimer != nil {
		m.pongTimer.Stop()
		m.pongTimer = nil
	}
}

// Stop cancels both timers. Safe to call repeatedly.
func (m *Monitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopLocked()
}

// Running reports whether a ping cycle is active.
func (m *Monitor) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

func (m *Monitor) stopLocked() {
	if m.interval != nil {
		m.interval.Stop()
		m.interval = nil
	}
	if m.pongTimer != nil {
		m.pongTimer.Stop()
		m.pongTimer = nil
	}
	m.running = false
	m.ping = nil
	m.onDead = nil
	m.epoch++
}

func (m *Monitor) armIntervalLocked(epoch uint64) {
	m.interval = m.clock.AfterFunc(m.cfg.Interval, func() { m.tick(epoch) })
}

func (m *Monitor) tick(epoch uint64) {
	m.mu.Lock()
	if epoch != m.epoch || !m.running {
		m.mu.Unlock()
		return
	}
	m.armIntervalLocked(epoch)
	ping := m.ping

	// The pong timer is armed before the ping goes out so a pong that
	// arrives while ping is still returning finds it and disarms it.
	if m.pongTimer != nil {
		m.pongTimer.Stop()
	}
	m.pongSeq++
	seq := m.pongSeq
	m.pongTimer = m.clock.AfterFunc(m.cfg.PongTimeout, func() { m.expire(epoch, seq) })
	m.mu.Unlock()

	if ping() {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if epoch == m.epoch && seq == m.pongSeq && m.pongTimer != nil {
		m.pongTimer.Stop()
		m.pongTimer = nil
	}
}

func (m *Monitor) expire(epoch, seq uint64) {
	m.mu.Lock()
	if epoch != m.epoch || !m.running || m.pongTimer == nil || seq != m.pongSeq {
		m.mu.Unlock()
		return
	}
	onDead := m.onDead
	m.pongTimer = nil
	m.stopLocked()
	m.mu.Unlock()

	m.logger.Warn("pong timeout", "timeout", m.cfg.PongTimeout)
	onDead()
}
