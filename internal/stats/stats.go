// Package stats tracks connection timing and counters.
package stats

import (
	"sync"
	"time"
)

// HealthWindow is how recent the last message must be for a connected
// session to count as healthy.
const HealthWindow = 60 * time.Second

// Snapshot is a point-in-time copy of the tracker.
type Snapshot struct {
	LastConnect    time.Time // zero if never connected
	LastMessage    time.Time // zero if no message received
	MessageCount   int64
	ReconnectCount int
	Downtime       time.Duration
	Uptime         time.Duration // zero while disconnected
	Connected      bool
	Healthy        bool
}

// Tracker accumulates connection statistics. It is safe for concurrent use.
type Tracker struct {
	mu             sync.Mutex
	connected      bool
	lastConnect    time.Time
	lastMessage    time.Time
	messageCount   int64
	reconnectCount int
	downtime       time.Duration
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{}
}

// RecordConnect marks the start of a session.
func (t *Tracker) RecordConnect(now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.connected = true
	t.lastConnect = now
}

// RecordDisconnect ends the current session, adding its length to Downtime.
// It is a no-op when no session is active.
func (t *Tracker) RecordDisconnect(now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.connected {
		return
	}
	t.connected = false
	if !t.lastConnect.IsZero() {
		t.downtime += now.Sub(t.lastConnect)
	}
}

// RecordMessage counts one inbound frame.
func (t *Tracker) RecordMessage(now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.messageCount++
	t.lastMessage = now
}

// RecordReconnectAttempt counts one scheduled reconnect.
func (t *Tracker) RecordReconnectAttempt() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.reconnectCount++
}

// ReconnectCount returns the number of reconnects scheduled so far.
func (t *Tracker) ReconnectCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.reconnectCount
}

// Snapshot returns a copy of the counters as of now.
func (t *Tracker) Snapshot(now time.Time) Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := Snapshot{
		LastConnect:    t.lastConnect,
		LastMessage:    t.lastMessage,
		MessageCount:   t.messageCount,
		ReconnectCount: t.reconnectCount,
		Downtime:       t.downtime,
		Connected:      t.connected,
	}
	if t.connected && !t.lastConnect.IsZero() {
		s.Uptime = now.Sub(t.lastConnect)
	}
	s.Healthy = t.connected && !t.lastMessage.IsZero() && now.Sub(t.lastMessage) < HealthWindow
	return s
}

// Reset zeroes every counter and timestamp. The connected flag is left
// alone since it mirrors the live session, not history.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lastConnect = time.Time{}
	t.lastMessage = time.Time{}
	t.messageCount = 0
	t.reconnectCount = 0
	t.downtime = 0
}
