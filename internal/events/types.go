package events

import (
	"time"

	"github.com/google/uuid"
)

// Kind identifies an event type.
type Kind string

const (
	KindConnecting Kind = "connecting"
	KindOpen       Kind = "open"
	KindMessage    Kind = "message"
	KindClose      Kind = "close"
	KindError      Kind = "error"
	KindReconnect  Kind = "reconnect"
)

// Event is anything that can be published on a Hub.
type Event interface {
	Kind() Kind
}

// Connecting is published when a connection attempt starts.
type Connecting struct {
	URL     string
	Attempt int // 1 for the first attempt after a successful open
	Session uuid.UUID
}

// Open is published when the transport reports the connection is usable.
type Open struct {
	ReconnectCount int
	Session        uuid.UUID
}

// Message carries one inbound data frame.
type Message struct {
	Data      []byte
	Binary    bool
	Timestamp time.Time
	Session   uuid.UUID
}

// Close is published when a connection closes, before any reconnect is
// scheduled.
type Close struct {
	Code              int
	Reason            string
	WasClean          bool
	ReconnectAttempts int
	Session           uuid.UUID
}

// Error reports a failure that did not by itself change connection state.
type Error struct {
	Message string
	Err     error
	State   string
	Attempt int
}

// Reconnect is published when a reconnect has been scheduled.
type Reconnect struct {
	Attempt int
	Delay   time.Duration
}

func (Connecting) Kind() Kind { return KindConnecting }
func (Open) Kind() Kind       { return KindOpen }
func (Message) Kind() Kind    { return KindMessage }
func (Close) Kind() Kind      { return KindClose }
func (Error) Kind() Kind      { return KindError }
func (Reconnect) Kind() Kind  { return KindReconnect }

func (e Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}
