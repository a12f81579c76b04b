package connection

// Transport opens persistent message-oriented connections.
type Transport interface {
	// Open starts connecting to url and returns immediately. It returns an
	// error only when the attempt cannot be initiated at all (bad URL,
	// unsupported scheme); every later failure is reported through
	// callbacks. Callbacks must not be invoked before Open returns and must
	// not be invoked on the caller's goroutine.
	Open(url string, opts Options, cb Callbacks) (Handle, error)
}

// Handle is one open or opening connection.
type Handle interface {
	// Send writes one frame.
	Send(f Frame) error

	// Close starts the close handshake, or abandons the attempt if the
	// connection is still opening. OnClose fires once the connection ends.
	Close(code int, reason string) error
}

// Options are per-connection transport settings.
type Options struct {
	Protocols  []string
	BinaryType string
}

// Callbacks receive transport notifications. OnClose fires exactly once per
// handle, after which no other callback fires.
type Callbacks struct {
	OnOpen    func()
	OnMessage func(Frame)
	OnError   func(error)
	OnClose   func(CloseInfo)
}
