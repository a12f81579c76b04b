package connection

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rickgao/okx-feed/internal/subscription"
)

// Operations sent to the server.
const (
	OpSubscribe   = "subscribe"
	OpUnsubscribe = "unsubscribe"
	OpPing        = "ping"
)

// Request is an outbound operation.
type Request struct {
	Op   string                      `json:"op"`
	Args []subscription.Subscription `json:"args,omitempty"`
}

// ControlMessage is the envelope of server event messages
// ({"event":"subscribe"|"error"|"pong", ...}).
type ControlMessage struct {
	Event  string     `json:"event"`
	Code   flexString `json:"code,omitempty"`
	Msg    string     `json:"msg,omitempty"`
	ConnID string     `json:"connId,omitempty"`
}

// flexString accepts both JSON strings and numbers.
type flexString string

func (s *flexString) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		*s = flexString(v)
		return nil
	}
	*s = flexString(b)
	return nil
}

type inboundKind int

const (
	inboundData inboundKind = iota
	inboundPong
	inboundError
)

var barePong = []byte("pong")

// classify parses a text frame. Malformed JSON returns an error. Valid JSON
// that is not an object is treated as data.
func classify(data []byte) (inboundKind, ControlMessage, error) {
	var ctrl ControlMessage
	trimmed := bytes.TrimSpace(data)
	if bytes.Equal(trimmed, barePong) {
		return inboundPong, ctrl, nil
	}
	if !json.Valid(trimmed) {
		return inboundData, ctrl, fmt.Errorf("malformed message: %.64q", data)
	}
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return inboundData, ctrl, nil
	}
	if err := json.Unmarshal(trimmed, &ctrl); err != nil {
		return inboundData, ctrl, fmt.Errorf("decode message envelope: %w", err)
	}
	switch ctrl.Event {
	case "pong":
		return inboundPong, ctrl, nil
	case "error":
		return inboundError, ctrl, nil
	}
	return inboundData, ctrl, nil
}

func encodeRequest(op string, args []subscription.Subscription) ([]byte, error) {
	data, err := json.Marshal(Request{Op: op, Args: args})
	if err != nil {
		return nil, fmt.Errorf("encode %s request: %w", op, err)
	}
	return data, nil
}

// encodePayload passes raw payloads through and JSON-encodes everything else.
func encodePayload(payload any) ([]byte, error) {
	switch p := payload.(type) {
	case nil:
		return nil, errors.New("nil payload")
	case []byte:
		return p, nil
	case string:
		return []byte(p), nil
	case json.RawMessage:
		return p, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	return data, nil
}
