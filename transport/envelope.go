// Package transport moves namespaced JSON messages between a shell and the
// contexts it coordinates: the host page and the content frames.
//
// Every message is a single JSON object. Its "message" key holds the
// namespaced command (prefix + command) and the remaining keys are the
// command's payload. Messages are fire-and-forget; there are no replies at
// this level.
package transport

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
)

// DefaultPrefix namespaces the commands exchanged with content frames.
const DefaultPrefix = "croquet:microverse:"

// MessageKey is the envelope key holding the namespaced command.
const MessageKey = "message"

var (
	// ErrClosed is returned when sending on a closed endpoint.
	ErrClosed = errors.New("endpoint closed")
	// ErrSendBufferFull is returned when an endpoint cannot keep up with sends.
	ErrSendBufferFull = errors.New("send buffer full")
	// ErrInvalidMessage is returned for data that is not a JSON object.
	ErrInvalidMessage = errors.New("invalid message")
)

// Envelope is a decoded inbound message.
type Envelope struct {
	// Command is the command without its namespace prefix.
	Command string
	// Raw is the complete JSON object, including the message key.
	Raw json.RawMessage
}

// Get returns the value at a gjson path of the payload.
func (e Envelope) Get(path string) gjson.Result {
	return gjson.GetBytes(e.Raw, path)
}

// Decode unmarshals the payload into v.
func (e Envelope) Decode(v interface{}) error {
	if err := json.Unmarshal(e.Raw, v); err != nil {
		return fmt.Errorf("decoding %s payload: %w", e.Command, err)
	}
	return nil
}

// Codec namespaces commands with a prefix.
type Codec struct {
	Prefix string
}

// NewCodec returns a Codec for prefix, or for DefaultPrefix if prefix is empty.
func NewCodec(prefix string) Codec {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return Codec{Prefix: prefix}
}

// Sub returns a codec for a nested namespace, e.g. "host:".
func (c Codec) Sub(namespace string) Codec {
	return Codec{Prefix: c.Prefix + namespace}
}

// Encode builds the wire form of cmd with payload flattened into it. The
// payload must marshal to a JSON object or null.
func (c Codec) Encode(cmd string, payload interface{}) ([]byte, error) {
	message, err := json.Marshal(c.Prefix + cmd)
	if err != nil {
		return nil, err
	}

	var body []byte
	if payload != nil {
		if body, err = json.Marshal(payload); err != nil {
			return nil, fmt.Errorf("encoding %s payload: %w", cmd, err)
		}
	}
	body = bytes.TrimSpace(body)

	var buf bytes.Buffer
	buf.WriteString(`{"` + MessageKey + `":`)
	buf.Write(message)
	switch {
	case len(body) == 0, bytes.Equal(body, []byte("null")), bytes.Equal(body, []byte("{}")):
	case body[0] == '{':
		if gjson.GetBytes(body, MessageKey).Exists() {
			return nil, fmt.Errorf("%w: %s payload must not contain %q", ErrInvalidMessage, cmd, MessageKey)
		}
		buf.WriteByte(',')
		buf.Write(body[1 : len(body)-1])
	default:
		return nil, fmt.Errorf("%w: %s payload must be an object", ErrInvalidMessage, cmd)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Decode parses raw. ok is false for well-formed messages that belong to
// another namespace; those are meant to be ignored.
func (c Codec) Decode(raw []byte) (env Envelope, ok bool, err error) {
	if !gjson.ValidBytes(raw) {
		return Envelope{}, false, fmt.Errorf("%w: not valid JSON", ErrInvalidMessage)
	}
	parsed := gjson.ParseBytes(raw)
	if !parsed.IsObject() {
		return Envelope{}, false, fmt.Errorf("%w: not a JSON object", ErrInvalidMessage)
	}
	message := parsed.Get(MessageKey)
	if message.Type != gjson.String || !strings.HasPrefix(message.Str, c.Prefix) {
		return Envelope{}, false, nil
	}
	cmd := strings.TrimPrefix(message.Str, c.Prefix)
	if cmd == "" {
		return Envelope{}, false, nil
	}
	return Envelope{Command: cmd, Raw: append(json.RawMessage(nil), raw...)}, true, nil
}
