// Package cdp implements the DevTools protocol transport: one persistent
// WebSocket connection multiplexing command/response pairs and asynchronous
// events, plus the registry resolving the active page session.
package cdp

import "encoding/json"

// TargetID identifies a protocol target (one page).
type TargetID string

// SessionID scopes protocol commands to one attached target.
type SessionID string

// Message is the JSON wire format of the protocol. An outbound command
// carries id/method/params; an inbound message carries either a correlated
// result or error (id set), an event (method set), or both.
type Message struct {
	ID        int64           `json:"id,omitempty"`
	Method    string          `json:"method,omitempty"`
	Params    json.RawMessage `json:"params,omitempty"`
	SessionID SessionID       `json:"sessionId,omitempty"`
	Result    json.RawMessage `json:"result,omitempty"`
	Error     *MessageError   `json:"error,omitempty"`
}

// MessageError is the protocol-level error attached to a command response.
type MessageError struct {
	Code    int64  `json:"code,omitempty"`
	Message string `json:"message"`
}

// Event is one asynchronous protocol notification as broadcast to
// subscribers: method name plus raw parameters. A message carrying both an
// id and a method settles its pending command and is still broadcast.
type Event struct {
	Method    string
	Params    json.RawMessage
	SessionID SessionID
}
