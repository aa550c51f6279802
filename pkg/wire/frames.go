package wire

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Streaming frame types
const (
	FrameRegister     = "register"
	FrameRegistered   = "registered"
	FrameHeartbeat    = "heartbeat"
	FrameHeartbeatAck = "heartbeat_ack"
	FrameEnvelope     = "envelope"
	FrameBatch        = "batch"
	FrameError        = "error"
)

// ErrUnknownFrame is returned by DecodeFrame for an unrecognised type field
var ErrUnknownFrame = errors.New("unknown frame type")

// Request is an inbound frame sent by a client. The concrete type is one of
// *RegisterRequest, *HeartbeatRequest or *EnvelopeRequest.
type Request interface {
	FrameType() string
}

// RegisterRequest announces a client and its capabilities
type RegisterRequest struct {
	ClientID           string   `json:"clientId,omitempty"`
	Role               string   `json:"role,omitempty"`
	Labels             []string `json:"labels,omitempty"`
	Tools              []string `json:"tools,omitempty"`
	Intents            []string `json:"intents,omitempty"`
	MaxConcurrentTasks *int     `json:"maxConcurrentTasks,omitempty"`
}

func (*RegisterRequest) FrameType() string { return FrameRegister }

// HeartbeatRequest refreshes a client's lastSeen
type HeartbeatRequest struct{}

func (*HeartbeatRequest) FrameType() string { return FrameHeartbeat }

// EnvelopeRequest carries a partially populated envelope
type EnvelopeRequest struct {
	Envelope Envelope `json:"envelope"`
}

func (*EnvelopeRequest) FrameType() string { return FrameEnvelope }

// DecodeFrame decodes a JSON object frame into its typed request.
func DecodeFrame(data []byte) (Request, error) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("invalid frame: %w", err)
	}

	var req Request
	switch head.Type {
	case FrameRegister:
		req = &RegisterRequest{}
	case FrameHeartbeat:
		return &HeartbeatRequest{}, nil
	case FrameEnvelope:
		req = &EnvelopeRequest{}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFrame, head.Type)
	}

	if err := json.Unmarshal(data, req); err != nil {
		return nil, fmt.Errorf("invalid %s frame: %w", head.Type, err)
	}
	return req, nil
}

// Message is an outbound frame pushed by the bridge
type Message struct {
	Type      string          `json:"type"`
	Client    *ClientMetadata `json:"client,omitempty"`
	History   []Envelope      `json:"history,omitempty"`
	Envelope  *Envelope       `json:"envelope,omitempty"`
	Envelopes []Envelope      `json:"envelopes,omitempty"`
	Message   string          `json:"message,omitempty"`
}

// MarshalJSON always emits history on registered frames, as [] when empty.
func (m Message) MarshalJSON() ([]byte, error) {
	type plain Message
	if m.Type != FrameRegistered {
		return json.Marshal(plain(m))
	}

	history := m.History
	if history == nil {
		history = []Envelope{}
	}
	return json.Marshal(struct {
		plain
		History []Envelope `json:"history"`
	}{plain(m), history})
}

// NewRegisteredMessage acknowledges a registration with recent history
func NewRegisteredMessage(client ClientMetadata, history []Envelope) *Message {
	return &Message{Type: FrameRegistered, Client: &client, History: history}
}

// NewEnvelopeMessage wraps a single delivery
func NewEnvelopeMessage(env Envelope) *Message {
	return &Message{Type: FrameEnvelope, Envelope: &env}
}

// NewBatchMessage wraps a queued backlog delivery
func NewBatchMessage(envs []Envelope) *Message {
	return &Message{Type: FrameBatch, Envelopes: envs}
}

// NewErrorMessage builds an error frame
func NewErrorMessage(message string) *Message {
	return &Message{Type: FrameError, Message: message}
}
