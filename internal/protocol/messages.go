package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// MessageType identifies websocket payload variants.
type MessageType string

const (
	TypeChatMessage   MessageType = "chat_message"
	TypeClientControl MessageType = "client_control"
	TypeChatReply     MessageType = "chat_reply"
	TypeSystemEvent   MessageType = "system_event"
	TypeErrorEvent    MessageType = "error_event"
)

// Control actions accepted on client_control frames.
const (
	ActionPing    = "ping"
	ActionSummary = "summary"
)

var (
	ErrUnsupportedType = errors.New("unsupported message type")
	ErrInvalidMessage  = errors.New("invalid client message")
)

type Envelope struct {
	Type MessageType `json:"type"`
}

type ChatMessage struct {
	Type      MessageType `json:"type"`
	RequestID string      `json:"request_id,omitempty"`
	Message   string      `json:"message"`
}

type ClientControl struct {
	Type      MessageType `json:"type"`
	RequestID string      `json:"request_id,omitempty"`
	Action    string      `json:"action"`
}

// ChatReply mirrors the HTTP chat response, with fields nested.
type ChatReply struct {
	Type           MessageType       `json:"type"`
	SessionID      string            `json:"session_id"`
	RequestID      string            `json:"request_id,omitempty"`
	Agent          string            `json:"agent"`
	Intent         string            `json:"intent"`
	Response       string            `json:"response"`
	Fields         any               `json:"fields"`
	Facets         map[string]string `json:"facets,omitempty"`
	Confidence     float64           `json:"confidence"`
	ProcessingTime float64           `json:"processing_time"`
	Source         string            `json:"source"`
}

type SystemEvent struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	RequestID string      `json:"request_id,omitempty"`
	Code      string      `json:"code"`
	Detail    string      `json:"detail,omitempty"`
	Data      any         `json:"data,omitempty"`
}

type ErrorEvent struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	RequestID string      `json:"request_id,omitempty"`
	Code      string      `json:"code"`
	Retryable bool        `json:"retryable"`
	Detail    string      `json:"detail"`
}

func ParseClientMessage(raw []byte) (any, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("invalid envelope: %w", err)
	}

	switch env.Type {
	case TypeChatMessage:
		var msg ChatMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		return msg, nil
	case TypeClientControl:
		var msg ClientControl
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		switch strings.TrimSpace(msg.Action) {
		case ActionPing, ActionSummary:
		default:
			return nil, fmt.Errorf("%w: client_control action %q", ErrInvalidMessage, msg.Action)
		}
		return msg, nil
	default:
		return nil, ErrUnsupportedType
	}
}
