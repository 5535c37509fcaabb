package ws

import (
	"encoding/json"
	"time"

	"github.com/vedran77/huddle/internal/domain"
)

// Event types - Client → Server
const (
	EventTypeJoinRoom    = "join-room"
	EventTypeLeaveRoom   = "leave-room"
	EventTypeStartTyping = "start-typing"
	EventTypeSendMessage = "send-message"
	EventTypePing        = "ping"
)

// Event types - Server → Client
const (
	EventTypeConnected      = "connected"
	EventTypeMessage        = "message"
	EventTypeMessageUpdated = "message-updated"
	EventTypeMessageDeleted = "message-deleted"
	EventTypeReaction       = "reaction"
	EventTypeTyping         = "typing"
	EventTypeTypingStopped  = "typing-stopped"
	EventTypeUserJoined     = "user-joined"
	EventTypeUserLeft       = "user-left"
	EventTypePong           = "pong"
	EventTypeError          = "error"
)

// CodeRateLimited is sent when a connection exceeds its inbound event rate.
const CodeRateLimited = "RATE_LIMITED"

// Event is the base envelope for all WebSocket messages. Room-scoped events
// carry the room kind and id on the envelope.
type Event struct {
	Type      string            `json:"type"`
	Kind      domain.ParentKind `json:"kind,omitempty"`
	RoomID    string            `json:"room_id,omitempty"`
	Payload   json.RawMessage   `json:"payload,omitempty"`
	Timestamp int64             `json:"ts,omitempty"`
}

// --- Client → Server payloads ---

type SendMessagePayload struct {
	Content string  `json:"content" validate:"max=4000"`
	FileURL *string `json:"file_url,omitempty" validate:"omitempty,url"`
}

// --- Server → Client payloads ---

type ConnectedPayload struct {
	ConnectionID string `json:"connection_id"`
	UserID       string `json:"user_id"`
}

type MessagePayload struct {
	*domain.Message
	Edited bool `json:"edited"`
}

type TypingPayload struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
}

type PresencePayload struct {
	UserID   string `json:"user_id"`
	MemberID string `json:"member_id,omitempty"`
	Username string `json:"username,omitempty"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewEvent creates a server→client event with the current timestamp.
func NewEvent(eventType string, kind domain.ParentKind, roomID string, payload any) (*Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &Event{
		Type:      eventType,
		Kind:      kind,
		RoomID:    roomID,
		Payload:   data,
		Timestamp: time.Now().UnixMilli(),
	}, nil
}

// encodeEvent builds an event and serializes the whole envelope once so the
// same bytes can go to every recipient.
func encodeEvent(eventType string, kind domain.ParentKind, roomID string, payload any) ([]byte, error) {
	evt, err := NewEvent(eventType, kind, roomID, payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(evt)
}

func messagePayload(msg *domain.Message) MessagePayload {
	return MessagePayload{Message: msg.Redacted(), Edited: msg.Edited()}
}

// eventLabel bounds metric label values to the known inbound types.
func eventLabel(eventType string) string {
	switch eventType {
	case EventTypeJoinRoom, EventTypeLeaveRoom, EventTypeStartTyping, EventTypeSendMessage, EventTypePing:
		return eventType
	default:
		return "unknown"
	}
}
