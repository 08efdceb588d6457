package model

import (
	"encoding/json"
	"time"
)

type EventType string

// Inbound events, sent by clients.
const (
	EventLogin       EventType = "user-login"
	EventSend        EventType = "send-message"
	EventDelivered   EventType = "message-delivered"
	EventRead        EventType = "message-read"
	EventTypingStart EventType = "typing-start"
	EventTypingStop  EventType = "typing-stop"
	EventPing        EventType = "ping"
)

// Outbound events, produced by the relay.
const (
	EventLoginAccepted  EventType = "login-accepted"
	EventLoginRejected  EventType = "login-rejected"
	EventUserJoined     EventType = "user-joined"
	EventUserLeft       EventType = "user-left"
	EventPendingStart   EventType = "pending-messages-start"
	EventReceiveMessage EventType = "receive-message"
	EventStatusUpdate   EventType = "message-status-update"
	EventUserTyping     EventType = "user-typing"
	EventUserStopTyping EventType = "user-stopped-typing"
	EventPong           EventType = "pong"
	EventError          EventType = "error"
)

// Envelope is the frame exchanged over the websocket.
type Envelope struct {
	Event EventType       `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// NewEnvelope marshals data into an envelope. A nil data yields an empty payload.
func NewEnvelope(event EventType, data any) (Envelope, error) {
	env := Envelope{Event: event}
	if data == nil {
		return env, nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return Envelope{}, err
	}
	env.Data = raw
	return env, nil
}

// Decode unmarshals the payload into v.
func (e Envelope) Decode(v any) error {
	if len(e.Data) == 0 {
		return json.Unmarshal([]byte("{}"), v)
	}
	return json.Unmarshal(e.Data, v)
}

type DeliveryStatus string

const (
	StatusSent      DeliveryStatus = "sent"
	StatusDelivered DeliveryStatus = "delivered"
	StatusRead      DeliveryStatus = "read"
)

// Message is a chat message as seen by clients.
type Message struct {
	ID        string         `json:"id"`
	Username  string         `json:"username"`
	Content   string         `json:"message"`
	Timestamp time.Time      `json:"timestamp"`
	Status    DeliveryStatus `json:"status"`
	IsPending bool           `json:"isPending,omitempty"`
}

type LoginRequest struct {
	Username string `json:"username" validate:"required,max=64"`
}

type SendRequest struct {
	ID        string    `json:"id,omitempty" validate:"omitempty,max=128"`
	Content   string    `json:"message" validate:"required,max=4096"`
	Timestamp time.Time `json:"timestamp,omitempty"`
}

type AckRequest struct {
	MessageID string `json:"messageId" validate:"required"`
}

type LoginAccepted struct {
	Username string `json:"username"`
	Token    string `json:"token,omitempty"`
}

type Reason struct {
	Reason string `json:"reason"`
}

type Peer struct {
	Username string `json:"username"`
}

type PendingStart struct {
	Count int `json:"count"`
}

type StatusUpdate struct {
	MessageID string         `json:"messageId"`
	Status    DeliveryStatus `json:"status"`
}

// PushPayload is the body of a background push notification.
type PushPayload struct {
	Username string `json:"username"`
	Message  string `json:"message"`
	URL      string `json:"url"`
}
