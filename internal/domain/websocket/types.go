// internal/domain/websocket/types.go
package websocket

import (
	"encoding/json"
	"time"

	"github.com/oklog/ulid/v2"
)

// EventType represents different real-time event types
type EventType string

const (
	// Connection events
	EventTypePing         EventType = "ping"
	EventTypePong         EventType = "pong"
	EventTypeConnected    EventType = "connected"
	EventTypeDisconnected EventType = "disconnected"
	EventTypeError        EventType = "error"

	// Account events pushed by the user service
	EventTypeUserBanned         EventType = "user:banned"
	EventTypePermissionsUpdated EventType = "user:permissions:update"

	// Pushed by the console to its own front end
	EventTypeSessionChanged EventType = "session:changed"

	// Subscription events
	EventTypeSubscribe   EventType = "subscribe"
	EventTypeUnsubscribe EventType = "unsubscribe"
)

// WSMessage is the universal message format
type WSMessage struct {
	Type      EventType      `json:"type"`
	Data      any            `json:"data,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	ID        string         `json:"id,omitempty"`
}

// ChannelType names a server-side stream a connection can subscribe to.
type ChannelType string

const (
	ChannelPermissions ChannelType = "permissions"
	ChannelSystem      ChannelType = "system"
)

// SubscribeRequest sent by the console after connecting
type SubscribeRequest struct {
	Channels []ChannelType `json:"channels"`
}

// ErrorData for error events
type ErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// BanData accompanies user:banned. Every field is optional.
type BanData struct {
	IdentityID int64  `json:"identity_id,omitempty"`
	Reason     string `json:"reason,omitempty"`
}

// NewMessage stamps a message with the current time and a ULID.
func NewMessage(eventType EventType, data any) *WSMessage {
	return &WSMessage{
		Type:      eventType,
		Data:      data,
		Timestamp: time.Now().UTC(),
		ID:        ulid.Make().String(),
	}
}

func (m *WSMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// DecodeData re-decodes the loosely typed payload into target.
func (m *WSMessage) DecodeData(target any) error {
	if m.Data == nil {
		return nil
	}
	raw, err := json.Marshal(m.Data)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, target)
}

func ParseMessage(data []byte) (*WSMessage, error) {
	var msg WSMessage
	err := json.Unmarshal(data, &msg)
	return &msg, err
}
