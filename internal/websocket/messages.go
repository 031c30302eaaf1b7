package websocket

import (
	"encoding/json"
	"time"

	"github.com/rental-access-control/backend/internal/storage/models"
)

// MessageType identifies the type of WebSocket message.
type MessageType string

const (
	// Server -> Client event types
	TypeLockStatusChanged MessageType = "lock.status.changed"
	TypeCodeCreated       MessageType = "access.code.created"
	TypeCodeRevoked       MessageType = "access.code.revoked"
	TypeLockActivity      MessageType = "lock.activity"

	// Client -> Server command types
	TypeSubscribe   MessageType = "subscribe"
	TypeUnsubscribe MessageType = "unsubscribe"
	TypePing        MessageType = "ping"

	// Server -> Client response types
	TypeSubscribeAck MessageType = "subscribe.ack"
	TypePong         MessageType = "pong"
	TypeError        MessageType = "error"
)

// Message represents a WebSocket message envelope.
type Message struct {
	Type      MessageType `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   any         `json:"payload,omitempty"`
}

// NewMessage creates a new message with the current timestamp.
func NewMessage(msgType MessageType, payload any) Message {
	return Message{
		Type:      msgType,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}
}

// JSON serializes the message to JSON bytes.
func (m Message) JSON() ([]byte, error) {
	return json.Marshal(m)
}

// LockStatusPayload is the payload for lock.status.changed events. The state
// here is authoritative: clients overwrite any optimistic local value unless
// their value carries a newer sync timestamp.
type LockStatusPayload struct {
	Lock models.Device `json:"lock"`
}

// CodeCreatedPayload is the payload for access.code.created events.
type CodeCreatedPayload struct {
	Code models.AccessCode `json:"code"`
}

// CodeRevokedPayload is the payload for access.code.revoked events.
type CodeRevokedPayload struct {
	CodeID   string `json:"code_id"`
	DeviceID string `json:"device_id"`
	Status   string `json:"status"`
}

// ActivityPayload is the payload for lock.activity events.
type ActivityPayload struct {
	Activity models.DeviceActivity `json:"activity"`
}

// SubscribePayload is the payload clients send to join a property channel.
type SubscribePayload struct {
	PropertyID string `json:"property_id"`
}

// SubscribeAckPayload confirms a channel subscription.
type SubscribeAckPayload struct {
	PropertyID string `json:"property_id"`
}

// ErrorPayload is the payload for error messages.
type ErrorPayload struct {
	Code         string `json:"code"`
	Message      string `json:"message"`
	OriginalType string `json:"original_type,omitempty"`
}
