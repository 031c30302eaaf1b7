package websocket

import (
	"go.uber.org/zap"

	"github.com/rental-access-control/backend/internal/storage/models"
)

// EventBroadcaster publishes domain events onto property channels.
type EventBroadcaster struct {
	hub    *Hub
	logger *zap.Logger
}

// NewEventBroadcaster creates a new event broadcaster.
func NewEventBroadcaster(hub *Hub, logger *zap.Logger) *EventBroadcaster {
	return &EventBroadcaster{hub: hub, logger: logger}
}

// LockStatusChanged publishes an authoritative lock state change.
func (b *EventBroadcaster) LockStatusChanged(device *models.Device) {
	b.publish(device.PropertyID, NewMessage(TypeLockStatusChanged, LockStatusPayload{
		Lock: *device,
	}))
}

// CodeCreated publishes a newly issued access code.
func (b *EventBroadcaster) CodeCreated(propertyID string, code *models.AccessCode) {
	b.publish(propertyID, NewMessage(TypeCodeCreated, CodeCreatedPayload{
		Code: *code,
	}))
}

// CodeRevoked publishes an access code revocation or expiry.
func (b *EventBroadcaster) CodeRevoked(propertyID string, code *models.AccessCode) {
	b.publish(propertyID, NewMessage(TypeCodeRevoked, CodeRevokedPayload{
		CodeID:   code.ID,
		DeviceID: code.DeviceID,
		Status:   code.Status,
	}))
}

// Activity publishes a new audit-log entry.
func (b *EventBroadcaster) Activity(propertyID string, activity *models.DeviceActivity) {
	b.publish(propertyID, NewMessage(TypeLockActivity, ActivityPayload{
		Activity: *activity,
	}))
}

func (b *EventBroadcaster) publish(propertyID string, msg Message) {
	data, err := msg.JSON()
	if err != nil {
		b.logger.Error("encoding websocket message", zap.Error(err))
		return
	}

	b.hub.Publish(propertyID, data)
}
