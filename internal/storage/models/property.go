package models

import (
	"time"
)

// Property is the minimal slice of the marketplace property table this
// service needs: enough to scope devices and check ownership for channel
// subscriptions. Full property CRUD lives elsewhere.
type Property struct {
	ID          string    `json:"id"`
	OwnerUserID string    `json:"owner_user_id"`
	Name        string    `json:"name"`
	CreatedAt   time.Time `json:"created_at"`
}
