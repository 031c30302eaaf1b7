package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/rental-access-control/backend/internal/api/middleware"
	"github.com/rental-access-control/backend/internal/dispatcher"
	"github.com/rental-access-control/backend/internal/provider"
)

// vendorEvent is the normalized inbound webhook payload. Vendors that push
// their own shapes are adapted to this one at the edge.
type vendorEvent struct {
	ExternalDeviceID string `json:"external_device_id"`
	Event            string `json:"event"` // "status" or "code_used"

	// For status events.
	Locked     bool       `json:"locked"`
	Online     bool       `json:"online"`
	Battery    *int       `json:"battery,omitempty"`
	ReportedAt *time.Time `json:"reported_at,omitempty"`

	// For code_used events.
	ExternalCodeID string `json:"external_code_id,omitempty"`
}

// VendorWebhook ingests asynchronous vendor push events. State changes run
// through the dispatcher's staleness gate; out-of-order deliveries are
// recorded and discarded, never applied.
func VendorWebhook(deps *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		vendor := mux.Vars(r)["vendor"]

		var ev vendorEvent
		if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
			middleware.WriteError(w, http.StatusBadRequest, middleware.ErrBadRequest, "Invalid event body")
			return
		}
		if ev.ExternalDeviceID == "" {
			middleware.WriteError(w, http.StatusBadRequest, middleware.ErrValidation, "external_device_id is required")
			return
		}

		switch ev.Event {
		case "status":
			reportedAt := time.Now().UTC()
			if ev.ReportedAt != nil {
				reportedAt = *ev.ReportedAt
			}

			_, err := deps.Dispatcher.HandleVendorStatus(r.Context(), vendor, ev.ExternalDeviceID, provider.DeviceState{
				IsLocked:     ev.Locked,
				Online:       ev.Online,
				BatteryLevel: ev.Battery,
				ReportedAt:   reportedAt,
			})
			if err != nil {
				if errors.Is(err, dispatcher.ErrUnknownDevice) {
					middleware.WriteError(w, http.StatusNotFound, middleware.ErrNotFound, "Unknown device")
					return
				}
				deps.Logger.Error("handling vendor status event", zap.Error(err))
				middleware.WriteError(w, http.StatusInternalServerError, middleware.ErrInternalError, "Failed to apply event")
				return
			}

		case "code_used":
			if ev.ExternalCodeID == "" {
				middleware.WriteError(w, http.StatusBadRequest, middleware.ErrValidation, "external_code_id is required")
				return
			}

			if err := deps.Dispatcher.HandleCodeUsed(r.Context(), vendor, ev.ExternalDeviceID, ev.ExternalCodeID); err != nil {
				if errors.Is(err, dispatcher.ErrUnknownDevice) {
					middleware.WriteError(w, http.StatusNotFound, middleware.ErrNotFound, "Unknown device")
					return
				}
				deps.Logger.Error("handling code usage event", zap.Error(err))
				middleware.WriteError(w, http.StatusInternalServerError, middleware.ErrInternalError, "Failed to apply event")
				return
			}

		default:
			middleware.WriteError(w, http.StatusBadRequest, middleware.ErrValidation, "unknown event kind")
			return
		}

		w.WriteHeader(http.StatusAccepted)
	}
}
