package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/rental-access-control/backend/internal/api/middleware"
	"github.com/rental-access-control/backend/internal/dispatcher"
	"github.com/rental-access-control/backend/internal/storage/models"
)

// ListPropertyDevices returns all devices registered to a property.
func ListPropertyDevices(deps *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		propertyID := mux.Vars(r)["property"]
		if !authorizeProperty(deps, w, r, propertyID) {
			return
		}

		devices, err := deps.Devices.ListByProperty(r.Context(), propertyID)
		if err != nil {
			middleware.WriteError(w, http.StatusInternalServerError, middleware.ErrInternalError, "Failed to query devices")
			return
		}
		if devices == nil {
			devices = []models.Device{}
		}

		writeJSON(w, http.StatusOK, devices)
	}
}

// RegisterDevice adds a device to a property.
func RegisterDevice(deps *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		propertyID := mux.Vars(r)["property"]
		if !authorizeProperty(deps, w, r, propertyID) {
			return
		}

		var req struct {
			Vendor           string `json:"vendor"`
			Kind             string `json:"kind"`
			ExternalDeviceID string `json:"external_device_id"`
			Name             string `json:"name"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			middleware.WriteError(w, http.StatusBadRequest, middleware.ErrBadRequest, "Invalid request body")
			return
		}
		if req.Vendor == "" || req.ExternalDeviceID == "" || req.Name == "" {
			middleware.WriteError(w, http.StatusBadRequest, middleware.ErrValidation, "vendor, external_device_id and name are required")
			return
		}

		kind := models.DeviceKind(req.Kind)
		if req.Kind == "" {
			kind = models.KindLock
		}
		switch kind {
		case models.KindLock, models.KindThermostat, models.KindLight, models.KindCamera:
		default:
			middleware.WriteError(w, http.StatusBadRequest, middleware.ErrValidation, "unknown device kind")
			return
		}

		device := &models.Device{
			PropertyID:       propertyID,
			Vendor:           req.Vendor,
			Kind:             kind,
			ExternalDeviceID: req.ExternalDeviceID,
			Name:             req.Name,
		}
		if err := deps.Devices.Create(r.Context(), device); err != nil {
			middleware.WriteError(w, http.StatusConflict, middleware.ErrConflict, "Device already registered")
			return
		}

		writeJSON(w, http.StatusCreated, device)
	}
}

// GetDevice returns a device's detail and status. Pass ?refresh=true to pull
// fresh state from the vendor instead of the cache; reconnecting event
// channel clients use this to repair missed events.
func GetDevice(deps *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		device, ok := authorizeDevice(deps, w, r, mux.Vars(r)["device"])
		if !ok {
			return
		}

		forceRefresh := r.URL.Query().Get("refresh") == "true"
		snapshot, err := deps.Dispatcher.Status(r.Context(), device.ID, forceRefresh)
		if err != nil {
			middleware.WriteCommandError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, snapshot)
	}
}

// DeleteDevice removes a device from its property. Soft delete; history and
// codes remain for audit.
func DeleteDevice(deps *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		device, ok := authorizeDevice(deps, w, r, mux.Vars(r)["device"])
		if !ok {
			return
		}

		if err := deps.Devices.SoftDelete(r.Context(), device.ID); err != nil {
			middleware.WriteError(w, http.StatusInternalServerError, middleware.ErrInternalError, "Failed to delete device")
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

// commandRequest is the generic command passthrough body.
type commandRequest struct {
	Action string                 `json:"action"`
	Code   *dispatcher.CodeRequest `json:"code,omitempty"`
	CodeID string                 `json:"code_id,omitempty"`
}

// Command is the generic command passthrough for lock devices: lock, unlock,
// issue_code and revoke_code.
func Command(deps *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		device, ok := authorizeDevice(deps, w, r, mux.Vars(r)["device"])
		if !ok {
			return
		}

		var req commandRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			middleware.WriteError(w, http.StatusBadRequest, middleware.ErrBadRequest, "Invalid request body")
			return
		}

		actor := middleware.UserID(r.Context())

		switch req.Action {
		case "lock":
			snapshot, err := deps.Dispatcher.Lock(r.Context(), device.ID, &actor)
			if err != nil {
				middleware.WriteCommandError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, snapshot)

		case "unlock":
			snapshot, err := deps.Dispatcher.Unlock(r.Context(), device.ID, &actor)
			if err != nil {
				middleware.WriteCommandError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, snapshot)

		case "issue_code":
			if req.Code == nil {
				middleware.WriteError(w, http.StatusBadRequest, middleware.ErrValidation, "code spec is required")
				return
			}
			code, err := deps.Dispatcher.IssueCode(r.Context(), device.ID, *req.Code, &actor)
			if err != nil {
				middleware.WriteCommandError(w, err)
				return
			}
			writeJSON(w, http.StatusCreated, code)

		case "revoke_code":
			if req.CodeID == "" {
				middleware.WriteError(w, http.StatusBadRequest, middleware.ErrValidation, "code_id is required")
				return
			}
			code, err := deps.Dispatcher.RevokeCode(r.Context(), device.ID, req.CodeID, &actor)
			if err != nil {
				middleware.WriteCommandError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, code)

		default:
			middleware.WriteError(w, http.StatusBadRequest, middleware.ErrValidation, "unknown action")
		}
	}
}
