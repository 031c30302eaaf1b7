// Package handlers implements the REST API endpoints.
package handlers

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/rental-access-control/backend/internal/activity"
	"github.com/rental-access-control/backend/internal/api/middleware"
	"github.com/rental-access-control/backend/internal/auth"
	"github.com/rental-access-control/backend/internal/dispatcher"
	"github.com/rental-access-control/backend/internal/storage"
	"github.com/rental-access-control/backend/internal/storage/models"
	ws "github.com/rental-access-control/backend/internal/websocket"
)

// Deps bundles the collaborators handlers need. Constructed once in main and
// passed explicitly; there is no ambient service state.
type Deps struct {
	DB         *storage.DB
	Dispatcher *dispatcher.Dispatcher
	Devices    *storage.DeviceRepository
	Properties *storage.PropertyRepository
	Commands   *storage.CommandRepository
	Activity   *activity.Recorder
	Authorizer auth.PropertyAuthorizer
	Hub        *ws.Hub
	Logger     *zap.Logger
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// authorizeProperty checks that the caller owns the property, writing the
// error response itself when not. Returns false if the request is done.
func authorizeProperty(deps *Deps, w http.ResponseWriter, r *http.Request, propertyID string) bool {
	userID := middleware.UserID(r.Context())

	ok, err := deps.Authorizer.CanAccessProperty(r.Context(), userID, propertyID)
	if err != nil {
		deps.Logger.Error("checking property access", zap.Error(err))
		middleware.WriteError(w, http.StatusInternalServerError, middleware.ErrInternalError, "Authorization check failed")
		return false
	}
	if !ok {
		middleware.WriteError(w, http.StatusForbidden, middleware.ErrForbidden, "Not the property owner")
		return false
	}

	return true
}

// authorizeDevice resolves a device and checks the caller owns its property.
// Unknown devices and foreign devices both surface as 404 so device IDs
// don't leak across accounts.
func authorizeDevice(deps *Deps, w http.ResponseWriter, r *http.Request, deviceID string) (*models.Device, bool) {
	device, err := deps.Devices.GetByID(r.Context(), deviceID)
	if err != nil {
		deps.Logger.Error("loading device", zap.Error(err))
		middleware.WriteError(w, http.StatusInternalServerError, middleware.ErrInternalError, "Failed to load device")
		return nil, false
	}
	if device == nil {
		middleware.WriteError(w, http.StatusNotFound, middleware.ErrNotFound, "Device not found")
		return nil, false
	}

	userID := middleware.UserID(r.Context())
	ok, err := deps.Authorizer.CanAccessProperty(r.Context(), userID, device.PropertyID)
	if err != nil {
		deps.Logger.Error("checking property access", zap.Error(err))
		middleware.WriteError(w, http.StatusInternalServerError, middleware.ErrInternalError, "Authorization check failed")
		return nil, false
	}
	if !ok {
		middleware.WriteError(w, http.StatusNotFound, middleware.ErrNotFound, "Device not found")
		return nil, false
	}

	return device, true
}
