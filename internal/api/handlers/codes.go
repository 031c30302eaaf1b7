package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/rental-access-control/backend/internal/api/middleware"
	"github.com/rental-access-control/backend/internal/dispatcher"
	"github.com/rental-access-control/backend/internal/storage/models"
)

// ListCodes returns all access codes on a device, lazily expiring any whose
// window has elapsed.
func ListCodes(deps *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		device, ok := authorizeDevice(deps, w, r, mux.Vars(r)["device"])
		if !ok {
			return
		}

		codes, err := deps.Dispatcher.ListCodes(r.Context(), device.ID)
		if err != nil {
			middleware.WriteCommandError(w, err)
			return
		}
		if codes == nil {
			codes = []models.AccessCode{}
		}

		writeJSON(w, http.StatusOK, codes)
	}
}

// IssueCode creates a new access code on a device.
func IssueCode(deps *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		device, ok := authorizeDevice(deps, w, r, mux.Vars(r)["device"])
		if !ok {
			return
		}

		var req dispatcher.CodeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			middleware.WriteError(w, http.StatusBadRequest, middleware.ErrBadRequest, "Invalid request body")
			return
		}

		actor := middleware.UserID(r.Context())
		code, err := deps.Dispatcher.IssueCode(r.Context(), device.ID, req, &actor)
		if err != nil {
			middleware.WriteCommandError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, code)
	}
}

// RevokeCode revokes an active access code.
func RevokeCode(deps *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		vars := mux.Vars(r)
		device, ok := authorizeDevice(deps, w, r, vars["device"])
		if !ok {
			return
		}

		actor := middleware.UserID(r.Context())
		code, err := deps.Dispatcher.RevokeCode(r.Context(), device.ID, vars["code"], &actor)
		if err != nil {
			middleware.WriteCommandError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, code)
	}
}
