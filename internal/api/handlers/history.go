package handlers

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/rental-access-control/backend/internal/api/middleware"
	"github.com/rental-access-control/backend/internal/storage/models"
)

// History returns the device activity log, newest first. Query parameters:
// action (filter), limit, offset.
func History(deps *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		device, ok := authorizeDevice(deps, w, r, mux.Vars(r)["device"])
		if !ok {
			return
		}

		q := r.URL.Query()
		limit := queryInt(q.Get("limit"), 50)
		offset := queryInt(q.Get("offset"), 0)
		action := q.Get("action")

		page, err := deps.Activity.List(r.Context(), device.ID, action, limit, offset)
		if err != nil {
			middleware.WriteError(w, http.StatusBadRequest, middleware.ErrValidation, err.Error())
			return
		}

		writeJSON(w, http.StatusOK, page)
	}
}

// CommandHistory returns the device's command history, newest first.
func CommandHistory(deps *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		device, ok := authorizeDevice(deps, w, r, mux.Vars(r)["device"])
		if !ok {
			return
		}

		q := r.URL.Query()
		limit := queryInt(q.Get("limit"), 50)
		offset := queryInt(q.Get("offset"), 0)

		commands, err := deps.Commands.ListByDevice(r.Context(), device.ID, limit, offset)
		if err != nil {
			middleware.WriteError(w, http.StatusInternalServerError, middleware.ErrInternalError, "Failed to query command history")
			return
		}
		if commands == nil {
			commands = []models.DeviceCommand{}
		}

		writeJSON(w, http.StatusOK, commands)
	}
}

func queryInt(value string, defaultValue int) int {
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return n
}
