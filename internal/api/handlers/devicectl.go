package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/rental-access-control/backend/internal/api/middleware"
)

// Thermostat sets a thermostat device's target temperature.
func Thermostat(deps *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		device, ok := authorizeDevice(deps, w, r, mux.Vars(r)["device"])
		if !ok {
			return
		}

		var req struct {
			Celsius float64 `json:"celsius"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			middleware.WriteError(w, http.StatusBadRequest, middleware.ErrBadRequest, "Invalid request body")
			return
		}

		if err := deps.Dispatcher.SetThermostat(r.Context(), device.ID, req.Celsius); err != nil {
			middleware.WriteCommandError(w, err)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

// Light switches a light device and optionally sets brightness.
func Light(deps *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		device, ok := authorizeDevice(deps, w, r, mux.Vars(r)["device"])
		if !ok {
			return
		}

		var req struct {
			On         bool `json:"on"`
			Brightness int  `json:"brightness"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			middleware.WriteError(w, http.StatusBadRequest, middleware.ErrBadRequest, "Invalid request body")
			return
		}

		if err := deps.Dispatcher.SetLight(r.Context(), device.ID, req.On, req.Brightness); err != nil {
			middleware.WriteCommandError(w, err)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

// CameraStream returns a short-lived tokenized stream URL for a camera.
func CameraStream(deps *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		device, ok := authorizeDevice(deps, w, r, mux.Vars(r)["device"])
		if !ok {
			return
		}

		url, err := deps.Dispatcher.CameraStreamURL(r.Context(), device.ID)
		if err != nil {
			middleware.WriteCommandError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, map[string]string{"stream_url": url})
	}
}
