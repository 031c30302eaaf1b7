package handlers

import (
	"net/http"
	"time"
)

// HealthCheck reports liveness plus a database ping.
func HealthCheck(deps *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := "ok"
		code := http.StatusOK
		if err := deps.DB.PingContext(r.Context()); err != nil {
			status = "degraded"
			code = http.StatusServiceUnavailable
		}

		writeJSON(w, code, map[string]any{
			"status":    status,
			"timestamp": time.Now().UTC(),
		})
	}
}

// Status reports runtime counters for dashboards.
func Status(deps *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"status":            "ok",
			"websocket_clients": deps.Hub.ClientCount(),
			"timestamp":         time.Now().UTC(),
		})
	}
}
