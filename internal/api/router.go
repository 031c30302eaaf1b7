// Package api provides HTTP routing and handlers for the REST API.
package api

import (
	"net/http"
	"os"
	"path/filepath"

	"github.com/gorilla/mux"

	"github.com/rental-access-control/backend/internal/api/handlers"
	"github.com/rental-access-control/backend/internal/api/middleware"
)

// NewRouter creates and configures the HTTP router with all API routes.
// Webhooks and health checks stay outside the authenticated subrouter;
// everything else requires a bearer token.
func NewRouter(deps *handlers.Deps, jwtSecret, staticDir string) *mux.Router {
	r := mux.NewRouter()

	// Apply global middleware
	r.Use(middleware.Logging(deps.Logger))
	r.Use(middleware.ErrorRecovery(deps.Logger))

	api := r.PathPrefix("/api").Subrouter()

	// Health and status endpoints
	api.HandleFunc("/health", handlers.HealthCheck(deps)).Methods("GET")
	api.HandleFunc("/status", handlers.Status(deps)).Methods("GET")

	// Inbound vendor push events authenticate with vendor credentials, not
	// user tokens.
	api.HandleFunc("/webhooks/{vendor}", handlers.VendorWebhook(deps)).Methods("POST")

	authed := api.NewRoute().Subrouter()
	authed.Use(middleware.Authenticate(jwtSecret))

	// WebSocket endpoint
	authed.HandleFunc("/ws", handlers.WebSocketUpgrade(deps)).Methods("GET")

	// Property-scoped device listing and registration
	authed.HandleFunc("/properties/{property}/iot-devices", handlers.ListPropertyDevices(deps)).Methods("GET")
	authed.HandleFunc("/properties/{property}/iot-devices", handlers.RegisterDevice(deps)).Methods("POST")

	// Device endpoints
	authed.HandleFunc("/iot-devices/{device}", handlers.GetDevice(deps)).Methods("GET")
	authed.HandleFunc("/iot-devices/{device}", handlers.DeleteDevice(deps)).Methods("DELETE")
	authed.HandleFunc("/iot-devices/{device}/command", handlers.Command(deps)).Methods("POST")
	authed.HandleFunc("/iot-devices/{device}/history", handlers.History(deps)).Methods("GET")
	authed.HandleFunc("/iot-devices/{device}/commands", handlers.CommandHistory(deps)).Methods("GET")

	// Access code endpoints
	authed.HandleFunc("/iot-devices/{device}/codes", handlers.ListCodes(deps)).Methods("GET")
	authed.HandleFunc("/iot-devices/{device}/codes", handlers.IssueCode(deps)).Methods("POST")
	authed.HandleFunc("/iot-devices/{device}/codes/{code}", handlers.RevokeCode(deps)).Methods("DELETE")

	// Non-lock device controls
	authed.HandleFunc("/iot-devices/{device}/thermostat", handlers.Thermostat(deps)).Methods("POST")
	authed.HandleFunc("/iot-devices/{device}/light", handlers.Light(deps)).Methods("POST")
	authed.HandleFunc("/iot-devices/{device}/camera/stream", handlers.CameraStream(deps)).Methods("GET")

	// Serve the dashboard if a build is present
	if staticDir != "" {
		if _, err := os.Stat(staticDir); err == nil {
			r.PathPrefix("/").Handler(spaHandler{staticDir: staticDir})
		}
	}

	return r
}

// spaHandler serves static files, falling back to index.html for
// client-side routes.
type spaHandler struct {
	staticDir string
}

func (h spaHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := filepath.Join(h.staticDir, filepath.Clean(r.URL.Path))

	if info, err := os.Stat(path); err != nil || info.IsDir() {
		http.ServeFile(w, r, filepath.Join(h.staticDir, "index.html"))
		return
	}

	http.FileServer(http.Dir(h.staticDir)).ServeHTTP(w, r)
}
