package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/rental-access-control/backend/internal/activity"
	"github.com/rental-access-control/backend/internal/api/handlers"
	"github.com/rental-access-control/backend/internal/auth"
	"github.com/rental-access-control/backend/internal/dispatcher"
	"github.com/rental-access-control/backend/internal/logging"
	"github.com/rental-access-control/backend/internal/provider"
	"github.com/rental-access-control/backend/internal/storage"
	"github.com/rental-access-control/backend/internal/storage/models"
	ws "github.com/rental-access-control/backend/internal/websocket"
)

const testSecret = "test-secret"

type apiFixture struct {
	server   *httptest.Server
	mock     *provider.Mock
	property *models.Property
	device   *models.Device
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()

	db, err := storage.NewMemoryDB()
	if err != nil {
		t.Fatalf("opening database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := storage.RunMigrations(db); err != nil {
		t.Fatalf("running migrations: %v", err)
	}

	ctx := context.Background()
	propertyRepo := storage.NewPropertyRepository(db)
	property := &models.Property{OwnerUserID: "owner-1", Name: "Villa"}
	if err := propertyRepo.Create(ctx, property); err != nil {
		t.Fatalf("creating property: %v", err)
	}

	deviceRepo := storage.NewDeviceRepository(db)
	device := &models.Device{
		PropertyID:       property.ID,
		Vendor:           models.VendorMock,
		Kind:             models.KindLock,
		ExternalDeviceID: "ext-front-door",
		Name:             "Front Door",
		LastSyncAt:       time.Now().UTC().Add(-time.Hour),
	}
	if err := deviceRepo.Create(ctx, device); err != nil {
		t.Fatalf("creating device: %v", err)
	}

	logger := logging.NewNop()

	mock := provider.NewMock()
	registry := provider.NewRegistry()
	if err := registry.Register(models.VendorMock, mock); err != nil {
		t.Fatalf("registering provider: %v", err)
	}

	hub := ws.NewHub(logger)
	go hub.Run()

	codeRepo := storage.NewAccessCodeRepository(db)
	commandRepo := storage.NewCommandRepository(db)
	recorder := activity.NewRecorder(storage.NewActivityRepository(db))

	disp := dispatcher.New(
		deviceRepo,
		codeRepo,
		commandRepo,
		registry,
		recorder,
		ws.NewEventBroadcaster(hub, logger),
		logger,
		time.Second,
	)

	deps := &handlers.Deps{
		DB:         db,
		Dispatcher: disp,
		Devices:    deviceRepo,
		Properties: propertyRepo,
		Commands:   commandRepo,
		Activity:   recorder,
		Authorizer: auth.NewOwnerAuthorizer(propertyRepo),
		Hub:        hub,
		Logger:     logger,
	}

	server := httptest.NewServer(NewRouter(deps, testSecret, ""))
	t.Cleanup(server.Close)

	return &apiFixture{server: server, mock: mock, property: property, device: device}
}

func signToken(t *testing.T, userID string) string {
	t.Helper()

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   userID,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	signed, err := token.SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("signing token: %v", err)
	}
	return signed
}

func (f *apiFixture) do(t *testing.T, method, path, userID string, body any) *http.Response {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encoding body: %v", err)
		}
	}

	req, err := http.NewRequest(method, f.server.URL+path, &buf)
	if err != nil {
		t.Fatalf("building request: %v", err)
	}
	if userID != "" {
		req.Header.Set("Authorization", "Bearer "+signToken(t, userID))
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()

	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	return v
}

func TestRoutesRequireAuthentication(t *testing.T) {
	f := newAPIFixture(t)

	resp := f.do(t, http.MethodGet, "/api/iot-devices/"+f.device.ID, "", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected 401 without a token, got %d", resp.StatusCode)
	}

	// Health stays open.
	resp = f.do(t, http.MethodGet, "/api/health", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200 for health, got %d", resp.StatusCode)
	}
}

func TestForeignDeviceReadsAsNotFound(t *testing.T) {
	f := newAPIFixture(t)

	resp := f.do(t, http.MethodGet, "/api/iot-devices/"+f.device.ID, "stranger", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404 for a foreign device, got %d", resp.StatusCode)
	}
}

func TestLockCommandOverHTTP(t *testing.T) {
	f := newAPIFixture(t)

	resp := f.do(t, http.MethodPost, "/api/iot-devices/"+f.device.ID+"/command", "owner-1",
		map[string]string{"action": "lock"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	device := decode[models.Device](t, resp)
	if !device.IsLocked {
		t.Error("expected locked device in response")
	}

	// Activity shows up in the history endpoint.
	resp = f.do(t, http.MethodGet, "/api/iot-devices/"+f.device.ID+"/history?action=lock", "owner-1", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	page := decode[activity.Page](t, resp)
	if page.Total != 1 {
		t.Errorf("expected 1 lock activity entry, got %d", page.Total)
	}
}

func TestOfflineDeviceMapsTo503(t *testing.T) {
	f := newAPIFixture(t)
	f.mock.SetOffline(f.device.ExternalDeviceID, true)

	resp := f.do(t, http.MethodPost, "/api/iot-devices/"+f.device.ID+"/command", "owner-1",
		map[string]string{"action": "unlock"})
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("expected 503 for an offline device, got %d", resp.StatusCode)
	}
}

func TestCodeLifecycleOverHTTP(t *testing.T) {
	f := newAPIFixture(t)
	base := "/api/iot-devices/" + f.device.ID + "/codes"

	resp := f.do(t, http.MethodPost, base, "owner-1", map[string]string{
		"code": "482913", "type": "one_time",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	code := decode[models.AccessCode](t, resp)
	if code.Status != models.CodeStatusActive {
		t.Errorf("expected active code, got %s", code.Status)
	}

	resp = f.do(t, http.MethodGet, base, "owner-1", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	codes := decode[[]models.AccessCode](t, resp)
	if len(codes) != 1 {
		t.Fatalf("expected 1 code, got %d", len(codes))
	}

	resp = f.do(t, http.MethodDelete, base+"/"+code.ID, "owner-1", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	revoked := decode[models.AccessCode](t, resp)
	if revoked.Status != models.CodeStatusRevoked {
		t.Errorf("expected revoked, got %s", revoked.Status)
	}

	// The transition is terminal; a second revoke conflicts.
	resp = f.do(t, http.MethodDelete, base+"/"+code.ID, "owner-1", nil)
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("expected 409 for a second revoke, got %d", resp.StatusCode)
	}
}

func TestInvalidCodeSpecMapsTo400(t *testing.T) {
	f := newAPIFixture(t)

	resp := f.do(t, http.MethodPost, "/api/iot-devices/"+f.device.ID+"/codes", "owner-1",
		map[string]string{"code": "", "type": "one_time"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400 for an empty code, got %d", resp.StatusCode)
	}
}

func TestRegisterAndListDevices(t *testing.T) {
	f := newAPIFixture(t)
	base := "/api/properties/" + f.property.ID + "/iot-devices"

	resp := f.do(t, http.MethodPost, base, "owner-1", map[string]string{
		"vendor": "mock", "kind": "thermostat", "external_device_id": "ext-hvac", "name": "HVAC",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}

	resp = f.do(t, http.MethodGet, base, "owner-1", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	devices := decode[[]models.Device](t, resp)
	if len(devices) != 2 {
		t.Errorf("expected 2 devices, got %d", len(devices))
	}

	// Non-owners can't see the property at all.
	resp = f.do(t, http.MethodGet, base, "stranger", nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("expected 403 for a non-owner, got %d", resp.StatusCode)
	}
}

func TestVendorWebhookAppliesStatus(t *testing.T) {
	f := newAPIFixture(t)

	resp := f.do(t, http.MethodPost, "/api/webhooks/mock", "", map[string]any{
		"external_device_id": f.device.ExternalDeviceID,
		"event":              "status",
		"locked":             true,
		"online":             true,
	})
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", resp.StatusCode)
	}

	get := f.do(t, http.MethodGet, "/api/iot-devices/"+f.device.ID, "owner-1", nil)
	device := decode[models.Device](t, get)
	if !device.IsLocked || device.Status != models.DeviceStatusOnline {
		t.Errorf("expected webhook state applied, got locked=%t status=%s", device.IsLocked, device.Status)
	}
}

func TestVendorWebhookUnknownDevice(t *testing.T) {
	f := newAPIFixture(t)

	resp := f.do(t, http.MethodPost, "/api/webhooks/mock", "", map[string]any{
		"external_device_id": "ext-nobody",
		"event":              "status",
	})
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404, got %d", resp.StatusCode)
	}
}

func TestThermostatEndpointRejectsLock(t *testing.T) {
	f := newAPIFixture(t)

	resp := f.do(t, http.MethodPost, "/api/iot-devices/"+f.device.ID+"/thermostat", "owner-1",
		map[string]float64{"celsius": 21})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400 for a lock device, got %d", resp.StatusCode)
	}
}

func TestDeleteDevice(t *testing.T) {
	f := newAPIFixture(t)
	path := "/api/iot-devices/" + f.device.ID

	resp := f.do(t, http.MethodDelete, path, "owner-1", nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", resp.StatusCode)
	}

	resp = f.do(t, http.MethodGet, path, "owner-1", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404 after delete, got %d", resp.StatusCode)
	}
}

func TestCommandHistoryEndpoint(t *testing.T) {
	f := newAPIFixture(t)

	for i := 0; i < 3; i++ {
		resp := f.do(t, http.MethodPost, "/api/iot-devices/"+f.device.ID+"/command", "owner-1",
			map[string]string{"action": "lock"})
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("lock %d: expected 200, got %d", i, resp.StatusCode)
		}
	}

	resp := f.do(t, http.MethodGet, fmt.Sprintf("/api/iot-devices/%s/commands?limit=2", f.device.ID), "owner-1", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	commands := decode[[]models.DeviceCommand](t, resp)
	if len(commands) != 2 {
		t.Errorf("expected 2 command records with limit=2, got %d", len(commands))
	}
}
