package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

// WebhookConfig holds the configuration for a generic HTTP vendor bridge.
type WebhookConfig struct {
	// BaseURL is the vendor bridge API base URL.
	BaseURL string

	// Token is the bearer token for API authentication.
	Token string

	// Timeout for API requests. The dispatcher's own deadline still applies
	// on top of this.
	Timeout time.Duration
}

// DefaultWebhookConfig returns the default configuration, reading from
// environment variables.
func DefaultWebhookConfig() WebhookConfig {
	return WebhookConfig{
		BaseURL: getEnv("WEBHOOK_VENDOR_URL", "http://localhost:9090"),
		Token:   getEnv("WEBHOOK_VENDOR_TOKEN", ""),
		Timeout: 10 * time.Second,
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// Webhook is a Provider that talks to a vendor-agnostic HTTP bridge. Vendors
// without a native integration expose this small REST contract and push
// asynchronous events back through the inbound webhook endpoint.
type Webhook struct {
	config     WebhookConfig
	httpClient *http.Client
}

// NewWebhook creates a new HTTP bridge provider.
func NewWebhook(config WebhookConfig) *Webhook {
	return &Webhook{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
	}
}

// stateResponse is the bridge's device state representation.
type stateResponse struct {
	Locked     bool      `json:"locked"`
	Online     bool      `json:"online"`
	Battery    *int      `json:"battery,omitempty"`
	ReportedAt time.Time `json:"reported_at"`
}

func (s stateResponse) toDeviceState() DeviceState {
	reportedAt := s.ReportedAt
	if reportedAt.IsZero() {
		reportedAt = time.Now().UTC()
	}
	return DeviceState{
		IsLocked:     s.Locked,
		Online:       s.Online,
		BatteryLevel: s.Battery,
		ReportedAt:   reportedAt,
	}
}

// Lock sends a lock command to the bridge.
func (w *Webhook) Lock(ctx context.Context, deviceID string) (DeviceState, error) {
	return w.postState(ctx, fmt.Sprintf("/devices/%s/lock", deviceID), nil)
}

// Unlock sends an unlock command to the bridge.
func (w *Webhook) Unlock(ctx context.Context, deviceID string) (DeviceState, error) {
	return w.postState(ctx, fmt.Sprintf("/devices/%s/unlock", deviceID), nil)
}

// IssueCode asks the bridge to program a code on the device.
func (w *Webhook) IssueCode(ctx context.Context, deviceID string, spec CodeSpec) (IssuedCode, error) {
	body := map[string]any{
		"code": spec.Code,
		"type": spec.Type,
	}
	if spec.ValidFrom != nil {
		body["valid_from"] = spec.ValidFrom
	}
	if spec.ValidUntil != nil {
		body["valid_until"] = spec.ValidUntil
	}

	var result struct {
		CodeID string `json:"code_id"`
	}
	if err := w.do(ctx, http.MethodPost, fmt.Sprintf("/devices/%s/codes", deviceID), body, &result); err != nil {
		return IssuedCode{}, err
	}
	if result.CodeID == "" {
		return IssuedCode{}, fmt.Errorf("%w: bridge returned no code_id", ErrCommandRejected)
	}

	return IssuedCode{ExternalCodeID: result.CodeID}, nil
}

// RevokeCode asks the bridge to clear a code from the device.
func (w *Webhook) RevokeCode(ctx context.Context, deviceID, externalCodeID string) error {
	return w.do(ctx, http.MethodDelete, fmt.Sprintf("/devices/%s/codes/%s", deviceID, externalCodeID), nil, nil)
}

// FetchStatus retrieves the device's current state from the bridge.
func (w *Webhook) FetchStatus(ctx context.Context, deviceID string) (DeviceState, error) {
	var state stateResponse
	if err := w.do(ctx, http.MethodGet, fmt.Sprintf("/devices/%s/status", deviceID), nil, &state); err != nil {
		return DeviceState{}, err
	}
	return state.toDeviceState(), nil
}

func (w *Webhook) postState(ctx context.Context, path string, body any) (DeviceState, error) {
	var state stateResponse
	if err := w.do(ctx, http.MethodPost, path, body, &state); err != nil {
		return DeviceState{}, err
	}
	return state.toDeviceState(), nil
}

// do executes a bridge request and decodes the response into out when
// non-nil. Transport failures map to ErrUnreachable, 4xx responses to
// ErrCommandRejected with the bridge's message attached.
func (w *Webhook) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, w.config.BaseURL+path, reader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	if w.config.Token != "" {
		req.Header.Set("Authorization", "Bearer "+w.config.Token)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		// fall through to decode
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("%w: status %d: %s", ErrCommandRejected, resp.StatusCode, detail)
	default:
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("%w: status %d: %s", ErrUnreachable, resp.StatusCode, detail)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
	}

	return nil
}
