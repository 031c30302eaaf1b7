package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
)

// MQTTConfig holds the configuration for the MQTT vendor provider.
type MQTTConfig struct {
	BrokerURL   string
	ClientID    string
	Username    string
	Password    string
	TopicPrefix string
	Timeout     time.Duration
}

// DefaultMQTTConfig returns the default configuration, reading from
// environment variables.
func DefaultMQTTConfig() MQTTConfig {
	return MQTTConfig{
		BrokerURL:   getEnv("MQTT_BROKER_URL", "tcp://localhost:1883"),
		ClientID:    getEnv("MQTT_CLIENT_ID", "access-control-service"),
		Username:    getEnv("MQTT_USERNAME", ""),
		Password:    getEnv("MQTT_PASSWORD", ""),
		TopicPrefix: getEnv("MQTT_TOPIC_PREFIX", "locks"),
		Timeout:     10 * time.Second,
	}
}

// MQTT is a Provider for vendors whose locks speak over an MQTT broker.
// Commands are published to {prefix}/devices/{id}/cmd with a request ID; the
// vendor gateway publishes the outcome to {prefix}/devices/{id}/result with
// the same ID, which is matched back to the waiting caller.
type MQTT struct {
	cfg    MQTTConfig
	client pahomqtt.Client

	pending map[string]chan commandResult
	mu      sync.Mutex
}

type commandRequest struct {
	RequestID string   `json:"request_id"`
	Action    string   `json:"action"`
	Code      *payload `json:"code,omitempty"`
}

type payload struct {
	Value      string     `json:"value,omitempty"`
	Type       string     `json:"type,omitempty"`
	ExternalID string     `json:"external_id,omitempty"`
	ValidFrom  *time.Time `json:"valid_from,omitempty"`
	ValidUntil *time.Time `json:"valid_until,omitempty"`
}

type commandResult struct {
	RequestID  string    `json:"request_id"`
	OK         bool      `json:"ok"`
	Error      string    `json:"error,omitempty"`
	Locked     bool      `json:"locked"`
	Online     bool      `json:"online"`
	Battery    *int      `json:"battery,omitempty"`
	CodeID     string    `json:"code_id,omitempty"`
	ReportedAt time.Time `json:"reported_at"`
}

// ConnectMQTT connects to the broker and subscribes to the result topic.
// Subscriptions are restored automatically on reconnect by paho.
func ConnectMQTT(cfg MQTTConfig) (*MQTT, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	m := &MQTT{
		cfg:     cfg,
		pending: make(map[string]chan commandResult),
	}

	opts := pahomqtt.NewClientOptions().
		AddBroker(cfg.BrokerURL).
		SetClientID(cfg.ClientID).
		SetUsername(cfg.Username).
		SetPassword(cfg.Password).
		SetAutoReconnect(true).
		SetConnectTimeout(cfg.Timeout).
		SetOrderMatters(true)

	opts.SetOnConnectHandler(func(c pahomqtt.Client) {
		topic := cfg.TopicPrefix + "/devices/+/result"
		c.Subscribe(topic, 1, m.handleResult)
	})

	m.client = pahomqtt.NewClient(opts)

	token := m.client.Connect()
	if !token.WaitTimeout(cfg.Timeout) {
		return nil, fmt.Errorf("%w: broker connect timed out", ErrUnreachable)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}

	return m, nil
}

// Close disconnects from the broker.
func (m *MQTT) Close() {
	m.client.Disconnect(250)
}

func (m *MQTT) handleResult(_ pahomqtt.Client, msg pahomqtt.Message) {
	var result commandResult
	if err := json.Unmarshal(msg.Payload(), &result); err != nil {
		return
	}

	m.mu.Lock()
	ch, ok := m.pending[result.RequestID]
	if ok {
		delete(m.pending, result.RequestID)
	}
	m.mu.Unlock()

	if ok {
		ch <- result
	}
}

// request publishes a command and waits for the matching result.
func (m *MQTT) request(ctx context.Context, deviceID string, req commandRequest) (commandResult, error) {
	req.RequestID = uuid.NewString()

	ch := make(chan commandResult, 1)
	m.mu.Lock()
	m.pending[req.RequestID] = ch
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		delete(m.pending, req.RequestID)
		m.mu.Unlock()
	}()

	body, err := json.Marshal(req)
	if err != nil {
		return commandResult{}, fmt.Errorf("encoding command: %w", err)
	}

	topic := fmt.Sprintf("%s/devices/%s/cmd", m.cfg.TopicPrefix, deviceID)
	token := m.client.Publish(topic, 1, false, body)
	if !token.WaitTimeout(m.cfg.Timeout) {
		return commandResult{}, fmt.Errorf("%w: publish timed out", ErrUnreachable)
	}
	if err := token.Error(); err != nil {
		return commandResult{}, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}

	select {
	case result := <-ch:
		if !result.OK {
			return commandResult{}, fmt.Errorf("%w: %s", ErrCommandRejected, result.Error)
		}
		return result, nil
	case <-time.After(m.cfg.Timeout):
		return commandResult{}, fmt.Errorf("%w: no result within %s", ErrUnreachable, m.cfg.Timeout)
	case <-ctx.Done():
		return commandResult{}, fmt.Errorf("%w: %v", ErrUnreachable, ctx.Err())
	}
}

func (r commandResult) toDeviceState() DeviceState {
	reportedAt := r.ReportedAt
	if reportedAt.IsZero() {
		reportedAt = time.Now().UTC()
	}
	return DeviceState{
		IsLocked:     r.Locked,
		Online:       r.Online,
		BatteryLevel: r.Battery,
		ReportedAt:   reportedAt,
	}
}

// Lock sends a lock command over the broker.
func (m *MQTT) Lock(ctx context.Context, deviceID string) (DeviceState, error) {
	result, err := m.request(ctx, deviceID, commandRequest{Action: "lock"})
	if err != nil {
		return DeviceState{}, err
	}
	return result.toDeviceState(), nil
}

// Unlock sends an unlock command over the broker.
func (m *MQTT) Unlock(ctx context.Context, deviceID string) (DeviceState, error) {
	result, err := m.request(ctx, deviceID, commandRequest{Action: "unlock"})
	if err != nil {
		return DeviceState{}, err
	}
	return result.toDeviceState(), nil
}

// IssueCode programs a code on the device via its gateway.
func (m *MQTT) IssueCode(ctx context.Context, deviceID string, spec CodeSpec) (IssuedCode, error) {
	result, err := m.request(ctx, deviceID, commandRequest{
		Action: "issue_code",
		Code: &payload{
			Value:      spec.Code,
			Type:       spec.Type,
			ValidFrom:  spec.ValidFrom,
			ValidUntil: spec.ValidUntil,
		},
	})
	if err != nil {
		return IssuedCode{}, err
	}
	if result.CodeID == "" {
		return IssuedCode{}, fmt.Errorf("%w: gateway returned no code_id", ErrCommandRejected)
	}
	return IssuedCode{ExternalCodeID: result.CodeID}, nil
}

// RevokeCode clears a code from the device via its gateway.
func (m *MQTT) RevokeCode(ctx context.Context, deviceID, externalCodeID string) error {
	_, err := m.request(ctx, deviceID, commandRequest{
		Action: "revoke_code",
		Code:   &payload{ExternalID: externalCodeID},
	})
	return err
}

// FetchStatus queries the device's current state via its gateway.
func (m *MQTT) FetchStatus(ctx context.Context, deviceID string) (DeviceState, error) {
	result, err := m.request(ctx, deviceID, commandRequest{Action: "status"})
	if err != nil {
		return DeviceState{}, err
	}
	return result.toDeviceState(), nil
}
