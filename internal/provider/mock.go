package provider

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Mock is an in-memory provider for tests and local development. Devices are
// created on first touch. Devices added to the offline set fail every
// command with ErrUnreachable.
type Mock struct {
	mu      sync.Mutex
	devices map[string]*mockDevice
	offline map[string]bool

	// Latency is added to every call when set, to exercise timeout paths.
	Latency time.Duration

	now func() time.Time
}

type mockDevice struct {
	isLocked bool
	battery  int
	codes    map[string]CodeSpec // external code ID -> spec
}

// NewMock creates a mock provider.
func NewMock() *Mock {
	return &Mock{
		devices: make(map[string]*mockDevice),
		offline: make(map[string]bool),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// SetOffline marks a device unreachable (or reachable again).
func (m *Mock) SetOffline(deviceID string, offline bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.offline[deviceID] = offline
}

// SetClock overrides the time source for tests.
func (m *Mock) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

// Codes returns the external IDs of codes currently held on a device.
func (m *Mock) Codes(deviceID string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	d, ok := m.devices[deviceID]
	if !ok {
		return nil
	}
	ids := make([]string, 0, len(d.codes))
	for id := range d.codes {
		ids = append(ids, id)
	}
	return ids
}

func (m *Mock) device(deviceID string) *mockDevice {
	d, ok := m.devices[deviceID]
	if !ok {
		d = &mockDevice{battery: 100, codes: make(map[string]CodeSpec)}
		m.devices[deviceID] = d
	}
	return d
}

func (m *Mock) checkReachable(ctx context.Context, deviceID string) error {
	if m.Latency > 0 {
		select {
		case <-time.After(m.Latency):
		case <-ctx.Done():
			return fmt.Errorf("%w: %v", ErrUnreachable, ctx.Err())
		}
	}
	if m.offline[deviceID] {
		return fmt.Errorf("%w: device %s offline", ErrUnreachable, deviceID)
	}
	return nil
}

func (m *Mock) state(d *mockDevice) DeviceState {
	battery := d.battery
	return DeviceState{
		IsLocked:     d.isLocked,
		Online:       true,
		BatteryLevel: &battery,
		ReportedAt:   m.now(),
	}
}

// Lock locks the device.
func (m *Mock) Lock(ctx context.Context, deviceID string) (DeviceState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkReachable(ctx, deviceID); err != nil {
		return DeviceState{}, err
	}

	d := m.device(deviceID)
	d.isLocked = true
	return m.state(d), nil
}

// Unlock unlocks the device.
func (m *Mock) Unlock(ctx context.Context, deviceID string) (DeviceState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkReachable(ctx, deviceID); err != nil {
		return DeviceState{}, err
	}

	d := m.device(deviceID)
	d.isLocked = false
	return m.state(d), nil
}

// IssueCode stores a code on the device and returns a generated external ID.
func (m *Mock) IssueCode(ctx context.Context, deviceID string, spec CodeSpec) (IssuedCode, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkReachable(ctx, deviceID); err != nil {
		return IssuedCode{}, err
	}
	if spec.Code == "" {
		return IssuedCode{}, fmt.Errorf("%w: empty code", ErrCommandRejected)
	}

	d := m.device(deviceID)
	externalID := uuid.NewString()
	d.codes[externalID] = spec

	return IssuedCode{ExternalCodeID: externalID}, nil
}

// RevokeCode removes a code from the device.
func (m *Mock) RevokeCode(ctx context.Context, deviceID, externalCodeID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkReachable(ctx, deviceID); err != nil {
		return err
	}

	d := m.device(deviceID)
	if _, ok := d.codes[externalCodeID]; !ok {
		return fmt.Errorf("%w: unknown code %s", ErrCommandRejected, externalCodeID)
	}
	delete(d.codes, externalCodeID)

	return nil
}

// FetchStatus returns the device's current state.
func (m *Mock) FetchStatus(ctx context.Context, deviceID string) (DeviceState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkReachable(ctx, deviceID); err != nil {
		return DeviceState{}, err
	}

	return m.state(m.device(deviceID)), nil
}

// SetTemperature implements ThermostatController.
func (m *Mock) SetTemperature(ctx context.Context, deviceID string, celsius float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkReachable(ctx, deviceID); err != nil {
		return err
	}
	if celsius < 5 || celsius > 35 {
		return fmt.Errorf("%w: setpoint %.1f out of range", ErrCommandRejected, celsius)
	}
	return nil
}

// SetLight implements LightController.
func (m *Mock) SetLight(ctx context.Context, deviceID string, on bool, brightness int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkReachable(ctx, deviceID); err != nil {
		return err
	}
	if brightness < 0 || brightness > 100 {
		return fmt.Errorf("%w: brightness %d out of range", ErrCommandRejected, brightness)
	}
	return nil
}

// StreamURL implements CameraStreamer.
func (m *Mock) StreamURL(ctx context.Context, deviceID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkReachable(ctx, deviceID); err != nil {
		return "", err
	}
	return fmt.Sprintf("rtsp://mock.local/%s?token=%s", deviceID, uuid.NewString()), nil
}
