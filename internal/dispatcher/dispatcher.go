package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/rental-access-control/backend/internal/activity"
	"github.com/rental-access-control/backend/internal/provider"
	"github.com/rental-access-control/backend/internal/storage"
	"github.com/rental-access-control/backend/internal/storage/models"
	"github.com/rental-access-control/backend/internal/websocket"
)

// DefaultCommandTimeout bounds how long a vendor call may take before the
// command fails with ErrDeviceOffline.
const DefaultCommandTimeout = 10 * time.Second

// Dispatcher executes device commands against their vendor providers and
// owns the authoritative persisted state. It is constructed once at process
// start and passed explicitly to request handlers.
type Dispatcher struct {
	devices  *storage.DeviceRepository
	codes    *storage.AccessCodeRepository
	commands *storage.CommandRepository
	registry *provider.Registry
	recorder *activity.Recorder

	// broadcaster may be nil (tests without an event channel).
	broadcaster *websocket.EventBroadcaster

	logger  *zap.Logger
	timeout time.Duration

	// Per-device and per-code mutexes serialize racing read-modify-write
	// sequences. Keys are "device:<id>" and "code:<id>".
	keyed   map[string]*sync.Mutex
	keyedMu sync.Mutex
}

// New creates a dispatcher. Pass a zero timeout to use DefaultCommandTimeout.
func New(
	devices *storage.DeviceRepository,
	codes *storage.AccessCodeRepository,
	commands *storage.CommandRepository,
	registry *provider.Registry,
	recorder *activity.Recorder,
	broadcaster *websocket.EventBroadcaster,
	logger *zap.Logger,
	timeout time.Duration,
) *Dispatcher {
	if timeout <= 0 {
		timeout = DefaultCommandTimeout
	}
	return &Dispatcher{
		devices:     devices,
		codes:       codes,
		commands:    commands,
		registry:    registry,
		recorder:    recorder,
		broadcaster: broadcaster,
		logger:      logger,
		timeout:     timeout,
		keyed:       make(map[string]*sync.Mutex),
	}
}

func (d *Dispatcher) mutex(key string) *sync.Mutex {
	d.keyedMu.Lock()
	defer d.keyedMu.Unlock()

	mu, ok := d.keyed[key]
	if !ok {
		mu = &sync.Mutex{}
		d.keyed[key] = mu
	}
	return mu
}

// resolve loads a device and its provider.
func (d *Dispatcher) resolve(ctx context.Context, deviceID string) (*models.Device, provider.Provider, error) {
	device, err := d.devices.GetByID(ctx, deviceID)
	if err != nil {
		return nil, nil, err
	}
	if device == nil {
		return nil, nil, fmt.Errorf("%w: %s", ErrUnknownDevice, deviceID)
	}

	prov, ok := d.registry.Resolve(device.Vendor)
	if !ok {
		return nil, nil, fmt.Errorf("%w: no provider for vendor %q", ErrConfiguration, device.Vendor)
	}

	return device, prov, nil
}

// classify maps a provider error into the command taxonomy.
func classify(err error) error {
	switch {
	case errors.Is(err, provider.ErrUnreachable),
		errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %v", ErrDeviceOffline, err)
	case errors.Is(err, provider.ErrUnsupported):
		return fmt.Errorf("%w: %v", ErrVendorCommand, err)
	default:
		return fmt.Errorf("%w: %v", ErrVendorCommand, err)
	}
}

// vendorCtx derives the context for a provider call. The caller's deadline
// is intentionally detached: once dispatched, a vendor command is not
// cancelable, and its eventual result must still be applied (subject to the
// staleness gate) even if the caller stopped waiting.
func (d *Dispatcher) vendorCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), d.timeout)
}

// persistCtx is used for writes that must complete even after the caller
// abandoned the request.
func persistCtx(ctx context.Context) context.Context {
	return context.WithoutCancel(ctx)
}

// recordCommand writes a command-history row. Failures here are logged, not
// surfaced; command history is advisory next to the activity log.
func (d *Dispatcher) recordCommand(ctx context.Context, deviceID, command, status string, detail *string, requestedAt time.Time) {
	completedAt := time.Now().UTC()
	rec := &models.DeviceCommand{
		DeviceID:    deviceID,
		Command:     command,
		Status:      status,
		Detail:      detail,
		RequestedAt: requestedAt,
		CompletedAt: &completedAt,
	}
	if err := d.commands.Insert(ctx, rec); err != nil {
		d.logger.Warn("recording command history", zap.Error(err))
	}
}

// recordActivity appends an audit entry and publishes it on the property
// channel.
func (d *Dispatcher) recordActivity(ctx context.Context, device *models.Device, action, description string, actor *string) {
	entry, err := d.recorder.Record(ctx, device.ID, action, description, actor)
	if err != nil {
		d.logger.Warn("recording activity", zap.Error(err))
		return
	}
	if d.broadcaster != nil {
		d.broadcaster.Activity(device.PropertyID, entry)
	}
}

// Lock locks a device and returns the updated snapshot.
func (d *Dispatcher) Lock(ctx context.Context, deviceID string, actor *string) (*models.Device, error) {
	return d.executeLockCommand(ctx, deviceID, models.ActivityLock, actor)
}

// Unlock unlocks a device and returns the updated snapshot.
func (d *Dispatcher) Unlock(ctx context.Context, deviceID string, actor *string) (*models.Device, error) {
	return d.executeLockCommand(ctx, deviceID, models.ActivityUnlock, actor)
}

func (d *Dispatcher) executeLockCommand(ctx context.Context, deviceID, action string, actor *string) (*models.Device, error) {
	mu := d.mutex("device:" + deviceID)
	mu.Lock()
	defer mu.Unlock()

	device, prov, err := d.resolve(ctx, deviceID)
	if err != nil {
		return nil, err
	}
	if device.Kind != models.KindLock {
		return nil, fmt.Errorf("%w: device %s is a %s, not a lock", ErrValidation, deviceID, device.Kind)
	}

	requestedAt := time.Now().UTC()
	vctx, cancel := d.vendorCtx(ctx)
	defer cancel()

	var state provider.DeviceState
	if action == models.ActivityLock {
		state, err = prov.Lock(vctx, device.ExternalDeviceID)
	} else {
		state, err = prov.Unlock(vctx, device.ExternalDeviceID)
	}

	pctx := persistCtx(ctx)

	if err != nil {
		cmdErr := classify(err)
		detail := cmdErr.Error()
		d.recordCommand(pctx, device.ID, action, models.CommandStatusFailed, &detail, requestedAt)
		d.recordActivity(pctx, device, action, fmt.Sprintf("%s failed: %v", action, cmdErr), actor)
		return nil, cmdErr
	}

	applied, err := d.devices.ApplyState(pctx, device.ID,
		state.IsLocked, deviceStatus(state.Online), state.BatteryLevel, state.ReportedAt)
	if err != nil {
		return nil, err
	}

	if !applied {
		// A newer state arrived while the command was in flight. Annotate
		// instead of silently applying the stale result.
		detail := "stale result discarded"
		d.recordCommand(pctx, device.ID, action, models.CommandStatusOK, &detail, requestedAt)
		d.recordActivity(pctx, device, models.ActivitySync,
			fmt.Sprintf("%s result at %s discarded as stale", action, state.ReportedAt.Format(time.RFC3339)), actor)
		return d.devices.GetByID(pctx, device.ID)
	}

	updated, err := d.devices.GetByID(pctx, device.ID)
	if err != nil {
		return nil, err
	}

	d.recordCommand(pctx, device.ID, action, models.CommandStatusOK, nil, requestedAt)
	d.recordActivity(pctx, updated, action, fmt.Sprintf("device %sed via %s", action, device.Vendor), actor)

	if d.broadcaster != nil {
		d.broadcaster.LockStatusChanged(updated)
	}

	return updated, nil
}

// CodeRequest describes a new access code to issue.
type CodeRequest struct {
	Code       string     `json:"code"`
	Type       string     `json:"type"`
	ValidFrom  *time.Time `json:"valid_from,omitempty"`
	ValidUntil *time.Time `json:"valid_until,omitempty"`
}

func (r CodeRequest) validate() error {
	if r.Code == "" {
		return fmt.Errorf("%w: code value must not be empty", ErrValidation)
	}
	if r.Type != models.CodeTypeOneTime && r.Type != models.CodeTypeRecurring {
		return fmt.Errorf("%w: type must be %q or %q", ErrValidation,
			models.CodeTypeOneTime, models.CodeTypeRecurring)
	}
	if r.ValidFrom != nil && r.ValidUntil != nil && !r.ValidUntil.After(*r.ValidFrom) {
		return fmt.Errorf("%w: valid_until must be after valid_from", ErrValidation)
	}
	return nil
}

// IssueCode programs a new access code on a lock and persists it in active
// status.
func (d *Dispatcher) IssueCode(ctx context.Context, deviceID string, req CodeRequest, actor *string) (*models.AccessCode, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	mu := d.mutex("device:" + deviceID)
	mu.Lock()
	defer mu.Unlock()

	device, prov, err := d.resolve(ctx, deviceID)
	if err != nil {
		return nil, err
	}
	if device.Kind != models.KindLock {
		return nil, fmt.Errorf("%w: device %s is a %s, not a lock", ErrValidation, deviceID, device.Kind)
	}

	requestedAt := time.Now().UTC()
	vctx, cancel := d.vendorCtx(ctx)
	defer cancel()

	issued, err := prov.IssueCode(vctx, device.ExternalDeviceID, provider.CodeSpec{
		Code:       req.Code,
		Type:       req.Type,
		ValidFrom:  req.ValidFrom,
		ValidUntil: req.ValidUntil,
	})

	pctx := persistCtx(ctx)

	if err != nil {
		cmdErr := classify(err)
		detail := cmdErr.Error()
		d.recordCommand(pctx, device.ID, "issue_code", models.CommandStatusFailed, &detail, requestedAt)
		d.recordActivity(pctx, device, models.ActivityCodeCreated,
			fmt.Sprintf("code issuance failed: %v", cmdErr), actor)
		return nil, cmdErr
	}

	code := &models.AccessCode{
		DeviceID:       device.ID,
		Code:           req.Code,
		Type:           req.Type,
		Status:         models.CodeStatusActive,
		ExternalCodeID: issued.ExternalCodeID,
		ValidFrom:      req.ValidFrom,
		ValidUntil:     req.ValidUntil,
	}
	if err := d.codes.Create(pctx, code); err != nil {
		// The device is already programmed with a code we failed to record.
		// Clear it vendor-side so the physical lock and the database agree.
		rvctx, rcancel := d.vendorCtx(ctx)
		if rerr := prov.RevokeCode(rvctx, device.ExternalDeviceID, issued.ExternalCodeID); rerr != nil {
			d.logger.Warn("clearing unpersisted vendor code failed; code remains programmed on device",
				zap.String("device_id", device.ID),
				zap.String("external_code_id", issued.ExternalCodeID),
				zap.Error(rerr))
		}
		rcancel()

		cmdErr := err
		if errors.Is(err, storage.ErrDuplicateActiveCode) {
			cmdErr = fmt.Errorf("%w: %v", ErrInvalidState, err)
		}
		detail := cmdErr.Error()
		d.recordCommand(pctx, device.ID, "issue_code", models.CommandStatusFailed, &detail, requestedAt)
		d.recordActivity(pctx, device, models.ActivityCodeCreated,
			fmt.Sprintf("code issuance failed: %v", cmdErr), actor)
		return nil, cmdErr
	}

	d.recordCommand(pctx, device.ID, "issue_code", models.CommandStatusOK, nil, requestedAt)
	d.recordActivity(pctx, device, models.ActivityCodeCreated,
		fmt.Sprintf("%s code issued", req.Type), actor)

	if d.broadcaster != nil {
		d.broadcaster.CodeCreated(device.PropertyID, code)
	}

	return code, nil
}

// RevokeCode transitions a code from active to revoked, clearing it from the
// device through the vendor first.
func (d *Dispatcher) RevokeCode(ctx context.Context, deviceID, codeID string, actor *string) (*models.AccessCode, error) {
	return d.retireCode(ctx, deviceID, codeID, models.CodeStatusRevoked,
		models.ActivityCodeRevoked, "code revoked", actor)
}

// ExpireCode transitions a code from active to expired. Used by the expiry
// sweep and by one-time-use callbacks; the vendor-side code is cleared as
// part of the transition.
func (d *Dispatcher) ExpireCode(ctx context.Context, deviceID, codeID, reason string) (*models.AccessCode, error) {
	return d.retireCode(ctx, deviceID, codeID, models.CodeStatusExpired,
		models.ActivityCodeExpired, reason, nil)
}

func (d *Dispatcher) retireCode(ctx context.Context, deviceID, codeID, toStatus, action, description string, actor *string) (*models.AccessCode, error) {
	mu := d.mutex("code:" + codeID)
	mu.Lock()
	defer mu.Unlock()

	device, prov, err := d.resolve(ctx, deviceID)
	if err != nil {
		return nil, err
	}

	code, err := d.codes.GetByID(ctx, codeID)
	if err != nil {
		return nil, err
	}
	if code == nil || code.DeviceID != device.ID {
		return nil, fmt.Errorf("%w: %s on device %s", ErrUnknownCode, codeID, deviceID)
	}

	pctx := persistCtx(ctx)

	if code.IsTerminal() {
		d.recordActivity(pctx, device, action,
			fmt.Sprintf("transition to %s rejected: code already %s", toStatus, code.Status), actor)
		return nil, fmt.Errorf("%w: code is %s", ErrInvalidState, code.Status)
	}

	requestedAt := time.Now().UTC()
	vctx, cancel := d.vendorCtx(ctx)
	defer cancel()

	if err := prov.RevokeCode(vctx, device.ExternalDeviceID, code.ExternalCodeID); err != nil {
		cmdErr := classify(err)
		detail := cmdErr.Error()
		d.recordCommand(pctx, device.ID, "revoke_code", models.CommandStatusFailed, &detail, requestedAt)
		d.recordActivity(pctx, device, action,
			fmt.Sprintf("code revocation failed: %v", cmdErr), actor)
		return nil, cmdErr
	}

	applied, err := d.codes.Transition(pctx, code.ID, toStatus)
	if err != nil {
		return nil, err
	}
	if !applied {
		return nil, fmt.Errorf("%w: code already left active", ErrInvalidState)
	}
	code.Status = toStatus

	d.recordCommand(pctx, device.ID, "revoke_code", models.CommandStatusOK, nil, requestedAt)
	d.recordActivity(pctx, device, action, description, actor)

	if d.broadcaster != nil {
		d.broadcaster.CodeRevoked(device.PropertyID, code)
	}

	return code, nil
}

// Status returns the device snapshot. By default the cached state wins; with
// forceRefresh the provider is queried and the result reconciled through the
// staleness gate. Clients use forceRefresh to repair state after an event
// channel disconnect.
func (d *Dispatcher) Status(ctx context.Context, deviceID string, forceRefresh bool) (*models.Device, error) {
	device, prov, err := d.resolve(ctx, deviceID)
	if err != nil {
		return nil, err
	}
	if !forceRefresh {
		return device, nil
	}

	mu := d.mutex("device:" + deviceID)
	mu.Lock()
	defer mu.Unlock()

	vctx, cancel := d.vendorCtx(ctx)
	defer cancel()

	state, err := prov.FetchStatus(vctx, device.ExternalDeviceID)
	pctx := persistCtx(ctx)

	if err != nil {
		cmdErr := classify(err)
		if errors.Is(cmdErr, ErrDeviceOffline) {
			if applied, merr := d.devices.MarkOffline(pctx, device.ID, time.Now().UTC()); merr == nil && applied {
				if updated, gerr := d.devices.GetByID(pctx, device.ID); gerr == nil && updated != nil {
					if d.broadcaster != nil {
						d.broadcaster.LockStatusChanged(updated)
					}
				}
			}
		}
		return nil, cmdErr
	}

	applied, err := d.devices.ApplyState(pctx, device.ID,
		state.IsLocked, deviceStatus(state.Online), state.BatteryLevel, state.ReportedAt)
	if err != nil {
		return nil, err
	}

	updated, err := d.devices.GetByID(pctx, device.ID)
	if err != nil {
		return nil, err
	}

	if applied {
		d.recordActivity(pctx, updated, models.ActivitySync, "status refreshed from vendor", nil)
		if d.broadcaster != nil {
			d.broadcaster.LockStatusChanged(updated)
		}
	}

	return updated, nil
}

// ListCodes returns all codes on a device, lazily expiring any active code
// whose validity window has elapsed.
func (d *Dispatcher) ListCodes(ctx context.Context, deviceID string) ([]models.AccessCode, error) {
	device, _, err := d.resolve(ctx, deviceID)
	if err != nil {
		return nil, err
	}

	codes, err := d.codes.ListByDevice(ctx, device.ID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	for i := range codes {
		c := &codes[i]
		if c.Status == models.CodeStatusActive && c.WindowElapsed(now) {
			if expired, err := d.ExpireCode(ctx, device.ID, c.ID, "validity window elapsed"); err == nil {
				codes[i] = *expired
			}
		}
	}

	return codes, nil
}

func deviceStatus(online bool) string {
	if online {
		return models.DeviceStatusOnline
	}
	return models.DeviceStatusOffline
}
