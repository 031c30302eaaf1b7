package dispatcher

import (
	"context"
	"fmt"
	"time"

	"github.com/rental-access-control/backend/internal/provider"
	"github.com/rental-access-control/backend/internal/storage/models"
)

// Non-lock device variants share the dispatcher's resolve/classify/record
// plumbing but only touch command history, not lock state.

// SetThermostat sets a thermostat's target temperature.
func (d *Dispatcher) SetThermostat(ctx context.Context, deviceID string, celsius float64) error {
	device, prov, err := d.resolveKind(ctx, deviceID, models.KindThermostat)
	if err != nil {
		return err
	}

	controller, ok := prov.(provider.ThermostatController)
	if !ok {
		return fmt.Errorf("%w: vendor %q has no thermostat support", ErrVendorCommand, device.Vendor)
	}

	return d.runControl(ctx, device, "thermostat_set",
		fmt.Sprintf("setpoint %.1fC", celsius),
		func(vctx context.Context) error {
			return controller.SetTemperature(vctx, device.ExternalDeviceID, celsius)
		})
}

// SetLight switches a light and optionally sets its brightness (0-100).
func (d *Dispatcher) SetLight(ctx context.Context, deviceID string, on bool, brightness int) error {
	device, prov, err := d.resolveKind(ctx, deviceID, models.KindLight)
	if err != nil {
		return err
	}

	controller, ok := prov.(provider.LightController)
	if !ok {
		return fmt.Errorf("%w: vendor %q has no light support", ErrVendorCommand, device.Vendor)
	}

	return d.runControl(ctx, device, "light_set",
		fmt.Sprintf("on=%t brightness=%d", on, brightness),
		func(vctx context.Context) error {
			return controller.SetLight(vctx, device.ExternalDeviceID, on, brightness)
		})
}

// CameraStreamURL returns a tokenized stream URL for a camera device.
func (d *Dispatcher) CameraStreamURL(ctx context.Context, deviceID string) (string, error) {
	device, prov, err := d.resolveKind(ctx, deviceID, models.KindCamera)
	if err != nil {
		return "", err
	}

	streamer, ok := prov.(provider.CameraStreamer)
	if !ok {
		return "", fmt.Errorf("%w: vendor %q has no camera support", ErrVendorCommand, device.Vendor)
	}

	vctx, cancel := d.vendorCtx(ctx)
	defer cancel()

	url, err := streamer.StreamURL(vctx, device.ExternalDeviceID)
	if err != nil {
		return "", classify(err)
	}

	return url, nil
}

func (d *Dispatcher) resolveKind(ctx context.Context, deviceID string, kind models.DeviceKind) (*models.Device, provider.Provider, error) {
	device, prov, err := d.resolve(ctx, deviceID)
	if err != nil {
		return nil, nil, err
	}
	if device.Kind != kind {
		return nil, nil, fmt.Errorf("%w: device %s is a %s, not a %s",
			ErrValidation, deviceID, device.Kind, kind)
	}
	return device, prov, nil
}

func (d *Dispatcher) runControl(ctx context.Context, device *models.Device, command, detail string, fn func(context.Context) error) error {
	requestedAt := time.Now().UTC()
	vctx, cancel := d.vendorCtx(ctx)
	defer cancel()

	err := fn(vctx)
	pctx := persistCtx(ctx)

	if err != nil {
		cmdErr := classify(err)
		failure := cmdErr.Error()
		d.recordCommand(pctx, device.ID, command, models.CommandStatusFailed, &failure, requestedAt)
		return cmdErr
	}

	d.recordCommand(pctx, device.ID, command, models.CommandStatusOK, &detail, requestedAt)
	return nil
}
