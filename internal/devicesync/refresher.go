// Package devicesync keeps cached device state loosely aligned with vendor
// truth between push events.
package devicesync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/rental-access-control/backend/internal/dispatcher"
	"github.com/rental-access-control/backend/internal/storage"
	"github.com/rental-access-control/backend/internal/storage/models"
)

// Refresher polls providers for every registered lock on an interval and
// reconciles the results through the dispatcher's staleness gate, so a poll
// can only advance state, never regress it. Push events remain the primary
// sync path; this is the safety net under them.
type Refresher struct {
	cron       *cron.Cron
	devices    *storage.DeviceRepository
	dispatcher *dispatcher.Dispatcher
	logger     *zap.Logger
	interval   time.Duration
}

// NewRefresher creates a status refresher. Interval <= 0 defaults to 5m.
func NewRefresher(devices *storage.DeviceRepository, d *dispatcher.Dispatcher, interval time.Duration, logger *zap.Logger) *Refresher {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Refresher{
		cron:       cron.New(),
		devices:    devices,
		dispatcher: d,
		logger:     logger,
		interval:   interval,
	}
}

// Start begins the refresh schedule.
func (r *Refresher) Start() error {
	_, err := r.cron.AddFunc(fmt.Sprintf("@every %s", r.interval), r.refresh)
	if err != nil {
		return fmt.Errorf("scheduling status refresh: %w", err)
	}
	r.cron.Start()
	r.logger.Info("device status refresher started", zap.Duration("interval", r.interval))
	return nil
}

// Stop gracefully shuts down the refresher.
func (r *Refresher) Stop() {
	ctx := r.cron.Stop()
	<-ctx.Done()
	r.logger.Info("device status refresher stopped")
}

// Refresh runs one poll pass immediately.
func (r *Refresher) Refresh(ctx context.Context) {
	devices, err := r.devices.List(ctx)
	if err != nil {
		r.logger.Error("listing devices for refresh", zap.Error(err))
		return
	}

	for _, d := range devices {
		if d.Kind != models.KindLock {
			continue
		}
		if _, err := r.dispatcher.Status(ctx, d.ID, true); err != nil {
			// Offline devices are expected here; the forced status call has
			// already marked them and broadcast the change.
			if errors.Is(err, dispatcher.ErrDeviceOffline) {
				continue
			}
			r.logger.Warn("refreshing device status",
				zap.String("device_id", d.ID), zap.Error(err))
		}
	}
}

func (r *Refresher) refresh() {
	r.Refresh(context.Background())
}
