// Package code enforces the access-code lifecycle independent of any vendor.
// A code moves active -> expired by time (or first use for one-time codes)
// and active -> revoked by explicit owner action; both are terminal.
package code

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/rental-access-control/backend/internal/dispatcher"
	"github.com/rental-access-control/backend/internal/storage"
)

// Sweeper periodically expires active codes whose validity window has
// elapsed. The lazy check on read (ListCodes) catches anything between
// sweeps.
type Sweeper struct {
	cron     *cron.Cron
	codes    *storage.AccessCodeRepository
	commands *dispatcher.Dispatcher
	logger   *zap.Logger
}

// NewSweeper creates a new expiry sweeper.
func NewSweeper(codes *storage.AccessCodeRepository, d *dispatcher.Dispatcher, logger *zap.Logger) *Sweeper {
	return &Sweeper{
		cron:     cron.New(),
		codes:    codes,
		commands: d,
		logger:   logger,
	}
}

// Start begins the sweep schedule.
func (s *Sweeper) Start() error {
	if _, err := s.cron.AddFunc("@every 1m", s.sweep); err != nil {
		return fmt.Errorf("scheduling expiry sweep: %w", err)
	}
	s.cron.Start()
	s.logger.Info("access code expiry sweeper started")
	return nil
}

// Stop gracefully shuts down the sweeper, waiting for a running sweep.
func (s *Sweeper) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("access code expiry sweeper stopped")
}

// Sweep runs one expiry pass immediately. Exposed for startup catch-up and
// tests.
func (s *Sweeper) Sweep(ctx context.Context) {
	candidates, err := s.codes.ListExpiredCandidates(ctx, now())
	if err != nil {
		s.logger.Error("listing expiry candidates", zap.Error(err))
		return
	}

	for _, c := range candidates {
		_, err := s.commands.ExpireCode(ctx, c.DeviceID, c.ID, "validity window elapsed")
		if err != nil {
			// Already-terminal codes lost a race with a revoke or the lazy
			// read path; anything else is worth a log line.
			if errors.Is(err, dispatcher.ErrInvalidState) {
				continue
			}
			s.logger.Warn("expiring code",
				zap.String("code_id", c.ID),
				zap.String("device_id", c.DeviceID),
				zap.Error(err))
		}
	}
}

func (s *Sweeper) sweep() {
	s.Sweep(context.Background())
}

func now() time.Time {
	return time.Now().UTC()
}
