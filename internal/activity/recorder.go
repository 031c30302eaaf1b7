// Package activity provides the append-only audit log for device actions.
package activity

import (
	"context"
	"fmt"

	"github.com/rental-access-control/backend/internal/storage"
	"github.com/rental-access-control/backend/internal/storage/models"
)

// Recorder appends audit entries and serves the read-only activity view.
// Record is the only mutator; it is called by the command dispatcher and the
// inbound webhook handler, nothing else.
type Recorder struct {
	repo *storage.ActivityRepository
}

// NewRecorder creates a new activity recorder.
func NewRecorder(repo *storage.ActivityRepository) *Recorder {
	return &Recorder{repo: repo}
}

// Record appends an activity entry and returns it.
func (r *Recorder) Record(ctx context.Context, deviceID, action, description string, actor *string) (*models.DeviceActivity, error) {
	if !models.ValidActivityAction(action) {
		return nil, fmt.Errorf("unknown activity action: %s", action)
	}

	entry := &models.DeviceActivity{
		DeviceID:    deviceID,
		Action:      action,
		Description: description,
		Actor:       actor,
	}
	if err := r.repo.Insert(ctx, entry); err != nil {
		return nil, err
	}

	return entry, nil
}

// Page is one page of the activity view.
type Page struct {
	Entries []models.DeviceActivity `json:"entries"`
	Total   int                     `json:"total"`
	Limit   int                     `json:"limit"`
	Offset  int                     `json:"offset"`
}

// List returns a page of a device's activity, newest first, optionally
// filtered by action kind.
func (r *Recorder) List(ctx context.Context, deviceID, action string, limit, offset int) (*Page, error) {
	if action != "" && !models.ValidActivityAction(action) {
		return nil, fmt.Errorf("unknown activity action: %s", action)
	}
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	entries, err := r.repo.ListByDevice(ctx, deviceID, action, limit, offset)
	if err != nil {
		return nil, err
	}

	total, err := r.repo.CountByDevice(ctx, deviceID, action)
	if err != nil {
		return nil, err
	}

	if entries == nil {
		entries = []models.DeviceActivity{}
	}

	return &Page{
		Entries: entries,
		Total:   total,
		Limit:   limit,
		Offset:  offset,
	}, nil
}
