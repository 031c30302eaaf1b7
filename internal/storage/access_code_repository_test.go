package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rental-access-control/backend/internal/storage/models"
)

func seedCode(t *testing.T, db *DB, deviceID string, validUntil *time.Time) *models.AccessCode {
	t.Helper()

	c := &models.AccessCode{
		DeviceID:       deviceID,
		Code:           "pin-" + GenerateID(),
		Type:           models.CodeTypeOneTime,
		ExternalCodeID: "ext-code-" + GenerateID(),
		ValidUntil:     validUntil,
	}
	if err := NewAccessCodeRepository(db).Create(context.Background(), c); err != nil {
		t.Fatalf("creating code: %v", err)
	}
	return c
}

func TestCreateDuplicateActiveValue(t *testing.T) {
	db := testDB(t)
	property := seedProperty(t, db)
	device := seedDevice(t, db, property.ID)
	code := seedCode(t, db, device.ID, nil)
	repo := NewAccessCodeRepository(db)
	ctx := context.Background()

	dup := &models.AccessCode{
		DeviceID:       device.ID,
		Code:           code.Code,
		Type:           models.CodeTypeRecurring,
		ExternalCodeID: "ext-code-" + GenerateID(),
	}
	if err := repo.Create(ctx, dup); !errors.Is(err, ErrDuplicateActiveCode) {
		t.Fatalf("expected ErrDuplicateActiveCode, got %v", err)
	}

	// Once the first code leaves active the value becomes reusable.
	if _, err := repo.Transition(ctx, code.ID, models.CodeStatusRevoked); err != nil {
		t.Fatalf("Transition: %v", err)
	}
	if err := repo.Create(ctx, dup); err != nil {
		t.Fatalf("re-creating value after revoke: %v", err)
	}
}

func TestTransitionIsOneShot(t *testing.T) {
	db := testDB(t)
	property := seedProperty(t, db)
	device := seedDevice(t, db, property.ID)
	code := seedCode(t, db, device.ID, nil)
	repo := NewAccessCodeRepository(db)
	ctx := context.Background()

	applied, err := repo.Transition(ctx, code.ID, models.CodeStatusRevoked)
	if err != nil {
		t.Fatalf("Transition: %v", err)
	}
	if !applied {
		t.Fatal("expected active code to transition")
	}

	// A second transition races against the first and loses.
	applied, err = repo.Transition(ctx, code.ID, models.CodeStatusExpired)
	if err != nil {
		t.Fatalf("Transition: %v", err)
	}
	if applied {
		t.Fatal("terminal code must not transition again")
	}

	stored, err := repo.GetByID(ctx, code.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if stored.Status != models.CodeStatusRevoked {
		t.Errorf("expected revoked, got %s", stored.Status)
	}
}

func TestTransitionRejectsInvalidTarget(t *testing.T) {
	db := testDB(t)
	repo := NewAccessCodeRepository(db)

	if _, err := repo.Transition(context.Background(), "any", models.CodeStatusActive); err == nil {
		t.Error("expected transition to active to be rejected")
	}
}

func TestListExpiredCandidates(t *testing.T) {
	db := testDB(t)
	property := seedProperty(t, db)
	device := seedDevice(t, db, property.ID)
	repo := NewAccessCodeRepository(db)
	ctx := context.Background()

	past := time.Now().UTC().Add(-time.Hour)
	future := time.Now().UTC().Add(time.Hour)

	elapsed := seedCode(t, db, device.ID, &past)
	seedCode(t, db, device.ID, &future)
	seedCode(t, db, device.ID, nil)

	candidates, err := repo.ListExpiredCandidates(ctx, time.Now().UTC())
	if err != nil {
		t.Fatalf("ListExpiredCandidates: %v", err)
	}
	if len(candidates) != 1 || candidates[0].ID != elapsed.ID {
		t.Fatalf("expected only the elapsed code, got %+v", candidates)
	}

	// Already-expired codes drop out of the candidate set.
	if _, err := repo.Transition(ctx, elapsed.ID, models.CodeStatusExpired); err != nil {
		t.Fatalf("Transition: %v", err)
	}
	candidates, err = repo.ListExpiredCandidates(ctx, time.Now().UTC())
	if err != nil {
		t.Fatalf("ListExpiredCandidates: %v", err)
	}
	if len(candidates) != 0 {
		t.Errorf("expected no candidates, got %d", len(candidates))
	}
}

func TestGetActiveByExternalID(t *testing.T) {
	db := testDB(t)
	property := seedProperty(t, db)
	device := seedDevice(t, db, property.ID)
	code := seedCode(t, db, device.ID, nil)
	repo := NewAccessCodeRepository(db)
	ctx := context.Background()

	got, err := repo.GetActiveByExternalID(ctx, device.ID, code.ExternalCodeID)
	if err != nil {
		t.Fatalf("GetActiveByExternalID: %v", err)
	}
	if got == nil || got.ID != code.ID {
		t.Fatalf("expected code %s, got %+v", code.ID, got)
	}

	if _, err := repo.Transition(ctx, code.ID, models.CodeStatusRevoked); err != nil {
		t.Fatalf("Transition: %v", err)
	}

	got, err = repo.GetActiveByExternalID(ctx, device.ID, code.ExternalCodeID)
	if err != nil {
		t.Fatalf("GetActiveByExternalID: %v", err)
	}
	if got != nil {
		t.Error("revoked code must not resolve as active")
	}
}
