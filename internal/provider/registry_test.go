package provider

import (
	"context"
	"errors"
	"testing"
)

func TestRegistryRegisterAndResolve(t *testing.T) {
	r := NewRegistry()

	if err := r.Register("mock", NewMock()); err != nil {
		t.Fatalf("Register: %v", err)
	}

	if _, ok := r.Resolve("mock"); !ok {
		t.Error("expected registered vendor to resolve")
	}
	if _, ok := r.Resolve("acme"); ok {
		t.Error("unregistered vendor must not resolve")
	}
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	r := NewRegistry()

	if err := r.Register("mock", NewMock()); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := r.Register("mock", NewMock()); err == nil {
		t.Error("expected duplicate registration to fail")
	}
	if err := r.Register("", NewMock()); err == nil {
		t.Error("expected empty vendor key to fail")
	}
	if err := r.Register("other", nil); err == nil {
		t.Error("expected nil provider to fail")
	}
}

func TestRegistryVendorsSorted(t *testing.T) {
	r := NewRegistry()
	for _, v := range []string{"zwave", "august", "mock"} {
		if err := r.Register(v, NewMock()); err != nil {
			t.Fatalf("Register(%s): %v", v, err)
		}
	}

	got := r.Vendors()
	want := []string{"august", "mock", "zwave"}
	if len(got) != len(want) {
		t.Fatalf("expected %d vendors, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("vendors[%d] = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestMockOfflineDevice(t *testing.T) {
	m := NewMock()
	ctx := context.Background()

	m.SetOffline("door-1", true)
	if _, err := m.Lock(ctx, "door-1"); !errors.Is(err, ErrUnreachable) {
		t.Fatalf("expected ErrUnreachable, got %v", err)
	}

	m.SetOffline("door-1", false)
	state, err := m.Lock(ctx, "door-1")
	if err != nil {
		t.Fatalf("Lock: %v", err)
	}
	if !state.IsLocked || !state.Online {
		t.Errorf("expected locked online state, got %+v", state)
	}
}

func TestMockCodeLifecycle(t *testing.T) {
	m := NewMock()
	ctx := context.Background()

	issued, err := m.IssueCode(ctx, "door-1", CodeSpec{Code: "1234", Type: "one_time"})
	if err != nil {
		t.Fatalf("IssueCode: %v", err)
	}
	if issued.ExternalCodeID == "" {
		t.Fatal("expected an external code ID")
	}
	if got := m.Codes("door-1"); len(got) != 1 {
		t.Fatalf("expected 1 code, got %d", len(got))
	}

	if err := m.RevokeCode(ctx, "door-1", issued.ExternalCodeID); err != nil {
		t.Fatalf("RevokeCode: %v", err)
	}
	if got := m.Codes("door-1"); len(got) != 0 {
		t.Fatalf("expected no codes after revoke, got %d", len(got))
	}

	if err := m.RevokeCode(ctx, "door-1", issued.ExternalCodeID); !errors.Is(err, ErrCommandRejected) {
		t.Fatalf("expected ErrCommandRejected for unknown code, got %v", err)
	}
}
