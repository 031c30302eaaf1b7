package websocket

import (
	"encoding/json"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/rental-access-control/backend/internal/storage/models"
)

func newTestHub() *Hub {
	h := NewHub(zap.NewNop())
	go h.Run()
	return h
}

func recv(t *testing.T, c *Client) []byte {
	t.Helper()
	select {
	case data := <-c.Send():
		return data
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return nil
	}
}

func expectSilence(t *testing.T, c *Client) {
	t.Helper()
	select {
	case data := <-c.Send():
		t.Fatalf("unexpected event: %s", data)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHubRoutesToSubscribedPropertyOnly(t *testing.T) {
	h := newTestHub()

	subscriber := NewClient(h, "user-1")
	subscriber.Subscribe("prop-1")
	h.Register(subscriber)

	bystander := NewClient(h, "user-2")
	bystander.Subscribe("prop-2")
	h.Register(bystander)

	h.Publish("prop-1", []byte(`{"type":"lock.status.changed"}`))

	if got := recv(t, subscriber); string(got) != `{"type":"lock.status.changed"}` {
		t.Errorf("unexpected payload: %s", got)
	}
	expectSilence(t, bystander)
}

func TestHubUnsubscribeStopsDelivery(t *testing.T) {
	h := newTestHub()

	client := NewClient(h, "user-1")
	client.Subscribe("prop-1")
	h.Register(client)

	h.Publish("prop-1", []byte(`first`))
	recv(t, client)

	client.Unsubscribe("prop-1")
	h.Publish("prop-1", []byte(`second`))
	expectSilence(t, client)
}

func TestHubPreservesPublishOrder(t *testing.T) {
	h := newTestHub()

	client := NewClient(h, "user-1")
	client.Subscribe("prop-1")
	h.Register(client)

	h.Publish("prop-1", []byte(`1`))
	h.Publish("prop-1", []byte(`2`))
	h.Publish("prop-1", []byte(`3`))

	for _, want := range []string{"1", "2", "3"} {
		if got := string(recv(t, client)); got != want {
			t.Fatalf("out of order delivery: got %s, want %s", got, want)
		}
	}
}

func TestBroadcasterEventShapes(t *testing.T) {
	h := newTestHub()

	client := NewClient(h, "user-1")
	client.Subscribe("prop-1")
	h.Register(client)

	b := NewEventBroadcaster(h, zap.NewNop())

	device := &models.Device{
		ID:         "dev-1",
		PropertyID: "prop-1",
		Kind:       models.KindLock,
		IsLocked:   true,
		Status:     models.DeviceStatusOnline,
	}
	b.LockStatusChanged(device)

	var msg Message
	if err := json.Unmarshal(recv(t, client), &msg); err != nil {
		t.Fatalf("decoding event: %v", err)
	}
	if msg.Type != TypeLockStatusChanged {
		t.Errorf("expected %s, got %s", TypeLockStatusChanged, msg.Type)
	}

	code := &models.AccessCode{ID: "code-1", DeviceID: "dev-1", Status: models.CodeStatusActive}
	b.CodeCreated("prop-1", code)
	if err := json.Unmarshal(recv(t, client), &msg); err != nil {
		t.Fatalf("decoding event: %v", err)
	}
	if msg.Type != TypeCodeCreated {
		t.Errorf("expected %s, got %s", TypeCodeCreated, msg.Type)
	}

	b.CodeRevoked("prop-1", code)
	if err := json.Unmarshal(recv(t, client), &msg); err != nil {
		t.Fatalf("decoding event: %v", err)
	}
	if msg.Type != TypeCodeRevoked {
		t.Errorf("expected %s, got %s", TypeCodeRevoked, msg.Type)
	}

	activity := &models.DeviceActivity{ID: "act-1", DeviceID: "dev-1", Action: models.ActivityLock}
	b.Activity("prop-1", activity)
	if err := json.Unmarshal(recv(t, client), &msg); err != nil {
		t.Fatalf("decoding event: %v", err)
	}
	if msg.Type != TypeLockActivity {
		t.Errorf("expected %s, got %s", TypeLockActivity, msg.Type)
	}
}
