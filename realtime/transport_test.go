package realtime

import (
	"context"
	"testing"
	"time"

	"github.com/goliatone/go-query-sync/gateway"
)

func TestMemoryNotifier_DeliversToChannel(t *testing.T) {
	n := NewMemoryNotifier()
	ctx := context.Background()

	events, stop, err := n.Subscribe(ctx, "favorites-user-u1")
	if err != nil {
		t.Fatal(err)
	}
	defer stop()

	want := ChangeEvent{Entity: "favorites", Action: ActionInsert, Row: gateway.Row{"id": "f1"}}
	if err := n.Notify(ctx, "favorites-user-u1", want); err != nil {
		t.Fatal(err)
	}

	select {
	case got := <-events:
		if got.Entity != "favorites" || got.Row["id"] != "f1" {
			t.Errorf("unexpected event %+v", got)
		}
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}
}

func TestMemoryNotifier_ChannelsAreIsolated(t *testing.T) {
	n := NewMemoryNotifier()
	ctx := context.Background()

	events, stop, err := n.Subscribe(ctx, "bookings-user-u1")
	if err != nil {
		t.Fatal(err)
	}
	defer stop()

	if err := n.Notify(ctx, "bookings-user-u2", ChangeEvent{Entity: "bookings"}); err != nil {
		t.Fatal(err)
	}

	select {
	case ev := <-events:
		t.Errorf("received event %+v from a different channel", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestMemoryNotifier_StopReleasesSubscription(t *testing.T) {
	n := NewMemoryNotifier()

	_, stop, err := n.Subscribe(context.Background(), "gyms-city-berlin")
	if err != nil {
		t.Fatal(err)
	}

	if got := n.SubscriberCount("gyms-city-berlin"); got != 1 {
		t.Fatalf("expected 1 subscriber, got %d", got)
	}

	stop()
	stop() // second call is a no-op

	if got := n.SubscriberCount("gyms-city-berlin"); got != 0 {
		t.Errorf("expected 0 subscribers after stop, got %d", got)
	}
}

func TestMemoryNotifier_SlowSubscriberDropsEvents(t *testing.T) {
	n := NewMemoryNotifier()
	ctx := context.Background()

	_, stop, err := n.Subscribe(ctx, "ch")
	if err != nil {
		t.Fatal(err)
	}
	defer stop()

	// Nobody drains; publishing past the buffer must not block.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < subscriberBuffer*2; i++ {
			n.Notify(ctx, "ch", ChangeEvent{Entity: "messages"})
		}
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publisher blocked on a slow subscriber")
	}
}
