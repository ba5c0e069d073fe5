package server

import (
	"context"
	"testing"
	"time"
)

func TestRealtimeDispatcherPublishesToSubscriber(t *testing.T) {
	dispatcher := NewRealtimeDispatcher()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stream, cleanup := dispatcher.Subscribe(ctx, "alice")
	defer cleanup()

	dispatcher.Publish(RealtimeMessage{
		UserID:    "alice",
		EventType: RealtimeEventShareChanged,
		ShareID:   7,
		Kind:      "game",
		Action:    "share",
		Timestamp: time.Now().UTC(),
	})

	select {
	case received := <-stream:
		if received.EventType != RealtimeEventShareChanged {
			t.Fatalf("expected event type %s, got %s", RealtimeEventShareChanged, received.EventType)
		}
		if received.ShareID != 7 || received.Kind != "game" {
			t.Fatalf("unexpected message %+v", received)
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatal("expected realtime message within deadline")
	}
}

func TestRealtimeDispatcherIsolatedByUser(t *testing.T) {
	dispatcher := NewRealtimeDispatcher()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	aliceStream, aliceCleanup := dispatcher.Subscribe(ctx, "alice")
	defer aliceCleanup()
	bobStream, bobCleanup := dispatcher.Subscribe(ctx, "bob")
	defer bobCleanup()

	dispatcher.Publish(RealtimeMessage{UserID: "bob", EventType: RealtimeEventShareChanged, ShareID: 3})

	select {
	case <-aliceStream:
		t.Fatal("did not expect realtime message for unrelated user")
	case <-time.After(200 * time.Millisecond):
	}

	select {
	case message := <-bobStream:
		if message.UserID != "bob" {
			t.Fatalf("expected bob, received %s", message.UserID)
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatal("expected realtime message for subscribed user")
	}
}

func TestRealtimeDispatcherDropsSubscriberOnCancel(t *testing.T) {
	dispatcher := NewRealtimeDispatcher()
	ctx, cancel := context.WithCancel(context.Background())

	_, cleanup := dispatcher.Subscribe(ctx, "alice")
	if dispatcher.Subscribers("alice") != 1 {
		t.Fatalf("expected one subscriber")
	}
	cancel()

	deadline := time.Now().Add(time.Second)
	for dispatcher.Subscribers("alice") != 0 {
		if time.Now().After(deadline) {
			t.Fatal("expected the subscriber to be removed after cancellation")
		}
		time.Sleep(10 * time.Millisecond)
	}
	cleanup()

	stream, _ := dispatcher.Subscribe(context.Background(), "")
	if _, open := <-stream; open {
		t.Fatal("expected a closed stream for anonymous subscribers")
	}
}
