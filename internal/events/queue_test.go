package events

import (
	"context"
	"testing"
	"time"
)

func TestMemoryQueueFanOut(t *testing.T) {
	queue := NewMemoryQueue(4)
	first := queue.Subscribe()
	second := queue.Subscribe()
	defer first.Close()
	defer second.Close()

	event := Event{
		Type:     EventTypeReaction,
		Reaction: &ReactionEvent{UserID: "u1", VideoID: "v1", Status: "like"},
	}
	if err := queue.Publish(context.Background(), event); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	for i, sub := range []Subscription{first, second} {
		select {
		case got := <-sub.Events():
			if got.Type != EventTypeReaction || got.Reaction == nil || got.Reaction.VideoID != "v1" {
				t.Fatalf("subscriber %d received %+v", i, got)
			}
		case <-time.After(time.Second):
			t.Fatalf("subscriber %d received nothing", i)
		}
	}
}

func TestMemoryQueueRejectsUntypedEvent(t *testing.T) {
	queue := NewMemoryQueue(1)
	if err := queue.Publish(context.Background(), Event{}); err == nil {
		t.Fatalf("expected error for event without type")
	}
}

func TestMemoryQueueDropsWhenSubscriberIsFull(t *testing.T) {
	queue := NewMemoryQueue(1)
	sub := queue.Subscribe()
	defer sub.Close()

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if err := queue.Publish(ctx, Event{Type: EventTypeSubscription, Subscription: &SubscriptionEvent{SubscriberID: "u1", ChannelID: "c1"}}); err != nil {
			t.Fatalf("Publish %d: %v", i, err)
		}
	}

	// Buffer holds one event; the overflow must have been dropped, not
	// blocked on.
	received := 0
	for {
		select {
		case <-sub.Events():
			received++
		default:
			if received != 1 {
				t.Fatalf("received = %d, want 1", received)
			}
			return
		}
	}
}

func TestMemorySubscriptionCloseDetaches(t *testing.T) {
	queue := NewMemoryQueue(1)
	sub := queue.Subscribe()
	sub.Close()
	sub.Close() // idempotent

	if err := queue.Publish(context.Background(), Event{Type: EventTypeVideoDeleted, VideoDeleted: &VideoDeletedEvent{VideoID: "v1"}}); err != nil {
		t.Fatalf("Publish after close: %v", err)
	}

	if _, ok := <-sub.Events(); ok {
		t.Fatalf("closed subscription delivered an event")
	}
}
