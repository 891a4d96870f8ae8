package events

import (
	"io"
	"log/slog"
	"testing"
	"time"

	redis "github.com/redis/go-redis/v9"
)

func TestRedisSubscriptionCloseLetsLoopCloseChannel(t *testing.T) {
	// Unreachable address: the read loop only ever sees errors, so the test
	// exercises the shutdown path without a running Redis.
	client := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:       []string{"127.0.0.1:1"},
		DialTimeout: 10 * time.Millisecond,
		ReadTimeout: 10 * time.Millisecond,
	})
	t.Cleanup(func() { _ = client.Close() })

	queue := &redisQueue{
		client:       client,
		stream:       "clipstream:engagement",
		group:        "engagement-workers",
		blockTimeout: 10 * time.Millisecond,
		logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
		buffer:       1,
	}
	sub := queue.Subscribe()

	sub.Close()
	sub.Close()

	// Close only cancels; the loop goroutine closes the channel after its
	// final iteration, which the reader observes as a clean close.
	select {
	case _, ok := <-sub.Events():
		if ok {
			t.Fatal("received an event from an unreachable queue")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("event channel not closed after Close")
	}
}
