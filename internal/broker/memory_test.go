package broker

import (
	"context"
	"testing"
	"time"

	"github.com/tj/assert"
)

func recv(t *testing.T, sub Subscription) []byte {
	t.Helper()
	select {
	case payload, ok := <-sub.Messages():
		assert.True(t, ok)
		return payload
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for message")
		return nil
	}
}

func TestPublishReachesAllSubscribers(t *testing.T) {
	ctx := context.Background()
	b := NewMemoryBroker()

	sub1, err := b.Subscribe(ctx, "signal:room:r1")
	assert.NoError(t, err)
	sub2, err := b.Subscribe(ctx, "signal:room:r1")
	assert.NoError(t, err)
	other, err := b.Subscribe(ctx, "signal:room:r2")
	assert.NoError(t, err)

	assert.NoError(t, b.Publish(ctx, "signal:room:r1", []byte("hello")))

	assert.Equal(t, "hello", string(recv(t, sub1)))
	assert.Equal(t, "hello", string(recv(t, sub2)))

	select {
	case payload := <-other.Messages():
		t.Fatalf("cross-topic delivery: %s", payload)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestClosedSubscriptionStopsReceiving(t *testing.T) {
	ctx := context.Background()
	b := NewMemoryBroker()

	sub, err := b.Subscribe(ctx, "signal:room:r1")
	assert.NoError(t, err)
	assert.NoError(t, sub.Close())
	assert.NoError(t, sub.Close()) // idempotent

	// Publishing after the last subscriber left is not an error.
	assert.NoError(t, b.Publish(ctx, "signal:room:r1", []byte("late")))

	_, ok := <-sub.Messages()
	assert.False(t, ok)
}
