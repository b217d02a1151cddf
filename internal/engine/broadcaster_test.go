// ABOUTME: Tests for the transcript snapshot broadcaster
// ABOUTME: Covers fan-out, unsubscribe, context cleanup, and slow-subscriber drops

package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/parley/internal/transcript"
)

func snapshotOf(content string) []*transcript.Entry {
	return []*transcript.Entry{{ID: "a1", Role: transcript.RoleAnswer, Content: content}}
}

func TestBroadcaster_FanOut(t *testing.T) {
	b := NewBroadcaster(nil)
	defer b.Close()

	ch1, _ := b.Subscribe(context.Background())
	ch2, _ := b.Subscribe(context.Background())

	b.Publish(snapshotOf("hello"))

	for _, ch := range []<-chan []*transcript.Entry{ch1, ch2} {
		select {
		case got := <-ch:
			require.Len(t, got, 1)
			assert.Equal(t, "hello", got[0].Content)
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for snapshot")
		}
	}
}

func TestBroadcaster_UnsubscribeClosesChannel(t *testing.T) {
	b := NewBroadcaster(nil)
	defer b.Close()

	ch, subID := b.Subscribe(context.Background())
	b.Unsubscribe(subID)
	b.Unsubscribe(subID) // idempotent

	_, ok := <-ch
	assert.False(t, ok)
}

func TestBroadcaster_ContextCancelCleansUp(t *testing.T) {
	b := NewBroadcaster(nil)
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	ch, _ := b.Subscribe(ctx)
	cancel()

	require.Eventually(t, func() bool {
		select {
		case _, ok := <-ch:
			return !ok
		default:
			return false
		}
	}, time.Second, 5*time.Millisecond, "channel should close after cancel")
}

func TestBroadcaster_SlowSubscriberDropsInsteadOfBlocking(t *testing.T) {
	b := NewBroadcaster(nil)
	defer b.Close()

	ch, _ := b.Subscribe(context.Background())

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < subscriberBufferSize*2; i++ {
			b.Publish(snapshotOf("burst"))
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}
	assert.NotEmpty(t, ch)
}
