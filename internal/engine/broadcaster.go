// ABOUTME: In-memory fan-out of transcript snapshots to rendering observers
// ABOUTME: Observers are read-only; slow subscribers drop snapshots rather than block the engine

package engine

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/2389/parley/internal/transcript"
)

// subscriberBufferSize is the channel buffer for each subscriber.
const subscriberBufferSize = 64

// Broadcaster publishes deep-copied transcript snapshots to all
// subscribed rendering collaborators after every mutation.
type Broadcaster struct {
	mu          sync.RWMutex
	subscribers map[string]chan []*transcript.Entry
	logger      *slog.Logger
}

// NewBroadcaster creates a broadcaster. Pass nil logger for default.
func NewBroadcaster(logger *slog.Logger) *Broadcaster {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broadcaster{
		subscribers: make(map[string]chan []*transcript.Entry),
		logger:      logger.With("component", "broadcaster"),
	}
}

// Subscribe registers an observer. Returns a channel that receives
// snapshots and a subscription ID for later unsubscription. The
// subscription is automatically cleaned up when ctx is cancelled.
func (b *Broadcaster) Subscribe(ctx context.Context) (<-chan []*transcript.Entry, string) {
	subID := uuid.New().String()
	ch := make(chan []*transcript.Entry, subscriberBufferSize)

	b.mu.Lock()
	b.subscribers[subID] = ch
	b.mu.Unlock()

	b.logger.Debug("subscriber added", "sub_id", subID)

	go func() {
		<-ctx.Done()
		b.Unsubscribe(subID)
	}()

	return ch, subID
}

// Publish sends a snapshot to all subscribers. Non-blocking: snapshots
// are dropped for subscribers whose channels are full.
func (b *Broadcaster) Publish(snapshot []*transcript.Entry) {
	b.mu.RLock()
	targets := make([]chan []*transcript.Entry, 0, len(b.subscribers))
	for _, ch := range b.subscribers {
		targets = append(targets, ch)
	}
	b.mu.RUnlock()

	for _, ch := range targets {
		select {
		case ch <- snapshot:
		default:
			b.logger.Debug("dropped snapshot for slow subscriber")
		}
	}
}

// Unsubscribe removes a subscription and closes its channel.
func (b *Broadcaster) Unsubscribe(subID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch, ok := b.subscribers[subID]
	if !ok {
		return
	}
	delete(b.subscribers, subID)
	close(ch)

	b.logger.Debug("subscriber removed", "sub_id", subID)
}

// Close shuts down the broadcaster and closes all subscriber channels.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for subID, ch := range b.subscribers {
		close(ch)
		delete(b.subscribers, subID)
	}
}
