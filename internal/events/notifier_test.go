package events

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/bookindex/pkg/kafka"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePublisher struct {
	mu      sync.Mutex
	batches [][]kafka.Event
	fail    bool
}

func (f *fakePublisher) Publish(ctx context.Context, e kafka.Event) error {
	return f.PublishBatch(ctx, []kafka.Event{e})
}

func (f *fakePublisher) PublishBatch(_ context.Context, events []kafka.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("broker unavailable")
	}
	f.batches = append(f.batches, events)
	return nil
}

func (f *fakePublisher) Close() error { return nil }

func (f *fakePublisher) published() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, b := range f.batches {
		n += len(b)
	}
	return n
}

func TestBatchNotifierFlushesOnShutdown(t *testing.T) {
	pub := &fakePublisher{}
	n := NewBatchNotifier(pub, 10, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	n.Start(ctx)

	n.IndexCompleted(IndexCompleted{Kind: KindUpdate, BookID: 11, Terms: 42})
	n.IndexCompleted(IndexCompleted{Kind: KindUpdate, BookID: 12, Terms: 7})
	assert.Equal(t, 2, n.Pending())

	cancel()
	n.Close()
	assert.Equal(t, 2, pub.published())
	assert.Zero(t, n.Pending())
}

func TestBatchNotifierFlushesWhenFull(t *testing.T) {
	pub := &fakePublisher{}
	n := NewBatchNotifier(pub, 2, time.Hour)
	n.IndexCompleted(IndexCompleted{Kind: KindUpdate, BookID: 1})
	n.IndexCompleted(IndexCompleted{Kind: KindUpdate, BookID: 2})

	require.Eventually(t, func() bool { return pub.published() == 2 }, time.Second, 5*time.Millisecond)
}

func TestBatchNotifierRequeuesOnFailure(t *testing.T) {
	pub := &fakePublisher{fail: true}
	n := NewBatchNotifier(pub, 100, time.Hour)
	n.IndexCompleted(IndexCompleted{Kind: KindRebuild, GenerationID: "g1", Books: 3})
	n.flush(context.Background())
	assert.Equal(t, 1, n.Pending())
}

func TestIndexCompletedKey(t *testing.T) {
	assert.Equal(t, "11", IndexCompleted{Kind: KindUpdate, BookID: 11}.Key())
	assert.Equal(t, "rebuild:abc", IndexCompleted{Kind: KindRebuild, GenerationID: "abc"}.Key())
}
