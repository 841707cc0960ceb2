package events

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/bookindex/pkg/kafka"
)

// Notifier announces index changes. Implementations must not block the
// indexing path.
type Notifier interface {
	IndexCompleted(ev IndexCompleted)
}

// Nop discards every event. It is used when Kafka is not configured.
type Nop struct{}

func (Nop) IndexCompleted(IndexCompleted) {}

// BatchNotifier buffers events and publishes them to Kafka in bulk, either
// when the buffer reaches batchSize or every flushInterval.
type BatchNotifier struct {
	publisher     kafka.Publisher
	mu            sync.Mutex
	buffer        []kafka.Event
	batchSize     int
	flushInterval time.Duration
	logger        *slog.Logger
	done          chan struct{}
}

func NewBatchNotifier(publisher kafka.Publisher, batchSize int, flushInterval time.Duration) *BatchNotifier {
	if batchSize <= 0 {
		batchSize = 50
	}
	if flushInterval <= 0 {
		flushInterval = time.Second
	}
	return &BatchNotifier{
		publisher:     publisher,
		buffer:        make([]kafka.Event, 0, batchSize),
		batchSize:     batchSize,
		flushInterval: flushInterval,
		logger:        slog.Default().With("component", "index-notifier"),
		done:          make(chan struct{}),
	}
}

// Start launches the flush loop; it runs until ctx is cancelled, then makes
// a final flush.
func (n *BatchNotifier) Start(ctx context.Context) {
	go func() {
		defer close(n.done)
		ticker := time.NewTicker(n.flushInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				n.flush(ctx)
			case <-ctx.Done():
				flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				n.flush(flushCtx)
				cancel()
				return
			}
		}
	}()
	n.logger.Info("index notifier started", "batch_size", n.batchSize, "flush_interval", n.flushInterval)
}

func (n *BatchNotifier) IndexCompleted(ev IndexCompleted) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	n.mu.Lock()
	n.buffer = append(n.buffer, kafka.Event{Key: ev.Key(), Value: ev})
	full := len(n.buffer) >= n.batchSize
	n.mu.Unlock()
	if full {
		go n.flush(context.Background())
	}
}

// Close waits for the flush loop to exit.
func (n *BatchNotifier) Close() {
	<-n.done
}

// Pending returns the number of buffered events.
func (n *BatchNotifier) Pending() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.buffer)
}

func (n *BatchNotifier) flush(ctx context.Context) {
	n.mu.Lock()
	if len(n.buffer) == 0 {
		n.mu.Unlock()
		return
	}
	batch := n.buffer
	n.buffer = make([]kafka.Event, 0, n.batchSize)
	n.mu.Unlock()

	if err := n.publisher.PublishBatch(ctx, batch); err != nil {
		n.logger.Error("publishing index events failed", "events", len(batch), "error", err)
		n.mu.Lock()
		n.buffer = append(batch, n.buffer...)
		if limit := n.batchSize * 3; len(n.buffer) > limit {
			n.logger.Warn("notifier buffer full, dropping oldest events", "dropped", len(n.buffer)-limit)
			n.buffer = n.buffer[len(n.buffer)-limit:]
		}
		n.mu.Unlock()
		return
	}
	n.logger.Debug("index events published", "events", len(batch))
}
