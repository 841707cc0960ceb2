package kafka

import (
	"context"
	"errors"
	"sync"
	"testing"

	apperrors "github.com/Adithya-Monish-Kumar-K/bookindex/pkg/errors"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type bookEvent struct {
	BookID uint32 `json:"book_id"`
	Title  string `json:"title"`
}

func TestDecodeJSON(t *testing.T) {
	ev, err := DecodeJSON[bookEvent]([]byte(`{"book_id":1342,"title":"Pride and Prejudice"}`))
	require.NoError(t, err)
	assert.Equal(t, bookEvent{BookID: 1342, Title: "Pride and Prejudice"}, ev)
}

func TestDecodeJSONRejectsGarbage(t *testing.T) {
	_, err := DecodeJSON[bookEvent]([]byte(`{"book_id":`))
	assert.Error(t, err)
}

var _ Publisher = (*Producer)(nil)

// fakeReader hands out queued messages, then blocks until ctx ends.
type fakeReader struct {
	mu        sync.Mutex
	queue     []kafka.Message
	committed []int64
	closed    bool
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if len(r.queue) > 0 {
		msg := r.queue[0]
		r.queue = r.queue[1:]
		r.mu.Unlock()
		return msg, nil
	}
	r.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

func TestConsumerRetriesTransientFailures(t *testing.T) {
	r := &fakeReader{}
	calls := 0
	c := newConsumer(r, "book.ingested", func(context.Context, []byte, []byte) error {
		calls++
		if calls < 3 {
			return apperrors.ErrStore
		}
		return nil
	}, 5)
	c.retry.InitialDelay = 1

	require.NoError(t, c.process(context.Background(), kafka.Message{Offset: 4}))
	assert.Equal(t, 3, calls)
	assert.Equal(t, []int64{4}, r.committed)
}

func TestConsumerCommitsPoisonMessages(t *testing.T) {
	r := &fakeReader{}
	calls := 0
	c := newConsumer(r, "book.ingested", func(context.Context, []byte, []byte) error {
		calls++
		return errors.New("unknown event shape")
	}, 5)

	require.NoError(t, c.process(context.Background(), kafka.Message{Offset: 9}))
	assert.Equal(t, 1, calls)
	assert.Equal(t, []int64{9}, r.committed)
}

func TestConsumerStartDrainsAndStops(t *testing.T) {
	r := &fakeReader{queue: []kafka.Message{{Offset: 1}, {Offset: 2}}}
	ctx, cancel := context.WithCancel(context.Background())
	var seen []int64
	c := newConsumer(r, "index.complete", func(context.Context, []byte, []byte) error {
		seen = append(seen, int64(len(seen)+1))
		if len(seen) == 2 {
			cancel()
		}
		return nil
	}, 1)

	require.NoError(t, c.Start(ctx))
	assert.Equal(t, []int64{1, 2}, seen)
	assert.Equal(t, []int64{1, 2}, r.committed)
	assert.True(t, r.closed)
}

type fakeWriter struct {
	written []kafka.Message
	err     error
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.written = append(w.written, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

func TestProducerEncodesEvents(t *testing.T) {
	w := &fakeWriter{}
	p := newProducer(w, "book.ingested")

	require.NoError(t, p.Publish(context.Background(), Event{Key: "1342", Value: bookEvent{BookID: 1342}}))
	require.NoError(t, p.PublishBatch(context.Background(), nil))
	require.Len(t, w.written, 1)
	assert.Equal(t, "1342", string(w.written[0].Key))
	assert.JSONEq(t, `{"book_id":1342,"title":""}`, string(w.written[0].Value))
}

func TestProducerRejectsUnencodableBatch(t *testing.T) {
	w := &fakeWriter{}
	p := newProducer(w, "book.ingested")
	err := p.PublishBatch(context.Background(), []Event{
		{Key: "1", Value: bookEvent{BookID: 1}},
		{Key: "2", Value: make(chan int)},
	})
	assert.Error(t, err)
	assert.Empty(t, w.written)
}

func TestProducerWrapsWriteErrors(t *testing.T) {
	p := newProducer(&fakeWriter{err: errors.New("broker unavailable")}, "index.complete")
	err := p.Publish(context.Background(), Event{Key: "1", Value: 1})
	assert.ErrorContains(t, err, "broker unavailable")
}
