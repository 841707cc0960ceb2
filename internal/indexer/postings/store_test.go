package postings

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/bookindex/internal/document"
	apperrors "github.com/Adithya-Monish-Kumar-K/bookindex/pkg/errors"
	"github.com/RoaringBitmap/roaring/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBucket(t *testing.T) {
	assert.Equal(t, "a", Bucket("alice"))
	assert.Equal(t, "a", Bucket("adventures"))
	assert.Equal(t, "z", Bucket("zebra"))
	assert.Equal(t, "_", Bucket(""))
}

func TestMemoryStoreUnionIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	require.NoError(t, s.Union(ctx, "alice", 11))
	require.NoError(t, s.Union(ctx, "alice", 11))
	require.NoError(t, s.Union(ctx, "alice", 42))

	bm, err := s.Get(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, []uint32{11, 42}, bm.ToArray())

	empty, err := s.Get(ctx, "missing")
	require.NoError(t, err)
	assert.True(t, empty.IsEmpty())
}

func TestMemoryStoreGetReturnsCopy(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.Union(ctx, "cat", 1))

	bm, err := s.Get(ctx, "cat")
	require.NoError(t, err)
	bm.Add(99)

	again, err := s.Get(ctx, "cat")
	require.NoError(t, err)
	assert.Equal(t, []uint32{1}, again.ToArray())
}

func TestMemoryStoreBulkUnionCommutes(t *testing.T) {
	ctx := context.Background()
	a, b := NewMemoryStore(), NewMemoryStore()

	first := WritesFor(1, []string{"cat", "mat", "sat"})
	second := WritesFor(2, []string{"cat", "dog"})

	require.NoError(t, a.BulkUnion(ctx, first))
	require.NoError(t, a.BulkUnion(ctx, second))
	require.NoError(t, b.BulkUnion(ctx, second))
	require.NoError(t, b.BulkUnion(ctx, first))

	for _, term := range []string{"cat", "mat", "sat", "dog"} {
		x, err := a.Get(ctx, term)
		require.NoError(t, err)
		y, err := b.Get(ctx, term)
		require.NoError(t, err)
		assert.True(t, x.Equals(y), term)
	}
}

func TestMemoryStoreConcurrentWriters(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	var wg sync.WaitGroup
	for i := 1; i <= 50; i++ {
		wg.Add(1)
		go func(id document.ID) {
			defer wg.Done()
			assert.NoError(t, s.BulkUnion(ctx, WritesFor(id, []string{"the", "book", "of", "id" + fmt.Sprint(id%3)})))
		}(document.ID(i))
	}
	wg.Wait()

	bm, err := s.Get(ctx, "the")
	require.NoError(t, err)
	assert.Equal(t, uint64(50), bm.GetCardinality())
}

func TestMemoryStoreClearAndStats(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.BulkUnion(ctx, WritesFor(3, []string{"alpha", "beta"})))

	st, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), st.Terms)
	assert.Positive(t, st.Bytes)

	require.NoError(t, s.Clear(ctx))
	st, err = s.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, st.Terms)

	bm, err := s.Get(ctx, "alpha")
	require.NoError(t, err)
	assert.True(t, bm.IsEmpty())
}

func TestWriteBucketsReportsPartialFailure(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("connection reset")
	var mu sync.Mutex
	applied := map[string]int{}

	writes := WritesFor(7, []string{"apple", "banana", "berry", "cherry"})
	err := writeBuckets(ctx, writes, 2, func(_ context.Context, bucket string, ws []Write) error {
		if bucket == "b" {
			return boom
		}
		mu.Lock()
		applied[bucket] += len(ws)
		mu.Unlock()
		return nil
	})

	var pwe *PartialWriteError
	require.ErrorAs(t, err, &pwe)
	assert.Equal(t, []string{"b"}, pwe.Failed)
	assert.Equal(t, 3, pwe.Total)
	assert.ErrorIs(t, err, apperrors.ErrPartialWrite)
	assert.ErrorIs(t, err, boom)
	assert.True(t, apperrors.IsRetryable(err))
	assert.Equal(t, map[string]int{"a": 1, "c": 1}, applied)
}

func TestWriteBucketsBoundsConcurrencyAndReportsEveryFailure(t *testing.T) {
	var mu sync.Mutex
	inFlight, peak := 0, 0

	writes := WritesFor(3, []string{"ant", "bee", "cat", "dog", "eel", "fox"})
	err := writeBuckets(context.Background(), writes, 2, func(_ context.Context, bucket string, _ []Write) error {
		mu.Lock()
		inFlight++
		peak = max(peak, inFlight)
		mu.Unlock()
		time.Sleep(5 * time.Millisecond)
		mu.Lock()
		inFlight--
		mu.Unlock()
		if bucket == "b" || bucket == "e" {
			return fmt.Errorf("bucket %s unavailable", bucket)
		}
		return nil
	})

	var pwe *PartialWriteError
	require.ErrorAs(t, err, &pwe)
	assert.Equal(t, []string{"b", "e"}, pwe.Failed)
	assert.Equal(t, 6, pwe.Total)
	assert.LessOrEqual(t, peak, 2)
}

func TestWriteBucketsEmpty(t *testing.T) {
	called := false
	err := writeBuckets(context.Background(), nil, 0, func(context.Context, string, []Write) error {
		called = true
		return nil
	})
	assert.NoError(t, err)
	assert.False(t, called)
}

// slowStore blocks lookups until the context ends.
type slowStore struct{ *MemoryStore }

func (s slowStore) Get(ctx context.Context, _ string) (*roaring.Bitmap, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestWithTimeoutsMapsDeadline(t *testing.T) {
	s := WithTimeouts(slowStore{NewMemoryStore()}, 20*time.Millisecond, time.Second)
	_, err := s.Get(context.Background(), "slow")
	assert.ErrorIs(t, err, apperrors.ErrTimeout)
	assert.Equal(t, "memory", s.Name())

	require.NoError(t, s.Union(context.Background(), "fast", 1))
	bm, err := s.(*timeoutStore).inner.Get(context.Background(), "fast")
	require.NoError(t, err)
	assert.Equal(t, []uint32{1}, bm.ToArray())
}

func TestRedisKeyLayout(t *testing.T) {
	assert.Equal(t, "postings:a:alice", redisKey("alice"))
	assert.Equal(t, "postings:_:", redisKey(""))
}
