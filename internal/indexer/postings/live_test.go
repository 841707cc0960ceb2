package postings

import (
	"context"
	"sync"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/bookindex/internal/document"
	"github.com/Adithya-Monish-Kumar-K/bookindex/internal/storetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// contract checks the behaviour every backend shares. s is cleared first.
func contract(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, s.Clear(ctx))

	require.NoError(t, s.Union(ctx, "alice", 11))
	require.NoError(t, s.Union(ctx, "alice", 11))
	require.NoError(t, s.BulkUnion(ctx, []Write{
		{Term: "alice", DocID: 3},
		{Term: "tired", DocID: 11},
		{Term: "zebra", DocID: 84},
	}))

	bm, err := s.Get(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, []uint32{3, 11}, bm.ToArray())

	bm, err = s.Get(ctx, "unknown")
	require.NoError(t, err)
	assert.True(t, bm.IsEmpty())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, s.BulkUnion(ctx, WritesFor(document.ID(100+i), []string{"shared", "tired"})))
		}()
	}
	wg.Wait()
	bm, err = s.Get(ctx, "shared")
	require.NoError(t, err)
	assert.Equal(t, uint64(8), bm.GetCardinality())

	st, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(4), st.Terms)
	assert.Positive(t, st.Bytes)

	require.NoError(t, s.Clear(ctx))
	st, err = s.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, st.Terms)
}

func TestMemoryStoreContract(t *testing.T) {
	contract(t, NewMemoryStore())
}

func TestRedisStoreContract(t *testing.T) {
	contract(t, NewRedisStore(storetest.Redis(t)))
}

func TestPostgresStoreContract(t *testing.T) {
	contract(t, NewPostgresStore(storetest.Postgres(t, Schema...)))
}
