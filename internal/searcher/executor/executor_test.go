package executor

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/bookindex/internal/document"
	"github.com/Adithya-Monish-Kumar-K/bookindex/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/bookindex/internal/indexer/ledger"
	"github.com/Adithya-Monish-Kumar-K/bookindex/internal/indexer/postings"
	"github.com/Adithya-Monish-Kumar-K/bookindex/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/bookindex/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/bookindex/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/bookindex/pkg/resilience"
	"github.com/RoaringBitmap/roaring/v2"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingStore records which terms were looked up.
type countingStore struct {
	*postings.MemoryStore
	mu      sync.Mutex
	lookups []string
	err     error
}

func (c *countingStore) Get(ctx context.Context, term string) (*roaring.Bitmap, error) {
	c.mu.Lock()
	c.lookups = append(c.lookups, term)
	c.mu.Unlock()
	if c.err != nil {
		return nil, c.err
	}
	return c.MemoryStore.Get(ctx, term)
}

func books() []document.Document {
	return []document.Document{
		{ID: 1, Title: "One", Author: "Lewis Carroll", Language: "English", ReleaseDate: "June 25, 2008 [EBook #1]"},
		{ID: 2, Title: "Two", Author: "Jane Austen", Language: "English", ReleaseDate: "1998"},
		{ID: 3, Title: "Three", Author: "Miguel de Cervantes", Language: "Spanish", ReleaseDate: "December, 1999"},
		{ID: 4, Title: "Four", Author: "Jane Austen", Language: "French", ReleaseDate: "2001"},
	}
}

func newEngine(t *testing.T) (*Engine, *countingStore) {
	t.Helper()
	ctx := context.Background()
	store := &countingStore{MemoryStore: postings.NewMemoryStore()}
	for _, id := range []document.ID{1, 2, 3} {
		require.NoError(t, store.Union(ctx, "cat", id))
	}
	for _, id := range []document.ID{2, 3, 4} {
		require.NoError(t, store.Union(ctx, "mat", id))
	}
	e := New(store, document.NewMemoryStore(books()...), metrics.NewIsolated(), resilience.CircuitBreakerConfig{FailureThreshold: 2})
	return e, store
}

func resultIDs(r *SearchResult) []document.ID {
	ids := make([]document.ID, len(r.Results))
	for i, s := range r.Results {
		ids[i] = s.BookID
	}
	return ids
}

func TestSearchIntersection(t *testing.T) {
	e, _ := newEngine(t)
	res, err := e.Search(context.Background(), "cat mat", Filters{})
	require.NoError(t, err)
	assert.Equal(t, "cat mat", res.Query)
	assert.Equal(t, 2, res.Count)
	assert.ElementsMatch(t, []document.ID{2, 3}, resultIDs(res))
}

func TestSearchIsCaseInsensitive(t *testing.T) {
	e, _ := newEngine(t)
	res, err := e.Search(context.Background(), "  CAT   Mat ", Filters{})
	require.NoError(t, err)
	assert.ElementsMatch(t, []document.ID{2, 3}, resultIDs(res))
}

func TestSearchShortCircuitsOnEmptyIntersection(t *testing.T) {
	e, store := newEngine(t)
	res, err := e.Search(context.Background(), "unknown cat mat", Filters{Author: "austen"})
	require.NoError(t, err)
	assert.Equal(t, 0, res.Count)
	assert.NotNil(t, res.Results)
	assert.Empty(t, res.Results)
	assert.Equal(t, Filters{Author: "austen"}, res.Filters)
	assert.Equal(t, []string{"unknown"}, store.lookups)
}

func TestSearchSingleLetterTermIsLegal(t *testing.T) {
	e, _ := newEngine(t)
	res, err := e.Search(context.Background(), "a", Filters{})
	require.NoError(t, err)
	assert.Zero(t, res.Count)
}

func TestSearchBlankQuery(t *testing.T) {
	e, _ := newEngine(t)
	for _, q := range []string{"", "   ", "\t\n"} {
		_, err := e.Search(context.Background(), q, Filters{})
		assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
		assert.Equal(t, 400, apperrors.HTTPStatusCode(err))
	}
}

func TestSearchFilters(t *testing.T) {
	e, _ := newEngine(t)
	tests := []struct {
		name    string
		query   string
		filters Filters
		want    []document.ID
	}{
		{"author", "mat", Filters{Author: "AUSTEN"}, []document.ID{2, 4}},
		{"language", "cat", Filters{Language: "span"}, []document.ID{3}},
		{"year", "cat mat", Filters{Year: "1998"}, []document.ID{2}},
		{"combined", "mat", Filters{Author: "austen", Language: "french"}, []document.ID{4}},
		{"invalid year ignored", "cat mat", Filters{Year: "nineteen"}, []document.ID{2, 3}},
		{"no match", "cat", Filters{Year: "1850"}, []document.ID{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := e.Search(context.Background(), tt.query, tt.filters)
			require.NoError(t, err)
			assert.ElementsMatch(t, tt.want, resultIDs(res))
			assert.Equal(t, len(tt.want), res.Count)
			assert.Equal(t, tt.filters, res.Filters)
		})
	}
}

func TestSearchSummaries(t *testing.T) {
	e, _ := newEngine(t)
	res, err := e.Search(context.Background(), "cat", Filters{Language: "english"})
	require.NoError(t, err)
	require.Len(t, res.Results, 2)
	first := res.Results[0]
	assert.Equal(t, document.ID(1), first.BookID)
	assert.Equal(t, "Lewis Carroll", first.Author)
	require.NotNil(t, first.Year)
	assert.Equal(t, 2008, *first.Year)
}

func TestSearchStoreFailureOpensCircuit(t *testing.T) {
	e, store := newEngine(t)
	store.err = errors.New("connection refused")

	for i := 0; i < 2; i++ {
		_, err := e.Search(context.Background(), "cat", Filters{})
		assert.ErrorIs(t, err, apperrors.ErrStore)
		assert.Equal(t, 500, apperrors.HTTPStatusCode(err))
	}
	calls := len(store.lookups)

	_, err := e.Search(context.Background(), "cat", Filters{})
	assert.ErrorIs(t, err, resilience.ErrCircuitOpen)
	assert.ErrorIs(t, err, apperrors.ErrStore)
	assert.Equal(t, calls, len(store.lookups))
}

func TestSearchCountsResultTypes(t *testing.T) {
	e, store := newEngine(t)
	ctx := context.Background()

	_, err := e.Search(ctx, "cat", Filters{})
	require.NoError(t, err)
	_, err = e.Search(ctx, "unknown", Filters{})
	require.NoError(t, err)
	_, err = e.Search(ctx, "cat", Filters{Year: "1850"})
	require.NoError(t, err)
	store.err = errors.New("connection refused")
	_, err = e.Search(ctx, "cat", Filters{})
	require.Error(t, err)

	queries := e.metrics.SearchQueriesTotal
	assert.Equal(t, 1.0, testutil.ToFloat64(queries.WithLabelValues("hit")))
	assert.Equal(t, 2.0, testutil.ToFloat64(queries.WithLabelValues("zero")))
	assert.Equal(t, 1.0, testutil.ToFloat64(queries.WithLabelValues("error")))
}

func TestIndexThenSearch(t *testing.T) {
	ctx := context.Background()
	store := postings.NewMemoryStore()
	docs := document.NewMemoryStore(document.Document{ID: 1, Title: "Alice", Content: "Alice was beginning to get very tired"})
	p := indexer.NewPipeline(store, ledger.NewMemoryLedger(), docs, config.IndexConfig{WriteAttempts: 1}, metrics.NewIsolated())
	_, err := p.IndexByID(ctx, 1)
	require.NoError(t, err)

	e := New(store, docs, metrics.NewIsolated(), resilience.CircuitBreakerConfig{})

	res, err := e.Search(ctx, "tired", Filters{})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Count)
	assert.Equal(t, document.ID(1), res.Results[0].BookID)

	res, err = e.Search(ctx, "tired missingword", Filters{})
	require.NoError(t, err)
	assert.Zero(t, res.Count)
}
