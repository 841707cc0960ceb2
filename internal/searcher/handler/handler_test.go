package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/bookindex/internal/document"
	"github.com/Adithya-Monish-Kumar-K/bookindex/internal/indexer/postings"
	"github.com/Adithya-Monish-Kumar-K/bookindex/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/bookindex/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/bookindex/pkg/resilience"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newServer(t *testing.T) *http.ServeMux {
	t.Helper()
	ctx := context.Background()
	store := postings.NewMemoryStore()
	require.NoError(t, store.BulkUnion(ctx, postings.WritesFor(1, []string{"alice", "tired"})))
	require.NoError(t, store.BulkUnion(ctx, postings.WritesFor(2, []string{"tired", "whale"})))
	docs := document.NewMemoryStore(
		document.Document{ID: 1, Title: "Alice", Author: "Lewis Carroll", Language: "English", ReleaseDate: "2008"},
		document.Document{ID: 2, Title: "Moby Dick", Author: "Herman Melville", Language: "English", ReleaseDate: "2001"},
	)
	m := metrics.NewIsolated()
	engine := executor.New(store, docs, m, resilience.CircuitBreakerConfig{})

	mux := http.NewServeMux()
	New(engine, nil, ServiceInfo{Service: "search-service", Mode: "memory", Database: "connected"}, m).Register(mux)
	return mux
}

func get(t *testing.T, mux http.Handler, target string) (int, map[string]any) {
	t.Helper()
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return rec.Code, body
}

func TestSearch(t *testing.T) {
	mux := newServer(t)

	code, body := get(t, mux, "/search?q=tired")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "tired", body["query"])
	assert.Equal(t, float64(2), body["count"])
	assert.Equal(t, map[string]any{}, body["filters"])
	assert.Len(t, body["results"], 2)

	code, body = get(t, mux, "/search?q=tired+missingword")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(0), body["count"])
	assert.Equal(t, []any{}, body["results"])
}

func TestSearchFiltersEchoed(t *testing.T) {
	code, body := get(t, newServer(t), "/search?q=tired&author=melville&year=2001&language=")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, map[string]any{"author": "melville", "year": "2001"}, body["filters"])
	assert.Equal(t, float64(1), body["count"])

	results := body["results"].([]any)
	hit := results[0].(map[string]any)
	assert.Equal(t, float64(2), hit["book_id"])
	assert.Equal(t, float64(2001), hit["year"])
}

func TestSearchInvalidYearIgnored(t *testing.T) {
	code, body := get(t, newServer(t), "/search?q=tired&year=abc")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(2), body["count"])
}

func TestSearchBlankQuery(t *testing.T) {
	mux := newServer(t)
	for _, target := range []string{"/search", "/search?q=", "/search?q=%20%20"} {
		code, body := get(t, mux, target)
		assert.Equal(t, http.StatusBadRequest, code, target)
		assert.NotEmpty(t, body["error"], target)
	}
}

func TestStatusAndCacheDisabled(t *testing.T) {
	mux := newServer(t)
	code, body := get(t, mux, "/status")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "search-service", body["service"])

	_, body = get(t, mux, "/cache/stats")
	assert.Equal(t, "disabled", body["status"])
}
