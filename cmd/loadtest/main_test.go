package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/bookindex/internal/document"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPercentile(t *testing.T) {
	sorted := []time.Duration{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	assert.Equal(t, time.Duration(5), percentile(sorted, 50))
	assert.Equal(t, time.Duration(10), percentile(sorted, 99))
	assert.Equal(t, time.Duration(1), percentile(sorted, 0))
	assert.Equal(t, time.Duration(0), percentile(nil, 50))
}

func TestStatsReport(t *testing.T) {
	s := NewStats()
	s.RecordRequest(10*time.Millisecond, http.StatusOK, nil)
	s.RecordRequest(30*time.Millisecond, http.StatusNotFound, nil)
	s.RecordRequest(0, 0, assert.AnError)

	r := s.Report()
	assert.Equal(t, int64(3), r.Total)
	assert.Equal(t, int64(1), r.Success)
	assert.Equal(t, int64(2), r.Errors)
	assert.Equal(t, 20*time.Millisecond, r.Avg)
	assert.Equal(t, 10*time.Millisecond, r.StdDev)
	assert.Equal(t, map[int]int64{200: 1, 404: 1}, r.StatusCodes)
}

func TestParseBookIDs(t *testing.T) {
	ids, err := parseBookIDs("11, 84,,1342")
	require.NoError(t, err)
	assert.Equal(t, []document.ID{11, 84, 1342}, ids)

	_, err = parseBookIDs("11,abc")
	assert.Error(t, err)
}

func TestRunLoadTestMixesSearchAndUpdates(t *testing.T) {
	var searches, updates atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/search":
			searches.Add(1)
		case r.Method == http.MethodPost && strings.HasPrefix(r.URL.Path, "/index/update/"):
			updates.Add(1)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	search, update := runLoadTest(context.Background(), Config{
		SearchURL:   srv.URL,
		IndexURL:    srv.URL,
		Concurrency: 2,
		Duration:    100 * time.Millisecond,
		UpdateEvery: 2,
		RPS:         200,
		Queries:     []string{"alice"},
		BookIDs:     []document.ID{11},
	})

	assert.Positive(t, search.Report().Success)
	assert.Positive(t, update.Report().Success)
	assert.Zero(t, search.Report().Errors)
	assert.LessOrEqual(t, search.Report().Total, searches.Load())
	assert.LessOrEqual(t, update.Report().Total, updates.Load())
}
