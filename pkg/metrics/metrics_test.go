package metrics

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewIsolatedDoesNotCollide(t *testing.T) {
	a := NewIsolated()
	b := NewIsolated()

	a.DocsIndexedTotal.Inc()
	a.DocsIndexedTotal.Inc()
	b.DocsIndexedTotal.Inc()

	assert.Equal(t, 2.0, testutil.ToFloat64(a.DocsIndexedTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(b.DocsIndexedTotal))
}

func TestHandlerExposesRegisteredCollectors(t *testing.T) {
	m := NewIsolated()
	m.SearchQueriesTotal.WithLabelValues("hit").Inc()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `search_queries_total{result_type="hit"} 1`)
}

func TestServeExposesMetricsUntilCancelled(t *testing.T) {
	m := NewIsolated()
	m.CacheHitsTotal.Inc()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	m.serve(ctx, ln, "search-service")

	resp, err := http.Get("http://" + ln.Addr().String() + "/metrics")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Contains(t, string(body), "cache_hits_total 1")

	cancel()
	assert.Eventually(t, func() bool {
		_, err := http.Get("http://" + ln.Addr().String() + "/metrics")
		return err != nil
	}, 2*time.Second, 20*time.Millisecond)
}
