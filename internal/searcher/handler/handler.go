// Package handler serves the search service's HTTP API.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/Adithya-Monish-Kumar-K/bookindex/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/bookindex/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/bookindex/internal/searcher/parser"
	apperrors "github.com/Adithya-Monish-Kumar-K/bookindex/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/bookindex/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/bookindex/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/bookindex/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/bookindex/pkg/tracing"
)

type SearchExecutor interface {
	Execute(ctx context.Context, plan *parser.QueryPlan) (*executor.SearchResult, error)
}

// ServiceInfo is reported by GET /status.
type ServiceInfo struct {
	Service  string `json:"service"`
	Mode     string `json:"mode"`
	Database string `json:"database"`
	// Probe, when set, refreshes Database on every request.
	Probe func(ctx context.Context) string `json:"-"`
}

type Handler struct {
	executor SearchExecutor
	cache    *cache.QueryCache
	info     ServiceInfo
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// New builds the handler. queryCache may be nil to disable caching.
func New(exec SearchExecutor, queryCache *cache.QueryCache, info ServiceInfo, m *metrics.Metrics) *Handler {
	return &Handler{
		executor: exec,
		cache:    queryCache,
		info:     info,
		metrics:  m,
		logger:   slog.Default().With("component", "search-handler"),
	}
}

func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /status", h.Status)
	mux.HandleFunc("GET /search", h.Search)
	mux.HandleFunc("GET /cache/stats", h.CacheStats)
	mux.HandleFunc("POST /cache/invalidate", h.CacheInvalidate)
}

func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	info := h.info
	if info.Probe != nil {
		info.Database = info.Probe(r.Context())
	}
	h.writeJSON(w, http.StatusOK, info)
}

func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx, span := tracing.Start(r.Context(), "search", middleware.GetRequestID(r.Context()))
	log := logger.FromContext(ctx)

	q := r.URL.Query()
	plan := parser.Parse(q.Get("q"), parser.Filters{
		Author:   q.Get("author"),
		Language: q.Get("language"),
		Year:     q.Get("year"),
	})
	if plan.IsEmpty() {
		h.writeError(w, http.StatusBadRequest, "query parameter 'q' is required")
		return
	}

	var (
		result   *executor.SearchResult
		cacheHit bool
		err      error
	)
	if h.cache != nil {
		result, cacheHit, err = h.cache.GetOrCompute(ctx, plan, func() (*executor.SearchResult, error) {
			return h.executor.Execute(ctx, plan)
		})
	} else {
		result, err = h.executor.Execute(ctx, plan)
	}
	span.SetAttr("cache_hit", cacheHit)
	span.End()
	if err != nil {
		log.Error("search failed", "query", plan.RawQuery, "error", err)
		h.writeJSON(w, apperrors.HTTPStatusCode(err), map[string]string{"error": apperrors.Message(err, "search failed")})
		return
	}

	cacheStatus := "disabled"
	switch {
	case h.cache != nil && cacheHit:
		cacheStatus = "hit"
		h.metrics.CacheHitsTotal.Inc()
	case h.cache != nil:
		cacheStatus = "miss"
		h.metrics.CacheMissesTotal.Inc()
	}
	h.metrics.SearchLatency.WithLabelValues(cacheStatus).Observe(time.Since(start).Seconds())

	span.Log(ctx)
	log.Info("search completed",
		"query", plan.RawQuery,
		"count", result.Count,
		"cache", cacheStatus,
		"latency_ms", time.Since(start).Milliseconds(),
	)
	h.writeJSON(w, http.StatusOK, result)
}

func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
		return
	}
	hits, misses := h.cache.Stats()
	h.writeJSON(w, http.StatusOK, map[string]int64{
		"hits":   hits,
		"misses": misses,
		"total":  hits + misses,
	})
}

func (h *Handler) CacheInvalidate(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeError(w, http.StatusServiceUnavailable, "caching is disabled")
		return
	}
	if err := h.cache.Invalidate(r.Context()); err != nil {
		h.logger.Error("cache invalidation failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, "cache invalidation failed")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "invalidated"})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
