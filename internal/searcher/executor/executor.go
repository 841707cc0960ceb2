// Package executor evaluates search queries: AND-intersection of postings
// followed by metadata filtering against the document store.
package executor

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Adithya-Monish-Kumar-K/bookindex/internal/document"
	"github.com/Adithya-Monish-Kumar-K/bookindex/internal/indexer/postings"
	"github.com/Adithya-Monish-Kumar-K/bookindex/internal/searcher/parser"
	apperrors "github.com/Adithya-Monish-Kumar-K/bookindex/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/bookindex/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/bookindex/pkg/resilience"
	"github.com/Adithya-Monish-Kumar-K/bookindex/pkg/tracing"
	"github.com/RoaringBitmap/roaring/v2"
)

// Filters are the optional metadata filters of a search.
type Filters = parser.Filters

// SearchResult is the body of a search response. Results are ordered by
// book id.
type SearchResult struct {
	Query   string             `json:"query"`
	Filters Filters            `json:"filters"`
	Count   int                `json:"count"`
	Results []document.Summary `json:"results"`
}

type Engine struct {
	postings postings.Store
	docs     document.Store
	breaker  *resilience.CircuitBreaker
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

func New(store postings.Store, docs document.Store, m *metrics.Metrics, cb resilience.CircuitBreakerConfig) *Engine {
	cb.OnStateChange = func(name string, to resilience.State) {
		m.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
	}
	return &Engine{
		postings: store,
		docs:     docs,
		breaker:  resilience.NewCircuitBreaker("postings-"+store.Name(), cb),
		metrics:  m,
		logger:   slog.Default().With("component", "query-engine"),
	}
}

// Search parses and executes a query. A blank query is a validation error.
func (e *Engine) Search(ctx context.Context, query string, f Filters) (*SearchResult, error) {
	plan := parser.Parse(query, f)
	if plan.IsEmpty() {
		return nil, apperrors.Validation("query parameter 'q' is required")
	}
	return e.Execute(ctx, plan)
}

// Execute runs a parsed, non-empty plan.
func (e *Engine) Execute(ctx context.Context, plan *parser.QueryPlan) (*SearchResult, error) {
	result := &SearchResult{
		Query:   plan.RawQuery,
		Filters: plan.Filters,
		Results: []document.Summary{},
	}

	ids, err := e.intersect(ctx, plan.Terms)
	if err != nil {
		e.metrics.SearchQueriesTotal.WithLabelValues("error").Inc()
		return nil, err
	}
	if ids.IsEmpty() {
		e.metrics.SearchQueriesTotal.WithLabelValues("zero").Inc()
		e.metrics.SearchResultsCount.Observe(0)
		return result, nil
	}

	candidates := toIDs(ids)
	if !plan.Metadata.IsZero() {
		fctx, span := tracing.StartChild(ctx, "search.filter")
		candidates, err = e.docs.Filter(fctx, candidates, plan.Metadata)
		span.SetAttr("matched", len(candidates))
		span.End()
		if err != nil {
			e.metrics.SearchQueriesTotal.WithLabelValues("error").Inc()
			return nil, fmt.Errorf("filtering candidates: %w", err)
		}
	}

	if len(candidates) > 0 {
		sums, err := e.docs.Summaries(ctx, candidates)
		if err != nil {
			e.metrics.SearchQueriesTotal.WithLabelValues("error").Inc()
			return nil, fmt.Errorf("loading summaries: %w", err)
		}
		result.Results = sums
	}
	result.Count = len(result.Results)

	resultType := "hit"
	if result.Count == 0 {
		resultType = "zero"
	}
	e.metrics.SearchQueriesTotal.WithLabelValues(resultType).Inc()
	e.metrics.SearchResultsCount.Observe(float64(result.Count))
	e.logger.Debug("query executed",
		"query", plan.RawQuery,
		"terms", plan.Terms,
		"candidates", ids.GetCardinality(),
		"results", result.Count,
	)
	return result, nil
}

// intersect ANDs the postings of terms in query order and stops fetching as
// soon as the running intersection is empty.
func (e *Engine) intersect(ctx context.Context, terms []string) (*roaring.Bitmap, error) {
	ctx, span := tracing.StartChild(ctx, "search.intersect")
	defer span.End()

	var acc *roaring.Bitmap
	seen := make(map[string]struct{}, len(terms))
	fetched := 0
	for _, term := range terms {
		if _, ok := seen[term]; ok {
			continue
		}
		seen[term] = struct{}{}

		bm, err := e.lookup(ctx, term)
		if err != nil {
			return nil, err
		}
		fetched++
		if acc == nil {
			acc = bm
		} else {
			acc.And(bm)
		}
		if acc.IsEmpty() {
			break
		}
	}
	if acc == nil {
		acc = roaring.New()
	}
	span.SetAttr("terms", len(terms))
	span.SetAttr("fetched", fetched)
	span.SetAttr("candidates", acc.GetCardinality())
	return acc, nil
}

func (e *Engine) lookup(ctx context.Context, term string) (*roaring.Bitmap, error) {
	bm, err := resilience.ExecuteValue(ctx, e.breaker, func(ctx context.Context) (*roaring.Bitmap, error) {
		return e.postings.Get(ctx, term)
	})
	if err != nil {
		return nil, fmt.Errorf("looking up %q: %w: %w", term, apperrors.ErrStore, err)
	}
	return bm, nil
}

func toIDs(bm *roaring.Bitmap) []document.ID {
	out := make([]document.ID, 0, bm.GetCardinality())
	it := bm.Iterator()
	for it.HasNext() {
		out = append(out, document.ID(it.Next()))
	}
	return out
}
