// Package postings stores the term → document-id sets of the inverted index.
// Every backend gives per-term idempotent unions: adding the same pair twice
// is a no-op, and writes to different terms never contend on a global lock.
// Terms are routed to buckets by their first byte; the routing is stable so a
// term's postings always live in exactly one bucket.
package postings

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/bookindex/internal/document"
	apperrors "github.com/Adithya-Monish-Kumar-K/bookindex/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/bookindex/pkg/resilience"
	"github.com/RoaringBitmap/roaring/v2"
	"golang.org/x/sync/errgroup"
)

// Write is one (term, document) union.
type Write struct {
	Term  string
	DocID document.ID
}

// Stats describes the size of the stored index.
type Stats struct {
	Terms int64
	Bytes int64
}

// Store is the postings adapter used by the indexer and the searcher.
type Store interface {
	// Union adds id to term's postings.
	Union(ctx context.Context, term string, id document.ID) error
	// BulkUnion applies writes grouped by bucket. When some buckets fail the
	// returned error is a *PartialWriteError; the successful buckets stay
	// applied and a retry of the whole batch is safe.
	BulkUnion(ctx context.Context, writes []Write) error
	// Get returns term's postings, empty for unknown terms. The caller owns
	// the returned bitmap.
	Get(ctx context.Context, term string) (*roaring.Bitmap, error)
	// Clear removes every postings entry before returning.
	Clear(ctx context.Context) error
	Stats(ctx context.Context) (Stats, error)
	// Name identifies the backend in status responses.
	Name() string
}

// Bucket returns the partition a term is stored in.
func Bucket(term string) string {
	if term == "" {
		return "_"
	}
	return term[:1]
}

// WritesFor expands a term set for one document into postings writes.
func WritesFor(id document.ID, terms []string) []Write {
	writes := make([]Write, len(terms))
	for i, term := range terms {
		writes[i] = Write{Term: term, DocID: id}
	}
	return writes
}

// PartialWriteError reports the buckets of a bulk write that failed.
type PartialWriteError struct {
	Failed []string
	Total  int
	Err    error
}

func (e *PartialWriteError) Error() string {
	return fmt.Sprintf("postings bulk write failed for %d of %d buckets [%s]: %v",
		len(e.Failed), e.Total, strings.Join(e.Failed, ","), e.Err)
}

func (e *PartialWriteError) Unwrap() []error {
	return []error{apperrors.ErrPartialWrite, e.Err}
}

// groupByBucket partitions writes by Bucket, preserving input order within
// each bucket.
func groupByBucket(writes []Write) map[string][]Write {
	groups := make(map[string][]Write)
	for _, w := range writes {
		b := Bucket(w.Term)
		groups[b] = append(groups[b], w)
	}
	return groups
}

// writeBuckets runs fn for every bucket concurrently (at most limit at a
// time). A failing bucket does not cancel the others.
func writeBuckets(ctx context.Context, writes []Write, limit int, fn func(ctx context.Context, bucket string, ws []Write) error) error {
	groups := groupByBucket(writes)
	if len(groups) == 0 {
		return nil
	}
	if limit <= 0 {
		limit = len(groups)
	}
	g := new(errgroup.Group)
	g.SetLimit(limit)
	var (
		mu       sync.Mutex
		failed   []string
		firstErr error
	)
	for bucket, ws := range groups {
		g.Go(func() error {
			if err := fn(ctx, bucket, ws); err != nil {
				mu.Lock()
				failed = append(failed, bucket)
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	if len(failed) == 0 {
		return nil
	}
	sort.Strings(failed)
	return &PartialWriteError{Failed: failed, Total: len(groups), Err: firstErr}
}

func storeErr(op string, err error) error {
	return fmt.Errorf("postings %s: %w: %w", op, apperrors.ErrStore, err)
}

// timeoutStore bounds every call to the wrapped store.
type timeoutStore struct {
	inner  Store
	lookup time.Duration
	bulk   time.Duration
	logger *slog.Logger
}

// WithTimeouts wraps s so single-term calls are bounded by lookup and bulk
// writes and clears by bulk. Expired calls fail with apperrors.ErrTimeout.
func WithTimeouts(s Store, lookup, bulk time.Duration) Store {
	return &timeoutStore{
		inner:  s,
		lookup: lookup,
		bulk:   bulk,
		logger: slog.Default().With("component", "postings-timeout", "backend", s.Name()),
	}
}

func (t *timeoutStore) Union(ctx context.Context, term string, id document.ID) error {
	return resilience.WithTimeout(ctx, t.lookup, "postings union", func(ctx context.Context) error {
		return t.inner.Union(ctx, term, id)
	})
}

func (t *timeoutStore) BulkUnion(ctx context.Context, writes []Write) error {
	err := resilience.WithTimeout(ctx, t.bulk, "postings bulk union", func(ctx context.Context) error {
		return t.inner.BulkUnion(ctx, writes)
	})
	if err != nil {
		t.logger.Warn("bulk union failed", "writes", len(writes), "error", err)
	}
	return err
}

func (t *timeoutStore) Get(ctx context.Context, term string) (*roaring.Bitmap, error) {
	return resilience.WithTimeoutValue(ctx, t.lookup, "postings get", func(ctx context.Context) (*roaring.Bitmap, error) {
		return t.inner.Get(ctx, term)
	})
}

func (t *timeoutStore) Clear(ctx context.Context) error {
	return resilience.WithTimeout(ctx, t.bulk, "postings clear", t.inner.Clear)
}

func (t *timeoutStore) Stats(ctx context.Context) (Stats, error) {
	return resilience.WithTimeoutValue(ctx, t.lookup, "postings stats", t.inner.Stats)
}

func (t *timeoutStore) Name() string {
	return t.inner.Name()
}
