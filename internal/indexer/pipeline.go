// Package indexer turns documents into postings. The Pipeline indexes one
// document at a time and is safe for concurrent use; the Coordinator rebuilds
// the whole index from the document store with a bounded worker pool.
package indexer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/bookindex/internal/document"
	"github.com/Adithya-Monish-Kumar-K/bookindex/internal/events"
	"github.com/Adithya-Monish-Kumar-K/bookindex/internal/indexer/ledger"
	"github.com/Adithya-Monish-Kumar-K/bookindex/internal/indexer/postings"
	"github.com/Adithya-Monish-Kumar-K/bookindex/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/bookindex/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/bookindex/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/bookindex/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/bookindex/pkg/resilience"
)

// IndexResult is the outcome of indexing one document.
type IndexResult struct {
	TermsAdded int  `json:"terms_added"`
	Skipped    bool `json:"skipped"`
}

// Status summarises the index for the status endpoint.
type Status struct {
	BooksIndexed int64   `json:"books_indexed"`
	Terms        int64   `json:"terms"`
	LastUpdate   string  `json:"last_update"`
	IndexSizeMB  float64 `json:"index_size_MB"`
	Postings     string  `json:"postings_backend"`
	Ledger       string  `json:"ledger_backend"`
}

type Pipeline struct {
	postings postings.Store
	ledger   ledger.Ledger
	docs     document.Store
	notifier events.Notifier
	metrics  *metrics.Metrics
	retry    resilience.RetryConfig
	logger   *slog.Logger

	// generation is read-held from the postings write through the ledger
	// mark, and write-held while a rebuild clears both stores.
	generation sync.RWMutex
	lastUpdate atomic.Int64
}

func NewPipeline(store postings.Store, led ledger.Ledger, docs document.Store, cfg config.IndexConfig, m *metrics.Metrics) *Pipeline {
	return &Pipeline{
		postings: store,
		ledger:   led,
		docs:     docs,
		notifier: events.Nop{},
		metrics:  m,
		retry: resilience.RetryConfig{
			MaxAttempts:  cfg.WriteAttempts,
			InitialDelay: 50 * time.Millisecond,
			MaxDelay:     2 * time.Second,
			ShouldRetry:  apperrors.IsRetryable,
			OnRetry: func(int, error) {
				m.StoreRetriesTotal.WithLabelValues("bulk_union").Inc()
			},
		},
		logger: slog.Default().With("component", "index-pipeline"),
	}
}

// SetNotifier replaces the event notifier. It must be called before the
// pipeline is used.
func (p *Pipeline) SetNotifier(n events.Notifier) {
	p.notifier = n
}

// IndexDocument adds doc to the index unless the ledger already has it.
func (p *Pipeline) IndexDocument(ctx context.Context, doc document.Document) (IndexResult, error) {
	done, err := p.ledger.Contains(ctx, doc.ID)
	if err != nil {
		p.metrics.IndexFailuresTotal.WithLabelValues("ledger").Inc()
		return IndexResult{}, fmt.Errorf("checking ledger for book %d: %w", doc.ID, err)
	}
	if done {
		p.metrics.IndexSkippedTotal.Inc()
		p.logger.Debug("book already indexed", "book_id", doc.ID)
		return IndexResult{Skipped: true}, nil
	}

	n, err := p.index(ctx, doc)
	if err != nil {
		return IndexResult{}, err
	}
	p.notifier.IndexCompleted(events.IndexCompleted{
		Kind:      events.KindUpdate,
		BookID:    doc.ID,
		Terms:     n,
		Timestamp: p.LastUpdate(),
	})
	p.logger.Info("book indexed", "book_id", doc.ID, "terms", n)
	return IndexResult{TermsAdded: n}, nil
}

// IndexByID loads the book from the document store and indexes it. A book
// already in the ledger is reported as skipped without touching the store.
func (p *Pipeline) IndexByID(ctx context.Context, id document.ID) (IndexResult, error) {
	done, err := p.ledger.Contains(ctx, id)
	if err != nil {
		return IndexResult{}, fmt.Errorf("checking ledger for book %d: %w", id, err)
	}
	if done {
		p.metrics.IndexSkippedTotal.Inc()
		return IndexResult{Skipped: true}, nil
	}
	doc, err := p.docs.Get(ctx, id)
	if err != nil {
		return IndexResult{}, err
	}
	return p.IndexDocument(ctx, doc)
}

// index writes doc's postings and then marks it in the ledger. It does not
// consult the ledger first.
func (p *Pipeline) index(ctx context.Context, doc document.Document) (int, error) {
	terms := tokenizer.Tokenize(doc.Content).Sorted()

	p.generation.RLock()
	defer p.generation.RUnlock()
	if len(terms) > 0 {
		writes := postings.WritesFor(doc.ID, terms)
		err := resilience.Retry(ctx, "postings bulk union", p.retry, func(ctx context.Context) error {
			return p.postings.BulkUnion(ctx, writes)
		})
		if err != nil {
			p.metrics.IndexFailuresTotal.WithLabelValues("postings").Inc()
			return 0, fmt.Errorf("writing postings for book %d: %w", doc.ID, err)
		}
		p.metrics.PostingsWritesTotal.Add(float64(len(writes)))
	}
	if err := p.ledger.Mark(ctx, doc.ID); err != nil {
		p.metrics.IndexFailuresTotal.WithLabelValues("ledger").Inc()
		return 0, fmt.Errorf("marking book %d indexed: %w", doc.ID, err)
	}
	p.metrics.DocsIndexedTotal.Inc()
	p.touch()
	return len(terms), nil
}

// reset empties postings and ledger once no document is between its
// postings write and its ledger mark.
func (p *Pipeline) reset(ctx context.Context) error {
	p.generation.Lock()
	defer p.generation.Unlock()
	if err := p.postings.Clear(ctx); err != nil {
		return fmt.Errorf("clearing postings: %w", err)
	}
	if err := p.ledger.Reset(ctx); err != nil {
		return fmt.Errorf("resetting ledger: %w", err)
	}
	return nil
}

func (p *Pipeline) touch() {
	p.lastUpdate.Store(time.Now().UTC().UnixNano())
}

// LastUpdate returns when the index last changed, or the zero time.
func (p *Pipeline) LastUpdate() time.Time {
	ns := p.lastUpdate.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns).UTC()
}

// Status reports ledger size and postings storage usage.
func (p *Pipeline) Status(ctx context.Context) (Status, error) {
	count, err := p.ledger.Count(ctx)
	if err != nil {
		return Status{}, fmt.Errorf("counting indexed books: %w", err)
	}
	st, err := p.postings.Stats(ctx)
	if err != nil {
		return Status{}, fmt.Errorf("reading postings stats: %w", err)
	}
	lastUpdate := "unknown"
	if t := p.LastUpdate(); !t.IsZero() {
		lastUpdate = t.Format(time.RFC3339)
	}
	return Status{
		BooksIndexed: count,
		Terms:        st.Terms,
		LastUpdate:   lastUpdate,
		IndexSizeMB:  roundMB(st.Bytes),
		Postings:     p.postings.Name(),
		Ledger:       p.ledger.Name(),
	}, nil
}

func roundMB(bytes int64) float64 {
	mb := float64(bytes) / (1024 * 1024)
	return float64(int64(mb*100+0.5)) / 100
}
