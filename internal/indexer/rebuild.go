package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/bookindex/internal/document"
	"github.com/Adithya-Monish-Kumar-K/bookindex/internal/events"
	"github.com/Adithya-Monish-Kumar-K/bookindex/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/bookindex/pkg/errors"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// RebuildResult summarises a full rebuild.
type RebuildResult struct {
	GenerationID   string        `json:"generation_id"`
	BooksProcessed int           `json:"books_processed"`
	TermsTotal     int           `json:"terms_indexed"`
	Failed         int           `json:"failed"`
	Duration       time.Duration `json:"-"`
}

// Coordinator rebuilds the index from scratch. At most one rebuild runs at
// a time.
type Coordinator struct {
	pipeline *Pipeline
	cfg      config.RebuildConfig
	running  atomic.Bool
	logger   *slog.Logger
}

func NewCoordinator(p *Pipeline, cfg config.RebuildConfig) *Coordinator {
	return &Coordinator{
		pipeline: p,
		cfg:      cfg,
		logger:   slog.Default().With("component", "rebuild-coordinator"),
	}
}

// Running reports whether a rebuild is in progress.
func (c *Coordinator) Running() bool {
	return c.running.Load()
}

func (c *Coordinator) workers() int {
	if c.cfg.Workers > 0 {
		return c.cfg.Workers
	}
	return runtime.GOMAXPROCS(0)
}

func (c *Coordinator) acquire() error {
	if !c.running.CompareAndSwap(false, true) {
		return apperrors.New(apperrors.ErrRebuildInProgress, http.StatusConflict, "An index rebuild is already running")
	}
	return nil
}

// RebuildAll clears postings and ledger and indexes docs with a bounded
// worker pool. A failing document is counted and logged without stopping
// the others.
func (c *Coordinator) RebuildAll(ctx context.Context, docs []document.Document) (RebuildResult, error) {
	if err := c.acquire(); err != nil {
		return RebuildResult{}, err
	}
	defer c.running.Store(false)
	return c.rebuild(ctx, docs)
}

// RebuildFromStore rebuilds from every book in the document store.
func (c *Coordinator) RebuildFromStore(ctx context.Context) (RebuildResult, error) {
	if err := c.acquire(); err != nil {
		return RebuildResult{}, err
	}
	defer c.running.Store(false)

	docs, err := c.pipeline.docs.List(ctx)
	if err != nil {
		c.pipeline.metrics.RebuildsTotal.WithLabelValues("failed").Inc()
		return RebuildResult{}, fmt.Errorf("listing books for rebuild: %w", err)
	}
	return c.rebuild(ctx, docs)
}

func (c *Coordinator) rebuild(ctx context.Context, docs []document.Document) (RebuildResult, error) {
	start := time.Now()
	res := RebuildResult{GenerationID: uuid.NewString()}
	logger := c.logger.With("generation", res.GenerationID)
	m := c.pipeline.metrics

	if c.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()
	}

	if err := c.pipeline.reset(ctx); err != nil {
		m.RebuildsTotal.WithLabelValues("failed").Inc()
		return res, err
	}

	workers := c.workers()
	logger.Info("rebuild started", "books", len(docs), "workers", workers)

	var limiter *rate.Limiter
	if c.cfg.MaxDocsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(c.cfg.MaxDocsPerSecond), 1)
	}

	// Documents already handed to a worker finish even if ctx ends.
	work := context.WithoutCancel(ctx)
	var processed, failed, terms atomic.Int64
	g := new(errgroup.Group)
	g.SetLimit(workers)

	scheduled := 0
	for _, doc := range docs {
		if ctx.Err() != nil {
			break
		}
		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				break
			}
		}
		g.Go(func() error {
			n, err := c.pipeline.index(work, doc)
			if err != nil {
				failed.Add(1)
				logger.Error("book failed during rebuild", "book_id", doc.ID, "error", err)
				return nil
			}
			processed.Add(1)
			terms.Add(int64(n))
			return nil
		})
		scheduled++
	}
	_ = g.Wait()

	res.BooksProcessed = int(processed.Load())
	res.TermsTotal = int(terms.Load())
	res.Failed = int(failed.Load())
	res.Duration = time.Since(start)
	m.RebuildDuration.Observe(res.Duration.Seconds())
	c.pipeline.touch()
	c.pipeline.notifier.IndexCompleted(events.IndexCompleted{
		Kind:         events.KindRebuild,
		Terms:        res.TermsTotal,
		Books:        res.BooksProcessed,
		GenerationID: res.GenerationID,
		Timestamp:    c.pipeline.LastUpdate(),
	})

	if err := ctx.Err(); err != nil {
		m.RebuildsTotal.WithLabelValues("interrupted").Inc()
		logger.Warn("rebuild interrupted",
			"scheduled", scheduled,
			"books", len(docs),
			"processed", res.BooksProcessed,
			"failed", res.Failed,
			"error", err,
		)
		if errors.Is(err, context.DeadlineExceeded) {
			err = apperrors.ErrTimeout
		}
		return res, fmt.Errorf("rebuild %s stopped after %d of %d books: %w", res.GenerationID, scheduled, len(docs), err)
	}

	status := "success"
	if res.Failed > 0 {
		status = "partial"
	}
	m.RebuildsTotal.WithLabelValues(status).Inc()
	logger.Info("rebuild finished",
		"processed", res.BooksProcessed,
		"failed", res.Failed,
		"terms", res.TermsTotal,
		"duration", res.Duration,
	)
	return res, nil
}
