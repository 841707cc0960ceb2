// Package backend builds the stores a service runs on from configuration:
// the postings store, the indexed-set ledger and the document store, plus
// the Postgres and Redis clients behind them.
package backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/bookindex/internal/document"
	"github.com/Adithya-Monish-Kumar-K/bookindex/internal/indexer/ledger"
	"github.com/Adithya-Monish-Kumar-K/bookindex/internal/indexer/postings"
	"github.com/Adithya-Monish-Kumar-K/bookindex/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/bookindex/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/bookindex/pkg/postgres"
	pkgredis "github.com/Adithya-Monish-Kumar-K/bookindex/pkg/redis"
)

// Role selects which stores are opened.
type Role int

const (
	// RoleIndexer opens postings, ledger and documents.
	RoleIndexer Role = iota
	// RoleSearcher opens postings and documents, and Redis for the query
	// cache when enabled.
	RoleSearcher
)

type Backends struct {
	Postings  postings.Store
	Ledger    ledger.Ledger
	Documents document.Store

	Postgres *postgres.Client
	Redis    *pkgredis.Client

	cfg     *config.Config
	closers []func() error
	logger  *slog.Logger
}

// Open connects every store the role needs. On error, anything already
// opened is closed.
func Open(ctx context.Context, cfg *config.Config, role Role) (_ *Backends, err error) {
	b := &Backends{cfg: cfg, logger: slog.Default().With("component", "backend")}
	defer func() {
		if err != nil {
			b.Close()
		}
	}()

	idx := cfg.Index
	needPostgres := idx.Backend == config.BackendPostgres || idx.DocumentStore == config.BackendPostgres ||
		(role == RoleIndexer && idx.Ledger == config.BackendPostgres)
	needRedis := idx.Backend == config.BackendRedis ||
		(role == RoleIndexer && idx.Ledger == config.BackendRedis) ||
		(role == RoleSearcher && cfg.Search.CacheEnabled)

	if needPostgres {
		if b.Postgres, err = postgres.New(ctx, cfg.Postgres); err != nil {
			return nil, fmt.Errorf("connecting to postgres: %w", err)
		}
		b.closers = append(b.closers, b.Postgres.Close)
		schema := []string{document.BooksSchema, ledger.Schema}
		schema = append(schema, postings.Schema...)
		if err = b.Postgres.EnsureSchema(ctx, schema...); err != nil {
			return nil, err
		}
		b.logger.Info("postgres connected", "host", cfg.Postgres.Host, "database", cfg.Postgres.Database)
	}
	if needRedis {
		if b.Redis, err = pkgredis.NewClient(cfg.Redis); err != nil {
			return nil, fmt.Errorf("connecting to redis: %w", err)
		}
		b.closers = append(b.closers, b.Redis.Close)
		b.logger.Info("redis connected", "addr", cfg.Redis.Addr)
	}

	var store postings.Store
	switch idx.Backend {
	case config.BackendRedis:
		store = postings.NewRedisStore(b.Redis)
	case config.BackendPostgres:
		store = postings.NewPostgresStore(b.Postgres)
	default:
		store = postings.NewMemoryStore()
	}
	b.Postings = postings.WithTimeouts(store, idx.LookupTimeout, idx.BulkTimeout)

	switch idx.DocumentStore {
	case config.BackendPostgres:
		b.Documents = document.NewPostgresStore(b.Postgres)
	default:
		if idx.DocumentsPath == "" {
			b.Documents = document.NewMemoryStore()
			break
		}
		docs, err := document.LoadFile(idx.DocumentsPath)
		if err != nil {
			return nil, err
		}
		b.Documents = docs
	}

	if role == RoleIndexer {
		switch idx.Ledger {
		case config.BackendFile:
			fl, err := ledger.OpenFile(idx.LedgerPath)
			if err != nil {
				return nil, err
			}
			b.closers = append(b.closers, fl.Close)
			b.Ledger = fl
		case config.BackendRedis:
			b.Ledger = ledger.NewRedisLedger(b.Redis)
		case config.BackendPostgres:
			b.Ledger = ledger.NewPostgresLedger(b.Postgres)
		default:
			b.Ledger = ledger.NewMemoryLedger()
		}
	}
	return b, nil
}

// Mode describes the configured backends for status responses.
func (b *Backends) Mode() string {
	parts := []string{"postings=" + b.Postings.Name()}
	if b.Ledger != nil {
		parts = append(parts, "ledger="+b.Ledger.Name())
	}
	parts = append(parts, "documents="+b.cfg.Index.DocumentStore)
	return strings.Join(parts, " ")
}

// ControlFile returns the ledger file path when the file ledger is used.
func (b *Backends) ControlFile() string {
	if _, ok := b.Ledger.(*ledger.FileLedger); ok {
		return b.cfg.Index.LedgerPath
	}
	return ""
}

// Database reports connectivity of the external stores in use.
func (b *Backends) Database(ctx context.Context) string {
	if b.Postgres == nil && b.Redis == nil {
		return "in-memory"
	}
	if b.Postgres != nil {
		if err := b.Postgres.Ping(ctx); err != nil {
			return "unreachable"
		}
	}
	if b.Redis != nil {
		if err := b.Redis.Ping(ctx); err != nil {
			return "unreachable"
		}
	}
	return "connected"
}

// RegisterHealth adds a readiness check per external store.
func (b *Backends) RegisterHealth(c *health.Checker) {
	if b.Postgres != nil {
		c.Register("postgres", health.PingCheck(b.Postgres.Ping, health.StatusDown))
	}
	if b.Redis != nil {
		// Losing a cache-only Redis degrades search; a Redis index is required.
		severity := health.StatusDegraded
		if b.cfg.Index.Backend == config.BackendRedis {
			severity = health.StatusDown
		}
		c.Register("redis", health.PingCheck(b.Redis.Ping, severity))
	}
	c.Register("postings", func(ctx context.Context) health.ComponentHealth {
		return health.ComponentHealth{Status: health.StatusUp, Message: b.Postings.Name()}
	})
}

// Close releases every opened client in reverse order.
func (b *Backends) Close() error {
	var errs []error
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	b.closers = nil
	return errors.Join(errs...)
}
