// Package postgres owns the sqlx connection pool shared by the postings,
// ledger and document stores, with schema setup and a transaction helper
// that retries deadlocks between concurrent index writers.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/bookindex/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/bookindex/pkg/resilience"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

type Client struct {
	DB     *sqlx.DB
	retry  resilience.RetryConfig
	logger *slog.Logger
}

// New opens the pool and pings it, giving up after connectTimeout.
func New(ctx context.Context, cfg config.PostgresConfig) (*Client, error) {
	const connectTimeout = 5 * time.Second
	cctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	db, err := sqlx.ConnectContext(cctx, "postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres %s:%d/%s: %w", cfg.Host, cfg.Port, cfg.Database, err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	return &Client{
		DB: db,
		retry: resilience.RetryConfig{
			MaxAttempts:  3,
			InitialDelay: 20 * time.Millisecond,
			MaxDelay:     500 * time.Millisecond,
			ShouldRetry:  IsConflict,
		},
		logger: slog.Default().With("component", "postgres", "database", cfg.Database),
	}, nil
}

func (c *Client) Close() error {
	return c.DB.Close()
}

func (c *Client) Ping(ctx context.Context) error {
	return c.DB.PingContext(ctx)
}

// InTx runs fn in a transaction. Transactions that lose a deadlock or a
// serialization conflict are rolled back and run again, so fn must be safe
// to repeat.
func (c *Client) InTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	return resilience.Retry(ctx, "postgres transaction", c.retry, func(ctx context.Context) error {
		return c.inTx(ctx, fn)
	})
}

func (c *Client) inTx(ctx context.Context, fn func(tx *sqlx.Tx) error) (err error) {
	tx, err := c.DB.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, context.Canceled) {
				c.logger.Warn("rollback failed", "error", rbErr, "cause", err)
			}
		}
	}()
	if err = fn(tx); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// EnsureSchema applies idempotent DDL (CREATE ... IF NOT EXISTS) in one
// transaction.
func (c *Client) EnsureSchema(ctx context.Context, statements ...string) error {
	return c.InTx(ctx, func(tx *sqlx.Tx) error {
		for _, stmt := range statements {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("applying schema: %w", err)
			}
		}
		return nil
	})
}

// IsConflict reports whether err is a deadlock or serialization failure,
// which a retried transaction can resolve.
func IsConflict(err error) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	switch pqErr.Code {
	case "40001", "40P01":
		return true
	}
	return false
}
