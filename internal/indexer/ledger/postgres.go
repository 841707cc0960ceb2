package ledger

import (
	"context"
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/bookindex/internal/document"
	apperrors "github.com/Adithya-Monish-Kumar-K/bookindex/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/bookindex/pkg/postgres"
)

// Schema creates the ledger table.
const Schema = `CREATE TABLE IF NOT EXISTS indexed_documents (
	doc_id     BIGINT PRIMARY KEY,
	indexed_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// PostgresLedger stores the indexed set in the indexed_documents table.
type PostgresLedger struct {
	client *postgres.Client
}

func NewPostgresLedger(client *postgres.Client) *PostgresLedger {
	return &PostgresLedger{client: client}
}

func (l *PostgresLedger) Contains(ctx context.Context, id document.ID) (bool, error) {
	var exists bool
	err := l.client.DB.GetContext(ctx, &exists,
		`SELECT EXISTS (SELECT 1 FROM indexed_documents WHERE doc_id = $1)`, int64(id))
	if err != nil {
		return false, fmt.Errorf("ledger lookup: %w: %w", apperrors.ErrStore, err)
	}
	return exists, nil
}

func (l *PostgresLedger) Mark(ctx context.Context, id document.ID) error {
	_, err := l.client.DB.ExecContext(ctx,
		`INSERT INTO indexed_documents (doc_id) VALUES ($1) ON CONFLICT (doc_id) DO NOTHING`, int64(id))
	if err != nil {
		return fmt.Errorf("ledger mark: %w: %w", apperrors.ErrStore, err)
	}
	return nil
}

func (l *PostgresLedger) Reset(ctx context.Context) error {
	if _, err := l.client.DB.ExecContext(ctx, `TRUNCATE indexed_documents`); err != nil {
		return fmt.Errorf("ledger reset: %w: %w", apperrors.ErrStore, err)
	}
	return nil
}

func (l *PostgresLedger) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := l.client.DB.GetContext(ctx, &n, `SELECT count(*) FROM indexed_documents`); err != nil {
		return 0, fmt.Errorf("ledger count: %w: %w", apperrors.ErrStore, err)
	}
	return n, nil
}

func (l *PostgresLedger) List(ctx context.Context) ([]document.ID, error) {
	var raw []int64
	if err := l.client.DB.SelectContext(ctx, &raw, `SELECT doc_id FROM indexed_documents ORDER BY doc_id`); err != nil {
		return nil, fmt.Errorf("ledger list: %w: %w", apperrors.ErrStore, err)
	}
	out := make([]document.ID, len(raw))
	for i, n := range raw {
		out[i] = document.ID(n)
	}
	return out, nil
}

func (l *PostgresLedger) Name() string { return "postgres" }
