package postings

import (
	"context"
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/bookindex/internal/document"
	"github.com/Adithya-Monish-Kumar-K/bookindex/pkg/postgres"
	"github.com/RoaringBitmap/roaring/v2"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// Schema creates the postings table. The (term, doc_id) key makes every
// insert an idempotent union.
var Schema = []string{
	`CREATE TABLE IF NOT EXISTS postings (
		bucket TEXT   NOT NULL,
		term   TEXT   NOT NULL,
		doc_id BIGINT NOT NULL,
		PRIMARY KEY (term, doc_id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_postings_bucket ON postings (bucket)`,
}

const insertPosting = `INSERT INTO postings (bucket, term, doc_id) VALUES ($1, $2, $3)
	ON CONFLICT (term, doc_id) DO NOTHING`

// insertBucket unions a whole bucket in one statement.
const insertBucket = `INSERT INTO postings (bucket, term, doc_id)
	SELECT $1, t, d FROM unnest($2::text[], $3::bigint[]) AS w(t, d)
	ON CONFLICT (term, doc_id) DO NOTHING`

// PostgresStore keeps postings as (term, doc_id) rows. Each bucket of a
// bulk write commits in its own transaction.
type PostgresStore struct {
	client *postgres.Client
	limit  int
}

func NewPostgresStore(client *postgres.Client) *PostgresStore {
	return &PostgresStore{client: client, limit: 4}
}

func (s *PostgresStore) Union(ctx context.Context, term string, id document.ID) error {
	if _, err := s.client.DB.ExecContext(ctx, insertPosting, Bucket(term), term, int64(id)); err != nil {
		return storeErr("insert "+term, err)
	}
	return nil
}

func (s *PostgresStore) BulkUnion(ctx context.Context, writes []Write) error {
	return writeBuckets(ctx, writes, s.limit, func(ctx context.Context, bucket string, ws []Write) error {
		terms := make([]string, len(ws))
		ids := make([]int64, len(ws))
		for i, w := range ws {
			terms[i] = w.Term
			ids[i] = int64(w.DocID)
		}
		err := s.client.InTx(ctx, func(tx *sqlx.Tx) error {
			_, err := tx.ExecContext(ctx, insertBucket, bucket, pq.Array(terms), pq.Array(ids))
			return err
		})
		if err != nil {
			return storeErr(fmt.Sprintf("bucket %s (%d writes)", bucket, len(ws)), err)
		}
		return nil
	})
}

func (s *PostgresStore) Get(ctx context.Context, term string) (*roaring.Bitmap, error) {
	var ids []int64
	if err := s.client.DB.SelectContext(ctx, &ids, `SELECT doc_id FROM postings WHERE term = $1`, term); err != nil {
		return nil, storeErr("select "+term, err)
	}
	bm := roaring.New()
	for _, id := range ids {
		bm.Add(uint32(id))
	}
	return bm, nil
}

func (s *PostgresStore) Clear(ctx context.Context) error {
	if _, err := s.client.DB.ExecContext(ctx, `TRUNCATE postings`); err != nil {
		return storeErr("truncate", err)
	}
	return nil
}

func (s *PostgresStore) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	err := s.client.DB.QueryRowContext(ctx,
		`SELECT count(DISTINCT term), pg_total_relation_size('postings') FROM postings`,
	).Scan(&st.Terms, &st.Bytes)
	if err != nil {
		return Stats{}, storeErr("stats", err)
	}
	return st, nil
}

func (s *PostgresStore) Name() string { return "postgres" }
