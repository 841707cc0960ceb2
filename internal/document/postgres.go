package document

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/bookindex/pkg/postgres"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// BooksSchema creates the books table the ingestion service writes to. It
// is applied on startup so a fresh database is usable for local runs.
const BooksSchema = `CREATE TABLE IF NOT EXISTS books (
	id           BIGINT PRIMARY KEY,
	title        TEXT NOT NULL DEFAULT '',
	author       TEXT NOT NULL DEFAULT '',
	language     TEXT NOT NULL DEFAULT '',
	release_date TEXT NOT NULL DEFAULT '',
	content      TEXT,
	footer       TEXT NOT NULL DEFAULT ''
)`

const selectColumns = `id, COALESCE(title, '') AS title, COALESCE(author, '') AS author,
	COALESCE(language, '') AS language, COALESCE(release_date, '') AS release_date`

// yearExpr mirrors ParseYear: the first standalone four-digit run.
const yearExpr = `substring(release_date from '\m(\d{4})\M')::int`

// PostgresStore reads books from PostgreSQL through sqlx.
type PostgresStore struct {
	db *sqlx.DB
}

func NewPostgresStore(client *postgres.Client) *PostgresStore {
	return &PostgresStore{db: client.DB}
}

func (s *PostgresStore) Get(ctx context.Context, id ID) (Document, error) {
	var d Document
	err := s.db.GetContext(ctx, &d,
		`SELECT `+selectColumns+`, COALESCE(content, '') AS content, COALESCE(footer, '') AS footer
		FROM books WHERE id = $1`, int64(id))
	if errors.Is(err, sql.ErrNoRows) {
		return Document{}, notFound(id)
	}
	if err != nil {
		return Document{}, fmt.Errorf("loading book %d: %w", id, err)
	}
	return d, nil
}

// Upsert inserts a book or replaces its columns when the id exists.
func (s *PostgresStore) Upsert(ctx context.Context, d Document) error {
	_, err := s.db.NamedExecContext(ctx,
		`INSERT INTO books (id, title, author, language, release_date, content, footer)
		VALUES (:id, :title, :author, :language, :release_date, :content, :footer)
		ON CONFLICT (id) DO UPDATE SET
			title = EXCLUDED.title,
			author = EXCLUDED.author,
			language = EXCLUDED.language,
			release_date = EXCLUDED.release_date,
			content = EXCLUDED.content,
			footer = EXCLUDED.footer`, d)
	if err != nil {
		return fmt.Errorf("upserting book %d: %w", d.ID, err)
	}
	return nil
}

func (s *PostgresStore) List(ctx context.Context) ([]Document, error) {
	var docs []Document
	err := s.db.SelectContext(ctx, &docs,
		`SELECT `+selectColumns+`, COALESCE(content, '') AS content, COALESCE(footer, '') AS footer
		FROM books ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("listing books: %w", err)
	}
	return docs, nil
}

func (s *PostgresStore) Filter(ctx context.Context, ids []ID, f MetadataFilter) ([]ID, error) {
	if len(ids) == 0 {
		return []ID{}, nil
	}
	query := `SELECT id FROM books WHERE id = ANY(?)`
	args := []any{pq.Array(toInt64s(ids))}
	if f.Author != "" {
		query += ` AND author ILIKE ?`
		args = append(args, likePattern(f.Author))
	}
	if f.Language != "" {
		query += ` AND language ILIKE ?`
		args = append(args, likePattern(f.Language))
	}
	if f.HasYear {
		query += ` AND ` + yearExpr + ` = ?`
		args = append(args, f.Year)
	}
	query += ` ORDER BY id`

	var raw []int64
	if err := s.db.SelectContext(ctx, &raw, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("filtering books: %w", err)
	}
	out := make([]ID, len(raw))
	for i, n := range raw {
		out[i] = ID(n)
	}
	return out, nil
}

type summaryRow struct {
	ID          int64  `db:"id"`
	Title       string `db:"title"`
	Author      string `db:"author"`
	Language    string `db:"language"`
	ReleaseDate string `db:"release_date"`
}

func (s *PostgresStore) Summaries(ctx context.Context, ids []ID) ([]Summary, error) {
	if len(ids) == 0 {
		return []Summary{}, nil
	}
	var rows []summaryRow
	err := s.db.SelectContext(ctx, &rows,
		`SELECT `+selectColumns+` FROM books WHERE id = ANY($1) ORDER BY id`, pq.Array(toInt64s(ids)))
	if err != nil {
		return nil, fmt.Errorf("loading summaries: %w", err)
	}
	out := make([]Summary, 0, len(rows))
	for _, r := range rows {
		out = append(out, Summarize(Document{
			ID:          ID(r.ID),
			Title:       r.Title,
			Author:      r.Author,
			Language:    r.Language,
			ReleaseDate: r.ReleaseDate,
		}))
	}
	return out, nil
}

func toInt64s(ids []ID) []int64 {
	out := make([]int64, len(ids))
	for i, id := range ids {
		out[i] = int64(id)
	}
	return out
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// likePattern turns user input into a literal substring ILIKE pattern.
func likePattern(s string) string {
	return "%" + likeEscaper.Replace(s) + "%"
}
