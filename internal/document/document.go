// Package document defines the book records the index is built from and the
// store boundary the indexer and searcher read them through. The store is
// owned by the ingestion side; this package only reads from it.
package document

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	apperrors "github.com/Adithya-Monish-Kumar-K/bookindex/pkg/errors"
)

// ID identifies a book. Ids are assigned upstream and fit in 32 bits.
type ID uint32

// Document is a book as produced by ingestion.
type Document struct {
	ID          ID     `json:"id" db:"id"`
	Title       string `json:"title" db:"title"`
	Author      string `json:"author" db:"author"`
	Language    string `json:"language" db:"language"`
	ReleaseDate string `json:"release_date" db:"release_date"`
	Content     string `json:"content" db:"content"`
	Footer      string `json:"footer" db:"footer"`
}

// Summary is the metadata returned for a search hit.
type Summary struct {
	BookID   ID     `json:"book_id"`
	Title    string `json:"title"`
	Author   string `json:"author"`
	Language string `json:"language"`
	Year     *int   `json:"year"`
}

// MetadataFilter narrows a candidate id set. Zero values are ignored; Year
// is only applied when HasYear is set.
type MetadataFilter struct {
	Author   string
	Language string
	Year     int
	HasYear  bool
}

// IsZero reports whether the filter matches everything.
func (f MetadataFilter) IsZero() bool {
	return f.Author == "" && f.Language == "" && !f.HasYear
}

// Match applies the filter to a single document in memory.
func (f MetadataFilter) Match(d Document) bool {
	if f.Author != "" && !containsFold(d.Author, f.Author) {
		return false
	}
	if f.Language != "" && !containsFold(d.Language, f.Language) {
		return false
	}
	if f.HasYear {
		year, ok := ParseYear(d.ReleaseDate)
		if !ok || year != f.Year {
			return false
		}
	}
	return true
}

// Store is the read side of the external book store.
type Store interface {
	// Get returns the book or an error wrapping apperrors.ErrDocumentNotFound.
	Get(ctx context.Context, id ID) (Document, error)
	// List returns every book in the store.
	List(ctx context.Context) ([]Document, error)
	// Filter returns the subset of ids whose metadata matches f.
	Filter(ctx context.Context, ids []ID, f MetadataFilter) ([]ID, error)
	// Summaries returns search metadata for ids, ordered by id. Unknown ids
	// are omitted.
	Summaries(ctx context.Context, ids []ID) ([]Summary, error)
}

// Writer is the write side used by ingestion.
type Writer interface {
	Upsert(ctx context.Context, d Document) error
}

// ParseID parses a path or query parameter into an ID.
func ParseID(raw string) (ID, error) {
	n, err := strconv.ParseUint(strings.TrimSpace(raw), 10, 32)
	if err != nil {
		return 0, apperrors.Validation("invalid book_id %q: must be a non-negative integer", raw)
	}
	return ID(n), nil
}

// FromInt converts a wider integer id, rejecting values outside ID's range.
func FromInt(n int64) (ID, error) {
	if n < 0 || n > math.MaxUint32 {
		return 0, apperrors.Validation("book_id %d out of range", n)
	}
	return ID(n), nil
}

func (id ID) String() string {
	return strconv.FormatUint(uint64(id), 10)
}

var yearPattern = regexp.MustCompile(`\b(\d{4})\b`)

// ParseYear extracts the first four-digit year from a free-form release
// date such as "June 25, 2008 [EBook #28885]".
func ParseYear(releaseDate string) (int, bool) {
	m := yearPattern.FindStringSubmatch(releaseDate)
	if m == nil {
		return 0, false
	}
	year, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return year, true
}

// Summarize projects a document onto its search summary.
func Summarize(d Document) Summary {
	s := Summary{
		BookID:   d.ID,
		Title:    d.Title,
		Author:   d.Author,
		Language: d.Language,
	}
	if year, ok := ParseYear(d.ReleaseDate); ok {
		s.Year = &year
	}
	return s
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

func notFound(id ID) error {
	return fmt.Errorf("book %d: %w", id, apperrors.NotFound("Book not found: %d", id))
}
