package document

import (
	"context"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/bookindex/internal/storetest"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostgresStore(t *testing.T) {
	client := storetest.Postgres(t, BooksSchema)
	ctx := context.Background()
	_, err := client.DB.ExecContext(ctx, `TRUNCATE books`)
	require.NoError(t, err)

	s := NewPostgresStore(client)
	for _, d := range fixtures() {
		require.NoError(t, s.Upsert(ctx, d))
	}

	d, err := s.Get(ctx, 1342)
	require.NoError(t, err)
	assert.Equal(t, "Jane Austen", d.Author)

	ids, err := s.Filter(ctx, []ID{11, 1342, 2000, 999}, MetadataFilter{Language: "english", Year: 1998, HasYear: true})
	require.NoError(t, err)
	assert.Equal(t, []ID{1342}, ids)

	sums, err := s.Summaries(ctx, []ID{7, 1342})
	require.NoError(t, err)
	year := 1998
	want := []Summary{
		{BookID: 7, Title: "Untitled"},
		{BookID: 1342, Title: "Pride and Prejudice", Author: "Jane Austen", Language: "English", Year: &year},
	}
	if diff := cmp.Diff(want, sums); diff != "" {
		t.Errorf("Summaries mismatch (-want +got):\n%s", diff)
	}
}

// A common term can match more books than a statement has bind parameters.
func TestPostgresStoreHandlesLargeCandidateSets(t *testing.T) {
	client := storetest.Postgres(t, BooksSchema)
	ctx := context.Background()
	_, err := client.DB.ExecContext(ctx, `TRUNCATE books`)
	require.NoError(t, err)

	s := NewPostgresStore(client)
	for _, d := range fixtures() {
		require.NoError(t, s.Upsert(ctx, d))
	}

	candidates := make([]ID, 0, 70000)
	for i := range 70000 {
		candidates = append(candidates, ID(i+1))
	}

	ids, err := s.Filter(ctx, candidates, MetadataFilter{Author: "carroll"})
	require.NoError(t, err)
	assert.Equal(t, []ID{11}, ids)

	sums, err := s.Summaries(ctx, candidates)
	require.NoError(t, err)
	assert.Len(t, sums, 4)
}
