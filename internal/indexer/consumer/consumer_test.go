package consumer

import (
	"context"
	"errors"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/bookindex/internal/document"
	"github.com/Adithya-Monish-Kumar-K/bookindex/internal/indexer"
	apperrors "github.com/Adithya-Monish-Kumar-K/bookindex/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubIndexer struct {
	seen []document.ID
	err  error
}

func (s *stubIndexer) IndexByID(_ context.Context, id document.ID) (indexer.IndexResult, error) {
	s.seen = append(s.seen, id)
	return indexer.IndexResult{TermsAdded: 3}, s.err
}

func TestHandleMessageIndexesBook(t *testing.T) {
	idx := &stubIndexer{}
	h := HandleMessage(idx)
	require.NoError(t, h(context.Background(), []byte("11"), []byte(`{"book_id":11,"ingested_at":"2024-01-02T03:04:05Z"}`)))
	assert.Equal(t, []document.ID{11}, idx.seen)
}

func TestHandleMessageDropsBadPayload(t *testing.T) {
	idx := &stubIndexer{}
	h := HandleMessage(idx)
	assert.NoError(t, h(context.Background(), nil, []byte(`not json`)))
	assert.Empty(t, idx.seen)
}

func TestHandleMessageDropsMissingBook(t *testing.T) {
	idx := &stubIndexer{err: apperrors.NotFound("Book not found: 7")}
	h := HandleMessage(idx)
	assert.NoError(t, h(context.Background(), nil, []byte(`{"book_id":7}`)))
}

func TestHandleMessageReturnsStoreErrors(t *testing.T) {
	idx := &stubIndexer{err: errors.Join(apperrors.ErrStore, errors.New("redis down"))}
	h := HandleMessage(idx)
	err := h(context.Background(), nil, []byte(`{"book_id":7}`))
	assert.ErrorIs(t, err, apperrors.ErrStore)
}

func TestHandleMessageMarksUnknownFailuresRetryable(t *testing.T) {
	idx := &stubIndexer{err: errors.New("pq: connection refused")}
	h := HandleMessage(idx)
	err := h(context.Background(), nil, []byte(`{"book_id":7}`))
	require.Error(t, err)
	assert.True(t, apperrors.IsRetryable(err))
}
