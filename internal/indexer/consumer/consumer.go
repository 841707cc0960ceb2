// Package consumer reads book ingest events from Kafka and indexes each book
// through the indexing pipeline. Redelivered events are harmless: the ledger
// reports them as already indexed.
package consumer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Adithya-Monish-Kumar-K/bookindex/internal/document"
	"github.com/Adithya-Monish-Kumar-K/bookindex/internal/events"
	"github.com/Adithya-Monish-Kumar-K/bookindex/internal/indexer"
	apperrors "github.com/Adithya-Monish-Kumar-K/bookindex/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/bookindex/pkg/kafka"
)

// Indexer is the part of the pipeline the consumer drives.
type Indexer interface {
	IndexByID(ctx context.Context, id document.ID) (indexer.IndexResult, error)
}

// IndexConsumer wraps a Kafka consumer to drive the indexing pipeline.
type IndexConsumer struct {
	consumer *kafka.Consumer
	logger   *slog.Logger
}

func New(kafkaConsumer *kafka.Consumer) *IndexConsumer {
	return &IndexConsumer{
		consumer: kafkaConsumer,
		logger:   slog.Default().With("component", "index-consumer"),
	}
}

// Start blocks until ctx is cancelled.
func (ic *IndexConsumer) Start(ctx context.Context) error {
	ic.logger.Info("index consumer starting")
	return ic.consumer.Start(ctx)
}

// HandleMessage returns a kafka.MessageHandler that indexes the book named
// by each BookIngested event. Undecodable events and books missing from the
// document store are logged and dropped. Any other failure is reported as a
// store error so the consumer retries the message.
func HandleMessage(idx Indexer) kafka.MessageHandler {
	logger := slog.Default().With("component", "index-consumer")
	return func(ctx context.Context, key []byte, value []byte) error {
		event, err := kafka.DecodeJSON[events.BookIngested](value)
		if err != nil {
			logger.Error("failed to decode ingest event", "error", err, "key", string(key))
			return nil
		}
		res, err := idx.IndexByID(ctx, event.BookID)
		switch {
		case errors.Is(err, apperrors.ErrDocumentNotFound):
			logger.Warn("ingested book not in document store", "book_id", event.BookID)
			return nil
		case err != nil && !apperrors.IsRetryable(err):
			return fmt.Errorf("indexing book %d: %w: %w", event.BookID, apperrors.ErrStore, err)
		case err != nil:
			return fmt.Errorf("indexing book %d: %w", event.BookID, err)
		}
		logger.Debug("ingest event processed",
			"book_id", event.BookID,
			"terms", res.TermsAdded,
			"skipped", res.Skipped,
		)
		return nil
	}
}
