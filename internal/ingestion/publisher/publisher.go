// Package publisher persists books to the document store and announces
// them on Kafka so the index service picks them up.
package publisher

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/bookindex/internal/document"
	"github.com/Adithya-Monish-Kumar-K/bookindex/internal/events"
	"github.com/Adithya-Monish-Kumar-K/bookindex/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/bookindex/pkg/kafka"
)

type Publisher struct {
	store    document.Writer
	producer kafka.Publisher
	now      func() time.Time
	logger   *slog.Logger
}

// New returns a Publisher. A nil producer stores books without announcing
// them; they are indexed by the next rebuild or /index/update call.
func New(store document.Writer, producer kafka.Publisher) *Publisher {
	return &Publisher{
		store:    store,
		producer: producer,
		now:      time.Now,
		logger:   slog.Default().With("component", "publisher"),
	}
}

// Ingest stores one book and publishes its BookIngested event. Re-ingesting
// an id replaces the stored book. A failed publish is logged and reported
// as StatusStored rather than failing the request, since the book is safe.
func (p *Publisher) Ingest(ctx context.Context, d document.Document) (*ingestion.IngestResponse, error) {
	out, err := p.IngestBatch(ctx, []document.Document{d})
	if err != nil {
		return nil, err
	}
	return &out[0], nil
}

// IngestBatch stores books in order and announces them with one Kafka
// write. It stops at the first store failure; books before it stay stored
// but are not announced.
func (p *Publisher) IngestBatch(ctx context.Context, books []document.Document) ([]ingestion.IngestResponse, error) {
	for i, d := range books {
		if err := p.store.Upsert(ctx, d); err != nil {
			return nil, fmt.Errorf("storing book %d (%d of %d): %w", d.ID, i+1, len(books), err)
		}
	}

	status := ingestion.StatusStored
	if p.producer != nil {
		if err := p.producer.PublishBatch(ctx, p.events(books)); err != nil {
			p.logger.Error("books stored but not queued for indexing", "books", len(books), "error", err)
		} else {
			status = ingestion.StatusQueued
		}
	}

	out := make([]ingestion.IngestResponse, len(books))
	for i, d := range books {
		out[i] = ingestion.IngestResponse{BookID: d.ID, Status: status}
	}
	return out, nil
}

func (p *Publisher) events(books []document.Document) []kafka.Event {
	at := p.now().UTC()
	out := make([]kafka.Event, len(books))
	for i, d := range books {
		out[i] = kafka.Event{
			Key:   d.ID.String(),
			Value: events.BookIngested{BookID: d.ID, IngestedAt: at},
		}
	}
	return out
}
