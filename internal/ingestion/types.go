// Package ingestion accepts books from producers, stores them in the
// document store and announces them on Kafka for indexing.
package ingestion

import "github.com/Adithya-Monish-Kumar-K/bookindex/internal/document"

// Ingest statuses.
const (
	// StatusQueued means the book is stored and its ingest event published.
	StatusQueued = "queued"
	// StatusStored means the book is stored but the event could not be
	// published; a rebuild or a manual /index/update picks it up.
	StatusStored = "stored"
)

// IngestResponse is returned to the caller after a book is accepted.
type IngestResponse struct {
	BookID document.ID `json:"book_id"`
	Status string      `json:"status"`
}

// BatchResponse lists the outcome for each book of a batch, in request
// order.
type BatchResponse struct {
	Books []IngestResponse `json:"books"`
}
