// Package events defines the Kafka payloads exchanged by the ingestion,
// index and search services and a batching notifier that publishes them.
package events

import (
	"time"

	"github.com/Adithya-Monish-Kumar-K/bookindex/internal/document"
)

// Kind distinguishes single-document updates from full rebuilds.
type Kind string

const (
	KindUpdate  Kind = "update"
	KindRebuild Kind = "rebuild"
)

// BookIngested is produced by ingestion once a book is persisted in the
// document store and ready for indexing.
type BookIngested struct {
	BookID     document.ID `json:"book_id"`
	IngestedAt time.Time   `json:"ingested_at"`
}

// IndexCompleted is published after the index changed. For a rebuild,
// BookID is zero and Books counts the documents processed.
type IndexCompleted struct {
	Kind         Kind        `json:"kind"`
	BookID       document.ID `json:"book_id,omitempty"`
	Terms        int         `json:"terms"`
	Books        int         `json:"books,omitempty"`
	GenerationID string      `json:"generation_id,omitempty"`
	Timestamp    time.Time   `json:"timestamp"`
}

// Key is the partition key used when publishing.
func (e IndexCompleted) Key() string {
	if e.Kind == KindRebuild {
		return "rebuild:" + e.GenerationID
	}
	return e.BookID.String()
}
