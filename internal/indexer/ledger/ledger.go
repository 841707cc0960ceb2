// Package ledger records which documents have been fully indexed. A document
// is marked only after its postings writes succeeded, so the ledger never
// claims more than the index holds.
package ledger

import (
	"context"
	"sort"
	"sync"

	"github.com/Adithya-Monish-Kumar-K/bookindex/internal/document"
)

// Ledger is the indexed-set record consulted before indexing a document.
type Ledger interface {
	Contains(ctx context.Context, id document.ID) (bool, error)
	// Mark records id as indexed. Marking twice is a no-op.
	Mark(ctx context.Context, id document.ID) error
	// Reset forgets every id.
	Reset(ctx context.Context) error
	Count(ctx context.Context) (int64, error)
	// List returns the indexed ids in ascending order.
	List(ctx context.Context) ([]document.ID, error)
	Name() string
}

// MemoryLedger keeps the indexed set in process.
type MemoryLedger struct {
	mu  sync.RWMutex
	ids map[document.ID]struct{}
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{ids: make(map[document.ID]struct{})}
}

func (l *MemoryLedger) Contains(_ context.Context, id document.ID) (bool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.ids[id]
	return ok, nil
}

func (l *MemoryLedger) Mark(_ context.Context, id document.ID) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.ids[id] = struct{}{}
	return nil
}

func (l *MemoryLedger) Reset(_ context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.ids = make(map[document.ID]struct{})
	return nil
}

func (l *MemoryLedger) Count(_ context.Context) (int64, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return int64(len(l.ids)), nil
}

func (l *MemoryLedger) List(_ context.Context) ([]document.ID, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return sortedIDs(l.ids), nil
}

func (l *MemoryLedger) Name() string { return "memory" }

func sortedIDs(set map[document.ID]struct{}) []document.ID {
	out := make([]document.ID, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
