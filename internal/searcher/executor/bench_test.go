package executor

import (
	"context"
	"fmt"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/bookindex/internal/document"
	"github.com/Adithya-Monish-Kumar-K/bookindex/internal/indexer/postings"
	"github.com/Adithya-Monish-Kumar-K/bookindex/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/bookindex/pkg/resilience"
)

// benchEngine indexes numDocs books where "common" appears in every book,
// "half" in every second and "rare" in every hundredth.
func benchEngine(b *testing.B, numDocs int) *Engine {
	b.Helper()
	ctx := context.Background()
	store := postings.NewMemoryStore()
	docs := make([]document.Document, 0, numDocs)
	var writes []postings.Write
	for i := 1; i <= numDocs; i++ {
		id := document.ID(i)
		docs = append(docs, document.Document{ID: id, Title: fmt.Sprintf("Book %d", i), Language: "English"})
		writes = append(writes, postings.Write{Term: "common", DocID: id})
		if i%2 == 0 {
			writes = append(writes, postings.Write{Term: "half", DocID: id})
		}
		if i%100 == 0 {
			writes = append(writes, postings.Write{Term: "rare", DocID: id})
		}
	}
	if err := store.BulkUnion(ctx, writes); err != nil {
		b.Fatal(err)
	}
	return New(store, document.NewMemoryStore(docs...), metrics.NewIsolated(), resilience.CircuitBreakerConfig{})
}

func BenchmarkSearch(b *testing.B) {
	queries := []struct {
		name  string
		query string
	}{
		{"single_term", "rare"},
		{"two_terms", "half rare"},
		{"three_terms", "common half rare"},
		{"empty_short_circuit", "missing common half"},
	}
	for _, numDocs := range []int{1000, 10000} {
		e := benchEngine(b, numDocs)
		for _, q := range queries {
			b.Run(fmt.Sprintf("docs_%d/%s", numDocs, q.name), func(b *testing.B) {
				ctx := context.Background()
				b.ReportAllocs()
				for i := 0; i < b.N; i++ {
					if _, err := e.Search(ctx, q.query, Filters{}); err != nil {
						b.Fatal(err)
					}
				}
			})
		}
	}
}
