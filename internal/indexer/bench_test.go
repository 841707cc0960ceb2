package indexer

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/bookindex/internal/document"
	"github.com/Adithya-Monish-Kumar-K/bookindex/internal/indexer/ledger"
	"github.com/Adithya-Monish-Kumar-K/bookindex/internal/indexer/postings"
	"github.com/Adithya-Monish-Kumar-K/bookindex/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/bookindex/pkg/metrics"
)

func syntheticCorpus(n int) []document.Document {
	words := strings.Fields(`alice was beginning to get very tired of sitting by her sister on the
		bank and of having nothing to do once or twice she had peeped into the book her sister was
		reading but it had no pictures or conversations in it and what is the use of a book`)
	docs := make([]document.Document, n)
	for i := range docs {
		var sb strings.Builder
		for j := 0; j < 400; j++ {
			sb.WriteString(words[(i*7+j*13)%len(words)])
			sb.WriteByte(' ')
		}
		fmt.Fprintf(&sb, "book%d", i)
		docs[i] = document.Document{ID: document.ID(i + 1), Content: sb.String()}
	}
	return docs
}

func BenchmarkIndexDocument(b *testing.B) {
	ctx := context.Background()
	docs := syntheticCorpus(b.N)
	p := NewPipeline(postings.NewMemoryStore(), ledger.NewMemoryLedger(), document.NewMemoryStore(),
		config.IndexConfig{WriteAttempts: 1}, metrics.NewIsolated())
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := p.IndexDocument(ctx, docs[i]); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkRebuild(b *testing.B) {
	ctx := context.Background()
	docs := syntheticCorpus(500)
	for _, workers := range []int{1, 4, 8} {
		b.Run(fmt.Sprintf("workers_%d", workers), func(b *testing.B) {
			p := NewPipeline(postings.NewMemoryStore(), ledger.NewMemoryLedger(), document.NewMemoryStore(),
				config.IndexConfig{WriteAttempts: 1}, metrics.NewIsolated())
			c := NewCoordinator(p, config.RebuildConfig{Workers: workers})
			b.ReportAllocs()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				if _, err := c.RebuildAll(ctx, docs); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}
