package postings

import (
	"context"
	"sync"

	"github.com/Adithya-Monish-Kumar-K/bookindex/internal/document"
	"github.com/RoaringBitmap/roaring/v2"
)

// memBucket holds the postings of every term sharing a first byte.
type memBucket struct {
	mu    sync.RWMutex
	terms map[string]*roaring.Bitmap
}

// MemoryStore keeps postings in process as roaring bitmaps, one lock per
// bucket.
type MemoryStore struct {
	buckets [256]memBucket
}

func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{}
	for i := range s.buckets {
		s.buckets[i].terms = make(map[string]*roaring.Bitmap)
	}
	return s
}

func (s *MemoryStore) bucketFor(term string) *memBucket {
	if term == "" {
		return &s.buckets['_']
	}
	return &s.buckets[term[0]]
}

func (s *MemoryStore) Union(ctx context.Context, term string, id document.ID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b := s.bucketFor(term)
	b.mu.Lock()
	defer b.mu.Unlock()
	b.add(term, id)
	return nil
}

func (b *memBucket) add(term string, id document.ID) {
	bm, ok := b.terms[term]
	if !ok {
		bm = roaring.New()
		b.terms[term] = bm
	}
	bm.Add(uint32(id))
}

func (s *MemoryStore) BulkUnion(ctx context.Context, writes []Write) error {
	return writeBuckets(ctx, writes, 0, func(ctx context.Context, _ string, ws []Write) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		b := s.bucketFor(ws[0].Term)
		b.mu.Lock()
		defer b.mu.Unlock()
		for _, w := range ws {
			b.add(w.Term, w.DocID)
		}
		return nil
	})
}

func (s *MemoryStore) Get(ctx context.Context, term string) (*roaring.Bitmap, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b := s.bucketFor(term)
	b.mu.RLock()
	defer b.mu.RUnlock()
	if bm, ok := b.terms[term]; ok {
		return bm.Clone(), nil
	}
	return roaring.New(), nil
}

func (s *MemoryStore) Clear(ctx context.Context) error {
	for i := range s.buckets {
		b := &s.buckets[i]
		b.mu.Lock()
		b.terms = make(map[string]*roaring.Bitmap)
		b.mu.Unlock()
	}
	return nil
}

func (s *MemoryStore) Stats(_ context.Context) (Stats, error) {
	var st Stats
	for i := range s.buckets {
		b := &s.buckets[i]
		b.mu.RLock()
		for term, bm := range b.terms {
			st.Terms++
			st.Bytes += int64(len(term)) + int64(bm.GetSizeInBytes())
		}
		b.mu.RUnlock()
	}
	return st, nil
}

func (s *MemoryStore) Name() string { return "memory" }
