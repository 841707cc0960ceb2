package document

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"
)

// MemoryStore is an in-process Store used by tests and the memory backend.
type MemoryStore struct {
	mu   sync.RWMutex
	docs map[ID]Document
}

func NewMemoryStore(docs ...Document) *MemoryStore {
	s := &MemoryStore{docs: make(map[ID]Document, len(docs))}
	for _, d := range docs {
		s.docs[d.ID] = d
	}
	return s
}

// LoadFile reads a JSON array of books into a new MemoryStore.
func LoadFile(path string) (*MemoryStore, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading books file: %w", err)
	}
	var docs []Document
	if err := json.Unmarshal(data, &docs); err != nil {
		return nil, fmt.Errorf("parsing books file %s: %w", path, err)
	}
	return NewMemoryStore(docs...), nil
}

// Put inserts or replaces a document.
func (s *MemoryStore) Put(d Document) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[d.ID] = d
}

// Upsert is Put behind the Writer interface.
func (s *MemoryStore) Upsert(_ context.Context, d Document) error {
	s.Put(d)
	return nil
}

// Delete removes a document.
func (s *MemoryStore) Delete(id ID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.docs, id)
}

func (s *MemoryStore) Get(_ context.Context, id ID) (Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.docs[id]
	if !ok {
		return Document{}, notFound(id)
	}
	return d, nil
}

func (s *MemoryStore) List(_ context.Context) ([]Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Document, 0, len(s.docs))
	for _, d := range s.docs {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) Filter(_ context.Context, ids []ID, f MetadataFilter) ([]ID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ID, 0, len(ids))
	for _, id := range ids {
		d, ok := s.docs[id]
		if ok && f.Match(d) {
			out = append(out, id)
		}
	}
	return out, nil
}

func (s *MemoryStore) Summaries(_ context.Context, ids []ID) ([]Summary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Summary, 0, len(ids))
	for _, id := range ids {
		if d, ok := s.docs[id]; ok {
			out = append(out, Summarize(d))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].BookID < out[j].BookID })
	return out, nil
}
