package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"academy-of-heroes/internal/docstore"
)

// DocumentStore is an in-memory docstore.Backend. Commit holds one lock, which
// makes its compare-and-swap trivially atomic. Versions come from a store-wide
// counter so a deleted and recreated document never repeats a version.
type DocumentStore struct {
	mu    sync.RWMutex
	docs  map[string]docstore.Document
	clock int64
}

func NewDocumentStore() *DocumentStore {
	return &DocumentStore{docs: make(map[string]docstore.Document)}
}

func (s *DocumentStore) Load(_ context.Context, path string) (docstore.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.docs[path]
	if !ok {
		return docstore.Document{}, docstore.ErrNotFound
	}
	return cloneDoc(doc), nil
}

func (s *DocumentStore) List(_ context.Context, collection string) ([]docstore.Document, error) {
	prefix := collection + "/"
	s.mu.RLock()
	out := make([]docstore.Document, 0)
	for p, doc := range s.docs {
		rest, ok := strings.CutPrefix(p, prefix)
		if !ok || strings.Contains(rest, "/") {
			continue
		}
		out = append(out, cloneDoc(doc))
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

func (s *DocumentStore) Commit(_ context.Context, reads map[string]int64, writes []docstore.Write) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for p, version := range reads {
		if s.docs[p].Version != version {
			return docstore.ErrConflict
		}
	}
	for _, w := range docstore.Compact(writes) {
		if w.Delete {
			delete(s.docs, w.Path)
			continue
		}
		data := make([]byte, len(w.Data))
		copy(data, w.Data)
		s.clock++
		s.docs[w.Path] = docstore.Document{
			Path:    w.Path,
			Data:    data,
			Version: s.clock,
		}
	}
	return nil
}

func cloneDoc(doc docstore.Document) docstore.Document {
	data := make([]byte, len(doc.Data))
	copy(data, doc.Data)
	doc.Data = data
	return doc
}
