package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/hirokts/enikki/pkg/domain"
)

// Store implements ports.DiaryStore in memory.
// Safe for concurrent use.
type Store struct {
	data map[string]domain.Document
	mu   sync.RWMutex
}

// NewStore creates a new in-memory store.
func NewStore() *Store {
	return &Store{
		data: make(map[string]domain.Document),
	}
}

// Save persists the document in memory.
func (s *Store) Save(ctx context.Context, runID string, doc domain.Document) error {
	// Deep copy to ensure isolation, similar to serialization
	copied := copyDocument(doc)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[runID] = copied
	return nil
}

// Load retrieves the document from memory.
func (s *Store) Load(ctx context.Context, runID string) (domain.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.data[runID]
	if !ok {
		return domain.Document{}, domain.ErrRunNotFound
	}

	// Copy on read so callers can't mutate stored slices or pointers
	return copyDocument(doc), nil
}

// Delete removes the document.
func (s *Store) Delete(ctx context.Context, runID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, runID)
	return nil
}

// List returns stored run ids, newest first.
func (s *Store) List(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	docs := make([]domain.Document, 0, len(s.data))
	for _, d := range s.data {
		docs = append(docs, d)
	}
	sort.Slice(docs, func(i, j int) bool {
		if docs[i].CreatedAt.Equal(docs[j].CreatedAt) {
			return docs[i].ID > docs[j].ID
		}
		return docs[i].CreatedAt.After(docs[j].CreatedAt)
	})

	ids := make([]string, len(docs))
	for i, d := range docs {
		ids[i] = d.ID
	}
	return ids, nil
}

func copyDocument(doc domain.Document) domain.Document {
	out := doc
	out.Keywords = append([]string{}, doc.Keywords...)
	if doc.ImageURL != nil {
		v := *doc.ImageURL
		out.ImageURL = &v
	}
	if doc.Error != nil {
		v := *doc.Error
		out.Error = &v
	}
	if doc.QualityScore != nil {
		v := *doc.QualityScore
		out.QualityScore = &v
	}
	return out
}
