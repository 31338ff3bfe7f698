package memory

import (
	"context"
	"strings"
	"sync"
)

// InMemoryStore is a simple in-process knowledge store for local/dev use.
type InMemoryStore struct {
	mu      sync.RWMutex
	entries map[string][]Entry
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{entries: make(map[string][]Entry)}
}

func (s *InMemoryStore) Save(_ context.Context, entry Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[entry.UserID] = append(s.entries[entry.UserID], cloneEntry(entry))
	return nil
}

func (s *InMemoryStore) Candidates(_ context.Context, userID string, terms []string) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Entry, 0)
	for _, e := range s.entries[userID] {
		if matchesAny(e, terms) {
			out = append(out, cloneEntry(e))
		}
	}
	return out, nil
}

func (s *InMemoryStore) List(_ context.Context, userID string) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	arr := s.entries[userID]
	out := make([]Entry, 0, len(arr))
	for _, e := range arr {
		out = append(out, cloneEntry(e))
	}
	return out, nil
}

func (s *InMemoryStore) Delete(_ context.Context, userID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	arr := s.entries[userID]
	for i, e := range arr {
		if e.ID == id {
			s.entries[userID] = append(arr[:i:i], arr[i+1:]...)
			return nil
		}
	}
	return ErrNotFound
}

func (s *InMemoryStore) Close() error { return nil }

func matchesAny(e Entry, terms []string) bool {
	content := strings.ToLower(e.Content)
	for _, term := range terms {
		for _, k := range e.Keywords {
			if k == term {
				return true
			}
		}
		if strings.Contains(content, term) {
			return true
		}
	}
	return false
}

func cloneEntry(e Entry) Entry {
	e.Tags = append([]string{}, e.Tags...)
	e.Keywords = append([]string{}, e.Keywords...)
	return e
}
