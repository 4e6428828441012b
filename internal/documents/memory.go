package documents

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/antoniostano/brandstudio/internal/assets"
)

// MemoryStore keeps encoded documents in process memory.
type MemoryStore struct {
	mu     sync.RWMutex
	bodies map[string][]byte
	saves  int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{bodies: make(map[string][]byte)}
}

func (s *MemoryStore) CreateOrUpdate(ctx context.Context, doc *assets.Document, id string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	id = strings.TrimSpace(id)
	if id == "" {
		id = uuid.NewString()
	}
	body, err := encodeDocument(doc, id)
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bodies[id] = body
	s.saves++
	return id, nil
}

func (s *MemoryStore) Load(ctx context.Context, id string) (*assets.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	body, ok := s.bodies[id]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return decodeDocument(body, id)
}

// Saves reports how many writes the store has accepted.
func (s *MemoryStore) Saves() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.saves
}

func (s *MemoryStore) Close() error { return nil }
