package store

import (
	"context"
	"sync"

	"matrixhub/internal/models"
)

// MemoryStore keeps everything in process memory. It is the fallback
// when neither Redis nor a state directory is configured, and the
// backing store for tests.
type MemoryStore struct {
	mu       sync.Mutex
	doc      models.StateDocument
	img      []byte
	imgRev   int64
	hasState bool
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) LoadState(ctx context.Context) models.StateDocument {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.hasState {
		return models.DefaultState()
	}
	return s.doc
}

func (s *MemoryStore) SaveState(ctx context.Context, doc models.StateDocument) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.doc = Normalize(doc)
	s.hasState = true
	return nil
}

func (s *MemoryStore) SaveImage(ctx context.Context, png []byte) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.img = append([]byte(nil), png...)
	s.imgRev++
	return s.imgRev, nil
}

func (s *MemoryStore) LoadImage(ctx context.Context) ([]byte, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.img == nil {
		return nil, 0, ErrNoImage
	}
	return append([]byte(nil), s.img...), s.imgRev, nil
}
