package memory

import (
	"context"
	"sync"

	"github.com/aretw0/preceptor/pkg/domain"
)

// ArtifactStore keeps artifacts per session in memory.
type ArtifactStore struct {
	mu   sync.RWMutex
	data map[string]domain.Artifacts
}

// NewArtifactStore creates an empty store.
func NewArtifactStore() *ArtifactStore {
	return &ArtifactStore{data: make(map[string]domain.Artifacts)}
}

// Save overwrites the artifacts of a session.
func (s *ArtifactStore) Save(ctx context.Context, sessionID string, artifacts domain.Artifacts) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[sessionID] = artifacts
	return nil
}

// Load returns the artifacts of a session.
func (s *ArtifactStore) Load(ctx context.Context, sessionID string) (domain.Artifacts, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.data[sessionID]
	if !ok {
		return domain.Artifacts{}, domain.ErrArtifactsNotFound
	}
	return a, nil
}
