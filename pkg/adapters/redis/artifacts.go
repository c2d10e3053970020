package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	backend "github.com/redis/go-redis/v9"

	"github.com/aretw0/preceptor/pkg/domain"
)

const (
	fieldReport         = "report"
	fieldVirtualPatient = "virtual_patient"
)

// ArtifactStore keeps the artifacts of each session in a hash.
type ArtifactStore struct {
	client backend.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewArtifactStore creates an ArtifactStore. A zero ttl keeps artifacts forever.
func NewArtifactStore(client backend.UniversalClient, prefix string, ttl time.Duration) *ArtifactStore {
	return &ArtifactStore{client: client, prefix: prefix, ttl: ttl}
}

func (a *ArtifactStore) key(sessionID string) string {
	return a.prefix + "artifacts:" + sessionID
}

// Save implements ports.ArtifactStore.
func (a *ArtifactStore) Save(ctx context.Context, sessionID string, artifacts domain.Artifacts) error {
	key := a.key(sessionID)
	pipe := a.client.TxPipeline()
	pipe.HSet(ctx, key, fieldReport, artifacts.Report, fieldVirtualPatient, artifacts.VirtualPatient)
	if a.ttl > 0 {
		pipe.Expire(ctx, key, a.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save artifacts: %w", err)
	}
	return nil
}

// Load implements ports.ArtifactStore.
func (a *ArtifactStore) Load(ctx context.Context, sessionID string) (domain.Artifacts, error) {
	vals, err := a.client.HGetAll(ctx, a.key(sessionID)).Result()
	if err != nil && !errors.Is(err, backend.Nil) {
		return domain.Artifacts{}, fmt.Errorf("failed to load artifacts: %w", err)
	}
	if len(vals) == 0 {
		return domain.Artifacts{}, domain.ErrArtifactsNotFound
	}
	return domain.Artifacts{Report: vals[fieldReport], VirtualPatient: vals[fieldVirtualPatient]}, nil
}
