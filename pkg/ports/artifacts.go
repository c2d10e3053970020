package ports

import (
	"context"
	"time"

	"github.com/aretw0/preceptor/pkg/domain"
)

// ArtifactStore persists the report and virtual patient of a finished session.
// Writes overwrite any previous output; there is no versioning.
type ArtifactStore interface {
	Save(ctx context.Context, sessionID string, artifacts domain.Artifacts) error

	// Load returns domain.ErrArtifactsNotFound when nothing was written yet.
	Load(ctx context.Context, sessionID string) (domain.Artifacts, error)
}

// Claimer grants a key to exactly one caller until it is released or expires.
// It backs the exactly-once guarantee of artifact generation.
type Claimer interface {
	// Claim returns true if the caller obtained the key.
	Claim(ctx context.Context, key string, ttl time.Duration) (bool, error)

	// Release gives the key back, allowing a later Claim to succeed.
	Release(ctx context.Context, key string) error
}
