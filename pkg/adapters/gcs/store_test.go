package gcs

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/preceptor/pkg/domain"
	"github.com/aretw0/preceptor/pkg/ports"
)

type fakeBucket struct {
	mu      sync.Mutex
	objects map[string][]byte
	failErr error
}

func (f *fakeBucket) write(_ context.Context, name string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failErr != nil {
		return f.failErr
	}
	if f.objects == nil {
		f.objects = make(map[string][]byte)
	}
	f.objects[name] = append([]byte(nil), data...)
	return nil
}

func (f *fakeBucket) read(_ context.Context, name string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[name]
	if !ok {
		return nil, errNotExist
	}
	return data, nil
}

func TestArtifactStore_Contract(t *testing.T) {
	store := &ArtifactStore{bucket: &fakeBucket{}, name: "test", prefix: "runs"}
	ports.RunArtifactStoreContract(t, store)
}

func TestArtifactStore_ObjectLayout(t *testing.T) {
	fb := &fakeBucket{}
	store := &ArtifactStore{bucket: fb, name: "test", prefix: "runs"}

	require.NoError(t, store.Save(context.Background(), "s1", domain.Artifacts{Report: "r", VirtualPatient: "p"}))
	assert.Equal(t, []byte("r"), fb.objects["runs/s1/report.txt"])
	assert.Equal(t, []byte("p"), fb.objects["runs/s1/virtual_patient.txt"])

	_, err := store.Load(context.Background(), "s2")
	assert.ErrorIs(t, err, domain.ErrArtifactsNotFound)
}

func TestArtifactStore_WriteFailure(t *testing.T) {
	store := &ArtifactStore{bucket: &fakeBucket{failErr: errors.New("403")}, name: "test"}
	err := store.Save(context.Background(), "s1", domain.Artifacts{Report: "r"})
	assert.ErrorContains(t, err, "gs://test")
	assert.NoError(t, store.Close())
}

func TestNewArtifactStore_RequiresBucket(t *testing.T) {
	_, err := NewArtifactStore(context.Background(), "", "")
	assert.Error(t, err)
}
