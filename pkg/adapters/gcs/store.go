package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"github.com/aretw0/preceptor/pkg/domain"
)

// Object names under each session prefix.
const (
	ReportObject         = "report.txt"
	VirtualPatientObject = "virtual_patient.txt"
)

// objects is the subset of a bucket the store needs.
type objects interface {
	write(ctx context.Context, name string, data []byte) error
	read(ctx context.Context, name string) ([]byte, error)
}

// errNotExist is what objects.read returns for a missing object.
var errNotExist = storage.ErrObjectNotExist

// ArtifactStore implements ports.ArtifactStore on a Google Cloud Storage bucket,
// writing gs://<bucket>/<prefix>/<session>/report.txt and virtual_patient.txt.
type ArtifactStore struct {
	client *storage.Client
	bucket objects
	name   string
	prefix string
}

// NewArtifactStore connects to GCS. opts are passed to the client, for example
// option.WithCredentialsFile.
func NewArtifactStore(ctx context.Context, bucket, prefix string, opts ...option.ClientOption) (*ArtifactStore, error) {
	if bucket == "" {
		return nil, fmt.Errorf("gcs: bucket name is required")
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS storage client: %w", err)
	}
	return &ArtifactStore{
		client: client,
		bucket: &bucketObjects{handle: client.Bucket(bucket)},
		name:   bucket,
		prefix: prefix,
	}, nil
}

func (a *ArtifactStore) object(sessionID, name string) string {
	return path.Join(a.prefix, sessionID, name)
}

// Save implements ports.ArtifactStore.
func (a *ArtifactStore) Save(ctx context.Context, sessionID string, artifacts domain.Artifacts) error {
	if sessionID == "" {
		return fmt.Errorf("sessionID cannot be empty")
	}
	if err := a.bucket.write(ctx, a.object(sessionID, ReportObject), []byte(artifacts.Report)); err != nil {
		return fmt.Errorf("failed to upload report to gs://%s: %w", a.name, err)
	}
	if err := a.bucket.write(ctx, a.object(sessionID, VirtualPatientObject), []byte(artifacts.VirtualPatient)); err != nil {
		return fmt.Errorf("failed to upload virtual patient to gs://%s: %w", a.name, err)
	}
	return nil
}

// Load implements ports.ArtifactStore.
func (a *ArtifactStore) Load(ctx context.Context, sessionID string) (domain.Artifacts, error) {
	report, err := a.bucket.read(ctx, a.object(sessionID, ReportObject))
	if err != nil {
		return domain.Artifacts{}, mapReadErr(err)
	}
	persona, err := a.bucket.read(ctx, a.object(sessionID, VirtualPatientObject))
	if err != nil {
		return domain.Artifacts{}, mapReadErr(err)
	}
	return domain.Artifacts{Report: string(report), VirtualPatient: string(persona)}, nil
}

// Close releases the client.
func (a *ArtifactStore) Close() error {
	if a.client == nil {
		return nil
	}
	return a.client.Close()
}

func mapReadErr(err error) error {
	if errors.Is(err, errNotExist) {
		return domain.ErrArtifactsNotFound
	}
	return fmt.Errorf("failed to download artifact: %w", err)
}

type bucketObjects struct {
	handle *storage.BucketHandle
}

func (b *bucketObjects) write(ctx context.Context, name string, data []byte) error {
	w := b.handle.Object(name).NewWriter(ctx)
	w.ContentType = "text/plain; charset=utf-8"
	w.CacheControl = "no-cache, no-store, must-revalidate"
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return err
	}
	return w.Close()
}

func (b *bucketObjects) read(ctx context.Context, name string) ([]byte, error) {
	r, err := b.handle.Object(name).NewReader(ctx)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}
