package file

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/aretw0/preceptor/pkg/domain"
)

// Fixed artifact file names.
const (
	ReportFile         = "report.txt"
	VirtualPatientFile = "virtual_patient.txt"
)

// DefaultArtifactDir is where artifacts are written when no path is configured.
var DefaultArtifactDir = filepath.Join(".preceptor", "artifacts")

// ArtifactStore writes the report and persona of each session to
// <dir>/<session>/report.txt and <dir>/<session>/virtual_patient.txt, and mirrors
// the latest run to <dir>/report.txt and <dir>/virtual_patient.txt.
// Every write overwrites the previous output.
type ArtifactStore struct {
	BasePath string
}

// NewArtifactStore creates an ArtifactStore rooted at basePath.
func NewArtifactStore(basePath string) *ArtifactStore {
	if basePath == "" {
		basePath = DefaultArtifactDir
	}
	return &ArtifactStore{BasePath: basePath}
}

// Save implements ports.ArtifactStore.
func (a *ArtifactStore) Save(ctx context.Context, sessionID string, artifacts domain.Artifacts) error {
	if err := validID(sessionID); err != nil {
		return err
	}
	for _, dir := range []string{filepath.Join(a.BasePath, sessionID), a.BasePath} {
		if err := writeFileAtomic(dir, ReportFile, []byte(artifacts.Report)); err != nil {
			return fmt.Errorf("failed to write report: %w", err)
		}
		if err := writeFileAtomic(dir, VirtualPatientFile, []byte(artifacts.VirtualPatient)); err != nil {
			return fmt.Errorf("failed to write virtual patient: %w", err)
		}
	}
	return nil
}

// Load implements ports.ArtifactStore.
func (a *ArtifactStore) Load(ctx context.Context, sessionID string) (domain.Artifacts, error) {
	if err := validID(sessionID); err != nil {
		return domain.Artifacts{}, err
	}
	dir := filepath.Join(a.BasePath, sessionID)

	report, err := os.ReadFile(filepath.Join(dir, ReportFile))
	if err != nil {
		return domain.Artifacts{}, notFound(err)
	}
	persona, err := os.ReadFile(filepath.Join(dir, VirtualPatientFile))
	if err != nil {
		return domain.Artifacts{}, notFound(err)
	}
	return domain.Artifacts{Report: string(report), VirtualPatient: string(persona)}, nil
}

func notFound(err error) error {
	if errors.Is(err, os.ErrNotExist) {
		return domain.ErrArtifactsNotFound
	}
	return fmt.Errorf("failed to read artifact: %w", err)
}
