package runner

import (
	"context"

	"github.com/aretw0/preceptor/pkg/domain"
)

// Turn is one tutor reply as presented to the student.
type Turn struct {
	SessionID string       `json:"session_id"`
	Phase     domain.Phase `json:"phase"`
	Next      domain.Phase `json:"next"`
	Message   string       `json:"message"`
	Terminal  bool         `json:"terminal"`
	// NeedsInput is false when the next turn ignores the student's message.
	NeedsInput bool `json:"needs_input"`
}

// IOHandler defines the strategy for interacting with the student.
// This allows switching between Text (CLI/TUI) and JSON (Structured) modes.
type IOHandler interface {
	// Output presents a tutor reply.
	Output(ctx context.Context, turn Turn) error

	// Input reads the student's answer.
	Input(ctx context.Context) (string, error)

	// Artifacts presents the case report and the virtual patient persona.
	Artifacts(ctx context.Context, arts domain.Artifacts) error

	// SystemOutput presents a meta-message (status updates, recoverable errors).
	SystemOutput(ctx context.Context, msg string) error
}

// ContentRenderer is a function that transforms the content before outputting it.
// This allows for TUI rendering (markdown to ANSI) without coupling the core package.
type ContentRenderer func(string) (string, error)

// ArtifactGenerator produces the terminal artifacts of a finished session.
type ArtifactGenerator interface {
	Generate(ctx context.Context, state *domain.State) (domain.Artifacts, error)
}
