package ports

import (
	"context"

	"github.com/aretw0/preceptor/pkg/domain"
)

// StatelessEngine defines the conversation engine as seen by adapters (HTTP, MCP, CLI).
// It holds no session state: every call is (state, input) -> (state', output).
type StatelessEngine interface {
	// Start creates a fresh session state at the first phase.
	Start(sessionID string, checklist map[string]any) *domain.State

	// Advance runs one phase turn and returns the new state and the tutor message.
	// The input state is never modified.
	Advance(ctx context.Context, state *domain.State, userMessage, systemPrompt string) (*domain.State, string, error)
}
