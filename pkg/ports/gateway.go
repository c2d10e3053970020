package ports

import (
	"context"

	"github.com/aretw0/preceptor/pkg/domain"
)

// CompletionRequest is one synchronous text-completion call.
type CompletionRequest struct {
	Prompt string

	// SystemPrompt is already resolved by the caller; gateways send it as is.
	SystemPrompt string

	MaxTokens   int
	Temperature float32

	// History is optional prior conversation, oldest first. The phase engine never sets it.
	History []domain.Message
}

// Gateway abstracts the external text-completion service.
// Implementations may stream internally but must return the fully concatenated text.
// The core does not retry: any error is terminal for that call.
type Gateway interface {
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}

// GatewayFunc adapts a function to the Gateway interface.
type GatewayFunc func(ctx context.Context, req CompletionRequest) (string, error)

// Complete calls f.
func (f GatewayFunc) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	return f(ctx, req)
}
