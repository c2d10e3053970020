package openai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"

	backend "github.com/sashabaranov/go-openai"

	"github.com/aretw0/preceptor/internal/logging"
	"github.com/aretw0/preceptor/pkg/domain"
	"github.com/aretw0/preceptor/pkg/ports"
)

// DefaultModel is used when no model is configured.
const DefaultModel = "gpt-4o-mini"

// Gateway implements ports.Gateway over any OpenAI-compatible chat completion API
// (OpenAI, Gemini's compatibility endpoint, Ollama, vLLM).
type Gateway struct {
	client *backend.Client
	model  string
	logger *slog.Logger
}

// Option configures the Gateway.
type Option func(*gatewayConfig)

type gatewayConfig struct {
	baseURL string
	model   string
	logger  *slog.Logger
}

// WithBaseURL points the client at a compatible server, e.g. http://localhost:11434/v1.
func WithBaseURL(url string) Option {
	return func(c *gatewayConfig) {
		c.baseURL = url
	}
}

// WithModel sets the chat model.
func WithModel(model string) Option {
	return func(c *gatewayConfig) {
		if model != "" {
			c.model = model
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *gatewayConfig) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// New creates a Gateway. apiKey may be empty for local servers.
func New(apiKey string, opts ...Option) *Gateway {
	cfg := gatewayConfig{model: DefaultModel, logger: logging.NewNop()}
	for _, opt := range opts {
		opt(&cfg)
	}

	clientCfg := backend.DefaultConfig(apiKey)
	if cfg.baseURL != "" {
		clientCfg.BaseURL = cfg.baseURL
	}
	cfg.logger.Info("initializing openai gateway", "model", cfg.model, "base_url", clientCfg.BaseURL)

	return &Gateway{
		client: backend.NewClientWithConfig(clientCfg),
		model:  cfg.model,
		logger: cfg.logger,
	}
}

// Complete implements ports.Gateway.
func (g *Gateway) Complete(ctx context.Context, req ports.CompletionRequest) (string, error) {
	messages := make([]backend.ChatCompletionMessage, 0, len(req.History)+2)
	if req.SystemPrompt != "" {
		messages = append(messages, backend.ChatCompletionMessage{Role: backend.ChatMessageRoleSystem, Content: req.SystemPrompt})
	}
	for _, m := range req.History {
		role := backend.ChatMessageRoleUser
		if m.Role == domain.RoleAI {
			role = backend.ChatMessageRoleAssistant
		}
		messages = append(messages, backend.ChatCompletionMessage{Role: role, Content: m.Content})
	}
	messages = append(messages, backend.ChatCompletionMessage{Role: backend.ChatMessageRoleUser, Content: req.Prompt})

	chatReq := backend.ChatCompletionRequest{
		Model:       g.model,
		Messages:    messages,
		Temperature: req.Temperature,
	}
	// A zero temperature is dropped by omitempty; the smallest float keeps it deterministic.
	if chatReq.Temperature == 0 {
		chatReq.Temperature = math.SmallestNonzeroFloat32
	}
	if req.MaxTokens > 0 {
		chatReq.MaxCompletionTokens = req.MaxTokens
	}

	g.logger.DebugContext(ctx, "openai chat completion", "model", g.model, "messages", len(messages))
	resp, err := g.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		var apiErr *backend.APIError
		if errors.As(err, &apiErr) {
			return "", fmt.Errorf("openai api error (status %d): %w", apiErr.HTTPStatusCode, err)
		}
		return "", fmt.Errorf("openai api call failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai returned no choices")
	}
	g.logger.DebugContext(ctx, "openai response received", "finish_reason", resp.Choices[0].FinishReason)
	return resp.Choices[0].Message.Content, nil
}
