package preceptor

import (
	"context"
	"errors"
	"log/slog"

	"github.com/aretw0/preceptor/internal/logging"
	"github.com/aretw0/preceptor/internal/runtime"
	"github.com/aretw0/preceptor/pkg/artifact"
	"github.com/aretw0/preceptor/pkg/catalog"
	"github.com/aretw0/preceptor/pkg/domain"
	"github.com/aretw0/preceptor/pkg/ports"
)

// Engine is the high-level entry point for the Preceptor library.
// It pairs the conversation engine with the artifact generator over one gateway.
type Engine struct {
	runtime   *runtime.Engine
	generator *artifact.Generator

	gateway         ports.Gateway
	artifactGateway ports.Gateway
	hooks           domain.LifecycleHooks
	logger          *slog.Logger
	systemPrompt    string
	maxTokens       int
	recover         bool
}

// Option defines a functional option for configuring the Engine.
type Option func(*Engine)

// WithLifecycleHooks registers observability hooks on both the tutor turns and
// the artifact calls.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(e *Engine) {
		e.hooks = hooks
	}
}

// WithLogger sets a custom structured logger for the engine.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithSystemPrompt sets the default tutor persona. Named prompts such as
// "tutor" are resolved from the catalog.
func WithSystemPrompt(prompt string) Option {
	return func(e *Engine) {
		e.systemPrompt = prompt
	}
}

// WithMaxTokens sets the completion budget of every call.
func WithMaxTokens(n int) Option {
	return func(e *Engine) {
		e.maxTokens = n
	}
}

// WithPhaseRecovery clamps states with an unknown phase to the output phase
// instead of rejecting them.
func WithPhaseRecovery(enabled bool) Option {
	return func(e *Engine) {
		e.recover = enabled
	}
}

// WithArtifactGateway sends report and persona generation to a different model.
func WithArtifactGateway(gw ports.Gateway) Option {
	return func(e *Engine) {
		e.artifactGateway = gw
	}
}

// New initializes a new Preceptor Engine on top of a model gateway.
func New(gateway ports.Gateway, opts ...Option) (*Engine, error) {
	if gateway == nil {
		return nil, errors.New("preceptor: a model gateway is required")
	}
	eng := &Engine{gateway: gateway}
	for _, opt := range opts {
		opt(eng)
	}
	if eng.logger == nil {
		eng.logger = logging.NewNop()
	}
	if eng.artifactGateway == nil {
		eng.artifactGateway = gateway
	}

	runtimeOpts := []runtime.EngineOption{
		runtime.WithLifecycleHooks(eng.hooks),
		runtime.WithLogger(eng.logger),
		runtime.WithMaxTokens(eng.maxTokens),
	}
	if eng.systemPrompt != "" {
		runtimeOpts = append(runtimeOpts, runtime.WithDefaultSystemPrompt(catalog.ResolveSystemPrompt(eng.systemPrompt)))
	}
	if eng.recover {
		runtimeOpts = append(runtimeOpts, runtime.WithPhaseRecovery(runtime.RecoverClampToLast))
	}
	eng.runtime = runtime.NewEngine(gateway, runtimeOpts...)

	eng.generator = artifact.NewGenerator(eng.artifactGateway,
		artifact.WithLogger(eng.logger),
		artifact.WithMaxTokens(eng.maxTokens),
		artifact.WithHooks(eng.hooks),
	)
	return eng, nil
}

// Start creates the initial state of a session.
func (e *Engine) Start(sessionID string, checklist map[string]any) *domain.State {
	return e.runtime.Start(sessionID, checklist)
}

// Advance runs one tutoring turn. The input state is never modified.
func (e *Engine) Advance(ctx context.Context, state *domain.State, userMessage, systemPrompt string) (*domain.State, string, error) {
	return e.runtime.Advance(ctx, state, userMessage, systemPrompt)
}

// Generate produces the case report and virtual patient of a finished session.
func (e *Engine) Generate(ctx context.Context, state *domain.State) (domain.Artifacts, error) {
	return e.generator.Generate(ctx, state)
}

// Generator returns the artifact generator, for callers that need BuildReport
// or BuildPersona separately.
func (e *Engine) Generator() *artifact.Generator {
	return e.generator
}
