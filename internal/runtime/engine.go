package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aretw0/preceptor/internal/logging"
	"github.com/aretw0/preceptor/pkg/catalog"
	"github.com/aretw0/preceptor/pkg/domain"
	"github.com/aretw0/preceptor/pkg/ports"
)

// Fixed generation parameters. Temperature 0 keeps tutor turns reproducible.
const (
	DefaultMaxTokens   = 4096
	DefaultTemperature = float32(0)
)

// errEmptyResponse is the cause recorded when the gateway answers with nothing.
var errEmptyResponse = errors.New("empty response")

// RecoveryPolicy decides what Advance does with a state whose phase is not in the sequence.
type RecoveryPolicy int

const (
	// RecoverStrict rejects the state with an UnknownPhaseError.
	RecoverStrict RecoveryPolicy = iota
	// RecoverClampToLast moves the state to the output phase and flags it as recovered.
	RecoverClampToLast
)

// Engine is the conversation engine: a pure function of (state, input) plus one gateway call.
type Engine struct {
	gateway      ports.Gateway
	logger       *slog.Logger
	hooks        domain.LifecycleHooks
	recovery     RecoveryPolicy
	systemPrompt string
	maxTokens    int
	temperature  float32
	now          func() time.Time
}

// EngineOption configures the Engine.
type EngineOption func(*Engine)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) EngineOption {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithLifecycleHooks registers observability hooks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) EngineOption {
	return func(e *Engine) {
		e.hooks = hooks
	}
}

// WithPhaseRecovery selects the unknown-phase policy.
func WithPhaseRecovery(policy RecoveryPolicy) EngineOption {
	return func(e *Engine) {
		e.recovery = policy
	}
}

// WithDefaultSystemPrompt replaces the persona used when callers pass no override.
func WithDefaultSystemPrompt(prompt string) EngineOption {
	return func(e *Engine) {
		if prompt != "" {
			e.systemPrompt = prompt
		}
	}
}

// WithMaxTokens sets the completion budget per tutor turn.
func WithMaxTokens(n int) EngineOption {
	return func(e *Engine) {
		if n > 0 {
			e.maxTokens = n
		}
	}
}

// WithClock overrides the event timestamp source.
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) {
		e.now = now
	}
}

// NewEngine creates a new engine bound to a model gateway.
func NewEngine(gateway ports.Gateway, opts ...EngineOption) *Engine {
	e := &Engine{
		gateway:      gateway,
		logger:       logging.NewNop(),
		recovery:     RecoverStrict,
		systemPrompt: catalog.DefaultSystemPrompt,
		maxTokens:    DefaultMaxTokens,
		temperature:  DefaultTemperature,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Start creates the initial state of a session.
func (e *Engine) Start(sessionID string, checklist map[string]any) *domain.State {
	state := domain.NewState(sessionID, checklist)
	e.emitPhaseEnter(context.Background(), state.SessionID, state.Phase)
	return state
}

// Advance runs one turn: render the current phase prompt, ask the gateway, append
// prompt, response and (outside the final feedback phase) the student's message,
// then step to the next phase.
//
// The input state is never modified. On error the returned state is nil and the
// caller keeps its original state.
func (e *Engine) Advance(ctx context.Context, state *domain.State, userMessage, systemPrompt string) (*domain.State, string, error) {
	if state == nil {
		return nil, "", fmt.Errorf("advance: nil state")
	}

	if !state.Phase.Valid() {
		return e.recover(ctx, state)
	}

	phase := state.Phase
	if phase.IsTerminal() {
		e.logger.DebugContext(ctx, "advance on completed session", "session_id", state.SessionID)
		return nil, "", domain.ErrSessionComplete
	}

	prompt, err := catalog.Render(phase, state.Checklist, state.LastContent())
	if err != nil {
		return nil, "", fmt.Errorf("render %s: %w", phase, err)
	}

	reply, err := e.complete(ctx, state.SessionID, phase.String(), ports.CompletionRequest{
		Prompt:       prompt,
		SystemPrompt: e.resolveSystemPrompt(systemPrompt),
		MaxTokens:    e.maxTokens,
		Temperature:  e.temperature,
	})
	if err != nil {
		e.logger.WarnContext(ctx, "gateway call failed",
			"session_id", state.SessionID,
			"phase", phase.String(),
			"err", err,
		)
		return nil, "", err
	}

	next := state.Clone()
	next.History = append(next.History, domain.TutorPrompt(prompt), domain.TutorResponse(reply))
	if !phase.IsFinalFeedback() && userMessage != "" {
		next.History = append(next.History, domain.StudentResponse(userMessage))
	}
	next.Phase = phase.Next()

	e.emitPhaseLeave(ctx, state.SessionID, phase)
	e.emitPhaseEnter(ctx, next.SessionID, next.Phase)

	e.logger.DebugContext(ctx, "phase advanced",
		"session_id", next.SessionID,
		"from", phase.String(),
		"to", next.Phase.String(),
		"history_len", len(next.History),
	)
	return next, reply, nil
}

// complete calls the gateway and maps every failure, including empty output, to a GatewayError.
func (e *Engine) complete(ctx context.Context, sessionID, operation string, req ports.CompletionRequest) (string, error) {
	if e.gateway == nil {
		return "", &domain.GatewayError{Operation: operation, Cause: errors.New("no gateway configured")}
	}

	e.emitGatewayCall(ctx, sessionID, operation)
	start := e.now()
	reply, err := e.gateway.Complete(ctx, req)
	elapsed := e.now().Sub(start)

	if err == nil && strings.TrimSpace(reply) == "" {
		err = errEmptyResponse
	}
	e.emitGatewayReturn(ctx, sessionID, operation, elapsed, err != nil)
	if err != nil {
		return "", &domain.GatewayError{Operation: operation, Cause: err}
	}
	return reply, nil
}

// recover applies the unknown-phase policy.
func (e *Engine) recover(ctx context.Context, state *domain.State) (*domain.State, string, error) {
	raw := state.RawPhase()
	if e.recovery != RecoverClampToLast {
		return nil, "", &domain.UnknownPhaseError{Value: raw}
	}

	e.logger.WarnContext(ctx, "unknown phase clamped to last phase",
		"session_id", state.SessionID,
		"phase", raw,
		"clamped_to", domain.LastPhase().String(),
	)
	next := state.Clone()
	next.Phase = domain.LastPhase()
	next.Recovered = true
	e.emitPhaseRecovered(ctx, next.SessionID, raw)
	return next, "", nil
}

func (e *Engine) resolveSystemPrompt(override string) string {
	if strings.TrimSpace(override) == "" {
		return e.systemPrompt
	}
	return catalog.ResolveSystemPrompt(override)
}
