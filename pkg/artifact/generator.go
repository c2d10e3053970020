package artifact

import (
	"context"
	"encoding/json"
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

// Operation names reported in GatewayError and logs.
const (
	OperationReport  = "report"
	OperationPersona = "persona"
)

// Instruction suffixes appended to the serialized transcript.
const (
	ReportInstruction = `

Generate a final session report including the initial checklist and a summary of the student's reasoning.
Call out the strengths and the weaknesses of that reasoning. Write in prose and do not repeat yourself.`

	PersonaInstruction = `

Generate a virtual patient persona similar to the student's checklist. The persona must target the
weaknesses in medical reasoning shown in the transcript above.
Describe only the patient: demographics, presenting complaint, history, symptoms, vital signs and exam findings.
Do not name any diagnosis, do not propose a plan, and do not add tutor commentary.`
)

var errEmptyArtifact = errors.New("empty response")

// Generator builds the terminal artifacts of a session from its transcript.
type Generator struct {
	gateway      ports.Gateway
	logger       *slog.Logger
	systemPrompt string
	maxTokens    int
	filter       *PersonaFilter
	hooks        domain.LifecycleHooks
	now          func() time.Time
}

type sessionKey struct{}

// Option configures the Generator.
type Option func(*Generator)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(g *Generator) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// WithSystemPrompt sets the persona sent with both artifact calls.
func WithSystemPrompt(prompt string) Option {
	return func(g *Generator) {
		if prompt != "" {
			g.systemPrompt = prompt
		}
	}
}

// WithMaxTokens sets the completion budget per artifact.
func WithMaxTokens(n int) Option {
	return func(g *Generator) {
		if n > 0 {
			g.maxTokens = n
		}
	}
}

// WithPersonaFilter replaces the default persona filter.
func WithPersonaFilter(f *PersonaFilter) Option {
	return func(g *Generator) {
		if f != nil {
			g.filter = f
		}
	}
}

// WithHooks reports each report and persona call through OnGatewayCall/OnGatewayReturn.
func WithHooks(hooks domain.LifecycleHooks) Option {
	return func(g *Generator) {
		g.hooks = hooks
	}
}

// NewGenerator creates a Generator bound to a model gateway.
func NewGenerator(gateway ports.Gateway, opts ...Option) *Generator {
	g := &Generator{
		gateway:      gateway,
		logger:       logging.NewNop(),
		systemPrompt: catalog.DefaultSystemPrompt,
		maxTokens:    4096,
		filter:       DefaultPersonaFilter(),
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// SerializeTranscript renders the history as an indented JSON array of message contents.
func SerializeTranscript(history []domain.Message) (string, error) {
	contents := make([]string, len(history))
	for i, m := range history {
		contents[i] = m.Content
	}
	b, err := json.MarshalIndent(contents, "", "  ")
	if err != nil {
		return "", fmt.Errorf("serialize transcript: %w", err)
	}
	return string(b), nil
}

// BuildReport asks the model for the session report.
func (g *Generator) BuildReport(ctx context.Context, history []domain.Message) (string, error) {
	transcript, err := SerializeTranscript(history)
	if err != nil {
		return "", err
	}
	return g.complete(ctx, OperationReport, transcript+ReportInstruction)
}

// BuildPersona asks the model for a virtual patient and strips any line that
// would leak a diagnosis, a plan or tutor commentary.
func (g *Generator) BuildPersona(ctx context.Context, history []domain.Message, checklist map[string]any) (string, error) {
	transcript, err := SerializeTranscript(history)
	if err != nil {
		return "", err
	}
	serialized, err := catalog.SerializeChecklist(checklist)
	if err != nil {
		return "", err
	}

	prompt := transcript + "\n\nStudent checklist:\n" + serialized + PersonaInstruction
	raw, err := g.complete(ctx, OperationPersona, prompt)
	if err != nil {
		return "", err
	}

	persona, dropped := g.filter.Apply(raw)
	if dropped > 0 {
		g.logger.DebugContext(ctx, "persona lines removed", "count", dropped)
	}
	if strings.TrimSpace(persona) == "" {
		return "", &domain.GatewayError{Operation: OperationPersona, Cause: errors.New("persona empty after filtering")}
	}
	return persona, nil
}

// Generate builds the report, then the persona, from a state that reached the output phase.
func (g *Generator) Generate(ctx context.Context, state *domain.State) (domain.Artifacts, error) {
	if state == nil {
		return domain.Artifacts{}, fmt.Errorf("generate artifacts: nil state")
	}
	if !state.Phase.IsTerminal() {
		return domain.Artifacts{}, fmt.Errorf("generate artifacts at %s: %w", state.RawPhase(), domain.ErrNotTerminal)
	}

	ctx = context.WithValue(ctx, sessionKey{}, state.SessionID)
	report, err := g.BuildReport(ctx, state.History)
	if err != nil {
		return domain.Artifacts{}, err
	}
	persona, err := g.BuildPersona(ctx, state.History, state.Checklist)
	if err != nil {
		return domain.Artifacts{}, err
	}

	g.logger.InfoContext(ctx, "artifacts generated",
		"session_id", state.SessionID,
		"report_len", len(report),
		"persona_len", len(persona),
	)
	return domain.Artifacts{Report: report, VirtualPatient: persona}, nil
}

func (g *Generator) complete(ctx context.Context, operation, prompt string) (string, error) {
	if g.gateway == nil {
		return "", &domain.GatewayError{Operation: operation, Cause: errors.New("no gateway configured")}
	}
	sessionID, _ := ctx.Value(sessionKey{}).(string)
	if g.hooks.OnGatewayCall != nil {
		g.hooks.OnGatewayCall(ctx, &domain.GatewayEvent{
			EventBase: domain.EventBase{Timestamp: g.now(), Type: domain.EventGatewayCall, SessionID: sessionID},
			Operation: operation,
		})
	}

	start := g.now()
	out, err := g.gateway.Complete(ctx, ports.CompletionRequest{
		Prompt:       prompt,
		SystemPrompt: g.systemPrompt,
		MaxTokens:    g.maxTokens,
	})
	if err == nil && strings.TrimSpace(out) == "" {
		err = errEmptyArtifact
	}
	if g.hooks.OnGatewayReturn != nil {
		g.hooks.OnGatewayReturn(ctx, &domain.GatewayEvent{
			EventBase: domain.EventBase{Timestamp: g.now(), Type: domain.EventGatewayReturn, SessionID: sessionID},
			Operation: operation,
			Duration:  g.now().Sub(start),
			IsError:   err != nil,
		})
	}
	if err != nil {
		g.logger.WarnContext(ctx, "artifact generation failed", "operation", operation, "err", err)
		return "", &domain.GatewayError{Operation: operation, Cause: err}
	}
	return out, nil
}
