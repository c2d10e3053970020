package runner

import (
	"log/slog"

	"github.com/aretw0/preceptor/pkg/ports"
)

// Option defines a functional option for configuring the Runner.
type Option func(*Runner)

// WithStore configures the StateStore for persistence.
func WithStore(store ports.StateStore) Option {
	return func(r *Runner) {
		r.Store = store
	}
}

// WithLogger configures the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) {
		if logger != nil {
			r.Logger = logger
		}
	}
}

// WithInputHandler configures a custom IOHandler.
func WithInputHandler(handler IOHandler) Option {
	return func(r *Runner) {
		r.Handler = handler
	}
}

// WithHeadless sets the runner to headless mode.
func WithHeadless(headless bool) Option {
	return func(r *Runner) {
		r.Headless = headless
	}
}

// WithSignals makes Ctrl+C cancel the turn in flight.
func WithSignals(enabled bool) Option {
	return func(r *Runner) {
		r.Signals = enabled
	}
}

// WithSessionID sets the id used for new sessions and persistence.
func WithSessionID(id string) Option {
	return func(r *Runner) {
		r.SessionID = id
	}
}

// WithChecklist sets the clinical findings of a new session.
func WithChecklist(checklist map[string]any) Option {
	return func(r *Runner) {
		r.Checklist = checklist
	}
}

// WithSystemPrompt overrides the tutor persona for every turn.
func WithSystemPrompt(prompt string) Option {
	return func(r *Runner) {
		r.SystemPrompt = prompt
	}
}

// WithGenerator enables artifact generation at the output phase.
func WithGenerator(g ArtifactGenerator) Option {
	return func(r *Runner) {
		r.Generator = g
	}
}

// WithRenderer configures the content renderer (e.g. TUI, Markdown).
func WithRenderer(renderer ContentRenderer) Option {
	return func(r *Runner) {
		r.Renderer = renderer
	}
}
