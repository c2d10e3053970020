package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/google/uuid"

	"github.com/aretw0/preceptor/internal/logging"
	"github.com/aretw0/preceptor/pkg/domain"
	"github.com/aretw0/preceptor/pkg/ports"
)

// ErrInterrupted is returned when a signal aborts the session.
var ErrInterrupted = errors.New("interrupted")

// errStop ends the loop without an error (EOF, "exit", "quit").
var errStop = errors.New("stop")

// Runner handles the turn loop of the engine using the provided IO.
type Runner struct {
	// Handler is the strategy for IO. If nil, a TextHandler over Input/Output is used.
	Handler IOHandler

	// Logger is used for internal debug logging.
	Logger *slog.Logger

	// Store persists the state after every turn. If nil, sessions are ephemeral.
	Store ports.StateStore

	// Generator produces the report and persona at the output phase. Optional.
	Generator ArtifactGenerator

	SessionID    string
	Checklist    map[string]any
	SystemPrompt string

	// Headless disables the banner and makes gateway failures fatal instead of retryable.
	Headless bool
	// Signals turns SIGINT/SIGTERM into cancellation of the call in flight.
	Signals bool

	Input    io.Reader
	Output   io.Writer
	Renderer ContentRenderer
}

// NewRunner creates a new Runner with default Stdin/Stdout.
func NewRunner(opts ...Option) *Runner {
	r := &Runner{
		Input:  os.Stdin,
		Output: os.Stdout,
		Logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes turns until the output phase, then generates the artifacts.
// If initial is nil a new session is started. Run returns the last state it
// reached; on EOF or "exit" that state is returned with a nil error.
func (r *Runner) Run(ctx context.Context, engine ports.StatelessEngine, initial *domain.State) (*domain.State, error) {
	handler := r.resolveHandler()

	signals := &SignalManager{ctx: ctx, cancel: func() {}}
	if r.Signals {
		signals = NewSignalManager(ctx)
	}
	defer signals.Stop()

	state := r.resolveInitialState(engine, initial)

	message := ""
	if len(state.History) > 0 && !state.Phase.IsTerminal() {
		_ = handler.SystemOutput(ctx, fmt.Sprintf("Resuming session %s at phase %s.", state.SessionID, state.RawPhase()))
		if !state.Phase.IsFinalFeedback() {
			var err error
			if message, err = r.read(handler, signals); err != nil {
				return r.stopped(state, err)
			}
		}
	}

	for !state.Phase.IsTerminal() {
		turnCtx := signals.Context()
		next, reply, err := engine.Advance(turnCtx, state, message, r.SystemPrompt)
		if err != nil {
			if turnCtx.Err() != nil {
				return state, ErrInterrupted
			}
			if r.Headless || !errors.Is(err, domain.ErrGatewayUnavailable) {
				return state, err
			}
			r.Logger.Warn("tutor turn failed", "session_id", state.SessionID, "phase", state.RawPhase(), "err", err)
			_ = handler.SystemOutput(ctx, fmt.Sprintf("The tutor is unavailable (%v). Press enter to retry or type a new answer.", err))
			retry, err := r.read(handler, signals)
			if err != nil {
				return r.stopped(state, err)
			}
			if retry != "" {
				message = retry
			}
			continue
		}

		phase := state.Phase
		state = next
		if err := r.save(ctx, state); err != nil {
			return state, fmt.Errorf("critical persistence error: %w", err)
		}

		turn := Turn{
			SessionID:  state.SessionID,
			Phase:      phase,
			Next:       state.Phase,
			Message:    reply,
			Terminal:   state.Phase.IsTerminal(),
			NeedsInput: !state.Phase.IsTerminal() && !state.Phase.IsFinalFeedback(),
		}
		if err := handler.Output(ctx, turn); err != nil {
			return state, fmt.Errorf("output error: %w", err)
		}

		message = ""
		if turn.NeedsInput {
			if message, err = r.read(handler, signals); err != nil {
				return r.stopped(state, err)
			}
		}
	}

	return r.finish(signals.Context(), handler, state)
}

// finish shows stored artifacts or generates them.
func (r *Runner) finish(ctx context.Context, handler IOHandler, state *domain.State) (*domain.State, error) {
	if state.HasArtifacts() {
		return state, handler.Artifacts(ctx, state.Artifacts())
	}
	if r.Generator == nil {
		return state, nil
	}

	_ = handler.SystemOutput(ctx, "Session complete. Generating the case report and virtual patient...")
	arts, err := r.Generator.Generate(ctx, state)
	if err != nil {
		if ctx.Err() != nil {
			return state, ErrInterrupted
		}
		return state, fmt.Errorf("generate artifacts: %w", err)
	}

	done := state.Clone()
	done.Report = arts.Report
	done.VirtualPatient = arts.VirtualPatient
	if err := r.save(ctx, done); err != nil {
		return done, fmt.Errorf("critical persistence error: %w", err)
	}
	return done, handler.Artifacts(ctx, arts)
}

// read waits for the student's answer. Exit words and EOF map to errStop.
func (r *Runner) read(handler IOHandler, signals *SignalManager) (string, error) {
	ctx := signals.Context()
	val, err := handler.Input(ctx)
	if err != nil {
		signals.CheckRace()
		if ctx.Err() != nil {
			r.Logger.Debug("runner input: context cancelled", "err", ctx.Err())
			return "", ErrInterrupted
		}
		if errors.Is(err, io.EOF) {
			return "", errStop
		}
		return "", fmt.Errorf("input error: %w", err)
	}

	switch strings.ToLower(strings.TrimSpace(val)) {
	case "exit", "quit":
		return "", errStop
	}
	return val, nil
}

func (r *Runner) stopped(state *domain.State, err error) (*domain.State, error) {
	if errors.Is(err, errStop) {
		return state, nil
	}
	return state, err
}

func (r *Runner) save(ctx context.Context, state *domain.State) error {
	if r.Store == nil || state.SessionID == "" {
		return nil
	}
	if err := r.Store.Save(context.WithoutCancel(ctx), state.SessionID, state); err != nil {
		return err
	}
	r.Logger.Debug("state saved", "session_id", state.SessionID, "phase", state.RawPhase())
	return nil
}

// resolveHandler ensures a valid IOHandler is set.
func (r *Runner) resolveHandler() IOHandler {
	if r.Handler != nil {
		return r.Handler
	}
	th := NewTextHandler(r.Input, r.Output, WithTextHandlerRenderer(r.Renderer))
	if !r.Headless && r.Output != nil {
		fmt.Fprintln(r.Output, "--- Preceptor (type 'exit' to leave) ---")
	}
	// Memoized so repeated Run calls share one input pump.
	r.Handler = th
	return th
}

func (r *Runner) resolveInitialState(engine ports.StatelessEngine, initial *domain.State) *domain.State {
	if initial != nil && !initial.IsBlank() {
		return initial
	}
	id := r.SessionID
	if id == "" {
		id = uuid.NewString()
	}
	checklist := r.Checklist
	if initial != nil && initial.Checklist != nil {
		checklist = initial.Checklist
	}
	return engine.Start(id, checklist)
}
