package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/aretw0/preceptor/internal/logging"
	"github.com/aretw0/preceptor/pkg/domain"
	"github.com/aretw0/preceptor/pkg/ports"
)

// DefaultFinalizeTimeout bounds a background artifact generation.
const DefaultFinalizeTimeout = 5 * time.Minute

// ArtifactGenerator produces the terminal artifacts of a finished session.
type ArtifactGenerator interface {
	Generate(ctx context.Context, state *domain.State) (domain.Artifacts, error)
}

// Finalizer generates and persists the artifacts of each session exactly once.
// Concurrent calls inside one process collapse into a single generation; the
// Claimer extends the guarantee across processes. A failed generation releases
// its claim so a later call can retry.
type Finalizer struct {
	generator ArtifactGenerator
	store     ports.ArtifactStore
	claimer   ports.Claimer

	group   singleflight.Group
	wg      sync.WaitGroup
	logger  *slog.Logger
	hooks   domain.LifecycleHooks
	ttl     time.Duration
	timeout time.Duration
	now     func() time.Time
}

// FinalizerOption configures the Finalizer.
type FinalizerOption func(*Finalizer)

// WithFinalizerLogger sets the structured logger.
func WithFinalizerLogger(logger *slog.Logger) FinalizerOption {
	return func(f *Finalizer) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// WithFinalizerHooks registers OnArtifacts observers.
func WithFinalizerHooks(hooks domain.LifecycleHooks) FinalizerOption {
	return func(f *Finalizer) {
		f.hooks = hooks
	}
}

// WithClaimTTL makes a successful claim expire. Zero keeps it forever.
func WithClaimTTL(ttl time.Duration) FinalizerOption {
	return func(f *Finalizer) {
		f.ttl = ttl
	}
}

// WithFinalizeTimeout bounds background generations.
func WithFinalizeTimeout(d time.Duration) FinalizerOption {
	return func(f *Finalizer) {
		if d > 0 {
			f.timeout = d
		}
	}
}

// NewFinalizer wires a generator to an artifact store and a claimer.
func NewFinalizer(generator ArtifactGenerator, store ports.ArtifactStore, claimer ports.Claimer, opts ...FinalizerOption) *Finalizer {
	f := &Finalizer{
		generator: generator,
		store:     store,
		claimer:   claimer,
		logger:    logging.NewNop(),
		timeout:   DefaultFinalizeTimeout,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func claimKey(sessionID string) string {
	return "finalize:" + sessionID
}

// Finalize generates and stores the artifacts of a terminal state.
// It returns domain.ErrAlreadyFinalized when another call already did (or is doing) it.
func (f *Finalizer) Finalize(ctx context.Context, state *domain.State) (domain.Artifacts, error) {
	if state == nil || !state.Phase.IsTerminal() {
		return domain.Artifacts{}, domain.ErrNotTerminal
	}
	if state.SessionID == "" {
		return domain.Artifacts{}, fmt.Errorf("finalize: missing session id")
	}

	// Only the caller whose function ran owns the result; the others joined it.
	leader := false
	v, err, _ := f.group.Do(state.SessionID, func() (interface{}, error) {
		leader = true
		return f.finalize(ctx, state)
	})
	if err != nil {
		return domain.Artifacts{}, err
	}
	if !leader {
		return domain.Artifacts{}, domain.ErrAlreadyFinalized
	}
	return v.(domain.Artifacts), nil
}

func (f *Finalizer) finalize(ctx context.Context, state *domain.State) (domain.Artifacts, error) {
	id := state.SessionID
	key := claimKey(id)

	ok, err := f.claimer.Claim(ctx, key, f.ttl)
	if err != nil {
		return domain.Artifacts{}, fmt.Errorf("claim finalization: %w", err)
	}
	if !ok {
		f.logger.DebugContext(ctx, "finalization already claimed", "session_id", id)
		return domain.Artifacts{}, domain.ErrAlreadyFinalized
	}
	f.logger.InfoContext(ctx, "finalization claimed", "session_id", id)

	start := f.now()
	arts, err := f.generator.Generate(ctx, state)
	if err == nil {
		if saveErr := f.store.Save(ctx, id, arts); saveErr != nil {
			err = fmt.Errorf("save artifacts: %w", saveErr)
		}
	}
	elapsed := f.now().Sub(start)

	if err != nil {
		if relErr := f.claimer.Release(context.WithoutCancel(ctx), key); relErr != nil {
			f.logger.WarnContext(ctx, "failed to release finalization claim",
				"session_id", id,
				"err", relErr,
			)
		}
		f.logger.ErrorContext(ctx, "finalization failed", "session_id", id, "err", err)
		f.emit(ctx, id, domain.Artifacts{}, elapsed, err)
		return domain.Artifacts{}, err
	}

	f.logger.InfoContext(ctx, "artifacts written", "session_id", id, "duration", elapsed)
	f.emit(ctx, id, arts, elapsed, nil)
	return arts, nil
}

// FinalizeAsync runs Finalize in the background on a copy of state. done, if
// not nil, receives the outcome. Use Wait to drain pending generations.
func (f *Finalizer) FinalizeAsync(state *domain.State, done func(domain.Artifacts, error)) {
	snapshot := state.Clone()
	f.wg.Add(1)
	go func() {
		defer f.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), f.timeout)
		defer cancel()

		arts, err := f.Finalize(ctx, snapshot)
		if err != nil && !errors.Is(err, domain.ErrAlreadyFinalized) && snapshot != nil {
			f.logger.Warn("background finalization failed", "session_id", snapshot.SessionID, "err", err)
		}
		if done != nil {
			done(arts, err)
		}
	}()
}

// Wait blocks until every background finalization has returned.
func (f *Finalizer) Wait() {
	f.wg.Wait()
}

// Artifacts loads what a previous finalization stored.
func (f *Finalizer) Artifacts(ctx context.Context, sessionID string) (domain.Artifacts, error) {
	return f.store.Load(ctx, sessionID)
}

func (f *Finalizer) emit(ctx context.Context, sessionID string, arts domain.Artifacts, d time.Duration, err error) {
	if f.hooks.OnArtifacts == nil {
		return
	}
	f.hooks.OnArtifacts(ctx, &domain.ArtifactEvent{
		EventBase: domain.EventBase{Timestamp: f.now(), Type: domain.EventArtifacts, SessionID: sessionID},
		Artifacts: arts,
		Duration:  d,
		Err:       err,
	})
}
