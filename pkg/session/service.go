package session

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"

	"github.com/aretw0/preceptor/internal/logging"
	"github.com/aretw0/preceptor/pkg/domain"
	"github.com/aretw0/preceptor/pkg/ports"
)

// DiffListener observes every change the Service makes to a session.
type DiffListener func(ctx context.Context, diff *domain.StateDiff)

// Service runs tutoring sessions held server-side.
type Service struct {
	engine    ports.StatelessEngine
	manager   *Manager
	finalizer *Finalizer
	logger    *slog.Logger
	newID     func() string
	listeners []DiffListener
}

// ServiceOption configures the Service.
type ServiceOption func(*Service)

// WithServiceLogger sets the structured logger.
func WithServiceLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithIDGenerator overrides session ID generation.
func WithIDGenerator(fn func() string) ServiceOption {
	return func(s *Service) {
		if fn != nil {
			s.newID = fn
		}
	}
}

// WithDiffListener registers an observer of session changes.
func WithDiffListener(l DiffListener) ServiceOption {
	return func(s *Service) {
		if l != nil {
			s.listeners = append(s.listeners, l)
		}
	}
}

// NewService creates a Service. finalizer may be nil to skip artifact generation.
func NewService(engine ports.StatelessEngine, manager *Manager, finalizer *Finalizer, opts ...ServiceOption) *Service {
	s := &Service{
		engine:    engine,
		manager:   manager,
		finalizer: finalizer,
		logger:    logging.NewNop(),
		newID:     uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start creates and stores a new session.
func (s *Service) Start(ctx context.Context, checklist map[string]any) (*domain.State, error) {
	id := s.newID()
	state, err := s.manager.LoadOrStart(ctx, id, checklist)
	if err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "session started", "session_id", id)
	s.notify(ctx, domain.Diff(nil, state))
	return state, nil
}

// Turn advances a stored session by one phase. When the session reaches the
// output phase its artifacts are generated in the background.
func (s *Service) Turn(ctx context.Context, sessionID, message, systemPrompt string) (*domain.State, string, error) {
	var (
		prev  *domain.State
		reply string
	)
	next, err := s.manager.Update(ctx, sessionID, func(ctx context.Context, current *domain.State) (*domain.State, error) {
		prev = current
		n, r, err := s.engine.Advance(ctx, current, message, systemPrompt)
		reply = r
		return n, err
	})
	if err != nil {
		return nil, "", err
	}

	s.notify(ctx, domain.Diff(prev, next))
	if next.Phase.IsTerminal() && !next.HasArtifacts() {
		s.finalizeAsync(next)
	}
	return next, reply, nil
}

// Get returns the stored state of a session.
func (s *Service) Get(ctx context.Context, sessionID string) (*domain.State, error) {
	return s.manager.Load(ctx, sessionID)
}

// Delete drops a stored session.
func (s *Service) Delete(ctx context.Context, sessionID string) error {
	return s.manager.Delete(ctx, sessionID)
}

// List returns the IDs of stored sessions.
func (s *Service) List(ctx context.Context) ([]string, error) {
	return s.manager.List(ctx)
}

// Artifacts returns the report and persona of a finished session.
func (s *Service) Artifacts(ctx context.Context, sessionID string) (domain.Artifacts, error) {
	if s.finalizer == nil {
		return domain.Artifacts{}, domain.ErrArtifactsNotFound
	}
	return s.finalizer.Artifacts(ctx, sessionID)
}

// Finalize generates the artifacts of a stored session synchronously and
// records them on the session.
func (s *Service) Finalize(ctx context.Context, sessionID string) (domain.Artifacts, error) {
	if s.finalizer == nil {
		return domain.Artifacts{}, errors.New("finalize: artifact generation disabled")
	}
	state, err := s.manager.Load(ctx, sessionID)
	if err != nil {
		return domain.Artifacts{}, err
	}
	arts, err := s.finalizer.Finalize(ctx, state)
	if err != nil {
		return domain.Artifacts{}, err
	}
	s.record(ctx, sessionID, arts)
	return arts, nil
}

// Wait drains background finalizations.
func (s *Service) Wait() {
	if s.finalizer != nil {
		s.finalizer.Wait()
	}
}

func (s *Service) finalizeAsync(state *domain.State) {
	if s.finalizer == nil {
		return
	}
	id := state.SessionID
	s.finalizer.FinalizeAsync(state, func(arts domain.Artifacts, err error) {
		if err != nil {
			return
		}
		s.record(context.Background(), id, arts)
	})
}

// record copies generated artifacts onto the stored session.
func (s *Service) record(ctx context.Context, sessionID string, arts domain.Artifacts) {
	var prev *domain.State
	next, err := s.manager.Update(ctx, sessionID, func(_ context.Context, current *domain.State) (*domain.State, error) {
		prev = current
		n := current.Clone()
		n.Report = arts.Report
		n.VirtualPatient = arts.VirtualPatient
		return n, nil
	})
	if err != nil {
		s.logger.WarnContext(ctx, "failed to record artifacts on session", "session_id", sessionID, "err", err)
		return
	}
	s.notify(ctx, domain.Diff(prev, next))
}

func (s *Service) notify(ctx context.Context, diff *domain.StateDiff) {
	if diff == nil {
		return
	}
	for _, l := range s.listeners {
		l(ctx, diff)
	}
}
