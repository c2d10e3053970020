package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/aretw0/preceptor/internal/logging"
	"github.com/aretw0/preceptor/pkg/catalog"
	"github.com/aretw0/preceptor/pkg/domain"
	"github.com/aretw0/preceptor/pkg/ports"
	"github.com/aretw0/preceptor/pkg/runner"
	"github.com/aretw0/preceptor/pkg/session"
)

// maxBodyBytes bounds request bodies; a state carries the whole transcript.
const maxBodyBytes = 4 << 20

// Server serves the tutor over HTTP.
type Server struct {
	Engine  ports.StatelessEngine
	Streams *StreamManager

	gateway     ports.Gateway
	sessions    *session.Service
	finalizer   *session.Finalizer
	handoutsDir string
	metrics     http.Handler
	version     string
	validation  bool
	logger      *slog.Logger
}

// Option configures the Server.
type Option func(*Server)

// WithGateway enables POST /chat/simple.
func WithGateway(g ports.Gateway) Option {
	return func(s *Server) { s.gateway = g }
}

// WithSessions enables the stateful /sessions endpoints.
func WithSessions(svc *session.Service) Option {
	return func(s *Server) { s.sessions = svc }
}

// WithFinalizer enables artifact generation for sessions finished through POST /chat.
func WithFinalizer(f *session.Finalizer) Option {
	return func(s *Server) { s.finalizer = f }
}

// WithHandoutsDir serves files of dir under /handouts/{name}.
func WithHandoutsDir(dir string) Option {
	return func(s *Server) { s.handoutsDir = dir }
}

// WithMetricsHandler mounts h at /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) { s.metrics = h }
}

// WithVersion sets the version reported by /info.
func WithVersion(v string) Option {
	return func(s *Server) { s.version = v }
}

// WithValidation toggles schema validation of requests (on by default).
func WithValidation(enabled bool) Option {
	return func(s *Server) { s.validation = enabled }
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewServer creates a Server around a stateless engine.
func NewServer(engine ports.StatelessEngine, opts ...Option) *Server {
	s := &Server{
		Engine:     engine,
		version:    "dev",
		validation: true,
		logger:     logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.Streams = NewStreamManager(s.logger)
	return s
}

// NewHandler creates the HTTP handler for the engine.
func NewHandler(engine ports.StatelessEngine, opts ...Option) (http.Handler, error) {
	return NewServer(engine, opts...).Routes()
}

// Routes builds the router.
func (s *Server) Routes() (http.Handler, error) {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(enableCORS)
	if s.validation {
		v, err := requestValidator(s.logger)
		if err != nil {
			return nil, err
		}
		r.Use(v)
	}

	r.Get("/openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/yaml")
		_, _ = w.Write(RawSpec())
	})
	r.Get("/health", s.GetHealth)
	r.Get("/info", s.GetInfo)
	r.Get("/phases", s.ListPhases)

	r.Post("/chat", s.Chat)
	r.Post("/chat/simple", s.SimpleChat)

	r.Route("/sessions", func(r chi.Router) {
		r.Get("/", s.ListSessions)
		r.Post("/", s.StartSession)
		r.Get("/{session_id}", s.GetSession)
		r.Delete("/{session_id}", s.DeleteSession)
		r.Post("/{session_id}/turns", s.TakeTurn)
	})
	r.Get("/artifacts/{session_id}", s.GetArtifacts)
	r.Get("/handouts/{name}", s.GetHandout)
	r.Get("/events", s.SubscribeEvents)

	if s.metrics != nil {
		r.Handle("/metrics", s.metrics)
	}
	return r, nil
}

// DiffListener returns a session.DiffListener that feeds the SSE streams.
func (s *Server) DiffListener() session.DiffListener {
	return func(_ context.Context, diff *domain.StateDiff) {
		s.broadcast(diff)
	}
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type chatRequest struct {
	Message      string          `json:"message"`
	State        json.RawMessage `json:"state,omitempty"`
	SystemPrompt string          `json:"system_prompt,omitempty"`
}

type simpleChatRequest struct {
	Message      string          `json:"message"`
	SystemPrompt string          `json:"system_prompt,omitempty"`
	State        json.RawMessage `json:"state,omitempty"`
	History      []any           `json:"history,omitempty"`
}

type chatResponse struct {
	AIMessage string `json:"ai_message"`
	State     any    `json:"state"`
}

type startSessionRequest struct {
	Checklist map[string]any `json:"checklist"`
}

type turnRequest struct {
	Message      string `json:"message"`
	SystemPrompt string `json:"system_prompt,omitempty"`
}

// GetHealth handles GET /health.
func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GetInfo handles GET /info.
func (s *Server) GetInfo(w http.ResponseWriter, r *http.Request) {
	apiVersion := "unknown"
	if doc, err := GetSwagger(); err == nil && doc.Info != nil {
		apiVersion = doc.Info.Version
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"app":         "preceptor-http",
		"version":     strings.TrimSpace(s.version),
		"api_version": apiVersion,
		"sessions":    s.sessions != nil,
		"artifacts":   s.finalizer != nil || s.sessions != nil,
	})
}

// ListPhases handles GET /phases.
func (s *Server) ListPhases(w http.ResponseWriter, r *http.Request) {
	seq := domain.Sequence()
	names := make([]string, len(seq))
	for i, p := range seq {
		names[i] = p.String()
	}
	writeJSON(w, http.StatusOK, names)
}

// Chat handles POST /chat: one turn on a state held by the client.
func (s *Server) Chat(w http.ResponseWriter, r *http.Request) {
	var body chatRequest
	if !decode(w, r, &body, s.logger) {
		return
	}

	message, ok := s.sanitize(w, body.Message)
	if !ok {
		return
	}

	state, err := s.decodeState(body.State)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	next, reply, err := s.Engine.Advance(r.Context(), state, message, body.SystemPrompt)
	if err != nil {
		s.logger.Warn("chat turn failed", "session_id", state.SessionID, "phase", state.RawPhase(), "err", err)
		writeDomainError(w, err)
		return
	}

	s.broadcast(domain.Diff(state, next))
	if next.Phase.IsTerminal() {
		s.finalizeDetached(next)
	}

	writeJSON(w, http.StatusOK, chatResponse{AIMessage: reply, State: next})
}

// decodeState parses the client state. A missing or blank state starts a new session;
// a state without session_id is keyed by its fingerprint.
func (s *Server) decodeState(raw json.RawMessage) (*domain.State, error) {
	state := &domain.State{}
	if len(raw) > 0 && string(raw) != "null" {
		if err := json.Unmarshal(raw, state); err != nil {
			return nil, err
		}
	}
	if state.IsBlank() {
		id := state.SessionID
		if id == "" {
			id = uuid.NewString()
		}
		return s.Engine.Start(id, state.Checklist), nil
	}
	if state.SessionID == "" {
		state.SessionID = state.Fingerprint()
	}
	return state, nil
}

func (s *Server) finalizeDetached(state *domain.State) {
	if s.finalizer == nil || state.HasArtifacts() {
		return
	}
	id := state.SessionID
	s.finalizer.FinalizeAsync(state, func(arts domain.Artifacts, err error) {
		if err != nil {
			return
		}
		s.broadcast(&domain.StateDiff{SessionID: id, Artifacts: &arts})
	})
}

// SimpleChat handles POST /chat/simple: a direct model call with history, used
// to talk to a generated virtual patient.
func (s *Server) SimpleChat(w http.ResponseWriter, r *http.Request) {
	if s.gateway == nil {
		writeError(w, http.StatusNotImplemented, "simple chat is not configured")
		return
	}
	var body simpleChatRequest
	if !decode(w, r, &body, s.logger) {
		return
	}
	message, ok := s.sanitize(w, body.Message)
	if !ok {
		return
	}

	history := make([]domain.Message, 0, len(body.History))
	for _, entry := range body.History {
		msg, err := domain.NormalizeMessage(entry)
		if err != nil {
			s.logger.Debug("simple chat: history entry normalized", "err", err)
		}
		history = append(history, msg)
	}

	reply, err := s.gateway.Complete(r.Context(), ports.CompletionRequest{
		Prompt:       message,
		SystemPrompt: catalog.ResolveSystemPrompt(body.SystemPrompt),
		History:      history,
	})
	if err == nil && strings.TrimSpace(reply) == "" {
		err = errors.New("empty response")
	}
	if err != nil {
		writeDomainError(w, &domain.GatewayError{Operation: "simple_chat", Cause: err})
		return
	}

	var state any = map[string]any{}
	if len(body.State) > 0 && string(body.State) != "null" {
		state = body.State
	}
	writeJSON(w, http.StatusOK, chatResponse{AIMessage: reply, State: state})
}

// ListSessions handles GET /sessions.
func (s *Server) ListSessions(w http.ResponseWriter, r *http.Request) {
	if !s.requireSessions(w) {
		return
	}
	ids, err := s.sessions.List(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ids)
}

// StartSession handles POST /sessions.
func (s *Server) StartSession(w http.ResponseWriter, r *http.Request) {
	if !s.requireSessions(w) {
		return
	}
	var body startSessionRequest
	if !decode(w, r, &body, s.logger) {
		return
	}
	state, err := s.sessions.Start(r.Context(), body.Checklist)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, state)
}

// GetSession handles GET /sessions/{session_id}.
func (s *Server) GetSession(w http.ResponseWriter, r *http.Request) {
	if !s.requireSessions(w) {
		return
	}
	state, err := s.sessions.Get(r.Context(), chi.URLParam(r, "session_id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

// DeleteSession handles DELETE /sessions/{session_id}.
func (s *Server) DeleteSession(w http.ResponseWriter, r *http.Request) {
	if !s.requireSessions(w) {
		return
	}
	if err := s.sessions.Delete(r.Context(), chi.URLParam(r, "session_id")); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// TakeTurn handles POST /sessions/{session_id}/turns.
func (s *Server) TakeTurn(w http.ResponseWriter, r *http.Request) {
	if !s.requireSessions(w) {
		return
	}
	var body turnRequest
	if !decode(w, r, &body, s.logger) {
		return
	}
	message, ok := s.sanitize(w, body.Message)
	if !ok {
		return
	}

	id := chi.URLParam(r, "session_id")
	state, reply, err := s.sessions.Turn(r.Context(), id, message, body.SystemPrompt)
	if err != nil {
		s.logger.Warn("session turn failed", "session_id", id, "err", err)
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, chatResponse{AIMessage: reply, State: state})
}

// GetArtifacts handles GET /artifacts/{session_id}.
func (s *Server) GetArtifacts(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "session_id")

	var (
		arts domain.Artifacts
		err  = domain.ErrArtifactsNotFound
	)
	switch {
	case s.sessions != nil:
		arts, err = s.sessions.Artifacts(r.Context(), id)
	case s.finalizer != nil:
		arts, err = s.finalizer.Artifacts(r.Context(), id)
	}
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, arts)
}

// GetHandout handles GET /handouts/{name}.
func (s *Server) GetHandout(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if s.handoutsDir == "" || name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		writeError(w, http.StatusNotFound, "handout not found")
		return
	}

	path := filepath.Join(s.handoutsDir, name)
	f, err := os.Open(path)
	if err != nil {
		writeError(w, http.StatusNotFound, "handout not found")
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil || info.IsDir() {
		writeError(w, http.StatusNotFound, "handout not found")
		return
	}
	if strings.EqualFold(filepath.Ext(name), ".pdf") {
		w.Header().Set("Content-Type", "application/pdf")
		w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%s", name))
	}
	http.ServeContent(w, r, name, info.ModTime(), f)
}

func (s *Server) requireSessions(w http.ResponseWriter) bool {
	if s.sessions == nil {
		writeError(w, http.StatusNotImplemented, "server-side sessions are not enabled")
		return false
	}
	return true
}

func (s *Server) sanitize(w http.ResponseWriter, input string) (string, bool) {
	if input == "" {
		return "", true
	}
	clean, err := runner.SanitizeInput(input)
	if err != nil {
		s.logger.Warn("input rejected", "err", err, "size", len(input))
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid input: %v", err))
		return "", false
	}
	return clean, true
}

func (s *Server) broadcast(diff *domain.StateDiff) {
	if diff == nil || diff.SessionID == "" {
		return
	}
	b, err := json.Marshal(diff)
	if err != nil {
		s.logger.Error("diff encode failed", "err", err)
		return
	}
	s.Streams.Broadcast(diff.SessionID, string(b))
}

func decode(w http.ResponseWriter, r *http.Request, v any, logger *slog.Logger) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		logger.Warn("invalid request body", "path", r.URL.Path, "err", err)
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}
