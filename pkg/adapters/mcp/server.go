package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/aretw0/preceptor/internal/logging"
	"github.com/aretw0/preceptor/pkg/catalog"
	"github.com/aretw0/preceptor/pkg/domain"
	"github.com/aretw0/preceptor/pkg/ports"
	"github.com/aretw0/preceptor/pkg/runner"
	"github.com/aretw0/preceptor/pkg/session"
)

// Resource URIs.
const (
	PhasesURI       = "preceptor://phases"
	TutorPromptURI  = "preceptor://prompts/tutor"
	defaultMIMEJSON = "application/json"
)

// AdvanceArgs are the arguments of the advance_session tool.
type AdvanceArgs struct {
	State        string `json:"state,omitempty"`
	Checklist    string `json:"checklist,omitempty"`
	Message      string `json:"message,omitempty"`
	SystemPrompt string `json:"system_prompt,omitempty"`
}

// AdvanceResponse mirrors the HTTP chat response.
type AdvanceResponse struct {
	AIMessage string        `json:"ai_message" jsonschema_description:"The tutor's reply for this turn"`
	State     *domain.State `json:"state" jsonschema_description:"The updated session state; send it back on the next call"`
	Terminal  bool          `json:"terminal" jsonschema_description:"True once the session reached the output phase"`
}

// ArtifactArgs address the artifacts of one session.
type ArtifactArgs struct {
	SessionID string `json:"session_id,omitempty"`
	State     string `json:"state,omitempty"`
}

// Server exposes the tutor as an MCP server.
type Server struct {
	engine    ports.StatelessEngine
	finalizer *session.Finalizer
	logger    *slog.Logger
	version   string
	mcpServer *server.MCPServer
}

// Option configures the Server.
type Option func(*Server)

// WithFinalizer enables the generate_artifacts and get_artifacts tools.
func WithFinalizer(f *session.Finalizer) Option {
	return func(s *Server) { s.finalizer = f }
}

// WithLogger sets the structured logger. Stdio transports must not log to stdout.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithVersion sets the version announced to clients.
func WithVersion(v string) Option {
	return func(s *Server) { s.version = strings.TrimSpace(v) }
}

// NewServer creates a new MCP Server instance.
func NewServer(engine ports.StatelessEngine, opts ...Option) *Server {
	s := &Server{
		engine:  engine,
		logger:  logging.NewNop(),
		version: "dev",
	}
	for _, opt := range opts {
		opt(s)
	}
	s.mcpServer = server.NewMCPServer("preceptor-mcp", s.version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)
	s.registerTools()
	s.registerResources()
	return s
}

// MCPServer returns the underlying server, for in-process clients.
func (s *Server) MCPServer() *server.MCPServer { return s.mcpServer }

// ServeStdio starts the server on Stdin/Stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// ServeSSE starts the server on the given port using SSE and stops when ctx ends.
func (s *Server) ServeSSE(ctx context.Context, port int) error {
	addr := fmt.Sprintf(":%d", port)
	baseURL := fmt.Sprintf("http://localhost:%d", port)

	sseServer := server.NewSSEServer(s.mcpServer, server.WithBaseURL(baseURL))

	mux := http.NewServeMux()
	mux.Handle("/sse", corsMiddleware(sseServer.SSEHandler()))
	mux.Handle("/message", corsMiddleware(sseServer.MessageHandler()))

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("MCP server listening (SSE)", "address", addr)
		serverErrors <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		s.logger.Info("shutdown signal received, stopping MCP server")
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}
		return nil
	}
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) registerTools() {
	advance := mcp.NewTool("advance_session",
		mcp.WithDescription("Run one tutoring turn. Omit state to start a new session from a checklist."),
		mcp.WithString("state", mcp.Description("JSON object of the session state returned by the previous call")),
		mcp.WithString("checklist", mcp.Description("JSON object of clinical findings, used when starting a session")),
		mcp.WithString("message", mcp.Description("The student's answer to the previous tutor message")),
		mcp.WithString("system_prompt", mcp.Description("Optional persona override, or the name 'tutor'")),
		mcp.WithOutputSchema[AdvanceResponse](),
	)
	s.mcpServer.AddTool(advance, mcp.NewStructuredToolHandler(s.handleAdvance))

	s.mcpServer.AddTool(mcp.NewTool("list_phases",
		mcp.WithDescription("List the clinical reasoning phases in order."),
	), func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		b, _ := json.Marshal(phaseNames())
		return mcp.NewToolResultText(string(b)), nil
	})

	if s.finalizer == nil {
		return
	}

	generate := mcp.NewTool("generate_artifacts",
		mcp.WithDescription("Generate the case report and virtual patient persona for a finished session."),
		mcp.WithString("state", mcp.Required(), mcp.Description("JSON object of a session state in the output phase")),
		mcp.WithOutputSchema[domain.Artifacts](),
	)
	s.mcpServer.AddTool(generate, mcp.NewStructuredToolHandler(s.handleGenerate))

	get := mcp.NewTool("get_artifacts",
		mcp.WithDescription("Fetch previously generated artifacts of a session."),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Session identifier")),
		mcp.WithOutputSchema[domain.Artifacts](),
	)
	s.mcpServer.AddTool(get, mcp.NewStructuredToolHandler(s.handleGetArtifacts))
}

func (s *Server) handleAdvance(ctx context.Context, _ mcp.CallToolRequest, args AdvanceArgs) (AdvanceResponse, error) {
	state, err := s.decodeState(args.State, args.Checklist)
	if err != nil {
		return AdvanceResponse{}, err
	}

	message := args.Message
	if message != "" {
		clean, err := runner.SanitizeInput(message)
		if err != nil {
			s.logger.Warn("MCP advance: input rejected", "err", err, "size", len(message))
			return AdvanceResponse{}, fmt.Errorf("input rejected: %w", err)
		}
		message = clean
	}

	next, reply, err := s.engine.Advance(ctx, state, message, args.SystemPrompt)
	if err != nil {
		s.logger.Warn("MCP advance failed", "session_id", state.SessionID, "phase", state.RawPhase(), "err", err)
		return AdvanceResponse{}, fmt.Errorf("advance failed: %w", err)
	}
	return AdvanceResponse{AIMessage: reply, State: next, Terminal: next.Phase.IsTerminal()}, nil
}

func (s *Server) handleGenerate(ctx context.Context, _ mcp.CallToolRequest, args ArtifactArgs) (domain.Artifacts, error) {
	state, err := s.decodeState(args.State, "")
	if err != nil {
		return domain.Artifacts{}, err
	}
	if state.HasArtifacts() {
		return state.Artifacts(), nil
	}

	arts, err := s.finalizer.Finalize(ctx, state)
	if errors.Is(err, domain.ErrAlreadyFinalized) {
		// Another caller owns the generation; wait for it and return the stored result.
		s.finalizer.Wait()
		arts, err = s.finalizer.Artifacts(ctx, state.SessionID)
	}
	if err != nil {
		return domain.Artifacts{}, fmt.Errorf("generate artifacts: %w", err)
	}
	return arts, nil
}

func (s *Server) handleGetArtifacts(ctx context.Context, _ mcp.CallToolRequest, args ArtifactArgs) (domain.Artifacts, error) {
	if args.SessionID == "" {
		return domain.Artifacts{}, errors.New("session_id is required")
	}
	arts, err := s.finalizer.Artifacts(ctx, args.SessionID)
	if err != nil {
		return domain.Artifacts{}, fmt.Errorf("get artifacts: %w", err)
	}
	return arts, nil
}

// decodeState parses a state argument. A missing or blank state starts a session;
// a state without session_id is keyed by its fingerprint.
func (s *Server) decodeState(rawState, rawChecklist string) (*domain.State, error) {
	state := &domain.State{}
	if strings.TrimSpace(rawState) != "" {
		if err := json.Unmarshal([]byte(rawState), state); err != nil {
			return nil, fmt.Errorf("invalid state: %w", err)
		}
	}
	if !state.IsBlank() {
		if state.SessionID == "" {
			state.SessionID = state.Fingerprint()
		}
		return state, nil
	}

	checklist := state.Checklist
	if strings.TrimSpace(rawChecklist) != "" {
		if err := json.Unmarshal([]byte(rawChecklist), &checklist); err != nil {
			return nil, fmt.Errorf("invalid checklist: %w", err)
		}
	}
	id := state.SessionID
	if id == "" {
		id = uuid.NewString()
	}
	return s.engine.Start(id, checklist), nil
}

func (s *Server) registerResources() {
	s.mcpServer.AddResource(mcp.NewResource(PhasesURI, "Clinical Reasoning Phases",
		mcp.WithResourceDescription("Phase order and the prompt template of each tutoring phase"),
		mcp.WithMIMEType(defaultMIMEJSON),
	), func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		type phaseDoc struct {
			Name     string `json:"name"`
			Template string `json:"template,omitempty"`
			Terminal bool   `json:"terminal,omitempty"`
		}
		docs := make([]phaseDoc, 0, domain.NumPhases)
		for _, p := range domain.Sequence() {
			tmpl, _ := catalog.Template(p)
			docs = append(docs, phaseDoc{Name: p.String(), Template: tmpl, Terminal: p.IsTerminal()})
		}
		b, err := json.Marshal(docs)
		if err != nil {
			return nil, err
		}
		return []mcp.ResourceContents{
			mcp.TextResourceContents{URI: PhasesURI, MIMEType: defaultMIMEJSON, Text: string(b)},
		}, nil
	})

	s.mcpServer.AddResource(mcp.NewResource(TutorPromptURI, "Tutor System Prompt",
		mcp.WithMIMEType("text/plain"),
	), func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		return []mcp.ResourceContents{
			mcp.TextResourceContents{URI: TutorPromptURI, MIMEType: "text/plain", Text: catalog.TutorSystemPrompt},
		}, nil
	})
}

func phaseNames() []string {
	seq := domain.Sequence()
	names := make([]string, len(seq))
	for i, p := range seq {
		names[i] = p.String()
	}
	return names
}
