package mcp

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/preceptor/internal/runtime"
	"github.com/aretw0/preceptor/pkg/adapters/memory"
	"github.com/aretw0/preceptor/pkg/domain"
	"github.com/aretw0/preceptor/pkg/session"
)

type stubGenerator struct{ calls int }

func (g *stubGenerator) Generate(_ context.Context, s *domain.State) (domain.Artifacts, error) {
	g.calls++
	return domain.Artifacts{Report: "report " + s.SessionID, VirtualPatient: "persona"}, nil
}

func newTestServer(gen *stubGenerator) *Server {
	engine := runtime.NewEngine(memory.NewEchoGateway())
	if gen == nil {
		return NewServer(engine)
	}
	return NewServer(engine, WithFinalizer(
		session.NewFinalizer(gen, memory.NewArtifactStore(), memory.NewClaimer()),
	))
}

func call(t *testing.T, s *Server, method string, params any) string {
	t.Helper()
	raw, err := json.Marshal(map[string]any{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  method,
		"params":  params,
	})
	require.NoError(t, err)
	resp := s.MCPServer().HandleMessage(context.Background(), raw)
	out, err := json.Marshal(resp)
	require.NoError(t, err)
	return string(out)
}

func TestAdvance_StartsAndRunsToOutputs(t *testing.T) {
	s := newTestServer(nil)
	ctx := context.Background()

	resp, err := s.handleAdvance(ctx, mcp.CallToolRequest{}, AdvanceArgs{Checklist: `{"spo2": 91}`})
	require.NoError(t, err)
	assert.Equal(t, domain.PhaseDifferential, resp.State.Phase)
	assert.NotEmpty(t, resp.State.SessionID)
	assert.Contains(t, resp.State.History[0].Content, "91")
	assert.False(t, resp.Terminal)

	for !resp.Terminal {
		raw, err := json.Marshal(resp.State)
		require.NoError(t, err)
		resp, err = s.handleAdvance(ctx, mcp.CallToolRequest{}, AdvanceArgs{State: string(raw), Message: "my answer"})
		require.NoError(t, err)
	}
	assert.Equal(t, domain.PhaseOutputs, resp.State.Phase)
	// No message on the first turn, none kept at final_feedback: 2 + 5*3 + 2.
	assert.Len(t, resp.State.History, 19)

	raw, _ := json.Marshal(resp.State)
	_, err = s.handleAdvance(ctx, mcp.CallToolRequest{}, AdvanceArgs{State: string(raw)})
	assert.ErrorIs(t, err, domain.ErrSessionComplete)
}

func TestAdvance_RejectsBadInput(t *testing.T) {
	s := newTestServer(nil)

	_, err := s.handleAdvance(context.Background(), mcp.CallToolRequest{}, AdvanceArgs{State: "{not json"})
	assert.Error(t, err)

	_, err = s.handleAdvance(context.Background(), mcp.CallToolRequest{}, AdvanceArgs{State: `{"phase":"triage"}`})
	assert.ErrorIs(t, err, domain.ErrUnknownPhase)

	_, err = s.handleAdvance(context.Background(), mcp.CallToolRequest{}, AdvanceArgs{Message: "\xff\xfe"})
	assert.Error(t, err)
}

func TestGenerateArtifacts(t *testing.T) {
	gen := &stubGenerator{}
	s := newTestServer(gen)
	ctx := context.Background()

	state := domain.NewState("mcp-1", nil)
	state.Phase = domain.PhaseOutputs
	raw, _ := json.Marshal(state)

	arts, err := s.handleGenerate(ctx, mcp.CallToolRequest{}, ArtifactArgs{State: string(raw)})
	require.NoError(t, err)
	assert.Equal(t, "report mcp-1", arts.Report)

	again, err := s.handleGenerate(ctx, mcp.CallToolRequest{}, ArtifactArgs{State: string(raw)})
	require.NoError(t, err)
	assert.Equal(t, arts, again)
	assert.Equal(t, 1, gen.calls)

	stored, err := s.handleGetArtifacts(ctx, mcp.CallToolRequest{}, ArtifactArgs{SessionID: "mcp-1"})
	require.NoError(t, err)
	assert.Equal(t, arts, stored)

	_, err = s.handleGetArtifacts(ctx, mcp.CallToolRequest{}, ArtifactArgs{SessionID: "other"})
	assert.ErrorIs(t, err, domain.ErrArtifactsNotFound)
}

func TestGenerateArtifacts_WithoutSessionID(t *testing.T) {
	gen := &stubGenerator{}
	s := newTestServer(gen)
	ctx := context.Background()

	raw := `{"checklist":{"a":1},"phase":"outputs","history":[{"role":"human","content":"prompt"}]}`

	first, err := s.handleGenerate(ctx, mcp.CallToolRequest{}, ArtifactArgs{State: raw})
	require.NoError(t, err)
	second, err := s.handleGenerate(ctx, mcp.CallToolRequest{}, ArtifactArgs{State: raw})
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, gen.calls)

	var state domain.State
	require.NoError(t, json.Unmarshal([]byte(raw), &state))
	stored, err := s.handleGetArtifacts(ctx, mcp.CallToolRequest{}, ArtifactArgs{SessionID: state.Fingerprint()})
	require.NoError(t, err)
	assert.Equal(t, first, stored)
}

func TestGenerateArtifacts_NotTerminal(t *testing.T) {
	s := newTestServer(&stubGenerator{})
	raw, _ := json.Marshal(domain.NewState("mcp-2", nil))

	_, err := s.handleGenerate(context.Background(), mcp.CallToolRequest{}, ArtifactArgs{State: string(raw)})
	assert.ErrorIs(t, err, domain.ErrNotTerminal)
}

func TestProtocol_ToolsAndResources(t *testing.T) {
	s := newTestServer(nil)

	tools := call(t, s, "tools/list", map[string]any{})
	assert.Contains(t, tools, "advance_session")
	assert.Contains(t, tools, "list_phases")
	assert.NotContains(t, tools, "generate_artifacts")

	phases := call(t, s, "tools/call", map[string]any{"name": "list_phases", "arguments": map[string]any{}})
	assert.Contains(t, phases, `final_feedback`)

	res := call(t, s, "resources/read", map[string]any{"uri": PhasesURI})
	assert.Contains(t, res, "summary")
	assert.Contains(t, res, "{checklist}")

	res = call(t, s, "resources/read", map[string]any{"uri": TutorPromptURI})
	assert.Contains(t, res, "clinical reasoning")
}
