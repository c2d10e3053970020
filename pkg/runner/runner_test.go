package runner

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/preceptor/internal/runtime"
	"github.com/aretw0/preceptor/pkg/adapters/memory"
	"github.com/aretw0/preceptor/pkg/domain"
)

type stubGenerator struct{ calls int }

func (g *stubGenerator) Generate(_ context.Context, s *domain.State) (domain.Artifacts, error) {
	g.calls++
	return domain.Artifacts{Report: "Report for " + s.SessionID, VirtualPatient: "I am Ana, 61."}, nil
}

func newTextRunner(input string, out *bytes.Buffer, opts ...Option) *Runner {
	base := []Option{
		WithInputHandler(NewTextHandler(strings.NewReader(input), out)),
		WithSessionID("run-1"),
	}
	return NewRunner(append(base, opts...)...)
}

func TestRun_FullSession(t *testing.T) {
	var out bytes.Buffer
	store := memory.NewStore()
	gen := &stubGenerator{}
	r := newTextRunner("a1\na2\na3\na4\na5\n", &out, WithStore(store), WithGenerator(gen))

	final, err := r.Run(context.Background(), runtime.NewEngine(memory.NewEchoGateway()), nil)
	require.NoError(t, err)

	assert.Equal(t, domain.PhaseOutputs, final.Phase)
	// The kickoff turn carries no answer, and final feedback ignores one.
	assert.Len(t, final.History, 19)
	assert.Equal(t, "Report for run-1", final.Report)
	assert.Equal(t, 1, gen.calls)

	saved, err := store.Load(context.Background(), "run-1")
	require.NoError(t, err)
	assert.Equal(t, "I am Ana, 61.", saved.VirtualPatient)

	text := out.String()
	for _, p := range []string{"[summary]", "[diff]", "[plan]", "[final_feedback]"} {
		assert.Contains(t, text, p)
	}
	assert.Contains(t, text, "## Case report")
	assert.Contains(t, text, "I am Ana, 61.")
	// Five answers were read; final feedback asks for none.
	assert.Equal(t, 5, strings.Count(text, "> "))
}

func TestRun_StopsOnExitAndEOF(t *testing.T) {
	ctx := context.Background()
	engine := runtime.NewEngine(memory.NewEchoGateway())

	var out bytes.Buffer
	store := memory.NewStore()
	state, err := newTextRunner("a1\nexit\n", &out, WithStore(store)).Run(ctx, engine, nil)
	require.NoError(t, err)
	assert.Equal(t, domain.PhaseLead, state.Phase)

	saved, err := store.Load(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, domain.PhaseLead, saved.Phase)

	state, err = newTextRunner("", &out).Run(ctx, engine, nil)
	require.NoError(t, err)
	assert.Equal(t, domain.PhaseDifferential, state.Phase)
}

func TestRun_Resume(t *testing.T) {
	var out bytes.Buffer
	engine := runtime.NewEngine(memory.NewEchoGateway())

	state := engine.Start("run-1", map[string]any{"age": 70})
	state, _, err := engine.Advance(context.Background(), state, "", "")
	require.NoError(t, err)

	final, err := newTextRunner("my differential\nquit\n", &out).Run(context.Background(), engine, state)
	require.NoError(t, err)

	assert.Contains(t, out.String(), "Resuming session run-1 at phase diff")
	assert.Equal(t, domain.PhaseLead, final.Phase)
	assert.Equal(t, "my differential", final.History[len(final.History)-1].Content)
}

func TestRun_GatewayFailure(t *testing.T) {
	t.Run("interactive retries", func(t *testing.T) {
		var out bytes.Buffer
		gw := memory.NewEchoGateway()
		gw.FailNext(errors.New("503"))

		state, err := newTextRunner("\nexit\n", &out).Run(context.Background(), runtime.NewEngine(gw), nil)
		require.NoError(t, err)
		assert.Contains(t, out.String(), "The tutor is unavailable")
		assert.Equal(t, domain.PhaseDifferential, state.Phase)
	})

	t.Run("headless fails", func(t *testing.T) {
		var out bytes.Buffer
		gw := memory.NewEchoGateway()
		gw.FailNext(errors.New("503"))

		state, err := newTextRunner("", &out, WithHeadless(true)).Run(context.Background(), runtime.NewEngine(gw), nil)
		assert.ErrorIs(t, err, domain.ErrGatewayUnavailable)
		assert.Equal(t, domain.PhaseSummary, state.Phase)
		assert.Empty(t, state.History)
	})
}

func TestRun_Interrupted(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var out bytes.Buffer
	_, err := newTextRunner("", &out).Run(ctx, runtime.NewEngine(memory.NewEchoGateway()), nil)
	assert.ErrorIs(t, err, ErrInterrupted)
}

func TestRun_CompletedSessionShowsArtifacts(t *testing.T) {
	var out bytes.Buffer
	gen := &stubGenerator{}
	state := domain.NewState("done", nil)
	state.Phase = domain.PhaseOutputs
	state.Report = "stored report"
	state.VirtualPatient = "stored persona"

	final, err := newTextRunner("", &out, WithGenerator(gen)).Run(context.Background(), runtime.NewEngine(nil), state)
	require.NoError(t, err)
	assert.Equal(t, state, final)
	assert.Zero(t, gen.calls)
	assert.Contains(t, out.String(), "stored persona")
}

func TestRun_JSONHandler(t *testing.T) {
	input := "\"a1\"\n{\"message\":\"a2\"}\na3\n\"a4\"\n\"a5\"\n"
	var out bytes.Buffer
	r := NewRunner(
		WithInputHandler(NewJSONHandler(strings.NewReader(input), &out)),
		WithHeadless(true),
		WithGenerator(&stubGenerator{}),
		WithChecklist(map[string]any{"cough": true}),
	)

	final, err := r.Run(context.Background(), runtime.NewEngine(memory.NewEchoGateway()), nil)
	require.NoError(t, err)
	assert.Equal(t, "a1", final.History[4].Content)
	assert.Equal(t, "a2", final.History[7].Content)
	assert.Equal(t, "a3", final.History[10].Content)

	var types []string
	scanner := bufio.NewScanner(&out)
	for scanner.Scan() {
		var line map[string]any
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &line))
		types = append(types, line["type"].(string))
		if line["type"] == "turn" && line["phase"] == "plan" {
			assert.Equal(t, "final_feedback", line["next"])
			assert.Equal(t, false, line["needs_input"])
		}
	}
	require.Len(t, types, 9)
	assert.Equal(t, "system", types[7])
	assert.Equal(t, "artifacts", types[8])
}

func TestTextHandler_RejectsThenAccepts(t *testing.T) {
	var out bytes.Buffer
	h := NewTextHandler(strings.NewReader("\xff\nok\n"), &out, WithTextHandlerRenderer(func(s string) (string, error) {
		return strings.ToUpper(s), nil
	}))

	got, err := h.Input(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.Contains(t, out.String(), "Please try again")

	require.NoError(t, h.Output(context.Background(), Turn{Phase: domain.PhaseLead, Message: "which diagnosis leads?"}))
	assert.Contains(t, out.String(), "WHICH DIAGNOSIS LEADS?")
}
