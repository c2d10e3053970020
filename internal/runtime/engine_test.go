package runtime_test

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/aretw0/preceptor/internal/runtime"
	"github.com/aretw0/preceptor/pkg/adapters/memory"
	"github.com/aretw0/preceptor/pkg/catalog"
	"github.com/aretw0/preceptor/pkg/domain"
	"github.com/aretw0/preceptor/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scenarioChecklist() map[string]any {
	return map[string]any{
		"symptoms": []any{"fever", "cough"},
		"vitals":   map[string]any{"temp": 38.5},
	}
}

func TestAdvance_FirstTurnWithoutUserMessage(t *testing.T) {
	gw := memory.NewScriptedGateway("Please summarize the case.")
	engine := runtime.NewEngine(gw)

	state := engine.Start("s1", scenarioChecklist())
	next, reply, err := engine.Advance(context.Background(), state, "", "")
	require.NoError(t, err)

	assert.Equal(t, "Please summarize the case.", reply)
	assert.Equal(t, domain.PhaseDifferential, next.Phase)
	require.Len(t, next.History, 2)

	assert.Equal(t, domain.KindTutorPrompt, next.History[0].Kind)
	assert.Contains(t, next.History[0].Content, `"symptoms"`)
	assert.Contains(t, next.History[0].Content, `"temp": 38.5`)
	assert.Equal(t, domain.TutorResponse("Please summarize the case."), next.History[1])

	// The input is untouched.
	assert.Equal(t, domain.PhaseSummary, state.Phase)
	assert.Empty(t, state.History)
}

func TestAdvance_UsesLastEntryInNextPrompt(t *testing.T) {
	gw := memory.NewScriptedGateway("q1", "q2")
	engine := runtime.NewEngine(gw)

	state := engine.Start("s1", scenarioChecklist())
	state, _, err := engine.Advance(context.Background(), state, "febrile cough for 3 days", "")
	require.NoError(t, err)
	_, _, err = engine.Advance(context.Background(), state, "pneumonia, bronchitis", "")
	require.NoError(t, err)

	calls := gw.Calls()
	require.Len(t, calls, 2)
	assert.Contains(t, calls[1].Prompt, "Student reasoning so far: febrile cough for 3 days")
}

func TestAdvance_HistoryGrowsThreePerTurn(t *testing.T) {
	engine := runtime.NewEngine(memory.NewEchoGateway())
	state := engine.Start("s1", scenarioChecklist())

	for n := 1; n <= 6; n++ {
		next, _, err := engine.Advance(context.Background(), state, "answer", "")
		require.NoError(t, err)
		assert.Len(t, next.History, 3*n)
		assert.Equal(t, state.History, next.History[:len(state.History)], "history must only be appended")
		state = next
	}
	assert.Equal(t, domain.PhaseFinalFeedback, state.Phase)

	final, _, err := engine.Advance(context.Background(), state, "ignored", "")
	require.NoError(t, err)
	assert.Len(t, final.History, 3*6+2)
	assert.Equal(t, domain.PhaseOutputs, final.Phase)
	for _, msg := range final.History[18:] {
		assert.NotEqual(t, "ignored", msg.Content)
	}
}

func TestAdvance_ClampsAtOutputs(t *testing.T) {
	gw := memory.NewEchoGateway()
	engine := runtime.NewEngine(gw)
	state := engine.Start("s1", nil)

	var seen []domain.Phase
	for i := 0; i < len(domain.Sequence())-1; i++ {
		next, _, err := engine.Advance(context.Background(), state, "", "")
		require.NoError(t, err)
		seen = append(seen, next.Phase)
		state = next
	}
	assert.Equal(t, domain.Sequence()[1:], seen)

	again, reply, err := engine.Advance(context.Background(), state, "hello", "")
	assert.ErrorIs(t, err, domain.ErrSessionComplete)
	assert.Nil(t, again)
	assert.Empty(t, reply)
	assert.Len(t, gw.Calls(), len(domain.Sequence())-1, "no gateway call once complete")
}

func TestAdvance_GatewayFailureLeavesStateUntouched(t *testing.T) {
	gw := memory.NewScriptedGateway("q1")
	engine := runtime.NewEngine(gw)

	state, _, err := engine.Advance(context.Background(), engine.Start("s1", scenarioChecklist()), "x", "")
	require.NoError(t, err)

	before, err := json.Marshal(state)
	require.NoError(t, err)

	gw.FailNext(errors.New("connection reset"))
	next, reply, err := engine.Advance(context.Background(), state, "y", "")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrGatewayUnavailable)
	assert.Nil(t, next)
	assert.Empty(t, reply)

	var gwErr *domain.GatewayError
	require.ErrorAs(t, err, &gwErr)
	assert.Equal(t, "diff", gwErr.Operation)

	after, err := json.Marshal(state)
	require.NoError(t, err)
	assert.Equal(t, string(before), string(after))
}

func TestAdvance_EmptyResponseIsGatewayUnavailable(t *testing.T) {
	engine := runtime.NewEngine(memory.NewScriptedGateway("   \n"))
	state := engine.Start("s1", nil)

	next, _, err := engine.Advance(context.Background(), state, "", "")
	assert.ErrorIs(t, err, domain.ErrGatewayUnavailable)
	assert.Nil(t, next)
	assert.Equal(t, domain.PhaseSummary, state.Phase)
}

func TestAdvance_NilGateway(t *testing.T) {
	engine := runtime.NewEngine(nil)
	_, _, err := engine.Advance(context.Background(), engine.Start("s1", nil), "", "")
	assert.ErrorIs(t, err, domain.ErrGatewayUnavailable)
}

func TestAdvance_CancelledContext(t *testing.T) {
	engine := runtime.NewEngine(memory.NewEchoGateway())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := engine.Advance(ctx, engine.Start("s1", nil), "", "")
	assert.ErrorIs(t, err, domain.ErrGatewayUnavailable)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestAdvance_UnknownPhase(t *testing.T) {
	corrupt := domain.NewState("s1", nil)
	corrupt.SetRawPhase("triage")

	t.Run("strict rejects", func(t *testing.T) {
		gw := memory.NewEchoGateway()
		engine := runtime.NewEngine(gw)

		next, _, err := engine.Advance(context.Background(), corrupt, "", "")
		assert.ErrorIs(t, err, domain.ErrUnknownPhase)
		var upErr *domain.UnknownPhaseError
		require.ErrorAs(t, err, &upErr)
		assert.Equal(t, "triage", upErr.Value)
		assert.Nil(t, next)
		assert.Empty(t, gw.Calls())
	})

	t.Run("clamp recovers to outputs", func(t *testing.T) {
		gw := memory.NewEchoGateway()
		var recovered []string
		engine := runtime.NewEngine(gw,
			runtime.WithPhaseRecovery(runtime.RecoverClampToLast),
			runtime.WithLifecycleHooks(domain.LifecycleHooks{
				OnPhaseRecovered: func(_ context.Context, e *domain.PhaseEvent) {
					recovered = append(recovered, e.Raw)
				},
			}),
		)

		next, reply, err := engine.Advance(context.Background(), corrupt, "", "")
		require.NoError(t, err)
		assert.Empty(t, reply)
		assert.Equal(t, domain.PhaseOutputs, next.Phase)
		assert.True(t, next.Recovered)
		assert.Equal(t, []string{"triage"}, recovered)
		assert.Empty(t, gw.Calls())
		assert.False(t, corrupt.Recovered)
	})
}

func TestAdvance_GenerationParameters(t *testing.T) {
	tests := []struct {
		name     string
		opts     []runtime.EngineOption
		override string
		want     string
	}{
		{name: "default persona", want: catalog.DefaultSystemPrompt},
		{name: "named override", override: "tutor", want: catalog.TutorSystemPrompt},
		{name: "verbatim override", override: "Be terse.", want: "Be terse."},
		{
			name: "engine default",
			opts: []runtime.EngineOption{runtime.WithDefaultSystemPrompt("House persona")},
			want: "House persona",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gw := memory.NewEchoGateway()
			engine := runtime.NewEngine(gw, tt.opts...)

			_, _, err := engine.Advance(context.Background(), engine.Start("s1", nil), "", tt.override)
			require.NoError(t, err)

			calls := gw.Calls()
			require.Len(t, calls, 1)
			assert.Equal(t, tt.want, calls[0].SystemPrompt)
			assert.Equal(t, runtime.DefaultMaxTokens, calls[0].MaxTokens)
			assert.Zero(t, calls[0].Temperature)
			assert.Empty(t, calls[0].History)
		})
	}
}

func TestAdvance_FinalFeedbackPromptHasNoChecklist(t *testing.T) {
	gw := memory.NewEchoGateway()
	engine := runtime.NewEngine(gw)

	state := domain.NewState("s1", map[string]any{"secret": "value"})
	state.Phase = domain.PhaseFinalFeedback
	state.History = []domain.Message{domain.StudentResponse("I would order a chest x-ray.")}

	_, _, err := engine.Advance(context.Background(), state, "", "")
	require.NoError(t, err)

	prompt := gw.Calls()[0].Prompt
	assert.Contains(t, prompt, "I would order a chest x-ray.")
	assert.NotContains(t, prompt, "secret")
	assert.False(t, strings.Contains(prompt, catalog.PlaceholderLast))
}

func TestEngine_LifecycleHooks(t *testing.T) {
	var mu sync.Mutex
	var events []string
	record := func(s string) {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, s)
	}

	gw := memory.NewScriptedGateway("ok")
	engine := runtime.NewEngine(gw, runtime.WithLifecycleHooks(domain.LifecycleHooks{
		OnPhaseEnter: func(_ context.Context, e *domain.PhaseEvent) { record("enter:" + e.Phase.String()) },
		OnPhaseLeave: func(_ context.Context, e *domain.PhaseEvent) { record("leave:" + e.Phase.String()) },
		OnGatewayCall: func(_ context.Context, e *domain.GatewayEvent) {
			record("call:" + e.Operation)
		},
		OnGatewayReturn: func(_ context.Context, e *domain.GatewayEvent) {
			if e.IsError {
				record("return-error:" + e.Operation)
				return
			}
			record("return:" + e.Operation)
		},
	}))

	state := engine.Start("s1", nil)
	_, _, err := engine.Advance(context.Background(), state, "", "")
	require.NoError(t, err)
	_, _, err = engine.Advance(context.Background(), state, "", "")
	require.Error(t, err)

	assert.Equal(t, []string{
		"enter:summary",
		"call:summary", "return:summary", "leave:summary", "enter:diff",
		"call:summary", "return-error:summary",
	}, events)
}

func TestEngine_SatisfiesPort(t *testing.T) {
	var _ ports.StatelessEngine = runtime.NewEngine(nil)
}
