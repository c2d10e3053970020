package preceptor_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/preceptor"
	"github.com/aretw0/preceptor/pkg/adapters/memory"
	"github.com/aretw0/preceptor/pkg/catalog"
	"github.com/aretw0/preceptor/pkg/domain"
	"github.com/aretw0/preceptor/pkg/ports"
)

func TestNew_RequiresGateway(t *testing.T) {
	_, err := preceptor.New(nil)
	assert.Error(t, err)
}

func TestEngine_SessionAndArtifacts(t *testing.T) {
	tutor := memory.NewEchoGateway()
	writer := memory.NewScriptedGateway("Final report.", "I am Rui, 58, and I get breathless on stairs.")

	var entered []domain.Phase
	eng, err := preceptor.New(tutor,
		preceptor.WithArtifactGateway(writer),
		preceptor.WithSystemPrompt("tutor"),
		preceptor.WithLifecycleHooks(domain.LifecycleHooks{
			OnPhaseEnter: func(_ context.Context, e *domain.PhaseEvent) { entered = append(entered, e.Phase) },
		}),
	)
	require.NoError(t, err)

	ctx := context.Background()
	state := eng.Start("facade-1", map[string]any{"smoker": true})
	for !state.Phase.IsTerminal() {
		state, _, err = eng.Advance(ctx, state, "answer", "")
		require.NoError(t, err)
	}
	assert.Equal(t, domain.Sequence(), entered)
	assert.Equal(t, catalog.TutorSystemPrompt, tutor.Calls()[0].SystemPrompt)

	arts, err := eng.Generate(ctx, state)
	require.NoError(t, err)
	assert.Equal(t, "Final report.", arts.Report)
	assert.Contains(t, arts.VirtualPatient, "Rui")
	assert.Len(t, writer.Calls(), 2)
}

func TestEngine_PhaseRecovery(t *testing.T) {
	bad := domain.NewState("r", nil)
	bad.SetRawPhase("triage")

	strict, err := preceptor.New(memory.NewEchoGateway())
	require.NoError(t, err)
	_, _, err = strict.Advance(context.Background(), bad, "", "")
	assert.ErrorIs(t, err, domain.ErrUnknownPhase)

	lenient, err := preceptor.New(memory.NewEchoGateway(), preceptor.WithPhaseRecovery(true))
	require.NoError(t, err)
	next, _, err := lenient.Advance(context.Background(), bad, "", "")
	require.NoError(t, err)
	assert.True(t, next.Recovered)
	assert.Equal(t, domain.PhaseOutputs, next.Phase)
}

func TestEngine_GatewayFailure(t *testing.T) {
	eng, err := preceptor.New(ports.GatewayFunc(func(context.Context, ports.CompletionRequest) (string, error) {
		return "", errors.New("down")
	}))
	require.NoError(t, err)

	state := eng.Start("g", nil)
	_, _, err = eng.Advance(context.Background(), state, "", "")
	assert.ErrorIs(t, err, domain.ErrGatewayUnavailable)
	assert.Empty(t, state.History)
}

func TestVersion(t *testing.T) {
	assert.NotEmpty(t, preceptor.Version)
	assert.NotContains(t, preceptor.Version, "\n")
}

var _ ports.StatelessEngine = (*preceptor.Engine)(nil)
