package memory_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aretw0/preceptor/pkg/adapters/memory"
	"github.com/aretw0/preceptor/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_Contract(t *testing.T) {
	store := memory.NewStore()
	ports.RunStateStoreContract(t, store)
}

func TestMemoryArtifactStore_Contract(t *testing.T) {
	ports.RunArtifactStoreContract(t, memory.NewArtifactStore())
}

func TestMemoryClaimer_Contract(t *testing.T) {
	ports.RunClaimerContract(t, memory.NewClaimer())
}

func TestMemoryClaimer_Expiry(t *testing.T) {
	c := memory.NewClaimer()
	ctx := context.Background()

	ok, err := c.Claim(ctx, "k", time.Nanosecond)
	require.NoError(t, err)
	require.True(t, ok)

	time.Sleep(time.Millisecond)
	ok, err = c.Claim(ctx, "k", 0)
	require.NoError(t, err)
	assert.True(t, ok, "expired claim should be re-granted")
}

func TestScriptedGateway(t *testing.T) {
	g := memory.NewScriptedGateway("one", "two")
	ctx := context.Background()

	out, err := g.Complete(ctx, ports.CompletionRequest{Prompt: "a"})
	require.NoError(t, err)
	assert.Equal(t, "one", out)

	g.FailNext(errors.New("down"))
	_, err = g.Complete(ctx, ports.CompletionRequest{Prompt: "b"})
	assert.EqualError(t, err, "down")

	out, err = g.Complete(ctx, ports.CompletionRequest{Prompt: "c"})
	require.NoError(t, err)
	assert.Equal(t, "two", out)

	_, err = g.Complete(ctx, ports.CompletionRequest{Prompt: "d"})
	assert.ErrorIs(t, err, memory.ErrScriptExhausted)

	assert.Len(t, g.Calls(), 4)
}

func TestEchoGateway(t *testing.T) {
	g := memory.NewEchoGateway()
	out, err := g.Complete(context.Background(), ports.CompletionRequest{Prompt: "\n  Ask the student.\nmore"})
	require.NoError(t, err)
	assert.Equal(t, "[offline] Ask the student.", out)
}
