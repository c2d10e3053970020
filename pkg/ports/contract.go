package ports

import (
	"context"
	"testing"
	"time"

	"github.com/aretw0/preceptor/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunStateStoreContract runs a suite of tests to verify that a StateStore implementation
// adheres to the defined interface contract.
func RunStateStoreContract(t *testing.T, store StateStore) {
	ctx := context.Background()
	sessionID := "contract-test-session-" + time.Now().Format("20060102150405")

	t.Run("Save and Load", func(t *testing.T) {
		state := domain.NewState(sessionID, map[string]any{"symptoms": []any{"fever"}})
		state.Phase = domain.PhaseLead
		state.History = append(state.History,
			domain.TutorPrompt("prompt"),
			domain.TutorResponse("response"),
			domain.StudentResponse("answer"),
		)

		err := store.Save(ctx, sessionID, state)
		require.NoError(t, err, "Save should not return error")

		loaded, err := store.Load(ctx, sessionID)
		require.NoError(t, err, "Load should not return error")
		assert.Equal(t, domain.PhaseLead, loaded.Phase)
		assert.Equal(t, state.History, loaded.History)
		assert.Equal(t, []any{"fever"}, loaded.Checklist["symptoms"])
	})

	t.Run("Load returns a copy", func(t *testing.T) {
		state := domain.NewState(sessionID, nil)
		require.NoError(t, store.Save(ctx, sessionID, state))

		loaded, err := store.Load(ctx, sessionID)
		require.NoError(t, err)
		loaded.History = append(loaded.History, domain.TutorPrompt("local only"))

		again, err := store.Load(ctx, sessionID)
		require.NoError(t, err)
		assert.Empty(t, again.History)
	})

	t.Run("Load Non-Existent", func(t *testing.T) {
		_, err := store.Load(ctx, "non-existent-"+sessionID)
		assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	})

	t.Run("Delete", func(t *testing.T) {
		err := store.Save(ctx, sessionID, domain.NewState(sessionID, nil))
		require.NoError(t, err)

		err = store.Delete(ctx, sessionID)
		require.NoError(t, err, "Delete should not return error")

		_, err = store.Load(ctx, sessionID)
		assert.ErrorIs(t, err, domain.ErrSessionNotFound, "Load after Delete should return ErrSessionNotFound")
	})

	t.Run("List", func(t *testing.T) {
		id1 := sessionID + "-1"
		id2 := sessionID + "-2"
		_ = store.Save(ctx, id1, domain.NewState(id1, nil))
		_ = store.Save(ctx, id2, domain.NewState(id2, nil))

		defer func() {
			_ = store.Delete(ctx, id1)
			_ = store.Delete(ctx, id2)
		}()

		sessions, err := store.List(ctx)
		require.NoError(t, err)
		assert.Contains(t, sessions, id1)
		assert.Contains(t, sessions, id2)
	})
}

// RunArtifactStoreContract verifies overwrite semantics of an ArtifactStore.
func RunArtifactStoreContract(t *testing.T, store ArtifactStore) {
	ctx := context.Background()
	sessionID := "contract-artifacts-" + time.Now().Format("20060102150405")

	t.Run("Save and Load", func(t *testing.T) {
		want := domain.Artifacts{Report: "first report", VirtualPatient: "first persona"}
		require.NoError(t, store.Save(ctx, sessionID, want))

		got, err := store.Load(ctx, sessionID)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	})

	t.Run("Overwrite", func(t *testing.T) {
		want := domain.Artifacts{Report: "second report", VirtualPatient: "second persona"}
		require.NoError(t, store.Save(ctx, sessionID, want))

		got, err := store.Load(ctx, sessionID)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	})
}

// RunClaimerContract verifies that a key is granted once until released.
func RunClaimerContract(t *testing.T, claimer Claimer) {
	ctx := context.Background()
	key := "contract-claim-" + time.Now().Format("20060102150405")

	ok, err := claimer.Claim(ctx, key, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok, "first claim should succeed")

	ok, err = claimer.Claim(ctx, key, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "second claim should be refused")

	require.NoError(t, claimer.Release(ctx, key))

	ok, err = claimer.Claim(ctx, key, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok, "claim after release should succeed")
	_ = claimer.Release(ctx, key)
}
