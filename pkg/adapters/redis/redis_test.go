package redis_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	backend "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/preceptor/pkg/adapters/redis"
	"github.com/aretw0/preceptor/pkg/domain"
	"github.com/aretw0/preceptor/pkg/ports"
)

func setup(t *testing.T) (*miniredis.Miniredis, *backend.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := backend.NewClient(&backend.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestRedisStore_Contract(t *testing.T) {
	_, client := setup(t)
	ports.RunStateStoreContract(t, redis.NewFromClient(client))
}

func TestRedisArtifactStore_Contract(t *testing.T) {
	_, client := setup(t)
	ports.RunArtifactStoreContract(t, redis.NewArtifactStore(client, "test:", 0))
}

func TestRedisClaimer_Contract(t *testing.T) {
	_, client := setup(t)
	ports.RunClaimerContract(t, redis.NewClaimer(client, "test:"))
}

func TestRedisStore_TTLExpiresSession(t *testing.T) {
	mr, client := setup(t)
	store := redis.NewFromClient(client, redis.WithTTL(time.Second), redis.WithPrefix("t:"))
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, "s1", domain.NewState("s1", nil)))
	assert.True(t, mr.Exists("t:session:s1"))

	mr.FastForward(2 * time.Second)
	_, err := store.Load(ctx, "s1")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestRedisStore_KeepsUnknownPhase(t *testing.T) {
	mr, client := setup(t)
	store := redis.NewFromClient(client)
	require.NoError(t, mr.Set(redis.DefaultPrefix+"session:x", `{"phase":"triage","history":[{"type":"ai","content":"hi"}]}`))

	state, err := store.Load(context.Background(), "x")
	require.NoError(t, err)
	assert.False(t, state.Phase.Valid())
	assert.Equal(t, "triage", state.RawPhase())
	assert.Equal(t, domain.RoleAI, state.History[0].Role)
}

func TestRedisArtifactStore_Missing(t *testing.T) {
	_, client := setup(t)
	_, err := redis.NewArtifactStore(client, "test:", time.Hour).Load(context.Background(), "none")
	assert.ErrorIs(t, err, domain.ErrArtifactsNotFound)
}

func TestRedisLocker_LockUnlock(t *testing.T) {
	mr, client := setup(t)
	locker := redis.NewLocker(client, "test:")
	ctx := context.Background()

	unlock, err := locker.Lock(ctx, "resource1", 5*time.Second)
	require.NoError(t, err)
	assert.True(t, mr.Exists("test:lock:resource1"), "lock key should be set in Redis")

	require.NoError(t, unlock(ctx))
	assert.False(t, mr.Exists("test:lock:resource1"), "lock key should be removed after unlock")
}

func TestRedisLocker_Contention(t *testing.T) {
	mr, client := setup(t)
	locker1 := redis.NewLocker(client, "test:")
	locker2 := redis.NewLocker(client, "test:")
	ctx := context.Background()

	unlock1, err := locker1.Lock(ctx, "shared", 5*time.Second)
	require.NoError(t, err)

	ctxTimeout, cancel := context.WithTimeout(ctx, 300*time.Millisecond)
	defer cancel()
	_, err = locker2.Lock(ctxTimeout, "shared", 5*time.Second)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	require.NoError(t, unlock1(ctx))

	unlock2, err := locker2.Lock(ctx, "shared", 5*time.Second)
	require.NoError(t, err)
	defer func() { _ = unlock2(ctx) }()
	assert.True(t, mr.Exists("test:lock:shared"))
}

func TestRedisLocker_StaleUnlockKeepsNewOwner(t *testing.T) {
	mr, client := setup(t)
	locker := redis.NewLocker(client, "test:")
	ctx := context.Background()

	unlockOld, err := locker.Lock(ctx, "k", time.Second)
	require.NoError(t, err)
	mr.FastForward(2 * time.Second)

	unlockNew, err := locker.Lock(ctx, "k", 5*time.Second)
	require.NoError(t, err)

	require.NoError(t, unlockOld(ctx))
	assert.True(t, mr.Exists("test:lock:k"), "expired holder must not release the new owner's lock")
	require.NoError(t, unlockNew(ctx))
}
