package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T) (*goredis.Client, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return client, mr
}

func TestNonceStore_CheckAndSet_NewNonce(t *testing.T) {
	client, _ := newTestClient(t)
	store := NewNonceStore(client)

	ok, err := store.CheckAndSet(context.Background(), "cred-1", "nonce-abc", 5*time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestNonceStore_CheckAndSet_ReplayRejected(t *testing.T) {
	client, _ := newTestClient(t)
	store := NewNonceStore(client)
	ctx := context.Background()

	ok, err := store.CheckAndSet(ctx, "cred-1", "nonce-abc", 5*time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = store.CheckAndSet(ctx, "cred-1", "nonce-abc", 5*time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "second use of the same nonce is a replay")
}

func TestNonceStore_CheckAndSet_ScopedByCredential(t *testing.T) {
	client, _ := newTestClient(t)
	store := NewNonceStore(client)
	ctx := context.Background()

	ok, err := store.CheckAndSet(ctx, "cred-1", "nonce-abc", 5*time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	// Same nonce under a different credential is independent.
	ok, err = store.CheckAndSet(ctx, "cred-2", "nonce-abc", 5*time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestNonceStore_CheckAndSet_ExpiresWithTTL(t *testing.T) {
	client, mr := newTestClient(t)
	store := NewNonceStore(client)
	ctx := context.Background()

	ok, err := store.CheckAndSet(ctx, "cred-1", "nonce-abc", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(2 * time.Minute)

	ok, err = store.CheckAndSet(ctx, "cred-1", "nonce-abc", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok, "nonce is reusable after the replay window passes")
}
