package session

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Miles0sage/agentgate/core"
)

func setupMiniredis(t *testing.T) *redis.Client {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	return redis.NewClient(&redis.Options{Addr: mr.Addr()})
}

func TestRedisStore_AppendPersistsAcrossLoad(t *testing.T) {
	store := newRedisStoreWithClient(setupMiniredis(t), time.Hour)
	ctx := context.Background()

	_, err := store.Append(ctx, "sess-1", core.Message{Role: "user", Content: "hi"})
	require.NoError(t, err)

	snap, err := store.Load(ctx, "sess-1")
	require.NoError(t, err)
	assert.Len(t, snap.Messages, 1)
	assert.Equal(t, "hi", snap.Messages[0].Content)
}

func TestRedisStore_ContextWindowTrimsToLastTen(t *testing.T) {
	store := newRedisStoreWithClient(setupMiniredis(t), time.Hour)
	ctx := context.Background()

	for i := 0; i < 15; i++ {
		_, err := store.Append(ctx, "sess-1", core.Message{Role: "user", Content: "msg"})
		require.NoError(t, err)
	}

	window, err := store.ContextWindow(ctx, "sess-1")
	require.NoError(t, err)
	assert.Len(t, window, 10)
}

func TestRedisStore_LoadMissingSessionReturnsEmpty(t *testing.T) {
	store := newRedisStoreWithClient(setupMiniredis(t), time.Hour)
	snap, err := store.Load(context.Background(), "never-seen")
	require.NoError(t, err)
	assert.Empty(t, snap.Messages)
}
