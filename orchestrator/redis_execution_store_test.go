package orchestrator

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func setupExecutionStoreRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	return redis.NewClient(&redis.Options{Addr: mr.Addr()})
}

func TestRedisExecutionStore_SaveThenLoadRoundTrips(t *testing.T) {
	client := setupExecutionStoreRedis(t)
	store := newRedisExecutionStoreWithClient(client)
	ctx := context.Background()

	result := ExecutionResult{
		Response: "synthesized answer",
		Tasks:    []*Task{{ID: "t1", Pool: PoolCodegen, Status: StatusCompleted}},
	}

	require.NoError(t, store.SaveResult(ctx, "plan-1", result))

	loaded, err := store.LoadResult(ctx, "plan-1")
	require.NoError(t, err)
	require.Equal(t, result.Response, loaded.Response)
	require.Len(t, loaded.Tasks, 1)
	require.Equal(t, "t1", loaded.Tasks[0].ID)
}

func TestRedisExecutionStore_LoadMissingPlanReturnsEmpty(t *testing.T) {
	client := setupExecutionStoreRedis(t)
	store := newRedisExecutionStoreWithClient(client)

	loaded, err := store.LoadResult(context.Background(), "does-not-exist")
	require.NoError(t, err)
	require.Empty(t, loaded.Response)
	require.Nil(t, loaded.Tasks)
}
