package redis

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vietddude/snapcook/internal/core/domain"
	"github.com/vietddude/snapcook/internal/infra/storage"
)

// newTestLog connects to SNAPCOOK_TEST_REDIS_URL under a throwaway namespace.
func newTestLog(t *testing.T) *TaskLog {
	t.Helper()
	url := os.Getenv("SNAPCOOK_TEST_REDIS_URL")
	if url == "" {
		t.Skip("SNAPCOOK_TEST_REDIS_URL not set")
	}

	client, err := NewClient(Config{URL: url, Namespace: "snapcook-test-" + uuid.NewString()})
	require.NoError(t, err)

	log := NewTaskLog(client)
	t.Cleanup(func() {
		ctx := context.Background()
		keys, _ := client.rdb.Keys(ctx, client.namespace+":*").Result()
		if len(keys) > 0 {
			client.rdb.Del(ctx, keys...)
		}
		_ = log.Close()
	})
	return log
}

func task(id string) *domain.SyncTask {
	return &domain.SyncTask{
		ID:         id,
		Kind:       domain.TaskCreate,
		EntityType: domain.EntityRecipe,
		EntityID:   "r-" + id,
		Payload:    []byte(`{"title":"Soup"}`),
		EnqueuedAt: time.Now().UTC(),
		Status:     domain.TaskStatusPending,
	}
}

func TestTaskLog_Lifecycle(t *testing.T) {
	log := newTestLog(t)
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, log.Append(ctx, task(id)))
	}
	assert.ErrorIs(t, log.Append(ctx, task("a")), storage.ErrDuplicateTask)

	b := task("b")
	b.RetryCount = 1
	b.LastError = "timeout"
	require.NoError(t, log.Update(ctx, b))

	a := task("a")
	a.Status = domain.TaskStatusDeadLetter
	a.RetryCount = 5
	require.NoError(t, log.Update(ctx, a))

	require.NoError(t, log.Remove(ctx, "c"))
	assert.ErrorIs(t, log.Remove(ctx, "c"), storage.ErrTaskNotFound)

	pending, err := log.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "b", pending[0].ID)
	assert.Equal(t, 1, pending[0].RetryCount)

	dead, err := log.DeadLetters(ctx)
	require.NoError(t, err)
	require.Len(t, dead, 1)
	assert.Equal(t, "a", dead[0].ID)
}

func TestTaskLog_DrainLeaseAcrossClients(t *testing.T) {
	first := newTestLog(t)
	ctx := context.Background()

	client, err := NewClient(Config{URL: os.Getenv("SNAPCOOK_TEST_REDIS_URL"), Namespace: first.client.namespace})
	require.NoError(t, err)
	second := NewTaskLog(client)
	defer second.Close()

	ok, err := first.AcquireDrainLease(ctx, "cli", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = second.AcquireDrainLease(ctx, "worker", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = first.AcquireDrainLease(ctx, "cli", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok, "holder renews")

	// Releasing someone else's lease is a no-op
	require.NoError(t, second.ReleaseDrainLease(ctx, "worker"))
	ok, err = second.AcquireDrainLease(ctx, "worker", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, first.ReleaseDrainLease(ctx, "cli"))
	ok, err = second.AcquireDrainLease(ctx, "worker", 50*time.Millisecond)
	require.NoError(t, err)
	assert.True(t, ok)

	// Expiry frees a lease its holder never released
	assert.Eventually(t, func() bool {
		ok, err := first.AcquireDrainLease(ctx, "cli", time.Minute)
		return err == nil && ok
	}, 2*time.Second, 20*time.Millisecond)
}
