package control

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vietddude/snapcook/internal/core/config"
	"github.com/vietddude/snapcook/internal/core/domain"
	"github.com/vietddude/snapcook/internal/infra/imaging"
	"github.com/vietddude/snapcook/internal/infra/storage/sqlite"
)

func testConfig(t *testing.T) *config.AppConfig {
	cfg := config.Default()
	cfg.Queue.Path = filepath.Join(t.TempDir(), "queue.db")
	cfg.Server.Port = 0
	return cfg
}

func TestNew_DefaultsToSQLiteAndMemoryRemote(t *testing.T) {
	app, err := New(context.Background(), testConfig(t))
	require.NoError(t, err)
	defer app.Close()

	assert.IsType(t, &sqlite.TaskLog{}, app.taskLog)
	assert.Nil(t, app.db)
	assert.NotNil(t, app.Queue())
}

func TestNew_RejectsBadRedis(t *testing.T) {
	cfg := testConfig(t)
	cfg.Queue.Backend = "redis"
	cfg.Redis.URL = "not a url"

	_, err := New(context.Background(), cfg)
	assert.Error(t, err)
}

func TestApp_SessionCommitsToQueue(t *testing.T) {
	cfg := testConfig(t)
	cfg.Queue.Backend = "memory"
	app, err := New(context.Background(), cfg)
	require.NoError(t, err)
	defer app.Close()

	ctrl := app.NewSession(imaging.PathPicker{})
	require.NoError(t, ctrl.PickFromGallery(context.Background()))
	assert.Equal(t, domain.StatusIdle, ctrl.Status(), "empty path cancels the pick")

	_, err = app.Queue().Enqueue(context.Background(), domain.TaskCreate, domain.EntityRecipe, "r1", nil)
	require.NoError(t, err)
	report, err := app.Queue().Drain(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Succeeded)
}

func TestApp_RunStopsOnCancel(t *testing.T) {
	cfg := testConfig(t)
	cfg.Queue.Backend = "memory"
	app, err := New(context.Background(), cfg)
	require.NoError(t, err)
	defer app.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
