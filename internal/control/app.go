// Package control assembles the capture pipeline and the sync queue from
// configuration and runs the background services.
package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/vietddude/snapcook/internal/capture/session"
	"github.com/vietddude/snapcook/internal/core/config"
	"github.com/vietddude/snapcook/internal/core/worker"
	"github.com/vietddude/snapcook/internal/health"
	"github.com/vietddude/snapcook/internal/infra/connectivity"
	"github.com/vietddude/snapcook/internal/infra/imaging"
	"github.com/vietddude/snapcook/internal/infra/inference"
	"github.com/vietddude/snapcook/internal/infra/pantry"
	"github.com/vietddude/snapcook/internal/infra/storage"
	"github.com/vietddude/snapcook/internal/infra/storage/memory"
	"github.com/vietddude/snapcook/internal/infra/storage/postgres"
	redisstore "github.com/vietddude/snapcook/internal/infra/storage/redis"
	"github.com/vietddude/snapcook/internal/infra/storage/sqlite"
	"github.com/vietddude/snapcook/internal/syncqueue"
)

// App owns every long-lived component.
type App struct {
	cfg         *config.AppConfig
	taskLog     storage.TaskLog
	remote      storage.RemoteStore
	db          *postgres.DB
	redisClient *redisstore.Client
	online      *connectivity.HTTPProbe
	queue       *syncqueue.Queue
	worker      *syncqueue.Worker
	inference   *inference.Client
	pantry      *pantry.Static
	healthMon   *health.Monitor
	log         *slog.Logger
}

// New wires the application from cfg. Call Close when done.
func New(ctx context.Context, cfg *config.AppConfig) (*App, error) {
	a := &App{cfg: cfg, log: slog.Default()}

	// 1. Durable task log
	if err := a.openTaskLog(); err != nil {
		return nil, err
	}

	// 2. Remote store
	if err := a.openRemote(ctx); err != nil {
		_ = a.Close()
		return nil, err
	}

	// 3. Queue and drain worker
	a.online = connectivity.NewHTTPProbe(cfg.Connectivity.ProbeURL, cfg.Connectivity.Timeout, cfg.Connectivity.Interval/2)
	a.queue = syncqueue.New(a.taskLog, a.remote, a.online, syncqueue.Config{
		RetryCap:       cfg.Queue.RetryCap,
		InitialBackoff: cfg.Queue.InitialBackoff,
		MaxBackoff:     cfg.Queue.MaxBackoff,
		LeaseTTL:       cfg.Queue.LeaseTTL,
	}, syncqueue.WithLogger(a.log.With("component", "syncqueue")))
	a.worker = syncqueue.NewWorker(a.queue, a.online, cfg.Queue.DrainInterval, cfg.Connectivity.Interval, a.log.With("component", "drain-worker"))

	// 4. Inference and capture collaborators
	client, err := inference.NewFromConfig(cfg.Inference, inference.WithLogger(a.log.With("component", "inference")))
	if err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("failed to init inference client: %w", err)
	}
	a.inference = client
	a.pantry = pantry.NewStatic(cfg.Pantry.Items)

	// 5. Health
	stores := make(map[string]health.Pinger)
	if a.db != nil {
		stores["remote"] = a.db
	}
	if a.redisClient != nil {
		stores["redis"] = a.redisClient
	}
	a.healthMon = health.NewMonitor(a.queue, a.online, stores)

	return a, nil
}

func (a *App) openTaskLog() error {
	switch a.cfg.Queue.Backend {
	case "memory":
		a.taskLog = memory.NewTaskLog()
		a.log.Warn("Using in-memory sync queue, tasks will not survive a restart")
	case "redis":
		client, err := redisstore.NewClient(a.cfg.Redis)
		if err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		a.redisClient = client
		a.taskLog = redisstore.NewTaskLog(client)
		a.log.Info("Using Redis sync queue", "namespace", a.cfg.Redis.Namespace)
	default:
		l, err := sqlite.Open(a.cfg.Queue.Path)
		if err != nil {
			return fmt.Errorf("failed to open sync queue: %w", err)
		}
		a.taskLog = l
		a.log.Info("Using SQLite sync queue", "path", a.cfg.Queue.Path)
	}
	return nil
}

func (a *App) openRemote(ctx context.Context) error {
	if a.cfg.Database.URL == "" {
		a.remote = memory.NewRemoteStore()
		a.log.Info("Using in-memory remote store")
		return nil
	}

	db, err := postgres.NewDB(ctx, a.cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to init db: %w", err)
	}
	if err := db.Migrate(); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to migrate db: %w", err)
	}
	a.db = db
	a.remote = postgres.NewRemoteStore(db)
	a.log.Info("Using SQL remote store", "dialect", db.Dialect())
	return nil
}

// Queue returns the sync queue.
func (a *App) Queue() *syncqueue.Queue {
	return a.queue
}

// NewSession starts a capture session. picker supplies the gallery image.
func (a *App) NewSession(picker session.ImagePicker) *session.Controller {
	return session.NewController(session.Deps{
		Generator:  a.inference,
		Picker:     picker,
		Normalizer: imaging.NewFileNormalizer(),
		Pantry:     a.pantry,
		Queue:      a.queue,
		Logger:     a.log.With("component", "session"),
	})
}

// TriggerDrain asks the background worker for a drain pass.
func (a *App) TriggerDrain() {
	a.worker.Trigger()
}

// Run serves health endpoints and drains the queue until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	healthServer := health.NewServer(a.healthMon, a.cfg.Server.Port)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.log.Info("Health server listening", "port", a.cfg.Server.Port)
		if err := healthServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("health server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return healthServer.Stop(shutdownCtx)
	})

	g.Go(func() error {
		a.worker.Start(ctx)
		return nil
	})

	// Start DB Metrics Collector and marker pruner
	if a.db != nil {
		a.db.StartMetricsCollector(ctx)

		pruner := worker.NewPruner(a.cfg.Database.AppliedRetention, postgres.NewRemoteStore(a.db), a.log.With("component", "pruner"))
		g.Go(func() error {
			pruner.Start(ctx)
			return nil
		})
	}

	return g.Wait()
}

// Close releases storage handles.
func (a *App) Close() error {
	var errs []error
	if a.taskLog != nil {
		// The redis task log closes its client
		if err := a.taskLog.Close(); err != nil {
			errs = append(errs, err)
		}
	} else if a.redisClient != nil {
		errs = append(errs, a.redisClient.Close())
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
