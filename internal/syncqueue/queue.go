// Package syncqueue is the durable outbox that carries committed entities to
// the remote store. Tasks survive restarts, drain in FIFO order one pass at a
// time, back off exponentially on failure and are dead-lettered at the cap.
package syncqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/vietddude/snapcook/internal/core/domain"
	"github.com/vietddude/snapcook/internal/infra/storage"
	"github.com/vietddude/snapcook/internal/metrics"
)

var (
	// ErrDrainInProgress is returned when a drain is requested while another runs.
	ErrDrainInProgress = errors.New("drain already in progress")

	// ErrOffline is returned when a drain is requested without connectivity.
	ErrOffline = errors.New("offline")
)

const (
	// DefaultRetryCap is the number of failed attempts before a task is dead-lettered.
	DefaultRetryCap = 5

	// DefaultLeaseTTL bounds how long a crashed drainer keeps others out of
	// a shared task log. The lease is renewed before every attempt.
	DefaultLeaseTTL = 5 * time.Minute
)

// ConnectivityChecker reports whether the remote store is reachable.
type ConnectivityChecker interface {
	IsOnline(ctx context.Context) bool
}

// Config holds queue tuning.
type Config struct {
	RetryCap       int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	LeaseTTL       time.Duration
}

// DrainReport summarizes one drain pass.
type DrainReport struct {
	Attempted    int           `json:"attempted"`
	Succeeded    int           `json:"succeeded"`
	Failed       int           `json:"failed"`
	DeadLettered int           `json:"dead_lettered"`
	Deferred     int           `json:"deferred"`
	Duration     time.Duration `json:"duration"`
}

// Stats is a point-in-time view of the log.
type Stats struct {
	Pending     int `json:"pending"`
	InFlight    int `json:"in_flight"`
	DeadLetters int `json:"dead_letters"`
}

// Option configures a Queue.
type Option func(*Queue)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(q *Queue) { q.now = now }
}

// WithLogger sets the queue logger.
func WithLogger(l *slog.Logger) Option {
	return func(q *Queue) { q.logger = l }
}

// WithBackoff replaces the exponential backoff built from Config.
func WithBackoff(b BackoffStrategy) Option {
	return func(q *Queue) { q.backoff = b }
}

// Queue is the sync queue.
type Queue struct {
	log      storage.TaskLog
	remote   storage.RemoteStore
	online   ConnectivityChecker
	retryCap int
	backoff  BackoffStrategy
	now      func() time.Time
	logger   *slog.Logger
	owner    string
	leaseTTL time.Duration
	draining atomic.Bool
}

// New creates a queue over a durable task log and a remote store.
func New(log storage.TaskLog, remote storage.RemoteStore, online ConnectivityChecker, cfg Config, opts ...Option) *Queue {
	if cfg.RetryCap <= 0 {
		cfg.RetryCap = DefaultRetryCap
	}
	backoff := DefaultBackoff()
	if cfg.InitialBackoff > 0 {
		backoff.InitialDelay = cfg.InitialBackoff
	}
	if cfg.MaxBackoff > 0 {
		backoff.MaxDelay = cfg.MaxBackoff
	}
	if cfg.LeaseTTL <= 0 {
		cfg.LeaseTTL = DefaultLeaseTTL
	}

	q := &Queue{
		log:      log,
		remote:   remote,
		online:   online,
		retryCap: cfg.RetryCap,
		backoff:  backoff,
		now:      time.Now,
		logger:   slog.Default(),
		owner:    uuid.NewString(),
		leaseTTL: cfg.LeaseTTL,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Enqueue records a task durably. It returns once the task log has persisted it.
func (q *Queue) Enqueue(ctx context.Context, kind domain.TaskKind, entityType domain.EntityType, entityID string, payload any) (*domain.SyncTask, error) {
	if !kind.Valid() {
		return nil, domain.NewError(domain.KindValidation, fmt.Sprintf("unknown task kind %q", kind), nil)
	}
	if entityType == "" || entityID == "" {
		return nil, domain.NewError(domain.KindValidation, "entity type and id are required", nil)
	}

	body, err := encodePayload(payload)
	if err != nil {
		return nil, domain.NewError(domain.KindValidation, "payload is not serializable", err)
	}

	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	task := &domain.SyncTask{
		ID:         id.String(),
		Kind:       kind,
		EntityType: entityType,
		EntityID:   entityID,
		Payload:    body,
		EnqueuedAt: q.now().UTC(),
		Status:     domain.TaskStatusPending,
	}
	if err := q.log.Append(ctx, task); err != nil {
		return nil, fmt.Errorf("append task: %w", err)
	}

	metrics.QueueEnqueued.WithLabelValues(string(entityType), string(kind)).Inc()
	q.logger.Debug("Task enqueued",
		slog.String("id", task.ID),
		slog.String("kind", string(kind)),
		slog.String("entity", string(entityType)+"/"+entityID),
	)
	return task.Clone(), nil
}

func encodePayload(payload any) (json.RawMessage, error) {
	switch p := payload.(type) {
	case nil:
		return nil, nil
	case json.RawMessage:
		if !json.Valid(p) {
			return nil, errors.New("invalid JSON payload")
		}
		return append(json.RawMessage(nil), p...), nil
	default:
		return json.Marshal(p)
	}
}

// Drain attempts every due task once, in enqueue order. A failing task never
// blocks the ones behind it. Only one drain runs at a time, across processes
// too when the task log is a storage.DrainLeaser.
func (q *Queue) Drain(ctx context.Context) (*DrainReport, error) {
	if !q.draining.CompareAndSwap(false, true) {
		return nil, ErrDrainInProgress
	}
	defer q.draining.Store(false)

	if q.online != nil && !q.online.IsOnline(ctx) {
		return nil, ErrOffline
	}

	if err := q.holdLease(ctx); err != nil {
		return nil, err
	}
	defer q.releaseLease(context.WithoutCancel(ctx))

	start := time.Now()
	report := &DrainReport{}
	defer func() {
		report.Duration = time.Since(start)
		metrics.DrainDuration.Observe(report.Duration.Seconds())
		q.recordDepth(context.WithoutCancel(ctx))
	}()

	tasks, err := q.log.Pending(ctx)
	if err != nil {
		return report, fmt.Errorf("load pending tasks: %w", err)
	}

	for _, task := range tasks {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		now := q.now()
		if task.Status == domain.TaskStatusPending && task.NextAttemptAt.After(now) {
			report.Deferred++
			continue
		}

		if err := q.holdLease(ctx); err != nil {
			return report, err
		}
		if err := q.attempt(ctx, task, report); err != nil {
			return report, err
		}
	}

	if report.Attempted > 0 {
		q.logger.Info("Drain finished",
			slog.Int("attempted", report.Attempted),
			slog.Int("succeeded", report.Succeeded),
			slog.Int("failed", report.Failed),
			slog.Int("dead_lettered", report.DeadLettered),
			slog.Int("deferred", report.Deferred),
		)
	}
	return report, nil
}

// holdLease claims or renews the shared drain lease. Logs private to this
// process have none.
func (q *Queue) holdLease(ctx context.Context) error {
	leaser, ok := q.log.(storage.DrainLeaser)
	if !ok {
		return nil
	}
	held, err := leaser.AcquireDrainLease(ctx, q.owner, q.leaseTTL)
	if err != nil {
		return fmt.Errorf("drain lease: %w", err)
	}
	if !held {
		return ErrDrainInProgress
	}
	return nil
}

func (q *Queue) releaseLease(ctx context.Context) {
	leaser, ok := q.log.(storage.DrainLeaser)
	if !ok {
		return
	}
	if err := leaser.ReleaseDrainLease(ctx, q.owner); err != nil {
		q.logger.Warn("Failed to release drain lease", slog.String("error", err.Error()))
	}
}

// attempt runs one task. The returned error is a task log failure, which
// aborts the pass; remote failures are recorded on the task instead.
func (q *Queue) attempt(ctx context.Context, task *domain.SyncTask, report *DrainReport) error {
	task.Status = domain.TaskStatusInFlight
	if err := q.log.Update(ctx, task); err != nil {
		return fmt.Errorf("mark task %s in flight: %w", task.ID, err)
	}
	report.Attempted++

	applyErr := q.apply(ctx, task)
	if applyErr == nil {
		if err := q.log.Remove(ctx, task.ID); err != nil {
			return fmt.Errorf("remove task %s: %w", task.ID, err)
		}
		report.Succeeded++
		metrics.QueueOutcomes.WithLabelValues("succeeded").Inc()
		return nil
	}

	task.RetryCount++
	task.LastError = applyErr.Error()
	now := q.now()

	if task.RetryCount >= q.retryCap {
		task.Status = domain.TaskStatusDeadLetter
		task.DeadLetteredAt = now.UTC()
		task.NextAttemptAt = time.Time{}
		report.DeadLettered++
		metrics.QueueOutcomes.WithLabelValues("dead_lettered").Inc()
		q.logger.Warn("Task dead-lettered",
			slog.String("id", task.ID),
			slog.Int("retries", task.RetryCount),
			slog.String("error", task.LastError),
		)
	} else {
		task.Status = domain.TaskStatusPending
		task.NextAttemptAt = now.Add(q.backoff.GetDelay(task.RetryCount - 1)).UTC()
		report.Failed++
		metrics.QueueOutcomes.WithLabelValues("failed").Inc()
		q.logger.Debug("Task failed, will retry",
			slog.String("id", task.ID),
			slog.Int("retries", task.RetryCount),
			slog.Time("next_attempt", task.NextAttemptAt),
			slog.String("error", task.LastError),
		)
	}

	if err := q.log.Update(ctx, task); err != nil {
		return fmt.Errorf("record failure of task %s: %w", task.ID, err)
	}
	return nil
}

func (q *Queue) apply(ctx context.Context, task *domain.SyncTask) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("remote store panic: %v", r)
		}
	}()
	return q.remote.Apply(ctx, task.Clone())
}

// Draining reports whether a drain pass is running.
func (q *Queue) Draining() bool {
	return q.draining.Load()
}

// Pending returns pending and in-flight tasks in enqueue order.
func (q *Queue) Pending(ctx context.Context) ([]*domain.SyncTask, error) {
	return q.log.Pending(ctx)
}

// DeadLetters returns dead-lettered tasks in enqueue order.
func (q *Queue) DeadLetters(ctx context.Context) ([]*domain.SyncTask, error) {
	return q.log.DeadLetters(ctx)
}

// Stats counts tasks by status.
func (q *Queue) Stats(ctx context.Context) (Stats, error) {
	var s Stats
	pending, err := q.log.Pending(ctx)
	if err != nil {
		return s, err
	}
	for _, t := range pending {
		if t.Status == domain.TaskStatusInFlight {
			s.InFlight++
		} else {
			s.Pending++
		}
	}
	dead, err := q.log.DeadLetters(ctx)
	if err != nil {
		return s, err
	}
	s.DeadLetters = len(dead)
	return s, nil
}

func (q *Queue) recordDepth(ctx context.Context) {
	s, err := q.Stats(ctx)
	if err != nil {
		q.logger.Warn("Failed to read queue depth", slog.String("error", err.Error()))
		return
	}
	metrics.QueueDepth.WithLabelValues(string(domain.TaskStatusPending)).Set(float64(s.Pending))
	metrics.QueueDepth.WithLabelValues(string(domain.TaskStatusInFlight)).Set(float64(s.InFlight))
	metrics.QueueDepth.WithLabelValues(string(domain.TaskStatusDeadLetter)).Set(float64(s.DeadLetters))
}
