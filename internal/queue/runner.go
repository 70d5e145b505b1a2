package queue

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/dzackiero/cv-evaluation/internal/model"
	"github.com/dzackiero/cv-evaluation/internal/retry"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const pollBatchSize = 50

// Handler executes one task attempt.
type Handler func(ctx context.Context, task model.Task) error

// TaskStore is the durable task state consumed by the runner.
type TaskStore interface {
	CreateTasks(ctx context.Context, tasks []*model.Task) error
	DueTasks(ctx context.Context, limit int) ([]model.Task, error)
	TasksByID(ctx context.Context, ids []uuid.UUID) ([]model.Task, error)
	MarkRunning(ctx context.Context, id uuid.UUID, leaseUntil time.Time) (bool, error)
	ReclaimExpired(ctx context.Context, now time.Time) (int64, error)
	MarkSucceeded(ctx context.Context, id uuid.UUID) error
	MarkFailed(ctx context.Context, id uuid.UUID, errMsg string) error
	Reschedule(ctx context.Context, id uuid.UUID, runAfter time.Time, errMsg string) error
}

// FailureSink is told when a task fails for good, so the owning job can
// be marked failed.
type FailureSink interface {
	TaskFailed(ctx context.Context, task model.Task, cause error)
}

// FailureFunc adapts a function to the FailureSink interface.
type FailureFunc func(ctx context.Context, task model.Task, cause error)

func (f FailureFunc) TaskFailed(ctx context.Context, task model.Task, cause error) {
	f(ctx, task, cause)
}

// Config bounds the runner. QueueConcurrency overrides the default cap
// per queue name; the cap exists to limit simultaneous outbound calls
// to the generation service. TaskLease must exceed the longest task
// execution including its invocation retries, or a live task gets
// reclaimed and runs twice.
type Config struct {
	PollInterval       time.Duration
	DefaultConcurrency int
	QueueConcurrency   map[string]int
	TaskLease          time.Duration
}

// Runner polls the task store and dispatches eligible tasks to
// registered handlers.
type Runner struct {
	store    TaskStore
	sink     FailureSink
	log      *zap.Logger
	cfg      Config
	handlers map[string]Handler

	mu   sync.Mutex
	sems map[string]chan struct{}
	wg   sync.WaitGroup
}

func NewRunner(store TaskStore, sink FailureSink, log *zap.Logger, cfg Config) *Runner {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.DefaultConcurrency <= 0 {
		cfg.DefaultConcurrency = 5
	}
	if cfg.TaskLease <= 0 {
		cfg.TaskLease = 10 * time.Minute
	}
	return &Runner{
		store:    store,
		sink:     sink,
		log:      log,
		cfg:      cfg,
		handlers: make(map[string]Handler),
		sems:     make(map[string]chan struct{}),
	}
}

// Register binds a handler to a task name. Must be called before Start.
func (r *Runner) Register(name string, h Handler) {
	r.handlers[name] = h
}

// Start runs the poll loop until ctx is canceled, then waits for
// in-flight tasks to finish. Callers run it in its own goroutine.
func (r *Runner) Start(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.wg.Wait()
			return
		case <-ticker.C:
		}
		r.poll(ctx)
	}
}

func (r *Runner) poll(ctx context.Context) {
	reclaimed, err := r.store.ReclaimExpired(ctx, time.Now())
	if err != nil {
		r.log.Error("reclaim expired task leases", zap.Error(err))
	} else if reclaimed > 0 {
		r.log.Warn("reclaimed tasks with expired leases", zap.Int64("count", reclaimed))
	}

	tasks, err := r.store.DueTasks(ctx, pollBatchSize)
	if err != nil {
		r.log.Error("list due tasks", zap.Error(err))
		return
	}

	for _, task := range tasks {
		ready, err := r.dependenciesReady(ctx, task)
		if err != nil {
			r.log.Error("check task dependencies", zap.String("task", task.Name), zap.Error(err))
			continue
		}
		if !ready {
			continue
		}

		sem := r.semFor(task.Queue)
		select {
		case sem <- struct{}{}:
		default:
			continue // queue at capacity, picked up next tick
		}

		claimed, err := r.store.MarkRunning(ctx, task.ID, time.Now().Add(r.cfg.TaskLease))
		if err != nil || !claimed {
			<-sem
			if err != nil {
				r.log.Error("claim task", zap.String("task", task.Name), zap.Error(err))
			}
			continue
		}
		task.Attempts++

		r.wg.Add(1)
		go func(task model.Task) {
			defer r.wg.Done()
			defer func() { <-sem }()
			r.execute(ctx, task)
		}(task)
	}
}

// dependenciesReady reports whether every dependency has succeeded. If
// any dependency failed, the task is failed immediately without
// dispatch and the sink is notified.
func (r *Runner) dependenciesReady(ctx context.Context, task model.Task) (bool, error) {
	if len(task.DependsOn) == 0 {
		return true, nil
	}

	deps, err := r.store.TasksByID(ctx, task.DependsOn)
	if err != nil {
		return false, err
	}

	succeeded := 0
	for _, dep := range deps {
		switch dep.Status {
		case model.TaskFailed:
			cause := fmt.Errorf("dependency %s failed", dep.Name)
			if err := r.store.MarkFailed(ctx, task.ID, cause.Error()); err != nil {
				return false, err
			}
			r.log.Warn("task failed without dispatch",
				zap.String("task", task.Name),
				zap.String("job_id", task.JobID.String()),
				zap.String("dependency", dep.Name),
			)
			r.sink.TaskFailed(ctx, task, cause)
			return false, nil
		case model.TaskSucceeded:
			succeeded++
		}
	}
	return succeeded == len(task.DependsOn), nil
}

func (r *Runner) execute(ctx context.Context, task model.Task) {
	log := r.log.With(
		zap.String("task", task.Name),
		zap.String("job_id", task.JobID.String()),
		zap.Int("attempt", task.Attempts),
		zap.Int("max_attempts", task.MaxAttempts),
	)

	handler, ok := r.handlers[task.Name]
	if !ok {
		r.fail(ctx, task, fmt.Errorf("no handler registered for task %q", task.Name))
		return
	}

	log.Info("task started")
	err := handler(ctx, task)
	if err == nil {
		if err := r.store.MarkSucceeded(ctx, task.ID); err != nil {
			log.Error("mark task succeeded", zap.Error(err))
		}
		log.Info("task succeeded")
		return
	}

	if permanent(err) || task.Attempts >= task.MaxAttempts {
		log.Error("task failed permanently", zap.Error(err))
		r.fail(ctx, task, err)
		return
	}

	delay := time.Duration(float64(task.BackoffBase()) * math.Pow(2, float64(task.Attempts-1)))
	log.Warn("task attempt failed, rescheduling", zap.Duration("delay", delay), zap.Error(err))
	if err := r.store.Reschedule(ctx, task.ID, time.Now().Add(delay), err.Error()); err != nil {
		log.Error("reschedule task", zap.Error(err))
	}
}

func (r *Runner) fail(ctx context.Context, task model.Task, cause error) {
	if err := r.store.MarkFailed(ctx, task.ID, cause.Error()); err != nil {
		r.log.Error("mark task failed", zap.String("task", task.Name), zap.Error(err))
	}
	r.sink.TaskFailed(ctx, task, cause)
}

// permanent reports whether an error must not be retried at the task
// level: missing inputs, stage-ordering violations, and invocation
// failures already classified non-retryable.
func permanent(err error) bool {
	if errors.Is(err, model.ErrNotFound) || errors.Is(err, model.ErrStageOrder) {
		return true
	}
	var invErr *retry.Error
	if errors.As(err, &invErr) {
		return !invErr.Retryable
	}
	return false
}

func (r *Runner) semFor(queue string) chan struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	if sem, ok := r.sems[queue]; ok {
		return sem
	}
	size := r.cfg.DefaultConcurrency
	if override, ok := r.cfg.QueueConcurrency[queue]; ok && override > 0 {
		size = override
	}
	sem := make(chan struct{}, size)
	r.sems[queue] = sem
	return sem
}
