package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/dzackiero/cv-evaluation/internal/model"
	"github.com/dzackiero/cv-evaluation/internal/retry"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// fakeTaskStore is an in-memory TaskStore for exercising the runner
// without a database.
type fakeTaskStore struct {
	mu    sync.Mutex
	tasks map[uuid.UUID]*model.Task
	order []uuid.UUID
}

func newFakeTaskStore() *fakeTaskStore {
	return &fakeTaskStore{tasks: make(map[uuid.UUID]*model.Task)}
}

func (s *fakeTaskStore) CreateTasks(ctx context.Context, tasks []*model.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range tasks {
		copied := *t
		s.tasks[t.ID] = &copied
		s.order = append(s.order, t.ID)
	}
	return nil
}

func (s *fakeTaskStore) DueTasks(ctx context.Context, limit int) ([]model.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var due []model.Task
	now := time.Now()
	for _, id := range s.order {
		t := s.tasks[id]
		if t.Status == model.TaskPending && !t.RunAfter.After(now) {
			due = append(due, *t)
		}
		if len(due) == limit {
			break
		}
	}
	return due, nil
}

func (s *fakeTaskStore) TasksByID(ctx context.Context, ids []uuid.UUID) ([]model.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Task
	for _, id := range ids {
		if t, ok := s.tasks[id]; ok {
			out = append(out, *t)
		}
	}
	return out, nil
}

func (s *fakeTaskStore) MarkRunning(ctx context.Context, id uuid.UUID, leaseUntil time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.tasks[id]
	if t.Status != model.TaskPending {
		return false, nil
	}
	t.Status = model.TaskRunning
	t.Attempts++
	t.LeaseUntil = &leaseUntil
	return true, nil
}

func (s *fakeTaskStore) ReclaimExpired(ctx context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var reclaimed int64
	for _, t := range s.tasks {
		if t.Status == model.TaskRunning && t.LeaseUntil != nil && !t.LeaseUntil.After(now) {
			t.Status = model.TaskPending
			t.RunAfter = now
			t.LeaseUntil = nil
			reclaimed++
		}
	}
	return reclaimed, nil
}

func (s *fakeTaskStore) MarkSucceeded(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks[id].Status = model.TaskSucceeded
	return nil
}

func (s *fakeTaskStore) MarkFailed(ctx context.Context, id uuid.UUID, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks[id].Status = model.TaskFailed
	s.tasks[id].LastError = &errMsg
	return nil
}

func (s *fakeTaskStore) Reschedule(ctx context.Context, id uuid.UUID, runAfter time.Time, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.tasks[id]
	t.Status = model.TaskPending
	t.RunAfter = runAfter
	t.LastError = &errMsg
	return nil
}

func (s *fakeTaskStore) byName(name string) *model.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.tasks {
		if t.Name == name {
			return t
		}
	}
	return nil
}

func (s *fakeTaskStore) forceDue(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.tasks {
		if t.Name == name {
			t.RunAfter = time.Now().Add(-time.Second)
		}
	}
}

type recordingSink struct {
	mu     sync.Mutex
	failed []string
}

func (r *recordingSink) TaskFailed(ctx context.Context, task model.Task, cause error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failed = append(r.failed, task.Name)
}

func (r *recordingSink) names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.failed...)
}

func parentChildGraph() Graph {
	return Graph{
		JobID: uuid.New(),
		Tasks: []TaskSpec{
			{Name: "child_a", Queue: "a", MaxAttempts: 2, BackoffBase: time.Millisecond},
			{Name: "child_b", Queue: "b", MaxAttempts: 2, BackoffBase: time.Millisecond},
			{Name: "parent", Queue: "p", DependsOn: []string{"child_a", "child_b"}, MaxAttempts: 2, BackoffBase: time.Millisecond},
		},
	}
}

func newTestRunner(store TaskStore, sink FailureSink) *Runner {
	return NewRunner(store, sink, zap.NewNop(), Config{
		PollInterval:       time.Millisecond,
		DefaultConcurrency: 5,
	})
}

func TestRunnerParentWaitsForChildren(t *testing.T) {
	store := newFakeTaskStore()
	sink := &recordingSink{}
	r := newTestRunner(store, sink)

	var mu sync.Mutex
	var executed []string
	release := make(chan struct{})
	child := func(name string) Handler {
		return func(ctx context.Context, task model.Task) error {
			<-release
			mu.Lock()
			executed = append(executed, name)
			mu.Unlock()
			return nil
		}
	}
	r.Register("child_a", child("child_a"))
	r.Register("child_b", child("child_b"))
	r.Register("parent", func(ctx context.Context, task model.Task) error {
		mu.Lock()
		executed = append(executed, "parent")
		mu.Unlock()
		return nil
	})

	if err := r.Submit(context.Background(), parentChildGraph()); err != nil {
		t.Fatalf("submit: %v", err)
	}

	// Children are claimed but blocked, so the parent cannot be eligible.
	r.poll(context.Background())
	if task := store.byName("parent"); task.Status != model.TaskPending {
		t.Fatalf("parent must stay pending until both children succeed, got %s", task.Status)
	}

	close(release)
	r.wg.Wait()

	mu.Lock()
	afterFirst := len(executed)
	mu.Unlock()
	if afterFirst != 2 {
		t.Fatalf("expected only the two children to run first, got %v", executed)
	}

	r.poll(context.Background())
	r.wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	if len(executed) != 3 || executed[2] != "parent" {
		t.Fatalf("expected parent to run after children, got %v", executed)
	}
	if len(sink.names()) != 0 {
		t.Fatalf("no failures expected, got %v", sink.names())
	}
}

func TestRunnerChildFailureFailsParentWithoutDispatch(t *testing.T) {
	store := newFakeTaskStore()
	sink := &recordingSink{}
	r := newTestRunner(store, sink)

	parentRan := false
	r.Register("child_a", func(ctx context.Context, task model.Task) error {
		return fmt.Errorf("load cv: %w", model.ErrNotFound)
	})
	r.Register("child_b", func(ctx context.Context, task model.Task) error { return nil })
	r.Register("parent", func(ctx context.Context, task model.Task) error {
		parentRan = true
		return nil
	})

	if err := r.Submit(context.Background(), parentChildGraph()); err != nil {
		t.Fatalf("submit: %v", err)
	}

	r.poll(context.Background())
	r.wg.Wait()

	if task := store.byName("child_a"); task.Status != model.TaskFailed {
		t.Fatalf("not-found errors are permanent, child_a should be failed, got %s", task.Status)
	}

	// Next poll sees the failed dependency and fails the parent.
	r.poll(context.Background())
	r.wg.Wait()

	if parentRan {
		t.Fatalf("parent must never be dispatched after a child failure")
	}
	if task := store.byName("parent"); task.Status != model.TaskFailed {
		t.Fatalf("parent should be failed, got %s", task.Status)
	}

	names := sink.names()
	if len(names) != 2 {
		t.Fatalf("expected sink notifications for child_a and parent, got %v", names)
	}
	seen := map[string]bool{names[0]: true, names[1]: true}
	if !seen["child_a"] || !seen["parent"] {
		t.Fatalf("expected sink notifications for child_a and parent, got %v", names)
	}
}

func TestRunnerReschedulesTransientFailures(t *testing.T) {
	store := newFakeTaskStore()
	sink := &recordingSink{}
	r := newTestRunner(store, sink)

	attempts := 0
	r.Register("flaky", func(ctx context.Context, task model.Task) error {
		attempts++
		return errors.New("transient upstream error")
	})

	graph := Graph{
		JobID: uuid.New(),
		Tasks: []TaskSpec{{Name: "flaky", Queue: "q", MaxAttempts: 2, BackoffBase: time.Millisecond}},
	}
	if err := r.Submit(context.Background(), graph); err != nil {
		t.Fatalf("submit: %v", err)
	}

	r.poll(context.Background())
	r.wg.Wait()

	task := store.byName("flaky")
	if task.Status != model.TaskPending {
		t.Fatalf("first failure should reschedule, got %s", task.Status)
	}
	if task.Attempts != 1 {
		t.Fatalf("expected 1 attempt recorded, got %d", task.Attempts)
	}

	store.forceDue("flaky")
	r.poll(context.Background())
	r.wg.Wait()

	if attempts != 2 {
		t.Fatalf("expected 2 attempts, got %d", attempts)
	}
	if task := store.byName("flaky"); task.Status != model.TaskFailed {
		t.Fatalf("exhausted attempts should fail the task, got %s", task.Status)
	}
	if names := sink.names(); len(names) != 1 || names[0] != "flaky" {
		t.Fatalf("expected one failure notification, got %v", names)
	}
}

func TestRunnerNonRetryableInvocationFailsImmediately(t *testing.T) {
	store := newFakeTaskStore()
	sink := &recordingSink{}
	r := newTestRunner(store, sink)

	attempts := 0
	r.Register("strict", func(ctx context.Context, task model.Task) error {
		attempts++
		return &retry.Error{Message: "schema rejected", StatusCode: 400}
	})

	graph := Graph{
		JobID: uuid.New(),
		Tasks: []TaskSpec{{Name: "strict", Queue: "q", MaxAttempts: 3, BackoffBase: time.Millisecond}},
	}
	if err := r.Submit(context.Background(), graph); err != nil {
		t.Fatalf("submit: %v", err)
	}

	r.poll(context.Background())
	r.wg.Wait()

	if attempts != 1 {
		t.Fatalf("non-retryable invocation errors must not be retried, got %d attempts", attempts)
	}
	if task := store.byName("strict"); task.Status != model.TaskFailed {
		t.Fatalf("expected failed, got %s", task.Status)
	}
}

func TestRunnerUnknownHandlerFailsTask(t *testing.T) {
	store := newFakeTaskStore()
	sink := &recordingSink{}
	r := newTestRunner(store, sink)

	graph := Graph{
		JobID: uuid.New(),
		Tasks: []TaskSpec{{Name: "ghost", Queue: "q", MaxAttempts: 3, BackoffBase: time.Millisecond}},
	}
	if err := r.Submit(context.Background(), graph); err != nil {
		t.Fatalf("submit: %v", err)
	}

	r.poll(context.Background())
	r.wg.Wait()

	if task := store.byName("ghost"); task.Status != model.TaskFailed {
		t.Fatalf("task without a handler must fail, got %s", task.Status)
	}
	if names := sink.names(); len(names) != 1 {
		t.Fatalf("expected one failure notification, got %v", names)
	}
}

func TestRunnerReclaimsTaskWithExpiredLease(t *testing.T) {
	store := newFakeTaskStore()
	sink := &recordingSink{}
	r := newTestRunner(store, sink)

	executed := 0
	r.Register("orphaned", func(ctx context.Context, task model.Task) error {
		executed++
		return nil
	})

	graph := Graph{
		JobID: uuid.New(),
		Tasks: []TaskSpec{{Name: "orphaned", Queue: "q", MaxAttempts: 3, BackoffBase: time.Millisecond}},
	}
	if err := r.Submit(context.Background(), graph); err != nil {
		t.Fatalf("submit: %v", err)
	}

	// Claim the task as a runner that died before writing a terminal
	// status, leaving the row running with a lease already in the past.
	task := store.byName("orphaned")
	claimed, err := store.MarkRunning(context.Background(), task.ID, time.Now().Add(-time.Second))
	if err != nil || !claimed {
		t.Fatalf("claim task: claimed=%v err=%v", claimed, err)
	}

	r.poll(context.Background())
	r.wg.Wait()

	if executed != 1 {
		t.Fatalf("task with expired lease must be re-dispatched, executed %d times", executed)
	}
	task = store.byName("orphaned")
	if task.Status != model.TaskSucceeded {
		t.Fatalf("expected succeeded after reclaim, got %s", task.Status)
	}
	if task.Attempts != 2 {
		t.Fatalf("the dead claim's attempt must stay counted, got %d", task.Attempts)
	}
}

func TestRunnerLeavesLiveLeasesAlone(t *testing.T) {
	store := newFakeTaskStore()
	r := newTestRunner(store, &recordingSink{})

	executed := 0
	r.Register("held", func(ctx context.Context, task model.Task) error {
		executed++
		return nil
	})

	graph := Graph{
		JobID: uuid.New(),
		Tasks: []TaskSpec{{Name: "held", Queue: "q", MaxAttempts: 3, BackoffBase: time.Millisecond}},
	}
	if err := r.Submit(context.Background(), graph); err != nil {
		t.Fatalf("submit: %v", err)
	}

	task := store.byName("held")
	if _, err := store.MarkRunning(context.Background(), task.ID, time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("claim task: %v", err)
	}

	r.poll(context.Background())
	r.wg.Wait()

	if executed != 0 {
		t.Fatalf("task with a live lease must not be re-dispatched")
	}
	if task := store.byName("held"); task.Status != model.TaskRunning {
		t.Fatalf("expected running, got %s", task.Status)
	}
}

func TestSubmitRejectsUnknownDependency(t *testing.T) {
	store := newFakeTaskStore()
	r := newTestRunner(store, &recordingSink{})

	graph := Graph{
		JobID: uuid.New(),
		Tasks: []TaskSpec{{Name: "parent", Queue: "q", DependsOn: []string{"missing"}}},
	}
	if err := r.Submit(context.Background(), graph); err == nil {
		t.Fatalf("expected error for dependency on unknown task")
	}
}
