// Package queue is the task execution layer: durable task rows polled
// by an in-process runner with bounded per-queue concurrency. It
// guarantees at-least-once execution with attempt counting, and only
// makes a parent task eligible once every task it depends on has
// succeeded.
package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/dzackiero/cv-evaluation/internal/model"
	"github.com/google/uuid"
)

// TaskSpec describes one node of a task graph. DependsOn lists the
// names of sibling specs that must succeed first.
type TaskSpec struct {
	Name        string
	Queue       string
	DependsOn   []string
	MaxAttempts int
	BackoffBase time.Duration
}

// Graph is the full DAG submitted for one job.
type Graph struct {
	JobID uuid.UUID
	Tasks []TaskSpec
}

// Submit persists the graph as task rows, resolving name references to
// task ids. Specs must be listed with dependencies after the tasks
// they depend on.
func (r *Runner) Submit(ctx context.Context, g Graph) error {
	ids := make(map[string]uuid.UUID, len(g.Tasks))
	tasks := make([]*model.Task, 0, len(g.Tasks))
	now := time.Now()

	for _, spec := range g.Tasks {
		if spec.MaxAttempts < 1 {
			spec.MaxAttempts = 1
		}

		deps := make(model.UUIDList, 0, len(spec.DependsOn))
		for _, name := range spec.DependsOn {
			id, ok := ids[name]
			if !ok {
				return fmt.Errorf("task %q depends on unknown task %q", spec.Name, name)
			}
			deps = append(deps, id)
		}

		id := uuid.New()
		ids[spec.Name] = id
		tasks = append(tasks, &model.Task{
			ID:            id,
			JobID:         g.JobID,
			Name:          spec.Name,
			Queue:         spec.Queue,
			Status:        model.TaskPending,
			MaxAttempts:   spec.MaxAttempts,
			BackoffBaseMs: spec.BackoffBase.Milliseconds(),
			DependsOn:     deps,
			RunAfter:      now,
		})
	}

	return r.store.CreateTasks(ctx, tasks)
}
