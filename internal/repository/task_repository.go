package repository

import (
	"context"
	"time"

	"github.com/dzackiero/cv-evaluation/internal/model"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type TaskRepository struct {
	db *gorm.DB
}

func NewTaskRepository(db *gorm.DB) *TaskRepository {
	return &TaskRepository{db}
}

func (r *TaskRepository) CreateTasks(ctx context.Context, tasks []*model.Task) error {
	return r.db.WithContext(ctx).Create(tasks).Error
}

// DueTasks lists pending tasks whose run-after time has passed, oldest
// first. Dependency gating happens in the runner, not here.
func (r *TaskRepository) DueTasks(ctx context.Context, limit int) ([]model.Task, error) {
	var tasks []model.Task
	err := r.db.WithContext(ctx).
		Where("status = ? AND run_after <= ?", model.TaskPending, time.Now()).
		Order("created_at").
		Limit(limit).
		Find(&tasks).Error
	return tasks, err
}

func (r *TaskRepository) TasksByID(ctx context.Context, ids []uuid.UUID) ([]model.Task, error) {
	var tasks []model.Task
	err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&tasks).Error
	return tasks, err
}

// MarkRunning claims a pending task for execution, bumps its attempt
// counter, and takes a lease until leaseUntil. The status guard makes
// the claim safe against a concurrent poller: zero rows affected means
// someone else took it.
func (r *TaskRepository) MarkRunning(ctx context.Context, id uuid.UUID, leaseUntil time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&model.Task{}).
		Where("id = ? AND status = ?", id, model.TaskPending).
		Updates(map[string]any{
			"status":      model.TaskRunning,
			"attempts":    gorm.Expr("attempts + 1"),
			"lease_until": leaseUntil,
		})
	return res.RowsAffected > 0, res.Error
}

// ReclaimExpired flips running tasks whose lease has passed back to
// pending so they are dispatched again. This is what recovers tasks
// orphaned by a crashed runner or by a terminal write that never
// landed; the attempt consumed by the dead claim stays counted.
func (r *TaskRepository) ReclaimExpired(ctx context.Context, now time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&model.Task{}).
		Where("status = ? AND lease_until IS NOT NULL AND lease_until <= ?", model.TaskRunning, now).
		Updates(map[string]any{
			"status":      model.TaskPending,
			"run_after":   now,
			"lease_until": nil,
		})
	return res.RowsAffected, res.Error
}

func (r *TaskRepository) MarkSucceeded(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(&model.Task{}).
		Where("id = ?", id).
		Update("status", model.TaskSucceeded).Error
}

func (r *TaskRepository) MarkFailed(ctx context.Context, id uuid.UUID, errMsg string) error {
	return r.db.WithContext(ctx).
		Model(&model.Task{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":     model.TaskFailed,
			"last_error": errMsg,
		}).Error
}

// Reschedule puts a failed attempt back in the pending state with a
// later run-after time.
func (r *TaskRepository) Reschedule(ctx context.Context, id uuid.UUID, runAfter time.Time, errMsg string) error {
	return r.db.WithContext(ctx).
		Model(&model.Task{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":     model.TaskPending,
			"run_after":  runAfter,
			"last_error": errMsg,
		}).Error
}
