package repository

import (
	"context"
	"errors"
	"time"

	"github.com/dzackiero/cv-evaluation/internal/model"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type JobRepository struct {
	db *gorm.DB
}

func NewJobRepository(db *gorm.DB) *JobRepository {
	return &JobRepository{db}
}

// CreateJobWithResult inserts the job and its evaluation result in one
// transaction; both rows exist or neither does.
func (r *JobRepository) CreateJobWithResult(ctx context.Context, job *model.Job, result *model.EvaluationResult) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(job).Error; err != nil {
			return err
		}
		return tx.Create(result).Error
	})
}

func (r *JobRepository) FindJob(ctx context.Context, id uuid.UUID) (*model.Job, error) {
	var job model.Job
	err := r.db.WithContext(ctx).First(&job, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &job, nil
}

func (r *JobRepository) FindResult(ctx context.Context, jobID uuid.UUID) (*model.EvaluationResult, error) {
	var result model.EvaluationResult
	err := r.db.WithContext(ctx).First(&result, "job_id = ?", jobID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// UpdateResultFields applies a field-scoped update to the evaluation
// result. Each stage writes only its own columns, so the concurrent CV
// and Project writers never touch the same fields.
func (r *JobRepository) UpdateResultFields(ctx context.Context, jobID uuid.UUID, fields map[string]any) error {
	return r.db.WithContext(ctx).
		Model(&model.EvaluationResult{}).
		Where("job_id = ?", jobID).
		Updates(fields).Error
}

func (r *JobRepository) SetStage(ctx context.Context, jobID uuid.UUID, stage string) error {
	return r.UpdateResultFields(ctx, jobID, map[string]any{"current_stage": stage})
}

// CompleteJob applies the terminal transition atomically: the job flips
// to completed together with the result's summary, stage, and
// completed_at, so no reader can observe a completed job with a null
// summary. A job already in a terminal state is left untouched.
func (r *JobRepository) CompleteJob(ctx context.Context, jobID uuid.UUID, summary string) error {
	now := time.Now()
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&model.Job{}).
			Where("id = ? AND status NOT IN ?", jobID, []model.JobStatus{model.JobCompleted, model.JobFailed}).
			Update("status", model.JobCompleted)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		return tx.Model(&model.EvaluationResult{}).
			Where("job_id = ?", jobID).
			Updates(map[string]any{
				"overall_summary": summary,
				"current_stage":   model.StageCompleted,
				"completed_at":    now,
			}).Error
	})
}

// FailJob marks the job failed with a human-readable error. Partial
// fields written by sibling stages are preserved for diagnostics. The
// first terminal transition wins; later calls are no-ops.
func (r *JobRepository) FailJob(ctx context.Context, jobID uuid.UUID, errMsg string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&model.Job{}).
			Where("id = ? AND status NOT IN ?", jobID, []model.JobStatus{model.JobCompleted, model.JobFailed}).
			Update("status", model.JobFailed)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		return tx.Model(&model.EvaluationResult{}).
			Where("job_id = ?", jobID).
			Updates(map[string]any{
				"current_stage": model.StageFailed,
				"error":         errMsg,
			}).Error
	})
}
