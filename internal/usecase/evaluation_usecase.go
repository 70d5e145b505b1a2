package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/dzackiero/cv-evaluation/internal/dto"
	"github.com/dzackiero/cv-evaluation/internal/model"
	"github.com/dzackiero/cv-evaluation/internal/queue"
	"github.com/dzackiero/cv-evaluation/internal/retry"
	"github.com/dzackiero/cv-evaluation/internal/rubric"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Task names and queues of the evaluation graph. The two children run
// on independent queues; the parent is gated on both succeeding.
const (
	TaskCvEvaluation      = "cv_evaluation"
	TaskProjectEvaluation = "project_evaluation"
	TaskOverallScoring    = "overall_scoring"

	QueueCv      = "cv"
	QueueProject = "project"
	QueueOverall = "overall"

	taskMaxAttempts = 3
	taskBackoffBase = 5 * time.Second
)

// JobStore is the durable job + result state.
type JobStore interface {
	CreateJobWithResult(ctx context.Context, job *model.Job, result *model.EvaluationResult) error
	FindJob(ctx context.Context, id uuid.UUID) (*model.Job, error)
	FindResult(ctx context.Context, jobID uuid.UUID) (*model.EvaluationResult, error)
	UpdateResultFields(ctx context.Context, jobID uuid.UUID, fields map[string]any) error
	SetStage(ctx context.Context, jobID uuid.UUID, stage string) error
	CompleteJob(ctx context.Context, jobID uuid.UUID, summary string) error
	FailJob(ctx context.Context, jobID uuid.UUID, errMsg string) error
}

// DocumentLoader fetches extracted document text, enforcing ownership
// and kind.
type DocumentLoader interface {
	LoadText(ctx context.Context, fileID uuid.UUID, userID string, kind model.DocumentKind) (string, error)
}

// Knowledge resolves rubrics and supporting context documents.
type Knowledge interface {
	GetRubric(kind string) (*rubric.Rubric, error)
	GetContextDocument(ctx context.Context, kind model.ContextDocumentKind, jobTitle string) (string, error)
}

// Generator is one attempt against the text-generation backend.
type Generator interface {
	GenerateEvaluation(ctx context.Context, prompt string, r *rubric.Rubric) (string, error)
	GenerateSummary(ctx context.Context, prompt string) (string, error)
}

// GraphSubmitter enqueues the task DAG.
type GraphSubmitter interface {
	Submit(ctx context.Context, g queue.Graph) error
}

type EvaluationUsecase struct {
	jobs      JobStore
	documents DocumentLoader
	knowledge Knowledge
	generator Generator
	submitter GraphSubmitter
	log       *zap.Logger
	retryCfg  retry.Config
}

func NewEvaluationUsecase(jobs JobStore, documents DocumentLoader, knowledge Knowledge, generator Generator, submitter GraphSubmitter, log *zap.Logger) *EvaluationUsecase {
	return &EvaluationUsecase{
		jobs:      jobs,
		documents: documents,
		knowledge: knowledge,
		generator: generator,
		submitter: submitter,
		log:       log,
		retryCfg:  retry.DefaultConfig(),
	}
}

type InitializeJobRequest struct {
	JobTitle     string
	CvFileID     uuid.UUID
	ReportFileID uuid.UUID
}

// InitializeJob creates the job and its result row as a unit, then
// submits the three-task graph: CV and Project evaluation as
// independent children, overall scoring as the parent dispatched only
// after both succeed.
func (uc *EvaluationUsecase) InitializeJob(ctx context.Context, userID string, req InitializeJobRequest) (*model.Job, error) {
	job := &model.Job{
		ID:           uuid.New(),
		UserID:       userID,
		Title:        req.JobTitle,
		CvFileID:     req.CvFileID,
		ReportFileID: req.ReportFileID,
		Status:       model.JobQueued,
	}
	result := &model.EvaluationResult{
		ID:           uuid.New(),
		JobID:        job.ID,
		CurrentStage: model.StageQueued,
	}

	if err := uc.jobs.CreateJobWithResult(ctx, job, result); err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}

	graph := queue.Graph{
		JobID: job.ID,
		Tasks: []queue.TaskSpec{
			{Name: TaskCvEvaluation, Queue: QueueCv, MaxAttempts: taskMaxAttempts, BackoffBase: taskBackoffBase},
			{Name: TaskProjectEvaluation, Queue: QueueProject, MaxAttempts: taskMaxAttempts, BackoffBase: taskBackoffBase},
			{
				Name:        TaskOverallScoring,
				Queue:       QueueOverall,
				DependsOn:   []string{TaskCvEvaluation, TaskProjectEvaluation},
				MaxAttempts: taskMaxAttempts,
				BackoffBase: taskBackoffBase,
			},
		},
	}
	if err := uc.submitter.Submit(ctx, graph); err != nil {
		if failErr := uc.jobs.FailJob(ctx, job.ID, "failed to enqueue evaluation tasks"); failErr != nil {
			uc.log.Error("mark job failed", zap.String("job_id", job.ID.String()), zap.Error(failErr))
		}
		return nil, fmt.Errorf("submit task graph: %w", err)
	}

	uc.log.Info("evaluation job created",
		zap.String("job_id", job.ID.String()),
		zap.String("job_title", req.JobTitle),
	)
	return job, nil
}

// GetJobStatus reports the latest known state. It never blocks on the
// pipeline and is safe to call at any point after creation. The result
// payload is attached only for a completed job with both scores
// present; a failed job exposes the error string and nothing else.
func (uc *EvaluationUsecase) GetJobStatus(ctx context.Context, jobID uuid.UUID) (*dto.JobStatusDTO, error) {
	job, err := uc.jobs.FindJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	result, err := uc.jobs.FindResult(ctx, jobID)
	if err != nil {
		return nil, err
	}

	status := job.Status
	if status == model.JobQueued && result.CurrentStage != model.StageQueued {
		status = model.JobProcessing
	}

	out := &dto.JobStatusDTO{
		ID:     job.ID.String(),
		Status: string(status),
		Stage:  result.CurrentStage,
	}

	switch {
	case job.Status == model.JobFailed:
		out.Error = result.Error
	case job.Status == model.JobCompleted && result.CvMatchRate != nil && result.ProjectScore != nil:
		out.Result = &dto.EvaluationResultDTO{
			CvMatchRate:     *result.CvMatchRate,
			CvFeedback:      deref(result.CvFeedback),
			CvCriteria:      result.CvCriteria,
			ProjectScore:    *result.ProjectScore,
			ProjectFeedback: deref(result.ProjectFeedback),
			ProjectCriteria: result.ProjectCriteria,
			OverallSummary:  deref(result.OverallSummary),
			CompletedAt:     result.CompletedAt,
		}
	}
	return out, nil
}

// TaskFailed is the queue's failure sink: any task's permanent failure
// fails the whole job. Sibling stages' partial fields stay in place for
// diagnostics; the first terminal transition wins.
func (uc *EvaluationUsecase) TaskFailed(ctx context.Context, task model.Task, cause error) {
	uc.log.Error("evaluation task failed permanently",
		zap.String("task", task.Name),
		zap.String("job_id", task.JobID.String()),
		zap.Error(cause),
	)
	msg := fmt.Sprintf("%s failed: %v", task.Name, cause)
	if err := uc.jobs.FailJob(ctx, task.JobID, msg); err != nil {
		uc.log.Error("mark job failed", zap.String("job_id", task.JobID.String()), zap.Error(err))
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
