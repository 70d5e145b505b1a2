package usecase

import (
	"context"
	"fmt"

	"github.com/dzackiero/cv-evaluation/internal/model"
	"github.com/dzackiero/cv-evaluation/internal/retry"
	"github.com/dzackiero/cv-evaluation/internal/rubric"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

const (
	minReasoningLength = 20
	minFeedbackLength  = 100
)

// stageEvaluation is one validated structured answer from the
// generation backend.
type stageEvaluation struct {
	Scores   map[string]rubric.RawScore
	Feedback string
}

// ProcessCvEvaluation scores the candidate's CV against the CV rubric
// and the retrieved job description.
func (uc *EvaluationUsecase) ProcessCvEvaluation(ctx context.Context, task model.Task) error {
	job, err := uc.jobs.FindJob(ctx, task.JobID)
	if err != nil {
		return err
	}

	text, err := uc.documents.LoadText(ctx, job.CvFileID, job.UserID, model.DocumentCV)
	if err != nil {
		return err
	}

	if err := uc.jobs.SetStage(ctx, task.JobID, model.StageCvProcessing); err != nil {
		return err
	}

	r, err := uc.knowledge.GetRubric(rubric.KindCV)
	if err != nil {
		return err
	}
	contextDoc, err := uc.knowledge.GetContextDocument(ctx, model.ContextJobDescription, job.Title)
	if err != nil {
		return err
	}

	prompt := buildEvaluationPrompt("candidate CV", job.Title, r, contextDoc, text)
	eval, err := uc.generateEvaluation(ctx, TaskCvEvaluation, prompt, r)
	if err != nil {
		return err
	}

	scored := rubric.Score(r, eval.Scores)
	matchRate := rubric.CvMatchRate(scored.WeightedScore)

	uc.log.Info("cv evaluation scored",
		zap.String("job_id", task.JobID.String()),
		zap.Float64("weighted_score", scored.WeightedScore),
		zap.Float64("cv_match_rate", matchRate),
	)

	return uc.jobs.UpdateResultFields(ctx, task.JobID, map[string]any{
		"cv_match_rate": matchRate,
		"cv_feedback":   eval.Feedback,
		"cv_criteria":   scored.Criteria,
		"current_stage": model.StageCvCompleted,
	})
}

// ProcessProjectEvaluation scores the project report against the
// project rubric and the retrieved case study brief.
func (uc *EvaluationUsecase) ProcessProjectEvaluation(ctx context.Context, task model.Task) error {
	job, err := uc.jobs.FindJob(ctx, task.JobID)
	if err != nil {
		return err
	}

	text, err := uc.documents.LoadText(ctx, job.ReportFileID, job.UserID, model.DocumentProjectReport)
	if err != nil {
		return err
	}

	if err := uc.jobs.SetStage(ctx, task.JobID, model.StageProjectProcessing); err != nil {
		return err
	}

	r, err := uc.knowledge.GetRubric(rubric.KindProject)
	if err != nil {
		return err
	}
	contextDoc, err := uc.knowledge.GetContextDocument(ctx, model.ContextCaseStudy, job.Title)
	if err != nil {
		return err
	}

	prompt := buildEvaluationPrompt("project report", job.Title, r, contextDoc, text)
	eval, err := uc.generateEvaluation(ctx, TaskProjectEvaluation, prompt, r)
	if err != nil {
		return err
	}

	scored := rubric.Score(r, eval.Scores)
	projectScore := rubric.ProjectScore(scored.WeightedScore)

	uc.log.Info("project evaluation scored",
		zap.String("job_id", task.JobID.String()),
		zap.Float64("weighted_score", scored.WeightedScore),
		zap.Float64("project_score", projectScore),
	)

	return uc.jobs.UpdateResultFields(ctx, task.JobID, map[string]any{
		"project_score":    projectScore,
		"project_feedback": eval.Feedback,
		"project_criteria": scored.Criteria,
		"current_stage":    model.StageProjectCompleted,
	})
}

// ProcessOverallScoring reads both partial results, asks the backend
// for a hiring summary, and applies the terminal transition. Being
// invoked while either score is still null means the task graph's
// dependency wiring is broken; that fails loudly and is never retried.
func (uc *EvaluationUsecase) ProcessOverallScoring(ctx context.Context, task model.Task) error {
	result, err := uc.jobs.FindResult(ctx, task.JobID)
	if err != nil {
		return err
	}
	if result.CvMatchRate == nil || result.ProjectScore == nil {
		return fmt.Errorf("job %s: %w", task.JobID, model.ErrStageOrder)
	}

	if err := uc.jobs.SetStage(ctx, task.JobID, model.StageOverallProcessing); err != nil {
		return err
	}

	job, err := uc.jobs.FindJob(ctx, task.JobID)
	if err != nil {
		return err
	}

	prompt := buildSummaryPrompt(job.Title, result)
	summary, err := retry.Do(ctx, uc.log, uc.retryCfg, TaskOverallScoring, func(ctx context.Context) (string, error) {
		return uc.generator.GenerateSummary(ctx, prompt)
	})
	if err != nil {
		return err
	}

	uc.log.Info("overall summary generated", zap.String("job_id", task.JobID.String()))
	return uc.jobs.CompleteJob(ctx, task.JobID, summary)
}

// generateEvaluation invokes the backend through the resilient layer.
// Parsing and validation happen inside the retried closure: a malformed
// answer is just another transient failure of a nondeterministic
// service.
func (uc *EvaluationUsecase) generateEvaluation(ctx context.Context, stage, prompt string, r *rubric.Rubric) (*stageEvaluation, error) {
	return retry.Do(ctx, uc.log, uc.retryCfg, stage, func(ctx context.Context) (*stageEvaluation, error) {
		raw, err := uc.generator.GenerateEvaluation(ctx, prompt, r)
		if err != nil {
			return nil, err
		}
		eval, err := parseEvaluation(raw, r)
		if err != nil {
			return nil, &retry.Error{Message: "malformed evaluation response", Retryable: true, Cause: err}
		}
		return eval, nil
	})
}

// parseEvaluation validates the structured answer against the same
// criterion-name mapping the request schema was built from. Criteria
// missing from the answer are skipped; the scoring engine handles the
// partial-credit arithmetic.
func parseEvaluation(text string, r *rubric.Rubric) (*stageEvaluation, error) {
	if !gjson.Valid(text) {
		return nil, fmt.Errorf("response is not valid JSON")
	}

	feedback := gjson.Get(text, "feedback").String()
	if len(feedback) < minFeedbackLength {
		return nil, fmt.Errorf("feedback shorter than %d characters", minFeedbackLength)
	}

	scores := make(map[string]rubric.RawScore)
	for _, c := range r.Criteria {
		entry := gjson.Get(text, c.Name)
		if !entry.Exists() {
			continue
		}

		score := int(entry.Get("score").Int())
		if score < 1 || score > 5 {
			return nil, fmt.Errorf("criterion %q score %d out of range", c.Name, score)
		}
		reasoning := entry.Get("reasoning").String()
		if len(reasoning) < minReasoningLength {
			return nil, fmt.Errorf("criterion %q reasoning shorter than %d characters", c.Name, minReasoningLength)
		}

		scores[c.Name] = rubric.RawScore{Score: score, Reasoning: reasoning}
	}

	if len(scores) == 0 {
		return nil, fmt.Errorf("no rubric criteria present in response")
	}
	return &stageEvaluation{Scores: scores, Feedback: feedback}, nil
}
