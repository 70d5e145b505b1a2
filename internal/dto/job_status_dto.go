package dto

import (
	"time"

	"github.com/dzackiero/cv-evaluation/internal/model"
)

// JobStatusDTO is the polling response. Result is present only when
// the job completed with both scores; Error only when it failed.
type JobStatusDTO struct {
	ID     string               `json:"id"`
	Status string               `json:"status"`
	Stage  string               `json:"stage"`
	Result *EvaluationResultDTO `json:"result,omitempty"`
	Error  *string              `json:"error,omitempty"`
}

type EvaluationResultDTO struct {
	CvMatchRate     float64           `json:"cv_match_rate"`
	CvFeedback      string            `json:"cv_feedback"`
	CvCriteria      model.CriteriaMap `json:"cv_criteria"`
	ProjectScore    float64           `json:"project_score"`
	ProjectFeedback string            `json:"project_feedback"`
	ProjectCriteria model.CriteriaMap `json:"project_criteria"`
	OverallSummary  string            `json:"overall_summary"`
	CompletedAt     *time.Time        `json:"completed_at"`
}
