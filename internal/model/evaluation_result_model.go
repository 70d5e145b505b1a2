package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Stages of the evaluation pipeline, in the order a result moves through
// them. The CV and Project branches run concurrently, so a reader may
// observe either branch's stage depending on which wrote last.
const (
	StageQueued            = "queued"
	StageCvProcessing      = "cv_processing"
	StageCvCompleted       = "cv_completed"
	StageProjectProcessing = "project_processing"
	StageProjectCompleted  = "project_completed"
	StageOverallProcessing = "overall_processing"
	StageCompleted         = "completed"
	StageFailed            = "failed"
)

// CriterionScore is one scored rubric criterion, kept for audit/display.
type CriterionScore struct {
	Score       int     `json:"score"`
	Reasoning   string  `json:"reasoning"`
	Weight      float64 `json:"weight"`
	DisplayName string  `json:"display_name"`
}

// CriteriaMap maps criterion name to its scored entry. Stored as jsonb.
type CriteriaMap map[string]CriterionScore

func (m CriteriaMap) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	return json.Marshal(m)
}

func (m *CriteriaMap) Scan(value any) error {
	if value == nil {
		*m = nil
		return nil
	}
	var raw []byte
	switch v := value.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into CriteriaMap", value)
	}
	return json.Unmarshal(raw, m)
}

// EvaluationResult is the one-to-one companion of a Job, created together
// with it at stage "queued". The CV and Project stages each write only
// their own columns so concurrent writers never conflict; CompletedAt is
// set if and only if CurrentStage is "completed".
type EvaluationResult struct {
	ID              uuid.UUID   `gorm:"type:uuid;primaryKey" json:"id"`
	JobID           uuid.UUID   `gorm:"type:uuid;uniqueIndex" json:"job_id"`
	CvMatchRate     *float64    `gorm:"type:float" json:"cv_match_rate"`
	CvFeedback      *string     `gorm:"type:text" json:"cv_feedback"`
	CvCriteria      CriteriaMap `gorm:"type:jsonb" json:"cv_criteria"`
	ProjectScore    *float64    `gorm:"type:float" json:"project_score"`
	ProjectFeedback *string     `gorm:"type:text" json:"project_feedback"`
	ProjectCriteria CriteriaMap `gorm:"type:jsonb" json:"project_criteria"`
	OverallSummary  *string     `gorm:"type:text" json:"overall_summary"`
	Error           *string     `gorm:"type:text" json:"error"`
	CurrentStage    string      `gorm:"type:varchar(30)" json:"current_stage"`
	CompletedAt     *time.Time  `json:"completed_at"`
	CreatedAt       time.Time   `json:"created_at"`
	UpdatedAt       time.Time   `json:"updated_at"`
}
