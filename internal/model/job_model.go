package model

import (
	"time"

	"github.com/google/uuid"
)

type JobStatus string

const (
	JobQueued     JobStatus = "queued"
	JobProcessing JobStatus = "processing" // derived for reads, never stored
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
)

// Terminal reports whether the status can never change again.
func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobFailed
}

// Job is one end-to-end evaluation request. Status is written only on
// terminal transitions: the overall stage writes completed, any stage's
// exhausted-retry path writes failed. Between creation and a terminal
// state the stored status stays queued; reads derive "processing" from
// the result's current stage.
type Job struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	UserID       string    `gorm:"type:varchar(100);index" json:"user_id"`
	Title        string    `json:"title"`
	CvFileID     uuid.UUID `gorm:"type:uuid" json:"cv_file_id"`
	ReportFileID uuid.UUID `gorm:"type:uuid" json:"report_file_id"`
	Status       JobStatus `gorm:"type:varchar(20)" json:"status"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
