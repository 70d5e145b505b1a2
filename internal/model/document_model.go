package model

import (
	"time"

	"github.com/google/uuid"
)

type DocumentKind string

const (
	DocumentCV            DocumentKind = "cv"
	DocumentProjectReport DocumentKind = "project_report"
)

// Document is an uploaded candidate file with its extracted text. The
// binary itself is not kept; only the text matters to the pipeline.
type Document struct {
	ID        uuid.UUID    `gorm:"type:uuid;primaryKey" json:"id"`
	UserID    string       `gorm:"type:varchar(100);index" json:"user_id"`
	Kind      DocumentKind `gorm:"type:varchar(30)" json:"kind"`
	Filename  string       `json:"filename"`
	Content   string       `gorm:"type:text" json:"-"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}
