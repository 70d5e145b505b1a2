package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
)

type ContextDocumentKind string

const (
	ContextJobDescription ContextDocumentKind = "job_description"
	ContextCaseStudy      ContextDocumentKind = "case_study"
)

// ContextDocument is a knowledge-base entry (job description or case
// study brief) retrieved by vector similarity against a job title.
type ContextDocument struct {
	ID        uuid.UUID           `gorm:"type:uuid;primaryKey" json:"id"`
	Kind      ContextDocumentKind `gorm:"type:varchar(30);index" json:"kind"`
	Title     string              `json:"title"`
	Content   string              `gorm:"type:text" json:"content"`
	Embedding pgvector.Vector     `gorm:"type:vector(3072)" json:"-"`
	CreatedAt time.Time           `json:"created_at"`
	UpdatedAt time.Time           `json:"updated_at"`
}
