package repository

import (
	"context"

	"github.com/dzackiero/cv-evaluation/internal/model"
	"github.com/pgvector/pgvector-go"
	"gorm.io/gorm"
)

type ContextDocumentRepository struct {
	db *gorm.DB
}

func NewContextDocumentRepository(db *gorm.DB) *ContextDocumentRepository {
	return &ContextDocumentRepository{db}
}

func (r *ContextDocumentRepository) CreateContextDocument(ctx context.Context, doc *model.ContextDocument) error {
	return r.db.WithContext(ctx).Create(doc).Error
}

func (r *ContextDocumentRepository) CountByKind(ctx context.Context, kind model.ContextDocumentKind) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.ContextDocument{}).
		Where("kind = ?", kind).
		Count(&count).Error
	return count, err
}

// SearchNearest returns the kind's documents closest to the embedding,
// using the pgvector distance operator.
func (r *ContextDocumentRepository) SearchNearest(ctx context.Context, kind model.ContextDocumentKind, embedding pgvector.Vector, topK int) ([]model.ContextDocument, error) {
	var docs []model.ContextDocument
	err := r.db.WithContext(ctx).Raw(`
        SELECT id, kind, title, content, created_at, updated_at
        FROM context_documents
        WHERE kind = ?
        ORDER BY embedding <-> ?
        LIMIT ?
    `, kind, embedding, topK).Scan(&docs).Error
	return docs, err
}
