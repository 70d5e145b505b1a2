package repository

import (
	"context"
	"errors"

	"github.com/dzackiero/cv-evaluation/internal/model"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type DocumentRepository struct {
	db *gorm.DB
}

func NewDocumentRepository(db *gorm.DB) *DocumentRepository {
	return &DocumentRepository{db}
}

func (r *DocumentRepository) CreateDocument(ctx context.Context, doc *model.Document) error {
	return r.db.WithContext(ctx).Create(doc).Error
}

// FindOwned loads a document only when id, owner, and kind all match.
// A record owned by someone else or of the wrong kind is reported the
// same as a missing one.
func (r *DocumentRepository) FindOwned(ctx context.Context, id uuid.UUID, userID string, kind model.DocumentKind) (*model.Document, error) {
	var doc model.Document
	err := r.db.WithContext(ctx).
		First(&doc, "id = ? AND user_id = ? AND kind = ?", id, userID, kind).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &doc, nil
}
