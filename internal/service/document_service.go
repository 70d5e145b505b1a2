package service

import (
	"context"
	"fmt"

	"github.com/dzackiero/cv-evaluation/internal/model"
	"github.com/dzackiero/cv-evaluation/internal/repository"
	"github.com/dzackiero/cv-evaluation/internal/util"
	"github.com/google/uuid"
)

// DocumentService is the document store collaborator: it persists
// uploaded candidate files as extracted text and hands that text to the
// stage processors, enforcing owner and kind on every read.
type DocumentService struct {
	repo *repository.DocumentRepository
}

func NewDocumentService(repo *repository.DocumentRepository) *DocumentService {
	return &DocumentService{repo: repo}
}

// LoadText returns the extracted text for a file the user owns. A
// missing record, a different owner, or a kind mismatch all surface as
// model.ErrNotFound.
func (s *DocumentService) LoadText(ctx context.Context, fileID uuid.UUID, userID string, kind model.DocumentKind) (string, error) {
	doc, err := s.repo.FindOwned(ctx, fileID, userID, kind)
	if err != nil {
		return "", fmt.Errorf("load %s %s: %w", kind, fileID, err)
	}
	return doc.Content, nil
}

// SavePDF extracts the text from an uploaded PDF and persists it.
func (s *DocumentService) SavePDF(ctx context.Context, userID string, kind model.DocumentKind, filename, path string) (*model.Document, error) {
	content, err := util.ExtractPDFText(path)
	if err != nil {
		return nil, fmt.Errorf("extract %s text: %w", kind, err)
	}

	doc := &model.Document{
		ID:       uuid.New(),
		UserID:   userID,
		Kind:     kind,
		Filename: filename,
		Content:  content,
	}
	if err := s.repo.CreateDocument(ctx, doc); err != nil {
		return nil, err
	}
	return doc, nil
}
