package service

import (
	"context"
	"fmt"
	"time"

	"github.com/dzackiero/cv-evaluation/internal/model"
	"github.com/dzackiero/cv-evaluation/internal/repository"
	"github.com/dzackiero/cv-evaluation/internal/retry"
	"github.com/dzackiero/cv-evaluation/internal/rubric"
	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"go.uber.org/zap"
)

// RetrievalService answers rubric and context-document lookups for the
// stage processors. Rubrics are validated on every load: a CV rubric
// whose weights do not sum to 100 aborts the stage, while the same
// violation on the Project rubric only logs a warning.
type RetrievalService struct {
	contextRepo *repository.ContextDocumentRepository
	embedder    Embedder
	log         *zap.Logger
	retryCfg    retry.Config
}

func NewRetrievalService(contextRepo *repository.ContextDocumentRepository, embedder Embedder, log *zap.Logger) *RetrievalService {
	cfg := retry.DefaultConfig()
	cfg.Timeout = 30 * time.Second // embeddings are cheap; fail faster than generation
	return &RetrievalService{
		contextRepo: contextRepo,
		embedder:    embedder,
		log:         log,
		retryCfg:    cfg,
	}
}

func (s *RetrievalService) GetRubric(kind string) (*rubric.Rubric, error) {
	var r *rubric.Rubric
	switch kind {
	case rubric.KindCV:
		r = rubric.CvRubric()
	case rubric.KindProject:
		r = rubric.ProjectRubric()
	default:
		return nil, fmt.Errorf("rubric %q: %w", kind, model.ErrNotFound)
	}

	if err := s.checkRubric(kind, r); err != nil {
		return nil, err
	}
	return r, nil
}

// checkRubric enforces the weight-sum invariant. Only the CV rubric
// treats a violation as fatal.
func (s *RetrievalService) checkRubric(kind string, r *rubric.Rubric) error {
	if err := r.Validate(); err != nil {
		if kind == rubric.KindCV {
			return fmt.Errorf("cv rubric misconfigured: %w", err)
		}
		s.log.Warn("project rubric weight sum is off, proceeding anyway",
			zap.Float64("total_weight", r.TotalWeight()),
			zap.Error(err),
		)
	}
	return nil
}

// GetContextDocument finds the stored document of the given kind
// closest to the job title, via an embedding similarity search.
func (s *RetrievalService) GetContextDocument(ctx context.Context, kind model.ContextDocumentKind, jobTitle string) (string, error) {
	embedding, err := retry.Do(ctx, s.log, s.retryCfg, "embedding", func(ctx context.Context) ([]float32, error) {
		return s.embedder.GenerateEmbedding(ctx, jobTitle)
	})
	if err != nil {
		return "", fmt.Errorf("embed job title: %w", err)
	}

	docs, err := s.contextRepo.SearchNearest(ctx, kind, pgvector.NewVector(embedding), 1)
	if err != nil {
		return "", fmt.Errorf("search context documents: %w", err)
	}
	if len(docs) == 0 {
		return "", fmt.Errorf("no %s document for job title %q: %w", kind, jobTitle, model.ErrNotFound)
	}
	return docs[0].Content, nil
}

// SeedContextDocuments ingests context documents with their embeddings.
// Documents whose kind already has entries are skipped, so seeding is
// safe to run on every boot.
func (s *RetrievalService) SeedContextDocuments(ctx context.Context, docs []model.ContextDocument) error {
	seeded := make(map[model.ContextDocumentKind]bool)
	for i := range docs {
		doc := &docs[i]

		if _, checked := seeded[doc.Kind]; !checked {
			count, err := s.contextRepo.CountByKind(ctx, doc.Kind)
			if err != nil {
				return err
			}
			seeded[doc.Kind] = count > 0
		}
		if seeded[doc.Kind] {
			continue
		}

		embedding, err := retry.Do(ctx, s.log, s.retryCfg, "embedding", func(ctx context.Context) ([]float32, error) {
			return s.embedder.GenerateEmbedding(ctx, doc.Content)
		})
		if err != nil {
			return fmt.Errorf("embed context document %q: %w", doc.Title, err)
		}

		doc.ID = uuid.New()
		doc.Embedding = pgvector.NewVector(embedding)
		if err := s.contextRepo.CreateContextDocument(ctx, doc); err != nil {
			return err
		}
		s.log.Info("seeded context document",
			zap.String("kind", string(doc.Kind)),
			zap.String("title", doc.Title),
		)
	}
	return nil
}
