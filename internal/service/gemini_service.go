package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/dzackiero/cv-evaluation/internal/config"
	"github.com/dzackiero/cv-evaluation/internal/retry"
	"github.com/dzackiero/cv-evaluation/internal/rubric"
	"google.golang.org/genai"
)

// TextGenerator is the generation backend consumed by the stage
// processors. Each method performs exactly one attempt; retry policy
// lives with the caller.
type TextGenerator interface {
	GenerateEvaluation(ctx context.Context, prompt string, r *rubric.Rubric) (string, error)
	GenerateSummary(ctx context.Context, prompt string) (string, error)
}

// Embedder produces embeddings for retrieval queries.
type Embedder interface {
	GenerateEmbedding(ctx context.Context, text string) ([]float32, error)
}

type GeminiService struct {
	client         *genai.Client
	model          string
	embeddingModel string
}

func NewGeminiService(ctx context.Context) (*GeminiService, error) {
	geminiConfig := config.LoadGeminiConfig()
	if geminiConfig.APIKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY not set")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  geminiConfig.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	return &GeminiService{
		client:         client,
		model:          geminiConfig.Model,
		embeddingModel: geminiConfig.EmbeddingModel,
	}, nil
}

// GenerateEvaluation requests a structured evaluation constrained to the
// rubric's criterion names. The response schema is built per call from
// the loaded rubric, so criteria changes never need a code change.
func (s *GeminiService) GenerateEvaluation(ctx context.Context, prompt string, r *rubric.Rubric) (string, error) {
	genConfig := &genai.GenerateContentConfig{
		Temperature:      genai.Ptr(float32(0.1)),
		ResponseMIMEType: "application/json",
		ResponseSchema:   evaluationSchema(r),
	}

	result, err := s.client.Models.GenerateContent(ctx, s.model, genai.Text(prompt), genConfig)
	if err != nil {
		return "", classifyGenaiError(err)
	}

	text := strings.TrimSpace(result.Text())
	if text == "" {
		return "", &retry.Error{Message: "gemini returned empty response", Retryable: true}
	}
	return text, nil
}

func (s *GeminiService) GenerateSummary(ctx context.Context, prompt string) (string, error) {
	genConfig := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(float32(0.1)),
	}

	result, err := s.client.Models.GenerateContent(ctx, s.model, genai.Text(prompt), genConfig)
	if err != nil {
		return "", classifyGenaiError(err)
	}

	text := strings.TrimSpace(result.Text())
	if text == "" {
		return "", &retry.Error{Message: "gemini returned empty response", Retryable: true}
	}
	return text, nil
}

func (s *GeminiService) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil, fmt.Errorf("text for embedding cannot be empty")
	}

	content := []*genai.Content{genai.NewContentFromText(trimmed, genai.RoleUser)}
	result, err := s.client.Models.EmbedContent(ctx, s.embeddingModel, content, nil)
	if err != nil {
		return nil, classifyGenaiError(err)
	}

	if len(result.Embeddings) == 0 || len(result.Embeddings[0].Values) == 0 {
		return nil, &retry.Error{Message: "gemini returned empty embedding", Retryable: true}
	}

	values := result.Embeddings[0].Values
	for i, v := range values {
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			return nil, fmt.Errorf("invalid embedding value at index %d: %v", i, v)
		}
	}
	return values, nil
}

// evaluationSchema maps every criterion name to a fixed {score,
// reasoning} shape plus an overall feedback field.
func evaluationSchema(r *rubric.Rubric) *genai.Schema {
	properties := make(map[string]*genai.Schema, len(r.Criteria)+1)
	required := make([]string, 0, len(r.Criteria)+1)

	for _, c := range r.Criteria {
		properties[c.Name] = &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"score": {
					Type:    genai.TypeInteger,
					Minimum: genai.Ptr(float64(1)),
					Maximum: genai.Ptr(float64(5)),
				},
				"reasoning": {
					Type:      genai.TypeString,
					MinLength: genai.Ptr(int64(20)),
				},
			},
			Required: []string{"score", "reasoning"},
		}
		required = append(required, c.Name)
	}

	properties["feedback"] = &genai.Schema{
		Type:      genai.TypeString,
		MinLength: genai.Ptr(int64(100)),
	}
	required = append(required, "feedback")

	return &genai.Schema{
		Type:       genai.TypeObject,
		Properties: properties,
		Required:   required,
	}
}

// classifyGenaiError carries the API status code into the typed error
// so the retry layer can classify 429/5xx as transient.
func classifyGenaiError(err error) error {
	var apiErr *genai.APIError
	if errors.As(err, &apiErr) {
		return &retry.Error{
			Message:    "gemini api error",
			StatusCode: apiErr.Code,
			Cause:      err,
		}
	}
	return err
}
