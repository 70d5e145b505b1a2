package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/dzackiero/cv-evaluation/internal/config"
	"github.com/dzackiero/cv-evaluation/internal/retry"
	"github.com/dzackiero/cv-evaluation/internal/rubric"
	"github.com/go-resty/resty/v2"
	"github.com/tidwall/gjson"
)

const openRouterURL = "https://openrouter.ai/api/v1/chat/completions"

// OpenRouterService is the alternate generation backend, selected with
// GENERATION_PROVIDER=openrouter. OpenRouter has no server-side schema
// enforcement, so the expected JSON shape is spelled out in the system
// message and the answer is validated by the caller like any other
// structured response.
type OpenRouterService struct {
	client *resty.Client
	apiKey string
	model  string
}

func NewOpenRouterService() *OpenRouterService {
	cfg := config.LoadOpenRouterConfig()
	return &OpenRouterService{
		client: resty.New(),
		apiKey: cfg.APIKey,
		model:  cfg.Model,
	}
}

func (s *OpenRouterService) GenerateEvaluation(ctx context.Context, prompt string, r *rubric.Rubric) (string, error) {
	names := make([]string, 0, len(r.Criteria))
	for _, c := range r.Criteria {
		names = append(names, c.Name)
	}

	system := fmt.Sprintf(
		"You are an evaluator. Answer STRICTLY with a single JSON object whose keys are %s and \"feedback\". "+
			"Each criterion key maps to {\"score\": <integer 1-5>, \"reasoning\": <string, at least 20 characters>}. "+
			"\"feedback\" is a string of at least 100 characters. No markdown, no extra keys.",
		strings.Join(quoteAll(names), ", "),
	)

	return s.chat(ctx, system, prompt)
}

func (s *OpenRouterService) GenerateSummary(ctx context.Context, prompt string) (string, error) {
	return s.chat(ctx, "You are an experienced technical recruiter writing concise hiring summaries.", prompt)
}

func (s *OpenRouterService) chat(ctx context.Context, system, prompt string) (string, error) {
	resp, err := s.client.R().
		SetContext(ctx).
		SetHeader("Authorization", "Bearer "+s.apiKey).
		SetHeader("Content-Type", "application/json").
		SetBody(map[string]any{
			"model": s.model,
			"messages": []map[string]string{
				{"role": "system", "content": system},
				{"role": "user", "content": prompt},
			},
		}).
		Post(openRouterURL)
	if err != nil {
		return "", err
	}

	if resp.StatusCode() != 200 {
		return "", &retry.Error{
			Message:    fmt.Sprintf("openrouter returned status %d", resp.StatusCode()),
			StatusCode: resp.StatusCode(),
		}
	}

	content := gjson.Get(resp.String(), "choices.0.message.content").String()
	content = stripCodeFence(content)
	if content == "" {
		return "", &retry.Error{Message: "openrouter returned empty response", Retryable: true}
	}
	return content, nil
}

// stripCodeFence removes a ```json ... ``` wrapper some models insist
// on adding around JSON answers.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func quoteAll(names []string) []string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = fmt.Sprintf("%q", n)
	}
	return quoted
}
