package usecase

import (
	"fmt"
	"strings"

	"github.com/dzackiero/cv-evaluation/internal/model"
	"github.com/dzackiero/cv-evaluation/internal/rubric"
)

// buildEvaluationPrompt embeds the rubric criteria, their scoring
// guides, the retrieved context document, and the source text. Criteria
// are emitted in rubric order and guide levels ascending, so identical
// inputs always produce an identical prompt.
func buildEvaluationPrompt(subject, jobTitle string, r *rubric.Rubric, contextDoc, sourceText string) string {
	var b strings.Builder

	fmt.Fprintf(&b, "You are an experienced technical recruiter evaluating a %s for the role of %s.\n\n", subject, jobTitle)
	b.WriteString("Reference material for this role:\n")
	b.WriteString(contextDoc)
	b.WriteString("\n\nEvaluate the document against each criterion below. ")
	b.WriteString("For every criterion give an integer score from 1 to 5 following its scoring guide, ")
	b.WriteString("with at least 20 characters of reasoning, and finish with overall feedback of at least 100 characters.\n\n")

	for _, c := range r.Criteria {
		fmt.Fprintf(&b, "Criterion %q (%s, weight %.0f%%): %s\n", c.Name, c.DisplayName, c.Weight, c.Description)
		for level := 1; level <= 5; level++ {
			if guide, ok := c.ScoringGuide[level]; ok {
				fmt.Fprintf(&b, "  %d = %s\n", level, guide)
			}
		}
	}

	fmt.Fprintf(&b, "\n%s:\n%s\n", strings.ToUpper(subject[:1])+subject[1:], sourceText)
	return b.String()
}

// buildSummaryPrompt asks for the final narrative once both stage
// scores exist.
func buildSummaryPrompt(jobTitle string, result *model.EvaluationResult) string {
	var b strings.Builder

	fmt.Fprintf(&b, "You are an experienced technical recruiter. A candidate for the role of %s has been evaluated.\n\n", jobTitle)
	fmt.Fprintf(&b, "CV match rate: %.2f (scale 0-1)\n", *result.CvMatchRate)
	fmt.Fprintf(&b, "CV feedback: %s\n\n", derefOr(result.CvFeedback, "none"))
	fmt.Fprintf(&b, "Project score: %.1f (scale 1-5)\n", *result.ProjectScore)
	fmt.Fprintf(&b, "Project feedback: %s\n\n", derefOr(result.ProjectFeedback, "none"))
	b.WriteString("Write a 3-5 sentence overall summary of the candidate: general impression, key strengths, and the most important areas to improve. Plain text only.")

	return b.String()
}

func derefOr(s *string, fallback string) string {
	if s == nil || *s == "" {
		return fallback
	}
	return *s
}
