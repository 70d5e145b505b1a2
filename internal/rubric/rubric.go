// Package rubric holds the weighted evaluation rubrics and the pure
// scoring engine that turns raw per-criterion LLM scores into a single
// weighted percentage.
package rubric

import (
	"fmt"
	"math"
)

const (
	KindCV      = "cv"
	KindProject = "project"

	// weightTolerance is the slack allowed when checking that criterion
	// weights sum to 100.
	weightTolerance = 0.1
)

// Criterion is one named, weighted axis of evaluation. ScoringGuide
// maps integer levels 1-5 to descriptive text embedded in prompts.
type Criterion struct {
	Name         string
	DisplayName  string
	Weight       float64
	Description  string
	ScoringGuide map[int]string
}

// Rubric is an ordered list of criteria whose weights sum to 100.
type Rubric struct {
	Kind     string
	Criteria []Criterion
}

// TotalWeight sums all criterion weights.
func (r *Rubric) TotalWeight() float64 {
	var total float64
	for _, c := range r.Criteria {
		total += c.Weight
	}
	return total
}

// Validate checks the weight-sum invariant. Callers decide whether a
// violation is fatal: for the CV rubric it aborts the stage, for the
// Project rubric it is logged and the stage proceeds.
func (r *Rubric) Validate() error {
	total := r.TotalWeight()
	if math.Abs(total-100) > weightTolerance {
		return fmt.Errorf("%s rubric weights sum to %.2f, expected 100", r.Kind, total)
	}
	return nil
}

// CvRubric returns the rubric applied to candidate CVs.
func CvRubric() *Rubric {
	return &Rubric{
		Kind: KindCV,
		Criteria: []Criterion{
			{
				Name:        "technical_skills_match",
				DisplayName: "Technical Skills Match",
				Weight:      40,
				Description: "Alignment with backend, databases, APIs, cloud, and AI/LLM exposure.",
				ScoringGuide: map[int]string{
					1: "Irrelevant skills",
					2: "Few overlaps",
					3: "Partial match",
					4: "Strong match",
					5: "Excellent match plus AI/LLM exposure",
				},
			},
			{
				Name:        "experience_level",
				DisplayName: "Experience Level",
				Weight:      25,
				Description: "Years of experience and project complexity.",
				ScoringGuide: map[int]string{
					1: "Less than 1 year or trivial projects",
					2: "1-2 years",
					3: "2-3 years with mid-scale projects",
					4: "3-4 years with solid track record",
					5: "5+ years or high-impact projects",
				},
			},
			{
				Name:        "relevant_achievements",
				DisplayName: "Relevant Achievements",
				Weight:      20,
				Description: "Impact and scale of past work.",
				ScoringGuide: map[int]string{
					1: "No clear achievements",
					2: "Minimal improvements",
					3: "Some measurable outcomes",
					4: "Significant contributions",
					5: "Major measurable impact",
				},
			},
			{
				Name:        "cultural_fit",
				DisplayName: "Cultural / Collaboration Fit",
				Weight:      15,
				Description: "Communication, learning mindset, teamwork.",
				ScoringGuide: map[int]string{
					1: "Not demonstrated",
					2: "Minimal",
					3: "Average",
					4: "Good",
					5: "Excellent and well-demonstrated",
				},
			},
		},
	}
}

// ProjectRubric returns the rubric applied to project reports.
func ProjectRubric() *Rubric {
	return &Rubric{
		Kind: KindProject,
		Criteria: []Criterion{
			{
				Name:        "correctness",
				DisplayName: "Correctness",
				Weight:      30,
				Description: "Prompt design, LLM chaining, RAG context injection.",
				ScoringGuide: map[int]string{
					1: "Not implemented",
					2: "Minimal attempt",
					3: "Works partially",
					4: "Works correctly",
					5: "Fully correct and thoughtful",
				},
			},
			{
				Name:        "code_quality",
				DisplayName: "Code Quality & Structure",
				Weight:      25,
				Description: "Clean, modular, reusable, tested code.",
				ScoringGuide: map[int]string{
					1: "Poor",
					2: "Some structure",
					3: "Decent modularity",
					4: "Good structure with some tests",
					5: "Excellent quality with strong tests",
				},
			},
			{
				Name:        "resilience",
				DisplayName: "Resilience & Error Handling",
				Weight:      20,
				Description: "Handles long jobs, retries, randomness, API failures.",
				ScoringGuide: map[int]string{
					1: "Missing",
					2: "Minimal handling",
					3: "Partial handling",
					4: "Solid handling",
					5: "Robust, production-ready",
				},
			},
			{
				Name:        "documentation",
				DisplayName: "Documentation & Explanation",
				Weight:      15,
				Description: "README clarity, setup instructions, trade-off explanations.",
				ScoringGuide: map[int]string{
					1: "Missing",
					2: "Minimal",
					3: "Adequate",
					4: "Clear",
					5: "Excellent and thorough",
				},
			},
			{
				Name:        "creativity_or_bonus",
				DisplayName: "Creativity / Bonus Work",
				Weight:      10,
				Description: "Extra features beyond requirements.",
				ScoringGuide: map[int]string{
					1: "None",
					2: "Very basic",
					3: "Useful extras",
					4: "Strong extras",
					5: "Outstanding additions",
				},
			},
		},
	}
}
