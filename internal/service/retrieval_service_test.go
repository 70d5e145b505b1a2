package service

import (
	"testing"

	"github.com/dzackiero/cv-evaluation/internal/rubric"
	"go.uber.org/zap"
)

func skewedRubric(kind string) *rubric.Rubric {
	return &rubric.Rubric{
		Kind: kind,
		Criteria: []rubric.Criterion{
			{Name: "a", Weight: 60},
			{Name: "b", Weight: 37},
		},
	}
}

func TestCheckRubricCvViolationIsFatal(t *testing.T) {
	s := &RetrievalService{log: zap.NewNop()}
	if err := s.checkRubric(rubric.KindCV, skewedRubric(rubric.KindCV)); err == nil {
		t.Fatalf("expected error for cv rubric weights summing to 97")
	}
}

func TestCheckRubricProjectViolationOnlyWarns(t *testing.T) {
	s := &RetrievalService{log: zap.NewNop()}
	if err := s.checkRubric(rubric.KindProject, skewedRubric(rubric.KindProject)); err != nil {
		t.Fatalf("project rubric violation must not be fatal, got %v", err)
	}
}

func TestGetRubricUnknownKind(t *testing.T) {
	s := &RetrievalService{log: zap.NewNop()}
	if _, err := s.GetRubric("cover_letter"); err == nil {
		t.Fatalf("expected error for unknown rubric kind")
	}
}

func TestGetRubricBuiltins(t *testing.T) {
	s := &RetrievalService{log: zap.NewNop()}
	for _, kind := range []string{rubric.KindCV, rubric.KindProject} {
		r, err := s.GetRubric(kind)
		if err != nil {
			t.Fatalf("%s: %v", kind, err)
		}
		if r.Kind != kind {
			t.Fatalf("expected kind %s, got %s", kind, r.Kind)
		}
	}
}
