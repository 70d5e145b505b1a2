package rubric

import "testing"

func TestBuiltinRubricsAreValid(t *testing.T) {
	if err := CvRubric().Validate(); err != nil {
		t.Fatalf("cv rubric invalid: %v", err)
	}
	if err := ProjectRubric().Validate(); err != nil {
		t.Fatalf("project rubric invalid: %v", err)
	}
}

func TestValidateRejectsBadWeightSum(t *testing.T) {
	r := &Rubric{
		Kind: KindCV,
		Criteria: []Criterion{
			{Name: "a", Weight: 60},
			{Name: "b", Weight: 37},
		},
	}
	if err := r.Validate(); err == nil {
		t.Fatalf("expected error for weights summing to 97")
	}
}

func TestValidateTolerance(t *testing.T) {
	r := &Rubric{
		Kind: KindProject,
		Criteria: []Criterion{
			{Name: "a", Weight: 50.05},
			{Name: "b", Weight: 50},
		},
	}
	if err := r.Validate(); err != nil {
		t.Fatalf("sum within tolerance must pass, got %v", err)
	}
}
