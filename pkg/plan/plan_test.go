// Copyright 2025 Gerry Miller <gerry@gerrymiller.com>
//
// Licensed under the MIT License.
// See LICENSE file in the project root for full license information.

package plan

import "testing"

func TestClassifyLeadingWord(t *testing.T) {
	cases := map[string]Category{
		"Who founded Acme Corp?":        CategoryPerson,
		"Where is Acme Corp located?":   CategoryLocation,
		"What is Acme Corp?":            CategoryConcept,
		"When was Acme Corp founded?":   CategoryTime,
		"How does Acme Corp operate?":   CategoryProcess,
		"Why did Acme Corp relocate?":   CategoryCausal,
		"Describe Acme Corp's history.": CategoryGeneral,
	}
	for question, expected := range cases {
		if got := Classify(question); got != expected {
			t.Errorf("Classify(%q) = %v, want %v", question, got, expected)
		}
	}
}

func TestBuildEmitsFixedStepShape(t *testing.T) {
	p, err := Build("Who founded Acme Corp?")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(p.Steps) != 6 {
		t.Fatalf("expected 6 steps, got %d", len(p.Steps))
	}

	byID := make(map[string]Step)
	for _, s := range p.Steps {
		byID[s.ID] = s
	}

	if len(byID["entity_identification"].DependsOn) != 0 {
		t.Fatal("entity_identification must have no dependencies")
	}
	if len(byID["evidence_collection"].DependsOn) != 3 {
		t.Fatalf("expected evidence_collection to depend on all 3 preceding steps, got %d", len(byID["evidence_collection"].DependsOn))
	}
	if byID["answer_generation"].DependsOn[0] != "evidence_collection" {
		t.Fatal("answer_generation must depend on evidence_collection")
	}
	if byID["result_validation"].DependsOn[0] != "answer_generation" {
		t.Fatal("result_validation must depend on answer_generation")
	}
}

func TestBuildChoosesStrategyByCategory(t *testing.T) {
	causal, err := Build("Why did Acme Corp relocate?")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if causal.Strategy != StrategyAdaptive {
		t.Fatalf("expected ADAPTIVE for causal questions, got %v", causal.Strategy)
	}

	other, err := Build("Where is Acme Corp located?")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if other.Strategy != StrategyParallel {
		t.Fatalf("expected PARALLEL for non-causal multi-step plans, got %v", other.Strategy)
	}
}

func TestBuildRejectsEmptyQuestion(t *testing.T) {
	if _, err := Build("   "); err == nil {
		t.Fatal("expected error for empty question")
	}
}

func TestValidateRejectsUnknownDependency(t *testing.T) {
	p := &Plan{Steps: []Step{
		{ID: "a", DependsOn: []string{"ghost"}},
	}}
	if err := Validate(p); err == nil {
		t.Fatal("expected error for dependency on unknown step")
	}
}

func TestValidateRejectsCycle(t *testing.T) {
	p := &Plan{Steps: []Step{
		{ID: "a", DependsOn: []string{"b"}},
		{ID: "b", DependsOn: []string{"a"}},
	}}
	if err := Validate(p); err == nil {
		t.Fatal("expected error for cyclic dependency graph")
	}
}
