// Copyright 2025 Gerry Miller <gerry@gerrymiller.com>
//
// Licensed under the MIT License.
// See LICENSE file in the project root for full license information.

package reason

import (
	"context"
	"testing"

	"graphreasoner/pkg/graph"
	"graphreasoner/pkg/graph/memgraph"
	"graphreasoner/pkg/plan"
	"graphreasoner/pkg/search"
)

type fakeLLM struct {
	text string
	err  error
}

func (f *fakeLLM) Generate(ctx context.Context, prompt string, temperature float32, maxTokens int) (string, error) {
	return f.text, f.err
}
func (f *fakeLLM) GenerateBatch(ctx context.Context, prompts []string, temperature float32, maxTokens int) ([]string, error) {
	out := make([]string, len(prompts))
	for i := range prompts {
		out[i] = f.text
	}
	return out, f.err
}
func (f *fakeLLM) Name() string      { return "fake" }
func (f *fakeLLM) ModelName() string { return "fake-model" }

func seededStore() *memgraph.Store {
	s := memgraph.New()
	s.AddEntity(graph.Entity{ID: "alice", Type: "Person", Name: "Alice Johnson"})
	s.AddEntity(graph.Entity{ID: "acme", Type: "Organization", Name: "Acme Corp"})
	s.AddEntity(graph.Entity{ID: "lyon", Type: "Location", Name: "Lyon"})
	s.AddRelation(graph.Relation{Type: "FOUNDED", SourceID: "alice", TargetID: "acme"})
	s.AddRelation(graph.Relation{Type: "LOCATED_IN", SourceID: "acme", TargetID: "lyon"})
	return s
}

func TestReasonProducesPathsAndEvidence(t *testing.T) {
	store := seededStore()
	engine := search.NewEngine(store, nil, nil, nil)
	reasoner := NewReasoner(store, engine, &fakeLLM{text: "Alice founded Acme Corp."})

	seed, err := store.FindEntity(context.Background(), "alice")
	if err != nil || seed == nil {
		t.Fatalf("failed to load seed entity: %v", err)
	}

	result, err := reasoner.Reason(context.Background(), "Who founded Acme Corp?", plan.CategoryPerson, []graph.Entity{*seed}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Evidence) == 0 {
		t.Fatal("expected at least one evidence item")
	}
	if result.Answer != "Alice founded Acme Corp." {
		t.Fatalf("expected LLM-synthesized answer, got %q", result.Answer)
	}
	if result.Confidence <= 0 {
		t.Fatalf("expected positive confidence, got %v", result.Confidence)
	}
}

func TestReasonFallsBackWithoutLLM(t *testing.T) {
	store := seededStore()
	engine := search.NewEngine(store, nil, nil, nil)
	reasoner := NewReasoner(store, engine, nil)

	seed, _ := store.FindEntity(context.Background(), "alice")
	result, err := reasoner.Reason(context.Background(), "Who founded Acme Corp?", plan.CategoryPerson, []graph.Entity{*seed}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Answer == "" {
		t.Fatal("expected a deterministic fallback answer")
	}
}

func TestReasonRejectsEmptySeeds(t *testing.T) {
	store := seededStore()
	engine := search.NewEngine(store, nil, nil, nil)
	reasoner := NewReasoner(store, engine, nil)

	if _, err := reasoner.Reason(context.Background(), "Who founded Acme Corp?", plan.CategoryPerson, nil, nil); err == nil {
		t.Fatal("expected error for empty seed list")
	}
}

func TestReasonRejectsEmptyQuestion(t *testing.T) {
	store := seededStore()
	engine := search.NewEngine(store, nil, nil, nil)
	reasoner := NewReasoner(store, engine, nil)
	seed, _ := store.FindEntity(context.Background(), "alice")

	if _, err := reasoner.Reason(context.Background(), "", plan.CategoryGeneral, []graph.Entity{*seed}, nil); err == nil {
		t.Fatal("expected error for empty question")
	}
}

func intPtr(v int) *int { return &v }

func TestReasonMaxDepthZeroUsesOnlySeeds(t *testing.T) {
	store := seededStore()
	engine := search.NewEngine(store, nil, nil, nil)
	reasoner := NewReasoner(store, engine, nil)
	seed, _ := store.FindEntity(context.Background(), "alice")

	result, err := reasoner.Reason(context.Background(), "Who founded Acme Corp?", plan.CategoryPerson, []graph.Entity{*seed}, &Config{MaxDepth: intPtr(0)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Paths) != 0 {
		t.Fatalf("expected no traversal paths with MaxDepth 0, got %d", len(result.Paths))
	}
	if len(result.Evidence) != 1 {
		t.Fatalf("expected exactly one seed-only evidence item, got %d", len(result.Evidence))
	}
	if result.Evidence[0].Description != "seed entity: Alice Johnson (Person)" {
		t.Fatalf("expected seed-only evidence description, got %q", result.Evidence[0].Description)
	}
}

func TestReasonWarnsWhenSeedHasNoNeighbors(t *testing.T) {
	store := seededStore()
	store.AddEntity(graph.Entity{ID: "isolated", Type: "Person", Name: "Isolated Person"})
	engine := search.NewEngine(store, nil, nil, nil)
	reasoner := NewReasoner(store, engine, nil)
	seed, _ := store.FindEntity(context.Background(), "isolated")

	result, err := reasoner.Reason(context.Background(), "Who is Isolated Person?", plan.CategoryPerson, []graph.Entity{*seed}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Warnings) == 0 {
		t.Fatal("expected a non-empty warnings list for a seed with no neighbors")
	}
	if result.Confidence > 0.3 {
		t.Fatalf("expected confidence <= 0.3 for a seed with no evidence, got %v", result.Confidence)
	}
}

type fakeLoadSignal struct{ highLoad bool }

func (f fakeLoadSignal) IsHighLoad() bool { return f.highLoad }

func TestReasonHalvesWidthUnderHighLoad(t *testing.T) {
	store := seededStore()
	engine := search.NewEngine(store, nil, nil, nil)
	reasoner := NewReasoner(store, engine, nil)
	reasoner.SetLoadSignal(fakeLoadSignal{highLoad: true})

	seed, _ := store.FindEntity(context.Background(), "alice")
	result, err := reasoner.Reason(context.Background(), "Who founded Acme Corp?", plan.CategoryPerson, []graph.Entity{*seed}, &Config{Width: 4})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Evidence) == 0 {
		t.Fatal("expected evidence to still be gathered with a halved width")
	}
}
