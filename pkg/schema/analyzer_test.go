// Copyright 2025 Gerry Miller <gerry@gerrymiller.com>
//
// Licensed under the MIT License.
// See LICENSE file in the project root for full license information.

package schema

import (
	"context"
	"testing"

	"graphreasoner/pkg/graph"
	"graphreasoner/pkg/graph/memgraph"
)

func seededStore() *memgraph.Store {
	s := memgraph.New()
	s.AddEntity(graph.Entity{ID: "1", Type: "Person", Name: "Alice", Properties: map[string]interface{}{"city": "Lyon"}})
	s.AddEntity(graph.Entity{ID: "2", Type: "Person", Name: "Bob", Properties: map[string]interface{}{"city": "Paris"}})
	s.AddEntity(graph.Entity{ID: "3", Type: "Organization", Name: "Acme", Properties: map[string]interface{}{"industry": "logistics"}})
	s.AddRelation(graph.Relation{Type: "WORKS_AT", SourceID: "1", TargetID: "3"})
	return s
}

func TestAnalyzeBuildsSchema(t *testing.T) {
	a := NewAnalyzer(seededStore(), nil, nil)
	s, err := a.Analyze(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(s.NodeTypes) != 2 {
		t.Fatalf("expected 2 node types, got %d", len(s.NodeTypes))
	}
	if s.NodeTypes["Person"].Count != 2 {
		t.Fatalf("expected 2 Person entities, got %d", s.NodeTypes["Person"].Count)
	}
	if _, ok := s.RelationTypes["WORKS_AT"]; !ok {
		t.Fatal("expected WORKS_AT relationship type in schema")
	}
}

func TestAnalyzeCachesSnapshot(t *testing.T) {
	store := seededStore()
	a := NewAnalyzer(store, nil, nil)

	first, err := a.Analyze(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	store.AddEntity(graph.Entity{ID: "4", Type: "Person", Name: "Carol"})

	second, err := a.Analyze(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if second.NodeTypes["Person"].Count != first.NodeTypes["Person"].Count {
		t.Fatal("expected cached snapshot to be reused without re-querying the store")
	}

	a.Invalidate()
	third, err := a.Analyze(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if third.NodeTypes["Person"].Count != 3 {
		t.Fatalf("expected refreshed count of 3 after Invalidate, got %d", third.NodeTypes["Person"].Count)
	}
}

func TestRecommendStrategyPropertyMatch(t *testing.T) {
	a := NewAnalyzer(seededStore(), nil, nil)
	strategy, err := a.RecommendStrategy(context.Background(), "Lyon", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strategy.Kind != StrategyProperty {
		t.Fatalf("expected StrategyProperty for an exact sample-value match, got %v", strategy.Kind)
	}
	if strategy.PropertyKey != "city" {
		t.Fatalf("expected property key 'city', got %q", strategy.PropertyKey)
	}
}

func TestRecommendStrategyFallsBackToHybrid(t *testing.T) {
	a := NewAnalyzer(seededStore(), nil, nil)
	strategy, err := a.RecommendStrategy(context.Background(), "something entirely unrelated", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strategy.Kind != StrategyHybrid {
		t.Fatalf("expected fallback to StrategyHybrid, got %v", strategy.Kind)
	}
}

func TestRecommendStrategyRejectsEmptyQuery(t *testing.T) {
	a := NewAnalyzer(seededStore(), nil, nil)
	if _, err := a.RecommendStrategy(context.Background(), "", nil); err == nil {
		t.Fatal("expected error for empty query")
	}
}

func TestRecommendStrategyCachesPerNormalizedQuery(t *testing.T) {
	store := seededStore()
	a := NewAnalyzer(store, nil, &AnalyzerConfig{MinStrategyConfidence: 0.3, StrategyCacheEnabled: true})

	first, err := a.RecommendStrategy(context.Background(), "Lyon", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	store.AddEntity(graph.Entity{ID: "5", Type: "Person", Name: "Dave", Properties: map[string]interface{}{"city": "Lyon"}})

	second, err := a.RecommendStrategy(context.Background(), "  LYON  ", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if second != first {
		t.Fatal("expected a whitespace/case variant of an already-seen query to hit the memoized strategy")
	}

	a.InvalidateStrategy("Lyon")
	third, err := a.RecommendStrategy(context.Background(), "Lyon", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if third == first {
		t.Fatal("expected InvalidateStrategy to force recomputation")
	}
}

func TestRecommendStrategyCacheDisabledByDefault(t *testing.T) {
	a := NewAnalyzer(seededStore(), nil, nil)
	first, err := a.RecommendStrategy(context.Background(), "Lyon", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := a.RecommendStrategy(context.Background(), "Lyon", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first == second {
		t.Fatal("expected distinct SearchStrategy values when memoization is disabled")
	}
}
