// Copyright 2025 Gerry Miller <gerry@gerrymiller.com>
//
// Licensed under the MIT License.
// See LICENSE file in the project root for full license information.

package agent

import (
	"context"
	"testing"

	"graphreasoner/pkg/graph"
	"graphreasoner/pkg/graph/memgraph"
	"graphreasoner/pkg/search"
)

func seededEntityStore() *memgraph.Store {
	s := memgraph.New()
	s.AddEntity(graph.Entity{ID: "alice", Type: "Person", Name: "Alice Johnson"})
	s.AddEntity(graph.Entity{ID: "bob", Type: "Person", Name: "Bob Smith"})
	return s
}

func TestEntitySearchAgentExactMatch(t *testing.T) {
	store := seededEntityStore()
	engine := search.NewEngine(store, nil, nil, nil)
	a := NewEntitySearchAgent(store, engine)
	if err := a.Initialize(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	result, err := a.Execute(context.Background(), "entity_identification", "Alice Johnson", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	matches, ok := result.Value.([]matchedEntity)
	if !ok || len(matches) == 0 {
		t.Fatalf("expected at least one match, got %#v", result.Value)
	}

	var sawExact bool
	for _, m := range matches {
		if m.Entity.ID == "alice" && m.Method == "exact" && m.Score == 1.0 {
			sawExact = true
		}
	}
	if !sawExact {
		t.Fatalf("expected an exact match on alice, got %#v", matches)
	}
}

func TestEntitySearchAgentRejectsEmptyQuery(t *testing.T) {
	store := seededEntityStore()
	engine := search.NewEngine(store, nil, nil, nil)
	a := NewEntitySearchAgent(store, engine)
	_ = a.Initialize(context.Background())

	if _, err := a.Execute(context.Background(), "entity_identification", "   ", nil); err == nil {
		t.Fatal("expected error for empty query")
	}
}

func TestEntitySearchAgentCanHandle(t *testing.T) {
	a := NewEntitySearchAgent(seededEntityStore(), nil)
	if !a.CanHandle("semantic_search", "") {
		t.Fatal("expected entity-search agent to handle semantic_search")
	}
	if a.CanHandle("path_finding", "") {
		t.Fatal("did not expect entity-search agent to handle path_finding")
	}
}

func TestEntitySearchAgentLifecycle(t *testing.T) {
	a := NewEntitySearchAgent(seededEntityStore(), nil)
	if a.Status() != StatusInitializing {
		t.Fatalf("expected initial status INITIALIZING, got %v", a.Status())
	}
	if err := a.Initialize(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.Status() != StatusReady {
		t.Fatalf("expected READY after Initialize, got %v", a.Status())
	}
	if err := a.Shutdown(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.Status() != StatusShutdown {
		t.Fatalf("expected SHUTDOWN after Shutdown, got %v", a.Status())
	}
	if err := a.Initialize(context.Background()); err == nil {
		t.Fatal("expected error re-initializing a shut-down agent")
	}
}
