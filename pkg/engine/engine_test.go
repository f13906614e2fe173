// Copyright 2025 Gerry Miller <gerry@gerrymiller.com>
//
// Licensed under the MIT License.
// See LICENSE file in the project root for full license information.

package engine

import (
	"context"
	"testing"
	"time"

	"graphreasoner/pkg/graph"
	"graphreasoner/pkg/graph/memgraph"
	"graphreasoner/pkg/reason"
)

func seededStore() *memgraph.Store {
	s := memgraph.New()
	s.AddEntity(graph.Entity{ID: "alice", Type: "Person", Name: "Alice Johnson", Properties: map[string]interface{}{"city": "Lyon"}})
	s.AddEntity(graph.Entity{ID: "acme", Type: "Organization", Name: "Acme Corp"})
	s.AddEntity(graph.Entity{ID: "lyon", Type: "Location", Name: "Lyon"})
	s.AddRelation(graph.Relation{Type: "FOUNDED", SourceID: "alice", TargetID: "acme"})
	s.AddRelation(graph.Relation{Type: "LOCATED_IN", SourceID: "acme", TargetID: "lyon"})
	return s
}

func testConfig(store *memgraph.Store) *Config {
	maxDepth := 3
	return &Config{
		Store:             store,
		MaxDepth:          &maxDepth,
		Width:             4,
		EntityThreshold:   0.1,
		RelationThreshold: 0.05,
		MaxEntities:       50,
		MaxPaths:          10,
		WallClockBudget:   5 * time.Second,
		ThreadPoolSize:    2,
	}
}

func TestNewRequiresStore(t *testing.T) {
	if _, err := New(context.Background(), &Config{}); err == nil {
		t.Fatal("expected error when Store is nil")
	}
}

func TestEngineReasonWithoutProviders(t *testing.T) {
	store := seededStore()
	e, err := New(context.Background(), testConfig(store))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer e.Close()

	result, err := e.Reason(context.Background(), "Who founded Acme Corp?")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Answer == "" {
		t.Fatal("expected a non-empty fallback answer")
	}
}

func TestEngineReasonAsync(t *testing.T) {
	store := seededStore()
	e, err := New(context.Background(), testConfig(store))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer e.Close()

	future, err := e.ReasonAsync(context.Background(), "Who founded Acme Corp?")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	value, err := future.Wait(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := value.(*reason.Result); !ok {
		t.Fatalf("expected *reason.Result, got %T", value)
	}
}

func TestEngineReasonBatch(t *testing.T) {
	store := seededStore()
	e, err := New(context.Background(), testConfig(store))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer e.Close()

	batch, err := e.ReasonBatch(context.Background(), []string{"Who founded Acme Corp?", "Where is Acme Corp located?"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	results, err := batch.Wait(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
}

func TestEngineReasonSchemaAware(t *testing.T) {
	store := seededStore()
	e, err := New(context.Background(), testConfig(store))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer e.Close()

	future, err := e.ReasonSchemaAware(context.Background(), "Lyon")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := future.Wait(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestEngineSearchEntitiesDiagnostic(t *testing.T) {
	store := seededStore()
	e, err := New(context.Background(), testConfig(store))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer e.Close()

	scored, err := e.SearchEntities(context.Background(), "Alice Johnson", 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(scored) == 0 {
		t.Fatal("expected at least one scored entity")
	}
}

func TestEngineStatus(t *testing.T) {
	store := seededStore()
	e, err := New(context.Background(), testConfig(store))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer e.Close()

	status := e.Status()
	if !status.GraphReady || !status.SearchReady || !status.ReasonerReady || !status.SchemaAwareReady {
		t.Fatalf("expected all subsystems ready, got %#v", status)
	}
}
