// Copyright 2025 Gerry Miller <gerry@gerrymiller.com>
//
// Licensed under the MIT License.
// See LICENSE file in the project root for full license information.

package pgraph

import (
	"context"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"graphreasoner/pkg/graph"
)

// newTestStore starts a disposable pgvector/pgvector Postgres container,
// migrates it, and returns a Store; teardown is registered with t.Cleanup.
// Skips with
// t.Skip when Docker is unavailable in the current environment, following
// the same container lifecycle Koopa0's testutil.NewPostgreSQLContainer
// uses.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"pgvector/pgvector:pg16",
		tcpostgres.WithDatabase("graphreasoner_test"),
		tcpostgres.WithUsername("test"),
		tcpostgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		t.Skipf("postgres testcontainer unavailable: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("connection string: %v", err)
	}

	store, err := New(ctx, dsn, 4)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func seedGraph(t *testing.T, s *Store) {
	t.Helper()
	ctx := context.Background()

	entities := []graph.Entity{
		{ID: "alice", Type: "Person", Name: "Alice Johnson", Properties: map[string]interface{}{"city": "Lyon"}, Embedding: []float32{1, 0, 0, 0}},
		{ID: "acme", Type: "Organization", Name: "Acme Corp", Embedding: []float32{0, 1, 0, 0}},
		{ID: "lyon", Type: "Location", Name: "Lyon", Embedding: []float32{0, 0, 1, 0}},
	}
	for _, e := range entities {
		if err := s.UpsertEntity(ctx, e); err != nil {
			t.Fatalf("upsert entity %s: %v", e.ID, err)
		}
	}

	relations := []graph.Relation{
		{Type: "FOUNDED", SourceID: "alice", TargetID: "acme", Weight: 0.9},
		{Type: "LOCATED_IN", SourceID: "acme", TargetID: "lyon", Weight: 0.8},
	}
	for _, r := range relations {
		if err := s.UpsertRelation(ctx, r); err != nil {
			t.Fatalf("upsert relation %s->%s: %v", r.SourceID, r.TargetID, err)
		}
	}
}

func TestStoreFindEntity(t *testing.T) {
	s := newTestStore(t)
	seedGraph(t, s)

	got, err := s.FindEntity(context.Background(), "alice")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got == nil || got.Name != "Alice Johnson" {
		t.Fatalf("expected alice, got %#v", got)
	}
	if len(got.Embedding) != 4 {
		t.Fatalf("expected cached embedding to round-trip, got %v", got.Embedding)
	}
}

func TestStoreFindEntityMissing(t *testing.T) {
	s := newTestStore(t)
	seedGraph(t, s)

	got, err := s.FindEntity(context.Background(), "nobody")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil for missing entity, got %#v", got)
	}
}

func TestStoreSearchEntitiesByName(t *testing.T) {
	s := newTestStore(t)
	seedGraph(t, s)

	results, err := s.SearchEntitiesByName(context.Background(), "Alice", 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 1 || results[0].ID != "alice" {
		t.Fatalf("expected alice, got %#v", results)
	}
}

func TestStoreSearchEntitiesByProperty(t *testing.T) {
	s := newTestStore(t)
	seedGraph(t, s)

	results, err := s.SearchEntitiesByProperty(context.Background(), "Person", "city", "lyon", 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 1 || results[0].ID != "alice" {
		t.Fatalf("expected alice by property, got %#v", results)
	}
}

func TestStoreOutgoingIncomingRelations(t *testing.T) {
	s := newTestStore(t)
	seedGraph(t, s)
	ctx := context.Background()

	out, err := s.OutgoingRelations(ctx, "alice", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 1 || out[0].Type != "FOUNDED" {
		t.Fatalf("expected FOUNDED, got %#v", out)
	}

	in, err := s.IncomingRelations(ctx, "acme", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(in) != 1 || in[0].SourceID != "alice" {
		t.Fatalf("expected incoming from alice, got %#v", in)
	}
}

func TestStoreFindPaths(t *testing.T) {
	s := newTestStore(t)
	seedGraph(t, s)

	paths, err := s.FindPaths(context.Background(), "alice", "lyon", 3, 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(paths) != 1 {
		t.Fatalf("expected exactly one path alice->acme->lyon, got %d", len(paths))
	}
	if got := paths[0].Length(); got != 2 {
		t.Fatalf("expected a 2-hop path, got %d hops", got)
	}
}

func TestStoreFindNeighbors(t *testing.T) {
	s := newTestStore(t)
	seedGraph(t, s)

	neighbors, err := s.FindNeighbors(context.Background(), "alice", 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ids := map[string]bool{}
	for _, n := range neighbors {
		ids[n.ID] = true
	}
	if !ids["acme"] || !ids["lyon"] {
		t.Fatalf("expected acme and lyon within 2 hops, got %#v", neighbors)
	}
}

func TestStoreAllNodeAndRelationshipTypes(t *testing.T) {
	s := newTestStore(t)
	seedGraph(t, s)
	ctx := context.Background()

	nodeTypes, err := s.AllNodeTypes(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(nodeTypes) != 3 {
		t.Fatalf("expected 3 node types, got %#v", nodeTypes)
	}

	relTypes, err := s.AllRelationshipTypes(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(relTypes) != 2 {
		t.Fatalf("expected 2 relationship types, got %#v", relTypes)
	}
}

func TestStoreCountAndPropertyFrequencyAndSampleValues(t *testing.T) {
	s := newTestStore(t)
	seedGraph(t, s)
	ctx := context.Background()

	count, err := s.CountByType(ctx, "Person")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 Person, got %d", count)
	}

	freq, err := s.PropertyFrequency(ctx, "Person")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if freq["city"] != 1.0 {
		t.Fatalf("expected city on 100%% of Persons, got %#v", freq)
	}

	values, err := s.SampleValues(ctx, "Person", "city", 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(values) != 1 || values[0] != "Lyon" {
		t.Fatalf("expected [Lyon], got %#v", values)
	}
}
