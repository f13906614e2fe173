// Copyright 2025 Gerry Miller <gerry@gerrymiller.com>
//
// Licensed under the MIT License.
// See LICENSE file in the project root for full license information.

// Package graph defines the property-graph data model the reasoning engine
// traverses, and the Store interface every graph adapter implements.
package graph

import "context"

// Entity is a single node in the property graph.
type Entity struct {
	// ID is the adapter-assigned unique identifier.
	ID string

	// Type is the node's label (e.g. "Person", "Location").
	Type string

	// Name is the human-readable display name used for textual scoring.
	Name string

	// Properties holds arbitrary node attributes.
	Properties map[string]interface{}

	// Embedding is the cached vector representation of this entity, if one
	// has been computed; nil if none is available.
	Embedding []float32
}

// Relation is a directed, typed edge between two entities.
type Relation struct {
	// Type is the relationship label (e.g. "WORKS_AT", "LOCATED_IN").
	Type string

	// SourceID and TargetID identify the endpoints by Entity.ID.
	SourceID string
	TargetID string

	// Properties holds arbitrary edge attributes.
	Properties map[string]interface{}

	// Weight is an adapter-supplied strength or confidence for this edge,
	// in [0, 1]; zero value means "unweighted."
	Weight float64
}

// Path is an ordered walk of relations from a starting entity.
type Path struct {
	// Entities lists the nodes visited in order, including the start.
	Entities []Entity

	// Relations lists the edges traversed, one fewer than len(Entities).
	Relations []Relation

	// Score is the aggregate confidence of this path, the product of each
	// step's relation score scaled by a depth penalty.
	Score float64
}

// Length returns the number of hops in the path.
func (p Path) Length() int {
	return len(p.Relations)
}

// NodeTypeStats summarizes how common a node type is in the graph.
type NodeTypeStats struct {
	Type  string
	Count int
}

// RelationTypeStats summarizes how common a relationship type is in the
// graph, along with the node types it most commonly connects.
type RelationTypeStats struct {
	Type          string
	Count         int
	SourceTypes   []string
	TargetTypes   []string
}

// Store is the capability interface every graph backend implements. The
// reasoning engine only ever depends on this interface, never on a concrete
// database client.
type Store interface {
	// FindEntity retrieves a single entity by ID. Returns an *errkind.Error
	// of kind InvalidInput if id is empty and GraphUnavailable on a
	// transport failure. There is no "not found" error: implementations
	// return (nil, nil) when the ID is well-formed but does not exist.
	FindEntity(ctx context.Context, id string) (*Entity, error)

	// SearchEntitiesByName returns entities whose Name approximately
	// matches query, capped at limit results. Results are not ranked by
	// match quality.
	SearchEntitiesByName(ctx context.Context, query string, limit int) ([]Entity, error)

	// SearchEntitiesByProperty returns entities of the given type (or any
	// type if nodeType is empty) whose property key's value approximately
	// matches value.
	SearchEntitiesByProperty(ctx context.Context, nodeType, key, value string, limit int) ([]Entity, error)

	// OutgoingRelations returns relations whose SourceID is entityID,
	// optionally filtered to relTypes (all types if empty).
	OutgoingRelations(ctx context.Context, entityID string, relTypes []string) ([]Relation, error)

	// IncomingRelations returns relations whose TargetID is entityID,
	// optionally filtered to relTypes.
	IncomingRelations(ctx context.Context, entityID string, relTypes []string) ([]Relation, error)

	// FindRelatedEntities returns the entities directly connected to
	// entityID in either direction, optionally filtered to relTypes.
	FindRelatedEntities(ctx context.Context, entityID string, relTypes []string) ([]Entity, error)

	// FindPaths returns up to limit paths of at most maxDepth hops between
	// fromID and toID.
	FindPaths(ctx context.Context, fromID, toID string, maxDepth, limit int) ([]Path, error)

	// FindNeighbors returns the entities within hops steps of entityID.
	FindNeighbors(ctx context.Context, entityID string, hops int) ([]Entity, error)

	// AllNodeTypes enumerates distinct node types and their population
	// counts.
	AllNodeTypes(ctx context.Context) ([]NodeTypeStats, error)

	// AllRelationshipTypes enumerates distinct relationship types and the
	// node-type pairs they most commonly connect.
	AllRelationshipTypes(ctx context.Context) ([]RelationTypeStats, error)

	// CountByType returns how many entities exist of the given type.
	CountByType(ctx context.Context, nodeType string) (int, error)

	// PropertyFrequency returns, for entities of nodeType, how often each
	// property key appears (a value in [0, 1]).
	PropertyFrequency(ctx context.Context, nodeType string) (map[string]float64, error)

	// SampleValues returns up to limit distinct values observed for
	// property key on entities of nodeType, used to prime schema-aware
	// search hints.
	SampleValues(ctx context.Context, nodeType, key string, limit int) ([]string, error)

	// Close releases any resources held by the adapter.
	Close() error
}
