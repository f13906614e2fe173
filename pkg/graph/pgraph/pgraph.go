// Copyright 2025 Gerry Miller <gerry@gerrymiller.com>
//
// Licensed under the MIT License.
// See LICENSE file in the project root for full license information.

// Package pgraph implements a PostgreSQL-backed graph.Store, storing nodes
// and edges in relational tables and caching entity embeddings in a
// pgvector column. It is a reference adapter exercising the same storage
// shape a production deployment would use, rather than the test double
// pkg/graph/memgraph provides.
package pgraph

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"
	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"graphreasoner/pkg/errkind"
	"graphreasoner/pkg/graph"
)

var _ graph.Store = (*Store)(nil)

// Store is a concurrency-safe PostgreSQL graph.Store backed by a single
// pgxpool.Pool. All operations are safe for concurrent use, delegated to
// the pool's own connection management.
type Store struct {
	pool *pgxpool.Pool
}

// New establishes a connection pool to the PostgreSQL database at dsn,
// registers pgvector types on every connection, and runs Migrate to ensure
// the nodes, edges, and extension exist.
//
// embeddingDimensions must match the output dimension of the embedding
// model used elsewhere in the engine (e.g. 1536 for OpenAI
// text-embedding-3-small). Changing it after the first migration requires
// a manual schema change.
func New(ctx context.Context, dsn string, embeddingDimensions int) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, errkind.Wrap(errkind.GraphUnavailable, "parse dsn", err)
	}

	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, errkind.Wrap(errkind.GraphUnavailable, "create pool", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, errkind.Wrap(errkind.GraphUnavailable, "ping", err)
	}

	if err := Migrate(ctx, pool, embeddingDimensions); err != nil {
		pool.Close()
		return nil, err
	}

	return &Store{pool: pool}, nil
}

// Migrate creates the nodes and edges tables and the pgvector extension if
// they do not already exist. It is idempotent and safe to call on every
// application start.
func Migrate(ctx context.Context, pool *pgxpool.Pool, embeddingDimensions int) error {
	statements := []string{
		"CREATE EXTENSION IF NOT EXISTS vector",
		fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS nodes (
    id          TEXT         PRIMARY KEY,
    node_type   TEXT         NOT NULL,
    name        TEXT         NOT NULL,
    properties  JSONB        NOT NULL DEFAULT '{}',
    embedding   vector(%d)
)`, embeddingDimensions),
		`CREATE INDEX IF NOT EXISTS idx_nodes_type ON nodes (node_type)`,
		`CREATE INDEX IF NOT EXISTS idx_nodes_name ON nodes (name)`,
		`
CREATE TABLE IF NOT EXISTS edges (
    source_id   TEXT         NOT NULL REFERENCES nodes (id) ON DELETE CASCADE,
    target_id   TEXT         NOT NULL REFERENCES nodes (id) ON DELETE CASCADE,
    rel_type    TEXT         NOT NULL,
    properties  JSONB        NOT NULL DEFAULT '{}',
    weight      DOUBLE PRECISION NOT NULL DEFAULT 0,
    PRIMARY KEY (source_id, target_id, rel_type)
)`,
		`CREATE INDEX IF NOT EXISTS idx_edges_source ON edges (source_id)`,
		`CREATE INDEX IF NOT EXISTS idx_edges_target ON edges (target_id)`,
		`CREATE INDEX IF NOT EXISTS idx_edges_type ON edges (rel_type)`,
	}

	for _, stmt := range statements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return errkind.Wrap(errkind.GraphUnavailable, "migrate", err)
		}
	}
	return nil
}

// Close releases all connections held by the underlying pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// UpsertEntity inserts or replaces a node row, including its cached
// embedding if e.Embedding is non-empty. It is not part of graph.Store:
// callers populate the relational store with it before handing the Store
// to the engine.
func (s *Store) UpsertEntity(ctx context.Context, e graph.Entity) error {
	propsJSON, err := json.Marshal(e.Properties)
	if err != nil {
		return errkind.Wrap(errkind.InvalidInput, "marshal properties", err)
	}

	var vec *pgvector.Vector
	if len(e.Embedding) > 0 {
		v := pgvector.NewVector(e.Embedding)
		vec = &v
	}

	const q = `
		INSERT INTO nodes (id, node_type, name, properties, embedding)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
		    node_type  = EXCLUDED.node_type,
		    name       = EXCLUDED.name,
		    properties = EXCLUDED.properties,
		    embedding  = EXCLUDED.embedding`

	if _, err := s.pool.Exec(ctx, q, e.ID, e.Type, e.Name, propsJSON, vec); err != nil {
		return errkind.Wrap(errkind.GraphUnavailable, "upsert entity", err)
	}
	return nil
}

// UpsertRelation inserts or replaces a directed edge row. Both endpoints
// must already exist via UpsertEntity.
func (s *Store) UpsertRelation(ctx context.Context, r graph.Relation) error {
	propsJSON, err := json.Marshal(r.Properties)
	if err != nil {
		return errkind.Wrap(errkind.InvalidInput, "marshal properties", err)
	}

	const q = `
		INSERT INTO edges (source_id, target_id, rel_type, properties, weight)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (source_id, target_id, rel_type) DO UPDATE SET
		    properties = EXCLUDED.properties,
		    weight     = EXCLUDED.weight`

	if _, err := s.pool.Exec(ctx, q, r.SourceID, r.TargetID, r.Type, propsJSON, r.Weight); err != nil {
		return errkind.Wrap(errkind.GraphUnavailable, "upsert relation", err)
	}
	return nil
}

func (s *Store) FindEntity(ctx context.Context, id string) (*graph.Entity, error) {
	if id == "" {
		return nil, errkind.New(errkind.InvalidInput, "entity id must not be empty")
	}

	const q = `SELECT id, node_type, name, properties, embedding FROM nodes WHERE id = $1`
	rows, err := s.pool.Query(ctx, q, id)
	if err != nil {
		return nil, errkind.Wrap(errkind.GraphUnavailable, "find entity", err)
	}
	entities, err := collectEntities(rows)
	if err != nil {
		return nil, errkind.Wrap(errkind.GraphUnavailable, "find entity", err)
	}
	if len(entities) == 0 {
		return nil, nil
	}
	return &entities[0], nil
}

func (s *Store) SearchEntitiesByName(ctx context.Context, query string, limit int) ([]graph.Entity, error) {
	if query == "" {
		return nil, errkind.New(errkind.InvalidInput, "query must not be empty")
	}

	const q = `
		SELECT id, node_type, name, properties, embedding
		FROM   nodes
		WHERE  name ILIKE $1
		ORDER  BY name
		LIMIT  $2`

	rows, err := s.pool.Query(ctx, q, "%"+query+"%", limitOrAll(limit))
	if err != nil {
		return nil, errkind.Wrap(errkind.GraphUnavailable, "search entities by name", err)
	}
	entities, err := collectEntities(rows)
	if err != nil {
		return nil, errkind.Wrap(errkind.GraphUnavailable, "search entities by name", err)
	}
	return entities, nil
}

func (s *Store) SearchEntitiesByProperty(ctx context.Context, nodeType, key, value string, limit int) ([]graph.Entity, error) {
	if key == "" {
		return nil, errkind.New(errkind.InvalidInput, "property key must not be empty")
	}

	var args []any
	next := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	typeFilter := ""
	if nodeType != "" {
		typeFilter = "\n  AND  node_type = " + next(nodeType)
	}
	valueArg := next("%" + strings.ToLower(value) + "%")
	keyArg := next(key)

	q := fmt.Sprintf(`
		SELECT id, node_type, name, properties, embedding
		FROM   nodes
		WHERE  lower(properties ->> %s) LIKE %s%s
		ORDER  BY name
		LIMIT  %s`, keyArg, valueArg, typeFilter, next(limitOrAll(limit)))

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, errkind.Wrap(errkind.GraphUnavailable, "search entities by property", err)
	}
	entities, err := collectEntities(rows)
	if err != nil {
		return nil, errkind.Wrap(errkind.GraphUnavailable, "search entities by property", err)
	}
	return entities, nil
}

func (s *Store) OutgoingRelations(ctx context.Context, entityID string, relTypes []string) ([]graph.Relation, error) {
	return s.relations(ctx, "source_id", entityID, relTypes)
}

func (s *Store) IncomingRelations(ctx context.Context, entityID string, relTypes []string) ([]graph.Relation, error) {
	return s.relations(ctx, "target_id", entityID, relTypes)
}

func (s *Store) relations(ctx context.Context, column, entityID string, relTypes []string) ([]graph.Relation, error) {
	args := []any{entityID}
	typeFilter := ""
	if len(relTypes) > 0 {
		args = append(args, relTypes)
		typeFilter = "\n  AND  rel_type = ANY($2::text[])"
	}

	q := fmt.Sprintf(`
		SELECT source_id, target_id, rel_type, properties, weight
		FROM   edges
		WHERE  %s = $1%s
		ORDER  BY rel_type`, column, typeFilter)

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, errkind.Wrap(errkind.GraphUnavailable, "relations", err)
	}
	rels, err := collectRelations(rows)
	if err != nil {
		return nil, errkind.Wrap(errkind.GraphUnavailable, "relations", err)
	}
	return rels, nil
}

func (s *Store) FindRelatedEntities(ctx context.Context, entityID string, relTypes []string) ([]graph.Entity, error) {
	out, err := s.OutgoingRelations(ctx, entityID, relTypes)
	if err != nil {
		return nil, err
	}
	in, err := s.IncomingRelations(ctx, entityID, relTypes)
	if err != nil {
		return nil, err
	}

	seen := map[string]bool{}
	var ids []string
	for _, r := range out {
		if !seen[r.TargetID] {
			seen[r.TargetID] = true
			ids = append(ids, r.TargetID)
		}
	}
	for _, r := range in {
		if !seen[r.SourceID] {
			seen[r.SourceID] = true
			ids = append(ids, r.SourceID)
		}
	}
	return s.fetchEntitiesIn(ctx, ids)
}

// FindPaths uses a recursive CTE tracking each candidate path as a TEXT[]
// of visited node IDs, the same cycle-prevention technique as a
// breadth-first Neighbors traversal, extended to retain the full path.
func (s *Store) FindPaths(ctx context.Context, fromID, toID string, maxDepth, limit int) ([]graph.Path, error) {
	if fromID == "" || toID == "" {
		return nil, errkind.New(errkind.InvalidInput, "fromID and toID must not be empty")
	}

	const q = `
		WITH RECURSIVE path_search AS (
		    SELECT id,
		           ARRAY[id]::text[]     AS path_ids,
		           ARRAY[]::text[]       AS path_rel_ids,
		           0                     AS depth
		    FROM   nodes
		    WHERE  id = $1

		    UNION ALL

		    SELECT e.target_id,
		           ps.path_ids || e.target_id,
		           ps.path_rel_ids || (e.source_id || '->' || e.rel_type || '->' || e.target_id),
		           ps.depth + 1
		    FROM   path_search ps
		    JOIN   edges e ON e.source_id = ps.id
		    WHERE  ps.depth < $3
		      AND  NOT (e.target_id = ANY(ps.path_ids))
		)
		SELECT path_ids, path_rel_ids
		FROM   path_search
		WHERE  id = $2
		ORDER  BY depth
		LIMIT  $4`

	rows, err := s.pool.Query(ctx, q, fromID, toID, maxDepth, limitOrAll(limit))
	if err != nil {
		return nil, errkind.Wrap(errkind.GraphUnavailable, "find paths", err)
	}

	type rawPath struct {
		nodeIDs []string
		edgeIDs []string
	}
	raw, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (rawPath, error) {
		var rp rawPath
		if err := row.Scan(&rp.nodeIDs, &rp.edgeIDs); err != nil {
			return rawPath{}, err
		}
		return rp, nil
	})
	if err != nil {
		return nil, errkind.Wrap(errkind.GraphUnavailable, "find paths: scan", err)
	}

	paths := make([]graph.Path, 0, len(raw))
	for _, rp := range raw {
		entities, err := s.fetchEntitiesOrdered(ctx, rp.nodeIDs)
		if err != nil {
			return nil, err
		}
		relations, err := s.fetchEdgesByKey(ctx, rp.edgeIDs)
		if err != nil {
			return nil, err
		}
		paths = append(paths, graph.Path{Entities: entities, Relations: relations})
	}
	return paths, nil
}

// FindNeighbors performs a breadth-first traversal from entityID up to
// hops steps using a recursive CTE over both edge directions, tracking
// visited node IDs in a PostgreSQL text array to prevent cycles.
func (s *Store) FindNeighbors(ctx context.Context, entityID string, hops int) ([]graph.Entity, error) {
	const q = `
		WITH RECURSIVE reachable AS (
		    SELECT id,
		           ARRAY[id]::text[] AS visited,
		           0                 AS depth
		    FROM   nodes
		    WHERE  id = $1

		    UNION ALL

		    SELECT nxt.id,
		           r.visited || nxt.id,
		           r.depth + 1
		    FROM   reachable r
		    JOIN   LATERAL (
		        SELECT target_id AS id FROM edges WHERE source_id = r.id
		        UNION
		        SELECT source_id AS id FROM edges WHERE target_id = r.id
		    ) nxt ON true
		    WHERE  r.depth < $2
		      AND  NOT (nxt.id = ANY(r.visited))
		)
		SELECT DISTINCT ON (n.id)
		       n.id, n.node_type, n.name, n.properties, n.embedding
		FROM   reachable rc
		JOIN   nodes n ON n.id = rc.id
		WHERE  rc.id != $1
		ORDER  BY n.id`

	rows, err := s.pool.Query(ctx, q, entityID, hops)
	if err != nil {
		return nil, errkind.Wrap(errkind.GraphUnavailable, "find neighbors", err)
	}
	entities, err := collectEntities(rows)
	if err != nil {
		return nil, errkind.Wrap(errkind.GraphUnavailable, "find neighbors", err)
	}
	return entities, nil
}

func (s *Store) AllNodeTypes(ctx context.Context) ([]graph.NodeTypeStats, error) {
	const q = `
		SELECT node_type, count(*)
		FROM   nodes
		GROUP  BY node_type
		ORDER  BY node_type`

	rows, err := s.pool.Query(ctx, q)
	if err != nil {
		return nil, errkind.Wrap(errkind.GraphUnavailable, "all node types", err)
	}
	stats, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (graph.NodeTypeStats, error) {
		var s graph.NodeTypeStats
		err := row.Scan(&s.Type, &s.Count)
		return s, err
	})
	if err != nil {
		return nil, errkind.Wrap(errkind.GraphUnavailable, "all node types: scan", err)
	}
	return stats, nil
}

func (s *Store) AllRelationshipTypes(ctx context.Context) ([]graph.RelationTypeStats, error) {
	const q = `
		SELECT e.rel_type,
		       count(*),
		       array_agg(DISTINCT src.node_type) FILTER (WHERE src.node_type IS NOT NULL),
		       array_agg(DISTINCT tgt.node_type) FILTER (WHERE tgt.node_type IS NOT NULL)
		FROM   edges e
		LEFT   JOIN nodes src ON src.id = e.source_id
		LEFT   JOIN nodes tgt ON tgt.id = e.target_id
		GROUP  BY e.rel_type
		ORDER  BY e.rel_type`

	rows, err := s.pool.Query(ctx, q)
	if err != nil {
		return nil, errkind.Wrap(errkind.GraphUnavailable, "all relationship types", err)
	}
	stats, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (graph.RelationTypeStats, error) {
		var s graph.RelationTypeStats
		err := row.Scan(&s.Type, &s.Count, &s.SourceTypes, &s.TargetTypes)
		return s, err
	})
	if err != nil {
		return nil, errkind.Wrap(errkind.GraphUnavailable, "all relationship types: scan", err)
	}
	return stats, nil
}

func (s *Store) CountByType(ctx context.Context, nodeType string) (int, error) {
	const q = `SELECT count(*) FROM nodes WHERE node_type = $1`
	var count int
	if err := s.pool.QueryRow(ctx, q, nodeType).Scan(&count); err != nil {
		return 0, errkind.Wrap(errkind.GraphUnavailable, "count by type", err)
	}
	return count, nil
}

func (s *Store) PropertyFrequency(ctx context.Context, nodeType string) (map[string]float64, error) {
	const q = `
		SELECT key, count(*)
		FROM   nodes, jsonb_object_keys(properties) AS key
		WHERE  node_type = $1
		GROUP  BY key`

	total, err := s.CountByType(ctx, nodeType)
	if err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx, q, nodeType)
	if err != nil {
		return nil, errkind.Wrap(errkind.GraphUnavailable, "property frequency", err)
	}
	defer rows.Close()

	freq := make(map[string]float64)
	for rows.Next() {
		var key string
		var count int
		if err := rows.Scan(&key, &count); err != nil {
			return nil, errkind.Wrap(errkind.GraphUnavailable, "property frequency: scan", err)
		}
		if total > 0 {
			freq[key] = float64(count) / float64(total)
		}
	}
	return freq, rows.Err()
}

func (s *Store) SampleValues(ctx context.Context, nodeType, key string, limit int) ([]string, error) {
	const q = `
		SELECT DISTINCT properties ->> $2
		FROM   nodes
		WHERE  node_type = $1
		  AND  properties ? $2
		LIMIT  $3`

	rows, err := s.pool.Query(ctx, q, nodeType, key, limitOrAll(limit))
	if err != nil {
		return nil, errkind.Wrap(errkind.GraphUnavailable, "sample values", err)
	}
	defer rows.Close()

	var values []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, errkind.Wrap(errkind.GraphUnavailable, "sample values: scan", err)
		}
		values = append(values, v)
	}
	return values, rows.Err()
}

func (s *Store) fetchEntitiesIn(ctx context.Context, ids []string) ([]graph.Entity, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	const q = `
		SELECT id, node_type, name, properties, embedding
		FROM   nodes
		WHERE  id = ANY($1::text[])`

	rows, err := s.pool.Query(ctx, q, ids)
	if err != nil {
		return nil, errkind.Wrap(errkind.GraphUnavailable, "fetch entities", err)
	}
	return collectEntities(rows)
}

func (s *Store) fetchEntitiesOrdered(ctx context.Context, ids []string) ([]graph.Entity, error) {
	entities, err := s.fetchEntitiesIn(ctx, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]graph.Entity, len(entities))
	for _, e := range entities {
		byID[e.ID] = e
	}
	ordered := make([]graph.Entity, 0, len(ids))
	for _, id := range ids {
		if e, ok := byID[id]; ok {
			ordered = append(ordered, e)
		}
	}
	return ordered, nil
}

// fetchEdgesByKey resolves a path's edge keys (encoded as
// "source->type->target" by FindPaths) back into Relation values in order.
func (s *Store) fetchEdgesByKey(ctx context.Context, keys []string) ([]graph.Relation, error) {
	if len(keys) == 0 {
		return nil, nil
	}

	type triple struct{ source, relType, target string }
	triples := make([]triple, len(keys))
	for i, k := range keys {
		parts := strings.SplitN(k, "->", 3)
		if len(parts) != 3 {
			return nil, errkind.New(errkind.Internal, "malformed path edge key: "+k)
		}
		triples[i] = triple{parts[0], parts[1], parts[2]}
	}

	sources := make([]string, len(triples))
	relTypes := make([]string, len(triples))
	targets := make([]string, len(triples))
	for i, t := range triples {
		sources[i], relTypes[i], targets[i] = t.source, t.relType, t.target
	}

	const q = `
		SELECT source_id, target_id, rel_type, properties, weight
		FROM   edges
		WHERE  (source_id, target_id, rel_type) = ANY (
		    SELECT * FROM unnest($1::text[], $2::text[], $3::text[])
		)`

	rows, err := s.pool.Query(ctx, q, sources, targets, relTypes)
	if err != nil {
		return nil, errkind.Wrap(errkind.GraphUnavailable, "fetch edges by key", err)
	}
	edges, err := collectRelations(rows)
	if err != nil {
		return nil, errkind.Wrap(errkind.GraphUnavailable, "fetch edges by key", err)
	}

	byKey := make(map[string]graph.Relation, len(edges))
	for _, e := range edges {
		byKey[e.SourceID+"->"+e.Type+"->"+e.TargetID] = e
	}
	ordered := make([]graph.Relation, 0, len(keys))
	for _, k := range keys {
		if e, ok := byKey[k]; ok {
			ordered = append(ordered, e)
		}
	}
	return ordered, nil
}

func collectEntities(rows pgx.Rows) ([]graph.Entity, error) {
	entities, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (graph.Entity, error) {
		var (
			e         graph.Entity
			propsJSON []byte
			vec       *pgvector.Vector
		)
		if err := row.Scan(&e.ID, &e.Type, &e.Name, &propsJSON, &vec); err != nil {
			return graph.Entity{}, err
		}
		if len(propsJSON) > 0 {
			if err := json.Unmarshal(propsJSON, &e.Properties); err != nil {
				return graph.Entity{}, fmt.Errorf("unmarshal properties: %w", err)
			}
		}
		if e.Properties == nil {
			e.Properties = map[string]interface{}{}
		}
		if vec != nil {
			e.Embedding = vec.Slice()
		}
		return e, nil
	})
	return entities, err
}

func collectRelations(rows pgx.Rows) ([]graph.Relation, error) {
	rels, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (graph.Relation, error) {
		var (
			r         graph.Relation
			propsJSON []byte
		)
		if err := row.Scan(&r.SourceID, &r.TargetID, &r.Type, &propsJSON, &r.Weight); err != nil {
			return graph.Relation{}, err
		}
		if len(propsJSON) > 0 {
			if err := json.Unmarshal(propsJSON, &r.Properties); err != nil {
				return graph.Relation{}, fmt.Errorf("unmarshal properties: %w", err)
			}
		}
		if r.Properties == nil {
			r.Properties = map[string]interface{}{}
		}
		return r, nil
	})
	return rels, err
}

// limitOrAll maps a non-positive limit to a large bound so "no limit"
// callers don't need a separate unbounded query path.
func limitOrAll(limit int) int {
	if limit <= 0 {
		return 1 << 30
	}
	return limit
}
