// Copyright 2025 Gerry Miller <gerry@gerrymiller.com>
//
// Licensed under the MIT License.
// See LICENSE file in the project root for full license information.

// Package memgraph implements an in-memory graph.Store, used by every unit
// test in this module and suitable as an embedded store for small
// deployments that don't need a standalone database.
package memgraph

import (
	"context"
	"sort"
	"strings"
	"sync"

	"graphreasoner/pkg/errkind"
	"graphreasoner/pkg/graph"
)

// Store is a concurrency-safe, in-memory graph.Store backed by maps and
// slices. Reads take an RLock; writes take a Lock.
type Store struct {
	mu sync.RWMutex

	entities  map[string]graph.Entity
	outgoing  map[string][]graph.Relation
	incoming  map[string][]graph.Relation
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		entities: make(map[string]graph.Entity),
		outgoing: make(map[string][]graph.Relation),
		incoming: make(map[string][]graph.Relation),
	}
}

// AddEntity inserts or replaces an entity. It is not part of graph.Store:
// callers build the in-memory graph with it before handing the Store to the
// engine.
func (s *Store) AddEntity(e graph.Entity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entities[e.ID] = e
}

// AddRelation inserts a directed edge. Both endpoints must already have
// been added via AddEntity.
func (s *Store) AddRelation(r graph.Relation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outgoing[r.SourceID] = append(s.outgoing[r.SourceID], r)
	s.incoming[r.TargetID] = append(s.incoming[r.TargetID], r)
}

func (s *Store) FindEntity(_ context.Context, id string) (*graph.Entity, error) {
	if id == "" {
		return nil, errkind.New(errkind.InvalidInput, "entity id must not be empty")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entities[id]
	if !ok {
		return nil, nil
	}
	return &e, nil
}

func (s *Store) SearchEntitiesByName(_ context.Context, query string, limit int) ([]graph.Entity, error) {
	if query == "" {
		return nil, errkind.New(errkind.InvalidInput, "query must not be empty")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	lowered := strings.ToLower(query)
	var matches []graph.Entity
	for _, e := range s.entities {
		if strings.Contains(strings.ToLower(e.Name), lowered) {
			matches = append(matches, e)
		}
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].ID < matches[j].ID })
	return capEntities(matches, limit), nil
}

func (s *Store) SearchEntitiesByProperty(_ context.Context, nodeType, key, value string, limit int) ([]graph.Entity, error) {
	if key == "" {
		return nil, errkind.New(errkind.InvalidInput, "property key must not be empty")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	lowered := strings.ToLower(value)
	var matches []graph.Entity
	for _, e := range s.entities {
		if nodeType != "" && e.Type != nodeType {
			continue
		}
		if v, ok := e.Properties[key]; ok {
			if s, ok := v.(string); ok && strings.Contains(strings.ToLower(s), lowered) {
				matches = append(matches, e)
			}
		}
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].ID < matches[j].ID })
	return capEntities(matches, limit), nil
}

func (s *Store) OutgoingRelations(_ context.Context, entityID string, relTypes []string) ([]graph.Relation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return filterRelations(s.outgoing[entityID], relTypes), nil
}

func (s *Store) IncomingRelations(_ context.Context, entityID string, relTypes []string) ([]graph.Relation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return filterRelations(s.incoming[entityID], relTypes), nil
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

	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]bool)
	var related []graph.Entity
	for _, r := range out {
		if !seen[r.TargetID] {
			seen[r.TargetID] = true
			if e, ok := s.entities[r.TargetID]; ok {
				related = append(related, e)
			}
		}
	}
	for _, r := range in {
		if !seen[r.SourceID] {
			seen[r.SourceID] = true
			if e, ok := s.entities[r.SourceID]; ok {
				related = append(related, e)
			}
		}
	}
	return related, nil
}

func (s *Store) FindPaths(_ context.Context, fromID, toID string, maxDepth, limit int) ([]graph.Path, error) {
	if fromID == "" || toID == "" {
		return nil, errkind.New(errkind.InvalidInput, "fromID and toID must not be empty")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.entities[fromID]; !ok {
		return nil, nil
	}

	var paths []graph.Path
	var walk func(current string, entities []graph.Entity, relations []graph.Relation, visited map[string]bool)
	walk = func(current string, entities []graph.Entity, relations []graph.Relation, visited map[string]bool) {
		if len(paths) >= limit && limit > 0 {
			return
		}
		if current == toID && len(relations) > 0 {
			paths = append(paths, graph.Path{Entities: append([]graph.Entity{}, entities...), Relations: append([]graph.Relation{}, relations...)})
			return
		}
		if len(relations) >= maxDepth {
			return
		}
		for _, r := range s.outgoing[current] {
			if visited[r.TargetID] {
				continue
			}
			target, ok := s.entities[r.TargetID]
			if !ok {
				continue
			}
			visited[r.TargetID] = true
			walk(r.TargetID, append(entities, target), append(relations, r), visited)
			delete(visited, r.TargetID)
			if len(paths) >= limit && limit > 0 {
				return
			}
		}
	}

	start := s.entities[fromID]
	walk(fromID, []graph.Entity{start}, nil, map[string]bool{fromID: true})
	return paths, nil
}

func (s *Store) FindNeighbors(_ context.Context, entityID string, hops int) ([]graph.Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	visited := map[string]bool{entityID: true}
	frontier := []string{entityID}
	var result []graph.Entity

	for h := 0; h < hops; h++ {
		var next []string
		for _, id := range frontier {
			for _, r := range s.outgoing[id] {
				if !visited[r.TargetID] {
					visited[r.TargetID] = true
					next = append(next, r.TargetID)
					if e, ok := s.entities[r.TargetID]; ok {
						result = append(result, e)
					}
				}
			}
			for _, r := range s.incoming[id] {
				if !visited[r.SourceID] {
					visited[r.SourceID] = true
					next = append(next, r.SourceID)
					if e, ok := s.entities[r.SourceID]; ok {
						result = append(result, e)
					}
				}
			}
		}
		frontier = next
	}
	return result, nil
}

func (s *Store) AllNodeTypes(_ context.Context) ([]graph.NodeTypeStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[string]int)
	for _, e := range s.entities {
		counts[e.Type]++
	}
	stats := make([]graph.NodeTypeStats, 0, len(counts))
	for t, c := range counts {
		stats = append(stats, graph.NodeTypeStats{Type: t, Count: c})
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].Type < stats[j].Type })
	return stats, nil
}

func (s *Store) AllRelationshipTypes(_ context.Context) ([]graph.RelationTypeStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	type agg struct {
		count   int
		sources map[string]bool
		targets map[string]bool
	}
	byType := make(map[string]*agg)
	for _, rels := range s.outgoing {
		for _, r := range rels {
			a, ok := byType[r.Type]
			if !ok {
				a = &agg{sources: make(map[string]bool), targets: make(map[string]bool)}
				byType[r.Type] = a
			}
			a.count++
			if src, ok := s.entities[r.SourceID]; ok {
				a.sources[src.Type] = true
			}
			if tgt, ok := s.entities[r.TargetID]; ok {
				a.targets[tgt.Type] = true
			}
		}
	}

	stats := make([]graph.RelationTypeStats, 0, len(byType))
	for t, a := range byType {
		stats = append(stats, graph.RelationTypeStats{
			Type:        t,
			Count:       a.count,
			SourceTypes: setKeys(a.sources),
			TargetTypes: setKeys(a.targets),
		})
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].Type < stats[j].Type })
	return stats, nil
}

func (s *Store) CountByType(_ context.Context, nodeType string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, e := range s.entities {
		if e.Type == nodeType {
			count++
		}
	}
	return count, nil
}

func (s *Store) PropertyFrequency(_ context.Context, nodeType string) (map[string]float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	total := 0
	counts := make(map[string]int)
	for _, e := range s.entities {
		if e.Type != nodeType {
			continue
		}
		total++
		for k := range e.Properties {
			counts[k]++
		}
	}
	freq := make(map[string]float64, len(counts))
	if total == 0 {
		return freq, nil
	}
	for k, c := range counts {
		freq[k] = float64(c) / float64(total)
	}
	return freq, nil
}

func (s *Store) SampleValues(_ context.Context, nodeType, key string, limit int) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]bool)
	var values []string
	for _, e := range s.entities {
		if e.Type != nodeType {
			continue
		}
		if v, ok := e.Properties[key]; ok {
			if str, ok := v.(string); ok && !seen[str] {
				seen[str] = true
				values = append(values, str)
				if limit > 0 && len(values) >= limit {
					break
				}
			}
		}
	}
	return values, nil
}

func (s *Store) Close() error { return nil }

func filterRelations(rels []graph.Relation, relTypes []string) []graph.Relation {
	if len(relTypes) == 0 {
		return append([]graph.Relation{}, rels...)
	}
	allowed := make(map[string]bool, len(relTypes))
	for _, t := range relTypes {
		allowed[t] = true
	}
	var filtered []graph.Relation
	for _, r := range rels {
		if allowed[r.Type] {
			filtered = append(filtered, r)
		}
	}
	return filtered
}

func capEntities(entities []graph.Entity, limit int) []graph.Entity {
	if limit > 0 && len(entities) > limit {
		return entities[:limit]
	}
	return entities
}

func setKeys(set map[string]bool) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
