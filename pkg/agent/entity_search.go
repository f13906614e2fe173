// Copyright 2025 Gerry Miller <gerry@gerrymiller.com>
//
// Licensed under the MIT License.
// See LICENSE file in the project root for full license information.

package agent

import (
	"context"
	"strings"
	"sync"

	"graphreasoner/pkg/errkind"
	"graphreasoner/pkg/graph"
	"graphreasoner/pkg/search"
)

// entitySearcher is the subset of *search.Engine the entity-search agent
// depends on.
type entitySearcher interface {
	SearchEntities(ctx context.Context, query string, topK int) ([]search.Scored[graph.Entity], error)
	CalculateSimilarity(ctx context.Context, a, b string) float64
}

// EntitySearchAgent resolves natural-language mentions to graph entities,
// combining exact, partial, and vector-similarity matching.
type EntitySearchAgent struct {
	store  graph.Store
	search entitySearcher

	mu     sync.Mutex
	status Status
}

// NewEntitySearchAgent creates an entity-search agent over store and
// search.
func NewEntitySearchAgent(store graph.Store, searcher entitySearcher) *EntitySearchAgent {
	return &EntitySearchAgent{store: store, search: searcher, status: StatusInitializing}
}

func (a *EntitySearchAgent) ID() string          { return "entity-search" }
func (a *EntitySearchAgent) DisplayName() string { return "Entity Search Agent" }

func (a *EntitySearchAgent) SupportedTaskTypes() []string {
	return []string{"entity_search", "entity_identification", "semantic_search"}
}

func (a *EntitySearchAgent) CanHandle(taskType, description string) bool {
	for _, t := range a.SupportedTaskTypes() {
		if t == taskType {
			return true
		}
	}
	return false
}

func (a *EntitySearchAgent) Status() Status {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.status
}

func (a *EntitySearchAgent) Initialize(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.status == StatusShutdown {
		return errkind.New(errkind.Internal, "cannot initialize a shut-down agent")
	}
	a.status = StatusReady
	return nil
}

func (a *EntitySearchAgent) Shutdown(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.status = StatusShutdown
	return nil
}

func (a *EntitySearchAgent) Execute(ctx context.Context, taskType, description string, taskContext map[string]interface{}) (*Result, error) {
	a.mu.Lock()
	a.status = StatusBusy
	a.mu.Unlock()
	defer func() {
		a.mu.Lock()
		if a.status != StatusShutdown {
			a.status = StatusReady
		}
		a.mu.Unlock()
	}()

	return runTimed(func() (*Result, error) {
		matches, err := a.resolve(ctx, description)
		if err != nil {
			return &Result{Success: false, Error: err.Error()}, err
		}
		return &Result{
			Success: true,
			Value:   matches,
			Metadata: map[string]interface{}{
				"match_count": len(matches),
			},
		}, nil
	})
}

// matchedEntity pairs an entity with how confidently it resolves the query
// and which signal produced that confidence.
type matchedEntity struct {
	Entity graph.Entity
	Score  float64
	Method string
}

// resolve runs exact, partial, and vector-similarity matching concurrently
// and merges the results by entity ID, keeping the highest score seen for
// each.
func (a *EntitySearchAgent) resolve(ctx context.Context, query string) ([]matchedEntity, error) {
	trimmed := strings.TrimSpace(query)
	if trimmed == "" {
		return nil, errkind.New(errkind.InvalidInput, "query must not be empty")
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	byID := make(map[string]matchedEntity)
	var firstErr error

	record := func(e graph.Entity, score float64, method string) {
		mu.Lock()
		defer mu.Unlock()
		existing, ok := byID[e.ID]
		if !ok || score > existing.Score {
			byID[e.ID] = matchedEntity{Entity: e, Score: score, Method: method}
		}
	}
	fail := func(err error) {
		mu.Lock()
		defer mu.Unlock()
		if firstErr == nil {
			firstErr = err
		}
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		exact, partial, err := a.nameMatches(ctx, trimmed)
		if err != nil {
			fail(err)
			return
		}
		for _, e := range exact {
			record(e, 1.0, "exact")
		}
		for _, e := range partial {
			record(e, 0.75, "partial")
		}
	}()

	if isIdeographic(trimmed) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			matches, err := a.singleCharacterMatches(ctx, trimmed)
			if err != nil {
				fail(err)
				return
			}
			for _, e := range matches {
				record(e, 0.6, "single_character")
			}
		}()
	}

	if a.search != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			scored, err := a.search.SearchEntities(ctx, trimmed, 10)
			if err != nil {
				fail(err)
				return
			}
			for _, s := range scored {
				record(s.Item, s.Score, "vector_similarity")
			}
		}()
	}

	wg.Wait()
	if firstErr != nil {
		return nil, firstErr
	}

	out := make([]matchedEntity, 0, len(byID))
	for _, m := range byID {
		out = append(out, m)
	}
	return out, nil
}

func (a *EntitySearchAgent) nameMatches(ctx context.Context, query string) (exact, partial []graph.Entity, err error) {
	candidates, err := a.store.SearchEntitiesByName(ctx, query, 50)
	if err != nil {
		return nil, nil, errkind.Wrap(errkind.GraphUnavailable, "name search failed", err)
	}
	lowered := strings.ToLower(query)
	for _, c := range candidates {
		if strings.EqualFold(c.Name, query) {
			exact = append(exact, c)
		} else if strings.Contains(strings.ToLower(c.Name), lowered) {
			partial = append(partial, c)
		}
	}
	return exact, partial, nil
}

func (a *EntitySearchAgent) singleCharacterMatches(ctx context.Context, query string) ([]graph.Entity, error) {
	var out []graph.Entity
	for _, r := range query {
		candidates, err := a.store.SearchEntitiesByName(ctx, string(r), 20)
		if err != nil {
			return nil, errkind.Wrap(errkind.GraphUnavailable, "single-character search failed", err)
		}
		out = append(out, candidates...)
	}
	return out, nil
}

// isIdeographic reports whether s contains CJK-range runes, for which
// single-character substring matching is a meaningful recall signal (unlike
// Latin scripts, where a lone letter matches almost everything).
func isIdeographic(s string) bool {
	for _, r := range s {
		if r >= 0x4E00 && r <= 0x9FFF {
			return true
		}
	}
	return false
}
