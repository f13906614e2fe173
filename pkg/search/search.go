// Copyright 2025 Gerry Miller <gerry@gerrymiller.com>
//
// Licensed under the MIT License.
// See LICENSE file in the project root for full license information.

// Package search ranks graph entities and relations by relevance to a
// natural-language query, combining embedding similarity with a textual
// fallback so the engine degrades gracefully when no embedding client is
// configured.
package search

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"graphreasoner/pkg/embedding"
	"graphreasoner/pkg/errkind"
	"graphreasoner/pkg/graph"
	"graphreasoner/pkg/schema"
)

// scoreCutoff is the minimum score a candidate must clear to survive
// SearchEntities/ScoreRelations.
const scoreCutoff = 0.05

// Scored pairs an item with its relevance score.
type Scored[T any] struct {
	Item  T
	Score float64
}

// Config contains configuration for the search engine.
type Config struct {
	// SubstringLimitFactor scales topK to get the substring-search
	// candidate limit (limit = max(topK*factor, minSubstringLimit)).
	SubstringLimitFactor int
	MinSubstringLimit    int
}

// Engine implements schema-aware entity and relation scoring over a
// graph.Store, optionally accelerated by an embedding.Embedder.
type Engine struct {
	store    graph.Store
	embedder embedding.Embedder // nil means text-similarity only
	analyzer strategyRecommender
	config   *Config

	mu          sync.Mutex
	vectorCache map[string]cachedVector
}

type strategyRecommender interface {
	RecommendStrategy(ctx context.Context, query string, snapshot *schema.Schema) (*schema.SearchStrategy, error)
}

type cachedVector struct {
	vector []float32
	dim    int
}

// NewEngine creates a search engine over store. embedder may be nil.
// analyzer may be nil, in which case SearchEntities relies solely on the
// substring candidate path.
func NewEngine(store graph.Store, embedder embedding.Embedder, analyzer strategyRecommender, config *Config) *Engine {
	if config == nil {
		config = &Config{SubstringLimitFactor: 3, MinSubstringLimit: 100}
	}
	return &Engine{
		store:       store,
		embedder:    embedder,
		analyzer:    analyzer,
		config:      config,
		vectorCache: make(map[string]cachedVector),
	}
}

// SetAnalyzer wires a schema analyzer into the engine after construction,
// breaking the construction-order cycle between search.Engine (which wants
// an analyzer to drive schema-guided candidates) and schema.Analyzer
// (which wants this engine as its TextScorer).
func (e *Engine) SetAnalyzer(analyzer strategyRecommender) {
	e.analyzer = analyzer
}

// SearchEntities returns up to topK entities ranked by relevance to query.
func (e *Engine) SearchEntities(ctx context.Context, query string, topK int) ([]Scored[graph.Entity], error) {
	if query == "" {
		return nil, errkind.New(errkind.InvalidInput, "query must not be empty")
	}
	if topK <= 0 {
		topK = 10
	}

	substringLimit := topK * e.config.SubstringLimitFactor
	if substringLimit < e.config.MinSubstringLimit {
		substringLimit = e.config.MinSubstringLimit
	}

	substringCandidates, err := e.store.SearchEntitiesByName(ctx, query, substringLimit)
	if err != nil {
		return nil, errkind.Wrap(errkind.GraphUnavailable, "substring entity search failed", err)
	}

	schemaCandidates, err := e.schemaGuidedCandidates(ctx, query, topK)
	if err != nil {
		return nil, err
	}

	scoredSchema := e.scoreEntities(ctx, query, schemaCandidates, 1.0)
	scoredSubstring := e.scoreEntities(ctx, query, substringCandidates, 1.0)

	merged := mergeByID(scoredSchema, scoredSubstring, func(entity graph.Entity) string { return entity.ID }, topK, 0.8)

	sort.Slice(merged, func(i, j int) bool { return merged[i].Score > merged[j].Score })
	return capScored(merged, topK), nil
}

func (e *Engine) schemaGuidedCandidates(ctx context.Context, query string, topK int) ([]graph.Entity, error) {
	if e.analyzer == nil {
		return nil, nil
	}
	strategy, err := e.analyzer.RecommendStrategy(ctx, query, nil)
	if err != nil || strategy == nil {
		return nil, nil
	}
	if strategy.Kind != schema.StrategyProperty && strategy.Kind != schema.StrategyHybrid {
		return nil, nil
	}
	if strategy.PropertyKey == "" || strategy.Confidence < 0.1 {
		return nil, nil
	}

	var candidates []graph.Entity
	for _, nodeType := range strategy.NodeTypes {
		results, err := e.store.SearchEntitiesByProperty(ctx, nodeType, strategy.PropertyKey, query, topK*2)
		if err != nil {
			return nil, errkind.Wrap(errkind.GraphUnavailable, "schema-guided property search failed", err)
		}
		candidates = append(candidates, results...)
	}
	return candidates, nil
}

func (e *Engine) scoreEntities(ctx context.Context, query string, entities []graph.Entity, weight float64) []Scored[graph.Entity] {
	scored := make([]Scored[graph.Entity], 0, len(entities))
	loweredQuery := strings.ToLower(strings.TrimSpace(query))
	for _, entity := range entities {
		// Exact equality with the name or a non-identifier property value
		// scores 1.0; otherwise the whole textual representation is scored.
		exact := strings.ToLower(strings.TrimSpace(entity.Name)) == loweredQuery
		for key, value := range entity.Properties {
			if !exact && !identifierLikeKeys[strings.ToLower(key)] {
				exact = strings.ToLower(strings.TrimSpace(stringify(value))) == loweredQuery
			}
		}
		score := weight
		if !exact {
			text := entityText(entity)
			score = e.score(ctx, query, text, entity.ID, entity.Embedding) * weight
		}
		if score < scoreCutoff {
			continue
		}
		scored = append(scored, Scored[graph.Entity]{Item: entity, Score: score})
	}
	return scored
}

// ScoreRelations ranks relations by relevance to query, using the same
// scoring model over each relation's textual representation.
func (e *Engine) ScoreRelations(ctx context.Context, query string, relations []graph.Relation, lookup func(id string) (graph.Entity, bool)) []Scored[graph.Relation] {
	scored := make([]Scored[graph.Relation], 0, len(relations))
	for _, relation := range relations {
		text := relationText(relation, lookup)
		score := e.score(ctx, query, text, "", nil)
		if score < scoreCutoff {
			continue
		}
		scored = append(scored, Scored[graph.Relation]{Item: relation, Score: score})
	}
	sort.Slice(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	return scored
}

// CalculateSimilarity scores two arbitrary strings, using embedding cosine
// when available and falling back to Jaccard otherwise.
func (e *Engine) CalculateSimilarity(ctx context.Context, a, b string) float64 {
	return e.score(ctx, a, b, "", nil)
}

// Score implements schema.TextScorer so the schema analyzer can reuse this
// engine's scoring model without a package import cycle.
func (e *Engine) Score(a, b string) float64 {
	return e.score(context.Background(), a, b, "", nil)
}

func (e *Engine) score(ctx context.Context, query, text, cacheKey string, cachedEmbedding []float32) float64 {
	loweredQuery := strings.ToLower(strings.TrimSpace(query))
	loweredText := strings.ToLower(strings.TrimSpace(text))

	switch {
	case loweredQuery == loweredText:
		return 1.0
	case strings.Contains(loweredText, loweredQuery):
		return 0.8
	case strings.Contains(loweredQuery, loweredText):
		return 0.6
	}

	if e.embedder != nil {
		if score, ok := e.embeddingScore(ctx, query, text, cacheKey, cachedEmbedding); ok {
			return score
		}
	}
	return jaccard(loweredQuery, loweredText)
}

func (e *Engine) embeddingScore(ctx context.Context, query, text, cacheKey string, cachedEmbedding []float32) (float64, bool) {
	queryVector, err := e.embedder.Embed(ctx, query)
	if err != nil || len(queryVector) == 0 {
		return 0, false
	}

	textVector := cachedEmbedding
	if cacheKey != "" {
		if v, ok := e.lookupVector(cacheKey); ok {
			textVector = v
		}
	}
	if textVector == nil {
		computed, err := e.embedder.Embed(ctx, text)
		if err != nil || len(computed) == 0 {
			return 0, false
		}
		textVector = computed
		if cacheKey != "" {
			e.storeVector(cacheKey, textVector)
		}
	}

	if len(textVector) != e.embedder.Dimension() || len(queryVector) != e.embedder.Dimension() {
		if cacheKey != "" {
			e.evictVector(cacheKey)
		}
		return 0, false
	}

	sim, err := embedding.Cosine(queryVector, textVector)
	if err != nil {
		if cacheKey != "" {
			e.evictVector(cacheKey)
		}
		return 0, false
	}
	// Cosine returns [-1, 1]; a relevance score is expected in [0, 1].
	if sim < 0 {
		sim = 0
	}
	return sim, true
}

func (e *Engine) lookupVector(key string) ([]float32, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	v, ok := e.vectorCache[key]
	if !ok || v.dim != e.embedder.Dimension() {
		return nil, false
	}
	return v.vector, true
}

func (e *Engine) storeVector(key string, vector []float32) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.vectorCache[key] = cachedVector{vector: vector, dim: e.embedder.Dimension()}
}

func (e *Engine) evictVector(key string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.vectorCache, key)
}

// jaccard computes token-set Jaccard similarity over lowercase,
// whitespace-split tokens.
func jaccard(a, b string) float64 {
	setA := tokenSet(a)
	setB := tokenSet(b)
	if len(setA) == 0 || len(setB) == 0 {
		return 0
	}

	intersection := 0
	for tok := range setA {
		if setB[tok] {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

func tokenSet(s string) map[string]bool {
	fields := strings.Fields(s)
	set := make(map[string]bool, len(fields))
	for _, f := range fields {
		set[f] = true
	}
	return set
}

var identifierLikeKeys = map[string]bool{"id": true, "uuid": true, "_id": true}

func entityText(e graph.Entity) string {
	var b strings.Builder
	b.WriteString(e.Name)
	b.WriteByte(' ')
	b.WriteString(e.Type)
	for key, value := range e.Properties {
		if identifierLikeKeys[strings.ToLower(key)] {
			continue
		}
		b.WriteByte(' ')
		b.WriteString(key)
		b.WriteByte(' ')
		b.WriteString(stringify(value))
	}
	return b.String()
}

func relationText(r graph.Relation, lookup func(id string) (graph.Entity, bool)) string {
	var b strings.Builder
	b.WriteString(r.Type)
	if lookup != nil {
		if src, ok := lookup(r.SourceID); ok {
			b.WriteByte(' ')
			b.WriteString(src.Name)
		}
		if tgt, ok := lookup(r.TargetID); ok {
			b.WriteByte(' ')
			b.WriteString(tgt.Name)
		}
	}
	for key, value := range r.Properties {
		if key == "score" {
			continue
		}
		b.WriteByte(' ')
		b.WriteString(key)
		b.WriteByte(' ')
		b.WriteString(stringify(value))
	}
	return b.String()
}

func stringify(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case fmt.Stringer:
		return t.String()
	default:
		return fmt.Sprintf("%v", t)
	}
}

func mergeByID[T any](primary, secondary []Scored[T], idOf func(T) string, topK int, secondaryPenalty float64) []Scored[T] {
	byID := make(map[string]Scored[T], len(primary)+len(secondary))
	order := make([]string, 0, len(primary)+len(secondary))

	for _, s := range primary {
		id := idOf(s.Item)
		byID[id] = s
		order = append(order, id)
	}

	if len(primary) < topK/2 {
		for _, s := range secondary {
			id := idOf(s.Item)
			penalized := Scored[T]{Item: s.Item, Score: s.Score * secondaryPenalty}
			existing, ok := byID[id]
			if !ok {
				byID[id] = penalized
				order = append(order, id)
			} else if penalized.Score > existing.Score {
				byID[id] = penalized
			}
		}
	} else {
		for _, s := range secondary {
			id := idOf(s.Item)
			if existing, ok := byID[id]; !ok || s.Score > existing.Score {
				byID[id] = s
				if !ok {
					order = append(order, id)
				}
			}
		}
	}

	merged := make([]Scored[T], 0, len(order))
	for _, id := range order {
		merged = append(merged, byID[id])
	}
	return merged
}

func capScored[T any](items []Scored[T], limit int) []Scored[T] {
	if limit > 0 && len(items) > limit {
		return items[:limit]
	}
	return items
}
