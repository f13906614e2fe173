// Copyright 2025 Gerry Miller <gerry@gerrymiller.com>
//
// Licensed under the MIT License.
// See LICENSE file in the project root for full license information.

package schema

import (
	"context"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"graphreasoner/pkg/errkind"
	"graphreasoner/pkg/graph"
)

// maxSampleValuesPerProperty bounds how many sample values the analyzer
// caches per node-type/property pair.
const maxSampleValuesPerProperty = 20

// TextScorer scores how well two short strings match. pkg/search.Engine
// satisfies this interface; the analyzer depends only on the shape, not on
// the search package, so schema and search never need to import each other.
type TextScorer interface {
	Score(a, b string) float64
}

// AnalyzerConfig contains configuration for the schema analyzer.
type AnalyzerConfig struct {
	// MinStrategyConfidence is the floor below which RecommendStrategy
	// falls back to StrategyHybrid rather than committing to a single
	// property.
	MinStrategyConfidence float64

	// CacheTTL bounds how long a discovered Schema is reused before
	// Analyze re-queries the store. Zero means cache indefinitely until
	// Invalidate is called.
	CacheTTL time.Duration

	// StrategyCacheEnabled enables per-normalized-query memoization of
	// RecommendStrategy results. Eviction is explicit, via
	// InvalidateStrategy/InvalidateStrategies, never time-based; Invalidate
	// clears only the schema snapshot.
	StrategyCacheEnabled bool
}

// Analyzer discovers graph schema by querying a graph.Store and caches the
// result behind a copy-on-write snapshot: readers never block on a
// concurrent refresh.
type Analyzer struct {
	store  graph.Store
	scorer TextScorer
	config *AnalyzerConfig

	mu        sync.RWMutex
	snapshot  *Schema
	fetchedAt time.Time

	strategyMu    sync.RWMutex
	strategyCache map[string]*SearchStrategy
}

// NewAnalyzer creates a schema analyzer backed by store. scorer may be nil;
// RecommendStrategy then falls back to exact/substring matching only.
func NewAnalyzer(store graph.Store, scorer TextScorer, config *AnalyzerConfig) *Analyzer {
	if config == nil {
		config = &AnalyzerConfig{MinStrategyConfidence: 0.3}
	}
	return &Analyzer{
		store:         store,
		scorer:        scorer,
		config:        config,
		strategyCache: make(map[string]*SearchStrategy),
	}
}

// Analyze returns the current graph schema, refreshing the cached snapshot
// if it has expired or never been computed.
func (a *Analyzer) Analyze(ctx context.Context) (*Schema, error) {
	if snap := a.cached(); snap != nil {
		return snap, nil
	}

	nodeStats, err := a.store.AllNodeTypes(ctx)
	if err != nil {
		return nil, errkind.Wrap(errkind.GraphUnavailable, "failed to enumerate node types", err)
	}
	relStats, err := a.store.AllRelationshipTypes(ctx)
	if err != nil {
		return nil, errkind.Wrap(errkind.GraphUnavailable, "failed to enumerate relationship types", err)
	}

	schema := &Schema{
		NodeTypes:     make(map[string]NodeType, len(nodeStats)),
		RelationTypes: make(map[string]RelationType, len(relStats)),
	}

	for _, ns := range nodeStats {
		freq, err := a.store.PropertyFrequency(ctx, ns.Type)
		if err != nil {
			return nil, errkind.Wrap(errkind.GraphUnavailable, "failed to compute property frequency for "+ns.Type, err)
		}
		samples := make(map[string][]string, len(freq))
		for key := range freq {
			values, err := a.store.SampleValues(ctx, ns.Type, key, maxSampleValuesPerProperty)
			if err != nil {
				return nil, errkind.Wrap(errkind.GraphUnavailable, "failed to sample values for "+ns.Type+"."+key, err)
			}
			samples[key] = values
		}
		schema.NodeTypes[ns.Type] = NodeType{
			Name:              ns.Type,
			Count:             ns.Count,
			PropertyFrequency: freq,
			SampleValues:      samples,
		}
	}

	for _, rs := range relStats {
		schema.RelationTypes[rs.Type] = RelationType{
			Name:        rs.Type,
			Count:       rs.Count,
			SourceTypes: rs.SourceTypes,
			TargetTypes: rs.TargetTypes,
		}
	}

	a.mu.Lock()
	a.snapshot = schema
	a.fetchedAt = time.Now()
	a.mu.Unlock()

	return schema, nil
}

func (a *Analyzer) cached() *Schema {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.snapshot == nil {
		return nil
	}
	if a.config.CacheTTL > 0 && time.Since(a.fetchedAt) > a.config.CacheTTL {
		return nil
	}
	return a.snapshot
}

// Invalidate discards the cached schema snapshot so the next Analyze call
// re-queries the store.
func (a *Analyzer) Invalidate() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.snapshot = nil
}

// InvalidateStrategy evicts the memoized RecommendStrategy result for query,
// if any. query is normalized the same way RecommendStrategy normalizes it,
// so callers may pass it in its original form.
func (a *Analyzer) InvalidateStrategy(query string) {
	a.strategyMu.Lock()
	defer a.strategyMu.Unlock()
	delete(a.strategyCache, normalizeQuery(query))
}

// InvalidateStrategies evicts every memoized RecommendStrategy result, e.g.
// after the underlying schema has changed materially enough that cached
// recommendations should not survive.
func (a *Analyzer) InvalidateStrategies() {
	a.strategyMu.Lock()
	defer a.strategyMu.Unlock()
	a.strategyCache = make(map[string]*SearchStrategy)
}

// normalizeQuery canonicalizes query for use as a strategy-cache key:
// lowercased, with runs of whitespace collapsed to a single space.
func normalizeQuery(query string) string {
	return strings.Join(strings.Fields(strings.ToLower(query)), " ")
}

// SampleValues returns up to limit distinct values observed for property on
// entities of nodeType, delegating directly to the store (bypassing the
// cached schema snapshot, since callers use this for fresh drill-down after
// an initial Analyze).
func (a *Analyzer) SampleValues(ctx context.Context, nodeType, property string, limit int) ([]string, error) {
	values, err := a.store.SampleValues(ctx, nodeType, property, limit)
	if err != nil {
		return nil, errkind.Wrap(errkind.GraphUnavailable, "failed to sample values", err)
	}
	return values, nil
}

// RecommendStrategy picks the search approach most likely to resolve the
// entities named in query, given the graph's shape. Node types whose
// population share is larger contribute a log-scaled prior; properties
// whose sample values textually resemble query terms raise the confidence
// in StrategyProperty/StrategyHybrid.
func (a *Analyzer) RecommendStrategy(ctx context.Context, query string, schemaSnapshot *Schema) (*SearchStrategy, error) {
	if query == "" {
		return nil, errkind.New(errkind.InvalidInput, "query must not be empty")
	}

	normalized := normalizeQuery(query)
	if a.config.StrategyCacheEnabled {
		a.strategyMu.RLock()
		cached, ok := a.strategyCache[normalized]
		a.strategyMu.RUnlock()
		if ok {
			return cached, nil
		}
	}

	if schemaSnapshot == nil {
		snap, err := a.Analyze(ctx)
		if err != nil {
			return nil, err
		}
		schemaSnapshot = snap
	}

	type candidate struct {
		nodeType    string
		property    string
		confidence  float64
		isProperty  bool
	}

	var best candidate
	lowered := strings.ToLower(query)
	totalEntities := 0
	for _, nt := range schemaSnapshot.NodeTypes {
		totalEntities += nt.Count
	}

	for _, nt := range schemaSnapshot.NodeTypes {
		prior := 0.0
		if totalEntities > 0 {
			prior = math.Log1p(float64(nt.Count)) / math.Log1p(float64(totalEntities))
		}

		for property, values := range nt.SampleValues {
			matchScore := a.bestSampleMatch(lowered, values)
			if matchScore <= 0 {
				continue
			}
			confidence := 0.6*matchScore + 0.4*prior
			if confidence > best.confidence {
				best = candidate{nodeType: nt.Name, property: property, confidence: confidence, isProperty: true}
			}
		}

		// Name-based fallback candidate: every type is eligible, scored by
		// population prior alone.
		if prior > best.confidence && !best.isProperty {
			best = candidate{nodeType: nt.Name, confidence: prior}
		}
	}

	var strategy *SearchStrategy
	if !best.isProperty || best.confidence < a.config.MinStrategyConfidence {
		strategy = &SearchStrategy{
			Kind:       StrategyHybrid,
			NodeTypes:  sortedNodeTypeNames(schemaSnapshot),
			Confidence: best.confidence,
		}
	} else {
		strategy = &SearchStrategy{
			Kind:        StrategyProperty,
			NodeTypes:   []string{best.nodeType},
			PropertyKey: best.property,
			Confidence:  best.confidence,
		}
	}

	if a.config.StrategyCacheEnabled {
		a.strategyMu.Lock()
		a.strategyCache[normalized] = strategy
		a.strategyMu.Unlock()
	}

	return strategy, nil
}

func (a *Analyzer) bestSampleMatch(loweredQuery string, values []string) float64 {
	best := 0.0
	for _, v := range values {
		loweredValue := strings.ToLower(v)
		var score float64
		switch {
		case loweredValue == loweredQuery:
			score = 1.0
		case strings.Contains(loweredQuery, loweredValue) || strings.Contains(loweredValue, loweredQuery):
			score = 0.8
		case a.scorer != nil:
			score = a.scorer.Score(loweredQuery, loweredValue)
		}
		if score > best {
			best = score
		}
	}
	return best
}

func sortedNodeTypeNames(s *Schema) []string {
	names := make([]string, 0, len(s.NodeTypes))
	for name := range s.NodeTypes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
