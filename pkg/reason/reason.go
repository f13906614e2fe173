// Copyright 2025 Gerry Miller <gerry@gerrymiller.com>
//
// Licensed under the MIT License.
// See LICENSE file in the project root for full license information.

// Package reason implements the bounded best-first multi-hop traversal
// that realizes a reasoning plan: starting from seed entities, it explores
// the graph along semantically relevant edges, collects weighted evidence,
// and synthesizes a final answer.
package reason

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"graphreasoner/pkg/errkind"
	"graphreasoner/pkg/graph"
	"graphreasoner/pkg/llm"
	"graphreasoner/pkg/plan"
	"graphreasoner/pkg/search"
)

// Evidence is an immutable observation gathered during traversal.
type Evidence struct {
	Description string
	Score       float64
	Depth       int
	Timestamp   time.Time
}

// Result is the immutable outcome of reasoning over a question.
type Result struct {
	Question   string
	Answer     string
	Evidence   []Evidence
	Paths      []graph.Path
	Confidence float64
	Elapsed    time.Duration

	// Warnings notes ways this result is degraded or partial: a seed with
	// no neighboring relations, a run truncated by its time budget, and
	// similar conditions a caller should know about even though Reason
	// still returned a result rather than an error.
	Warnings []string
}

// Config bounds a single reasoning run.
type Config struct {
	// MaxDepth caps traversal depth. Nil means "unset, use the default of
	// 3 hops"; a non-nil value of 0 is an explicit request to skip
	// traversal entirely and answer from the seed entities alone, which
	// the zero value of a plain int could never express.
	MaxDepth          *int
	Width             int
	EntityThreshold   float64
	RelationThreshold float64
	MaxEntities       int
	MaxPaths          int
	Budget            time.Duration
	EvidenceBudget    int
	Temperature       float32
	MaxTokens         int

	// MinEnoughEvidenceCount and MinEnoughEvidenceScore gate the
	// "enough evidence" stop condition.
	MinEnoughEvidenceCount int
	MinEnoughEvidenceScore float64
	SufficiencyThreshold   float64

	// StrategyConfidence is the schema analyzer's confidence in the search
	// strategy used to pick seeds, in [0, 1]. It caps the final confidence
	// alongside the best-path score. Zero means "no schema strategy was
	// consulted" and leaves confidence uncapped by this term.
	StrategyConfidence float64
}

func (c *Config) withDefaults() *Config {
	cfg := *c
	if cfg.MaxDepth == nil {
		defaultDepth := 3
		cfg.MaxDepth = &defaultDepth
	}
	if cfg.Width <= 0 {
		cfg.Width = 4
	}
	if cfg.EntityThreshold <= 0 {
		cfg.EntityThreshold = 0.4
	}
	if cfg.RelationThreshold <= 0 {
		cfg.RelationThreshold = 0.2
	}
	if cfg.MaxEntities <= 0 {
		cfg.MaxEntities = 100
	}
	if cfg.MaxPaths <= 0 {
		cfg.MaxPaths = 50
	}
	if cfg.Budget <= 0 {
		cfg.Budget = 30 * time.Second
	}
	if cfg.EvidenceBudget <= 0 {
		cfg.EvidenceBudget = 10
	}
	if cfg.MinEnoughEvidenceCount <= 0 {
		cfg.MinEnoughEvidenceCount = 3
	}
	if cfg.MinEnoughEvidenceScore <= 0 {
		cfg.MinEnoughEvidenceScore = 0.6
	}
	if cfg.SufficiencyThreshold <= 0 {
		cfg.SufficiencyThreshold = 0.7
	}
	if cfg.StrategyConfidence <= 0 {
		cfg.StrategyConfidence = 1.0
	}
	return &cfg
}

// RelationScorer scores relations against a question. *search.Engine
// satisfies this interface.
type RelationScorer interface {
	ScoreRelations(ctx context.Context, query string, relations []graph.Relation, lookup func(id string) (graph.Entity, bool)) []search.Scored[graph.Relation]
}

type scoredRelation = search.Scored[graph.Relation]

// LoadSignal reports whether the system is currently under high load.
// *scheduler.Scheduler satisfies this interface; a Reasoner with a
// LoadSignal attached halves its per-layer width while the signal is
// asserted, the same way SetAnalyzer lets search.Engine and
// schema.Analyzer complete each other's wiring after construction.
type LoadSignal interface {
	IsHighLoad() bool
}

// Reasoner realizes a plan's traversal over a graph.Store.
type Reasoner struct {
	store  graph.Store
	scorer RelationScorer
	llm    llm.Provider
	load   LoadSignal
}

// NewReasoner creates a Reasoner.
func NewReasoner(store graph.Store, scorer RelationScorer, llmProvider llm.Provider) *Reasoner {
	return &Reasoner{store: store, scorer: scorer, llm: llmProvider}
}

// SetLoadSignal attaches the system load signal the traversal consults to
// halve its per-layer width under high load. Nil leaves width unaffected.
func (r *Reasoner) SetLoadSignal(signal LoadSignal) {
	r.load = signal
}

type frontierEntry struct {
	entity graph.Entity
	depth  int
	prior  float64
}

type pathState struct {
	path          graph.Path
	score         float64
	discoveryOrder int
}

// Reason runs the bounded best-first traversal from seeds and synthesizes
// an answer to question, honoring config's bounds and the category
// associated with question's plan.
func (r *Reasoner) Reason(ctx context.Context, question string, category plan.Category, seeds []graph.Entity, config *Config) (*Result, error) {
	if strings.TrimSpace(question) == "" {
		return nil, errkind.New(errkind.InvalidInput, "question must not be empty")
	}
	if len(seeds) == 0 {
		return nil, errkind.New(errkind.InvalidInput, "at least one seed entity is required")
	}
	cfg := config
	if cfg == nil {
		cfg = &Config{}
	}
	cfg = cfg.withDefaults()
	maxDepth := *cfg.MaxDepth

	start := time.Now()
	deadline := start.Add(cfg.Budget)
	ctx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	visited := make(map[string]int) // entity ID -> shallowest depth visited
	visitedRelations := make(map[string]bool)
	entitiesByID := make(map[string]graph.Entity)

	frontier := make([]frontierEntry, 0, len(seeds))
	for _, seed := range seeds {
		visited[seed.ID] = 0
		entitiesByID[seed.ID] = seed
		frontier = append(frontier, frontierEntry{entity: seed, depth: 0, prior: 1.0})
	}

	var evidence []Evidence
	var paths []pathState
	var warnings []string
	activePaths := map[string][]pathState{} // entity ID -> paths ending there
	for _, seed := range seeds {
		activePaths[seed.ID] = []pathState{{path: graph.Path{Entities: []graph.Entity{seed}}, score: 1.0}}
	}

	entitiesVisited := 0
	discoveryCounter := 0

	if maxDepth == 0 {
		// MaxDepth explicitly 0: answer from the seed entities alone,
		// without touching the graph store at all.
		for _, seed := range seeds {
			evidence = append(evidence, Evidence{
				Description: fmt.Sprintf("seed entity: %s (%s)", seed.Name, seed.Type),
				Score:       1.0,
				Depth:       0,
				Timestamp:   time.Now(),
			})
		}
	}

	truncatedByBudget := false
	for depth := 0; depth < maxDepth; depth++ {
		if ctx.Err() != nil && !truncatedByBudget {
			truncatedByBudget = true
			warnings = append(warnings, "reasoning stopped before completion: time budget exceeded")
		}
		if r.shouldStop(ctx, depth, maxDepth, cfg, entitiesVisited, evidence, paths, start) {
			break
		}
		if len(frontier) == 0 {
			break
		}

		width := cfg.Width
		if r.load != nil && r.load.IsHighLoad() {
			width = width / 2
			if width < 1 {
				width = 1
			}
		}

		sort.Slice(frontier, func(i, j int) bool { return frontier[i].prior > frontier[j].prior })
		if len(frontier) > width {
			frontier = frontier[:width]
		}

		var nextFrontier []frontierEntry

		for _, current := range frontier {
			if ctx.Err() != nil {
				break
			}
			entitiesVisited++

			relations, err := r.expand(ctx, current.entity.ID)
			if err != nil {
				return nil, err
			}
			if len(relations) == 0 && current.depth == 0 {
				warnings = append(warnings, fmt.Sprintf("seed entity %s has no neighboring relations", current.entity.Name))
			}

			scored := r.scoreRelations(ctx, question, relations, entitiesByID)
			kept := filterByThreshold(scored, cfg.RelationThreshold)
			sort.Slice(kept, func(i, j int) bool { return kept[i].Score > kept[j].Score })
			if len(kept) > width {
				kept = kept[:width]
			}

			for _, sr := range kept {
				otherID := sr.Item.TargetID
				if otherID == current.entity.ID {
					otherID = sr.Item.SourceID
				}
				relKey := fmt.Sprintf("%s|%s|%s", sr.Item.Type, sr.Item.SourceID, sr.Item.TargetID)
				if visitedRelations[relKey] {
					continue
				}
				visitedRelations[relKey] = true

				other, err := r.materialize(ctx, otherID, entitiesByID)
				if err != nil || other == nil {
					continue
				}

				stepScore := sr.Score * (1.0 / float64(depth+1)) * current.prior
				ts := time.Now()
				evidence = append(evidence, Evidence{
					Description: fmt.Sprintf("%s -[%s]-> %s (score: %.3f)", current.entity.Name, sr.Item.Type, other.Name, stepScore),
					Score:       stepScore,
					Depth:       depth,
					Timestamp:   ts,
				})

				if prevDepth, seen := visited[other.ID]; seen && prevDepth <= depth+1 {
					continue
				}
				visited[other.ID] = depth + 1

				for _, base := range activePaths[current.entity.ID] {
					if stepScore < 0.1 || base.path.Length()+1 > maxDepth {
						continue
					}
					newPath := graph.Path{
						Entities:  append(append([]graph.Entity{}, base.path.Entities...), *other),
						Relations: append(append([]graph.Relation{}, base.path.Relations...), sr.Item),
					}
					newScore := base.score * stepScore
					newPath.Score = newScore
					discoveryCounter++
					ps := pathState{path: newPath, score: newScore, discoveryOrder: discoveryCounter}
					paths = append(paths, ps)
					activePaths[other.ID] = append(activePaths[other.ID], ps)
				}

				nextFrontier = append(nextFrontier, frontierEntry{entity: *other, depth: depth + 1, prior: stepScore})
			}

			if entitiesVisited >= cfg.MaxEntities {
				break
			}
		}

		frontier = nextFrontier
	}

	sort.SliceStable(paths, func(i, j int) bool {
		if abs(paths[i].score-paths[j].score) < 1e-6 {
			if paths[i].path.Length() != paths[j].path.Length() {
				return paths[i].path.Length() < paths[j].path.Length()
			}
			return paths[i].discoveryOrder < paths[j].discoveryOrder
		}
		return paths[i].score > paths[j].score
	})
	if len(paths) > cfg.MaxPaths {
		paths = paths[:cfg.MaxPaths]
	}

	finalPaths := make([]graph.Path, len(paths))
	for i, p := range paths {
		finalPaths[i] = p.path
	}

	answer := r.synthesize(ctx, question, category, evidence, cfg)
	confidence := r.confidence(evidence, paths, cfg)

	return &Result{
		Question:   question,
		Answer:     answer,
		Evidence:   evidence,
		Paths:      finalPaths,
		Confidence: confidence,
		Elapsed:    time.Since(start),
		Warnings:   warnings,
	}, nil
}

func (r *Reasoner) shouldStop(ctx context.Context, depth int, maxDepth int, cfg *Config, entitiesVisited int, evidence []Evidence, paths []pathState, start time.Time) bool {
	if ctx.Err() != nil {
		return true
	}
	if depth >= maxDepth {
		return true
	}
	if entitiesVisited >= cfg.MaxEntities {
		return true
	}
	if time.Since(start) >= cfg.Budget {
		return true
	}

	strongEvidence := 0
	for _, e := range evidence {
		if e.Score >= cfg.MinEnoughEvidenceScore {
			strongEvidence++
		}
	}
	if strongEvidence >= cfg.MinEnoughEvidenceCount {
		best := 0.0
		for _, p := range paths {
			if p.score > best {
				best = p.score
			}
		}
		if best >= cfg.SufficiencyThreshold {
			return true
		}
	}
	return false
}

func (r *Reasoner) expand(ctx context.Context, entityID string) ([]graph.Relation, error) {
	out, err := r.store.OutgoingRelations(ctx, entityID, nil)
	if err != nil {
		return nil, errkind.Wrap(errkind.GraphUnavailable, "failed to expand outgoing relations", err)
	}
	in, err := r.store.IncomingRelations(ctx, entityID, nil)
	if err != nil {
		return nil, errkind.Wrap(errkind.GraphUnavailable, "failed to expand incoming relations", err)
	}
	return append(out, in...), nil
}

func (r *Reasoner) scoreRelations(ctx context.Context, question string, relations []graph.Relation, known map[string]graph.Entity) []scoredRelation {
	lookup := func(id string) (graph.Entity, bool) {
		if e, ok := known[id]; ok {
			return e, true
		}
		e, err := r.materialize(ctx, id, known)
		if err != nil || e == nil {
			return graph.Entity{}, false
		}
		return *e, true
	}
	return r.scorer.ScoreRelations(ctx, question, relations, lookup)
}

func (r *Reasoner) materialize(ctx context.Context, id string, known map[string]graph.Entity) (*graph.Entity, error) {
	if e, ok := known[id]; ok {
		return &e, nil
	}
	e, err := r.store.FindEntity(ctx, id)
	if err != nil {
		return nil, errkind.Wrap(errkind.GraphUnavailable, "failed to materialize entity "+id, err)
	}
	if e == nil {
		return nil, nil
	}
	known[id] = *e
	return e, nil
}

func filterByThreshold(scored []scoredRelation, threshold float64) []scoredRelation {
	kept := make([]scoredRelation, 0, len(scored))
	for _, s := range scored {
		if s.Score >= threshold {
			kept = append(kept, s)
		}
	}
	return kept
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

var answerTemplates = map[plan.Category]string{
	plan.CategoryPerson:   "Identify who the question refers to using the evidence below, then answer directly.",
	plan.CategoryLocation: "Identify the place the question refers to using the evidence below, then answer directly.",
	plan.CategoryProcess:  "Explain the process or mechanism the question asks about, using the evidence below.",
	plan.CategoryCausal:   "Explain the cause-and-effect relationship the question asks about, using the evidence below.",
	plan.CategoryTime:     "Identify the relevant time or sequence using the evidence below, then answer directly.",
	plan.CategoryConcept:  "Define or describe the concept the question asks about, using the evidence below.",
	plan.CategoryGeneral:  "Answer the question as precisely as possible using the evidence below.",
}

func (r *Reasoner) synthesize(ctx context.Context, question string, category plan.Category, evidence []Evidence, cfg *Config) string {
	top := topEvidence(evidence, cfg.EvidenceBudget)

	if r.llm != nil {
		prompt := buildPrompt(question, category, top)
		text, err := r.llm.Generate(ctx, prompt, cfg.Temperature, cfg.MaxTokens)
		if err == nil && strings.TrimSpace(text) != "" {
			return text
		}
	}

	return fallbackAnswer(top)
}

func buildPrompt(question string, category plan.Category, evidence []Evidence) string {
	instruction := answerTemplates[category]
	var b strings.Builder
	b.WriteString(instruction)
	b.WriteString("\n\nQuestion: ")
	b.WriteString(question)
	b.WriteString("\n\nEvidence:\n")
	for _, e := range evidence {
		b.WriteString("- ")
		b.WriteString(e.Description)
		b.WriteByte('\n')
	}
	return b.String()
}

func fallbackAnswer(evidence []Evidence) string {
	if len(evidence) == 0 {
		return "No sufficient evidence was found to answer this question."
	}
	parts := make([]string, len(evidence))
	for i, e := range evidence {
		parts[i] = e.Description
	}
	return strings.Join(parts, "; ")
}

func topEvidence(evidence []Evidence, n int) []Evidence {
	sorted := append([]Evidence{}, evidence...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Score > sorted[j].Score })
	if len(sorted) > n {
		sorted = sorted[:n]
	}
	return sorted
}

func (r *Reasoner) confidence(evidence []Evidence, paths []pathState, cfg *Config) float64 {
	top := topEvidence(evidence, cfg.EvidenceBudget)
	if len(top) == 0 {
		return 0
	}
	sum := 0.0
	for _, e := range top {
		sum += e.Score
	}
	mean := sum / float64(len(top))

	bestPath := 0.0
	for _, p := range paths {
		if p.score > bestPath {
			bestPath = p.score
		}
	}

	// confidence is capped by the minimum of (schema strategy confidence,
	// best-path score); with no path at all, only the strategy cap applies.
	cap := cfg.StrategyConfidence
	if bestPath > 0 && bestPath < cap {
		cap = bestPath
	}
	if mean > cap {
		return cap
	}
	return mean
}
