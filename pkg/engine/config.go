// Copyright 2025 Gerry Miller <gerry@gerrymiller.com>
//
// Licensed under the MIT License.
// See LICENSE file in the project root for full license information.

// Package engine wires C1-C9 (graph adapter, embedding client, LLM client,
// schema analyzer, search engine, scheduler, planner, reasoner, and
// multi-agent coordinator) into the single façade external callers use.
package engine

import (
	"log/slog"
	"time"

	"graphreasoner/pkg/graph"
)

// EmbeddingProviderConfig selects and configures the embedding client.
// Leave nil to run without embeddings (search degrades to text similarity).
type EmbeddingProviderConfig struct {
	// Provider names the embedding backend. Only "openai" is recognized.
	Provider string
	APIKey   string
	Model    string

	// CacheSize is not read by New; the embedding cache is sized by
	// Config.EmbeddingCacheSize.
	CacheSize int
}

// LLMProviderConfig selects and configures the LLM client. Leave nil to
// run without an LLM (answer synthesis falls back to deterministic
// evidence concatenation).
type LLMProviderConfig struct {
	// Provider names the LLM backend. Only "openai" is recognized.
	Provider string
	APIKey   string
	Model    string
}

// Config is the engine's full configuration surface, corresponding to the
// façade's enumerated option table.
type Config struct {
	// Store is the graph adapter the engine reasons over. Required.
	Store graph.Store

	Embedding *EmbeddingProviderConfig
	LLM       *LLMProviderConfig

	// MaxDepth caps the multi-hop reasoner's traversal depth. Nil means
	// "use the reasoner's default of 3 hops"; a non-nil 0 is an explicit
	// request to answer from seed entities alone, with no traversal.
	MaxDepth *int
	// Width caps expansions per layer per entity.
	Width int
	// EntityThreshold is the minimum score for an entity to be kept as a
	// seed.
	EntityThreshold float64
	// RelationThreshold is the minimum score for a relation to be
	// traversed.
	RelationThreshold float64
	// MaxEntities caps distinct entities visited per question.
	MaxEntities int
	// MaxPaths caps retained candidate paths.
	MaxPaths int
	// WallClockBudget is the deadline for one Reason call.
	WallClockBudget time.Duration
	// Temperature and MaxTokens are forwarded to the LLM client.
	Temperature float32
	MaxTokens   int
	// ThreadPoolSize sizes the scheduler's main pool; its I/O pool is
	// max(2, ThreadPoolSize/2).
	ThreadPoolSize int
	// EmbeddingCacheSize bounds the embedding cache's entry count.
	EmbeddingCacheSize int
	// StrategyCacheEnabled enables the schema analyzer's per-query
	// strategy memoization. It does not affect the schema snapshot cache.
	StrategyCacheEnabled bool

	// Logger receives structured engine lifecycle and failure events. A
	// nil Logger falls back to slog.Default(), never a package singleton
	// the caller can't override.
	Logger *slog.Logger
}

// ServiceStatus reports readiness of the engine's major subsystems.
type ServiceStatus struct {
	GraphReady       bool
	SearchReady      bool
	ReasonerReady    bool
	SchemaAwareReady bool
}
