// Copyright 2025 Gerry Miller <gerry@gerrymiller.com>
//
// Licensed under the MIT License.
// See LICENSE file in the project root for full license information.

// Package embedding defines the embedding-client capability the reasoning
// engine consumes, plus a bounded cache wrapper any Embedder can sit behind.
package embedding

import (
	"context"
	"math"

	"graphreasoner/pkg/errkind"
)

// Embedder turns text into dense vectors for semantic similarity scoring.
type Embedder interface {
	// Embed generates a single vector for text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates vectors for each of texts, preserving order.
	// Implementations are expected to internally chunk large batches and
	// retry transient failures; callers should not need to batch
	// themselves.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimension returns the length of vectors this embedder produces.
	Dimension() int

	// IsAvailable reports whether the embedder is currently reachable.
	// Implementations may issue a small probe request to find out.
	IsAvailable(ctx context.Context) bool
}

// Cosine computes cosine similarity between two vectors of equal length, in
// [-1, 1]. Returns an InvalidInput error if the lengths differ or either
// vector has zero magnitude.
func Cosine(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, errkind.New(errkind.InvalidInput, "vectors must have equal length")
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0, errkind.New(errkind.InvalidInput, "zero-magnitude vector")
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB)), nil
}
