// Copyright 2025 Gerry Miller <gerry@gerrymiller.com>
//
// Licensed under the MIT License.
// See LICENSE file in the project root for full license information.

package embedding

import (
	"context"
	"testing"
)

type countingEmbedder struct {
	calls int
	dim   int
}

func (c *countingEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	c.calls++
	return []float32{float32(len(text)), 1, 0}, nil
}

func (c *countingEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		c.calls++
		out[i] = []float32{float32(len(t)), 1, 0}
	}
	return out, nil
}

func (c *countingEmbedder) Dimension() int { return c.dim }

func (c *countingEmbedder) IsAvailable(context.Context) bool { return true }

func TestCacheHitAvoidsRecompute(t *testing.T) {
	inner := &countingEmbedder{dim: 3}
	cache := NewCache(inner, 10)

	if _, err := cache.Embed(context.Background(), "hello"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := cache.Embed(context.Background(), "hello"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if inner.calls != 1 {
		t.Fatalf("expected 1 call to inner embedder, got %d", inner.calls)
	}
}

func TestCacheEvictsLRU(t *testing.T) {
	inner := &countingEmbedder{dim: 3}
	cache := NewCache(inner, 2)

	ctx := context.Background()
	cache.Embed(ctx, "a")
	cache.Embed(ctx, "b")
	cache.Embed(ctx, "c") // evicts "a"

	if cache.Len() != 2 {
		t.Fatalf("expected capacity-bound length 2, got %d", cache.Len())
	}

	before := inner.calls
	cache.Embed(ctx, "a")
	if inner.calls != before+1 {
		t.Fatal("expected cache miss for evicted key 'a'")
	}
}

func TestCosine(t *testing.T) {
	sim, err := Cosine([]float32{1, 0}, []float32{1, 0})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sim < 0.999 {
		t.Fatalf("expected similarity ~1.0, got %v", sim)
	}

	if _, err := Cosine([]float32{1, 0}, []float32{1, 0, 0}); err == nil {
		t.Fatal("expected error for mismatched dimensions")
	}
}
