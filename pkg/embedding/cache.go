// Copyright 2025 Gerry Miller <gerry@gerrymiller.com>
//
// Licensed under the MIT License.
// See LICENSE file in the project root for full license information.

package embedding

import (
	"container/list"
	"context"
	"sync"
)

// defaultCacheCapacity bounds the number of cached vectors when a Cache is
// constructed without an explicit capacity.
const defaultCacheCapacity = 10000

// Cache wraps an Embedder with a bounded, approximately-LRU cache keyed on
// exact text match. Concurrent readers never observe a partially-written
// entry: a lookup either returns a complete vector or a miss.
type Cache struct {
	mu       sync.Mutex
	inner    Embedder
	capacity int
	entries  map[string]*list.Element
	order    *list.List // front = most recently used
}

type cacheEntry struct {
	text   string
	vector []float32
}

// NewCache wraps inner with an LRU cache holding up to capacity vectors. A
// non-positive capacity falls back to defaultCacheCapacity.
func NewCache(inner Embedder, capacity int) *Cache {
	if capacity <= 0 {
		capacity = defaultCacheCapacity
	}
	return &Cache{
		inner:    inner,
		capacity: capacity,
		entries:  make(map[string]*list.Element),
		order:    list.New(),
	}
}

func (c *Cache) Embed(ctx context.Context, text string) ([]float32, error) {
	if v, ok := c.lookup(text); ok {
		return v, nil
	}
	v, err := c.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	c.store(text, v)
	return v, nil
}

func (c *Cache) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	results := make([][]float32, len(texts))
	var misses []string
	var missIdx []int

	for i, t := range texts {
		if v, ok := c.lookup(t); ok {
			results[i] = v
		} else {
			misses = append(misses, t)
			missIdx = append(missIdx, i)
		}
	}

	if len(misses) == 0 {
		return results, nil
	}

	vectors, err := c.inner.EmbedBatch(ctx, misses)
	if err != nil {
		return nil, err
	}
	for j, idx := range missIdx {
		results[idx] = vectors[j]
		c.store(misses[j], vectors[j])
	}
	return results, nil
}

func (c *Cache) Dimension() int { return c.inner.Dimension() }

func (c *Cache) IsAvailable(ctx context.Context) bool { return c.inner.IsAvailable(ctx) }

func (c *Cache) lookup(text string) ([]float32, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.entries[text]
	if !ok {
		return nil, false
	}
	c.order.MoveToFront(elem)
	entry := elem.Value.(*cacheEntry)
	vector := make([]float32, len(entry.vector))
	copy(vector, entry.vector)
	return vector, true
}

func (c *Cache) store(text string, vector []float32) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.entries[text]; ok {
		c.order.MoveToFront(elem)
		elem.Value.(*cacheEntry).vector = vector
		return
	}

	elem := c.order.PushFront(&cacheEntry{text: text, vector: vector})
	c.entries[text] = elem

	for len(c.entries) > c.capacity {
		oldest := c.order.Back()
		if oldest == nil {
			break
		}
		c.order.Remove(oldest)
		delete(c.entries, oldest.Value.(*cacheEntry).text)
	}
}

// Len reports the number of vectors currently cached.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
