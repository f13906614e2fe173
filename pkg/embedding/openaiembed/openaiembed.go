// Copyright 2025 Gerry Miller <gerry@gerrymiller.com>
//
// Licensed under the MIT License.
// See LICENSE file in the project root for full license information.

// Package openaiembed adapts OpenAI's embeddings endpoint to the
// embedding.Embedder interface.
package openaiembed

import (
	"context"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"graphreasoner/pkg/errkind"
)

// Model dimensions for common OpenAI embedding models.
const (
	DimensionTextEmbedding3Small = 1536
	DimensionTextEmbedding3Large = 3072
	DimensionTextEmbeddingAda002 = 1536
)

// Config contains configuration for the OpenAI embedder.
type Config struct {
	Model     string
	BaseURL   string
	BatchSize int
	Timeout   time.Duration
}

// Embedder implements embedding.Embedder using OpenAI's embeddings API.
type Embedder struct {
	client    *openai.Client
	model     string
	dimension int
	batchSize int
	timeout   time.Duration
}

// New creates an Embedder authenticated with apiKey.
func New(apiKey string, config *Config) (*Embedder, error) {
	if apiKey == "" {
		return nil, errkind.New(errkind.InvalidInput, "OpenAI API key is required")
	}
	if config == nil {
		config = &Config{
			Model:     "text-embedding-3-small",
			BatchSize: 100,
			Timeout:   30 * time.Second,
		}
	}
	if config.Model == "" {
		config.Model = "text-embedding-3-small"
	}
	if config.BatchSize <= 0 {
		config.BatchSize = 100
	}

	clientConfig := openai.DefaultConfig(apiKey)
	if config.BaseURL != "" {
		clientConfig.BaseURL = config.BaseURL
	}

	return &Embedder{
		client:    openai.NewClientWithConfig(clientConfig),
		model:     config.Model,
		dimension: dimensionForModel(config.Model),
		batchSize: config.BatchSize,
		timeout:   config.Timeout,
	}, nil
}

func dimensionForModel(model string) int {
	switch model {
	case "text-embedding-3-large":
		return DimensionTextEmbedding3Large
	case "text-embedding-ada-002":
		return DimensionTextEmbeddingAda002
	default:
		return DimensionTextEmbedding3Small
	}
}

func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, errkind.New(errkind.InvalidInput, "texts must not be empty")
	}

	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	results := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += e.batchSize {
		end := start + e.batchSize
		if end > len(texts) {
			end = len(texts)
		}
		batch := texts[start:end]

		resp, err := e.requestWithRetry(ctx, batch)
		if err != nil {
			return nil, err
		}
		for _, d := range resp.Data {
			results = append(results, d.Embedding)
		}
	}
	return results, nil
}

func (e *Embedder) requestWithRetry(ctx context.Context, batch []string) (openai.EmbeddingResponse, error) {
	const maxAttempts = 3
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
			Input: batch,
			Model: openai.EmbeddingModel(e.model),
		})
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
		backoff := time.Duration(1<<attempt) * 200 * time.Millisecond
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			lastErr = ctx.Err()
			attempt = maxAttempts
		}
	}
	if ctx.Err() != nil {
		return openai.EmbeddingResponse{}, errkind.Wrap(errkind.Timeout, "embedding request timed out", ctx.Err())
	}
	return openai.EmbeddingResponse{}, errkind.Wrap(errkind.EmbeddingUnavailable, "OpenAI embeddings request failed", lastErr)
}

func (e *Embedder) Dimension() int { return e.dimension }

func (e *Embedder) IsAvailable(ctx context.Context) bool {
	_, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{"ping"},
		Model: openai.EmbeddingModel(e.model),
	})
	return err == nil
}
