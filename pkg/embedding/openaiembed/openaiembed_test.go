// Copyright 2025 Gerry Miller <gerry@gerrymiller.com>
//
// Licensed under the MIT License.
// See LICENSE file in the project root for full license information.

package openaiembed

import (
	"context"
	"testing"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		apiKey  string
		config  *Config
		wantErr bool
	}{
		{name: "valid embedder with defaults", apiKey: "test-api-key", config: nil},
		{name: "valid embedder with custom config", apiKey: "test-api-key", config: &Config{Model: "text-embedding-ada-002", BatchSize: 50}},
		{name: "missing API key", apiKey: "", config: nil, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			embedder, err := New(tt.apiKey, tt.config)

			if tt.wantErr {
				if err == nil {
					t.Fatal("New() expected error but got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("New() unexpected error: %v", err)
			}
			if embedder == nil {
				t.Fatal("New() returned nil embedder")
			}
		})
	}
}

func TestDimensionForModel(t *testing.T) {
	tests := []struct {
		model     string
		dimension int
	}{
		{"text-embedding-3-small", DimensionTextEmbedding3Small},
		{"text-embedding-3-large", DimensionTextEmbedding3Large},
		{"text-embedding-ada-002", DimensionTextEmbeddingAda002},
		{"unknown-model", DimensionTextEmbedding3Small},
	}

	for _, tt := range tests {
		t.Run(tt.model, func(t *testing.T) {
			embedder, err := New("test-key", &Config{Model: tt.model})
			if err != nil {
				t.Fatalf("New() unexpected error: %v", err)
			}
			if got := embedder.Dimension(); got != tt.dimension {
				t.Errorf("Dimension() = %d, want %d", got, tt.dimension)
			}
		})
	}
}

func TestNewDefaultBatchSize(t *testing.T) {
	embedder, err := New("test-key", &Config{Model: "text-embedding-3-small"})
	if err != nil {
		t.Fatalf("New() unexpected error: %v", err)
	}
	if embedder.batchSize != 100 {
		t.Errorf("default batchSize = %d, want 100", embedder.batchSize)
	}

	embedder, err = New("test-key", &Config{Model: "text-embedding-3-small", BatchSize: 25})
	if err != nil {
		t.Fatalf("New() unexpected error: %v", err)
	}
	if embedder.batchSize != 25 {
		t.Errorf("custom batchSize = %d, want 25", embedder.batchSize)
	}
}

func TestEmbedBatchRejectsEmptyInput(t *testing.T) {
	embedder, err := New("test-key", nil)
	if err != nil {
		t.Fatalf("New() unexpected error: %v", err)
	}

	if _, err := embedder.EmbedBatch(context.Background(), nil); err == nil {
		t.Error("EmbedBatch(nil) expected error, got nil")
	}
	if _, err := embedder.EmbedBatch(context.Background(), []string{}); err == nil {
		t.Error("EmbedBatch([]string{}) expected error, got nil")
	}
}
