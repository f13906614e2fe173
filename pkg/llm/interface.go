// Copyright 2025 Gerry Miller <gerry@gerrymiller.com>
//
// Licensed under the MIT License.
// See LICENSE file in the project root for full license information.

// Package llm defines the language-model capability the reasoning engine
// consumes for answer synthesis and plan-strategy narration.
package llm

import "context"

// Provider generates text completions from a single prompt. This
// abstraction allows swapping between OpenAI, Anthropic, Ollama, etc.
// without the engine depending on any one vendor's SDK.
type Provider interface {
	// Generate produces a completion for prompt. temperature controls
	// randomness (0.0 deterministic, 1.0 creative); maxTokens bounds the
	// response length.
	Generate(ctx context.Context, prompt string, temperature float32, maxTokens int) (string, error)

	// GenerateBatch runs Generate over each prompt, preserving order.
	// Implementations may run these concurrently.
	GenerateBatch(ctx context.Context, prompts []string, temperature float32, maxTokens int) ([]string, error)

	// Name returns the provider name (e.g. "openai", "anthropic").
	Name() string

	// ModelName returns the specific model being used.
	ModelName() string
}
