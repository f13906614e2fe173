// Copyright 2025 Gerry Miller <gerry@gerrymiller.com>
//
// Licensed under the MIT License.
// See LICENSE file in the project root for full license information.

// Package openaillm adapts OpenAI's chat completion API to the narrower,
// single-prompt llm.Provider interface this engine consumes.
package openaillm

import (
	"context"
	"strings"
	"sync"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/sync/errgroup"

	"graphreasoner/pkg/errkind"
)

// Config contains configuration for the OpenAI chat provider.
type Config struct {
	BaseURL        string
	DefaultTemp    float32
	DefaultTokens  int
	Timeout        time.Duration
	MaxConcurrency int
}

// Provider implements llm.Provider for OpenAI's chat completion API.
type Provider struct {
	client  *openai.Client
	model   string
	config  *Config
	mu      sync.Mutex // serializes nothing today; reserved for rate tracking
}

// New creates a Provider using model (e.g. "gpt-4o", "gpt-4o-mini").
func New(apiKey, model string, config *Config) (*Provider, error) {
	if apiKey == "" {
		return nil, errkind.New(errkind.InvalidInput, "OpenAI API key is required")
	}
	if model == "" {
		return nil, errkind.New(errkind.InvalidInput, "model name is required")
	}
	if config == nil {
		config = &Config{
			DefaultTemp:    0.3,
			DefaultTokens:  1024,
			Timeout:        60 * time.Second,
			MaxConcurrency: 4,
		}
	}
	if config.MaxConcurrency <= 0 {
		config.MaxConcurrency = 4
	}

	clientConfig := openai.DefaultConfig(apiKey)
	if config.BaseURL != "" {
		clientConfig.BaseURL = config.BaseURL
	}

	return &Provider{
		client: openai.NewClientWithConfig(clientConfig),
		model:  model,
		config: config,
	}, nil
}

func (p *Provider) Generate(ctx context.Context, prompt string, temperature float32, maxTokens int) (string, error) {
	if prompt == "" {
		return "", errkind.New(errkind.InvalidInput, "prompt must not be empty")
	}

	if p.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.config.Timeout)
		defer cancel()
	}

	if temperature == 0 {
		temperature = p.config.DefaultTemp
	}
	if maxTokens == 0 {
		maxTokens = p.config.DefaultTokens
	}

	req := openai.ChatCompletionRequest{
		Model: p.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		MaxCompletionTokens: maxTokens,
	}

	// Reasoning models (gpt-5/o1/o3) reject temperature and top_p.
	if !isReasoningModel(p.model) {
		req.Temperature = temperature
		req.TopP = 1.0
	}

	resp, err := p.client.CreateChatCompletion(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			return "", errkind.Wrap(errkind.Timeout, "OpenAI chat completion timed out", ctx.Err())
		}
		return "", errkind.Wrap(errkind.LLMUnavailable, "OpenAI chat completion failed", err)
	}
	if len(resp.Choices) == 0 {
		return "", errkind.New(errkind.LLMUnavailable, "OpenAI returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

func (p *Provider) GenerateBatch(ctx context.Context, prompts []string, temperature float32, maxTokens int) ([]string, error) {
	results := make([]string, len(prompts))
	group, gctx := errgroup.WithContext(ctx)
	group.SetLimit(p.config.MaxConcurrency)

	for i, prompt := range prompts {
		i, prompt := i, prompt
		group.Go(func() error {
			text, err := p.Generate(gctx, prompt, temperature, maxTokens)
			if err != nil {
				return err
			}
			results[i] = text
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func (p *Provider) Name() string { return "openai" }

func (p *Provider) ModelName() string { return p.model }

func isReasoningModel(model string) bool {
	return strings.HasPrefix(model, "gpt-5") || strings.HasPrefix(model, "o1") || strings.HasPrefix(model, "o3")
}
