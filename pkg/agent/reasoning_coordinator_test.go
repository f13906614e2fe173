// Copyright 2025 Gerry Miller <gerry@gerrymiller.com>
//
// Licensed under the MIT License.
// See LICENSE file in the project root for full license information.

package agent

import (
	"context"
	"testing"
)

type fakeDispatcher struct {
	calls []string
}

func (f *fakeDispatcher) ExecuteTask(ctx context.Context, taskType, description string, taskContext map[string]interface{}) (*Result, error) {
	f.calls = append(f.calls, taskType)
	return &Result{Success: true, Value: "evidence for " + taskType}, nil
}

type fakeLLMProvider struct {
	plan   string
	answer string
}

func (f *fakeLLMProvider) Generate(ctx context.Context, prompt string, temperature float32, maxTokens int) (string, error) {
	if f.plan != "" && len(prompt) > 0 && prompt[0] == 'B' {
		return f.plan, nil
	}
	return f.answer, nil
}
func (f *fakeLLMProvider) GenerateBatch(ctx context.Context, prompts []string, temperature float32, maxTokens int) ([]string, error) {
	out := make([]string, len(prompts))
	for i := range prompts {
		out[i] = f.answer
	}
	return out, nil
}
func (f *fakeLLMProvider) Name() string      { return "fake" }
func (f *fakeLLMProvider) ModelName() string { return "fake-model" }

func TestReasoningCoordinatorFallsBackToDeterministicPlan(t *testing.T) {
	dispatcher := &fakeDispatcher{}
	a := NewReasoningCoordinatorAgent(dispatcher, nil)
	_ = a.Initialize(context.Background())

	result, err := a.Execute(context.Background(), "complex_reasoning", "Who founded Acme Corp?", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(dispatcher.calls) == 0 {
		t.Fatal("expected the coordinator to dispatch at least one step")
	}
	if result.Value == "" {
		t.Fatal("expected a non-empty fallback answer")
	}
}

func TestReasoningCoordinatorUsesLLMAnswer(t *testing.T) {
	dispatcher := &fakeDispatcher{}
	llmClient := &fakeLLMProvider{answer: "Alice founded Acme Corp."}
	a := NewReasoningCoordinatorAgent(dispatcher, llmClient)
	_ = a.Initialize(context.Background())

	result, err := a.Execute(context.Background(), "complex_reasoning", "Who founded Acme Corp?", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Value != "Alice founded Acme Corp." {
		t.Fatalf("expected LLM-synthesized answer, got %v", result.Value)
	}
}

func TestReasoningCoordinatorRejectsEmptyQuestion(t *testing.T) {
	a := NewReasoningCoordinatorAgent(&fakeDispatcher{}, nil)
	_ = a.Initialize(context.Background())

	if _, err := a.Execute(context.Background(), "complex_reasoning", "   ", nil); err == nil {
		t.Fatal("expected error for empty question")
	}
}
