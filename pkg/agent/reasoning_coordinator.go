// Copyright 2025 Gerry Miller <gerry@gerrymiller.com>
//
// Licensed under the MIT License.
// See LICENSE file in the project root for full license information.

package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"graphreasoner/pkg/errkind"
	"graphreasoner/pkg/llm"
	"graphreasoner/pkg/plan"
)

// Dispatcher is the capability the reasoning-coordinator agent needs from
// the agent coordinator it runs inside of: the ability to route a step to
// whichever other agent can handle it. *Coordinator satisfies this.
type Dispatcher interface {
	ExecuteTask(ctx context.Context, taskType, description string, taskContext map[string]interface{}) (*Result, error)
}

// stepTiming records how long one dispatched plan step took.
type stepTiming struct {
	StepID  string        `json:"step_id"`
	Elapsed time.Duration `json:"elapsed"`
	Success bool          `json:"success"`
}

// llmPlanStep is the wire shape the coordinator asks the LLM to emit when
// drafting a free-form plan.
type llmPlanStep struct {
	ID        string   `json:"id"`
	Type      string   `json:"type"`
	DependsOn []string `json:"depends_on"`
}

type llmPlanDoc struct {
	Steps []llmPlanStep `json:"steps"`
}

// ReasoningCoordinatorAgent handles multi-step questions by drafting a
// plan (LLM-authored when possible, deterministically otherwise),
// dispatching each step to the agent best suited for it, and synthesizing
// a final answer from the collected evidence.
type ReasoningCoordinatorAgent struct {
	dispatcher Dispatcher
	llmClient  llm.Provider

	mu     sync.Mutex
	status Status
}

// NewReasoningCoordinatorAgent creates a reasoning-coordinator agent.
// dispatcher is typically the *Coordinator this agent is itself registered
// with; llmClient may be nil, in which case planning and synthesis both
// fall back to deterministic behavior.
func NewReasoningCoordinatorAgent(dispatcher Dispatcher, llmClient llm.Provider) *ReasoningCoordinatorAgent {
	return &ReasoningCoordinatorAgent{dispatcher: dispatcher, llmClient: llmClient, status: StatusInitializing}
}

func (a *ReasoningCoordinatorAgent) ID() string          { return "reasoning-coordinator" }
func (a *ReasoningCoordinatorAgent) DisplayName() string { return "Reasoning Coordinator Agent" }

func (a *ReasoningCoordinatorAgent) SupportedTaskTypes() []string {
	return []string{"complex_reasoning", "multi_agent_coordination", "question_analysis"}
}

func (a *ReasoningCoordinatorAgent) CanHandle(taskType, description string) bool {
	for _, t := range a.SupportedTaskTypes() {
		if t == taskType {
			return true
		}
	}
	return false
}

func (a *ReasoningCoordinatorAgent) Status() Status {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.status
}

func (a *ReasoningCoordinatorAgent) Initialize(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.status == StatusShutdown {
		return errkind.New(errkind.Internal, "cannot initialize a shut-down agent")
	}
	a.status = StatusReady
	return nil
}

func (a *ReasoningCoordinatorAgent) Shutdown(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.status = StatusShutdown
	return nil
}

func (a *ReasoningCoordinatorAgent) Execute(ctx context.Context, taskType, description string, taskContext map[string]interface{}) (*Result, error) {
	a.mu.Lock()
	a.status = StatusBusy
	a.mu.Unlock()
	defer func() {
		a.mu.Lock()
		if a.status != StatusShutdown {
			a.status = StatusReady
		}
		a.mu.Unlock()
	}()

	return runTimed(func() (*Result, error) {
		question := strings.TrimSpace(description)
		if question == "" {
			err := errkind.New(errkind.InvalidInput, "question must not be empty")
			return &Result{Success: false, Error: err.Error()}, err
		}

		p := a.draftPlan(ctx, question)

		evidences := make(map[string][]interface{})
		timings := make([]stepTiming, 0, len(p.Steps))
		done := make(map[string]bool, len(p.Steps))

		for len(done) < len(p.Steps) {
			progressed := false
			for _, step := range p.Steps {
				if done[step.ID] || !dependenciesSatisfied(step, done) {
					continue
				}
				progressed = true
				timing, value := a.runStep(ctx, step, question, taskContext)
				done[step.ID] = true
				timings = append(timings, timing)
				if value != nil {
					evidences[step.ID] = append(evidences[step.ID], value)
				}
			}
			if !progressed {
				// A cycle slipped past plan.Validate (only possible for an
				// LLM-authored plan); stop rather than spin forever.
				break
			}
		}

		answer := a.synthesize(ctx, question, evidences)

		return &Result{
			Success: true,
			Value:   answer,
			Metadata: map[string]interface{}{
				"plan":      p,
				"evidences": evidences,
				"timings":   timings,
			},
		}, nil
	})
}

func dependenciesSatisfied(step plan.Step, done map[string]bool) bool {
	for _, dep := range step.DependsOn {
		if !done[dep] {
			return false
		}
	}
	return true
}

// draftPlan asks the LLM for a free-form JSON plan and falls back to the
// deterministic planner if no LLM is configured or its output does not
// parse into a valid, acyclic plan.
func (a *ReasoningCoordinatorAgent) draftPlan(ctx context.Context, question string) *plan.Plan {
	if a.llmClient != nil {
		if p := a.llmDraftPlan(ctx, question); p != nil {
			return p
		}
	}
	p, err := plan.Build(question)
	if err != nil {
		// plan.Build only fails on an empty question, already rejected above.
		return &plan.Plan{Question: question, Steps: nil, Strategy: plan.StrategySequential}
	}
	return p
}

func (a *ReasoningCoordinatorAgent) llmDraftPlan(ctx context.Context, question string) *plan.Plan {
	prompt := fmt.Sprintf(
		"Break the following question into a JSON execution plan with fields "+
			"{\"steps\":[{\"id\":string,\"type\":string,\"depends_on\":[string]}]}. "+
			"Valid types are entity_identification, relation_exploration, "+
			"similarity_calculation, evidence_collection, answer_generation, "+
			"validation. Respond with JSON only.\n\nQuestion: %s", question)

	raw, err := a.llmClient.Generate(ctx, prompt, 0.0, 512)
	if err != nil || strings.TrimSpace(raw) == "" {
		return nil
	}

	var doc llmPlanDoc
	if err := json.Unmarshal([]byte(extractJSON(raw)), &doc); err != nil || len(doc.Steps) == 0 {
		return nil
	}

	steps := make([]plan.Step, 0, len(doc.Steps))
	for _, s := range doc.Steps {
		if s.ID == "" {
			return nil
		}
		steps = append(steps, plan.Step{ID: s.ID, Type: parseStepType(s.Type), DependsOn: s.DependsOn})
	}

	candidate := &plan.Plan{
		Question: question,
		Category: plan.Classify(question),
		Steps:    steps,
		Strategy: plan.StrategyAdaptive,
	}
	if err := plan.Validate(candidate); err != nil {
		return nil
	}
	return candidate
}

// extractJSON trims any leading/trailing prose a model adds around a JSON
// object, keeping only the outermost {...} span.
func extractJSON(s string) string {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start == -1 || end == -1 || end < start {
		return s
	}
	return s[start : end+1]
}

func parseStepType(s string) plan.StepType {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "relation_exploration":
		return plan.StepRelationExploration
	case "similarity_calculation":
		return plan.StepSimilarityCalculation
	case "evidence_collection":
		return plan.StepEvidenceCollection
	case "answer_generation":
		return plan.StepAnswerGeneration
	case "validation":
		return plan.StepValidation
	default:
		return plan.StepEntityIdentification
	}
}

// runStep dispatches one plan step to whichever agent handles its task
// type, translating plan step vocabulary into the coordinator's task-type
// vocabulary.
func (a *ReasoningCoordinatorAgent) runStep(ctx context.Context, step plan.Step, question string, taskContext map[string]interface{}) (stepTiming, interface{}) {
	taskType := taskTypeForStep(step.Type)
	if taskType == "" || a.dispatcher == nil {
		return stepTiming{StepID: step.ID, Success: false}, nil
	}

	start := time.Now()
	result, err := a.dispatcher.ExecuteTask(ctx, taskType, question, taskContext)
	elapsed := time.Since(start)

	timing := stepTiming{StepID: step.ID, Elapsed: elapsed, Success: err == nil}
	if err != nil || result == nil {
		return timing, nil
	}
	return timing, result.Value
}

func taskTypeForStep(t plan.StepType) string {
	switch t {
	case plan.StepEntityIdentification:
		return "entity_identification"
	case plan.StepRelationExploration:
		return "relationship_analysis"
	case plan.StepSimilarityCalculation:
		return "semantic_search"
	default:
		// evidence_collection, answer_generation, and validation are
		// synthesized locally, not dispatched to another agent.
		return ""
	}
}

// synthesize produces a final answer from the collected per-step evidence,
// using the LLM when available and a deterministic join otherwise.
func (a *ReasoningCoordinatorAgent) synthesize(ctx context.Context, question string, evidences map[string][]interface{}) string {
	if a.llmClient != nil {
		prompt := fmt.Sprintf("Question: %s\n\nEvidence gathered: %v\n\nAnswer the question concisely using only the evidence above.", question, evidences)
		if text, err := a.llmClient.Generate(ctx, prompt, 0.2, 512); err == nil && strings.TrimSpace(text) != "" {
			return text
		}
	}

	if len(evidences) == 0 {
		return "No sufficient evidence was gathered to answer this question."
	}
	var b strings.Builder
	for stepID, values := range evidences {
		for _, v := range values {
			if b.Len() > 0 {
				b.WriteString("; ")
			}
			fmt.Fprintf(&b, "%s: %v", stepID, v)
		}
	}
	return b.String()
}
