// Copyright 2025 Gerry Miller <gerry@gerrymiller.com>
//
// Licensed under the MIT License.
// See LICENSE file in the project root for full license information.

// Package scheduler executes planner- and reasoner-submitted work across
// differentiated goroutine pools, with bounded queues, caller-runs
// back-pressure, and dependent-task futures.
package scheduler

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// TaskType classifies a unit of work so the scheduler can route it to the
// pool suited to its resource profile.
type TaskType int

const (
	EntityIdentification TaskType = iota
	GraphQuery
	Embedding
	Traversal
	PathScoring
	ResultAggregation
	LLMGeneration
)

func (t TaskType) String() string {
	switch t {
	case EntityIdentification:
		return "ENTITY_IDENTIFICATION"
	case GraphQuery:
		return "GRAPH_QUERY"
	case Embedding:
		return "EMBEDDING"
	case Traversal:
		return "TRAVERSAL"
	case PathScoring:
		return "PATH_SCORING"
	case ResultAggregation:
		return "RESULT_AGGREGATION"
	case LLMGeneration:
		return "LLM_GENERATION"
	default:
		return "UNKNOWN"
	}
}

// isIOBound reports whether tasks of this type are dispatched to the I/O
// pool rather than the main pool.
func (t TaskType) isIOBound() bool {
	return t == GraphQuery || t == Embedding
}

// Func is the unit of work a Task wraps. Implementations should honor ctx
// cancellation cooperatively.
type Func func(ctx context.Context) (interface{}, error)

// Task describes one unit of schedulable work.
type Task struct {
	ID      string
	Type    TaskType
	Timeout time.Duration
	Fn      Func
}

// NewTask builds a Task with a generated ID.
func NewTask(taskType TaskType, timeout time.Duration, fn Func) Task {
	return Task{ID: uuid.NewString(), Type: taskType, Timeout: timeout, Fn: fn}
}
