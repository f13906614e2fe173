// Copyright 2025 Gerry Miller <gerry@gerrymiller.com>
//
// Licensed under the MIT License.
// See LICENSE file in the project root for full license information.

// Package agent implements the multi-agent coordinator: typed agents that
// each handle a family of task types, and a coordinator that routes work
// to whichever READY agent can handle it.
package agent

import (
	"context"
	"time"
)

// Status is an agent's lifecycle state.
type Status int

const (
	StatusInitializing Status = iota
	StatusReady
	StatusBusy
	StatusShutdown
)

func (s Status) String() string {
	switch s {
	case StatusInitializing:
		return "INITIALIZING"
	case StatusReady:
		return "READY"
	case StatusBusy:
		return "BUSY"
	case StatusShutdown:
		return "SHUTDOWN"
	default:
		return "UNKNOWN"
	}
}

// Result is the immutable outcome of one agent Execute call.
type Result struct {
	Success  bool
	Value    interface{}
	Error    string
	Metadata map[string]interface{}
	Elapsed  time.Duration
}

// Agent is a specialized worker handling a family of task types.
type Agent interface {
	// ID is a stable, unique agent identifier.
	ID() string

	// DisplayName is a human-readable name.
	DisplayName() string

	// SupportedTaskTypes lists the task type names this agent claims.
	SupportedTaskTypes() []string

	// CanHandle reports whether this agent can service a task of the
	// given type and description right now.
	CanHandle(taskType, description string) bool

	// Execute performs the task. The coordinator transitions the agent
	// READY→BUSY for the duration of this call.
	Execute(ctx context.Context, taskType, description string, taskContext map[string]interface{}) (*Result, error)

	// Status reports the agent's current lifecycle state.
	Status() Status

	// Initialize prepares the agent for work. Idempotent.
	Initialize(ctx context.Context) error

	// Shutdown releases resources. Idempotent.
	Shutdown(ctx context.Context) error
}

func runTimed(fn func() (*Result, error)) (*Result, error) {
	start := time.Now()
	result, err := fn()
	elapsed := time.Since(start)
	if result != nil {
		result.Elapsed = elapsed
	}
	return result, err
}
