// Copyright 2025 Gerry Miller <gerry@gerrymiller.com>
//
// Licensed under the MIT License.
// See LICENSE file in the project root for full license information.

package agent

import (
	"context"
	"sync"
	"time"

	"graphreasoner/pkg/errkind"
)

// Coordinator routes tasks to registered agents, preferring the
// least-recently-used READY agent able to handle a given task.
type Coordinator struct {
	mu          sync.Mutex
	agents      []Agent
	lastUsed    map[string]time.Time
	busyByID    map[string]bool
}

// NewCoordinator creates an empty coordinator.
func NewCoordinator() *Coordinator {
	return &Coordinator{
		lastUsed: make(map[string]time.Time),
		busyByID: make(map[string]bool),
	}
}

// RegisterAgent adds agent to the coordinator's pool.
func (c *Coordinator) RegisterAgent(a Agent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.agents = append(c.agents, a)
	c.lastUsed[a.ID()] = time.Time{}
}

// InitializeAll initializes every registered agent, stopping at the first
// failure.
func (c *Coordinator) InitializeAll(ctx context.Context) error {
	c.mu.Lock()
	agents := append([]Agent{}, c.agents...)
	c.mu.Unlock()

	for _, a := range agents {
		if err := a.Initialize(ctx); err != nil {
			return errkind.Wrap(errkind.Internal, "failed to initialize agent "+a.ID(), err)
		}
	}
	return nil
}

// ShutdownAll shuts down every registered agent, continuing past
// individual failures and returning the first one encountered.
func (c *Coordinator) ShutdownAll(ctx context.Context) error {
	c.mu.Lock()
	agents := append([]Agent{}, c.agents...)
	c.mu.Unlock()

	var firstErr error
	for _, a := range agents {
		if err := a.Shutdown(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// ExecuteTask selects a READY agent whose CanHandle returns true for
// taskType/description, preferring the least-recently-used eligible agent,
// and runs it. If no eligible agent exists, it fails with kind NO_AGENT.
func (c *Coordinator) ExecuteTask(ctx context.Context, taskType, description string, taskContext map[string]interface{}) (*Result, error) {
	chosen, err := c.selectAgent(taskType, description)
	if err != nil {
		return nil, err
	}

	result, err := chosen.Execute(ctx, taskType, description, taskContext)

	c.mu.Lock()
	c.busyByID[chosen.ID()] = false
	c.lastUsed[chosen.ID()] = time.Now()
	c.mu.Unlock()

	return result, err
}

func (c *Coordinator) selectAgent(taskType, description string) (Agent, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var best Agent
	var bestUsed time.Time
	for _, a := range c.agents {
		if c.busyByID[a.ID()] {
			continue
		}
		if a.Status() != StatusReady {
			continue
		}
		if !a.CanHandle(taskType, description) {
			continue
		}
		used := c.lastUsed[a.ID()]
		if best == nil || used.Before(bestUsed) {
			best = a
			bestUsed = used
		}
	}

	if best == nil {
		return nil, errkind.New(errkind.NoAgent, "no ready agent can handle task type "+taskType)
	}

	c.busyByID[best.ID()] = true
	return best, nil
}
