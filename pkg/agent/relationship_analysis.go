// Copyright 2025 Gerry Miller <gerry@gerrymiller.com>
//
// Licensed under the MIT License.
// See LICENSE file in the project root for full license information.

package agent

import (
	"context"
	"sort"
	"sync"

	"graphreasoner/pkg/errkind"
	"graphreasoner/pkg/graph"
)

const (
	defaultPathFindingDepth = 4
	defaultPathFindingLimit = 10
	defaultNeighborHops     = 2
)

// RelationshipAnalysisAgent discovers and summarizes how entities connect:
// paths between two entities as found by the store's FindPaths (not
// ranked by strength), and relationship-type
// clustering around a single entity.
type RelationshipAnalysisAgent struct {
	store graph.Store

	mu     sync.Mutex
	status Status
}

// NewRelationshipAnalysisAgent creates a relationship-analysis agent over
// store.
func NewRelationshipAnalysisAgent(store graph.Store) *RelationshipAnalysisAgent {
	return &RelationshipAnalysisAgent{store: store, status: StatusInitializing}
}

func (a *RelationshipAnalysisAgent) ID() string          { return "relationship-analysis" }
func (a *RelationshipAnalysisAgent) DisplayName() string { return "Relationship Analysis Agent" }

func (a *RelationshipAnalysisAgent) SupportedTaskTypes() []string {
	return []string{"relationship_analysis", "path_finding", "connection_discovery", "relation_summary"}
}

func (a *RelationshipAnalysisAgent) CanHandle(taskType, description string) bool {
	for _, t := range a.SupportedTaskTypes() {
		if t == taskType {
			return true
		}
	}
	return false
}

func (a *RelationshipAnalysisAgent) Status() Status {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.status
}

func (a *RelationshipAnalysisAgent) Initialize(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.status == StatusShutdown {
		return errkind.New(errkind.Internal, "cannot initialize a shut-down agent")
	}
	a.status = StatusReady
	return nil
}

func (a *RelationshipAnalysisAgent) Shutdown(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.status = StatusShutdown
	return nil
}

func (a *RelationshipAnalysisAgent) Execute(ctx context.Context, taskType, description string, taskContext map[string]interface{}) (*Result, error) {
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
		switch taskType {
		case "path_finding":
			return a.findPaths(ctx, taskContext)
		case "connection_discovery":
			return a.discoverConnections(ctx, taskContext)
		default:
			return a.summarizeRelations(ctx, taskContext)
		}
	})
}

func (a *RelationshipAnalysisAgent) findPaths(ctx context.Context, taskContext map[string]interface{}) (*Result, error) {
	fromID, _ := taskContext["from_id"].(string)
	toID, _ := taskContext["to_id"].(string)
	if fromID == "" || toID == "" {
		err := errkind.New(errkind.InvalidInput, "path_finding requires from_id and to_id")
		return &Result{Success: false, Error: err.Error()}, err
	}

	paths, err := a.store.FindPaths(ctx, fromID, toID, defaultPathFindingDepth, defaultPathFindingLimit)
	if err != nil {
		wrapped := errkind.Wrap(errkind.GraphUnavailable, "path finding failed", err)
		return &Result{Success: false, Error: wrapped.Error()}, wrapped
	}

	return &Result{
		Success:  true,
		Value:    paths,
		Metadata: map[string]interface{}{"path_count": len(paths)},
	}, nil
}

// connectionCluster groups an entity's relations by relationship type.
type connectionCluster struct {
	RelationType string
	Count        int
	Neighbors    []graph.Entity
}

func (a *RelationshipAnalysisAgent) discoverConnections(ctx context.Context, taskContext map[string]interface{}) (*Result, error) {
	entityID, _ := taskContext["entity_id"].(string)
	if entityID == "" {
		err := errkind.New(errkind.InvalidInput, "connection_discovery requires entity_id")
		return &Result{Success: false, Error: err.Error()}, err
	}

	hops := defaultNeighborHops
	if h, ok := taskContext["hops"].(int); ok && h > 0 {
		hops = h
	}

	outgoing, err := a.store.OutgoingRelations(ctx, entityID, nil)
	if err != nil {
		wrapped := errkind.Wrap(errkind.GraphUnavailable, "outgoing relation lookup failed", err)
		return &Result{Success: false, Error: wrapped.Error()}, wrapped
	}
	incoming, err := a.store.IncomingRelations(ctx, entityID, nil)
	if err != nil {
		wrapped := errkind.Wrap(errkind.GraphUnavailable, "incoming relation lookup failed", err)
		return &Result{Success: false, Error: wrapped.Error()}, wrapped
	}
	neighbors, err := a.store.FindNeighbors(ctx, entityID, hops)
	if err != nil {
		wrapped := errkind.Wrap(errkind.GraphUnavailable, "neighbor lookup failed", err)
		return &Result{Success: false, Error: wrapped.Error()}, wrapped
	}

	byType := make(map[string]*connectionCluster)
	order := make([]string, 0)
	tally := func(relType string) {
		cluster, ok := byType[relType]
		if !ok {
			cluster = &connectionCluster{RelationType: relType}
			byType[relType] = cluster
			order = append(order, relType)
		}
		cluster.Count++
	}
	for _, r := range outgoing {
		tally(r.Type)
	}
	for _, r := range incoming {
		tally(r.Type)
	}

	sort.Strings(order)
	clusters := make([]connectionCluster, 0, len(order))
	for _, t := range order {
		clusters = append(clusters, *byType[t])
	}

	return &Result{
		Success: true,
		Value: map[string]interface{}{
			"clusters":  clusters,
			"neighbors": neighbors,
		},
		Metadata: map[string]interface{}{
			"relation_type_count": len(clusters),
			"neighbor_count":      len(neighbors),
		},
	}, nil
}

func (a *RelationshipAnalysisAgent) summarizeRelations(ctx context.Context, taskContext map[string]interface{}) (*Result, error) {
	entityID, _ := taskContext["entity_id"].(string)
	if entityID == "" {
		err := errkind.New(errkind.InvalidInput, "relation_summary requires entity_id")
		return &Result{Success: false, Error: err.Error()}, err
	}

	outgoing, err := a.store.OutgoingRelations(ctx, entityID, nil)
	if err != nil {
		wrapped := errkind.Wrap(errkind.GraphUnavailable, "outgoing relation lookup failed", err)
		return &Result{Success: false, Error: wrapped.Error()}, wrapped
	}
	incoming, err := a.store.IncomingRelations(ctx, entityID, nil)
	if err != nil {
		wrapped := errkind.Wrap(errkind.GraphUnavailable, "incoming relation lookup failed", err)
		return &Result{Success: false, Error: wrapped.Error()}, wrapped
	}

	return &Result{
		Success: true,
		Value: map[string]interface{}{
			"outgoing": outgoing,
			"incoming": incoming,
		},
		Metadata: map[string]interface{}{
			"outgoing_count": len(outgoing),
			"incoming_count": len(incoming),
		},
	}, nil
}
