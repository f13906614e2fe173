// Copyright 2025 Gerry Miller <gerry@gerrymiller.com>
//
// Licensed under the MIT License.
// See LICENSE file in the project root for full license information.

package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/metric"
)

// rollingWindow is the number of most recent executions kept per task type
// for the rolling-average elapsed time.
const rollingWindow = 10

// TypeMetrics is a point-in-time snapshot of one task type's execution
// history.
type TypeMetrics struct {
	Type           TaskType
	ExecutionCount int64
	SuccessCount   int64
	FailureCount   int64
	MinElapsed     time.Duration
	MaxElapsed     time.Duration
	TotalElapsed   time.Duration
	RollingAverage time.Duration
}

type typeCounters struct {
	mu             sync.Mutex
	executionCount int64
	successCount   int64
	failureCount   int64
	minElapsed     time.Duration
	maxElapsed     time.Duration
	totalElapsed   time.Duration
	recent         [rollingWindow]time.Duration
	recentLen      int
	recentIdx      int
}

func (c *typeCounters) record(elapsed time.Duration, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.executionCount++
	if err != nil {
		c.failureCount++
	} else {
		c.successCount++
	}

	if c.minElapsed == 0 || elapsed < c.minElapsed {
		c.minElapsed = elapsed
	}
	if elapsed > c.maxElapsed {
		c.maxElapsed = elapsed
	}
	c.totalElapsed += elapsed

	c.recent[c.recentIdx] = elapsed
	c.recentIdx = (c.recentIdx + 1) % rollingWindow
	if c.recentLen < rollingWindow {
		c.recentLen++
	}
}

func (c *typeCounters) snapshot(taskType TaskType) TypeMetrics {
	c.mu.Lock()
	defer c.mu.Unlock()

	var rollingSum time.Duration
	for i := 0; i < c.recentLen; i++ {
		rollingSum += c.recent[i]
	}
	var rollingAvg time.Duration
	if c.recentLen > 0 {
		rollingAvg = rollingSum / time.Duration(c.recentLen)
	}

	return TypeMetrics{
		Type:           taskType,
		ExecutionCount: c.executionCount,
		SuccessCount:   c.successCount,
		FailureCount:   c.failureCount,
		MinElapsed:     c.minElapsed,
		MaxElapsed:     c.maxElapsed,
		TotalElapsed:   c.totalElapsed,
		RollingAverage: rollingAvg,
	}
}

// AggregateMetrics is a point-in-time snapshot of scheduler-wide load.
type AggregateMetrics struct {
	ActiveTasks int64
	QueuedTasks int64
	Completed   int64
}

// metricsRegistry holds per-task-type counters plus aggregate counts,
// additionally exported as an OpenTelemetry counter so the scheduler's
// throughput can be scraped alongside the rest of the engine's telemetry.
type metricsRegistry struct {
	mu       sync.RWMutex
	counters map[TaskType]*typeCounters

	active    atomic.Int64
	queued    atomic.Int64
	completed atomic.Int64

	throughput metric.Int64Counter
}

func newMetricsRegistry(meter metric.Meter) *metricsRegistry {
	r := &metricsRegistry{counters: make(map[TaskType]*typeCounters)}
	if meter != nil {
		r.throughput, _ = meter.Int64Counter(
			"scheduler.completed_tasks",
			metric.WithDescription("total tasks completed, any outcome"),
		)
	}
	return r
}

func (r *metricsRegistry) countersFor(taskType TaskType) *typeCounters {
	r.mu.RLock()
	c, ok := r.counters[taskType]
	r.mu.RUnlock()
	if ok {
		return c
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.counters[taskType]; ok {
		return c
	}
	c = &typeCounters{}
	r.counters[taskType] = c
	return c
}

func (r *metricsRegistry) record(taskType TaskType, elapsed time.Duration, err error) {
	r.countersFor(taskType).record(elapsed, err)
	r.completed.Add(1)
	if r.throughput != nil {
		r.throughput.Add(context.Background(), 1)
	}
}

func (r *metricsRegistry) taskQueued()   { r.queued.Add(1) }
func (r *metricsRegistry) taskDequeued() { r.queued.Add(-1) }
func (r *metricsRegistry) taskStarted()  { r.active.Add(1) }
func (r *metricsRegistry) taskFinished() { r.active.Add(-1) }

// Snapshot returns a point-in-time metrics snapshot for every task type
// that has executed at least once.
func (r *metricsRegistry) Snapshot() []TypeMetrics {
	r.mu.RLock()
	defer r.mu.RUnlock()

	snapshots := make([]TypeMetrics, 0, len(r.counters))
	for taskType, c := range r.counters {
		snapshots = append(snapshots, c.snapshot(taskType))
	}
	return snapshots
}

// Aggregate returns the scheduler-wide load snapshot.
func (r *metricsRegistry) Aggregate() AggregateMetrics {
	return AggregateMetrics{
		ActiveTasks: r.active.Load(),
		QueuedTasks: r.queued.Load(),
		Completed:   r.completed.Load(),
	}
}
