// Copyright 2025 Gerry Miller <gerry@gerrymiller.com>
//
// Licensed under the MIT License.
// See LICENSE file in the project root for full license information.

package scheduler

import (
	"context"
	"runtime"
	"sync"
	"time"

	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"

	"graphreasoner/pkg/errkind"
)

// queueCapacity bounds each pool's work queue. Submissions beyond this
// capacity run on the calling goroutine instead of blocking (the
// caller-runs back-pressure policy).
const queueCapacity = 100

// highLoadQueueDepth is the queue depth at which the scheduler considers
// itself under high load and starts holding new submissions instead of
// dispatching them immediately.
const highLoadQueueDepth = queueCapacity * 3 / 4

// Config contains configuration for the scheduler.
type Config struct {
	// MainPoolSize sizes the CPU-bound pool; defaults to runtime.NumCPU().
	MainPoolSize int

	// ScheduledPoolSize sizes the maintenance pool; defaults to 1.
	ScheduledPoolSize int

	// HoldingDrainInterval controls how often the scheduled pool drains
	// the holding queue; defaults to 100ms.
	HoldingDrainInterval time.Duration

	// Meter, if non-nil, receives scheduler throughput counters.
	Meter metric.Meter

	// ResourceSampleInterval controls how often the built-in gopsutil
	// sampler refreshes CPU/memory percentages; defaults to 1s. Ignored
	// when ResourceSampler is set.
	ResourceSampleInterval time.Duration

	// ResourceSampler overrides the default gopsutil-backed host sampler,
	// primarily so tests can inject a deterministic load signal. Leave
	// nil to sample the real host.
	ResourceSampler ResourceSampler
}

type queuedTask struct {
	task    Task
	future  *Future
	enqAt   time.Time
}

// Scheduler executes tasks across a main pool (CPU-bound work), an I/O
// pool (GRAPH_QUERY/EMBEDDING), and a scheduled pool (maintenance,
// including draining the holding queue under load).
type Scheduler struct {
	mainQueue chan queuedTask
	ioQueue   chan queuedTask

	mainSize int
	ioSize   int

	metrics *metricsRegistry

	holdingMu sync.Mutex
	holding   []queuedTask

	resources      ResourceSampler
	closeResources func()

	wg       sync.WaitGroup
	stopCh   chan struct{}
	stopOnce sync.Once

	closed bool
	mu     sync.RWMutex
}

// New creates a scheduler and starts its worker and scheduled pools.
func New(config *Config) *Scheduler {
	if config == nil {
		config = &Config{}
	}
	mainSize := config.MainPoolSize
	if mainSize <= 0 {
		mainSize = runtime.NumCPU()
		if mainSize < 1 {
			mainSize = 1
		}
	}
	ioSize := mainSize / 2
	if ioSize < 2 {
		ioSize = 2
	}
	scheduledSize := config.ScheduledPoolSize
	if scheduledSize <= 0 {
		scheduledSize = 1
	}
	drainInterval := config.HoldingDrainInterval
	if drainInterval <= 0 {
		drainInterval = 100 * time.Millisecond
	}

	resources := config.ResourceSampler
	var closeResources func()
	if resources == nil {
		sampler := newGopsutilSampler(config.ResourceSampleInterval)
		resources = sampler
		closeResources = sampler.close
	}

	s := &Scheduler{
		mainQueue:      make(chan queuedTask, queueCapacity),
		ioQueue:        make(chan queuedTask, queueCapacity),
		mainSize:       mainSize,
		ioSize:         ioSize,
		metrics:        newMetricsRegistry(config.Meter),
		resources:      resources,
		closeResources: closeResources,
		stopCh:         make(chan struct{}),
	}

	for i := 0; i < mainSize; i++ {
		s.wg.Add(1)
		go s.worker(s.mainQueue)
	}
	for i := 0; i < ioSize; i++ {
		s.wg.Add(1)
		go s.worker(s.ioQueue)
	}
	for i := 0; i < scheduledSize; i++ {
		s.wg.Add(1)
		go s.scheduledLoop(drainInterval)
	}

	return s
}

// Submit enqueues task and returns a future for its result. Under high
// load the task is appended to a holding queue and drained later by the
// scheduled pool; under normal load it is dispatched to the pool matching
// its type; if that pool's queue is full, the task runs synchronously on
// the calling goroutine (caller-runs).
func (s *Scheduler) Submit(ctx context.Context, task Task) (*Future, error) {
	s.mu.RLock()
	closed := s.closed
	s.mu.RUnlock()
	if closed {
		return nil, errkind.New(errkind.InvalidInput, "scheduler is shut down")
	}

	future := newFuture()
	qt := queuedTask{task: task, future: future, enqAt: time.Now()}

	if s.isHighLoad() {
		s.holdingMu.Lock()
		s.holding = append(s.holding, qt)
		s.holdingMu.Unlock()
		s.metrics.taskQueued()
		return future, nil
	}

	s.dispatch(qt)
	return future, nil
}

func (s *Scheduler) dispatch(qt queuedTask) {
	queue := s.mainQueue
	if qt.task.Type.isIOBound() {
		queue = s.ioQueue
	}

	select {
	case queue <- qt:
		s.metrics.taskQueued()
	default:
		// Caller-runs: the pool's queue is saturated, so the submitting
		// goroutine executes the task itself rather than blocking.
		s.runTask(qt)
	}
}

func (s *Scheduler) isHighLoad() bool {
	agg := s.metrics.Aggregate()
	if agg.QueuedTasks >= highLoadQueueDepth {
		return true
	}
	if agg.ActiveTasks >= int64(s.mainSize+s.ioSize) {
		return true
	}
	if s.resources != nil {
		cpuPercent, memPercent := s.resources.Sample()
		if cpuPercent >= highLoadCPUPercent || memPercent >= highLoadMemPercent {
			return true
		}
	}
	return false
}

// IsHighLoad reports the scheduler's current load signal: queue depth,
// active-task saturation, and (when a ResourceSampler is configured) host
// CPU/memory pressure. Consumers such as reason.Reasoner use this to scale
// back their own per-layer parallelism while the signal is asserted.
func (s *Scheduler) IsHighLoad() bool {
	return s.isHighLoad()
}

// SubmitBatch submits every task independently and returns a BatchFuture
// that yields all results, in submission order, once every task
// completes.
func (s *Scheduler) SubmitBatch(ctx context.Context, tasks []Task) (*BatchFuture, error) {
	futures := make([]*Future, len(tasks))
	for i, t := range tasks {
		f, err := s.Submit(ctx, t)
		if err != nil {
			return nil, err
		}
		futures[i] = f
	}
	return &BatchFuture{futures: futures}, nil
}

// SubmitDependent submits task only once every future in prerequisites has
// completed successfully. If any prerequisite fails, the dependent future
// fails with a DependencyFailed error wrapping that failure, without task
// ever running.
func (s *Scheduler) SubmitDependent(ctx context.Context, task Task, prerequisites []*Future) (*Future, error) {
	s.mu.RLock()
	closed := s.closed
	s.mu.RUnlock()
	if closed {
		return nil, errkind.New(errkind.InvalidInput, "scheduler is shut down")
	}

	dependent := newFuture()

	go func() {
		group, gctx := errgroup.WithContext(ctx)
		for _, prereq := range prerequisites {
			prereq := prereq
			group.Go(func() error {
				_, err := prereq.Wait(gctx)
				return err
			})
		}
		if err := group.Wait(); err != nil {
			dependent.complete(nil, errkind.Wrap(errkind.DependencyFailed, "prerequisite task failed", err))
			return
		}

		qt := queuedTask{task: task, future: newFuture(), enqAt: time.Now()}
		s.dispatch(qt)
		result, err := qt.future.Wait(ctx)
		dependent.complete(result, err)
	}()

	return dependent, nil
}

func (s *Scheduler) worker(queue chan queuedTask) {
	defer s.wg.Done()
	for {
		select {
		case qt, ok := <-queue:
			if !ok {
				return
			}
			s.metrics.taskDequeued()
			s.runTask(qt)
		case <-s.stopCh:
			return
		}
	}
}

func (s *Scheduler) runTask(qt queuedTask) {
	s.metrics.taskStarted()
	defer s.metrics.taskFinished()

	ctx := context.Background()
	var cancel context.CancelFunc
	if qt.task.Timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, qt.task.Timeout)
		defer cancel()
	}

	start := time.Now()
	resultCh := make(chan struct {
		result interface{}
		err    error
	}, 1)

	go func() {
		result, err := qt.task.Fn(ctx)
		resultCh <- struct {
			result interface{}
			err    error
		}{result, err}
	}()

	select {
	case r := <-resultCh:
		elapsed := time.Since(start)
		s.metrics.record(qt.task.Type, elapsed, r.err)
		qt.future.complete(r.result, r.err)
	case <-ctx.Done():
		elapsed := time.Since(start)
		timeoutErr := errkind.Wrap(errkind.Timeout, "task "+qt.task.Type.String()+" timed out", ctx.Err())
		s.metrics.record(qt.task.Type, elapsed, timeoutErr)
		qt.future.complete(nil, timeoutErr)
	}
}

func (s *Scheduler) scheduledLoop(interval time.Duration) {
	defer s.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.drainHolding()
		case <-s.stopCh:
			return
		}
	}
}

func (s *Scheduler) drainHolding() {
	if s.isHighLoad() {
		return
	}
	s.holdingMu.Lock()
	if len(s.holding) == 0 {
		s.holdingMu.Unlock()
		return
	}
	drained := s.holding
	s.holding = nil
	s.holdingMu.Unlock()

	for _, qt := range drained {
		s.metrics.taskDequeued()
		s.dispatch(qt)
		if s.isHighLoad() {
			break
		}
	}
}

// TypeMetricsSnapshot returns per-task-type execution metrics.
func (s *Scheduler) TypeMetricsSnapshot() []TypeMetrics {
	return s.metrics.Snapshot()
}

// AggregateSnapshot returns scheduler-wide load metrics.
func (s *Scheduler) AggregateSnapshot() AggregateMetrics {
	return s.metrics.Aggregate()
}

// Shutdown stops accepting submissions and waits up to gracePeriod for
// in-flight and queued work to drain, then signals the workers to stop.
// Tasks already running are not cancelled: Shutdown waits for each to
// return or reach its own Timeout.
func (s *Scheduler) Shutdown(gracePeriod time.Duration) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	drained := make(chan struct{})
	go func() {
		for s.metrics.Aggregate().ActiveTasks > 0 || s.metrics.Aggregate().QueuedTasks > 0 {
			time.Sleep(5 * time.Millisecond)
		}
		close(drained)
	}()

	select {
	case <-drained:
	case <-time.After(gracePeriod):
	}

	s.stopOnce.Do(func() { close(s.stopCh) })
	s.wg.Wait()
	if s.closeResources != nil {
		s.closeResources()
	}
}
