// Copyright 2025 Gerry Miller <gerry@gerrymiller.com>
//
// Licensed under the MIT License.
// See LICENSE file in the project root for full license information.

package scheduler

import (
	"context"
	"math"
	"sync/atomic"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/mem"
)

// highLoadCPUPercent and highLoadMemPercent are the resource-pressure
// thresholds past which the scheduler reports high load.
const (
	highLoadCPUPercent = 80.0
	highLoadMemPercent = 85.0

	defaultResourceSampleInterval = time.Second
)

// ResourceSampler reports current host resource pressure as percentages
// in [0, 100]. A sampler that cannot read the host should report (0, 0)
// rather than propagate an error: resource sampling is an auxiliary load
// signal, not something a caller is blocked waiting on.
type ResourceSampler interface {
	Sample() (cpuPercent, memPercent float64)
}

// gopsutilSampler refreshes CPU/memory percentages on a fixed interval in
// a background goroutine and serves the last sample through atomics, so
// the scheduler's hot Submit path never blocks on a syscall.
type gopsutilSampler struct {
	cpuBits atomic.Uint64
	memBits atomic.Uint64
	stopCh  chan struct{}
}

func newGopsutilSampler(interval time.Duration) *gopsutilSampler {
	if interval <= 0 {
		interval = defaultResourceSampleInterval
	}
	s := &gopsutilSampler{stopCh: make(chan struct{})}
	go s.loop(interval)
	return s
}

func (s *gopsutilSampler) loop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	s.refresh()
	for {
		select {
		case <-ticker.C:
			s.refresh()
		case <-s.stopCh:
			return
		}
	}
}

// refresh samples CPU/memory once. cpu.Percent with a zero interval
// returns the percentage since the previous call rather than blocking,
// since the ticker above is what paces the sampling rate.
func (s *gopsutilSampler) refresh() {
	ctx := context.Background()
	percentages, err := cpu.PercentWithContext(ctx, 0, false)
	if err == nil && len(percentages) > 0 {
		s.cpuBits.Store(math.Float64bits(percentages[0]))
	}
	vmem, err := mem.VirtualMemoryWithContext(ctx)
	if err == nil {
		s.memBits.Store(math.Float64bits(vmem.UsedPercent))
	}
}

func (s *gopsutilSampler) Sample() (cpuPercent, memPercent float64) {
	return math.Float64frombits(s.cpuBits.Load()), math.Float64frombits(s.memBits.Load())
}

func (s *gopsutilSampler) close() {
	close(s.stopCh)
}
