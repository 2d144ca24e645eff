package pipeline

import (
	"sync"
	"sync/atomic"
	"time"
)

// Metrics tracks pipeline activity. Counters are atomic; stage timings
// sit behind a mutex since they are only touched when metrics collection
// is enabled.
type Metrics struct {
	totalExecutions   atomic.Int64
	activeExecutions  atomic.Int64
	failedExecutions  atomic.Int64
	toolCallsExecuted atomic.Int64

	mu           sync.Mutex
	stageTimings map[string][]time.Duration
	enabled      bool
}

// MetricsSnapshot is a point-in-time copy of the collected metrics.
type MetricsSnapshot struct {
	TotalExecutions   int64                    `json:"totalExecutions"`
	ActiveExecutions  int64                    `json:"activeExecutions"`
	FailedExecutions  int64                    `json:"failedExecutions"`
	ToolCallsExecuted int64                    `json:"toolCallsExecuted"`
	AverageStageTime  map[string]time.Duration `json:"averageStageTime,omitempty"`
}

func newMetrics(enabled bool) *Metrics {
	return &Metrics{
		stageTimings: make(map[string][]time.Duration),
		enabled:      enabled,
	}
}

func (m *Metrics) executionStarted() {
	m.totalExecutions.Add(1)
	m.activeExecutions.Add(1)
}

func (m *Metrics) executionFinished(failed bool) {
	m.activeExecutions.Add(-1)
	if failed {
		m.failedExecutions.Add(1)
	}
}

func (m *Metrics) toolCalls(n int) {
	m.toolCallsExecuted.Add(int64(n))
}

// recordStage stores one stage duration. No-op unless collection is on.
func (m *Metrics) recordStage(stage string, d time.Duration) {
	if !m.enabled {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stageTimings[stage] = append(m.stageTimings[stage], d)
}

// timeStage runs fn and records its duration under the stage name.
func (m *Metrics) timeStage(stage string, fn func() error) error {
	start := time.Now()
	err := fn()
	m.recordStage(stage, time.Since(start))
	return err
}

// Snapshot returns a copy of the current metrics.
func (m *Metrics) Snapshot() MetricsSnapshot {
	snap := MetricsSnapshot{
		TotalExecutions:   m.totalExecutions.Load(),
		ActiveExecutions:  m.activeExecutions.Load(),
		FailedExecutions:  m.failedExecutions.Load(),
		ToolCallsExecuted: m.toolCallsExecuted.Load(),
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.stageTimings) > 0 {
		snap.AverageStageTime = make(map[string]time.Duration, len(m.stageTimings))
		for stage, timings := range m.stageTimings {
			var total time.Duration
			for _, d := range timings {
				total += d
			}
			snap.AverageStageTime[stage] = total / time.Duration(len(timings))
		}
	}
	return snap
}

// Reset clears all counters and timings. Only an explicit call resets
// metrics; request completion never does.
func (m *Metrics) Reset() {
	m.totalExecutions.Store(0)
	m.activeExecutions.Store(0)
	m.failedExecutions.Store(0)
	m.toolCallsExecuted.Store(0)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.stageTimings = make(map[string][]time.Duration)
}
