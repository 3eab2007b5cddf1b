package service

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/portfolio-tracker/internal/types"
)

// DefaultSlowCycle is the duration above which a cycle counts as slow. With
// four positions, a one second inter-symbol delay and a few backoffs, healthy
// cycles finish well under it.
const DefaultSlowCycle = 30 * time.Second

// PerformanceMonitor tracks refresh cycle durations and outcomes
type PerformanceMonitor struct {
	mu         sync.RWMutex
	durations  []time.Duration
	byStatus   map[types.CycleStatus]int64
	slowCycles int64
	total      int64
	maxSamples int
	slow       time.Duration
}

// NewPerformanceMonitor creates a monitor keeping the last 500 cycle durations
func NewPerformanceMonitor(slow time.Duration) *PerformanceMonitor {
	if slow <= 0 {
		slow = DefaultSlowCycle
	}
	return &PerformanceMonitor{
		durations:  make([]time.Duration, 0, 64),
		byStatus:   make(map[types.CycleStatus]int64),
		maxSamples: 500,
		slow:       slow,
	}
}

// RecordCycle records one finished cycle
func (pm *PerformanceMonitor) RecordCycle(duration time.Duration, status types.CycleStatus) {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	pm.total++
	pm.byStatus[status]++
	pm.durations = append(pm.durations, duration)
	if len(pm.durations) > pm.maxSamples {
		pm.durations = pm.durations[len(pm.durations)-pm.maxSamples:]
	}
	if duration > pm.slow {
		pm.slowCycles++
	}
}

// GetStats returns current cycle statistics
func (pm *PerformanceMonitor) GetStats() *PerformanceStats {
	pm.mu.RLock()
	defer pm.mu.RUnlock()

	stats := &PerformanceStats{
		TotalCycles:   pm.total,
		OKCycles:      pm.byStatus[types.CycleStatusOK],
		PartialCycles: pm.byStatus[types.CycleStatusPartial],
		FailedCycles:  pm.byStatus[types.CycleStatusFailed],
		SlowCycles:    pm.slowCycles,
	}
	if len(pm.durations) == 0 {
		return stats
	}

	var sum time.Duration
	for _, d := range pm.durations {
		sum += d
	}
	stats.AvgCycleMs = float64(sum.Milliseconds()) / float64(len(pm.durations))

	sorted := slices.Clone(pm.durations)
	slices.Sort(sorted)
	stats.P95CycleMs = float64(sorted[int(float64(len(sorted)-1)*0.95)].Milliseconds())
	stats.MaxCycleMs = float64(sorted[len(sorted)-1].Milliseconds())
	return stats
}

// Reset clears all recorded cycles
func (pm *PerformanceMonitor) Reset() {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	pm.durations = pm.durations[:0]
	pm.byStatus = make(map[types.CycleStatus]int64)
	pm.slowCycles = 0
	pm.total = 0
}

// CheckPerformance flags slow or failing refresh behavior
func (pm *PerformanceMonitor) CheckPerformance() *PerformanceCheck {
	stats := pm.GetStats()
	check := &PerformanceCheck{
		Passed: true,
		Issues: make([]string, 0),
	}

	if stats.P95CycleMs > float64(pm.slow.Milliseconds()) {
		check.Passed = false
		check.Issues = append(check.Issues,
			fmt.Sprintf("P95 cycle time (%.0fms) exceeds %s", stats.P95CycleMs, pm.slow))
	}
	if stats.TotalCycles > 0 && stats.FailedCycles*2 > stats.TotalCycles {
		check.Passed = false
		check.Issues = append(check.Issues,
			fmt.Sprintf("%d of %d cycles produced no records - check provider connectivity", stats.FailedCycles, stats.TotalCycles))
	}
	return check
}

// PerformanceStats contains cycle statistics
type PerformanceStats struct {
	TotalCycles   int64   `json:"totalCycles"`
	OKCycles      int64   `json:"okCycles"`
	PartialCycles int64   `json:"partialCycles"`
	FailedCycles  int64   `json:"failedCycles"`
	SlowCycles    int64   `json:"slowCycles"`
	AvgCycleMs    float64 `json:"avgCycleMs"`
	P95CycleMs    float64 `json:"p95CycleMs"`
	MaxCycleMs    float64 `json:"maxCycleMs"`
}

// PerformanceCheck contains performance check results
type PerformanceCheck struct {
	Passed bool     `json:"passed"`
	Issues []string `json:"issues"`
}
