// Package memguard estimates CP model memory footprint and refuses to
// start solves that would exceed a configured ceiling, and detects
// observed overshoot mid-run (spec.md §4.5).
package memguard

import (
	"fmt"
	"runtime"

	"github.com/northcloud/vulcan-scheduler/internal/infraerrors"
)

// ModelSize summarizes the dimensions used to estimate memory footprint.
type ModelSize struct {
	NumTasks     int
	NumMachines  int
	NumOperators int
	HorizonMinutes int
}

// bytesPerIntervalVar is a rough per-optional-interval-variable cost
// (bounds, presence literal, and solver bookkeeping), calibrated high
// enough to fail closed rather than open.
const bytesPerIntervalVar = 256

// EstimateBytes approximates the CP model's memory footprint: one
// optional interval variable per (task, machine) and per (task, operator)
// candidate pairing, which dominates the model's size.
func EstimateBytes(size ModelSize) int64 {
	machinePairs := int64(size.NumTasks) * int64(size.NumMachines)
	operatorPairs := int64(size.NumTasks) * int64(size.NumOperators)
	return (machinePairs + operatorPairs) * bytesPerIntervalVar
}

// Guard enforces a memory ceiling around a solve invocation.
type Guard struct {
	LimitMB int
}

// NewGuard constructs a Guard with the given megabyte ceiling.
func NewGuard(limitMB int) *Guard {
	return &Guard{LimitMB: limitMB}
}

// CheckBeforeStart refuses to proceed if the estimated size already
// exceeds the configured ceiling.
func (g *Guard) CheckBeforeStart(size ModelSize) error {
	if g.LimitMB <= 0 {
		return nil
	}

	estimatedMB := EstimateBytes(size) / (1024 * 1024)
	limitBytes := int64(g.LimitMB)
	if estimatedMB > limitBytes {
		return infraerrors.New(infraerrors.KindMemoryExhaustion,
			fmt.Sprintf("estimated model size %dMB exceeds limit %dMB", estimatedMB, g.LimitMB)).
			WithDetails(map[string]any{"estimated_mb": estimatedMB, "limit_mb": g.LimitMB})
	}
	return nil
}

// CheckOvershoot samples current process memory (via runtime.MemStats) and
// reports an error if it has exceeded the configured ceiling mid-run.
func (g *Guard) CheckOvershoot() error {
	if g.LimitMB <= 0 {
		return nil
	}

	var stats runtime.MemStats
	runtime.ReadMemStats(&stats)

	observedMB := int64(stats.Alloc) / (1024 * 1024)
	if observedMB > int64(g.LimitMB) {
		return infraerrors.New(infraerrors.KindMemoryExhaustion,
			fmt.Sprintf("observed memory %dMB exceeds limit %dMB", observedMB, g.LimitMB)).
			WithDetails(map[string]any{"observed_mb": observedMB, "limit_mb": g.LimitMB})
	}
	return nil
}
