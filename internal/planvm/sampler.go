package planvm

import (
	"runtime"
	"time"
)

// ResourceSampler is the pluggable host collaborator behind the
// per-execution resource monitor: it samples CPU ms, wall ms, memory
// bytes, and an estimated battery percentage. The VM
// depends only on this seam, never on a concrete platform API.
type ResourceSampler interface {
	// Sample returns the resource usage accumulated since start.
	Sample(start time.Time) Usage
}

// RuntimeSampler is the in-process ResourceSampler: wall/cpu come from
// a wall-clock delta (a single-threaded interpreter's CPU time tracks
// wall time closely enough for sandbox accounting), memory from
// runtime.ReadMemStats, and battery from a constant stub documented as
// a host-integration seam — a real device build swaps this sampler for
// one backed by the platform's battery API, never the VM's caller.
type RuntimeSampler struct {
	// BatteryPct is the constant battery estimate this stub reports.
	// Zero is a safe default: it never trips the battery cap on its own.
	BatteryPct float64
}

// NewRuntimeSampler returns a RuntimeSampler reporting a constant 0%
// battery drain (host-integration seam; see type doc).
func NewRuntimeSampler() *RuntimeSampler {
	return &RuntimeSampler{}
}

// Sample implements ResourceSampler.
func (s *RuntimeSampler) Sample(start time.Time) Usage {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	elapsed := elapsedMillis(start)
	return Usage{
		CPUMillis:   elapsed,
		WallMillis:  elapsed,
		MemoryBytes: int64(mem.Alloc),
		BatteryPct:  s.BatteryPct,
	}
}

var _ ResourceSampler = (*RuntimeSampler)(nil)
