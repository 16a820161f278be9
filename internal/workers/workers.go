package workers

import (
	"os"
	"runtime"
	"strconv"
)

// Multipliers per workload shape. Image decoding saturates a core, while
// storage fetches and geocoding spend most of their time waiting.
const (
	cpuBoundMultiplier = 1.0
	ioBoundMultiplier  = 2.0
	mixedMultiplier    = 1.5
)

// Count returns the optimal number of workers for a given workload.
// It respects container CPU limits via GOMAXPROCS (Go 1.19+).
//
// The limit parameter caps the worker count to prevent resource
// exhaustion. Use 0 for no limit.
//
// Can be overridden with the PIPELINE_WORKERS environment variable.
func Count(multiplier float64, limit int) int {
	// Check for manual override first
	if override := os.Getenv("PIPELINE_WORKERS"); override != "" {
		if count, err := strconv.Atoi(override); err == nil && count > 0 {
			if limit > 0 && count > limit {
				return limit
			}
			return count
		}
	}

	// GOMAXPROCS is automatically set to container CPU limit in Go 1.19+
	available := runtime.GOMAXPROCS(0)

	workers := int(float64(available) * multiplier)

	if workers < 1 {
		workers = 1
	}
	if limit > 0 && workers > limit {
		workers = limit
	}

	return workers
}

// ForCPU sizes a pool for CPU-bound work such as decoding and thumbnail
// generation (1 worker per CPU).
func ForCPU(limit int) int {
	return Count(cpuBoundMultiplier, limit)
}

// ForIO sizes a pool for I/O-bound work such as storage fetches and
// geocoding calls (2 workers per CPU).
func ForIO(limit int) int {
	return Count(ioBoundMultiplier, limit)
}

// ForMixed sizes a pool for pipeline tasks that alternate between
// decoding and storage I/O (1.5 workers per CPU).
func ForMixed(limit int) int {
	return Count(mixedMultiplier, limit)
}
