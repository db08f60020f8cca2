// Package parallelism recommends how many files to analyze concurrently.
// A Monitor samples system load on an interval and feeds a Controller,
// which moves the worker count within a fixed band.
package parallelism

import (
	"runtime"
	"time"
)

// Load thresholds used by IsHighLoad and IsModerateLoad.
const (
	HighLoadThreshold     = 0.7
	ModerateLoadThreshold = 0.4
)

// LoadWeights weighs the components of a load score. They should sum to 1.
type LoadWeights struct {
	CPU         float64
	Memory      float64
	IO          float64
	LoadAverage float64
}

// DefaultLoadWeights favors CPU, then memory.
var DefaultLoadWeights = LoadWeights{CPU: 0.4, Memory: 0.3, IO: 0.2, LoadAverage: 0.1}

// SystemLoad is one load sample. CPUUsage, MemoryUsage and IOWait are
// normalized to [0,1]; LoadAverage is the raw 1-minute value.
type SystemLoad struct {
	CPUUsage    float64
	MemoryUsage float64
	IOWait      float64
	LoadAverage float64
	CapturedAt  time.Time
}

// LoadScore combines the sample into a single busyness value in [0,1]
// using DefaultLoadWeights and the local core count.
func (l SystemLoad) LoadScore() float64 {
	return l.WeightedScore(DefaultLoadWeights, runtime.NumCPU())
}

// WeightedScore is LoadScore with explicit weights and core count. The
// load average is divided by numCPU and capped at 1.
func (l SystemLoad) WeightedScore(w LoadWeights, numCPU int) float64 {
	if numCPU < 1 {
		numCPU = 1
	}
	normLoad := min(l.LoadAverage/float64(numCPU), 1.0)
	return l.CPUUsage*w.CPU +
		l.MemoryUsage*w.Memory +
		l.IOWait*w.IO +
		normLoad*w.LoadAverage
}

// IsHighLoad reports a load score above 0.7.
func (l SystemLoad) IsHighLoad() bool {
	return l.LoadScore() > HighLoadThreshold
}

// IsModerateLoad reports a load score above 0.4.
func (l SystemLoad) IsModerateLoad() bool {
	return l.LoadScore() > ModerateLoadThreshold
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
