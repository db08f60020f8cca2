// Package pool provides bounded object pools used on the analysis hot path.
//
// Pools are an optimization only. Every operation is non-blocking: when the
// pool lock is contended, Get allocates directly and Put drops the value.
package pool

import (
	"sync"
	"sync/atomic"
)

// Pool is a bounded free list of reusable values.
type Pool[T any] struct {
	mu      sync.Mutex
	items   []T
	maxSize int
	newFn   func() T
	resetFn func(T) T

	allocations atomic.Int64
	reuses      atomic.Int64
	returns     atomic.Int64
	discards    atomic.Int64
}

// Option configures a Pool.
type Option[T any] func(*Pool[T])

// WithReset sets a function applied to values on Put, before they are stored.
func WithReset[T any](fn func(T) T) Option[T] {
	return func(p *Pool[T]) {
		p.resetFn = fn
	}
}

// New creates a pool holding at most maxSize idle values.
func New[T any](maxSize int, newFn func() T, opts ...Option[T]) *Pool[T] {
	if maxSize <= 0 {
		maxSize = 1000
	}
	p := &Pool[T]{
		items:   make([]T, 0, min(maxSize, 64)),
		maxSize: maxSize,
		newFn:   newFn,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Get pops an idle value or creates a new one.
func (p *Pool[T]) Get() T {
	if p.mu.TryLock() {
		if n := len(p.items); n > 0 {
			v := p.items[n-1]
			var zero T
			p.items[n-1] = zero
			p.items = p.items[:n-1]
			p.mu.Unlock()
			p.reuses.Add(1)
			return v
		}
		p.mu.Unlock()
	}
	p.allocations.Add(1)
	return p.newFn()
}

// Put stores v for reuse if there is room.
func (p *Pool[T]) Put(v T) {
	if p.resetFn != nil {
		v = p.resetFn(v)
	}
	if !p.mu.TryLock() {
		p.discards.Add(1)
		return
	}
	if len(p.items) >= p.maxSize {
		p.mu.Unlock()
		p.discards.Add(1)
		return
	}
	p.items = append(p.items, v)
	p.mu.Unlock()
	p.returns.Add(1)
}

// Len returns the number of idle values.
func (p *Pool[T]) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.items)
}

// Stats holds pool counters.
type Stats struct {
	Allocations int64
	Reuses      int64
	Returns     int64
	Discards    int64
}

// ReuseRate is the share of Get calls served from the pool.
func (s Stats) ReuseRate() float64 {
	total := s.Allocations + s.Reuses
	if total == 0 {
		return 0
	}
	return float64(s.Reuses) / float64(total)
}

// Stats returns a snapshot of the pool counters.
func (p *Pool[T]) Stats() Stats {
	return Stats{
		Allocations: p.allocations.Load(),
		Reuses:      p.reuses.Load(),
		Returns:     p.returns.Load(),
		Discards:    p.discards.Load(),
	}
}

// Utilization describes how full the pool is.
type Utilization struct {
	CurrentSize int
	MaxSize     int
	ReuseRate   float64
}

// Percent returns CurrentSize as a percentage of MaxSize.
func (u Utilization) Percent() float64 {
	if u.MaxSize == 0 {
		return 0
	}
	return float64(u.CurrentSize) / float64(u.MaxSize) * 100
}

// Utilization returns the current fill level and reuse rate.
func (p *Pool[T]) Utilization() Utilization {
	return Utilization{
		CurrentSize: p.Len(),
		MaxSize:     p.maxSize,
		ReuseRate:   p.Stats().ReuseRate(),
	}
}
