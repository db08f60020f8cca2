package engine

import (
	"context"
	"sync"
	"time"
)

// Budget reports how many files may be analyzed at once. The engine
// re-reads it on every dispatch, so a changing budget takes effect
// mid-batch. *parallelism.Controller satisfies it.
type Budget interface {
	CurrentWorkers() int
}

// FixedBudget is a constant Budget.
type FixedBudget int

// CurrentWorkers returns b.
func (b FixedBudget) CurrentWorkers() int { return int(b) }

// budgetRecheck bounds how long a blocked dispatch waits before reading
// the budget again, so a raised budget is noticed without a release.
const budgetRecheck = 20 * time.Millisecond

// gate is a counting permit whose capacity comes from a Budget.
type gate struct {
	budget Budget

	mu       sync.Mutex
	inFlight int
	peak     int
	released chan struct{}
}

func newGate(b Budget) *gate {
	return &gate{budget: b, released: make(chan struct{})}
}

func (g *gate) capacity() int {
	return max(g.budget.CurrentWorkers(), 1)
}

// acquire blocks until a permit is free or ctx is done. A done ctx
// always wins, even when a permit is free.
func (g *gate) acquire(ctx context.Context) error {
	timer := time.NewTimer(budgetRecheck)
	defer timer.Stop()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		g.mu.Lock()
		if g.inFlight < g.capacity() {
			g.inFlight++
			g.peak = max(g.peak, g.inFlight)
			g.mu.Unlock()
			return nil
		}
		released := g.released
		g.mu.Unlock()

		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(budgetRecheck)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-released:
		case <-timer.C:
		}
	}
}

// release returns a permit and wakes every waiter.
func (g *gate) release() {
	g.mu.Lock()
	g.inFlight--
	close(g.released)
	g.released = make(chan struct{})
	g.mu.Unlock()
}

// peakInFlight returns the highest concurrent permit count seen.
func (g *gate) peakInFlight() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.peak
}
