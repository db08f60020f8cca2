package parallelism

import (
	"errors"
	"sync"
	"time"
)

// BreakerState is the state of a probe breaker.
type BreakerState int32

const (
	// BreakerClosed lets probes run.
	BreakerClosed BreakerState = iota
	// BreakerOpen skips probes until the cool-down elapses.
	BreakerOpen
	// BreakerHalfOpen lets probes run on trial.
	BreakerHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ErrBreakerOpen is returned when a probe is skipped.
var ErrBreakerOpen = errors.New("probe breaker is open")

// Breaker stops calling a failing system probe for a cool-down period so
// a broken probe does not cost a syscall every sample.
type Breaker struct {
	mu          sync.Mutex
	state       BreakerState
	failures    int
	successes   int
	openedAt    time.Time
	threshold   int
	cooldown    time.Duration
	halfOpenMax int
	now         func() time.Time
}

// NewBreaker creates a breaker that opens after threshold consecutive
// failures, stays open for cooldown, and closes again after halfOpenMax
// successful trial calls.
func NewBreaker(threshold int, cooldown time.Duration, halfOpenMax int) *Breaker {
	if threshold <= 0 {
		threshold = 3
	}
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}
	if halfOpenMax <= 0 {
		halfOpenMax = 1
	}
	return &Breaker{
		threshold:   threshold,
		cooldown:    cooldown,
		halfOpenMax: halfOpenMax,
		now:         time.Now,
	}
}

// Execute runs fn unless the breaker is open.
func (b *Breaker) Execute(fn func() error) error {
	if !b.allow() {
		return ErrBreakerOpen
	}
	err := fn()
	b.record(err)
	return err
}

func (b *Breaker) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state != BreakerOpen {
		return true
	}
	if b.now().Sub(b.openedAt) < b.cooldown {
		return false
	}
	b.state = BreakerHalfOpen
	b.successes = 0
	return true
}

func (b *Breaker) record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err != nil {
		switch b.state {
		case BreakerClosed:
			b.failures++
			if b.failures >= b.threshold {
				b.trip()
			}
		case BreakerHalfOpen:
			b.trip()
		}
		return
	}

	switch b.state {
	case BreakerClosed:
		b.failures = 0
	case BreakerHalfOpen:
		b.successes++
		if b.successes >= b.halfOpenMax {
			b.state = BreakerClosed
			b.failures = 0
			b.successes = 0
		}
	}
}

// trip opens the breaker. Caller holds the lock.
func (b *Breaker) trip() {
	b.state = BreakerOpen
	b.openedAt = b.now()
	b.failures = 0
	b.successes = 0
}

// State returns the current state.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Reset closes the breaker.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = BreakerClosed
	b.failures = 0
	b.successes = 0
}
