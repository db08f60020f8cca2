// Package cache provides the bounded caches used by analyzers: a compiled
// pattern cache and a per-file result cache. Both evict by priority score
// and treat internal failures as misses rather than errors.
package cache

import (
	"errors"
	"math"
	"sync"
	"time"

	"github.com/sourcegraph/conc/panics"

	"github.com/greysquirr3l/codeguardian-go/internal/logging"
)

// Errors
var (
	ErrInvalidPattern     = errors.New("invalid pattern")
	ErrUnsupportedPolicy  = errors.New("unsupported eviction policy")
	ErrInvalidCachedValue = errors.New("invalid cached value")
)

// PolicyLRU is the only eviction policy name currently implemented. It
// labels priority-score eviction that weighs recency, frequency and cost.
const PolicyLRU = "lru"

// PriorityWeights tunes the eviction score
//
//	ln(1+accessCount) * 1/(1+age/AgeScale) * 1/(1+cost/CostScale)
//
// where age is measured from the last access.
type PriorityWeights struct {
	AgeScale  time.Duration
	CostScale float64
}

// DefaultRegexWeights scales compile cost in milliseconds.
var DefaultRegexWeights = PriorityWeights{AgeScale: time.Hour, CostScale: 100}

// DefaultResultWeights scales file size in bytes.
var DefaultResultWeights = PriorityWeights{AgeScale: time.Hour, CostScale: 1024}

// Score computes the priority of an entry. Lower scores are evicted first.
func (w PriorityWeights) Score(accessCount uint64, sinceAccess time.Duration, cost float64) float64 {
	ageScale := w.AgeScale.Seconds()
	if ageScale <= 0 {
		ageScale = time.Hour.Seconds()
	}
	costScale := w.CostScale
	if costScale <= 0 {
		costScale = 1
	}

	frequency := math.Log1p(float64(accessCount))
	recency := 1.0 / (1.0 + math.Max(sinceAccess.Seconds(), 0)/ageScale)
	costFactor := 1.0 / (1.0 + math.Max(cost, 0)/costScale)
	return frequency * recency * costFactor
}

// guard serializes cache mutation. A panic raised while the lock is held
// is logged and swallowed so a corrupted update degrades to a miss.
type guard struct {
	mu     sync.Mutex
	logger *logging.Logger
}

// do runs fn under the lock and reports whether it completed normally.
func (g *guard) do(op string, fn func()) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	var pc panics.Catcher
	pc.Try(fn)
	if r := pc.Recovered(); r != nil {
		g.logger.Warning("%s: recovered from panic, continuing: %v", op, r.Value)
		return false
	}
	return true
}
