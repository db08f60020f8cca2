package parallelism

import (
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/greysquirr3l/codeguardian-go/internal/logging"
)

// Controller defaults.
const (
	DefaultAdjustmentInterval = 5 * time.Second
	DefaultHistorySize        = 10
)

// AdjustFunc is called after the controller changes the worker count.
type AdjustFunc func(from, to int, avgLoad float64)

// ControllerMetrics is a snapshot of controller state.
type ControllerMetrics struct {
	CurrentWorkers          int
	MinWorkers              int
	MaxWorkers              int
	CurrentLoadScore        float64
	AverageLoadScore        float64
	HistorySize             int
	TimeSinceLastAdjustment time.Duration
}

// Controller holds the recommended worker count, always within
// [min, max]. Reads are lock-free; load updates are serialized.
type Controller struct {
	current  atomic.Int64
	min      int
	max      int
	interval time.Duration
	weights  LoadWeights
	numCPU   int

	mu             sync.Mutex
	lastAdjustment time.Time
	history        []SystemLoad
	historySize    int
	latest         SystemLoad

	logger   *logging.Logger
	onAdjust AdjustFunc
	now      func() time.Time
}

// ControllerOption configures a Controller.
type ControllerOption func(*Controller)

// WithAdjustmentInterval sets the minimum time between adjustments.
func WithAdjustmentInterval(d time.Duration) ControllerOption {
	return func(c *Controller) {
		if d >= 0 {
			c.interval = d
		}
	}
}

// WithHistorySize sets how many samples are averaged.
func WithHistorySize(n int) ControllerOption {
	return func(c *Controller) {
		if n > 0 {
			c.historySize = n
		}
	}
}

// WithLoadWeights overrides the load score weights.
func WithLoadWeights(w LoadWeights, numCPU int) ControllerOption {
	return func(c *Controller) {
		c.weights = w
		if numCPU > 0 {
			c.numCPU = numCPU
		}
	}
}

// WithControllerLogger sets the logger.
func WithControllerLogger(l *logging.Logger) ControllerOption {
	return func(c *Controller) {
		c.logger = l
	}
}

// WithOnAdjust registers a callback for worker count changes.
func WithOnAdjust(fn AdjustFunc) ControllerOption {
	return func(c *Controller) {
		c.onAdjust = fn
	}
}

// WithControllerClock replaces the time source.
func WithControllerClock(now func() time.Time) ControllerOption {
	return func(c *Controller) {
		c.now = now
	}
}

// NewController creates a controller for the band [minWorkers, maxWorkers]
// starting at initial. The band is normalized so that 1 <= min <= max,
// and initial is clamped into it.
func NewController(minWorkers, maxWorkers, initial int, opts ...ControllerOption) *Controller {
	minWorkers = max(minWorkers, 1)
	maxWorkers = max(maxWorkers, minWorkers)

	c := &Controller{
		min:         minWorkers,
		max:         maxWorkers,
		interval:    DefaultAdjustmentInterval,
		weights:     DefaultLoadWeights,
		numCPU:      runtime.NumCPU(),
		historySize: DefaultHistorySize,
		logger:      logging.New(logging.LevelInfo),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}

	c.history = make([]SystemLoad, 0, c.historySize)
	c.lastAdjustment = c.now()
	c.current.Store(int64(c.clampWorkers(initial)))
	return c
}

// CurrentWorkers returns the recommended worker count.
func (c *Controller) CurrentWorkers() int {
	return int(c.current.Load())
}

// MinWorkers returns the lower bound.
func (c *Controller) MinWorkers() int { return c.min }

// MaxWorkers returns the upper bound.
func (c *Controller) MaxWorkers() int { return c.max }

// SetWorkers forces the worker count, clamped to the band.
func (c *Controller) SetWorkers(n int) {
	c.current.Store(int64(c.clampWorkers(n)))
}

func (c *Controller) clampWorkers(n int) int {
	return min(max(n, c.min), c.max)
}

// UpdateLoad records a sample. When the adjustment interval has elapsed
// since the last adjustment, the worker count is recomputed from the
// history average.
func (c *Controller) UpdateLoad(sample SystemLoad) {
	c.mu.Lock()
	c.latest = sample
	if len(c.history) == c.historySize {
		copy(c.history, c.history[1:])
		c.history = c.history[:len(c.history)-1]
	}
	c.history = append(c.history, sample)

	now := c.now()
	if now.Sub(c.lastAdjustment) < c.interval {
		c.mu.Unlock()
		return
	}
	c.lastAdjustment = now
	snapshot := append([]SystemLoad(nil), c.history...)
	c.mu.Unlock()

	c.AdjustWorkers(snapshot)
}

// AdjustWorkers applies the step function to the mean load score of
// history and returns the resulting worker count. An empty history
// leaves the count unchanged.
func (c *Controller) AdjustWorkers(history []SystemLoad) int {
	if len(history) == 0 {
		return c.CurrentWorkers()
	}
	avg := c.averageScore(history)

	for {
		cur := c.current.Load()
		next := int64(c.step(int(cur), avg))
		if next == cur {
			return int(cur)
		}
		if c.current.CompareAndSwap(cur, next) {
			c.logger.Debug("adjusted workers from %d to %d (avg load %.2f)", cur, next, avg)
			if c.onAdjust != nil {
				c.onAdjust(int(cur), int(next), avg)
			}
			return int(next)
		}
	}
}

// step maps the current count and an average load score to a new count.
func (c *Controller) step(current int, avgLoad float64) int {
	switch {
	case avgLoad > 0.8:
		return max(current*3/4, c.min)
	case avgLoad > 0.6:
		return max(current*4/5, c.min)
	case avgLoad < 0.2:
		return min(current*5/4, c.max)
	case avgLoad < 0.4:
		return min(current*6/5, c.max)
	default:
		return current
	}
}

func (c *Controller) averageScore(history []SystemLoad) float64 {
	if len(history) == 0 {
		return 0
	}
	var sum float64
	for _, s := range history {
		sum += s.WeightedScore(c.weights, c.numCPU)
	}
	return sum / float64(len(history))
}

// CurrentLoad returns the most recent sample.
func (c *Controller) CurrentLoad() SystemLoad {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.latest
}

// Metrics returns a snapshot of the controller state.
func (c *Controller) Metrics() ControllerMetrics {
	c.mu.Lock()
	defer c.mu.Unlock()

	return ControllerMetrics{
		CurrentWorkers:          c.CurrentWorkers(),
		MinWorkers:              c.min,
		MaxWorkers:              c.max,
		CurrentLoadScore:        c.latest.WeightedScore(c.weights, c.numCPU),
		AverageLoadScore:        c.averageScore(c.history),
		HistorySize:             len(c.history),
		TimeSinceLastAdjustment: c.now().Sub(c.lastAdjustment),
	}
}
