package cache

import (
	"time"

	"github.com/greysquirr3l/codeguardian-go/internal/logging"
)

// Regex cache defaults.
const (
	DefaultRegexMaxEntries = 500
	DefaultRegexMaxAge     = time.Hour
)

// RegexEntry is a cached compiled pattern. Entries never go stale with
// respect to file content; only capacity and age evict them.
type RegexEntry struct {
	Pattern      *CompiledPattern
	Source       string
	CompileTime  time.Duration
	AccessCount  uint64
	LastAccessed time.Time
	CreatedAt    time.Time
}

// RegexStats holds running regex cache counters.
type RegexStats struct {
	TotalRequests     uint64
	CacheHits         uint64
	CacheMisses       uint64
	CompileErrors     uint64
	EntriesEvicted    uint64
	EntriesExpired    uint64
	CompilationTimeMs float64
}

// HitRate is hits over total requests.
func (s RegexStats) HitRate() float64 {
	if s.TotalRequests == 0 {
		return 0
	}
	return float64(s.CacheHits) / float64(s.TotalRequests)
}

// MissRate is misses over total requests.
func (s RegexStats) MissRate() float64 {
	if s.TotalRequests == 0 {
		return 0
	}
	return float64(s.CacheMisses) / float64(s.TotalRequests)
}

// AverageCompilationTimeMs is the mean compile time of cached patterns.
func (s RegexStats) AverageCompilationTimeMs() float64 {
	if s.CacheMisses == 0 {
		return 0
	}
	return s.CompilationTimeMs / float64(s.CacheMisses)
}

// TimeSavedMs estimates compile time avoided by cache hits.
func (s RegexStats) TimeSavedMs() float64 {
	return float64(s.CacheHits) * s.AverageCompilationTimeMs()
}

// RegexUtilization is a point-in-time view of the regex cache.
type RegexUtilization struct {
	EntryCount   int
	MaxEntries   int
	HitRate      float64
	AvgCompileMs float64
	TimeSavedMs  float64
}

// RegexCache maps pattern text to compiled patterns.
type RegexCache struct {
	guard        guard
	entries      map[string]*RegexEntry
	stats        RegexStats
	maxEntries   int
	maxAge       time.Duration
	policy       string
	weights      PriorityWeights
	matchTimeout time.Duration
	now          func() time.Time
}

// RegexOption configures a RegexCache.
type RegexOption func(*RegexCache)

// WithRegexMaxEntries sets the entry ceiling.
func WithRegexMaxEntries(n int) RegexOption {
	return func(c *RegexCache) {
		if n > 0 {
			c.maxEntries = n
		}
	}
}

// WithRegexMaxAge sets the age after which entries are purged.
func WithRegexMaxAge(d time.Duration) RegexOption {
	return func(c *RegexCache) {
		if d > 0 {
			c.maxAge = d
		}
	}
}

// WithRegexPolicy sets the eviction policy name.
func WithRegexPolicy(policy string) RegexOption {
	return func(c *RegexCache) {
		c.policy = policy
	}
}

// WithRegexWeights overrides the priority score weights.
func WithRegexWeights(w PriorityWeights) RegexOption {
	return func(c *RegexCache) {
		c.weights = w
	}
}

// WithMatchTimeout bounds backtracking matches of compiled patterns.
func WithMatchTimeout(d time.Duration) RegexOption {
	return func(c *RegexCache) {
		c.matchTimeout = d
	}
}

// WithRegexLogger sets the logger.
func WithRegexLogger(l *logging.Logger) RegexOption {
	return func(c *RegexCache) {
		c.guard.logger = l
	}
}

// WithRegexClock replaces the time source.
func WithRegexClock(now func() time.Time) RegexOption {
	return func(c *RegexCache) {
		c.now = now
	}
}

// NewRegexCache creates an empty regex cache.
func NewRegexCache(opts ...RegexOption) *RegexCache {
	c := &RegexCache{
		entries:      make(map[string]*RegexEntry),
		maxEntries:   DefaultRegexMaxEntries,
		maxAge:       DefaultRegexMaxAge,
		policy:       PolicyLRU,
		weights:      DefaultRegexWeights,
		matchTimeout: DefaultMatchTimeout,
		now:          time.Now,
	}
	c.guard.logger = logging.New(logging.LevelInfo)

	for _, opt := range opts {
		opt(c)
	}

	if c.policy != PolicyLRU {
		c.guard.logger.Warning("regex cache: policy %q not supported, using %q", c.policy, PolicyLRU)
		c.policy = PolicyLRU
	}
	return c
}

// GetOrCompile returns the cached pattern for source, compiling and
// caching it on a miss. Compile failures are returned as *PatternError
// and are not cached.
func (c *RegexCache) GetOrCompile(source string) (*CompiledPattern, error) {
	var hit *CompiledPattern
	c.guard.do("regex cache lookup", func() {
		c.stats.TotalRequests++
		if e, ok := c.entries[source]; ok {
			e.AccessCount++
			e.LastAccessed = c.now()
			c.stats.CacheHits++
			hit = e.Pattern
		}
	})
	if hit != nil {
		return hit, nil
	}

	start := time.Now()
	compiled, err := CompilePattern(source, c.matchTimeout)
	elapsed := time.Since(start)
	if err != nil {
		c.guard.do("regex cache compile error", func() {
			c.stats.CompileErrors++
		})
		return nil, err
	}

	result := compiled
	c.guard.do("regex cache insert", func() {
		c.stats.CacheMisses++
		c.stats.CompilationTimeMs += float64(elapsed.Microseconds()) / 1000

		// A concurrent miss may have inserted the same source already.
		if e, ok := c.entries[source]; ok {
			result = e.Pattern
			return
		}

		c.ensureCapacity()
		now := c.now()
		c.entries[source] = &RegexEntry{
			Pattern:      compiled,
			Source:       source,
			CompileTime:  elapsed,
			AccessCount:  1,
			LastAccessed: now,
			CreatedAt:    now,
		}
	})
	return result, nil
}

// Get is a cache-only lookup. It never compiles, and only hits are
// counted as requests.
func (c *RegexCache) Get(source string) (*CompiledPattern, bool) {
	var found *CompiledPattern
	c.guard.do("regex cache get", func() {
		if e, ok := c.entries[source]; ok {
			e.AccessCount++
			e.LastAccessed = c.now()
			c.stats.TotalRequests++
			c.stats.CacheHits++
			found = e.Pattern
		}
	})
	return found, found != nil
}

// PreloadPatterns compiles sources ahead of the hot path. Invalid patterns
// are skipped; the first error is returned after all others are loaded.
func (c *RegexCache) PreloadPatterns(sources []string) error {
	var firstErr error
	for _, s := range sources {
		if _, err := c.GetOrCompile(s); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// ensureCapacity makes room for one insert. Caller holds the lock.
func (c *RegexCache) ensureCapacity() {
	now := c.now()
	for key, e := range c.entries {
		if now.Sub(e.LastAccessed) >= c.maxAge {
			delete(c.entries, key)
			c.stats.EntriesExpired++
		}
	}

	for len(c.entries) >= c.maxEntries {
		victim, ok := c.lowestPriority(now)
		if !ok {
			return
		}
		delete(c.entries, victim)
		c.stats.EntriesEvicted++
	}
}

func (c *RegexCache) lowestPriority(now time.Time) (string, bool) {
	var (
		victim string
		best   float64
		found  bool
	)
	for key, e := range c.entries {
		score := c.priority(e, now)
		if !found || score < best {
			victim, best, found = key, score, true
		}
	}
	return victim, found
}

func (c *RegexCache) priority(e *RegexEntry, now time.Time) float64 {
	compileMs := float64(e.CompileTime.Microseconds()) / 1000
	return c.weights.Score(e.AccessCount, now.Sub(e.LastAccessed), compileMs)
}

// Cleanup purges entries older than the max age and returns how many
// were removed.
func (c *RegexCache) Cleanup() int {
	removed := 0
	c.guard.do("regex cache cleanup", func() {
		now := c.now()
		for key, e := range c.entries {
			if now.Sub(e.LastAccessed) >= c.maxAge {
				delete(c.entries, key)
				c.stats.EntriesExpired++
				removed++
			}
		}
	})
	return removed
}

// Clear drops every entry. Counters are kept.
func (c *RegexCache) Clear() {
	c.guard.do("regex cache clear", func() {
		c.entries = make(map[string]*RegexEntry)
	})
}

// Len returns the number of cached patterns.
func (c *RegexCache) Len() int {
	n := 0
	c.guard.do("regex cache len", func() {
		n = len(c.entries)
	})
	return n
}

// Stats returns a copy of the counters.
func (c *RegexCache) Stats() RegexStats {
	var s RegexStats
	c.guard.do("regex cache stats", func() {
		s = c.stats
	})
	return s
}

// Utilization returns fill level and efficiency figures.
func (c *RegexCache) Utilization() RegexUtilization {
	var u RegexUtilization
	c.guard.do("regex cache utilization", func() {
		u = RegexUtilization{
			EntryCount:   len(c.entries),
			MaxEntries:   c.maxEntries,
			HitRate:      c.stats.HitRate(),
			AvgCompileMs: c.stats.AverageCompilationTimeMs(),
			TimeSavedMs:  c.stats.TimeSavedMs(),
		}
	})
	return u
}

// Policy returns the active eviction policy name.
func (c *RegexCache) Policy() string {
	return c.policy
}
