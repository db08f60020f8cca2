package cache

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"time"
	"unsafe"

	"github.com/zeebo/blake3"

	"github.com/greysquirr3l/codeguardian-go/internal/finding"
	"github.com/greysquirr3l/codeguardian-go/internal/logging"
	"github.com/greysquirr3l/codeguardian-go/internal/pool"
)

// Result cache defaults.
const (
	DefaultResultMaxEntries  = 1000
	DefaultResultMaxMemoryMB = 100

	bytesPerMB = 1024 * 1024
)

// ResultStore is the result cache surface consumed by analyzers.
type ResultStore interface {
	Get(path, configHash string) ([]finding.Finding, bool)
	Put(path string, findings []finding.Finding, configHash string, durationMs uint64) error
	Cleanup(maxAgeHours float64) int
}

// NoOpResultStore caches nothing.
type NoOpResultStore struct{}

// Get always misses.
func (NoOpResultStore) Get(string, string) ([]finding.Finding, bool) { return nil, false }

// Put does nothing.
func (NoOpResultStore) Put(string, []finding.Finding, string, uint64) error { return nil }

// Cleanup removes nothing.
func (NoOpResultStore) Cleanup(float64) int { return 0 }

// FileMetadata identifies the state of a file at analysis time.
type FileMetadata struct {
	Hash         string
	ModifiedTime int64
	Size         int64
}

// ResultEntry holds the findings for one file.
type ResultEntry struct {
	Findings           []finding.Finding `json:"findings"`
	FileHash           string            `json:"file_hash"`
	ConfigHash         string            `json:"config_hash"`
	ModifiedTime       int64             `json:"modified_time"`
	FileSize           int64             `json:"file_size"`
	AccessCount        uint64            `json:"access_count"`
	LastAccessed       time.Time         `json:"last_accessed"`
	CreatedAt          time.Time         `json:"created_at"`
	AnalysisDurationMs uint64            `json:"analysis_duration_ms"`

	memSize int
}

// valid reports whether the entry still describes the file under cfg.
func (e *ResultEntry) valid(md FileMetadata, configHash string) bool {
	return e.ConfigHash == configHash &&
		e.ModifiedTime == md.ModifiedTime &&
		e.FileSize == md.Size &&
		e.FileHash == md.Hash
}

var entryOverhead = int(unsafe.Sizeof(ResultEntry{}))

// estimateSize approximates the memory held by an entry.
func estimateSize(findings []finding.Finding, fileHash, configHash string) int {
	size := entryOverhead + len(findings)*finding.StructSize + len(fileHash) + len(configHash)
	for i := range findings {
		size += findings[i].HeapSize()
	}
	return size
}

// ResultStats holds running result cache counters.
type ResultStats struct {
	TotalRequests       uint64
	CacheHits           uint64
	CacheMisses         uint64
	ConfigMisses        uint64
	FileChangedMisses   uint64
	FileErrorMisses     uint64
	EntriesAdded        uint64
	EntriesRejected     uint64
	EntriesEvicted      uint64
	EntriesExpired      uint64
	TotalHitTimeSavedMs uint64
}

// HitRate is hits over total requests.
func (s ResultStats) HitRate() float64 {
	if s.TotalRequests == 0 {
		return 0
	}
	return float64(s.CacheHits) / float64(s.TotalRequests)
}

// ResultUtilization is a point-in-time view of the result cache.
type ResultUtilization struct {
	EntryCount     int
	MaxEntries     int
	MemoryUsageMB  float64
	MaxMemoryMB    int
	HitRate        float64
	AvgEntrySizeKB float64
}

// ResultCache maps file paths to findings, valid only while both the file
// content and the analysis configuration are unchanged.
type ResultCache struct {
	guard       guard
	entries     map[string]*ResultEntry
	stats       ResultStats
	memoryUsage int
	maxEntries  int
	maxMemoryMB int
	weights     PriorityWeights
	pools       *pool.Pools
	now         func() time.Time
	metadata    func(path string) (FileMetadata, error)
}

// ResultOption configures a ResultCache.
type ResultOption func(*ResultCache)

// WithResultMaxEntries sets the entry ceiling.
func WithResultMaxEntries(n int) ResultOption {
	return func(c *ResultCache) {
		if n > 0 {
			c.maxEntries = n
		}
	}
}

// WithResultMaxMemoryMB sets the memory ceiling.
func WithResultMaxMemoryMB(mb int) ResultOption {
	return func(c *ResultCache) {
		if mb > 0 {
			c.maxMemoryMB = mb
		}
	}
}

// WithResultWeights overrides the priority score weights.
func WithResultWeights(w PriorityWeights) ResultOption {
	return func(c *ResultCache) {
		c.weights = w
	}
}

// WithResultPools sets the pools evicted finding slices are returned to.
func WithResultPools(p *pool.Pools) ResultOption {
	return func(c *ResultCache) {
		if p != nil {
			c.pools = p
		}
	}
}

// WithResultLogger sets the logger.
func WithResultLogger(l *logging.Logger) ResultOption {
	return func(c *ResultCache) {
		c.guard.logger = l
	}
}

// WithResultClock replaces the time source.
func WithResultClock(now func() time.Time) ResultOption {
	return func(c *ResultCache) {
		c.now = now
	}
}

// NewResultCache creates an empty result cache.
func NewResultCache(opts ...ResultOption) *ResultCache {
	c := &ResultCache{
		entries:     make(map[string]*ResultEntry),
		maxEntries:  DefaultResultMaxEntries,
		maxMemoryMB: DefaultResultMaxMemoryMB,
		weights:     DefaultResultWeights,
		now:         time.Now,
		metadata:    ReadFileMetadata,
	}
	c.guard.logger = logging.New(logging.LevelInfo)

	for _, opt := range opts {
		opt(c)
	}
	if c.pools == nil {
		c.pools = pool.DefaultPools()
	}
	return c
}

// ReadFileMetadata stats path and hashes its content with blake3.
func ReadFileMetadata(path string) (FileMetadata, error) {
	f, err := os.Open(path) // #nosec G304 -- analyzing caller-supplied paths
	if err != nil {
		return FileMetadata{}, fmt.Errorf("opening %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		return FileMetadata{}, fmt.Errorf("stat %s: %w", path, err)
	}

	h := blake3.New()
	if _, err := io.Copy(h, f); err != nil {
		return FileMetadata{}, fmt.Errorf("hashing %s: %w", path, err)
	}

	return FileMetadata{
		Hash:         hex.EncodeToString(h.Sum(nil)),
		ModifiedTime: info.ModTime().Unix(),
		Size:         info.Size(),
	}, nil
}

// Get returns a copy of the cached findings for path when the entry is
// still valid for the file and configHash. Any mismatch or file error
// evicts the entry and counts as a miss.
func (c *ResultCache) Get(path, configHash string) ([]finding.Finding, bool) {
	var entry *ResultEntry
	c.guard.do("result cache lookup", func() {
		c.stats.TotalRequests++
		e, ok := c.entries[path]
		if !ok {
			c.stats.CacheMisses++
			return
		}
		if e.ConfigHash != configHash {
			c.stats.ConfigMisses++
			c.stats.CacheMisses++
			c.removeLocked(path)
			return
		}
		entry = e
	})
	if entry == nil {
		return nil, false
	}

	md, mdErr := c.metadata(path)

	var out []finding.Finding
	c.guard.do("result cache validate", func() {
		// The entry may have been replaced or evicted while unlocked.
		if c.entries[path] != entry {
			c.stats.CacheMisses++
			return
		}
		if mdErr != nil {
			c.stats.FileErrorMisses++
			c.stats.CacheMisses++
			c.removeLocked(path)
			return
		}
		if !entry.valid(md, configHash) {
			c.stats.FileChangedMisses++
			c.stats.CacheMisses++
			c.removeLocked(path)
			return
		}

		entry.AccessCount++
		entry.LastAccessed = c.now()
		c.stats.CacheHits++
		c.stats.TotalHitTimeSavedMs += entry.AnalysisDurationMs

		out = make([]finding.Finding, len(entry.Findings))
		copy(out, entry.Findings)
	})
	return out, out != nil
}

// Put caches findings for path under configHash. It fails only when the
// file cannot be read to compute its metadata.
func (c *ResultCache) Put(path string, findings []finding.Finding, configHash string, durationMs uint64) error {
	md, err := c.metadata(path)
	if err != nil {
		return fmt.Errorf("caching results: %w", err)
	}
	c.insert(path, md, findings, configHash, durationMs, c.now(), 1)
	return nil
}

func (c *ResultCache) insert(path string, md FileMetadata, findings []finding.Finding,
	configHash string, durationMs uint64, lastAccessed time.Time, accessCount uint64) {
	owned := c.pools.Findings.Get()
	owned = append(owned, findings...)

	size := estimateSize(owned, md.Hash, configHash)
	limit := c.maxMemoryMB * bytesPerMB

	stored := c.guard.do("result cache insert", func() {
		if size > limit {
			c.stats.EntriesRejected++
			c.pools.Findings.Put(owned)
			return
		}

		c.removeLocked(path)
		c.ensureCapacity(size)

		now := c.now()
		c.entries[path] = &ResultEntry{
			Findings:           owned,
			FileHash:           md.Hash,
			ConfigHash:         configHash,
			ModifiedTime:       md.ModifiedTime,
			FileSize:           md.Size,
			AccessCount:        accessCount,
			LastAccessed:       lastAccessed,
			CreatedAt:          now,
			AnalysisDurationMs: durationMs,
			memSize:            size,
		}
		c.memoryUsage += size
		c.stats.EntriesAdded++
	})
	if !stored {
		c.guard.logger.Debug("result cache: dropped entry for %s", path)
	}
}

// ensureCapacity evicts lowest-priority entries until an entry of newSize
// fits under both ceilings. Caller holds the lock.
func (c *ResultCache) ensureCapacity(newSize int) {
	limit := c.maxMemoryMB * bytesPerMB
	now := c.now()
	for len(c.entries) > 0 && (c.memoryUsage+newSize > limit || len(c.entries) >= c.maxEntries) {
		victim, ok := c.lowestPriority(now)
		if !ok {
			return
		}
		c.removeLocked(victim)
		c.stats.EntriesEvicted++
	}
}

func (c *ResultCache) lowestPriority(now time.Time) (string, bool) {
	var (
		victim string
		best   float64
		found  bool
	)
	for key, e := range c.entries {
		score := c.weights.Score(e.AccessCount, now.Sub(e.LastAccessed), float64(e.FileSize))
		if !found || score < best {
			victim, best, found = key, score, true
		}
	}
	return victim, found
}

// removeLocked drops path and returns its findings slice to the pool.
func (c *ResultCache) removeLocked(path string) {
	e, ok := c.entries[path]
	if !ok {
		return
	}
	delete(c.entries, path)
	c.memoryUsage -= e.memSize
	c.pools.Findings.Put(e.Findings)
	e.Findings = nil
}

// Cleanup removes entries not accessed within maxAgeHours and returns
// how many were removed.
func (c *ResultCache) Cleanup(maxAgeHours float64) int {
	maxAge := time.Duration(maxAgeHours * float64(time.Hour))
	removed := 0
	c.guard.do("result cache cleanup", func() {
		now := c.now()
		for path, e := range c.entries {
			if now.Sub(e.LastAccessed) >= maxAge {
				c.removeLocked(path)
				c.stats.EntriesExpired++
				removed++
			}
		}
	})
	return removed
}

// Clear drops every entry. Counters are kept.
func (c *ResultCache) Clear() {
	c.guard.do("result cache clear", func() {
		for path := range c.entries {
			c.removeLocked(path)
		}
		c.memoryUsage = 0
	})
}

// Len returns the number of cached files.
func (c *ResultCache) Len() int {
	n := 0
	c.guard.do("result cache len", func() {
		n = len(c.entries)
	})
	return n
}

// MemoryUsage returns the tracked footprint in bytes.
func (c *ResultCache) MemoryUsage() int {
	n := 0
	c.guard.do("result cache memory", func() {
		n = c.memoryUsage
	})
	return n
}

// Stats returns a copy of the counters.
func (c *ResultCache) Stats() ResultStats {
	var s ResultStats
	c.guard.do("result cache stats", func() {
		s = c.stats
	})
	return s
}

// Utilization returns fill level and efficiency figures.
func (c *ResultCache) Utilization() ResultUtilization {
	var u ResultUtilization
	c.guard.do("result cache utilization", func() {
		u = ResultUtilization{
			EntryCount:    len(c.entries),
			MaxEntries:    c.maxEntries,
			MemoryUsageMB: float64(c.memoryUsage) / bytesPerMB,
			MaxMemoryMB:   c.maxMemoryMB,
			HitRate:       c.stats.HitRate(),
		}
		if len(c.entries) > 0 {
			u.AvgEntrySizeKB = float64(c.memoryUsage) / float64(len(c.entries)) / 1024
		}
	})
	return u
}
