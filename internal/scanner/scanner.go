// Package scanner assembles the analysis pipeline from configuration:
// discover → cache lookup → analyze → collect, with the worker budget
// driven by live system load.
package scanner

import (
	"context"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/zeebo/blake3"
	"go.opentelemetry.io/otel/metric"

	"github.com/greysquirr3l/codeguardian-go/internal/analysis"
	"github.com/greysquirr3l/codeguardian-go/internal/cache"
	"github.com/greysquirr3l/codeguardian-go/internal/config"
	"github.com/greysquirr3l/codeguardian-go/internal/discover"
	"github.com/greysquirr3l/codeguardian-go/internal/engine"
	"github.com/greysquirr3l/codeguardian-go/internal/logging"
	"github.com/greysquirr3l/codeguardian-go/internal/matcher"
	"github.com/greysquirr3l/codeguardian-go/internal/parallelism"
	"github.com/greysquirr3l/codeguardian-go/internal/pool"
)

const bytesPerMB = 1024 * 1024

// Stats holds detailed statistics for the most recent scan.
type Stats struct {
	ScanID         string
	Discovery      discover.Stats
	SnapshotLoaded int
	RegexCache     cache.RegexStats
	ResultCache    cache.ResultStats
	Controller     parallelism.ControllerMetrics
	Duration       time.Duration
}

// Scanner wires discovery, caching, analysis and adaptive parallelism
// into one reusable unit.
type Scanner struct {
	cfg    *config.Config
	logger *logging.Logger
	pools  *pool.Pools

	walker     *discover.Walker
	regexes    *cache.RegexCache
	results    *cache.ResultCache
	analyzer   *analysis.SecurityAnalyzer
	controller *parallelism.Controller
	engine     *engine.Engine

	probes   *parallelism.Probes
	progress engine.ProgressFunc
	meter    metric.Meter

	mu    sync.Mutex
	stats Stats
}

// Option configures a Scanner.
type Option func(*Scanner)

// WithLogger sets the logger. Components get named children of it.
func WithLogger(l *logging.Logger) Option {
	return func(s *Scanner) {
		s.logger = l
	}
}

// WithProgress sets the per-file progress callback.
func WithProgress(fn engine.ProgressFunc) Option {
	return func(s *Scanner) {
		s.progress = fn
	}
}

// WithProbes replaces the system load probes.
func WithProbes(p parallelism.Probes) Option {
	return func(s *Scanner) {
		s.probes = &p
	}
}

// WithMeter sets the meter used for engine metrics.
func WithMeter(m metric.Meter) Option {
	return func(s *Scanner) {
		s.meter = m
	}
}

// New builds a scanner from cfg. cfg should already be validated.
func New(cfg *config.Config, opts ...Option) (*Scanner, error) {
	s := &Scanner{
		cfg:    cfg,
		logger: logging.New(logging.LevelInfo),
		pools:  pool.DefaultPools(),
	}
	for _, opt := range opts {
		opt(s)
	}

	filter, err := discover.NewFilterFromConfig(&discover.FilterConfig{
		IncludeAll:      cfg.IncludeAll,
		IncludePatterns: cfg.IncludePatterns,
		ExcludePatterns: cfg.ExcludePatterns,
	})
	if err != nil {
		return nil, err
	}
	s.walker = discover.NewWalker(
		discover.WithFilter(filter),
		discover.WithFollowSymlinks(cfg.FollowSymlinks),
		discover.WithMaxFileSize(int64(cfg.MaxFileSizeMB)*bytesPerMB),
		discover.WithLogger(s.logger.Named("discover")),
	)

	s.regexes = cache.NewRegexCache(
		cache.WithRegexMaxEntries(cfg.PatternCacheEntries),
		cache.WithRegexMaxAge(cfg.PatternCacheMaxAge),
		cache.WithRegexPolicy(cfg.PatternCachePolicy),
		cache.WithRegexLogger(s.logger.Named("regex-cache")),
	)
	s.results = cache.NewResultCache(
		cache.WithResultMaxEntries(cfg.ResultCacheEntries),
		cache.WithResultMaxMemoryMB(cfg.ResultCacheMemoryMB),
		cache.WithResultPools(s.pools),
		cache.WithResultLogger(s.logger.Named("result-cache")),
	)
	if cfg.CacheEnabled {
		n, err := s.results.LoadSnapshot(s.SnapshotPath())
		if err != nil {
			// A stale or corrupt snapshot only costs a cold cache.
			s.logger.Warning("Ignoring result cache snapshot: %v", err)
		} else if n > 0 {
			s.logger.Debug("Loaded %d cached results from %s", n, s.SnapshotPath())
		}
		s.stats.SnapshotLoaded = n
	}

	m, err := matcher.NewDefault()
	if err != nil {
		return nil, fmt.Errorf("building matcher: %w", err)
	}
	content := matcher.NewContentAnalyzer(m, matcher.WithChunkSize(cfg.MatcherChunkKB*1024))

	var store cache.ResultStore = cache.NoOpResultStore{}
	if cfg.CacheEnabled {
		store = s.results
	}
	s.analyzer, err = analysis.New(content,
		analysis.WithRules(analysis.ParseRules(cfg.ExtraPatterns)...),
		analysis.WithRegexCache(s.regexes),
		analysis.WithResultStore(store, cfg.Hash()),
		analysis.WithPools(s.pools),
		analysis.WithLogger(s.logger.Named("analysis")),
	)
	if err != nil {
		return nil, err
	}

	controllerLog := s.logger.Named("parallelism")
	s.controller = parallelism.NewController(cfg.MinWorkers, cfg.MaxWorkers, cfg.InitialWorkers,
		parallelism.WithAdjustmentInterval(cfg.AdjustmentInterval),
		parallelism.WithControllerLogger(controllerLog),
		parallelism.WithOnAdjust(func(from, to int, avg float64) {
			controllerLog.Verbose("Workers %d -> %d (average load %.2f)", from, to, avg)
		}),
	)

	engineOpts := []engine.Option{
		engine.WithBudget(s.controller),
		engine.WithMaxParallelFiles(cfg.MaxWorkers),
		engine.WithMemoryLimitMB(cfg.MemoryLimitMB),
		engine.WithStreamingThreshold(int64(cfg.StreamingThresholdMB) * bytesPerMB),
		engine.WithIOLimit(int64(cfg.IOLimitMBps) * bytesPerMB),
		engine.WithPools(s.pools),
		engine.WithLogger(s.logger.Named("engine")),
		engine.WithProgress(s.progress),
	}
	if cfg.StreamingChunkKB > 0 {
		engineOpts = append(engineOpts, engine.WithStreamingChunkSize(cfg.StreamingChunkKB*1024))
	}
	if s.meter != nil {
		engineOpts = append(engineOpts, engine.WithMeter(s.meter))
	}
	s.engine = engine.New(engineOpts...)

	return s, nil
}

// SnapshotPath is where the result cache is persisted between runs.
func (s *Scanner) SnapshotPath() string {
	return filepath.Join(s.cfg.CacheDirectory, cache.SnapshotFileName)
}

// Analyzer returns the security analyzer used for every file.
func (s *Scanner) Analyzer() *analysis.SecurityAnalyzer {
	return s.analyzer
}

// GenerateScanID creates a deterministic scan ID from the inputs.
func GenerateScanID(paths []string, timestamp time.Time) string {
	sorted := make([]string, len(paths))
	copy(sorted, paths)
	sort.Strings(sorted)

	h := blake3.New()
	for _, p := range sorted {
		_, _ = h.Write([]byte(p))
		_, _ = h.Write([]byte{0})
	}
	_, _ = h.Write([]byte(timestamp.UTC().Format(time.RFC3339)))
	return hex.EncodeToString(h.Sum(nil))[:16]
}

// Scan discovers the files under paths and analyzes them. The load
// monitor runs for the duration of the batch. On cancellation the
// partial results are returned together with the context error.
func (s *Scanner) Scan(ctx context.Context, paths []string) (*engine.AnalysisResults, error) {
	if len(paths) == 0 {
		return nil, engine.NewFileError(engine.CodeValidation, "", "scan", "no paths to scan", nil)
	}

	start := time.Now()
	scanID := GenerateScanID(paths, start)
	s.logger.Debug("Starting scan %s", scanID)

	files, walkStats, err := s.walker.Walk(ctx, paths)
	s.mu.Lock()
	s.stats.ScanID = scanID
	s.stats.Discovery = walkStats
	s.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("discovering files: %w", err)
	}
	s.logger.Verbose("Discovered %d files to analyze (%d filtered, %d skipped)",
		len(files), walkStats.Filtered, walkStats.Skipped)

	monitorOpts := []parallelism.MonitorOption{
		parallelism.WithMonitorInterval(s.cfg.MonitorInterval),
		parallelism.WithMonitorLogger(s.logger.Named("monitor")),
	}
	if s.probes != nil {
		monitorOpts = append(monitorOpts, parallelism.WithProbes(*s.probes))
	}
	monitor := parallelism.NewMonitor(s.controller, monitorOpts...)
	monitor.Start(ctx)
	defer monitor.Stop()

	results, err := s.engine.AnalyzeBatch(ctx, files, s.analyzer)

	s.mu.Lock()
	s.stats.Duration = time.Since(start)
	s.mu.Unlock()
	return results, err
}

// Stats returns a snapshot of the scanner's statistics.
func (s *Scanner) Stats() Stats {
	s.mu.Lock()
	stats := s.stats
	s.mu.Unlock()

	stats.RegexCache = s.regexes.Stats()
	stats.ResultCache = s.results.Stats()
	stats.Controller = s.controller.Metrics()
	return stats
}

// Close prunes both caches and, when caching is enabled, persists the
// result cache.
func (s *Scanner) Close() error {
	expired := s.results.Cleanup(s.cfg.ResultCacheTTLHours)
	pruned := s.regexes.Cleanup()
	s.logger.Debug("Cache cleanup: %d results expired, %d patterns pruned", expired, pruned)

	if !s.cfg.CacheEnabled {
		return nil
	}
	if err := s.results.SaveSnapshot(s.SnapshotPath()); err != nil {
		return fmt.Errorf("saving result cache: %w", err)
	}
	return nil
}
