// Package engine analyzes batches of files under a concurrency budget and
// a memory ceiling. Small files are read whole and analyzed in parallel;
// large files are streamed through the analyzer in fixed-size chunks.
package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"
	"time"

	"github.com/sourcegraph/conc"
	"github.com/sourcegraph/conc/panics"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/greysquirr3l/codeguardian-go/internal/finding"
	"github.com/greysquirr3l/codeguardian-go/internal/logging"
	"github.com/greysquirr3l/codeguardian-go/internal/pool"
)

// Engine defaults.
const (
	DefaultMemoryLimitMB      = 512
	DefaultStreamingThreshold = 5 * 1024 * 1024
	MaxParallelFilesCap       = 16
	MinStreamingChunkSize     = 64 * 1024

	bytesPerMB = 1024 * 1024
)

// Analyzer produces findings for one file, or one chunk of a large file.
// content is only valid for the duration of the call; implementations
// must copy anything they keep. Analyze may be called concurrently.
type Analyzer interface {
	Analyze(ctx context.Context, path string, content []byte) ([]finding.Finding, error)
}

// AnalyzerFunc adapts a function to Analyzer.
type AnalyzerFunc func(ctx context.Context, path string, content []byte) ([]finding.Finding, error)

// Analyze calls f.
func (f AnalyzerFunc) Analyze(ctx context.Context, path string, content []byte) ([]finding.Finding, error) {
	return f(ctx, path, content)
}

// ProgressFunc receives (completed, total) after each file finishes,
// successfully or not. Calls are serialized.
type ProgressFunc func(done, total int)

// DefaultMaxParallelFiles is twice the core count, capped at 16.
func DefaultMaxParallelFiles() int {
	return min(runtime.NumCPU()*2, MaxParallelFilesCap)
}

// Engine runs batch analyses. It holds no per-batch state and may run
// several batches at once.
type Engine struct {
	maxParallel        int
	memoryLimitMB      int
	streamingThreshold int64
	streamingChunkSize int
	ioLimit            int64

	budget   Budget
	progress ProgressFunc
	logger   *logging.Logger
	pools    *pool.Pools
	meter    metric.Meter
	inst     *instruments
	tracer   trace.Tracer
}

// Option configures an Engine.
type Option func(*Engine)

// WithBudget sets the source of the concurrency limit.
func WithBudget(b Budget) Option {
	return func(e *Engine) {
		e.budget = b
	}
}

// WithMaxParallelFiles sets the parallelism used for chunk sizing, and
// the fixed budget when no Budget is given.
func WithMaxParallelFiles(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxParallel = n
		}
	}
}

// WithMemoryLimitMB sets the memory ceiling used for chunk sizing.
func WithMemoryLimitMB(mb int) Option {
	return func(e *Engine) {
		if mb > 0 {
			e.memoryLimitMB = mb
		}
	}
}

// WithStreamingThreshold sets the size at which files are streamed.
func WithStreamingThreshold(bytes int64) Option {
	return func(e *Engine) {
		if bytes > 0 {
			e.streamingThreshold = bytes
		}
	}
}

// WithStreamingChunkSize overrides the derived streaming chunk size.
func WithStreamingChunkSize(bytes int) Option {
	return func(e *Engine) {
		if bytes > 0 {
			e.streamingChunkSize = bytes
		}
	}
}

// WithProgress registers a progress callback.
func WithProgress(fn ProgressFunc) Option {
	return func(e *Engine) {
		e.progress = fn
	}
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// WithPools sets the buffer pools used for file content.
func WithPools(p *pool.Pools) Option {
	return func(e *Engine) {
		e.pools = p
	}
}

// WithIOLimit throttles reads to bytesPerSecond. Zero disables it.
func WithIOLimit(bytesPerSecond int64) Option {
	return func(e *Engine) {
		e.ioLimit = bytesPerSecond
	}
}

// WithMeter sets the meter for engine metrics.
func WithMeter(m metric.Meter) Option {
	return func(e *Engine) {
		e.meter = m
	}
}

// WithTracer sets the tracer for batch spans.
func WithTracer(t trace.Tracer) Option {
	return func(e *Engine) {
		e.tracer = t
	}
}

// New creates an engine.
func New(opts ...Option) *Engine {
	e := &Engine{
		maxParallel:        DefaultMaxParallelFiles(),
		memoryLimitMB:      DefaultMemoryLimitMB,
		streamingThreshold: DefaultStreamingThreshold,
		logger:             logging.New(logging.LevelInfo),
	}
	for _, opt := range opts {
		opt(e)
	}

	if e.budget == nil {
		e.budget = FixedBudget(e.maxParallel)
	}
	if e.pools == nil {
		e.pools = pool.DefaultPools()
	}
	if e.meter == nil {
		e.meter = defaultMeter()
	}
	if e.tracer == nil {
		e.tracer = defaultTracer()
	}
	inst, err := newInstruments(e.meter)
	if err != nil {
		e.logger.Warning("engine metrics disabled: %v", err)
		inst = noopInstruments()
	}
	e.inst = inst
	return e
}

// SmallChunkSize returns how many small files are dispatched together
// for a batch of n small files: the per-file memory share in MB, at
// least 1, but no more than n/maxParallel+1.
func (e *Engine) SmallChunkSize(n int) int {
	memPerFile := e.memoryLimitMB * bytesPerMB / e.maxParallel
	perChunk := max(memPerFile/bytesPerMB, 1)
	return min(perChunk, n/e.maxParallel+1)
}

// StreamingChunkSize returns the read size for large files.
func (e *Engine) StreamingChunkSize() int {
	if e.streamingChunkSize > 0 {
		return e.streamingChunkSize
	}
	return max(e.memoryLimitMB*bytesPerMB/e.maxParallel/4, MinStreamingChunkSize)
}

// partition splits files by size. Files that cannot be stat'd are
// treated as small; the read reports the error.
func (e *Engine) partition(files []string) (small, large []string) {
	for _, path := range files {
		info, err := os.Stat(path)
		if err != nil || info.Size() < e.streamingThreshold {
			small = append(small, path)
			continue
		}
		large = append(large, path)
	}
	return small, large
}

// AnalyzeBatch runs analyzer over files. Per-file failures are collected
// in the result and never abort the batch. If ctx is cancelled, dispatch
// stops, in-flight files finish, and the partial results are returned
// together with the context error.
func (e *Engine) AnalyzeBatch(ctx context.Context, files []string, analyzer Analyzer) (*AnalysisResults, error) {
	if analyzer == nil {
		return nil, ErrNoAnalyzer
	}
	start := time.Now()

	small, large := e.partition(files)
	e.logger.Debug("analyzing %d files (%d small, %d large)", len(files), len(small), len(large))

	ctx, span := e.tracer.Start(ctx, SpanAnalyzeBatch, trace.WithAttributes(
		attribute.Int("files.small", len(small)),
		attribute.Int("files.large", len(large)),
	))
	defer span.End()

	b := &batch{
		engine:   e,
		analyzer: analyzer,
		gate:     newGate(e.budget),
		col:      newCollector(len(files), e.progress, NewFileErrorStats()),
	}
	if e.ioLimit > 0 {
		b.limiter = newIOLimiter(e.ioLimit, defaultTokenBytes)
		defer b.limiter.close()
	}

	err := b.runSmall(ctx, small)
	if err == nil {
		err = b.runLarge(ctx, large)
	}

	res := b.col.results()
	res.Summary.SmallFiles = len(small)
	res.Summary.LargeFiles = len(large)
	res.Summary.PeakConcurrency = b.gate.peakInFlight()
	res.Summary.ScanDurationMs = uint64(time.Since(start).Milliseconds())

	e.logger.Debug("batch done: %d files, %d failed, %d findings in %dms",
		res.Summary.TotalFilesScanned, res.Summary.FilesFailed,
		res.Summary.TotalFindings, res.Summary.ScanDurationMs)

	span.SetAttributes(
		attribute.Int("files.scanned", res.Summary.TotalFilesScanned),
		attribute.Int("files.failed", res.Summary.FilesFailed),
		attribute.Int("findings", res.Summary.TotalFindings),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "batch interrupted")
		return res, fmt.Errorf("batch interrupted: %w", err)
	}
	return res, nil
}

// batch is the state of one AnalyzeBatch call.
type batch struct {
	engine   *Engine
	analyzer Analyzer
	gate     *gate
	col      *collector
	limiter  *ioLimiter
}

// runSmall dispatches small files chunk by chunk. Each file holds one
// permit while it runs; a chunk completes before the next starts.
func (b *batch) runSmall(ctx context.Context, files []string) error {
	if len(files) == 0 {
		return nil
	}
	chunk := b.engine.SmallChunkSize(len(files))

	for start := 0; start < len(files); start += chunk {
		end := min(start+chunk, len(files))

		var wg conc.WaitGroup
		for _, path := range files[start:end] {
			if err := b.gate.acquire(ctx); err != nil {
				wg.Wait()
				return err
			}
			wg.Go(func() {
				defer b.gate.release()
				b.analyzeSmall(ctx, path)
			})
		}
		wg.Wait()
	}
	return ctx.Err()
}

// runLarge dispatches large files. Each streams its chunks in order
// while holding one permit.
func (b *batch) runLarge(ctx context.Context, files []string) error {
	var wg conc.WaitGroup
	for _, path := range files {
		if err := b.gate.acquire(ctx); err != nil {
			wg.Wait()
			return err
		}
		wg.Go(func() {
			defer b.gate.release()
			b.analyzeLarge(ctx, path)
		})
	}
	wg.Wait()
	return ctx.Err()
}

func (b *batch) analyzeSmall(ctx context.Context, path string) {
	start := time.Now()
	if err := ctx.Err(); err != nil {
		b.fail(ctx, "small", errCancelled(path, err))
		return
	}

	f, err := os.Open(path) // #nosec G304 -- analyzing caller-supplied paths
	if err != nil {
		b.fail(ctx, "small", errFileAccess(path, err))
		return
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		b.fail(ctx, "small", errFileAccess(path, err))
		return
	}
	size := info.Size()

	if b.limiter != nil {
		if err := b.limiter.wait(ctx, size); err != nil {
			b.fail(ctx, "small", NewFileError(CodeRateLimited, path, "read", "rate limit wait failed", err))
			return
		}
	}

	content := b.engine.pools.Content.GetForSize(size)
	defer b.engine.pools.Content.Put(content)

	n, err := io.ReadFull(f, content[:size])
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		b.fail(ctx, "small", errFileRead(path, err))
		return
	}

	findings, ferr := b.invoke(ctx, path, content[:n])
	if ferr != nil {
		b.fail(ctx, "small", ferr)
		return
	}
	b.succeed(ctx, "small", findings, int64(n), time.Since(start))
}

// invoke runs the analyzer, converting errors and panics to FileErrors.
func (b *batch) invoke(ctx context.Context, path string, content []byte) ([]finding.Finding, *FileError) {
	var (
		findings []finding.Finding
		err      error
		pc       panics.Catcher
	)
	pc.Try(func() {
		findings, err = b.analyzer.Analyze(ctx, path, content)
	})
	if r := pc.Recovered(); r != nil {
		b.engine.logger.Warning("analyzer panicked on %s: %v", path, r.Value)
		return nil, errAnalyzerPanic(path, r.AsError()).WithContext("stack", string(r.Stack))
	}
	if err != nil {
		var fe *FileError
		if errors.As(err, &fe) {
			return nil, fe
		}
		return nil, errAnalyzer(path, err)
	}
	return findings, nil
}

func (b *batch) succeed(ctx context.Context, mode string, findings []finding.Finding, bytes int64, elapsed time.Duration) {
	b.engine.inst.recordFile(ctx, mode, len(findings), bytes, elapsed)
	b.col.addFindings(findings, bytes)
}

func (b *batch) fail(ctx context.Context, mode string, err *FileError) {
	b.engine.logger.Debug("%v", err)
	b.engine.inst.recordFailure(ctx, mode, err.Code)
	b.col.addFailure(err)
}
