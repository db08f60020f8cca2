package engine

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
)

// MeterName is the instrumentation scope of the engine's metrics and spans.
const MeterName = "codeguardian/engine"

// SpanAnalyzeBatch names the span covering one AnalyzeBatch call.
const SpanAnalyzeBatch = "engine.analyze_batch"

// Instrument names.
const (
	MetricFilesAnalyzed = "engine.files.analyzed"
	MetricFilesFailed   = "engine.files.failed"
	MetricFindings      = "engine.findings"
	MetricFileDuration  = "engine.file.duration"
	MetricBytesRead     = "engine.bytes.read"
)

type instruments struct {
	filesAnalyzed metric.Int64Counter
	filesFailed   metric.Int64Counter
	findings      metric.Int64Counter
	fileDuration  metric.Float64Histogram
	bytesRead     metric.Int64Counter
}

func defaultMeter() metric.Meter {
	return otel.Meter(MeterName)
}

func defaultTracer() trace.Tracer {
	return otel.Tracer(MeterName)
}

func newInstruments(m metric.Meter) (*instruments, error) {
	var (
		inst instruments
		err  error
	)
	if inst.filesAnalyzed, err = m.Int64Counter(MetricFilesAnalyzed,
		metric.WithDescription("Files analyzed successfully"), metric.WithUnit("{file}")); err != nil {
		return nil, err
	}
	if inst.filesFailed, err = m.Int64Counter(MetricFilesFailed,
		metric.WithDescription("Files that could not be analyzed"), metric.WithUnit("{file}")); err != nil {
		return nil, err
	}
	if inst.findings, err = m.Int64Counter(MetricFindings,
		metric.WithDescription("Findings reported by analyzers"), metric.WithUnit("{finding}")); err != nil {
		return nil, err
	}
	if inst.fileDuration, err = m.Float64Histogram(MetricFileDuration,
		metric.WithDescription("Per-file analysis time"), metric.WithUnit("ms")); err != nil {
		return nil, err
	}
	if inst.bytesRead, err = m.Int64Counter(MetricBytesRead,
		metric.WithDescription("Bytes read from analyzed files"), metric.WithUnit("By")); err != nil {
		return nil, err
	}
	return &inst, nil
}

func noopInstruments() *instruments {
	inst, _ := newInstruments(noop.NewMeterProvider().Meter(MeterName))
	return inst
}

func (i *instruments) recordFile(ctx context.Context, mode string, findings int, bytes int64, elapsed time.Duration) {
	attrs := metric.WithAttributes(attribute.String("mode", mode))
	i.filesAnalyzed.Add(ctx, 1, attrs)
	i.findings.Add(ctx, int64(findings), attrs)
	i.bytesRead.Add(ctx, bytes, attrs)
	i.fileDuration.Record(ctx, float64(elapsed.Microseconds())/1000, attrs)
}

func (i *instruments) recordFailure(ctx context.Context, mode string, code ErrorCode) {
	i.filesFailed.Add(ctx, 1, metric.WithAttributes(
		attribute.String("mode", mode),
		attribute.String("code", string(code)),
	))
}
