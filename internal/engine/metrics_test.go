package engine

import (
	"context"
	"path/filepath"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func collectSums(t *testing.T, reader *sdkmetric.ManualReader) map[string]int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("collect: %v", err)
	}

	sums := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			switch data := m.Data.(type) {
			case metricdata.Sum[int64]:
				for _, dp := range data.DataPoints {
					sums[m.Name] += dp.Value
				}
			case metricdata.Histogram[float64]:
				for _, dp := range data.DataPoints {
					sums[m.Name] += int64(dp.Count)
				}
			}
		}
	}
	return sums
}

func TestEngineMetrics(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer func() { _ = provider.Shutdown(context.Background()) }()

	files := writeFiles(t, 3, func(int) string { return "hit\nhit\n" })
	files = append(files, filepath.Join(t.TempDir(), "missing.go"))

	e := New(WithLogger(quietLogger()), WithMeter(provider.Meter(MeterName)))
	if _, err := e.AnalyzeBatch(context.Background(), files, lineAnalyzer("hit")); err != nil {
		t.Fatal(err)
	}

	sums := collectSums(t, reader)
	want := map[string]int64{
		MetricFilesAnalyzed: 3,
		MetricFilesFailed:   1,
		MetricFindings:      6,
		MetricFileDuration:  3,
		MetricBytesRead:     24,
	}
	for name, v := range want {
		if sums[name] != v {
			t.Errorf("%s = %d, want %d", name, sums[name], v)
		}
	}
}

func TestNoopInstruments(t *testing.T) {
	inst := noopInstruments()
	if inst == nil {
		t.Fatal("noop instruments must not be nil")
	}
	inst.recordFile(context.Background(), "small", 1, 10, 0)
	inst.recordFailure(context.Background(), "small", CodeFileRead)
}

func spanAttrs(kvs []attribute.KeyValue) map[attribute.Key]int64 {
	out := make(map[attribute.Key]int64, len(kvs))
	for _, kv := range kvs {
		out[kv.Key] = kv.Value.AsInt64()
	}
	return out
}

func TestEngineBatchSpan(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	defer func() { _ = provider.Shutdown(context.Background()) }()

	files := writeFiles(t, 2, func(int) string { return "hit\n" })
	files = append(files, filepath.Join(t.TempDir(), "missing.go"))

	e := New(WithLogger(quietLogger()), WithTracer(provider.Tracer(MeterName)))
	if _, err := e.AnalyzeBatch(context.Background(), files, lineAnalyzer("hit")); err != nil {
		t.Fatal(err)
	}

	spans := recorder.Ended()
	if len(spans) != 1 || spans[0].Name() != SpanAnalyzeBatch {
		t.Fatalf("expected one %s span, got %d", SpanAnalyzeBatch, len(spans))
	}
	attrs := spanAttrs(spans[0].Attributes())
	if attrs["files.scanned"] != 3 || attrs["files.failed"] != 1 || attrs["findings"] != 2 {
		t.Errorf("unexpected span attributes: %v", attrs)
	}
	if spans[0].Status().Code == codes.Error {
		t.Error("per-file failures must not fail the batch span")
	}
}

func TestEngineBatchSpanCancelled(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	defer func() { _ = provider.Shutdown(context.Background()) }()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	e := New(WithLogger(quietLogger()), WithTracer(provider.Tracer(MeterName)))
	if _, err := e.AnalyzeBatch(ctx, writeFiles(t, 2, func(int) string { return "x\n" }), lineAnalyzer("hit")); err == nil {
		t.Fatal("expected a cancellation error")
	}

	spans := recorder.Ended()
	if len(spans) != 1 || spans[0].Status().Code != codes.Error {
		t.Errorf("expected an errored batch span, got %+v", spans)
	}
}
