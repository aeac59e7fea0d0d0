package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	metricSamplesTotal   = "minmax.samples.total"
	metricSamplesSkipped = "minmax.samples.skipped"
	metricMergesTotal    = "minmax.merges.total"
	metricSourceDuration = "minmax.source.duration.seconds"

	attrStatus = "status"

	// StatusOK marks a source that was scanned to the end.
	StatusOK = "ok"
	// StatusError marks a source whose scan failed.
	StatusError = "error"
)

// durationBucketBoundaries covers 1ms to 300s per source.
var durationBucketBoundaries = []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 300}

// ScanMetrics holds the OTel instruments recorded while scanning sources.
// A nil *ScanMetrics records nothing.
type ScanMetrics struct {
	samplesTotal   metric.Int64Counter
	samplesSkipped metric.Int64Counter
	mergesTotal    metric.Int64Counter
	sourceDuration metric.Float64Histogram
}

// NewScanMetrics creates scan metric instruments from the given meter.
func NewScanMetrics(mt metric.Meter) (*ScanMetrics, error) {
	samples, err := mt.Int64Counter(metricSamplesTotal,
		metric.WithDescription("Samples added to trackers"),
		metric.WithUnit("{sample}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricSamplesTotal, err)
	}

	skipped, err := mt.Int64Counter(metricSamplesSkipped,
		metric.WithDescription("Lines skipped because they did not parse"),
		metric.WithUnit("{sample}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricSamplesSkipped, err)
	}

	merges, err := mt.Int64Counter(metricMergesTotal,
		metric.WithDescription("Partial trackers merged into a total"),
		metric.WithUnit("{merge}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricMergesTotal, err)
	}

	duration, err := mt.Float64Histogram(metricSourceDuration,
		metric.WithDescription("Time spent scanning one source"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(durationBucketBoundaries...),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricSourceDuration, err)
	}

	return &ScanMetrics{
		samplesTotal:   samples,
		samplesSkipped: skipped,
		mergesTotal:    merges,
		sourceDuration: duration,
	}, nil
}

// RecordSource records one finished source scan.
func (sm *ScanMetrics) RecordSource(ctx context.Context, status string, samples, skipped int, duration time.Duration) {
	if sm == nil {
		return
	}

	attrs := metric.WithAttributes(attribute.String(attrStatus, status))

	sm.samplesTotal.Add(ctx, int64(samples), attrs)
	sm.samplesSkipped.Add(ctx, int64(skipped), attrs)
	sm.sourceDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordMerges records merged partial trackers.
func (sm *ScanMetrics) RecordMerges(ctx context.Context, merges int) {
	if sm == nil {
		return
	}

	sm.mergesTotal.Add(ctx, int64(merges))
}
