package observability_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/Sumatoshi-tech/commute/pkg/observability"
)

func setupTestMeter(t *testing.T) (*observability.ScanMetrics, *sdkmetric.ManualReader) {
	t.Helper()

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	metrics, err := observability.NewScanMetrics(mp.Meter("test"))
	require.NoError(t, err)

	return metrics, reader
}

func collectMetrics(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()

	var rm metricdata.ResourceMetrics

	err := reader.Collect(context.Background(), &rm)
	require.NoError(t, err)

	return rm
}

func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for idx := range rm.ScopeMetrics {
		for midx := range rm.ScopeMetrics[idx].Metrics {
			if rm.ScopeMetrics[idx].Metrics[midx].Name == name {
				return &rm.ScopeMetrics[idx].Metrics[midx]
			}
		}
	}

	return nil
}

func sumInt64(t *testing.T, m *metricdata.Metrics) int64 {
	t.Helper()

	require.NotNil(t, m)

	sum, ok := m.Data.(metricdata.Sum[int64])
	require.True(t, ok)

	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}

	return total
}

func TestScanMetrics_RecordSource(t *testing.T) {
	t.Parallel()

	metrics, reader := setupTestMeter(t)
	ctx := context.Background()

	metrics.RecordSource(ctx, observability.StatusOK, 100, 4, 50*time.Millisecond)
	metrics.RecordSource(ctx, observability.StatusOK, 20, 0, 10*time.Millisecond)

	rm := collectMetrics(t, reader)

	assert.Equal(t, int64(120), sumInt64(t, findMetric(rm, "minmax.samples.total")))
	assert.Equal(t, int64(4), sumInt64(t, findMetric(rm, "minmax.samples.skipped")))

	duration := findMetric(rm, "minmax.source.duration.seconds")
	require.NotNil(t, duration)

	hist, ok := duration.Data.(metricdata.Histogram[float64])
	require.True(t, ok)
	require.Len(t, hist.DataPoints, 1)
	assert.Equal(t, uint64(2), hist.DataPoints[0].Count)
}

func TestScanMetrics_RecordMerges(t *testing.T) {
	t.Parallel()

	metrics, reader := setupTestMeter(t)

	metrics.RecordMerges(context.Background(), 7)

	rm := collectMetrics(t, reader)
	assert.Equal(t, int64(7), sumInt64(t, findMetric(rm, "minmax.merges.total")))
}

func TestScanMetrics_NilIsNoop(t *testing.T) {
	t.Parallel()

	var metrics *observability.ScanMetrics

	assert.NotPanics(t, func() {
		metrics.RecordSource(context.Background(), observability.StatusError, 0, 0, time.Second)
		metrics.RecordMerges(context.Background(), 1)
	})
}
