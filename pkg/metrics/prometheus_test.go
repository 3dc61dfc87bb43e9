package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gather(t *testing.T, reg *prometheus.Registry) map[string]*dto.MetricFamily {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)

	byName := make(map[string]*dto.MetricFamily, len(families))
	for _, f := range families {
		byName[f.GetName()] = f
	}
	return byName
}

func TestPrometheusExporterExportStatsUsesDeltas(t *testing.T) {
	reg := prometheus.NewRegistry()
	exporter, err := NewPrometheusExporter(NewDefaultConfig(), &PrometheusConfig{Registry: reg})
	require.NoError(t, err)
	defer exporter.Close()

	labels := Labels{LabelCacheName: "factors"}
	require.NoError(t, exporter.ExportStats(fakeStats{hits: 2, misses: 3, inFlight: 1}, labels))
	require.NoError(t, exporter.ExportStats(fakeStats{hits: 4, misses: 3, failures: 1}, labels))

	families := gather(t, reg)

	hits := families["slotcache_hits_total"]
	require.NotNil(t, hits)
	require.Len(t, hits.GetMetric(), 1)
	assert.Equal(t, 4.0, hits.GetMetric()[0].GetCounter().GetValue())
	assert.Equal(t, "factors", hits.GetMetric()[0].GetLabel()[0].GetValue())

	assert.Equal(t, 3.0, families["slotcache_misses_total"].GetMetric()[0].GetCounter().GetValue())
	assert.Equal(t, 1.0, families["slotcache_failures_total"].GetMetric()[0].GetCounter().GetValue())
	assert.Equal(t, 0.0, families["slotcache_inflight_computations"].GetMetric()[0].GetGauge().GetValue())
	assert.InDelta(t, 57.14, families["slotcache_hit_rate"].GetMetric()[0].GetGauge().GetValue(), 0.01)
}

func TestPrometheusExporterRecordOperation(t *testing.T) {
	reg := prometheus.NewRegistry()
	exporter, err := NewPrometheusExporter(NewDefaultConfig().WithDetailedTimings(true), &PrometheusConfig{Registry: reg})
	require.NoError(t, err)
	defer exporter.Close()

	require.NoError(t, exporter.RecordOperation(OperationServe, ResultHit, 2*time.Millisecond, nil))
	require.NoError(t, exporter.RecordOperation(OperationServe, ResultHit, 3*time.Millisecond, nil))
	require.NoError(t, exporter.RecordOperation(OperationCompute, ResultError, time.Millisecond, nil))

	families := gather(t, reg)

	ops := families["slotcache_operations_total"]
	require.NotNil(t, ops)
	assert.Len(t, ops.GetMetric(), 2)

	durations := families["slotcache_operation_duration_seconds"]
	require.NotNil(t, durations)
	var samples uint64
	for _, m := range durations.GetMetric() {
		samples += m.GetHistogram().GetSampleCount()
	}
	assert.Equal(t, uint64(3), samples)
}

func TestPrometheusExporterWithoutTimings(t *testing.T) {
	reg := prometheus.NewRegistry()
	exporter, err := NewPrometheusExporter(NewDefaultConfig(), &PrometheusConfig{Registry: reg})
	require.NoError(t, err)
	defer exporter.Close()

	require.NoError(t, exporter.RecordOperation(OperationServe, ResultMiss, time.Millisecond, nil))

	_, ok := gather(t, reg)["slotcache_operation_duration_seconds"]
	assert.False(t, ok)
}

func TestPrometheusExporterCloseUnregisters(t *testing.T) {
	reg := prometheus.NewRegistry()

	first, err := NewPrometheusExporter(NewDefaultConfig(), &PrometheusConfig{Registry: reg})
	require.NoError(t, err)

	_, err = NewPrometheusExporter(NewDefaultConfig(), &PrometheusConfig{Registry: reg})
	require.Error(t, err, "duplicate registration must fail")

	require.NoError(t, first.Close())

	second, err := NewPrometheusExporter(NewDefaultConfig(), &PrometheusConfig{Registry: reg})
	require.NoError(t, err)
	second.Close()
}

func TestPrometheusExporterConstLabels(t *testing.T) {
	reg := prometheus.NewRegistry()
	config := NewDefaultConfig().WithNamespace("app").WithLabels(Labels{"env": "test"})
	exporter, err := NewPrometheusExporter(config, &PrometheusConfig{Registry: reg})
	require.NoError(t, err)
	defer exporter.Close()

	require.NoError(t, exporter.ExportStats(fakeStats{hits: 1}, nil))

	hits := gather(t, reg)["app_hits_total"]
	require.NotNil(t, hits)

	labels := map[string]string{}
	for _, l := range hits.GetMetric()[0].GetLabel() {
		labels[l.GetName()] = l.GetValue()
	}
	assert.Equal(t, map[string]string{"env": "test", LabelCacheName: "default"}, labels)
}

func TestPrometheusExporterVariableLabels(t *testing.T) {
	reg := prometheus.NewRegistry()
	exporter, err := NewPrometheusExporter(NewDefaultConfig().WithDetailedTimings(true), &PrometheusConfig{
		Registry:   reg,
		LabelNames: []string{"region"},
	})
	require.NoError(t, err)
	defer exporter.Close()

	labels := Labels{LabelCacheName: "factors", "region": "eu", "ignored": "x"}
	require.NoError(t, exporter.ExportStats(fakeStats{hits: 3}, labels))
	require.NoError(t, exporter.RecordOperation(OperationServe, ResultHit, time.Millisecond, labels))
	require.NoError(t, exporter.ExportStats(fakeStats{hits: 1}, Labels{LabelCacheName: "factors"}))

	families := gather(t, reg)

	byRegion := map[string]float64{}
	for _, m := range families["slotcache_hits_total"].GetMetric() {
		got := map[string]string{}
		for _, l := range m.GetLabel() {
			got[l.GetName()] = l.GetValue()
		}
		assert.NotContains(t, got, "ignored")
		byRegion[got["region"]] = m.GetCounter().GetValue()
	}
	assert.Equal(t, map[string]float64{"eu": 3, "": 1}, byRegion)

	ops := families["slotcache_operations_total"].GetMetric()
	require.Len(t, ops, 1)
	opLabels := map[string]string{}
	for _, l := range ops[0].GetLabel() {
		opLabels[l.GetName()] = l.GetValue()
	}
	assert.Equal(t, map[string]string{
		LabelCacheName: "factors", "region": "eu", "operation": string(OperationServe), "result": string(ResultHit),
	}, opLabels)
}

func TestPrometheusExporterDeltasPerLabelSet(t *testing.T) {
	reg := prometheus.NewRegistry()
	exporter, err := NewPrometheusExporter(NewDefaultConfig(), &PrometheusConfig{Registry: reg})
	require.NoError(t, err)
	defer exporter.Close()

	// Two services share a name but not their other labels
	a := Labels{LabelCacheName: "factors", "instance": "a"}
	b := Labels{LabelCacheName: "factors", "instance": "b"}

	require.NoError(t, exporter.ExportStats(fakeStats{hits: 10}, a))
	require.NoError(t, exporter.ExportStats(fakeStats{hits: 2}, b))
	require.NoError(t, exporter.ExportStats(fakeStats{hits: 12}, a))
	require.NoError(t, exporter.ExportStats(fakeStats{hits: 3}, b))

	hits := gather(t, reg)["slotcache_hits_total"].GetMetric()
	require.Len(t, hits, 1)
	assert.Equal(t, 15.0, hits[0].GetCounter().GetValue())
}
