package metrics

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
)

func sampledContext(t *testing.T) context.Context {
	t.Helper()
	traceID, err := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	require.NoError(t, err)
	spanID, err := trace.SpanIDFromHex("00f067aa0ba902b7")
	require.NoError(t, err)
	spanContext := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
		Remote:     true,
	})
	return trace.ContextWithSpanContext(context.Background(), spanContext)
}

func TestGetExemplarFromSampledContext(t *testing.T) {
	labels := getExemplar(sampledContext(t))
	assert.Equal(t, prometheus.Labels{"trace_id": "4bf92f3577b34da6a3ce929d0e0e4736"}, labels)
}

func TestGetExemplarFromBareContext(t *testing.T) {
	assert.Nil(t, getExemplar(context.Background()))
}

func TestObservePipelineOpWithExemplarAttachesTraceID(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetricsWithRegistry(reg)

	m.ObservePipelineOpWithExemplar(sampledContext(t), "encrypt", "success", time.Millisecond)

	families, err := reg.Gather()
	require.NoError(t, err)

	var found bool
	for _, mf := range families {
		if mf.GetName() != "streamseal_pipeline_operations_total" {
			continue
		}
		for _, metric := range mf.GetMetric() {
			ex := metric.GetCounter().GetExemplar()
			if ex == nil {
				continue
			}
			for _, label := range ex.GetLabel() {
				if label.GetName() == "trace_id" && label.GetValue() == "4bf92f3577b34da6a3ce929d0e0e4736" {
					found = true
				}
			}
		}
	}
	assert.True(t, found, "expected an exemplar carrying the sampled trace id")
}
