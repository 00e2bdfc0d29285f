// Package metrics instruments the pipelines and the seal codec with
// Prometheus metrics: encrypt/decrypt/seal throughput, error rates,
// buffer-pool behavior, and process-level gauges, plus the HTTP health
// handlers the debug surface mounts.
package metrics

import (
	"context"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel/trace"
)

var defaultRegistry = prometheus.DefaultRegisterer

// Metrics holds every metric the core and its ambient packages emit.
type Metrics struct {
	pipelineOperationsTotal  *prometheus.CounterVec
	pipelineOperationSeconds *prometheus.HistogramVec
	pipelineErrorsTotal      *prometheus.CounterVec
	chunkBytesTotal          *prometheus.CounterVec
	bufferPoolHitsTotal      prometheus.Counter
	bufferPoolMissesTotal    prometheus.Counter
	sealOperationsTotal      *prometheus.CounterVec
	keyLookupSeconds         prometheus.Histogram
	goroutines               prometheus.GaugeFunc
	memoryAllocBytes         prometheus.GaugeFunc
}

// NewMetrics registers every metric against Prometheus's default
// registry.
func NewMetrics() *Metrics {
	return NewMetricsWithRegistry(defaultRegistry)
}

// NewMetricsWithRegistry registers against reg instead, so tests can use
// a fresh prometheus.NewRegistry() and avoid collisions with other
// packages' metrics in the same process.
func NewMetricsWithRegistry(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		pipelineOperationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "streamseal_pipeline_operations_total",
				Help: "Total encrypt/decrypt pipeline operations, by direction and outcome.",
			},
			[]string{"direction", "outcome"},
		),
		pipelineOperationSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "streamseal_pipeline_operation_seconds",
				Help:    "Wall-clock time spent inside Write/End calls, by direction.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"direction"},
		),
		pipelineErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "streamseal_pipeline_errors_total",
				Help: "Pipeline failures, by direction and error kind.",
			},
			[]string{"direction", "kind"},
		),
		chunkBytesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "streamseal_chunk_bytes_total",
				Help: "Bytes fed into the pipelines, by direction (plaintext for encrypt, ciphertext for decrypt).",
			},
			[]string{"direction"},
		),
		bufferPoolHitsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "streamseal_buffer_pool_hits_total",
			Help: "Buffer pool Get calls satisfied from the pool instead of a fresh allocation.",
		}),
		bufferPoolMissesTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "streamseal_buffer_pool_misses_total",
			Help: "Buffer pool Get calls that allocated a fresh buffer.",
		}),
		sealOperationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "streamseal_seal_operations_total",
				Help: "Chunk-seal encrypt/decrypt/seal/open calls, by operation and outcome.",
			},
			[]string{"operation", "outcome"},
		),
		keyLookupSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "streamseal_key_lookup_seconds",
			Help:    "Latency of the external key-lookup callable used by the decryptor.",
			Buckets: prometheus.DefBuckets,
		}),
		goroutines: factory.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "streamseal_process_goroutines",
			Help: "Current number of goroutines, for diagnosing pipeline leaks.",
		}, func() float64 { return float64(runtime.NumGoroutine()) }),
		memoryAllocBytes: factory.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "streamseal_process_memory_alloc_bytes",
			Help: "Bytes of heap memory currently allocated.",
		}, func() float64 {
			var m runtime.MemStats
			runtime.ReadMemStats(&m)
			return float64(m.Alloc)
		}),
	}
}

// ObservePipelineOp records one pipeline operation's outcome and
// duration. direction is "encrypt" or "decrypt"; outcome is "success" or
// "failure".
func (m *Metrics) ObservePipelineOp(direction, outcome string, duration time.Duration) {
	m.pipelineOperationsTotal.WithLabelValues(direction, outcome).Inc()
	m.pipelineOperationSeconds.WithLabelValues(direction).Observe(duration.Seconds())
}

// ObservePipelineOpWithExemplar behaves like ObservePipelineOp but, when
// ctx carries a sampled OpenTelemetry span (see internal/tracing), attaches
// the span's trace id to the counter increment as a Prometheus exemplar so
// an operator can jump from a metric spike straight to the matching trace.
func (m *Metrics) ObservePipelineOpWithExemplar(ctx context.Context, direction, outcome string, duration time.Duration) {
	counter := m.pipelineOperationsTotal.WithLabelValues(direction, outcome)
	if adder, ok := counter.(prometheus.ExemplarAdder); ok {
		if labels := getExemplar(ctx); labels != nil {
			adder.AddWithExemplar(1, labels)
			m.pipelineOperationSeconds.WithLabelValues(direction).Observe(duration.Seconds())
			return
		}
	}
	m.ObservePipelineOp(direction, outcome, duration)
}

// getExemplar extracts a Prometheus exemplar label set from ctx's current
// span context, or nil if ctx carries no sampled span.
func getExemplar(ctx context.Context) prometheus.Labels {
	spanCtx := trace.SpanContextFromContext(ctx)
	if !spanCtx.IsValid() || !spanCtx.IsSampled() {
		return nil
	}
	return prometheus.Labels{"trace_id": spanCtx.TraceID().String()}
}

// ObservePipelineError increments the error counter for direction/kind.
func (m *Metrics) ObservePipelineError(direction, kind string) {
	m.pipelineErrorsTotal.WithLabelValues(direction, kind).Inc()
}

// AddChunkBytes accounts n bytes of chunk payload against direction.
func (m *Metrics) AddChunkBytes(direction string, n int) {
	m.chunkBytesTotal.WithLabelValues(direction).Add(float64(n))
}

// RecordBufferPoolGet accounts one BufferPool.Get call as a hit (reused a
// pooled buffer) or a miss (allocated fresh).
func (m *Metrics) RecordBufferPoolGet(hit bool) {
	if hit {
		m.bufferPoolHitsTotal.Inc()
	} else {
		m.bufferPoolMissesTotal.Inc()
	}
}

// ObserveSealOp records one seal-package operation's outcome. operation
// is one of "encrypt", "decrypt", "seal", "open".
func (m *Metrics) ObserveSealOp(operation, outcome string) {
	m.sealOperationsTotal.WithLabelValues(operation, outcome).Inc()
}

// ObserveKeyLookup records the latency of one keyLookup call.
func (m *Metrics) ObserveKeyLookup(duration time.Duration) {
	m.keyLookupSeconds.Observe(duration.Seconds())
}
