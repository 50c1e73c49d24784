package importjob

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type metrics struct {
	jobsTotal       *prometheus.CounterVec
	chunksTotal     *prometheus.CounterVec
	lookupAttempts  *prometheus.CounterVec
	identifiers     *prometheus.CounterVec
	chunkDuration   prometheus.Histogram
	queuedChunks    prometheus.Gauge
	activeChunkRuns prometheus.Gauge
}

func newMetrics(reg prometheus.Registerer) *metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)

	return &metrics{
		jobsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "isbn_import",
			Name:      "jobs_total",
			Help:      "Import jobs that reached a terminal state.",
		}, []string{"status"}),
		chunksTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "isbn_import",
			Name:      "chunks_total",
			Help:      "Processed chunks by merge result.",
		}, []string{"result"}),
		lookupAttempts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "isbn_import",
			Name:      "lookup_attempts_total",
			Help:      "Metadata lookup attempts by result.",
		}, []string{"result"}),
		identifiers: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "isbn_import",
			Name:      "identifiers_total",
			Help:      "Identifiers processed by final outcome.",
		}, []string{"result"}),
		chunkDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "isbn_import",
			Name:      "chunk_duration_seconds",
			Help:      "Wall time spent processing one chunk including retries and merge.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}),
		queuedChunks: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "isbn_import",
			Name:      "queued_chunks",
			Help:      "Chunks waiting in the work queue.",
		}),
		activeChunkRuns: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "isbn_import",
			Name:      "active_chunks",
			Help:      "Chunks currently being processed by a worker.",
		}),
	}
}

func (m *metrics) observeChunk(result string, started time.Time) {
	m.chunksTotal.WithLabelValues(result).Inc()
	m.chunkDuration.Observe(time.Since(started).Seconds())
}
