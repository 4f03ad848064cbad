package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	ingested     *prometheus.CounterVec
	broadcasts   prometheus.Counter
	delivered    prometheus.Counter
	sessions     prometheus.Gauge
	pagesServed  *prometheus.CounterVec
	storeLatency *prometheus.HistogramVec
	errorsTotal  *prometheus.CounterVec
}

// New creates a recorder registered on reg. Pass prometheus.DefaultRegisterer
// to expose through /metrics.
func New(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		ingested: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "signalfeed_ingest_total",
				Help: "Webhook ingestions by result",
			},
			[]string{"result"},
		),
		broadcasts: f.NewCounter(prometheus.CounterOpts{
			Name: "signalfeed_broadcasts_total",
			Help: "Change hints broadcast to viewers",
		}),
		delivered: f.NewCounter(prometheus.CounterOpts{
			Name: "signalfeed_hints_delivered_total",
			Help: "Change hints queued to individual sessions",
		}),
		sessions: f.NewGauge(prometheus.GaugeOpts{
			Name: "signalfeed_push_sessions",
			Help: "Currently connected push sessions",
		}),
		pagesServed: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "signalfeed_pages_served_total",
				Help: "Pages served, split by cache hit",
			},
			[]string{"cache"},
		),
		storeLatency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "signalfeed_store_duration_seconds",
				Help:    "Duration of event store operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "signalfeed_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
	}
}

func (r *Recorder) RecordIngest(result string) {
	r.ingested.WithLabelValues(result).Inc()
}

func (r *Recorder) RecordBroadcast(delivered int) {
	r.broadcasts.Inc()
	r.delivered.Add(float64(delivered))
}

func (r *Recorder) RecordSessions(n int) {
	r.sessions.Set(float64(n))
}

func (r *Recorder) RecordPageServed(cacheHit bool) {
	label := "miss"
	if cacheHit {
		label = "hit"
	}
	r.pagesServed.WithLabelValues(label).Inc()
}

// RecordStoreLatency records operation latency in seconds.
func (r *Recorder) RecordStoreLatency(op string, seconds float64) {
	r.storeLatency.WithLabelValues(op).Observe(seconds)
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// Nop discards every measurement.
type Nop struct{}

func (Nop) RecordIngest(string)                {}
func (Nop) RecordBroadcast(int)                {}
func (Nop) RecordSessions(int)                 {}
func (Nop) RecordPageServed(bool)              {}
func (Nop) RecordStoreLatency(string, float64) {}
func (Nop) RecordError(string)                 {}
