// CLAUDE:SUMMARY Prometheus collectors: operation outcomes and latency, HTTP traffic, settlement volume, replay progress
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "veritrack"

// Metrics owns a private registry so tests and multiple services never collide.
type Metrics struct {
	reg *prometheus.Registry

	Operations      *prometheus.CounterVec
	OperationTime   *prometheus.HistogramVec
	HTTPRequests    *prometheus.CounterVec
	HTTPDuration    *prometheus.HistogramVec
	RateLimited     prometheus.Counter
	IdempotentHits  prometheus.Counter
	Claims          prometheus.Gauge
	PositionsSettle prometheus.Counter
	JournalReplayed prometheus.Counter
	JournalHead     prometheus.Gauge
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)
	return &Metrics{
		reg: reg,
		Operations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Engine operations by kind and result (ok or the error kind).",
		}, []string{"kind", "result"}),
		OperationTime: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Wall time of journaled operations including the commit.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
		}, []string{"kind"}),
		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route pattern and status code.",
		}, []string{"method", "route", "status"}),
		HTTPDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP handler latency by route pattern.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
		RateLimited: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_rate_limited_total",
			Help:      "Requests rejected by the per-client limiter.",
		}),
		IdempotentHits: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_idempotent_replays_total",
			Help:      "Mutations answered from the Idempotency-Key cache.",
		}),
		Claims: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "claims",
			Help:      "Claims held by the engine, disputes included.",
		}),
		PositionsSettle: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "positions_settled_total",
			Help:      "Positions paid out by updateBalance.",
		}),
		JournalReplayed: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "journal_replayed_total",
			Help:      "Journal entries applied during start-up replay.",
		}),
		JournalHead: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "journal_head_seq",
			Help:      "Sequence number of the last committed journal entry.",
		}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

// Registry exposes the underlying registry for tests and extra collectors.
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }
