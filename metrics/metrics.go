// Package metrics holds the Prometheus collectors for ledger, content store
// and HTTP traffic. A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "titlegate"

type Metrics struct {
	registry *prometheus.Registry

	ledgerCalls    *prometheus.CounterVec
	ledgerLatency  *prometheus.HistogramVec
	ledgerConnects *prometheus.CounterVec
	storeCalls     *prometheus.CounterVec
	storeLatency   *prometheus.HistogramVec
	storeBytes     prometheus.Counter
	apiRequests    *prometheus.CounterVec
	apiLatency     *prometheus.HistogramVec
	apiInflight    prometheus.Gauge
}

// New registers every collector on a fresh registry, together with the Go
// runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		ledgerCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "ledger_calls_total",
			Help: "Ledger transactions by name, mode (submit/evaluate) and result kind.",
		}, []string{"transaction", "mode", "result"}),
		ledgerLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "ledger_call_seconds",
			Help:    "Ledger transaction latency.",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 15, 30},
		}, []string{"transaction", "mode"}),
		ledgerConnects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "ledger_connects_total",
			Help: "Gateway connection attempts by result.",
		}, []string{"result"}),
		storeCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "store_calls_total",
			Help: "Content store operations by result kind.",
		}, []string{"op", "result"}),
		storeLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "store_call_seconds",
			Help:    "Content store operation latency.",
			Buckets: prometheus.ExponentialBuckets(0.005, 3, 9),
		}, []string{"op"}),
		storeBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "store_uploaded_bytes_total",
			Help: "Document bytes written to the content store.",
		}),
		apiRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "api_requests_total",
			Help: "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		apiLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "api_request_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		apiInflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "api_inflight_requests",
			Help: "HTTP requests currently being served.",
		}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.ledgerCalls, m.ledgerLatency, m.ledgerConnects,
		m.storeCalls, m.storeLatency, m.storeBytes,
		m.apiRequests, m.apiLatency, m.apiInflight,
	)
	return m
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) ObserveLedger(transaction, mode, result string, dur time.Duration) {
	if m == nil {
		return
	}
	m.ledgerCalls.WithLabelValues(transaction, mode, result).Inc()
	m.ledgerLatency.WithLabelValues(transaction, mode).Observe(dur.Seconds())
}

func (m *Metrics) IncLedgerConnect(result string) {
	if m == nil {
		return
	}
	m.ledgerConnects.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveStore(op, result string, dur time.Duration) {
	if m == nil {
		return
	}
	m.storeCalls.WithLabelValues(op, result).Inc()
	m.storeLatency.WithLabelValues(op).Observe(dur.Seconds())
}

func (m *Metrics) AddUploadedBytes(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.storeBytes.Add(float64(n))
}

func (m *Metrics) ObserveAPI(method, route, status string, dur time.Duration) {
	if m == nil {
		return
	}
	m.apiRequests.WithLabelValues(method, route, status).Inc()
	m.apiLatency.WithLabelValues(method, route).Observe(dur.Seconds())
}

func (m *Metrics) APIInflightInc() {
	if m != nil {
		m.apiInflight.Inc()
	}
}

func (m *Metrics) APIInflightDec() {
	if m != nil {
		m.apiInflight.Dec()
	}
}
