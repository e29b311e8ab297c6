package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Admission outcomes.
const (
	OutcomeAdmitted     = "admitted"
	OutcomeRateLimited  = "rate_limited"
	OutcomeUnauthorized = "unauthorized"
)

// Delivery results.
const (
	DeliveryDelivered = "delivered"
	DeliveryDropped   = "dropped"
	DeliveryClosed    = "closed"
)

type Metrics struct {
	ActiveConnections prometheus.Gauge
	Admissions        *prometheus.CounterVec
	Broadcasts        prometheus.Counter
	Deliveries        *prometheus.CounterVec
	MessageSize       prometheus.Histogram
	FeedEvents        prometheus.Counter
	FeedErrors        prometheus.Counter
	DiffRequests      *prometheus.CounterVec

	gatherer prometheus.Gatherer
}

// NewMetrics registers the gateway collectors on a fresh registry.
func NewMetrics(namespace string) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return newMetrics(namespace, reg, reg)
}

func newMetrics(namespace string, reg prometheus.Registerer, gatherer prometheus.Gatherer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		ActiveConnections: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_connections",
			Help:      "The current number of registered subscriber connections",
		}),
		Admissions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "admissions_total",
			Help:      "Connection attempts by admission outcome",
		}, []string{"outcome"}),
		Broadcasts: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "broadcasts_total",
			Help:      "The total number of broadcast messages",
		}),
		Deliveries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deliveries_total",
			Help:      "Per-connection delivery attempts by result",
		}, []string{"result"}),
		MessageSize: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "message_size_bytes",
			Help:      "Size of broadcast frames in bytes",
			Buckets:   []float64{64, 128, 256, 512, 1024, 2048, 4096, 8192, 16384, 65536},
		}),
		FeedEvents: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "feed_events_total",
			Help:      "Change events received from the upstream feed",
		}),
		FeedErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "feed_errors_total",
			Help:      "Number of change feed errors",
		}),
		DiffRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "diff_requests_total",
			Help:      "Diff requests by output format",
		}, []string{"format"}),
		gatherer: gatherer,
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// The helpers below are no-ops on a nil *Metrics so components can run
// without instrumentation.

func (m *Metrics) Admission(outcome string) {
	if m == nil {
		return
	}
	m.Admissions.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ConnectionOpened() {
	if m == nil {
		return
	}
	m.ActiveConnections.Inc()
}

func (m *Metrics) ConnectionClosed() {
	if m == nil {
		return
	}
	m.ActiveConnections.Dec()
}

func (m *Metrics) Broadcast(size int) {
	if m == nil {
		return
	}
	m.Broadcasts.Inc()
	m.MessageSize.Observe(float64(size))
}

func (m *Metrics) Delivery(result string) {
	if m == nil {
		return
	}
	m.Deliveries.WithLabelValues(result).Inc()
}

func (m *Metrics) FeedEvent() {
	if m == nil {
		return
	}
	m.FeedEvents.Inc()
}

func (m *Metrics) FeedError() {
	if m == nil {
		return
	}
	m.FeedErrors.Inc()
}

func (m *Metrics) DiffRequest(format string) {
	if m == nil {
		return
	}
	m.DiffRequests.WithLabelValues(format).Inc()
}
