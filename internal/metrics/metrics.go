// Package metrics exposes Prometheus collectors for the API.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "aegisher"

// Metrics holds every collector on its own registry. A nil *Metrics records nothing.
type Metrics struct {
	registry *prometheus.Registry

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	reportsSubmitted    prometheus.Counter
	reportUpvotes       prometheus.Counter
	sosTriggered        *prometheus.CounterVec
	sosResolved         *prometheus.CounterVec
	deliveries          *prometheus.CounterVec
	predictionFallbacks prometheus.Counter
	cacheRequests       *prometheus.CounterVec
	wsClients           prometheus.Gauge
}

// New creates the collectors together with the Go and process collectors
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,

		httpRequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "path", "status"}),

		httpRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path"}),

		reportsSubmitted: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "safety_reports_submitted_total",
			Help:      "Safety reports stored",
		}),

		reportUpvotes: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "safety_report_upvotes_total",
			Help:      "Upvotes applied to safety reports",
		}),

		sosTriggered: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sos_triggered_total",
			Help:      "SOS alerts triggered by method",
		}, []string{"trigger_method"}),

		sosResolved: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sos_resolved_total",
			Help:      "SOS alerts resolved by final status",
		}, []string{"status"}),

		deliveries: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sos_deliveries_total",
			Help:      "Trusted contact notifications by outcome",
		}, []string{"status"}),

		predictionFallbacks: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "prediction_fallbacks_total",
			Help:      "Predictions that used the neutral baseline after a lookup failure",
		}),

		cacheRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_requests_total",
			Help:      "Cache lookups by result",
		}, []string{"result"}),

		wsClients: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ws_clients",
			Help:      "Connected SOS feed websocket clients",
		}),
	}
}

// Registry returns the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Middleware records request count and latency per route template
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		if m == nil {
			return
		}
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		m.httpRequestsTotal.WithLabelValues(c.Request.Method, path, strconv.Itoa(c.Writer.Status())).Inc()
		m.httpRequestDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}

func (m *Metrics) ReportSubmitted() {
	if m != nil {
		m.reportsSubmitted.Inc()
	}
}

func (m *Metrics) ReportUpvoted() {
	if m != nil {
		m.reportUpvotes.Inc()
	}
}

func (m *Metrics) SOSTriggered(method string) {
	if m != nil {
		m.sosTriggered.WithLabelValues(method).Inc()
	}
}

func (m *Metrics) SOSResolved(status string) {
	if m != nil {
		m.sosResolved.WithLabelValues(status).Inc()
	}
}

func (m *Metrics) Delivery(status string) {
	if m != nil {
		m.deliveries.WithLabelValues(status).Inc()
	}
}

func (m *Metrics) PredictionFallback() {
	if m != nil {
		m.predictionFallbacks.Inc()
	}
}

// CacheResult records a cache hit or miss
func (m *Metrics) CacheResult(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheRequests.WithLabelValues(result).Inc()
}

func (m *Metrics) WSClients(n int) {
	if m != nil {
		m.wsClients.Set(float64(n))
	}
}
