// Package metrics exposes service counters in Prometheus format.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "propdash"

// Upload outcomes.
const (
	UploadAccepted = "accepted"
	UploadRejected = "rejected"
	UploadFailed   = "failed"
)

// Limiter labels for RateLimited.
const (
	LimiterAdmission = "admission"
	LimiterAPI       = "api"
)

// Metrics holds every collector on a private registry so tests and multiple
// servers in one process never collide on registration.
type Metrics struct {
	registry *prometheus.Registry

	Uploads         *prometheus.CounterVec
	UploadedRows    prometheus.Counter
	Queries         *prometheus.CounterVec
	QueryDuration   *prometheus.HistogramVec
	RateLimited     *prometheus.CounterVec
	SessionsCreated prometheus.Counter
	SessionsSwept   prometheus.Counter
}

// New builds and registers all collectors, including Go runtime and
// process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		Uploads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "uploads_total",
			Help:      "File uploads by outcome.",
		}, []string{"result"}),
		UploadedRows: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "uploaded_rows_total",
			Help:      "Rows stored from accepted uploads after cleaning.",
		}),
		Queries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queries_total",
			Help:      "Dashboard queries by operation.",
		}, []string{"op"}),
		QueryDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "query_duration_seconds",
			Help:      "Time spent evaluating dashboard queries.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
		}, []string{"op"}),
		RateLimited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limited_total",
			Help:      "Requests rejected by a limiter.",
		}, []string{"limiter"}),
		SessionsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_created_total",
			Help:      "Sessions created.",
		}),
		SessionsSwept: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_swept_total",
			Help:      "Expired sessions removed by the periodic sweep.",
		}),
	}
	m.registry.MustRegister(
		m.Uploads, m.UploadedRows, m.Queries, m.QueryDuration,
		m.RateLimited, m.SessionsCreated, m.SessionsSwept,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveQuery records one query evaluation.
func (m *Metrics) ObserveQuery(op string, started time.Time) {
	m.Queries.WithLabelValues(op).Inc()
	m.QueryDuration.WithLabelValues(op).Observe(time.Since(started).Seconds())
}
