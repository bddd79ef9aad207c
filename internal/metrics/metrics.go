// Package metrics exposes the gateway's Prometheus counters. A nil *Metrics
// is valid and records nothing.
package metrics

import (
	"net/http"
	"strconv"

	"github.com/felixge/httpsnoop"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome labels.
const (
	OutcomeSuccess   = "success"
	OutcomeTransient = "transient"
	OutcomeNotFound  = "not_found"
	OutcomeFailed    = "failed"
)

type Metrics struct {
	registry *prometheus.Registry

	httpRequests    *prometheus.CounterVec
	backendAttempts *prometheus.CounterVec
	files           *prometheus.CounterVec
	uploadedBytes   *prometheus.CounterVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "filegate_http_requests_total",
			Help: "HTTP server's handled requests",
		}, []string{"code", "method"}),
		backendAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "filegate_backend_attempts_total",
			Help: "Backend attempts made by the failover executor",
		}, []string{"location", "op", "outcome"}),
		files: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "filegate_files_total",
			Help: "Files uploaded or downloaded, by final outcome",
		}, []string{"op", "outcome"}),
		uploadedBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "filegate_uploaded_bytes_total",
			Help: "Bytes stored per location",
		}, []string{"location"}),
	}

	reg.MustRegister(m.httpRequests, m.backendAttempts, m.files, m.uploadedBytes)
	reg.MustRegister(collectors.NewGoCollector())

	return m
}

// Handler serves the private registry.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Attempt(location, op, outcome string) {
	if m == nil {
		return
	}
	m.backendAttempts.WithLabelValues(location, op, outcome).Inc()
}

func (m *Metrics) File(op, outcome string) {
	if m == nil {
		return
	}
	m.files.WithLabelValues(op, outcome).Inc()
}

func (m *Metrics) Uploaded(location string, n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.uploadedBytes.WithLabelValues(location).Add(float64(n))
}

// HTTPRequest records one served request.
func (m *Metrics) HTTPRequest(method string, stats httpsnoop.Metrics) {
	if m == nil {
		return
	}
	m.httpRequests.With(prometheus.Labels{
		"code":   strconv.Itoa(stats.Code),
		"method": method,
	}).Inc()
}
