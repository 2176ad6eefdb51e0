package telemetry

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/DrSkyle/faultline/pkg/engine/spof"
	"github.com/DrSkyle/faultline/pkg/engine/verify"
)

const namespace = "faultline"

// Metrics holds the process collectors. Each instance owns its registry.
type Metrics struct {
	registry *prometheus.Registry

	scanDuration  prometheus.Histogram
	scans         *prometheus.CounterVec
	spofs         prometheus.Gauge
	highRiskSPOFs prometheus.Gauge
	changes       *prometheus.CounterVec

	evidenceRecorded *prometheus.CounterVec
	evidenceFailures *prometheus.CounterVec

	httpRequests *prometheus.CounterVec
	httpLatency  *prometheus.HistogramVec
}

var _ spof.MetricsSink = (*Metrics)(nil)

// NewMetrics registers the collectors on a fresh registry, together with the Go and process collectors.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		scanDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "spof_scan_duration_seconds",
			Help:      "Duration of SPOF scans",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
		scans: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "spof_scans_total",
			Help:      "Total number of SPOF scans",
		}, []string{"status"}), // success, error
		spofs: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "spofs",
			Help:      "Single points of failure in the last published snapshot",
		}),
		highRiskSPOFs: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "spofs_high_risk",
			Help:      "High-risk single points of failure in the last published snapshot",
		}),
		changes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "spof_changes_total",
			Help:      "SPOF changes detected between scans",
		}, []string{"change_type"}),
		evidenceRecorded: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "evidence_recorded_total",
			Help:      "Dependency observations recorded by the evidence collector",
		}, []string{"source"}),
		evidenceFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "evidence_source_failures_total",
			Help:      "Evidence sources that failed during collection",
		}, []string{"source"}),
		httpRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests served by the API",
		}, []string{"method", "route", "status"}),
		httpLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
}

// Registry exposes the registry for tests and extra collectors.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) ObserveScan(d time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.scans.WithLabelValues(status).Inc()
	m.scanDuration.Observe(d.Seconds())
}

func (m *Metrics) SetSPOFs(total, highRisk int) {
	m.spofs.Set(float64(total))
	m.highRiskSPOFs.Set(float64(highRisk))
}

func (m *Metrics) CountChanges(newCount, resolvedCount int) {
	m.changes.WithLabelValues(string(spof.ChangeNew)).Add(float64(newCount))
	m.changes.WithLabelValues(string(spof.ChangeResolved)).Add(float64(resolvedCount))
}

// ObserveCollection records the outcome of one evidence collection.
func (m *Metrics) ObserveCollection(res verify.CollectionResult) {
	for source, n := range res.Recorded {
		m.evidenceRecorded.WithLabelValues(source).Add(float64(n))
	}
	for source := range res.Failed {
		m.evidenceFailures.WithLabelValues(source).Inc()
	}
}

// ObserveRequest records one API request. route is the matched pattern, not the raw path.
func (m *Metrics) ObserveRequest(method, route string, status int, d time.Duration) {
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpLatency.WithLabelValues(method, route).Observe(d.Seconds())
}
