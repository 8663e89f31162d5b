package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics provides observability for the request lifecycle.
type Metrics struct {
	registry *prometheus.Registry

	// Lifecycle actions by action and result
	Transitions *prometheus.CounterVec

	// Certificates composed by type and kind (issued, reprinted)
	Certificates *prometheus.CounterVec

	// Export rendering latency by format
	ExportLatency *prometheus.HistogramVec

	// Open request streams
	Subscribers prometheus.Gauge

	// Side channels that failed without failing the action
	SideEffectFailures *prometheus.CounterVec
}

// New creates a Metrics instance registered on its own registry together
// with the Go runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		Transitions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "barangay_request_transitions_total",
			Help: "Lifecycle actions by action and result",
		}, []string{"action", "result"}), // result: "ok", "forbidden", "invalid", "conflict", "error"

		Certificates: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "barangay_certificates_total",
			Help: "Certificates composed by type and kind",
		}, []string{"type", "kind"}),

		ExportLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "barangay_export_duration_seconds",
			Help:    "Duration of certificate and report rendering by format",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"format"}),

		Subscribers: factory.NewGauge(prometheus.GaugeOpts{
			Name: "barangay_request_stream_subscribers",
			Help: "Open request stream connections",
		}),

		SideEffectFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "barangay_side_effect_failures_total",
			Help: "Best-effort side effects that failed",
		}, []string{"effect"}), // effect: "archive", "register", "notify", "index"
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) IncrementTransition(action, result string) {
	if m != nil {
		m.Transitions.WithLabelValues(action, result).Inc()
	}
}

func (m *Metrics) IncrementCertificate(certType, kind string) {
	if m != nil {
		m.Certificates.WithLabelValues(certType, kind).Inc()
	}
}

func (m *Metrics) ObserveExportLatency(format string, d time.Duration) {
	if m != nil {
		m.ExportLatency.WithLabelValues(format).Observe(d.Seconds())
	}
}

// SubscriberOpened increments the open stream gauge and returns the
// matching decrement.
func (m *Metrics) SubscriberOpened() func() {
	if m == nil {
		return func() {}
	}
	m.Subscribers.Inc()
	return m.Subscribers.Dec
}

func (m *Metrics) IncrementSideEffectFailure(effect string) {
	if m != nil {
		m.SideEffectFailures.WithLabelValues(effect).Inc()
	}
}
