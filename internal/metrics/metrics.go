package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns its registry so tests can build as many as they like.
type Metrics struct {
	registry *prometheus.Registry

	ChatRequests        *prometheus.CounterVec
	QuotaRejections     prometheus.Counter
	ExtractionDegraded  *prometheus.CounterVec
	VisionFallbacks     *prometheus.CounterVec
	GenerationFallbacks prometheus.Counter
	GenerationFailures  *prometheus.CounterVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		ChatRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chat_requests_total",
			Help: "Chat requests by outcome.",
		}, []string{"outcome"}),
		QuotaRejections: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "quota_rejections_total",
			Help: "Requests rejected by the daily quota.",
		}),
		ExtractionDegraded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "extraction_degraded_total",
			Help: "Documents that contributed a placeholder instead of content.",
		}, []string{"kind"}),
		VisionFallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vision_fallbacks_total",
			Help: "Documents read through the vision model.",
		}, []string{"kind"}),
		GenerationFallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "generation_fallbacks_total",
			Help: "Generations retried against the fallback model.",
		}),
		GenerationFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "generation_failures_total",
			Help: "Generations that failed after any fallback.",
		}, []string{"family"}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.ChatRequests, m.QuotaRejections, m.ExtractionDegraded,
		m.VisionFallbacks, m.GenerationFallbacks, m.GenerationFailures,
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
