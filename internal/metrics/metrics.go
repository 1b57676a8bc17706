// Package metrics holds the Prometheus collectors of the inference service.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "tocsin"

var (
	requestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests by endpoint and status code",
		},
		[]string{"endpoint", "code"},
	)

	stageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Duration of inference pipeline stages in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"stage"}, // decode, normalize, extract, predict
	)

	decodesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decodes_total",
			Help:      "Decoded inputs by winning backend, or failed",
		},
		[]string{"backend"},
	)

	degradedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "feature_extraction_degraded_total",
			Help:      "Feature extractions that fell back to the zero vector",
		},
	)

	shortClipsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "short_clips_total",
			Help:      "Inputs shorter than the short clip threshold",
		},
	)

	predictionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "predictions_total",
			Help:      "Predictions by class label",
		},
		[]string{"class"},
	)

	modelLoaded = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "model_loaded",
			Help:      "1 when a classifier is loaded",
		},
	)

	reloadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "model_reloads_total",
			Help:      "Model reload attempts by outcome",
		},
		[]string{"status"}, // success, error
	)

	allMetrics = []prometheus.Collector{
		requestsTotal,
		stageDuration,
		decodesTotal,
		degradedTotal,
		shortClipsTotal,
		predictionsTotal,
		modelLoaded,
		reloadsTotal,
	}
)

// NewRegistry returns a registry with every service collector plus the Go runtime and process collectors.
func NewRegistry() *prometheus.Registry {
	registry := prometheus.NewRegistry()

	for _, collector := range allMetrics {
		registry.MustRegister(collector)
	}

	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	return registry
}

// Handler serves registry in the Prometheus exposition format.
func Handler(registry *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

// RecordRequest counts one HTTP response.
func RecordRequest(endpoint, code string) {
	requestsTotal.WithLabelValues(endpoint, code).Inc()
}

// ObserveStage records how long a pipeline stage took since start.
func ObserveStage(stage string, start time.Time) {
	stageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
}

// RecordDecode counts a decode outcome. Use "failed" when every strategy failed.
func RecordDecode(backend string) {
	decodesTotal.WithLabelValues(backend).Inc()
}

// RecordDegraded counts a zero vector fallback.
func RecordDegraded(error) {
	degradedTotal.Inc()
}

// RecordShort counts a short clip.
func RecordShort() {
	shortClipsTotal.Inc()
}

// RecordPrediction counts a prediction by label.
func RecordPrediction(class string) {
	predictionsTotal.WithLabelValues(class).Inc()
}

// SetModelLoaded publishes whether a classifier is loaded.
func SetModelLoaded(loaded bool) {
	if loaded {
		modelLoaded.Set(1)

		return
	}

	modelLoaded.Set(0)
}

// RecordReload counts a reload attempt.
func RecordReload(err error) {
	if err != nil {
		reloadsTotal.WithLabelValues("error").Inc()

		return
	}

	reloadsTotal.WithLabelValues("success").Inc()
}
