package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"voicechat/internal/application"
)

// Metrics holds the Prometheus collectors for the relay. It implements
// application.Observer.
type Metrics struct {
	registry *prometheus.Registry

	// Pipeline metrics
	TurnsTotal      *prometheus.CounterVec
	StageFailures   *prometheus.CounterVec
	StageDuration   *prometheus.HistogramVec
	DegradedReplies *prometheus.CounterVec
	PersistFailures prometheus.Counter

	// HTTP API metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// NewMetrics registers every collector on a fresh registry, so several
// instances can live in one process.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "voicechat"
	}

	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,

		TurnsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_total",
			Help:      "Pipeline runs by outcome",
		}, []string{"outcome"}),
		StageFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stage_failures_total",
			Help:      "Pipeline runs halted, by stage and reason",
		}, []string{"stage", "reason"}),
		StageDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Time spent in each pipeline stage",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		}, []string{"stage"}),
		DegradedReplies: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "degraded_replies_total",
			Help:      "Replies that used fallback text instead of a model answer",
		}, []string{"kind"}),
		PersistFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "history_append_failures_total",
			Help:      "Turns that could not be written to the conversation log",
		}),

		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status code",
		}, []string{"route", "status"}),
		HTTPRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		}, []string{"route"}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) StageCompleted(stage application.Stage, elapsed time.Duration) {
	m.StageDuration.WithLabelValues(string(stage)).Observe(elapsed.Seconds())
}

func (m *Metrics) StageFailed(stage application.Stage, reason string) {
	m.StageFailures.WithLabelValues(string(stage), reason).Inc()
}

func (m *Metrics) ReplyDegraded(kind string) {
	m.DegradedReplies.WithLabelValues(kind).Inc()
}

func (m *Metrics) PersistFailed() {
	m.PersistFailures.Inc()
}

func (m *Metrics) TurnFinished(outcome string) {
	m.TurnsTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) RecordRequest(route string, status int, duration time.Duration) {
	m.HTTPRequests.WithLabelValues(route, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(route).Observe(duration.Seconds())
}
