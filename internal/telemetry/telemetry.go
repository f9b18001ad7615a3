// Package telemetry provides Prometheus metrics and tracing for the service.
package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const serviceName = "catalog-classifier"

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	// Processor metrics
	ProductsProcessed prometheus.Counter
	ProductsSkipped   prometheus.Counter
	ProductsFailed    prometheus.Counter

	// Classifier metrics
	RuleMatchDuration   prometheus.Histogram
	FallbackInvocations prometheus.Counter
	FallbackFailures    prometheus.Counter

	// Remote API metrics
	APICalls   prometheus.Counter
	APIRetries prometheus.Counter

	// Job metrics
	JobsStarted   prometheus.Counter
	JobsCompleted prometheus.Counter
	JobsFailed    prometheus.Counter
}

// Provider wraps the tracer and metrics along with their registry.
type Provider struct {
	Tracer   trace.Tracer
	Metrics  *Metrics
	registry *prometheus.Registry
}

// NewProvider initializes telemetry with a dedicated Prometheus registry so
// multiple providers can coexist (one per test).
func NewProvider() *Provider {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	metrics := &Metrics{
		ProductsProcessed: factory.NewCounter(prometheus.CounterOpts{
			Name: "classifier_products_processed_total",
			Help: "Products fully processed and stamped",
		}),
		ProductsSkipped: factory.NewCounter(prometheus.CounterOpts{
			Name: "classifier_products_skipped_total",
			Help: "Products skipped by the idempotence check",
		}),
		ProductsFailed: factory.NewCounter(prometheus.CounterOpts{
			Name: "classifier_products_failed_total",
			Help: "Products that failed processing",
		}),
		RuleMatchDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "classifier_rule_match_duration_seconds",
			Help:    "Time spent evaluating classification rules",
			Buckets: prometheus.DefBuckets,
		}),
		FallbackInvocations: factory.NewCounter(prometheus.CounterOpts{
			Name: "classifier_fallback_invocations_total",
			Help: "Generative fallback classifier invocations",
		}),
		FallbackFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "classifier_fallback_failures_total",
			Help: "Generative fallback failures degraded to the rule guess",
		}),
		APICalls: factory.NewCounter(prometheus.CounterOpts{
			Name: "classifier_api_calls_total",
			Help: "Outbound calls dispatched through the throttle lane",
		}),
		APIRetries: factory.NewCounter(prometheus.CounterOpts{
			Name: "classifier_api_retries_total",
			Help: "Outbound calls retried after 429/5xx responses",
		}),
		JobsStarted: factory.NewCounter(prometheus.CounterOpts{
			Name: "classifier_jobs_started_total",
			Help: "Detached jobs started",
		}),
		JobsCompleted: factory.NewCounter(prometheus.CounterOpts{
			Name: "classifier_jobs_completed_total",
			Help: "Detached jobs completed",
		}),
		JobsFailed: factory.NewCounter(prometheus.CounterOpts{
			Name: "classifier_jobs_failed_total",
			Help: "Detached jobs that ended in failure",
		}),
	}

	return &Provider{
		Tracer:   otel.Tracer(serviceName),
		Metrics:  metrics,
		registry: registry,
	}
}

// Handler returns the Prometheus HTTP handler for the /metrics endpoint.
func (p *Provider) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}

// IncAPICalls is nil-safe; components may run without telemetry in tests.
func (p *Provider) IncAPICalls() {
	if p != nil {
		p.Metrics.APICalls.Inc()
	}
}

// IncAPIRetries is nil-safe.
func (p *Provider) IncAPIRetries() {
	if p != nil {
		p.Metrics.APIRetries.Inc()
	}
}
