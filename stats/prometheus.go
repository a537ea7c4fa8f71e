package stats

import (
	"context"
	"net"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/promptdeck/bastion/bastionlib"
	"github.com/promptdeck/bastion/events"
)

type prometheusProcessor struct {
	factory *PrometheusFactory
}

func (p prometheusProcessor) EventRequestAllowed(evt bastionlib.EventRequestAllowed) {
	bucket := evt.Bucket
	if bucket == "" {
		bucket = "none"
	}

	p.factory.metricRequestsAllowed.WithLabelValues(bucket).Inc()
}

func (p prometheusProcessor) EventRateLimited(evt bastionlib.EventRateLimited) {
	p.factory.metricRequestsRejected.
		WithLabelValues(ReasonRateLimited, evt.Bucket).
		Inc()
}

func (p prometheusProcessor) EventCircuitBanned(evt bastionlib.EventCircuitBanned) {
	p.factory.metricBansTotal.Inc()
}

func (p prometheusProcessor) EventCircuitRejected(evt bastionlib.EventCircuitRejected) {
	p.factory.metricRequestsRejected.
		WithLabelValues(ReasonCircuit, "").
		Inc()
}

func (p prometheusProcessor) EventBurstDetected(evt bastionlib.EventBurstDetected) {
	p.factory.metricRequestsRejected.
		WithLabelValues(ReasonBurst, "").
		Inc()
}

func (p prometheusProcessor) EventAnomalyAlert(evt bastionlib.EventAnomalyAlert) {
	p.factory.metricAnomalyAlerts.Inc()
	p.factory.metricAnomalyScore.Observe(evt.Score.Overall)
}

func (p prometheusProcessor) EventIdempotentReplay(evt bastionlib.EventIdempotentReplay) {
	p.factory.metricIdempotentReplays.Inc()
}

func (p prometheusProcessor) EventShadowBanHit(evt bastionlib.EventShadowBanHit) {
	p.factory.metricShadowBanHits.Inc()
}

func (p prometheusProcessor) EventStoreSize(evt bastionlib.EventStoreSize) {
	p.factory.metricStoreSize.WithLabelValues(StoreRateWindows).Set(float64(evt.RateWindows))
	p.factory.metricStoreSize.WithLabelValues(StoreCircuits).Set(float64(evt.OpenCircuits))
	p.factory.metricStoreSize.WithLabelValues(StoreAnomalyKeys).Set(float64(evt.AnomalyKeys))
	p.factory.metricStoreSize.WithLabelValues(StoreIdempotency).Set(float64(evt.IdempotencyKeys))

	// Gauge банов выводится отсюда же: EventStoreSize — единственный
	// периодический сигнал, отдельного тикера в observer'е нет.
	p.factory.metricBansActive.Set(float64(evt.OpenCircuits))
}

func (p prometheusProcessor) EventFailOpen(evt bastionlib.EventFailOpen) {
	p.factory.metricFailOpens.Inc()
}

func (p prometheusProcessor) Shutdown() {}

// PrometheusFactory is a factory of [events.Observer] which collect
// information in a format suitable for Prometheus.
//
// This factory can also serve on a given listener. In that case it
// starts an HTTP server with a single endpoint - a
// Prometheus-compatible scrape output.
type PrometheusFactory struct {
	httpServer *http.Server

	metricRequestsAllowed  *prometheus.CounterVec
	metricRequestsRejected *prometheus.CounterVec
	metricStoreSize        *prometheus.GaugeVec

	metricBansActive        prometheus.Gauge
	metricBansTotal         prometheus.Counter
	metricAnomalyAlerts     prometheus.Counter
	metricIdempotentReplays prometheus.Counter
	metricShadowBanHits     prometheus.Counter
	metricFailOpens         prometheus.Counter

	metricAnomalyScore prometheus.Histogram
}

// Make builds a new observer.
func (p *PrometheusFactory) Make() events.Observer {
	return prometheusProcessor{
		factory: p,
	}
}

// Serve starts an HTTP server on a given listener.
func (p *PrometheusFactory) Serve(listener net.Listener) error {
	return p.httpServer.Serve(listener) //nolint: wrapcheck
}

// Close stops a factory. Please pay attention that underlying listener
// is not closed.
func (p *PrometheusFactory) Close() error {
	return p.httpServer.Shutdown(context.Background()) //nolint: wrapcheck
}

// NewPrometheus builds an events.ObserverFactory which can serve an
// HTTP endpoint with Prometheus scrape data.
func NewPrometheus(metricPrefix, httpPath string) *PrometheusFactory {
	registry := prometheus.NewPedanticRegistry()
	httpHandler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
	mux := http.NewServeMux()

	mux.Handle(httpPath, httpHandler)

	factory := &PrometheusFactory{
		httpServer: &http.Server{
			Handler: mux,
		},

		metricRequestsAllowed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricPrefix,
			Name:      MetricRequestsAllowed,
			Help:      "A number of requests which passed the protective pipeline.",
		}, []string{TagBucket}),
		metricRequestsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricPrefix,
			Name:      MetricRequestsRejected,
			Help:      "A number of rejected requests by rejection reason.",
		}, []string{TagReason, TagBucket}),
		metricStoreSize: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: metricPrefix,
			Name:      MetricStoreSize,
			Help:      "Sizes of the in-memory protective stores.",
		}, []string{TagStore}),

		metricBansActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricPrefix,
			Name:      MetricBansActive,
			Help:      "A number of currently open circuits (banned identities).",
		}),
		metricBansTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricPrefix,
			Name:      MetricBansTotal,
			Help:      "A total number of bans issued since start.",
		}),
		metricAnomalyAlerts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricPrefix,
			Name:      MetricAnomalyAlerts,
			Help:      "A number of emitted anomaly alerts.",
		}),
		metricIdempotentReplays: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricPrefix,
			Name:      MetricIdempotentReplays,
			Help:      "A number of requests answered from the idempotency cache.",
		}),
		metricShadowBanHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricPrefix,
			Name:      MetricShadowBanHits,
			Help:      "A number of actions performed by shadow-banned users.",
		}),
		metricFailOpens: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricPrefix,
			Name:      MetricFailOpens,
			Help:      "A number of internal failures swallowed by the fail-open policy.",
		}),

		metricAnomalyScore: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricPrefix,
			Name:      MetricAnomalyScore,
			Help:      "Distribution of composite anomaly scores which crossed the alert threshold.",
			Buckets:   prometheus.LinearBuckets(0.5, 0.05, 10), //nolint: gomnd
		}),
	}

	registry.MustRegister(
		factory.metricRequestsAllowed,
		factory.metricRequestsRejected,
		factory.metricStoreSize,
		factory.metricBansActive,
		factory.metricBansTotal,
		factory.metricAnomalyAlerts,
		factory.metricIdempotentReplays,
		factory.metricShadowBanHits,
		factory.metricFailOpens,
		factory.metricAnomalyScore,
	)

	return factory
}
