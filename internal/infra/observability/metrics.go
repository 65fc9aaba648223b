package observability

import (
	"time"

	"github.com/arenastore/checkout-bff-go/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
)

// Metrics holds all Prometheus metrics for the checkout BFF.
type Metrics struct {
	// Registry is the Prometheus registry that owns these metrics.
	// Exposed so the /metrics endpoint can use it.
	Registry *prometheus.Registry

	requestDuration *prometheus.HistogramVec
	chargesTotal    *prometheus.CounterVec
	outcomesTotal   *prometheus.CounterVec
	externalErrors  *prometheus.CounterVec
	cacheHits       *prometheus.CounterVec
	cacheMisses     *prometheus.CounterVec
}

// NewMetrics creates a dedicated Prometheus registry and registers all
// application metrics in it. Using a private registry avoids "duplicate
// collector" panics when NewMetrics is called more than once (e.g. in tests).
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "checkout_request_duration_seconds",
				Help:    "Duration of checkout operations.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		chargesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "checkout_charges_total",
				Help: "Charges created at the gateway, by payment method.",
			},
			[]string{"method"},
		),
		outcomesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "checkout_outcomes_total",
				Help: "Terminal purchase outcomes: confirmed, declined, expired.",
			},
			[]string{"outcome"},
		),
		externalErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "checkout_external_errors_total",
				Help: "Total errors from external services.",
			},
			[]string{"service"},
		),
		cacheHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "checkout_cache_hits_total",
				Help: "Total cache hits.",
			},
			[]string{"cache"},
		),
		cacheMisses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "checkout_cache_misses_total",
				Help: "Total cache misses.",
			},
			[]string{"cache"},
		),
	}
}

// RecordRequestDuration records the duration of an operation.
func (m *Metrics) RecordRequestDuration(operation string, d time.Duration) {
	m.requestDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// IncrCharge counts a charge created at the gateway.
func (m *Metrics) IncrCharge(method domain.PaymentMethod) {
	m.chargesTotal.WithLabelValues(string(method)).Inc()
}

// IncrOutcome counts a terminal purchase outcome.
func (m *Metrics) IncrOutcome(outcome string) {
	m.outcomesTotal.WithLabelValues(outcome).Inc()
}

// IncrExternalError increments the external error counter.
func (m *Metrics) IncrExternalError(service string) {
	m.externalErrors.WithLabelValues(service).Inc()
}

// IncrCacheHit increments the cache hit counter.
func (m *Metrics) IncrCacheHit(cache string) {
	m.cacheHits.WithLabelValues(cache).Inc()
}

// IncrCacheMiss increments the cache miss counter.
func (m *Metrics) IncrCacheMiss(cache string) {
	m.cacheMisses.WithLabelValues(cache).Inc()
}

// GetCheckoutSnapshot returns a snapshot of checkout metrics suitable for
// the GET /v1/metrics/checkout endpoint.
// Note: Prometheus counters expose cumulative values.
func (m *Metrics) GetCheckoutSnapshot() *domain.CheckoutMetrics {
	pixCharges := getCounterValue(m.chargesTotal, string(domain.MethodPix))
	cardCharges := getCounterValue(m.chargesTotal, string(domain.MethodCreditCard))
	confirmed := getCounterValue(m.outcomesTotal, "confirmed")
	declined := getCounterValue(m.outcomesTotal, "declined")
	expired := getCounterValue(m.outcomesTotal, "expired")
	gwErrors := getCounterValue(m.externalErrors, "gateway")
	cacheHits := getCounterValue(m.cacheHits, "item") + getCounterValue(m.cacheHits, "payer")
	cacheMisses := getCounterValue(m.cacheMisses, "item") + getCounterValue(m.cacheMisses, "payer")

	charges := pixCharges + cardCharges
	conversion := float64(0)
	if charges > 0 {
		conversion = confirmed / charges
	}
	cacheHitRate := float64(0)
	if cacheHits+cacheMisses > 0 {
		cacheHitRate = cacheHits / (cacheHits + cacheMisses)
	}

	return &domain.CheckoutMetrics{
		ChargesCreated: int64(charges),
		PixCharges:     int64(pixCharges),
		CardCharges:    int64(cardCharges),
		Confirmations:  int64(confirmed),
		Declines:       int64(declined),
		Expirations:    int64(expired),
		GatewayErrors:  int64(gwErrors),
		ConversionRate: conversion,
		CacheHitRate:   cacheHitRate,
		Period:         "all_time",
	}
}

// getCounterValue extracts the current float64 value from a CounterVec for a given label.
func getCounterValue(cv *prometheus.CounterVec, label string) float64 {
	counter := cv.WithLabelValues(label)
	m := &dto.Metric{}
	if err := counter.(prometheus.Metric).Write(m); err != nil {
		return 0
	}
	if m.Counter != nil && m.Counter.Value != nil {
		return *m.Counter.Value
	}
	return 0
}
