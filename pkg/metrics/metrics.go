// Package metrics provides Prometheus metrics for the Juniper service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RecordsMappedTotal tracks records run through a descriptor
	RecordsMappedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "juniper",
			Subsystem: "mapping",
			Name:      "records_total",
			Help:      "Total number of source records mapped by kind",
		},
		[]string{"kind"},
	)

	// FieldErrorsTotal tracks fields nulled by a parser failure
	FieldErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "juniper",
			Subsystem: "mapping",
			Name:      "field_errors_total",
			Help:      "Total number of canonical fields nulled by a mapping failure",
		},
		[]string{"kind", "field"},
	)

	// ResolverLookupsTotal tracks directory lookups by entity and outcome
	ResolverLookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "juniper",
			Subsystem: "resolver",
			Name:      "lookups_total",
			Help:      "Total number of identity lookups by entity and outcome",
		},
		[]string{"entity", "outcome"},
	)

	// TaxRequestsTotal tracks tax request builds by transaction type and status
	TaxRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "juniper",
			Subsystem: "assembler",
			Name:      "tax_requests_total",
			Help:      "Total number of tax calculation requests built",
		},
		[]string{"transaction_type", "status"},
	)

	// HTTPRequestsTotal tracks outbound calls to the sales-tax service
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "juniper",
			Subsystem: "salestax_client",
			Name:      "requests_total",
			Help:      "Total number of outbound sales-tax service requests",
		},
		[]string{"operation", "status_code"},
	)

	// HTTPRequestDuration tracks outbound call latency
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "juniper",
			Subsystem: "salestax_client",
			Name:      "request_duration_seconds",
			Help:      "Duration of outbound sales-tax service requests in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"operation"},
	)

	// CircuitBreakerState is 0 closed, 1 half-open, 2 open
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "juniper",
			Subsystem: "salestax_client",
			Name:      "circuit_breaker_state",
			Help:      "Current circuit breaker state (0 closed, 1 half-open, 2 open)",
		},
		[]string{"name"},
	)

	// CacheLookupsTotal tracks directory cache hits and misses
	CacheLookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "juniper",
			Subsystem: "cache",
			Name:      "lookups_total",
			Help:      "Total number of directory cache lookups by result",
		},
		[]string{"entity", "result"},
	)

	// EventsProcessedTotal tracks consumed platform events by outcome
	EventsProcessedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "juniper",
			Subsystem: "processor",
			Name:      "events_total",
			Help:      "Total number of platform events processed by kind and outcome",
		},
		[]string{"kind", "outcome"},
	)
)
