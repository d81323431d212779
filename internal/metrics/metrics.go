// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "birthday"

var (
	// GenerationsTotal counts collaborator calls by kind (text, image,
	// premium) and outcome (ok, error, fallback).
	GenerationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "generation",
			Name:      "requests_total",
			Help:      "Generation collaborator calls by kind and outcome",
		},
		[]string{"kind", "outcome"},
	)

	GenerationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "generation",
			Name:      "duration_seconds",
			Help:      "Generation collaborator latency in seconds",
			Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 20, 40, 60},
		},
		[]string{"kind"},
	)

	// ExpansionsTotal counts expand calls by result: created, existing or error.
	ExpansionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "premium",
			Name:      "expansions_total",
			Help:      "Premium expansions by result",
		},
		[]string{"result"},
	)

	// PremiumRecovered records how many variants survived parsing.
	PremiumRecovered = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "premium",
			Name:      "variants_recovered",
			Help:      "Premium variants recovered from a generation response",
			Buckets:   []float64{1, 2, 3, 4, 5},
		},
	)

	PurchaseTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "purchase",
			Name:      "transitions_total",
			Help:      "Purchase status transitions by target status and source",
		},
		[]string{"status", "source"},
	)

	DeliveriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "delivery",
			Name:      "sends_total",
			Help:      "Email and SMS sends by channel and outcome",
		},
		[]string{"channel", "outcome"},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route and status code",
		},
		[]string{"method", "route", "status"},
	)
)
