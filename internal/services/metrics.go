package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	paymentsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_payments_total",
		Help: "Completion requests by payment mode and outcome.",
	}, []string{"mode", "outcome"})

	refundsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_refunds_total",
		Help: "Off-chain refunds issued after AI failures.",
	}, []string{"result"})

	settlementFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_settlement_failures_total",
		Help: "Ledger settlements that fell back to a placeholder reference.",
	}, []string{"reason"})

	completionDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gateway_completion_duration_seconds",
		Help:    "End-to-end duration of paid completions.",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
	}, []string{"mode"})
)
