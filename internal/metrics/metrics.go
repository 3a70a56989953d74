// Package metrics holds Prometheus instruments for the dialog pipeline.  All
// collectors are registered with the global registry, so importing this
// package in main.go is enough to expose them on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	SubmissionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dialog_submissions_total",
			Help: "Settled dialog submissions by mode and outcome.",
		}, []string{"mode", "outcome"})

	ValidationFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dialog_validation_failures_total",
			Help: "Submissions rejected by form validation, by mode.",
		}, []string{"mode"})

	RejectedSubmitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dialog_rejected_submits_total",
			Help: "Submit calls ignored because a submission was already in flight.",
		}, []string{"mode"})

	SubmitDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dialog_submit_duration_seconds",
			Help:    "Time from confirm to settle.",
			Buckets: prometheus.DefBuckets,
		}, []string{"mode"})

	StrategyTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dialog_resolver_strategy_total",
			Help: "Form handle strategies chosen by the resolver.",
		}, []string{"strategy"})

	RegisteredForms = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "dialog_registered_forms",
			Help: "Form adapters currently registered across all registries.",
		})
)

func init() {
	prometheus.MustRegister(
		SubmissionsTotal,
		ValidationFailuresTotal,
		RejectedSubmitsTotal,
		SubmitDuration,
		StrategyTotal,
		RegisteredForms,
	)
}
