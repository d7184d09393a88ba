// Package metrics holds the Prometheus collectors of the charges service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// WizardsCreated counts wizards opened.
	WizardsCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "charge_wizards_created_total",
			Help: "Number of charge wizards created",
		},
	)

	// WizardTransitions counts step transitions by action and outcome.
	WizardTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "charge_wizard_transitions_total",
			Help: "Wizard step transitions",
		},
		[]string{"action", "result"},
	)

	// ValidationFailures counts blocked steps and submissions by field.
	ValidationFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "charge_validation_failures_total",
			Help: "Charge validation failures by offending field",
		},
		[]string{"field"},
	)

	// Submissions counts gateway submissions by result.
	Submissions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "charge_submissions_total",
			Help: "Charge submissions sent to the gateway",
		},
		[]string{"result"},
	)

	// SubmissionDuration observes the gateway round trip of a submission.
	SubmissionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "charge_submission_duration_seconds",
			Help:    "Latency of charge submissions to the gateway",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"result"},
	)

	// Simulations counts summary previews by result.
	Simulations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "charge_simulations_total",
			Help: "Charge simulations computed",
		},
		[]string{"result"},
	)
)
