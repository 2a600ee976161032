package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	runsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "inkdrop_pipeline_runs_total",
		Help: "Completed pipeline runs by final outcome",
	}, []string{"outcome"})

	runDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "inkdrop_pipeline_run_duration_seconds",
		Help:    "End-to-end pipeline run latency by final outcome",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
	}, []string{"outcome"})

	classifierDegraded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "inkdrop_pipeline_classifier_degraded_total",
		Help: "Runs where the classifier failed and the event fell back to needs_review",
	})
)
