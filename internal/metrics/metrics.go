// SPDX-License-Identifier: MIT

// Package metrics holds the Prometheus instruments of the analysis pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	JobsStarted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "eyes",
		Name:      "jobs_started_total",
		Help:      "Analysis jobs accepted for processing",
	})

	JobsFinished = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "eyes",
		Name:      "jobs_finished_total",
		Help:      "Analysis jobs finished, by terminal state",
	}, []string{"state"})

	JobDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "eyes",
		Name:      "job_duration_seconds",
		Help:      "Wall time of completed analysis jobs",
		Buckets:   prometheus.ExponentialBuckets(1, 2, 12), // 1s to ~1h
	})

	StageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "eyes",
		Name:      "stage_duration_seconds",
		Help:      "Per-detector stage latency",
		Buckets:   prometheus.ExponentialBuckets(0.005, 2, 14),
	}, []string{"stage"})

	DetectorErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "eyes",
		Name:      "detector_errors_total",
		Help:      "Detector invocations that returned an error, by kind",
	}, []string{"detector", "error_kind"})

	DetectorSkips = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "eyes",
		Name:      "detector_skips_total",
		Help:      "Detector slots skipped, by reason",
	}, []string{"detector", "reason"})

	OOMTrips = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "eyes",
		Name:      "oom_trips_total",
		Help:      "Transient resource errors that tripped the fallback ladder",
	})

	FallbackSteps = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "eyes",
		Name:      "fallback_steps_total",
		Help:      "Fallback ladder steps fired",
	}, []string{"step"})

	ShotsAnalyzed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "eyes",
		Name:      "shots_analyzed_total",
		Help:      "Shots that completed the full detector pipeline",
	})

	BundlesDegraded = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "eyes",
		Name:      "bundles_degraded_total",
		Help:      "Bundles that finished in the degraded state",
	})
)
