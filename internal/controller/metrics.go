// Copyright 2025 The Vynil Authors
// SPDX-License-Identifier: Apache-2.0

package controller

import (
	"github.com/prometheus/client_golang/prometheus"
	"sigs.k8s.io/controller-runtime/pkg/metrics"
)

var (
	reconcileTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vynil",
			Name:      "reconcile_total",
			Help:      "Total number of reconcile passes by result",
		},
		[]string{"controller", "result"},
	)

	reconcileErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vynil",
			Name:      "reconcile_errors_total",
			Help:      "Total number of failed reconcile passes by error reason",
		},
		[]string{"controller", "reason"},
	)

	reconcileDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "vynil",
			Name:      "reconcile_duration_seconds",
			Help:      "Duration of reconcile passes in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 14), // 10ms to ~80s
		},
		[]string{"controller"},
	)

	childrenApplied = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vynil",
			Name:      "children_applied_total",
			Help:      "Total number of child operations by kind and outcome",
		},
		[]string{"controller", "child_kind", "operation"},
	)
)

func init() {
	metrics.Registry.MustRegister(
		reconcileTotal,
		reconcileErrors,
		reconcileDuration,
		childrenApplied,
	)
}

// Reconcile results.
const (
	resultSuccess = "success"
	resultError   = "error"
)

func recordReconcileMetric(controller, result string, seconds float64) {
	reconcileTotal.WithLabelValues(controller, result).Inc()
	reconcileDuration.WithLabelValues(controller).Observe(seconds)
}

func recordErrorMetric(controller string, reason Reason) {
	reconcileErrors.WithLabelValues(controller, string(reason)).Inc()
}

func recordChildMetric(controller, kind string, op Operation) {
	childrenApplied.WithLabelValues(controller, kind, string(op)).Inc()
}
