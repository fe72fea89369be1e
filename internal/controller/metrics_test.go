// Copyright 2025 The Vynil Authors
// SPDX-License-Identifier: Apache-2.0

package controller

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordReconcileMetric(t *testing.T) {
	reconcileTotal.Reset()
	reconcileDuration.Reset()

	recordReconcileMetric("distrib", resultSuccess, 0.2)
	recordReconcileMetric("distrib", resultError, 0.1)
	recordReconcileMetric("distrib", resultSuccess, 0.3)

	counter, err := reconcileTotal.GetMetricWithLabelValues("distrib", resultSuccess)
	assert.NoError(t, err)
	assert.Equal(t, float64(2), testutil.ToFloat64(counter))

	errCounter, err := reconcileTotal.GetMetricWithLabelValues("distrib", resultError)
	assert.NoError(t, err)
	assert.Equal(t, float64(1), testutil.ToFloat64(errCounter))

	assert.Equal(t, 1, testutil.CollectAndCount(reconcileDuration))
}

func TestRecordErrorMetric(t *testing.T) {
	reconcileErrors.Reset()

	recordErrorMetric("install", ReasonPackageNotFound)
	recordErrorMetric("install", ReasonPackageNotFound)
	recordErrorMetric("install", ReasonChildApply)

	assert.Equal(t, float64(2), testutil.ToFloat64(reconcileErrors.WithLabelValues("install", "PackageNotFound")))
	assert.Equal(t, float64(1), testutil.ToFloat64(reconcileErrors.WithLabelValues("install", "ChildApply")))
}

func TestRecordChildMetric(t *testing.T) {
	childrenApplied.Reset()

	recordChildMetric("install", "Job", OperationCreated)
	recordChildMetric("install", "Job", OperationUnchanged)
	recordChildMetric("install", "Job", OperationUnchanged)

	assert.Equal(t, float64(2), testutil.ToFloat64(childrenApplied.WithLabelValues("install", "Job", "unchanged")))
}
