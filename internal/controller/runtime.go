// Copyright 2025 The Vynil Authors
// SPDX-License-Identifier: Apache-2.0

package controller

import (
	"time"

	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/client-go/tools/events"
	"sigs.k8s.io/controller-runtime/pkg/client"
)

// Finalizer blocks deletion of a managed object until its children are gone.
const Finalizer = "vynil.dev/cleanup"

// Timing holds the intervals driving requeues.
type Timing struct {
	// DriftInterval is the requeue after a converged pass.
	DriftInterval time.Duration
	// ErrorRequeue is the requeue after a semantic error.
	ErrorRequeue time.Duration
	// JobPollInterval is the requeue while a worker job runs or children terminate.
	JobPollInterval time.Duration
	// Timeout bounds one pass.
	Timeout time.Duration
	// DeleteWarnAfter is how long a deletion may take before TooLongDelete is reported.
	DeleteWarnAfter time.Duration
}

// DefaultTiming returns the intervals used when nothing is configured.
func DefaultTiming() Timing {
	return Timing{
		DriftInterval:   15 * time.Minute,
		ErrorRequeue:    5 * time.Minute,
		JobPollInterval: 20 * time.Second,
		Timeout:         2 * time.Minute,
		DeleteWarnAfter: 10 * time.Minute,
	}
}

// Runtime is the state shared by every controller of a manager.
type Runtime struct {
	Client      client.Client
	Reader      client.Reader
	Scheme      *runtime.Scheme
	Reporter    *Reporter
	Status      *StatusWriter
	Diagnostics *Diagnostics
	// FieldOwner is the manager name, used as field manager and label value.
	FieldOwner string
	Timing     Timing
	Now        func() time.Time
}

// NewRuntime assembles a Runtime. Reads go through reader; pass the client
// itself when no separate reader exists.
func NewRuntime(c client.Client, reader client.Reader, recorder events.EventRecorder, fieldOwner string, timing Timing) *Runtime {
	if reader == nil {
		reader = c
	}
	return &Runtime{
		Client:      c,
		Reader:      reader,
		Scheme:      c.Scheme(),
		Reporter:    NewReporter(recorder),
		Status:      NewStatusWriter(c, fieldOwner),
		Diagnostics: NewDiagnostics(),
		FieldOwner:  fieldOwner,
		Timing:      timing,
		Now:         time.Now,
	}
}
