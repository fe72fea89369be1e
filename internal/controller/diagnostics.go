// Copyright 2025 The Vynil Authors
// SPDX-License-Identifier: Apache-2.0

package controller

import (
	"sync"
	"time"
)

// KindDiagnostics is the last reconcile state of one kind.
type KindDiagnostics struct {
	LastEventTime time.Time `json:"last_event_time"`
	LastObject    string    `json:"last_object"`
	LastResult    string    `json:"last_result"`
	LastError     string    `json:"last_error,omitempty"`
	Reconciles    uint64    `json:"reconciles"`
	Failures      uint64    `json:"failures"`
}

// Diagnostics collects per kind reconcile state for the diagnostics endpoint.
type Diagnostics struct {
	mu    sync.RWMutex
	kinds map[string]*KindDiagnostics
	now   func() time.Time
}

// NewDiagnostics returns an empty collector stamped with the wall clock.
func NewDiagnostics() *Diagnostics {
	return &Diagnostics{kinds: map[string]*KindDiagnostics{}, now: time.Now}
}

// Register makes kind appear in snapshots before its first reconcile.
func (d *Diagnostics) Register(kind string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.kinds[kind]; !ok {
		d.kinds[kind] = &KindDiagnostics{}
	}
}

// Record stores the outcome of one pass.
func (d *Diagnostics) Record(kind, object string, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	k, ok := d.kinds[kind]
	if !ok {
		k = &KindDiagnostics{}
		d.kinds[kind] = k
	}
	k.LastEventTime = d.now().UTC()
	k.LastObject = object
	k.Reconciles++
	if err != nil {
		k.LastResult = resultError
		k.LastError = err.Error()
		k.Failures++
		return
	}
	k.LastResult = resultSuccess
	k.LastError = ""
}

// Snapshot returns a copy of the collected state keyed by kind.
func (d *Diagnostics) Snapshot() map[string]KindDiagnostics {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make(map[string]KindDiagnostics, len(d.kinds))
	for kind, k := range d.kinds {
		out[kind] = *k
	}
	return out
}
