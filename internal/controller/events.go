// Copyright 2025 The Vynil Authors
// SPDX-License-Identifier: Apache-2.0

package controller

import (
	"context"
	"unicode/utf8"

	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/client-go/tools/events"
	"sigs.k8s.io/controller-runtime/pkg/log"
)

// maxEventField is the API limit applied to event reason and action.
const maxEventField = 100

// Event is one entry for the event history of an object.
type Event struct {
	Type   string
	Reason string
	Action string
	Note   string
	// Related is the optional secondary object of the event.
	Related runtime.Object
}

// EventFrom builds a Normal event for a lifecycle transition.
func EventFrom(reason, action, note string) Event {
	return Event{Type: corev1.EventTypeNormal, Reason: reason, Action: action, Note: note}
}

// EventFromError builds a Warning event for a failed pass. Reason and action
// carry the truncated message, the note carries it in full.
func EventFromError(err error) Event {
	msg := err.Error()
	short := truncate(msg, maxEventField)
	return Event{Type: corev1.EventTypeWarning, Reason: short, Action: short, Note: msg}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	// Step back to the start of the rune straddling the limit.
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// Reporter publishes events attributed to the manager identity baked into
// the recorder.
type Reporter struct {
	recorder events.EventRecorder
}

// NewReporter wraps recorder. A nil recorder drops every event.
func NewReporter(recorder events.EventRecorder) *Reporter {
	return &Reporter{recorder: recorder}
}

// Publish records ev against obj. Publication is asynchronous and never fails
// the caller.
func (r *Reporter) Publish(ctx context.Context, obj runtime.Object, ev Event) {
	if r == nil || r.recorder == nil {
		log.FromContext(ctx).V(1).Info("dropping event, no recorder", "reason", ev.Reason, "note", ev.Note)
		return
	}
	r.recorder.Eventf(obj, ev.Related, ev.Type, ev.Reason, ev.Action, "%s", ev.Note)
}
