// Copyright 2025 The Vynil Authors
// SPDX-License-Identifier: Apache-2.0

package controller

import (
	"time"

	ctrl "sigs.k8s.io/controller-runtime"
)

// Action tells the controller when to run the next pass for an object.
// The zero Action requeues after the drift interval; returned from Cleanup it
// means cleanup is done.
type Action struct {
	requeueAfter time.Duration
	await        bool
}

// RequeueAfter schedules the next pass after d.
func RequeueAfter(d time.Duration) Action {
	return Action{requeueAfter: d}
}

// AwaitChange schedules nothing. The next pass runs on the next watch event.
func AwaitChange() Action {
	return Action{await: true}
}

// IsZero reports whether the action is the default one.
func (a Action) IsZero() bool {
	return a.requeueAfter == 0 && !a.await
}

func (a Action) result(drift time.Duration) ctrl.Result {
	switch {
	case a.await:
		return ctrl.Result{}
	case a.requeueAfter > 0:
		return ctrl.Result{RequeueAfter: a.requeueAfter}
	default:
		return ctrl.Result{RequeueAfter: drift}
	}
}
