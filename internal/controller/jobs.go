// Copyright 2025 The Vynil Authors
// SPDX-License-Identifier: Apache-2.0

package controller

import (
	"context"
	"errors"

	batchv1 "k8s.io/api/batch/v1"
	corev1 "k8s.io/api/core/v1"

	vynilv1alpha1 "github.com/vynil/vynil/api/v1alpha1"
)

// JobPhase maps the conditions of a worker job to a phase. The message is
// the one of the terminal condition, if any.
func JobPhase(job *batchv1.Job) (vynilv1alpha1.Phase, string) {
	for _, c := range job.Status.Conditions {
		if c.Status != corev1.ConditionTrue {
			continue
		}
		switch c.Type {
		case batchv1.JobComplete, batchv1.JobSuccessCriteriaMet:
			return vynilv1alpha1.PhaseInstalled, c.Message
		case batchv1.JobFailed, batchv1.JobFailureTarget:
			msg := c.Message
			if msg == "" {
				msg = c.Reason
			}
			return vynilv1alpha1.PhaseFailed, msg
		}
	}
	if job.Status.Active > 0 || job.Status.Failed > 0 {
		return vynilv1alpha1.PhaseInstalling, ""
	}
	return vynilv1alpha1.PhasePending, ""
}

// ObserveJob reads the worker job and turns its phase into the next action.
// A failed job is a JobFailed error.
func ObserveJob(ctx context.Context, rt *Runtime, namespace, name string) (vynilv1alpha1.Phase, Action, error) {
	jobs := HandlerFor(rt, namespace, func() *batchv1.Job { return &batchv1.Job{} })
	job, err := jobs.Get(ctx, name)
	if err != nil {
		var herr *HandlerError
		if errors.As(err, &herr) && herr.Reason == HandlerNotFound {
			return vynilv1alpha1.PhasePending, RequeueAfter(rt.Timing.JobPollInterval), nil
		}
		return "", Action{}, Wrap(ReasonUnknown, err, "failed to read job")
	}
	phase, msg := JobPhase(job)
	switch phase {
	case vynilv1alpha1.PhaseInstalled:
		return phase, Action{}, nil
	case vynilv1alpha1.PhaseFailed:
		return phase, Action{}, Errorf(ReasonJobFailed, "job %s failed: %s", name, msg)
	default:
		return phase, RequeueAfter(rt.Timing.JobPollInterval), nil
	}
}
