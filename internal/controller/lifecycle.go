// Copyright 2025 The Vynil Authors
// SPDX-License-Identifier: Apache-2.0

package controller

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/util/retry"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/client"
	crcontroller "sigs.k8s.io/controller-runtime/pkg/controller"
	"sigs.k8s.io/controller-runtime/pkg/controller/controllerutil"
	"sigs.k8s.io/controller-runtime/pkg/log"
)

// LifecycleState is the deletion state of a managed object, computed once per pass.
type LifecycleState int

const (
	// Active objects have no deletion timestamp.
	Active LifecycleState = iota
	// Terminating objects have a deletion timestamp.
	Terminating
)

func (s LifecycleState) String() string {
	switch s {
	case Active:
		return "Active"
	case Terminating:
		return "Terminating"
	default:
		return fmt.Sprintf("LifecycleState(%d)", int(s))
	}
}

// StateOf returns the lifecycle state of obj.
func StateOf(obj client.Object) LifecycleState {
	if obj.GetDeletionTimestamp().IsZero() {
		return Active
	}
	return Terminating
}

// KindReconciler implements the reconcile and cleanup contract of one kind.
// Children must be written through the pass so the finalizer, owner
// reference and status stay consistent.
type KindReconciler[T ManagedObject] interface {
	// Reconcile drives the children of obj to the desired state.
	Reconcile(ctx context.Context, obj T, pass *Pass) (Action, error)
	// Cleanup deletes the children of obj in reverse apply order. A zero
	// Action means cleanup is complete.
	Cleanup(ctx context.Context, obj T, pass *Pass) (Action, error)
}

// Controller is the generic reconcile loop of one managed kind. It is
// registered with controller-runtime, which guarantees at most one pass in
// flight per object.
type Controller[T ManagedObject] struct {
	name       string
	rt         *Runtime
	newObject  func() T
	reconciler KindReconciler[T]
}

// NewController returns the controller named name for the kind built by newObject.
func NewController[T ManagedObject](name string, rt *Runtime, newObject func() T, reconciler KindReconciler[T]) *Controller[T] {
	rt.Diagnostics.Register(name)
	return &Controller[T]{name: name, rt: rt, newObject: newObject, reconciler: reconciler}
}

// Name returns the controller name.
func (c *Controller[T]) Name() string {
	return c.name
}

// Reconcile runs one pass for the object named in req.
func (c *Controller[T]) Reconcile(ctx context.Context, req ctrl.Request) (ctrl.Result, error) {
	logger := log.FromContext(ctx)

	obj := c.newObject()
	if err := c.rt.Client.Get(ctx, req.NamespacedName, obj); err != nil {
		if apierrors.IsNotFound(err) {
			return ctrl.Result{}, nil
		}
		return ctrl.Result{}, err
	}
	before := obj.DeepCopyObject().(T)

	start := c.rt.Now()
	passCtx, cancel := context.WithTimeout(ctx, c.rt.Timing.Timeout)
	defer cancel()

	state := StateOf(obj)
	var action Action
	var err error
	switch state {
	case Active:
		action, err = c.reconcileActive(passCtx, obj, before)
	case Terminating:
		action, err = c.reconcileTerminating(passCtx, obj)
	}
	if err != nil && errors.Is(passCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		err = Wrap(ReasonElapsed, err, fmt.Sprintf("reconcile exceeded %s", c.rt.Timing.Timeout))
	}

	seconds := c.rt.Now().Sub(start).Seconds()
	c.rt.Diagnostics.Record(c.name, req.NamespacedName.String(), err)
	if err != nil {
		recordReconcileMetric(c.name, resultError, seconds)
		return c.fail(ctx, obj, before, state, err)
	}
	recordReconcileMetric(c.name, resultSuccess, seconds)
	logger.V(1).Info("reconciled", "state", state, "duration", seconds)
	return action.result(c.rt.Timing.DriftInterval), nil
}

func (c *Controller[T]) reconcileActive(ctx context.Context, obj, before T) (Action, error) {
	pass := newPass(c.rt, c.name, obj)
	action, err := c.reconciler.Reconcile(ctx, obj, pass)
	if err != nil {
		return action, err
	}

	previous := before.GetManagedStatus().Components
	if err := pass.pruneStale(ctx, previous); err != nil {
		return Action{}, err
	}

	obj.GetManagedStatus().Errors = nil
	obj.GetManagedStatus().ObservedGeneration = obj.GetGeneration()
	setReady(obj, metav1.ConditionTrue, "Reconciled", "")
	if err := c.rt.Status.UpdateComponents(ctx, obj, before, pass.Applied()); err != nil {
		return Action{}, Wrap(ReasonStatusWrite, err, "failed to write status")
	}
	return action, nil
}

func (c *Controller[T]) reconcileTerminating(ctx context.Context, obj T) (Action, error) {
	logger := log.FromContext(ctx)
	if !controllerutil.ContainsFinalizer(obj, Finalizer) {
		return AwaitChange(), nil
	}

	since := c.rt.Now().Sub(obj.GetDeletionTimestamp().Time)
	overdue := since > c.rt.Timing.DeleteWarnAfter

	pass := newPass(c.rt, c.name, obj)
	action, err := c.reconciler.Cleanup(ctx, obj, pass)
	if err != nil {
		if overdue {
			return Action{}, Wrap(ReasonTooLongDelete, err,
				fmt.Sprintf("deletion pending for %s, cleanup failed", since.Round(time.Second)))
		}
		return action, err
	}
	if !action.IsZero() {
		if overdue {
			return Action{}, Errorf(ReasonTooLongDelete, "deletion pending for %s, cleanup not finished",
				since.Round(time.Second))
		}
		return action, nil
	}

	declared := slices.Clone(obj.GetManagedStatus().Components)
	for _, ref := range pass.deleted {
		if !slices.Contains(declared, ref) {
			declared = append(declared, ref)
		}
	}
	remaining, err := pass.remaining(ctx, declared)
	if err != nil {
		return Action{}, Wrap(ReasonChildDelete, err, "failed to verify children deletion")
	}
	if len(remaining) > 0 {
		if overdue {
			return Action{}, Errorf(ReasonTooLongDelete, "deletion pending for %s, children remain: %v",
				since.Round(time.Second), remaining)
		}
		logger.Info("waiting for children to be deleted", "remaining", len(remaining))
		return RequeueAfter(c.rt.Timing.JobPollInterval), nil
	}

	if err := c.removeFinalizer(ctx, client.ObjectKeyFromObject(obj)); err != nil {
		return Action{}, Wrap(ReasonChildDelete, err, "failed to remove finalizer")
	}
	c.rt.Reporter.Publish(ctx, obj, EventFrom("Cleaned", "Cleanup",
		fmt.Sprintf("cleanup of %s done", obj.GetName())))
	return AwaitChange(), nil
}

// removeFinalizer retries on conflict against a fresh read, so an edit made
// during deletion is never overwritten.
func (c *Controller[T]) removeFinalizer(ctx context.Context, key client.ObjectKey) error {
	err := retry.RetryOnConflict(retry.DefaultRetry, func() error {
		latest := c.newObject()
		if err := c.rt.Reader.Get(ctx, key, latest); err != nil {
			return err
		}
		if !controllerutil.RemoveFinalizer(latest, Finalizer) {
			return nil
		}
		return c.rt.Client.Update(ctx, latest)
	})
	if apierrors.IsNotFound(err) {
		return nil
	}
	return err
}

// fail records a failed pass on the object and decides the retry policy.
// Semantic errors wait for the error requeue interval, transient errors go
// back to the work queue with exponential backoff.
func (c *Controller[T]) fail(ctx context.Context, obj, before T, state LifecycleState, err error) (ctrl.Result, error) {
	logger := log.FromContext(ctx)
	rerr := AsError(err)
	if rerr.Semantic() {
		logger.Error(err, "reconcile failed", "reason", rerr.Reason, "state", state)
	} else {
		// controller-runtime logs the returned error again.
		logger.V(1).Info("reconcile failed, retrying", "reason", rerr.Reason, "state", state, "error", err.Error())
	}

	recordErrorMetric(c.name, rerr.Reason)
	c.rt.Reporter.Publish(ctx, obj, EventFromError(rerr))

	obj.GetManagedStatus().Components = before.GetManagedStatus().Components
	setReady(obj, metav1.ConditionFalse, string(rerr.Reason), rerr.Error())
	if serr := c.rt.Status.UpdateErrors(ctx, obj, before, []string{rerr.Error()}); serr != nil && !apierrors.IsNotFound(serr) {
		logger.Error(serr, "failed to write error status")
	}

	if rerr.Semantic() {
		return ctrl.Result{RequeueAfter: c.rt.Timing.ErrorRequeue}, nil
	}
	return ctrl.Result{}, rerr
}

// SetupWithManager registers the controller for the kind with its owned child kinds.
func (c *Controller[T]) SetupWithManager(mgr ctrl.Manager, maxConcurrent int, owns ...client.Object) error {
	b := ctrl.NewControllerManagedBy(mgr).
		Named(c.name).
		For(c.newObject())
	for _, o := range owns {
		b = b.Owns(o)
	}
	return b.WithOptions(crcontroller.Options{MaxConcurrentReconciles: maxConcurrent}).Complete(c)
}
