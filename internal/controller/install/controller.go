// Copyright 2025 The Vynil Authors
// SPDX-License-Identifier: Apache-2.0

package install

import (
	"context"

	batchv1 "k8s.io/api/batch/v1"
	corev1 "k8s.io/api/core/v1"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/log"

	vynilv1alpha1 "github.com/vynil/vynil/api/v1alpha1"
	"github.com/vynil/vynil/internal/controller"
	"github.com/vynil/vynil/internal/controller/render"
	"github.com/vynil/vynil/internal/packages"
	"github.com/vynil/vynil/internal/validation"
	"github.com/vynil/vynil/pkg/hash"
)

// ControllerName names the install controller in metrics, events and diagnostics.
const ControllerName = "install"

const kind = "Install"

// Reconciler installs one package of a Distrib through a worker job.
type Reconciler struct {
	Agent render.Agent
	// Registry, when set, checks the resolved image is published.
	Registry  controller.TagChecker
	Validator *validation.Validator
}

// +kubebuilder:rbac:groups=vynil.dev,resources=installs,verbs=get;list;watch;update;patch
// +kubebuilder:rbac:groups=vynil.dev,resources=installs/status,verbs=get;update;patch
// +kubebuilder:rbac:groups=vynil.dev,resources=installs/finalizers,verbs=update
// +kubebuilder:rbac:groups=vynil.dev,resources=distribs,verbs=get;list;watch
// +kubebuilder:rbac:groups="",resources=secrets,verbs=get;list;watch;create;update;patch;delete
// +kubebuilder:rbac:groups=batch,resources=jobs,verbs=get;list;watch;create;update;patch;delete

// Reconcile resolves the package, writes the values Secret, runs the
// install job and reports its phase.
func (r *Reconciler) Reconcile(ctx context.Context, inst *vynilv1alpha1.Install, pass *controller.Pass) (controller.Action, error) {
	logger := log.FromContext(ctx).WithValues("install", inst.Name)
	rt := pass.Runtime()

	if err := r.Validator.Struct(&inst.Spec); err != nil {
		return controller.Action{}, controller.Wrap(controller.ReasonIllegalInstall, err, "invalid install")
	}

	pkg, err := controller.ResolvePackage(ctx, rt, inst.Spec.PackageRef, inst.Spec.Component, r.Registry)
	if err != nil {
		return controller.Action{}, err
	}
	resolved := packages.ToResolved(pkg)
	if inst.Status.Package == nil || *inst.Status.Package != resolved {
		logger.Info("package resolved", "version", resolved.Version, "image", resolved.Image)
	}
	inst.Status.Package = &resolved

	rc := render.Context{
		Agent:     r.Agent,
		Kind:      kind,
		Namespace: inst.Namespace,
		Name:      inst.Name,
		Package:   resolved,
		Defaults:  pkg.Options,
		Options:   inst.Spec.Options,
	}
	secret, err := render.ValuesSecret(rc)
	if err != nil {
		return controller.Action{}, controller.Wrap(controller.ReasonIllegalInstall, err, "invalid options")
	}
	job, err := render.Job(rc, render.ActionInstall, hash.Of(secret.Data))
	if err != nil {
		return controller.Action{}, controller.Wrap(controller.ReasonIllegalInstall, err, "invalid package")
	}

	c := childrenOf(rt, inst.Namespace)
	if _, err := controller.ApplyChild(ctx, pass, c.secrets, secret, render.RoleValues); err != nil {
		return controller.Action{}, err
	}
	if _, err := controller.ApplyChild(ctx, pass, c.jobs, job, render.RoleInstallJob); err != nil {
		return controller.Action{}, err
	}

	phase, action, err := controller.ObserveJob(ctx, rt, inst.Namespace, job.Name)
	if phase != "" {
		inst.Status.Phase = phase
	}
	return action, err
}

// SetupWithManager registers the install controller and the children it owns.
func (r *Reconciler) SetupWithManager(mgr ctrl.Manager, rt *controller.Runtime, maxConcurrent int) error {
	c := controller.NewController(ControllerName, rt, func() *vynilv1alpha1.Install { return &vynilv1alpha1.Install{} }, r)
	return c.SetupWithManager(mgr, maxConcurrent, &batchv1.Job{}, &corev1.Secret{})
}
