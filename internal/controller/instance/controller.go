// Copyright 2025 The Vynil Authors
// SPDX-License-Identifier: Apache-2.0

// Package instance reconciles the SystemInstance, TenantInstance and
// ServiceInstance kinds. The three share one reconciler, parameterized by kind.
package instance

import (
	"context"
	"fmt"

	batchv1 "k8s.io/api/batch/v1"
	corev1 "k8s.io/api/core/v1"
	networkingv1 "k8s.io/api/networking/v1"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/log"

	vynilv1alpha1 "github.com/vynil/vynil/api/v1alpha1"
	"github.com/vynil/vynil/internal/controller"
	"github.com/vynil/vynil/internal/controller/render"
	"github.com/vynil/vynil/internal/packages"
	"github.com/vynil/vynil/internal/validation"
	"github.com/vynil/vynil/pkg/hash"
)

// Controller names.
const (
	SystemControllerName  = "systeminstance"
	TenantControllerName  = "tenantinstance"
	ServiceControllerName = "serviceinstance"
)

// Object is an instance kind.
type Object interface {
	controller.ManagedObject
	GetInstanceSpec() *vynilv1alpha1.InstanceSpec
	GetInstanceStatus() *vynilv1alpha1.InstanceStatus
	GetBackup() *vynilv1alpha1.BackupSpec
	GetIngress() *vynilv1alpha1.IngressSpec
	PackageType() string
}

// Options are shared by the three instance reconcilers.
type Options struct {
	Agent     render.Agent
	Registry  controller.TagChecker
	Validator *validation.Validator
}

// Reconciler installs a package for one instance and keeps its backup and
// ingress children in line with the spec.
type Reconciler[T Object] struct {
	Kind string
	Options
}

// +kubebuilder:rbac:groups=vynil.dev,resources=systeminstances;tenantinstances;serviceinstances,verbs=get;list;watch;update;patch
// +kubebuilder:rbac:groups=vynil.dev,resources=systeminstances/status;tenantinstances/status;serviceinstances/status,verbs=get;update;patch
// +kubebuilder:rbac:groups=vynil.dev,resources=systeminstances/finalizers;tenantinstances/finalizers;serviceinstances/finalizers,verbs=update
// +kubebuilder:rbac:groups=vynil.dev,resources=distribs,verbs=get;list;watch
// +kubebuilder:rbac:groups="",resources=secrets;persistentvolumeclaims,verbs=get;list;watch;create;update;patch;delete
// +kubebuilder:rbac:groups=batch,resources=jobs;cronjobs,verbs=get;list;watch;create;update;patch;delete
// +kubebuilder:rbac:groups=networking.k8s.io,resources=ingresses,verbs=get;list;watch;create;update;patch;delete

// Reconcile applies, in order, the values Secret, the backup volume, the
// install job, the backup CronJob and the Ingress.
func (r *Reconciler[T]) Reconcile(ctx context.Context, obj T, pass *controller.Pass) (controller.Action, error) {
	logger := log.FromContext(ctx).WithValues("kind", r.Kind, "instance", obj.GetName())
	rt := pass.Runtime()
	spec := obj.GetInstanceSpec()
	backup := obj.GetBackup()
	ingress := obj.GetIngress()

	if err := r.validate(spec, backup, ingress); err != nil {
		return controller.Action{}, controller.Wrap(controller.ReasonIllegalInstance, err, fmt.Sprintf("invalid %s", r.Kind))
	}

	pkg, err := controller.ResolvePackage(ctx, rt, spec.PackageRef, spec.Package, r.Registry)
	if err != nil {
		return controller.Action{}, err
	}
	if pkg.Type != obj.PackageType() {
		return controller.Action{}, controller.Errorf(controller.ReasonIllegalInstance,
			"package %s/%s is of type %q, %s needs %q", pkg.Category, pkg.Name, pkg.Type, r.Kind, obj.PackageType())
	}
	status := obj.GetInstanceStatus()
	resolved := packages.ToResolved(pkg)
	if status.Package == nil || *status.Package != resolved {
		logger.Info("package resolved", "version", resolved.Version, "image", resolved.Image)
	}
	status.Package = &resolved

	rc := render.Context{
		Agent:     r.Agent,
		Kind:      r.Kind,
		Namespace: obj.GetNamespace(),
		Name:      obj.GetName(),
		Package:   resolved,
		Defaults:  pkg.Options,
		Options:   spec.Options,
	}
	secret, err := render.ValuesSecret(rc)
	if err != nil {
		return controller.Action{}, controller.Wrap(controller.ReasonIllegalInstance, err, "invalid options")
	}
	job, err := render.Job(rc, render.ActionInstall, hash.Of(secret.Data))
	if err != nil {
		return controller.Action{}, controller.Wrap(controller.ReasonIllegalInstance, err, "invalid package")
	}

	c := childrenOf(rt, obj.GetNamespace())
	if _, err := controller.ApplyChild(ctx, pass, c.secrets, secret, render.RoleValues); err != nil {
		return controller.Action{}, err
	}
	if backup != nil {
		if _, err := controller.ApplyChild(ctx, pass, c.volumes, render.BackupPVC(rc, backup), render.RoleBackupData); err != nil {
			return controller.Action{}, err
		}
	}
	if _, err := controller.ApplyChild(ctx, pass, c.jobs, job, render.RoleInstallJob); err != nil {
		return controller.Action{}, err
	}
	if backup != nil {
		cron, err := render.BackupCronJob(rc, backup)
		if err != nil {
			return controller.Action{}, controller.Wrap(controller.ReasonIllegalInstance, err, "invalid package")
		}
		if _, err := controller.ApplyChild(ctx, pass, c.cronJobs, cron, render.RoleBackup); err != nil {
			return controller.Action{}, err
		}
	}
	if ingress != nil {
		if _, err := controller.ApplyChild(ctx, pass, c.ingresses, render.Ingress(rc, ingress), render.RoleIngress); err != nil {
			return controller.Action{}, err
		}
	}

	phase, action, err := controller.ObserveJob(ctx, rt, obj.GetNamespace(), job.Name)
	if phase != "" {
		status.Phase = phase
	}
	return action, err
}

func (r *Reconciler[T]) validate(spec *vynilv1alpha1.InstanceSpec, backup *vynilv1alpha1.BackupSpec, ingress *vynilv1alpha1.IngressSpec) error {
	if err := r.Validator.Struct(spec); err != nil {
		return err
	}
	if backup != nil {
		if err := r.Validator.Struct(backup); err != nil {
			return fmt.Errorf("backup: %w", err)
		}
	}
	if ingress != nil {
		if err := r.Validator.Struct(ingress); err != nil {
			return fmt.Errorf("ingress: %w", err)
		}
	}
	return nil
}

func setup[T Object](mgr ctrl.Manager, rt *controller.Runtime, name, kind string, newObject func() T, opts Options, maxConcurrent int) error {
	r := &Reconciler[T]{Kind: kind, Options: opts}
	c := controller.NewController(name, rt, newObject, r)
	return c.SetupWithManager(mgr, maxConcurrent,
		&corev1.Secret{}, &corev1.PersistentVolumeClaim{}, &batchv1.Job{}, &batchv1.CronJob{}, &networkingv1.Ingress{})
}

// SetupWithManager registers the three instance controllers.
func SetupWithManager(mgr ctrl.Manager, rt *controller.Runtime, opts Options, maxConcurrent int) error {
	if err := setup(mgr, rt, SystemControllerName, "SystemInstance",
		func() *vynilv1alpha1.SystemInstance { return &vynilv1alpha1.SystemInstance{} }, opts, maxConcurrent); err != nil {
		return err
	}
	if err := setup(mgr, rt, TenantControllerName, "TenantInstance",
		func() *vynilv1alpha1.TenantInstance { return &vynilv1alpha1.TenantInstance{} }, opts, maxConcurrent); err != nil {
		return err
	}
	return setup(mgr, rt, ServiceControllerName, "ServiceInstance",
		func() *vynilv1alpha1.ServiceInstance { return &vynilv1alpha1.ServiceInstance{} }, opts, maxConcurrent)
}
