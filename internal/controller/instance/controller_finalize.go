// Copyright 2025 The Vynil Authors
// SPDX-License-Identifier: Apache-2.0

package instance

import (
	"context"

	batchv1 "k8s.io/api/batch/v1"
	corev1 "k8s.io/api/core/v1"
	networkingv1 "k8s.io/api/networking/v1"

	"github.com/vynil/vynil/internal/controller"
	"github.com/vynil/vynil/internal/controller/render"
)

// children gives typed access to the objects an instance owns.
type children struct {
	secrets   *controller.Handler[*corev1.Secret]
	volumes   *controller.Handler[*corev1.PersistentVolumeClaim]
	jobs      *controller.Handler[*batchv1.Job]
	cronJobs  *controller.Handler[*batchv1.CronJob]
	ingresses *controller.Handler[*networkingv1.Ingress]
}

func childrenOf(rt *controller.Runtime, namespace string) children {
	return children{
		secrets:   controller.HandlerFor(rt, namespace, func() *corev1.Secret { return &corev1.Secret{} }),
		volumes:   controller.HandlerFor(rt, namespace, func() *corev1.PersistentVolumeClaim { return &corev1.PersistentVolumeClaim{} }),
		jobs:      controller.HandlerFor(rt, namespace, func() *batchv1.Job { return &batchv1.Job{} }),
		cronJobs:  controller.HandlerFor(rt, namespace, func() *batchv1.CronJob { return &batchv1.CronJob{} }),
		ingresses: controller.HandlerFor(rt, namespace, func() *networkingv1.Ingress { return &networkingv1.Ingress{} }),
	}
}

// Cleanup deletes every child the instance may own, in reverse apply order.
// Children that were never created are skipped.
func (r *Reconciler[T]) Cleanup(ctx context.Context, obj T, pass *controller.Pass) (controller.Action, error) {
	c := childrenOf(pass.Runtime(), obj.GetNamespace())
	name := func(role string) string { return render.ChildName(obj.GetName(), role) }

	steps := []func() error{
		func() error { return controller.DeleteChild(ctx, pass, c.ingresses, name(render.RoleIngress)) },
		func() error { return controller.DeleteChild(ctx, pass, c.cronJobs, name(render.RoleBackup)) },
		func() error { return controller.DeleteChild(ctx, pass, c.jobs, name(render.RoleInstallJob)) },
		func() error { return controller.DeleteChild(ctx, pass, c.volumes, name(render.RoleBackupData)) },
		func() error { return controller.DeleteChild(ctx, pass, c.secrets, name(render.RoleValues)) },
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return controller.Action{}, err
		}
	}
	return controller.Action{}, nil
}
