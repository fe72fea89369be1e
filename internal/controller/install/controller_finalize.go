// Copyright 2025 The Vynil Authors
// SPDX-License-Identifier: Apache-2.0

package install

import (
	"context"

	batchv1 "k8s.io/api/batch/v1"
	corev1 "k8s.io/api/core/v1"

	vynilv1alpha1 "github.com/vynil/vynil/api/v1alpha1"
	"github.com/vynil/vynil/internal/controller"
	"github.com/vynil/vynil/internal/controller/render"
)

// children gives typed access to the objects an Install owns.
type children struct {
	secrets *controller.Handler[*corev1.Secret]
	jobs    *controller.Handler[*batchv1.Job]
}

func childrenOf(rt *controller.Runtime, namespace string) children {
	return children{
		secrets: controller.HandlerFor(rt, namespace, func() *corev1.Secret { return &corev1.Secret{} }),
		jobs:    controller.HandlerFor(rt, namespace, func() *batchv1.Job { return &batchv1.Job{} }),
	}
}

// Cleanup deletes the install job, then the values Secret.
func (r *Reconciler) Cleanup(ctx context.Context, inst *vynilv1alpha1.Install, pass *controller.Pass) (controller.Action, error) {
	c := childrenOf(pass.Runtime(), inst.Namespace)
	if err := controller.DeleteChild(ctx, pass, c.jobs, render.ChildName(inst.Name, render.RoleInstallJob)); err != nil {
		return controller.Action{}, err
	}
	if err := controller.DeleteChild(ctx, pass, c.secrets, render.ChildName(inst.Name, render.RoleValues)); err != nil {
		return controller.Action{}, err
	}
	return controller.Action{}, nil
}
