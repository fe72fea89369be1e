// Copyright 2025 The Vynil Authors
// SPDX-License-Identifier: Apache-2.0

package distrib

import (
	"context"
	"errors"
	"fmt"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/log"

	vynilv1alpha1 "github.com/vynil/vynil/api/v1alpha1"
	"github.com/vynil/vynil/internal/controller"
	"github.com/vynil/vynil/internal/packages/git"
	"github.com/vynil/vynil/internal/validation"
)

// ControllerName names the distrib controller in metrics, events and diagnostics.
const ControllerName = "distrib"

// Keys of the login Secret.
const (
	UsernameKey = "username"
	PasswordKey = "password"
)

const defaultBranch = "main"

// Fetcher clones a distrib repository and indexes its packages.
type Fetcher interface {
	Fetch(ctx context.Context, src git.Source) (*git.Result, error)
}

// Reconciler refreshes the package index of a Distrib. A Distrib owns no
// children.
type Reconciler struct {
	Fetcher   Fetcher
	Validator *validation.Validator
}

// +kubebuilder:rbac:groups=vynil.dev,resources=distribs,verbs=get;list;watch;update;patch
// +kubebuilder:rbac:groups=vynil.dev,resources=distribs/status,verbs=get;update;patch
// +kubebuilder:rbac:groups=vynil.dev,resources=distribs/finalizers,verbs=update
// +kubebuilder:rbac:groups="",resources=secrets,verbs=get;list;watch

// Reconcile clones the repository and publishes the packages found at the
// head of the branch in the status.
func (r *Reconciler) Reconcile(ctx context.Context, d *vynilv1alpha1.Distrib, pass *controller.Pass) (controller.Action, error) {
	logger := log.FromContext(ctx).WithValues("distrib", d.Name)
	rt := pass.Runtime()

	if err := r.Validator.Struct(&d.Spec); err != nil {
		return controller.Action{}, controller.Wrap(controller.ReasonIllegalDistrib, err, "invalid distrib")
	}
	src, err := r.source(ctx, rt, d)
	if err != nil {
		return controller.Action{}, err
	}

	res, err := r.Fetcher.Fetch(ctx, src)
	if err != nil {
		return controller.Action{}, controller.Wrap(controller.ReasonGitFetch, err, "git clone failed")
	}
	rt.Reporter.Publish(ctx, d, controller.EventFrom("GitClone", "Clone", fmt.Sprintf("git clone for %s", d.Name)))
	for _, invalid := range res.Invalid {
		rt.Reporter.Publish(ctx, d, controller.Event{
			Type:   corev1.EventTypeWarning,
			Reason: "InvalidPackage",
			Action: "Scan",
			Note:   invalid.Error(),
		})
	}

	if d.Status.Commit != res.Commit {
		logger.Info("distrib updated", "commit", res.Commit, "packages", len(res.Packages))
	}
	now := metav1.NewTime(rt.Now())
	d.Status.Commit = res.Commit
	d.Status.LastFetched = &now
	d.Status.Packages = res.Packages
	return controller.Action{}, nil
}

// Cleanup has nothing to remove.
func (r *Reconciler) Cleanup(context.Context, *vynilv1alpha1.Distrib, *controller.Pass) (controller.Action, error) {
	return controller.Action{}, nil
}

func (r *Reconciler) source(ctx context.Context, rt *controller.Runtime, d *vynilv1alpha1.Distrib) (git.Source, error) {
	src := git.Source{URL: d.Spec.URL, Branch: d.Spec.Branch, Insecure: d.Spec.Insecure}
	if src.Branch == "" {
		src.Branch = defaultBranch
	}
	if d.Spec.Login == nil {
		return src, nil
	}

	ref := d.Spec.Login.SecretRef
	secrets := controller.HandlerFor(rt, ref.Namespace, func() *corev1.Secret { return &corev1.Secret{} })
	secret, err := secrets.Get(ctx, ref.Name)
	if err != nil {
		var herr *controller.HandlerError
		if errors.As(err, &herr) && herr.Reason == controller.HandlerNotFound {
			return src, controller.Errorf(controller.ReasonIllegalDistrib, "login secret %s/%s not found", ref.Namespace, ref.Name)
		}
		return src, controller.Wrap(controller.ReasonUnknown, err, "failed to read login secret")
	}
	src.Username = string(secret.Data[UsernameKey])
	src.Password = string(secret.Data[PasswordKey])
	return src, nil
}

// SetupWithManager registers the distrib controller.
func (r *Reconciler) SetupWithManager(mgr ctrl.Manager, rt *controller.Runtime, maxConcurrent int) error {
	c := controller.NewController(ControllerName, rt, func() *vynilv1alpha1.Distrib { return &vynilv1alpha1.Distrib{} }, r)
	return c.SetupWithManager(mgr, maxConcurrent)
}
