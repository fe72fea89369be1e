// Copyright 2025 The Vynil Authors
// SPDX-License-Identifier: Apache-2.0

package controller

import (
	"context"
	"fmt"
	"slices"

	"k8s.io/apimachinery/pkg/runtime/schema"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/client/apiutil"
	"sigs.k8s.io/controller-runtime/pkg/controller/controllerutil"

	vynilv1alpha1 "github.com/vynil/vynil/api/v1alpha1"
	"github.com/vynil/vynil/internal/labels"
)

// Pass carries one reconcile pass of one managed object. Children applied
// through it are owned by the object, labelled, and recorded in order.
type Pass struct {
	rt         *Runtime
	controller string
	owner      ManagedObject
	applied    []vynilv1alpha1.ChildRef
	deleted    []vynilv1alpha1.ChildRef
}

func newPass(rt *Runtime, controller string, owner ManagedObject) *Pass {
	return &Pass{rt: rt, controller: controller, owner: owner}
}

// Applied returns the children applied so far, in apply order.
func (p *Pass) Applied() []vynilv1alpha1.ChildRef {
	return slices.Clone(p.applied)
}

// Runtime returns the shared runtime of the pass.
func (p *Pass) Runtime() *Runtime {
	return p.rt
}

// Apply creates or patches child through an untyped handler for its kind.
// The owner's finalizer is claimed before the first child is written.
func (p *Pass) Apply(ctx context.Context, child client.Object, role string) (Operation, error) {
	namespace := child.GetNamespace()
	if namespace == "" {
		namespace = p.owner.GetNamespace()
	}
	h, err := p.handlerFor(child, namespace)
	if err != nil {
		return "", Wrap(ReasonChildApply, err, fmt.Sprintf("failed to prepare %s", child.GetName()))
	}
	return ApplyChild(ctx, p, h, child, role)
}

// Delete removes child if it exists. Deleting a missing child succeeds.
func (p *Pass) Delete(ctx context.Context, child client.Object) error {
	h, err := p.handlerFor(child, child.GetNamespace())
	if err != nil {
		return Wrap(ReasonChildDelete, err, fmt.Sprintf("failed to delete %s", child.GetName()))
	}
	return DeleteChild(ctx, p, h, child.GetName())
}

// ApplyChild applies child through h on behalf of the pass owner: the child
// is placed in the handler namespace, labelled and owned, then recorded in
// apply order.
func ApplyChild[T client.Object](ctx context.Context, p *Pass, h *Handler[T], child T, role string) (Operation, error) {
	child.SetNamespace(h.namespace)
	ref, err := p.prepare(child, role)
	if err != nil {
		return "", Wrap(ReasonChildApply, err, fmt.Sprintf("failed to prepare %s", child.GetName()))
	}
	if err := p.claimFinalizer(ctx); err != nil {
		return "", Wrap(ReasonChildApply, err, "failed to add finalizer")
	}

	op, err := h.Apply(ctx, child)
	if err != nil {
		return "", Wrap(ReasonChildApply, err, fmt.Sprintf("failed to apply %s", ref))
	}
	recordChildMetric(p.controller, ref.Kind, op)
	p.applied = append(p.applied, ref)

	switch op {
	case OperationCreated, OperationReplaced:
		p.rt.Reporter.Publish(ctx, p.owner, EventFrom("Created", "Create",
			fmt.Sprintf("%s %s %s for %s %s", op, ref.Kind, ref.Name, p.ownerKind(), p.owner.GetName())))
	}
	return op, nil
}

// DeleteChild deletes the named child through h and records it so the
// finalizer waits for it to be gone.
func DeleteChild[T client.Object](ctx context.Context, p *Pass, h *Handler[T], name string) error {
	obj := h.newObject()
	obj.SetName(name)
	obj.SetNamespace(h.namespace)
	gvk, err := apiutil.GVKForObject(obj, p.rt.Scheme)
	if err != nil {
		return Wrap(ReasonChildDelete, err, fmt.Sprintf("failed to delete %s", name))
	}
	ref := childRef(gvk, obj)

	op, err := h.Delete(ctx, name)
	if err != nil {
		return Wrap(ReasonChildDelete, err, fmt.Sprintf("failed to delete %s", ref))
	}
	recordChildMetric(p.controller, ref.Kind, op)
	p.deleted = append(p.deleted, ref)
	if op == OperationDeleted {
		p.rt.Reporter.Publish(ctx, p.owner, EventFrom("Deleted", "Delete",
			fmt.Sprintf("deleted %s %s for %s %s", ref.Kind, ref.Name, p.ownerKind(), p.owner.GetName())))
	}
	return nil
}

// DeleteRefs deletes refs in reverse order.
func (p *Pass) DeleteRefs(ctx context.Context, refs []vynilv1alpha1.ChildRef) error {
	for i := len(refs) - 1; i >= 0; i-- {
		obj, err := p.objectFor(refs[i])
		if err != nil {
			return Wrap(ReasonChildDelete, err, fmt.Sprintf("failed to delete %s", refs[i]))
		}
		if err := p.Delete(ctx, obj); err != nil {
			return err
		}
	}
	return nil
}

// pruneStale deletes the children of a previous pass that this pass did not apply.
func (p *Pass) pruneStale(ctx context.Context, previous []vynilv1alpha1.ChildRef) error {
	var stale []vynilv1alpha1.ChildRef
	for _, ref := range previous {
		if !slices.Contains(p.applied, ref) {
			stale = append(stale, ref)
		}
	}
	return p.DeleteRefs(ctx, stale)
}

// remaining returns the children in refs that still exist.
func (p *Pass) remaining(ctx context.Context, refs []vynilv1alpha1.ChildRef) ([]vynilv1alpha1.ChildRef, error) {
	var out []vynilv1alpha1.ChildRef
	for _, ref := range refs {
		obj, err := p.objectFor(ref)
		if err != nil {
			return nil, err
		}
		h, err := p.handlerFor(obj, ref.Namespace)
		if err != nil {
			return nil, err
		}
		found, err := h.Have(ctx, ref.Name)
		if err != nil {
			return nil, err
		}
		if found {
			out = append(out, ref)
		}
	}
	return out, nil
}

// handlerFor returns a handler for the kind of obj, building fresh objects
// from the runtime scheme.
func (p *Pass) handlerFor(obj client.Object, namespace string) (*Handler[client.Object], error) {
	gvk, err := apiutil.GVKForObject(obj, p.rt.Scheme)
	if err != nil {
		return nil, err
	}
	if _, err := p.rt.Scheme.New(gvk); err != nil {
		return nil, err
	}
	return HandlerFor(p.rt, namespace, func() client.Object {
		ro, _ := p.rt.Scheme.New(gvk)
		return ro.(client.Object)
	}), nil
}

func (p *Pass) objectFor(ref vynilv1alpha1.ChildRef) (client.Object, error) {
	gv, err := schema.ParseGroupVersion(ref.APIVersion)
	if err != nil {
		return nil, err
	}
	ro, err := p.rt.Scheme.New(gv.WithKind(ref.Kind))
	if err != nil {
		return nil, err
	}
	obj, ok := ro.(client.Object)
	if !ok {
		return nil, fmt.Errorf("%s is not a client.Object", ref.Kind)
	}
	obj.SetName(ref.Name)
	obj.SetNamespace(ref.Namespace)
	return obj, nil
}

func (p *Pass) prepare(child client.Object, role string) (vynilv1alpha1.ChildRef, error) {
	l := child.GetLabels()
	if l == nil {
		l = map[string]string{}
	}
	for k, v := range labels.Child(p.rt.FieldOwner, p.ownerKind(), p.owner.GetName(), role) {
		l[k] = v
	}
	child.SetLabels(l)
	if err := controllerutil.SetControllerReference(p.owner, child, p.rt.Scheme); err != nil {
		return vynilv1alpha1.ChildRef{}, err
	}
	gvk, err := apiutil.GVKForObject(child, p.rt.Scheme)
	if err != nil {
		return vynilv1alpha1.ChildRef{}, err
	}
	return childRef(gvk, child), nil
}

// claimFinalizer adds the finalizer with an optimistic lock so a concurrent
// writer forces a retry instead of being overwritten.
func (p *Pass) claimFinalizer(ctx context.Context) error {
	if controllerutil.ContainsFinalizer(p.owner, Finalizer) {
		return nil
	}
	latest := p.owner.DeepCopyObject().(client.Object)
	base := latest.DeepCopyObject().(client.Object)
	controllerutil.AddFinalizer(latest, Finalizer)
	if err := p.rt.Client.Patch(ctx, latest, client.MergeFromWithOptions(base, client.MergeFromWithOptimisticLock{})); err != nil {
		return newHandlerError("patch", p.ownerKind(), p.owner.GetName(), err)
	}
	controllerutil.AddFinalizer(p.owner, Finalizer)
	p.owner.SetResourceVersion(latest.GetResourceVersion())
	return nil
}

func (p *Pass) ownerKind() string {
	gvk, err := apiutil.GVKForObject(p.owner, p.rt.Scheme)
	if err != nil {
		return p.owner.GetObjectKind().GroupVersionKind().Kind
	}
	return gvk.Kind
}

func childRef(gvk schema.GroupVersionKind, obj client.Object) vynilv1alpha1.ChildRef {
	return vynilv1alpha1.ChildRef{
		APIVersion: gvk.GroupVersion().String(),
		Kind:       gvk.Kind,
		Name:       obj.GetName(),
		Namespace:  obj.GetNamespace(),
	}
}
