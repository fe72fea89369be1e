// Copyright 2025 The Vynil Authors
// SPDX-License-Identifier: Apache-2.0

package controller

import (
	"context"
	"encoding/json"
	"fmt"

	jsonpatch "github.com/evanphx/json-patch/v5"
	"k8s.io/apimachinery/pkg/api/meta"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/types"
	"sigs.k8s.io/controller-runtime/pkg/client"

	vynilv1alpha1 "github.com/vynil/vynil/api/v1alpha1"
)

// ManagedObject is a custom resource driven by a Controller.
type ManagedObject interface {
	client.Object
	GetManagedStatus() *vynilv1alpha1.ManagedStatus
}

// StatusWriter writes the status subresource of managed objects. Lists are
// always replaced as a whole.
type StatusWriter struct {
	client     client.Client
	fieldOwner string
}

// NewStatusWriter returns a writer patching through c.
func NewStatusWriter(c client.Client, fieldOwner string) *StatusWriter {
	return &StatusWriter{client: c, fieldOwner: fieldOwner}
}

// UpdateComponents replaces status.components and writes every status change
// made to obj since before in the same patch.
func (w *StatusWriter) UpdateComponents(ctx context.Context, obj, before ManagedObject, components []vynilv1alpha1.ChildRef) error {
	obj.GetManagedStatus().Components = components
	return w.Patch(ctx, obj, before)
}

// UpdateErrors replaces status.errors like UpdateComponents. An empty list
// clears it.
func (w *StatusWriter) UpdateErrors(ctx context.Context, obj, before ManagedObject, errs []string) error {
	obj.GetManagedStatus().Errors = errs
	return w.Patch(ctx, obj, before)
}

// Patch sends the status difference between before and obj as a merge patch
// on the status subresource. Nothing is sent when the status is unchanged.
func (w *StatusWriter) Patch(ctx context.Context, obj, before client.Object) error {
	patch, err := statusPatch(before, obj)
	if err != nil {
		return err
	}
	if patch == nil {
		return nil
	}
	if err := w.client.Status().Patch(ctx, obj, client.RawPatch(types.MergePatchType, patch), client.FieldOwner(w.fieldOwner)); err != nil {
		return newHandlerError("patch status", obj.GetObjectKind().GroupVersionKind().Kind, obj.GetName(), err)
	}
	return nil
}

func statusPatch(before, after client.Object) ([]byte, error) {
	from, err := statusJSON(before)
	if err != nil {
		return nil, err
	}
	to, err := statusJSON(after)
	if err != nil {
		return nil, err
	}
	patch, err := jsonpatch.CreateMergePatch(from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to compute status patch: %w", err)
	}
	if string(patch) == "{}" {
		return nil, nil
	}
	return patch, nil
}

func statusJSON(obj client.Object) ([]byte, error) {
	m, err := runtime.DefaultUnstructuredConverter.ToUnstructured(obj)
	if err != nil {
		return nil, err
	}
	status, ok := m["status"]
	if !ok || status == nil {
		status = map[string]any{}
	}
	return json.Marshal(map[string]any{"status": status})
}

// setReady records the Ready condition for the current generation.
func setReady(obj ManagedObject, status metav1.ConditionStatus, reason, message string) {
	meta.SetStatusCondition(&obj.GetManagedStatus().Conditions, metav1.Condition{
		Type:               vynilv1alpha1.ConditionReady,
		Status:             status,
		Reason:             reason,
		Message:            message,
		ObservedGeneration: obj.GetGeneration(),
	})
}
