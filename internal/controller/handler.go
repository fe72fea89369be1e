// Copyright 2025 The Vynil Authors
// SPDX-License-Identifier: Apache-2.0

package controller

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"

	jsonpatch "github.com/evanphx/json-patch/v5"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/types"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/client/apiutil"

	"github.com/vynil/vynil/internal/labels"
)

// Operation is the outcome of an Apply or Delete call.
type Operation string

const (
	OperationCreated     Operation = "created"
	OperationUpdated     Operation = "updated"
	OperationReplaced    Operation = "replaced"
	OperationUnchanged   Operation = "unchanged"
	OperationDeleted     Operation = "deleted"
	OperationAlreadyGone Operation = "already-gone"
)

// Handler gives idempotent access to one resource kind in one scope.
// An empty namespace scopes the handler to cluster scoped objects.
type Handler[T client.Object] struct {
	client     client.Client
	reader     client.Reader
	fieldOwner string
	namespace  string
	newObject  func() T
}

// NewHandler returns a handler for the kind produced by newObject. Reads go
// through reader, which is the uncached API reader in production.
func NewHandler[T client.Object](c client.Client, reader client.Reader, fieldOwner, namespace string, newObject func() T) *Handler[T] {
	return &Handler[T]{
		client:     c,
		reader:     reader,
		fieldOwner: fieldOwner,
		namespace:  namespace,
		newObject:  newObject,
	}
}

// HandlerFor builds a handler from the shared runtime.
func HandlerFor[T client.Object](rt *Runtime, namespace string, newObject func() T) *Handler[T] {
	return NewHandler(rt.Client, rt.Reader, rt.FieldOwner, namespace, newObject)
}

func (h *Handler[T]) key(name string) client.ObjectKey {
	return client.ObjectKey{Namespace: h.namespace, Name: name}
}

func (h *Handler[T]) kind() string {
	gvk, err := apiutil.GVKForObject(h.newObject(), h.client.Scheme())
	if err != nil {
		return reflect.TypeOf(h.newObject()).Elem().Name()
	}
	return gvk.Kind
}

// Have reports whether an object with the exact name exists.
func (h *Handler[T]) Have(ctx context.Context, name string) (bool, error) {
	if err := h.reader.Get(ctx, h.key(name), h.newObject()); err != nil {
		if apierrors.IsNotFound(err) {
			return false, nil
		}
		return false, newHandlerError("get", h.kind(), name, err)
	}
	return true, nil
}

// Get fetches the named object. A missing object yields a HandlerError with
// reason NotFound.
func (h *Handler[T]) Get(ctx context.Context, name string) (T, error) {
	obj := h.newObject()
	if err := h.reader.Get(ctx, h.key(name), obj); err != nil {
		var zero T
		return zero, newHandlerError("get", h.kind(), name, err)
	}
	return obj, nil
}

// Apply creates desired or patches the live object toward it. Applying the
// same desired object twice leaves the second call Unchanged.
func (h *Handler[T]) Apply(ctx context.Context, desired T) (Operation, error) {
	desired.SetNamespace(h.namespace)
	return applyObject(ctx, h.client, h.reader, h.fieldOwner, desired)
}

// Delete removes the named object with background propagation. A missing
// object is AlreadyGone, not an error.
func (h *Handler[T]) Delete(ctx context.Context, name string) (Operation, error) {
	obj := h.newObject()
	obj.SetName(name)
	obj.SetNamespace(h.namespace)
	return deleteObject(ctx, h.client, obj)
}

func applyObject(ctx context.Context, c client.Client, reader client.Reader, fieldOwner string, desired client.Object) (Operation, error) {
	gvk, err := apiutil.GVKForObject(desired, c.Scheme())
	if err != nil {
		return "", err
	}
	key := client.ObjectKeyFromObject(desired)

	live, err := c.Scheme().New(gvk)
	if err != nil {
		return "", err
	}
	existing, ok := live.(client.Object)
	if !ok {
		return "", fmt.Errorf("%s is not a client.Object", gvk)
	}

	if err := reader.Get(ctx, key, existing); err != nil {
		if !apierrors.IsNotFound(err) {
			return "", newHandlerError("get", gvk.Kind, key.Name, err)
		}
		if err := c.Create(ctx, desired, client.FieldOwner(fieldOwner)); err != nil {
			return "", newHandlerError("create", gvk.Kind, key.Name, err)
		}
		return OperationCreated, nil
	}

	if mustReplace(desired, existing) {
		if _, err := deleteObject(ctx, c, existing); err != nil {
			return "", err
		}
		if err := c.Create(ctx, desired, client.FieldOwner(fieldOwner)); err != nil {
			return "", newHandlerError("create", gvk.Kind, key.Name, err)
		}
		return OperationReplaced, nil
	}

	desiredMap, err := mergeable(desired)
	if err != nil {
		return "", err
	}
	existingMap, err := runtime.DefaultUnstructuredConverter.ToUnstructured(existing)
	if err != nil {
		return "", err
	}
	if isSubset(desiredMap, existingMap) {
		return OperationUnchanged, nil
	}

	patch, err := mergePatch(existingMap, desiredMap)
	if err != nil {
		return "", fmt.Errorf("failed to compute patch for %s %q: %w", gvk.Kind, key.Name, err)
	}
	desired.SetResourceVersion("")
	if err := c.Patch(ctx, desired, client.RawPatch(types.MergePatchType, patch), client.FieldOwner(fieldOwner)); err != nil {
		return "", newHandlerError("patch", gvk.Kind, key.Name, err)
	}
	return OperationUpdated, nil
}

func deleteObject(ctx context.Context, c client.Client, obj client.Object) (Operation, error) {
	if err := c.Delete(ctx, obj, client.PropagationPolicy("Background")); err != nil {
		if apierrors.IsNotFound(err) {
			return OperationAlreadyGone, nil
		}
		kind := obj.GetObjectKind().GroupVersionKind().Kind
		if gvk, gerr := apiutil.GVKForObject(obj, c.Scheme()); gerr == nil {
			kind = gvk.Kind
		}
		return "", newHandlerError("delete", kind, obj.GetName(), err)
	}
	return OperationDeleted, nil
}

// mustReplace is true for children whose spec cannot be patched in place and
// whose content hash changed.
func mustReplace(desired, existing client.Object) bool {
	want, ok := desired.GetAnnotations()[labels.AnnotationSpecHash]
	if !ok {
		return false
	}
	return existing.GetAnnotations()[labels.AnnotationSpecHash] != want
}

var serverManagedMetadata = []string{
	"creationTimestamp", "deletionTimestamp", "deletionGracePeriodSeconds",
	"resourceVersion", "uid", "generation", "managedFields", "selfLink",
}

// mergeable converts desired to the map sent as a merge patch: no type meta,
// no status, no server managed metadata and no null values.
func mergeable(desired client.Object) (map[string]any, error) {
	m, err := runtime.DefaultUnstructuredConverter.ToUnstructured(desired)
	if err != nil {
		return nil, err
	}
	delete(m, "status")
	delete(m, "apiVersion")
	delete(m, "kind")
	if meta, ok := m["metadata"].(map[string]any); ok {
		for _, f := range serverManagedMetadata {
			delete(meta, f)
		}
	}
	return pruneNulls(m).(map[string]any), nil
}

func pruneNulls(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			if val == nil {
				continue
			}
			out[k] = pruneNulls(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = pruneNulls(val)
		}
		return out
	default:
		return v
	}
}

// isSubset reports whether every field set in want has the same value in have.
// Lists must have the same length and match element-wise.
func isSubset(want, have any) bool {
	switch w := want.(type) {
	case map[string]any:
		h, ok := have.(map[string]any)
		if !ok {
			return false
		}
		for k, wv := range w {
			hv, ok := h[k]
			if !ok {
				if isEmpty(wv) {
					continue
				}
				return false
			}
			if !isSubset(wv, hv) {
				return false
			}
		}
		return true
	case []any:
		h, ok := have.([]any)
		if !ok || len(h) != len(w) {
			return len(w) == 0 && have == nil
		}
		for i := range w {
			if !isSubset(w[i], h[i]) {
				return false
			}
		}
		return true
	default:
		return reflect.DeepEqual(want, have)
	}
}

func isEmpty(v any) bool {
	switch t := v.(type) {
	case map[string]any:
		return len(t) == 0
	case []any:
		return len(t) == 0
	default:
		return false
	}
}

func mergePatch(existing, desired map[string]any) ([]byte, error) {
	existingJSON, err := json.Marshal(existing)
	if err != nil {
		return nil, err
	}
	desiredJSON, err := json.Marshal(desired)
	if err != nil {
		return nil, err
	}
	merged, err := jsonpatch.MergePatch(existingJSON, desiredJSON)
	if err != nil {
		return nil, err
	}
	return jsonpatch.CreateMergePatch(existingJSON, merged)
}
