// Copyright 2025 The Vynil Authors
// SPDX-License-Identifier: Apache-2.0

package labels

// This file contains the labels and annotations stamped on the children created by the controllers.

const (
	// LabelKeyManagedBy identifies the manager that owns the lifecycle of a child.
	LabelKeyManagedBy = "app.kubernetes.io/managed-by"

	// LabelKeyOwnerKind is the kind of the managed resource a child belongs to.
	LabelKeyOwnerKind = "vynil.dev/owner-kind"

	// LabelKeyOwnerName is the name of the managed resource a child belongs to.
	LabelKeyOwnerName = "vynil.dev/owner-name"

	// LabelKeyRole is the role of the child, e.g. values or install-job.
	LabelKeyRole = "vynil.dev/role"

	// AnnotationSpecHash holds the content hash of a child that cannot be patched in place.
	// A child whose hash differs from the desired one is deleted and recreated.
	AnnotationSpecHash = "vynil.dev/spec-hash"

	// AnnotationValuesHash holds the hash of the values document a worker pod was started with.
	AnnotationValuesHash = "vynil.dev/values-hash"
)

// Child returns the labels of a child of the named owner.
func Child(managedBy, ownerKind, ownerName, role string) map[string]string {
	return map[string]string{
		LabelKeyManagedBy: managedBy,
		LabelKeyOwnerKind: ownerKind,
		LabelKeyOwnerName: ownerName,
		LabelKeyRole:      role,
	}
}
