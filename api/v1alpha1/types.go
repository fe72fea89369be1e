// Copyright 2025 The Vynil Authors
// SPDX-License-Identifier: Apache-2.0

package v1alpha1

import (
	apiextensionsv1 "k8s.io/apiextensions-apiserver/pkg/apis/apiextensions/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// This file contains common types shared across the vynil CRDs

// ChildRef references a child object produced by a reconcile pass.
type ChildRef struct {
	// APIVersion of the child, e.g. batch/v1
	APIVersion string `json:"apiVersion"`

	// Kind of the child, e.g. Job
	Kind string `json:"kind"`

	// Name of the child
	Name string `json:"name"`

	// Namespace of the child. Empty for cluster scoped children.
	// +optional
	Namespace string `json:"namespace,omitempty"`
}

// String renders the reference as kind/namespace/name.
func (r ChildRef) String() string {
	if r.Namespace == "" {
		return r.Kind + "/" + r.Name
	}
	return r.Kind + "/" + r.Namespace + "/" + r.Name
}

// ManagedStatus is the part of the status every managed kind carries.
type ManagedStatus struct {
	// Components lists the children applied by the last successful reconcile, in apply order.
	// +optional
	Components []ChildRef `json:"components,omitempty"`

	// Errors holds the messages of the most recent failed reconcile. Cleared on success.
	// +optional
	Errors []string `json:"errors,omitempty"`

	// Conditions represent the latest available observations of the object's state.
	// +listType=map
	// +listMapKey=type
	// +optional
	Conditions []metav1.Condition `json:"conditions,omitempty"`

	// ObservedGeneration is the generation the last successful reconcile acted on.
	// +optional
	ObservedGeneration int64 `json:"observedGeneration,omitempty"`
}

// PackageRef selects a package published by a Distrib.
type PackageRef struct {
	// Distrib is the name of the Distrib publishing the package.
	// +required
	// +kubebuilder:validation:MinLength=1
	Distrib string `json:"distrib" validate:"required,dns1123"`

	// Category of the package inside the distrib.
	// +required
	// +kubebuilder:validation:MinLength=1
	Category string `json:"category" validate:"required"`

	// Version is a semver constraint. Empty selects the highest published version.
	// +optional
	Version string `json:"version,omitempty" validate:"omitempty,semverconstraint"`

	// Options are the user supplied values, merged over the package defaults.
	// +optional
	// +kubebuilder:pruning:PreserveUnknownFields
	// +kubebuilder:validation:Type=object
	Options *apiextensionsv1.JSON `json:"options,omitempty"`
}

// ResolvedPackage is what a reconcile resolved a PackageRef to.
type ResolvedPackage struct {
	// Category of the package
	Category string `json:"category,omitempty"`
	// Name of the package
	Name string `json:"name,omitempty"`
	// Version is the exact version selected
	Version string `json:"version,omitempty"`
	// Image is the package image reference including the tag
	Image string `json:"image,omitempty"`
}

// Phase summarizes the progress of the worker job of an installable.
type Phase string

const (
	PhasePending    Phase = "Pending"
	PhaseInstalling Phase = "Installing"
	PhaseInstalled  Phase = "Installed"
	PhaseFailed     Phase = "Failed"
)

// ConditionReady is the condition type set by every reconcile.
const ConditionReady = "Ready"
