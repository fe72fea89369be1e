// Copyright 2025 The Vynil Authors
// SPDX-License-Identifier: Apache-2.0

package v1alpha1

import (
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// InstallSpec defines the desired state of Install.
type InstallSpec struct {
	PackageRef `json:",inline"`

	// Component is the package name inside the category.
	// +required
	// +kubebuilder:validation:MinLength=1
	Component string `json:"component" validate:"required"`
}

// InstallStatus defines the observed state of Install.
type InstallStatus struct {
	ManagedStatus `json:",inline"`

	// Package is the package the last reconcile resolved.
	// +optional
	Package *ResolvedPackage `json:"package,omitempty"`

	// Phase of the install job.
	// +optional
	Phase Phase `json:"phase,omitempty"`

	// Plan is written by the worker job. Opaque to the controller.
	// +optional
	Plan string `json:"plan,omitempty"`

	// TFState is written by the worker job. Opaque to the controller.
	// +optional
	TFState string `json:"tfstate,omitempty"`
}

// +kubebuilder:object:root=true
// +kubebuilder:subresource:status
// +kubebuilder:printcolumn:name="Component",type=string,JSONPath=`.spec.component`
// +kubebuilder:printcolumn:name="Phase",type=string,JSONPath=`.status.phase`

// Install is the Schema for the installs API
type Install struct {
	metav1.TypeMeta `json:",inline"`

	// +optional
	metav1.ObjectMeta `json:"metadata,omitempty,omitzero"`

	// +required
	Spec InstallSpec `json:"spec"`

	// +optional
	Status InstallStatus `json:"status,omitempty,omitzero"`
}

// +kubebuilder:object:root=true

// InstallList contains a list of Install
type InstallList struct {
	metav1.TypeMeta `json:",inline"`
	metav1.ListMeta `json:"metadata,omitempty"`
	Items           []Install `json:"items"`
}

// GetManagedStatus returns the status section shared by managed kinds.
func (i *Install) GetManagedStatus() *ManagedStatus {
	return &i.Status.ManagedStatus
}

func init() {
	SchemeBuilder.Register(&Install{}, &InstallList{})
}
