// Copyright 2025 The Vynil Authors
// SPDX-License-Identifier: Apache-2.0

package v1alpha1

import (
	apiextensionsv1 "k8s.io/apiextensions-apiserver/pkg/apis/apiextensions/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// DistribSpec defines the desired state of Distrib.
// A Distrib is a git repository publishing packages.
type DistribSpec struct {
	// URL of the git repository.
	// +required
	URL string `json:"url" validate:"required,url"`

	// Branch to clone.
	// +optional
	// +kubebuilder:default=main
	Branch string `json:"branch,omitempty"`

	// Insecure skips TLS verification when cloning.
	// +optional
	Insecure bool `json:"insecure,omitempty"`

	// Login references a Secret with username and password keys.
	// +optional
	Login *DistribLogin `json:"login,omitempty"`
}

// DistribLogin references the credentials used to clone a Distrib.
type DistribLogin struct {
	// SecretRef names the Secret holding the credentials.
	SecretRef SecretKeyRef `json:"secretRef"`
}

// SecretKeyRef points to a namespaced Secret.
type SecretKeyRef struct {
	Name      string `json:"name" validate:"required"`
	Namespace string `json:"namespace" validate:"required"`
}

// PackageInfo describes one package found in a Distrib.
type PackageInfo struct {
	Category    string `json:"category"`
	Name        string `json:"name"`
	Version     string `json:"version"`
	Image       string `json:"image"`
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`

	// Options are the package default values.
	// +optional
	// +kubebuilder:pruning:PreserveUnknownFields
	Options *apiextensionsv1.JSON `json:"options,omitempty"`
}

// DistribStatus defines the observed state of Distrib.
type DistribStatus struct {
	ManagedStatus `json:",inline"`

	// Commit is the head commit of the last clone.
	// +optional
	Commit string `json:"commit,omitempty"`

	// LastFetched is the time of the last successful clone.
	// +optional
	LastFetched *metav1.Time `json:"lastFetched,omitempty"`

	// Packages found in the repository, sorted by category, name and version.
	// +optional
	Packages []PackageInfo `json:"packages,omitempty"`
}

// +kubebuilder:object:root=true
// +kubebuilder:subresource:status
// +kubebuilder:resource:scope=Cluster
// +kubebuilder:printcolumn:name="URL",type=string,JSONPath=`.spec.url`
// +kubebuilder:printcolumn:name="Commit",type=string,JSONPath=`.status.commit`

// Distrib is the Schema for the distribs API
type Distrib struct {
	metav1.TypeMeta `json:",inline"`

	// +optional
	metav1.ObjectMeta `json:"metadata,omitempty,omitzero"`

	// +required
	Spec DistribSpec `json:"spec"`

	// +optional
	Status DistribStatus `json:"status,omitempty,omitzero"`
}

// +kubebuilder:object:root=true

// DistribList contains a list of Distrib
type DistribList struct {
	metav1.TypeMeta `json:",inline"`
	metav1.ListMeta `json:"metadata,omitempty"`
	Items           []Distrib `json:"items"`
}

// GetManagedStatus returns the status section shared by managed kinds.
func (d *Distrib) GetManagedStatus() *ManagedStatus {
	return &d.Status.ManagedStatus
}

// FindPackages returns the packages of the given category and name.
func (d *Distrib) FindPackages(category, name string) []PackageInfo {
	var out []PackageInfo
	for _, p := range d.Status.Packages {
		if p.Category == category && p.Name == name {
			out = append(out, p)
		}
	}
	return out
}

func init() {
	SchemeBuilder.Register(&Distrib{}, &DistribList{})
}
