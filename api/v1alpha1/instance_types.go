// Copyright 2025 The Vynil Authors
// SPDX-License-Identifier: Apache-2.0

package v1alpha1

import (
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// Package types an instance kind accepts.
const (
	PackageTypeSystem  = "system"
	PackageTypeTenant  = "tenant"
	PackageTypeService = "service"
)

// InstanceSpec is the part of the spec shared by the three instance kinds.
type InstanceSpec struct {
	PackageRef `json:",inline"`

	// Package is the package name inside the category.
	// +required
	// +kubebuilder:validation:MinLength=1
	Package string `json:"package" validate:"required"`
}

// BackupSpec enables scheduled backups of an instance.
type BackupSpec struct {
	// Schedule in cron format.
	// +required
	Schedule string `json:"schedule" validate:"required,cron"`

	// Size of the backup volume.
	// +optional
	// +kubebuilder:default="1Gi"
	Size *resource.Quantity `json:"size,omitempty"`

	// StorageClassName of the backup volume. Empty selects the cluster default.
	// +optional
	StorageClassName string `json:"storageClassName,omitempty"`
}

// IngressSpec exposes a service instance.
type IngressSpec struct {
	// +required
	Host string `json:"host" validate:"required,hostname_rfc1123"`
	// +required
	ServiceName string `json:"serviceName" validate:"required,dns1123"`
	// +required
	// +kubebuilder:validation:Minimum=1
	// +kubebuilder:validation:Maximum=65535
	ServicePort int32 `json:"servicePort" validate:"required,min=1,max=65535"`
	// +optional
	ClassName string `json:"className,omitempty"`
	// +optional
	TLSSecretName string `json:"tlsSecretName,omitempty"`
}

// InstanceStatus is the observed state shared by the three instance kinds.
type InstanceStatus struct {
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

// SystemInstanceSpec defines the desired state of SystemInstance.
type SystemInstanceSpec struct {
	InstanceSpec `json:",inline"`
}

// TenantInstanceSpec defines the desired state of TenantInstance.
type TenantInstanceSpec struct {
	InstanceSpec `json:",inline"`

	// +optional
	Backup *BackupSpec `json:"backup,omitempty"`
}

// ServiceInstanceSpec defines the desired state of ServiceInstance.
type ServiceInstanceSpec struct {
	InstanceSpec `json:",inline"`

	// +optional
	Backup *BackupSpec `json:"backup,omitempty"`

	// +optional
	Ingress *IngressSpec `json:"ingress,omitempty"`
}

// +kubebuilder:object:root=true
// +kubebuilder:subresource:status
// +kubebuilder:printcolumn:name="Package",type=string,JSONPath=`.spec.package`
// +kubebuilder:printcolumn:name="Phase",type=string,JSONPath=`.status.phase`

// SystemInstance is the Schema for the systeminstances API
type SystemInstance struct {
	metav1.TypeMeta `json:",inline"`

	// +optional
	metav1.ObjectMeta `json:"metadata,omitempty,omitzero"`

	// +required
	Spec SystemInstanceSpec `json:"spec"`

	// +optional
	Status InstanceStatus `json:"status,omitempty,omitzero"`
}

// +kubebuilder:object:root=true

// SystemInstanceList contains a list of SystemInstance
type SystemInstanceList struct {
	metav1.TypeMeta `json:",inline"`
	metav1.ListMeta `json:"metadata,omitempty"`
	Items           []SystemInstance `json:"items"`
}

// +kubebuilder:object:root=true
// +kubebuilder:subresource:status
// +kubebuilder:printcolumn:name="Package",type=string,JSONPath=`.spec.package`
// +kubebuilder:printcolumn:name="Phase",type=string,JSONPath=`.status.phase`

// TenantInstance is the Schema for the tenantinstances API
type TenantInstance struct {
	metav1.TypeMeta `json:",inline"`

	// +optional
	metav1.ObjectMeta `json:"metadata,omitempty,omitzero"`

	// +required
	Spec TenantInstanceSpec `json:"spec"`

	// +optional
	Status InstanceStatus `json:"status,omitempty,omitzero"`
}

// +kubebuilder:object:root=true

// TenantInstanceList contains a list of TenantInstance
type TenantInstanceList struct {
	metav1.TypeMeta `json:",inline"`
	metav1.ListMeta `json:"metadata,omitempty"`
	Items           []TenantInstance `json:"items"`
}

// +kubebuilder:object:root=true
// +kubebuilder:subresource:status
// +kubebuilder:printcolumn:name="Package",type=string,JSONPath=`.spec.package`
// +kubebuilder:printcolumn:name="Host",type=string,JSONPath=`.spec.ingress.host`
// +kubebuilder:printcolumn:name="Phase",type=string,JSONPath=`.status.phase`

// ServiceInstance is the Schema for the serviceinstances API
type ServiceInstance struct {
	metav1.TypeMeta `json:",inline"`

	// +optional
	metav1.ObjectMeta `json:"metadata,omitempty,omitzero"`

	// +required
	Spec ServiceInstanceSpec `json:"spec"`

	// +optional
	Status InstanceStatus `json:"status,omitempty,omitzero"`
}

// +kubebuilder:object:root=true

// ServiceInstanceList contains a list of ServiceInstance
type ServiceInstanceList struct {
	metav1.TypeMeta `json:",inline"`
	metav1.ListMeta `json:"metadata,omitempty"`
	Items           []ServiceInstance `json:"items"`
}

// GetManagedStatus returns the status section shared by managed kinds.
func (s *SystemInstance) GetManagedStatus() *ManagedStatus { return &s.Status.ManagedStatus }

// GetManagedStatus returns the status section shared by managed kinds.
func (t *TenantInstance) GetManagedStatus() *ManagedStatus { return &t.Status.ManagedStatus }

// GetManagedStatus returns the status section shared by managed kinds.
func (s *ServiceInstance) GetManagedStatus() *ManagedStatus { return &s.Status.ManagedStatus }

// GetInstanceSpec returns the shared part of the spec.
func (s *SystemInstance) GetInstanceSpec() *InstanceSpec { return &s.Spec.InstanceSpec }

// GetInstanceSpec returns the shared part of the spec.
func (t *TenantInstance) GetInstanceSpec() *InstanceSpec { return &t.Spec.InstanceSpec }

// GetInstanceSpec returns the shared part of the spec.
func (s *ServiceInstance) GetInstanceSpec() *InstanceSpec { return &s.Spec.InstanceSpec }

// GetInstanceStatus returns the instance status.
func (s *SystemInstance) GetInstanceStatus() *InstanceStatus { return &s.Status }

// GetInstanceStatus returns the instance status.
func (t *TenantInstance) GetInstanceStatus() *InstanceStatus { return &t.Status }

// GetInstanceStatus returns the instance status.
func (s *ServiceInstance) GetInstanceStatus() *InstanceStatus { return &s.Status }

// GetBackup returns nil, system instances are not backed up.
func (s *SystemInstance) GetBackup() *BackupSpec { return nil }

// GetBackup returns the backup settings, if any.
func (t *TenantInstance) GetBackup() *BackupSpec { return t.Spec.Backup }

// GetBackup returns the backup settings, if any.
func (s *ServiceInstance) GetBackup() *BackupSpec { return s.Spec.Backup }

// GetIngress returns nil.
func (s *SystemInstance) GetIngress() *IngressSpec { return nil }

// GetIngress returns nil.
func (t *TenantInstance) GetIngress() *IngressSpec { return nil }

// GetIngress returns the ingress settings, if any.
func (s *ServiceInstance) GetIngress() *IngressSpec { return s.Spec.Ingress }

// PackageType is the package type the kind accepts.
func (s *SystemInstance) PackageType() string { return PackageTypeSystem }

// PackageType is the package type the kind accepts.
func (t *TenantInstance) PackageType() string { return PackageTypeTenant }

// PackageType is the package type the kind accepts.
func (s *ServiceInstance) PackageType() string { return PackageTypeService }

func init() {
	SchemeBuilder.Register(
		&SystemInstance{}, &SystemInstanceList{},
		&TenantInstance{}, &TenantInstanceList{},
		&ServiceInstance{}, &ServiceInstanceList{},
	)
}
