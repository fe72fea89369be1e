// Copyright 2025 The Vynil Authors
// SPDX-License-Identifier: Apache-2.0

package render

import (
	"strings"

	batchv1 "k8s.io/api/batch/v1"
	corev1 "k8s.io/api/core/v1"
	networkingv1 "k8s.io/api/networking/v1"
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/utils/ptr"

	vynilv1alpha1 "github.com/vynil/vynil/api/v1alpha1"
	"github.com/vynil/vynil/internal/labels"
	"github.com/vynil/vynil/pkg/hash"
)

const (
	packageVolume = "package"
	backupVolume  = "backup"
	backupDir     = "/backup"
)

// DefaultBackupSize is used when a backup does not set a size.
var DefaultBackupSize = resource.MustParse("1Gi")

// ValuesSecret renders the Secret holding the values document.
func ValuesSecret(c Context) (*corev1.Secret, error) {
	values, err := c.Values()
	if err != nil {
		return nil, err
	}
	return &corev1.Secret{
		ObjectMeta: metav1.ObjectMeta{
			Name:      ChildName(c.Name, RoleValues),
			Namespace: c.Namespace,
		},
		Type: corev1.SecretTypeOpaque,
		Data: map[string][]byte{ValuesKey: values},
	}, nil
}

// Job renders the worker job running action. valuesHash is stamped on the pod
// template so a change of values produces a new job.
func Job(c Context, action, valuesHash string) (*batchv1.Job, error) {
	pod, err := podSpec(c, action, corev1.RestartPolicyNever)
	if err != nil {
		return nil, err
	}
	job := &batchv1.Job{
		ObjectMeta: metav1.ObjectMeta{
			Name:      ChildName(c.Name, RoleInstallJob),
			Namespace: c.Namespace,
		},
		Spec: batchv1.JobSpec{
			BackoffLimit: ptr.To(c.Agent.BackoffLimit),
			Template: corev1.PodTemplateSpec{
				ObjectMeta: metav1.ObjectMeta{
					Annotations: map[string]string{labels.AnnotationValuesHash: valuesHash},
				},
				Spec: pod,
			},
		},
	}
	hash.Annotate(job, labels.AnnotationSpecHash, job.Spec)
	return job, nil
}

// BackupPVC renders the volume the backup job writes to.
func BackupPVC(c Context, backup *vynilv1alpha1.BackupSpec) *corev1.PersistentVolumeClaim {
	size := DefaultBackupSize
	if backup.Size != nil {
		size = *backup.Size
	}
	pvc := &corev1.PersistentVolumeClaim{
		ObjectMeta: metav1.ObjectMeta{
			Name:      ChildName(c.Name, RoleBackupData),
			Namespace: c.Namespace,
		},
		Spec: corev1.PersistentVolumeClaimSpec{
			AccessModes: []corev1.PersistentVolumeAccessMode{corev1.ReadWriteOnce},
			Resources: corev1.VolumeResourceRequirements{
				Requests: corev1.ResourceList{corev1.ResourceStorage: size},
			},
		},
	}
	if backup.StorageClassName != "" {
		pvc.Spec.StorageClassName = ptr.To(backup.StorageClassName)
	}
	return pvc
}

// BackupCronJob renders the scheduled backup job. It mounts the backup volume.
func BackupCronJob(c Context, backup *vynilv1alpha1.BackupSpec) (*batchv1.CronJob, error) {
	pod, err := podSpec(c, ActionBackup, corev1.RestartPolicyOnFailure)
	if err != nil {
		return nil, err
	}
	pod.Volumes = append(pod.Volumes, corev1.Volume{
		Name: backupVolume,
		VolumeSource: corev1.VolumeSource{
			PersistentVolumeClaim: &corev1.PersistentVolumeClaimVolumeSource{
				ClaimName: ChildName(c.Name, RoleBackupData),
			},
		},
	})
	for i := range pod.Containers {
		pod.Containers[i].VolumeMounts = append(pod.Containers[i].VolumeMounts,
			corev1.VolumeMount{Name: backupVolume, MountPath: backupDir})
	}
	return &batchv1.CronJob{
		ObjectMeta: metav1.ObjectMeta{
			Name:      ChildName(c.Name, RoleBackup),
			Namespace: c.Namespace,
		},
		Spec: batchv1.CronJobSpec{
			Schedule:          backup.Schedule,
			ConcurrencyPolicy: batchv1.ForbidConcurrent,
			JobTemplate: batchv1.JobTemplateSpec{
				Spec: batchv1.JobSpec{
					BackoffLimit: ptr.To(c.Agent.BackoffLimit),
					Template:     corev1.PodTemplateSpec{Spec: pod},
				},
			},
		},
	}, nil
}

// Ingress renders the ingress exposing a service instance.
func Ingress(c Context, spec *vynilv1alpha1.IngressSpec) *networkingv1.Ingress {
	pathType := networkingv1.PathTypePrefix
	ing := &networkingv1.Ingress{
		ObjectMeta: metav1.ObjectMeta{
			Name:      ChildName(c.Name, RoleIngress),
			Namespace: c.Namespace,
		},
		Spec: networkingv1.IngressSpec{
			Rules: []networkingv1.IngressRule{{
				Host: spec.Host,
				IngressRuleValue: networkingv1.IngressRuleValue{
					HTTP: &networkingv1.HTTPIngressRuleValue{
						Paths: []networkingv1.HTTPIngressPath{{
							Path:     "/",
							PathType: &pathType,
							Backend: networkingv1.IngressBackend{
								Service: &networkingv1.IngressServiceBackend{
									Name: spec.ServiceName,
									Port: networkingv1.ServiceBackendPort{Number: spec.ServicePort},
								},
							},
						}},
					},
				},
			}},
		},
	}
	if spec.ClassName != "" {
		ing.Spec.IngressClassName = ptr.To(spec.ClassName)
	}
	if spec.TLSSecretName != "" {
		ing.Spec.TLS = []networkingv1.IngressTLS{{Hosts: []string{spec.Host}, SecretName: spec.TLSSecretName}}
	}
	return ing
}

// podSpec is the worker pod shared by install and backup jobs. An init
// container unpacks the package image into the package volume.
func podSpec(c Context, action string, restart corev1.RestartPolicy) (corev1.PodSpec, error) {
	image, tag, err := c.ImageParts()
	if err != nil {
		return corev1.PodSpec{}, err
	}
	env := []corev1.EnvVar{
		{Name: "VYNIL_ACTION", Value: action},
		{Name: "VYNIL_NAMESPACE", Value: c.Namespace},
		{Name: "VYNIL_INSTANCE", Value: c.Name},
		{Name: "VYNIL_KIND", Value: strings.ToLower(c.Kind)},
		{Name: "VYNIL_PACKAGE_DIR", Value: c.Agent.PackageDir},
		{Name: "VYNIL_IMAGE", Value: image},
		{Name: "VYNIL_TAG", Value: tag},
		{Name: "VYNIL_VALUES", ValueFrom: &corev1.EnvVarSource{
			SecretKeyRef: &corev1.SecretKeySelector{
				LocalObjectReference: corev1.LocalObjectReference{Name: ChildName(c.Name, RoleValues)},
				Key:                  ValuesKey,
			},
		}},
	}
	mount := corev1.VolumeMount{Name: packageVolume, MountPath: c.Agent.PackageDir}
	return corev1.PodSpec{
		ServiceAccountName: c.Agent.ServiceAccount,
		RestartPolicy:      restart,
		InitContainers: []corev1.Container{{
			Name:            "unpack",
			Image:           c.Agent.Image,
			ImagePullPolicy: c.Agent.PullPolicy,
			Args:            []string{"unpack"},
			Env:             env,
			VolumeMounts:    []corev1.VolumeMount{mount},
		}},
		Containers: []corev1.Container{{
			Name:            "agent",
			Image:           c.Agent.Image,
			ImagePullPolicy: c.Agent.PullPolicy,
			Args:            []string{action},
			Env:             env,
			VolumeMounts:    []corev1.VolumeMount{mount},
		}},
		Volumes: []corev1.Volume{{
			Name:         packageVolume,
			VolumeSource: corev1.VolumeSource{EmptyDir: &corev1.EmptyDirVolumeSource{}},
		}},
	}, nil
}
