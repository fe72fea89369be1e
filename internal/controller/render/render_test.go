// Copyright 2025 The Vynil Authors
// SPDX-License-Identifier: Apache-2.0

package render

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/resource"
	apiextensionsv1 "k8s.io/apiextensions-apiserver/pkg/apis/apiextensions/v1"

	vynilv1alpha1 "github.com/vynil/vynil/api/v1alpha1"
	"github.com/vynil/vynil/internal/labels"
)

func testContext() Context {
	return Context{
		Agent: Agent{
			Image:          "ghcr.io/vynil/agent:latest",
			ServiceAccount: "vynil-agent",
			PullPolicy:     corev1.PullIfNotPresent,
			BackoffLimit:   3,
			PackageDir:     "/package",
		},
		Kind:      "ServiceInstance",
		Namespace: "apps",
		Name:      "wiki",
		Package: vynilv1alpha1.ResolvedPackage{
			Category: "apps",
			Name:     "wiki",
			Version:  "1.2.0",
			Image:    "registry.example.com/apps/wiki:1.2.0",
		},
		Defaults: &apiextensionsv1.JSON{Raw: []byte(`{"replicas":1,"storage":{"size":"1Gi","class":"fast"}}`)},
	}
}

func TestMergeOptions(t *testing.T) {
	tests := []struct {
		name     string
		defaults string
		options  string
		want     string
	}{
		{name: "nothing", want: `{}`},
		{name: "defaults only", defaults: `{"a":1}`, want: `{"a":1}`},
		{name: "options only", options: `{"b":2}`, want: `{"b":2}`},
		{name: "nested merge", defaults: `{"s":{"x":1,"y":2}}`, options: `{"s":{"y":3}}`, want: `{"s":{"x":1,"y":3}}`},
		{name: "null removes a default", defaults: `{"a":1,"b":2}`, options: `{"b":null}`, want: `{"a":1}`},
		{name: "null defaults", defaults: `null`, want: `{}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var defaults, options *apiextensionsv1.JSON
			if tt.defaults != "" {
				defaults = &apiextensionsv1.JSON{Raw: []byte(tt.defaults)}
			}
			if tt.options != "" {
				options = &apiextensionsv1.JSON{Raw: []byte(tt.options)}
			}
			got, err := MergeOptions(defaults, options)
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, string(got))
		})
	}
}

func TestMergeOptionsRejectsNonObject(t *testing.T) {
	_, err := MergeOptions(nil, &apiextensionsv1.JSON{Raw: []byte(`[1,2]`)})
	assert.Error(t, err)
}

func TestValuesDocument(t *testing.T) {
	c := testContext()
	c.Options = &apiextensionsv1.JSON{Raw: []byte(`{"storage":{"size":"5Gi"}}`)}

	secret, err := ValuesSecret(c)
	require.NoError(t, err)
	assert.Equal(t, "wiki-values", secret.Name)
	assert.Equal(t, "apps", secret.Namespace)

	assert.JSONEq(t, `{
		"instance": {"kind": "ServiceInstance", "name": "wiki", "namespace": "apps"},
		"package": {"category": "apps", "name": "wiki", "version": "1.2.0", "image": "registry.example.com/apps/wiki:1.2.0"},
		"options": {"replicas": 1, "storage": {"size": "5Gi", "class": "fast"}}
	}`, string(secret.Data[ValuesKey]))
}

func TestImageParts(t *testing.T) {
	repo, tag, err := testContext().ImageParts()
	require.NoError(t, err)
	assert.Equal(t, "registry.example.com/apps/wiki", repo)
	assert.Equal(t, "1.2.0", tag)

	c := testContext()
	c.Package.Image = "not a reference"
	_, _, err = c.ImageParts()
	assert.Error(t, err)
}

func TestJobWorkerContract(t *testing.T) {
	job, err := Job(testContext(), ActionInstall, "abc")
	require.NoError(t, err)

	assert.Equal(t, "wiki-install-job", job.Name)
	assert.Equal(t, int32(3), *job.Spec.BackoffLimit)
	assert.Equal(t, "abc", job.Spec.Template.Annotations[labels.AnnotationValuesHash])
	assert.NotEmpty(t, job.Annotations[labels.AnnotationSpecHash])

	pod := job.Spec.Template.Spec
	assert.Equal(t, corev1.RestartPolicyNever, pod.RestartPolicy)
	assert.Equal(t, "vynil-agent", pod.ServiceAccountName)
	require.Len(t, pod.InitContainers, 1)
	require.Len(t, pod.Containers, 1)
	agent := pod.Containers[0]
	assert.Equal(t, "agent", agent.Name)
	assert.Equal(t, "ghcr.io/vynil/agent:latest", agent.Image)
	assert.Equal(t, []string{"install"}, agent.Args)
	assert.Equal(t, []corev1.VolumeMount{{Name: "package", MountPath: "/package"}}, agent.VolumeMounts)

	env := map[string]string{}
	for _, e := range agent.Env {
		env[e.Name] = e.Value
	}
	want := map[string]string{
		"VYNIL_ACTION":      "install",
		"VYNIL_NAMESPACE":   "apps",
		"VYNIL_INSTANCE":    "wiki",
		"VYNIL_KIND":        "serviceinstance",
		"VYNIL_PACKAGE_DIR": "/package",
		"VYNIL_IMAGE":       "registry.example.com/apps/wiki",
		"VYNIL_TAG":         "1.2.0",
		"VYNIL_VALUES":      "",
	}
	if diff := cmp.Diff(want, env); diff != "" {
		t.Errorf("worker env mismatch (-want +got):\n%s", diff)
	}
	values := agent.Env[len(agent.Env)-1]
	require.NotNil(t, values.ValueFrom)
	assert.Equal(t, "wiki-values", values.ValueFrom.SecretKeyRef.Name)
	assert.Equal(t, ValuesKey, values.ValueFrom.SecretKeyRef.Key)
}

func TestJobHashFollowsValues(t *testing.T) {
	a, err := Job(testContext(), ActionInstall, "one")
	require.NoError(t, err)
	b, err := Job(testContext(), ActionInstall, "one")
	require.NoError(t, err)
	c, err := Job(testContext(), ActionInstall, "two")
	require.NoError(t, err)

	assert.Equal(t, a.Annotations[labels.AnnotationSpecHash], b.Annotations[labels.AnnotationSpecHash])
	assert.NotEqual(t, a.Annotations[labels.AnnotationSpecHash], c.Annotations[labels.AnnotationSpecHash])
}

func TestBackupChildren(t *testing.T) {
	backup := &vynilv1alpha1.BackupSpec{Schedule: "0 3 * * *"}

	pvc := BackupPVC(testContext(), backup)
	assert.Equal(t, "wiki-backup-data", pvc.Name)
	assert.Equal(t, DefaultBackupSize, pvc.Spec.Resources.Requests[corev1.ResourceStorage])
	assert.Nil(t, pvc.Spec.StorageClassName)

	size := resource.MustParse("10Gi")
	backup.Size = &size
	backup.StorageClassName = "slow"
	pvc = BackupPVC(testContext(), backup)
	assert.Equal(t, size, pvc.Spec.Resources.Requests[corev1.ResourceStorage])
	require.NotNil(t, pvc.Spec.StorageClassName)
	assert.Equal(t, "slow", *pvc.Spec.StorageClassName)

	cron, err := BackupCronJob(testContext(), backup)
	require.NoError(t, err)
	assert.Equal(t, "wiki-backup", cron.Name)
	assert.Equal(t, "0 3 * * *", cron.Spec.Schedule)
	pod := cron.Spec.JobTemplate.Spec.Template.Spec
	assert.Equal(t, corev1.RestartPolicyOnFailure, pod.RestartPolicy)
	assert.Equal(t, []string{"backup"}, pod.Containers[0].Args)
	assert.Contains(t, pod.Containers[0].VolumeMounts, corev1.VolumeMount{Name: "backup", MountPath: "/backup"})

	var claim string
	for _, v := range pod.Volumes {
		if v.PersistentVolumeClaim != nil {
			claim = v.PersistentVolumeClaim.ClaimName
		}
	}
	assert.Equal(t, "wiki-backup-data", claim)
}

func TestIngress(t *testing.T) {
	spec := &vynilv1alpha1.IngressSpec{Host: "wiki.example.com", ServiceName: "wiki", ServicePort: 8080}

	ing := Ingress(testContext(), spec)
	assert.Equal(t, "wiki-ingress", ing.Name)
	assert.Nil(t, ing.Spec.IngressClassName)
	assert.Empty(t, ing.Spec.TLS)
	path := ing.Spec.Rules[0].HTTP.Paths[0]
	assert.Equal(t, "/", path.Path)
	assert.Equal(t, "wiki", path.Backend.Service.Name)
	assert.Equal(t, int32(8080), path.Backend.Service.Port.Number)

	spec.ClassName = "nginx"
	spec.TLSSecretName = "wiki-tls"
	ing = Ingress(testContext(), spec)
	require.NotNil(t, ing.Spec.IngressClassName)
	assert.Equal(t, "nginx", *ing.Spec.IngressClassName)
	require.Len(t, ing.Spec.TLS, 1)
	assert.Equal(t, []string{"wiki.example.com"}, ing.Spec.TLS[0].Hosts)
	assert.Equal(t, "wiki-tls", ing.Spec.TLS[0].SecretName)
}

func TestValuesRoundTrip(t *testing.T) {
	raw, err := testContext().Values()
	require.NoError(t, err)
	var doc map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(raw, &doc))
	assert.Contains(t, doc, "instance")
	assert.Contains(t, doc, "package")
	assert.Contains(t, doc, "options")
}
