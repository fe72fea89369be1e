// Copyright 2025 The Vynil Authors
// SPDX-License-Identifier: Apache-2.0

package controller

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	clientgoscheme "k8s.io/client-go/kubernetes/scheme"
	"k8s.io/client-go/tools/events"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/client/fake"

	vynilv1alpha1 "github.com/vynil/vynil/api/v1alpha1"
)

const testNamespace = "apps"

func newTestScheme(t *testing.T) *runtime.Scheme {
	t.Helper()
	scheme := runtime.NewScheme()
	require.NoError(t, clientgoscheme.AddToScheme(scheme))
	require.NoError(t, vynilv1alpha1.AddToScheme(scheme))
	return scheme
}

func newTestClient(t *testing.T, objs ...client.Object) client.Client {
	t.Helper()
	return fake.NewClientBuilder().
		WithScheme(newTestScheme(t)).
		WithObjects(objs...).
		WithStatusSubresource(&vynilv1alpha1.Install{}, &vynilv1alpha1.Distrib{}).
		Build()
}

func newTestRuntime(t *testing.T, objs ...client.Object) (*Runtime, *events.FakeRecorder) {
	t.Helper()
	c := newTestClient(t, objs...)
	recorder := events.NewFakeRecorder(100)
	timing := DefaultTiming()
	timing.Timeout = 5 * time.Second
	return NewRuntime(c, c, recorder, "vynil-test", timing), recorder
}

func newInstall(name string) *vynilv1alpha1.Install {
	return &vynilv1alpha1.Install{
		ObjectMeta: metav1.ObjectMeta{Name: name, Namespace: testNamespace, Generation: 1},
		Spec: vynilv1alpha1.InstallSpec{
			PackageRef: vynilv1alpha1.PackageRef{Distrib: "base", Category: "core"},
			Component:  "demo",
		},
	}
}

func drainEvents(recorder *events.FakeRecorder) []string {
	var out []string
	for {
		select {
		case e := <-recorder.Events:
			out = append(out, e)
		default:
			return out
		}
	}
}
