// Copyright 2025 The Vynil Authors
// SPDX-License-Identifier: Apache-2.0

package controller

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	vynilv1alpha1 "github.com/vynil/vynil/api/v1alpha1"
)

type stubChecker struct {
	exists bool
	err    error
	seen   []string
}

func (s *stubChecker) Exists(_ context.Context, image string) (bool, error) {
	s.seen = append(s.seen, image)
	return s.exists, s.err
}

func newDistrib(pkgs ...vynilv1alpha1.PackageInfo) *vynilv1alpha1.Distrib {
	return &vynilv1alpha1.Distrib{
		ObjectMeta: metav1.ObjectMeta{Name: "base"},
		Spec:       vynilv1alpha1.DistribSpec{URL: "https://git.example.com/base.git"},
		Status:     vynilv1alpha1.DistribStatus{Packages: pkgs},
	}
}

func pkg(version string) vynilv1alpha1.PackageInfo {
	return vynilv1alpha1.PackageInfo{
		Category: "core",
		Name:     "demo",
		Version:  version,
		Image:    "registry.example.com/core/demo:" + version,
		Type:     "system",
	}
}

func TestResolvePackageHighest(t *testing.T) {
	rt, _ := newTestRuntime(t, newDistrib(pkg("1.0.0"), pkg("1.2.0"), pkg("1.1.0"), pkg("not-a-version")))
	ref := vynilv1alpha1.PackageRef{Distrib: "base", Category: "core"}

	got, err := ResolvePackage(context.Background(), rt, ref, "demo", nil)
	require.NoError(t, err)
	assert.Equal(t, "1.2.0", got.Version)
	assert.Equal(t, "registry.example.com/core/demo:1.2.0", got.Image)
}

func TestResolvePackageConstraint(t *testing.T) {
	rt, _ := newTestRuntime(t, newDistrib(pkg("1.0.0"), pkg("1.2.0"), pkg("2.1.0")))
	ref := vynilv1alpha1.PackageRef{Distrib: "base", Category: "core", Version: "~1.0"}

	got, err := ResolvePackage(context.Background(), rt, ref, "demo", nil)
	require.NoError(t, err)
	assert.Equal(t, "1.0.0", got.Version)
}

func TestResolvePackageErrors(t *testing.T) {
	tests := []struct {
		name    string
		objects []*vynilv1alpha1.Distrib
		ref     vynilv1alpha1.PackageRef
		reason  Reason
		message string
	}{
		{
			name:    "missing distrib",
			ref:     vynilv1alpha1.PackageRef{Distrib: "base", Category: "core"},
			reason:  ReasonMissingDistrib,
			message: "distrib base not found",
		},
		{
			name:    "unknown package",
			objects: []*vynilv1alpha1.Distrib{newDistrib()},
			ref:     vynilv1alpha1.PackageRef{Distrib: "base", Category: "core"},
			reason:  ReasonPackageNotFound,
			message: "package core/demo not found in distrib base",
		},
		{
			name:    "no version matches",
			objects: []*vynilv1alpha1.Distrib{newDistrib(pkg("1.0.0"))},
			ref:     vynilv1alpha1.PackageRef{Distrib: "base", Category: "core", Version: ">=3.0.0"},
			reason:  ReasonPackageNotFound,
			message: "package tag not found",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var rt *Runtime
			if len(tt.objects) > 0 {
				rt, _ = newTestRuntime(t, tt.objects[0])
			} else {
				rt, _ = newTestRuntime(t)
			}

			_, err := ResolvePackage(context.Background(), rt, tt.ref, "demo", nil)
			require.Error(t, err)
			rerr := AsError(err)
			assert.Equal(t, tt.reason, rerr.Reason)
			assert.Equal(t, tt.message, rerr.Error())
			assert.True(t, rerr.Semantic())
		})
	}
}

func TestResolvePackageRegistryCheck(t *testing.T) {
	ref := vynilv1alpha1.PackageRef{Distrib: "base", Category: "core"}

	t.Run("published", func(t *testing.T) {
		rt, _ := newTestRuntime(t, newDistrib(pkg("1.0.0")))
		checker := &stubChecker{exists: true}

		got, err := ResolvePackage(context.Background(), rt, ref, "demo", checker)
		require.NoError(t, err)
		assert.Equal(t, "1.0.0", got.Version)
		assert.Equal(t, []string{"registry.example.com/core/demo:1.0.0"}, checker.seen)
	})

	t.Run("not published", func(t *testing.T) {
		rt, _ := newTestRuntime(t, newDistrib(pkg("1.0.0")))

		_, err := ResolvePackage(context.Background(), rt, ref, "demo", &stubChecker{})
		rerr := AsError(err)
		assert.Equal(t, ReasonPackageNotFound, rerr.Reason)
		assert.Equal(t, "package tag not found", rerr.Error())
	})

	t.Run("registry unreachable", func(t *testing.T) {
		rt, _ := newTestRuntime(t, newDistrib(pkg("1.0.0")))

		_, err := ResolvePackage(context.Background(), rt, ref, "demo", &stubChecker{err: errors.New("dial tcp: connection refused")})
		rerr := AsError(err)
		assert.Equal(t, ReasonRegistryCheck, rerr.Reason)
		assert.False(t, rerr.Semantic())
		assert.Contains(t, rerr.Error(), "failed to check registry.example.com/core/demo:1.0.0")
	})
}
