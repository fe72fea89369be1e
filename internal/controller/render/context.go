// Copyright 2025 The Vynil Authors
// SPDX-License-Identifier: Apache-2.0

// Package render builds the children of managed resources.
package render

import (
	"encoding/json"
	"fmt"

	jsonpatch "github.com/evanphx/json-patch/v5"
	"github.com/google/go-containerregistry/pkg/name"
	corev1 "k8s.io/api/core/v1"
	apiextensionsv1 "k8s.io/apiextensions-apiserver/pkg/apis/apiextensions/v1"

	vynilv1alpha1 "github.com/vynil/vynil/api/v1alpha1"
)

// Child roles, also used as name suffixes.
const (
	RoleValues     = "values"
	RoleInstallJob = "install-job"
	RoleBackup     = "backup"
	RoleBackupData = "backup-data"
	RoleIngress    = "ingress"
)

// Worker actions.
const (
	ActionInstall = "install"
	ActionBackup  = "backup"
)

// ValuesKey is the key of the values Secret holding the values document.
const ValuesKey = "values.json"

// Agent describes the worker job runtime.
type Agent struct {
	Image          string
	ServiceAccount string
	PullPolicy     corev1.PullPolicy
	BackoffLimit   int32
	PackageDir     string
}

// Context is everything a renderer needs about one managed object. It is
// passed by value and never shared between passes.
type Context struct {
	Agent     Agent
	Kind      string
	Namespace string
	Name      string
	Package   vynilv1alpha1.ResolvedPackage
	// Defaults are the package default options.
	Defaults *apiextensionsv1.JSON
	// Options are the user supplied options.
	Options *apiextensionsv1.JSON
}

// ChildName derives the name of the child with role.
func ChildName(owner, role string) string {
	return owner + "-" + role
}

// ImageParts splits the package image into repository and tag. Digests are
// returned in place of the tag.
func (c Context) ImageParts() (string, string, error) {
	ref, err := name.ParseReference(c.Package.Image)
	if err != nil {
		return "", "", fmt.Errorf("invalid package image %q: %w", c.Package.Image, err)
	}
	return ref.Context().Name(), ref.Identifier(), nil
}

type valuesInstance struct {
	Kind      string `json:"kind"`
	Name      string `json:"name"`
	Namespace string `json:"namespace"`
}

type valuesDocument struct {
	Instance valuesInstance                `json:"instance"`
	Package  vynilv1alpha1.ResolvedPackage `json:"package"`
	Options  json.RawMessage               `json:"options"`
}

// Values returns the values document handed to the worker: the instance
// identity, the package and the options merged over the package defaults.
func (c Context) Values() ([]byte, error) {
	options, err := MergeOptions(c.Defaults, c.Options)
	if err != nil {
		return nil, err
	}
	return json.Marshal(valuesDocument{
		Instance: valuesInstance{Kind: c.Kind, Name: c.Name, Namespace: c.Namespace},
		Package:  c.Package,
		Options:  options,
	})
}

// MergeOptions applies options over defaults as a JSON merge patch. The
// result is always a JSON object.
func MergeOptions(defaults, options *apiextensionsv1.JSON) ([]byte, error) {
	base := []byte("{}")
	if defaults != nil && len(defaults.Raw) > 0 {
		base = defaults.Raw
	}
	if options == nil || len(options.Raw) == 0 {
		return normalizeObject(base)
	}
	merged, err := jsonpatch.MergePatch(base, options.Raw)
	if err != nil {
		return nil, fmt.Errorf("failed to merge options: %w", err)
	}
	return normalizeObject(merged)
}

func normalizeObject(raw []byte) ([]byte, error) {
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("options must be an object: %w", err)
	}
	if m == nil {
		m = map[string]any{}
	}
	return json.Marshal(m)
}
