// Copyright 2025 The Vynil Authors
// SPDX-License-Identifier: Apache-2.0

// Package packages models the packages published by a distrib and resolves
// version constraints against them.
package packages

import (
	"encoding/json"
	"fmt"
	"path"
	"strings"

	"gopkg.in/yaml.v3"
	apiextensionsv1 "k8s.io/apiextensions-apiserver/pkg/apis/apiextensions/v1"

	vynilv1alpha1 "github.com/vynil/vynil/api/v1alpha1"
	"github.com/vynil/vynil/internal/validation"
)

// DescriptorFile is the file name of a package descriptor inside
// <category>/<name>/.
const DescriptorFile = "package.yaml"

// Descriptor is the content of a package.yaml file.
type Descriptor struct {
	Name        string         `yaml:"name" json:"name" validate:"required,dns1123"`
	Category    string         `yaml:"category" json:"category" validate:"required,dns1123"`
	Type        string         `yaml:"type" json:"type" validate:"required,oneof=system tenant service"`
	Description string         `yaml:"description,omitempty" json:"description,omitempty"`
	Image       string         `yaml:"image" json:"image" validate:"required"`
	Versions    []string       `yaml:"versions" json:"versions" validate:"required,min=1,dive,semver"`
	Options     map[string]any `yaml:"options,omitempty" json:"options,omitempty"`
}

// SplitPath returns the category and name of a descriptor path of the form
// <category>/<name>/package.yaml.
func SplitPath(p string) (string, string, bool) {
	p = path.Clean(strings.TrimPrefix(p, "/"))
	parts := strings.Split(p, "/")
	if len(parts) != 3 || parts[2] != DescriptorFile {
		return "", "", false
	}
	return parts[0], parts[1], true
}

// ParseDescriptor decodes and validates a descriptor found under
// category/name. Category and name default to the path.
func ParseDescriptor(data []byte, category, name string) (Descriptor, error) {
	var d Descriptor
	if err := yaml.Unmarshal(data, &d); err != nil {
		return Descriptor{}, fmt.Errorf("%s/%s: invalid yaml: %w", category, name, err)
	}
	if d.Category == "" {
		d.Category = category
	}
	if d.Name == "" {
		d.Name = name
	}
	if d.Category != category || d.Name != name {
		return Descriptor{}, fmt.Errorf("%s/%s: descriptor declares %s/%s", category, name, d.Category, d.Name)
	}
	if err := validation.New().Struct(d); err != nil {
		return Descriptor{}, fmt.Errorf("%s/%s: %w", category, name, err)
	}
	return d, nil
}

// Packages expands the descriptor into one entry per published version.
func (d Descriptor) Packages() ([]vynilv1alpha1.PackageInfo, error) {
	var options *apiextensionsv1.JSON
	if len(d.Options) > 0 {
		raw, err := json.Marshal(d.Options)
		if err != nil {
			return nil, fmt.Errorf("%s/%s: options: %w", d.Category, d.Name, err)
		}
		options = &apiextensionsv1.JSON{Raw: raw}
	}
	out := make([]vynilv1alpha1.PackageInfo, 0, len(d.Versions))
	for _, v := range d.Versions {
		out = append(out, vynilv1alpha1.PackageInfo{
			Category:    d.Category,
			Name:        d.Name,
			Version:     v,
			Image:       d.Image + ":" + v,
			Type:        d.Type,
			Description: d.Description,
			Options:     options.DeepCopy(),
		})
	}
	return out, nil
}
