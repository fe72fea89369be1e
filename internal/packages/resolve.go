// Copyright 2025 The Vynil Authors
// SPDX-License-Identifier: Apache-2.0

package packages

import (
	"cmp"
	"errors"
	"fmt"
	"slices"

	"github.com/Masterminds/semver/v3"

	vynilv1alpha1 "github.com/vynil/vynil/api/v1alpha1"
)

// ErrTagNotFound is returned when no published version satisfies a constraint.
var ErrTagNotFound = errors.New("package tag not found")

// Resolve picks the highest version of pkgs satisfying constraint. An empty
// constraint selects the highest version. Entries with a version that is not
// semver are ignored.
func Resolve(pkgs []vynilv1alpha1.PackageInfo, constraint string) (vynilv1alpha1.PackageInfo, error) {
	var c *semver.Constraints
	if constraint != "" {
		var err error
		if c, err = semver.NewConstraint(constraint); err != nil {
			return vynilv1alpha1.PackageInfo{}, fmt.Errorf("invalid version constraint %q: %w", constraint, err)
		}
	}

	var (
		best    vynilv1alpha1.PackageInfo
		bestVer *semver.Version
	)
	for _, p := range pkgs {
		v, err := semver.NewVersion(p.Version)
		if err != nil {
			continue
		}
		if c != nil && !c.Check(v) {
			continue
		}
		if bestVer == nil || v.GreaterThan(bestVer) {
			best, bestVer = p, v
		}
	}
	if bestVer == nil {
		return vynilv1alpha1.PackageInfo{}, ErrTagNotFound
	}
	return best, nil
}

// Sort orders pkgs by category, name and ascending version.
func Sort(pkgs []vynilv1alpha1.PackageInfo) {
	slices.SortStableFunc(pkgs, func(a, b vynilv1alpha1.PackageInfo) int {
		if c := cmp.Compare(a.Category, b.Category); c != 0 {
			return c
		}
		if c := cmp.Compare(a.Name, b.Name); c != 0 {
			return c
		}
		va, errA := semver.NewVersion(a.Version)
		vb, errB := semver.NewVersion(b.Version)
		if errA != nil || errB != nil {
			return cmp.Compare(a.Version, b.Version)
		}
		return va.Compare(vb)
	})
}

// ToResolved converts an index entry into the status form.
func ToResolved(p vynilv1alpha1.PackageInfo) vynilv1alpha1.ResolvedPackage {
	return vynilv1alpha1.ResolvedPackage{
		Category: p.Category,
		Name:     p.Name,
		Version:  p.Version,
		Image:    p.Image,
	}
}
