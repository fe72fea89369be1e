// Copyright 2025 The Vynil Authors
// SPDX-License-Identifier: Apache-2.0

package controller

import (
	"context"
	"errors"
	"fmt"

	vynilv1alpha1 "github.com/vynil/vynil/api/v1alpha1"
	"github.com/vynil/vynil/internal/packages"
)

// TagChecker tells whether a package image is published.
type TagChecker interface {
	Exists(ctx context.Context, image string) (bool, error)
}

// ResolvePackage finds the Distrib named by ref and picks the highest
// version of category/name satisfying the ref constraint. checker may be nil.
func ResolvePackage(ctx context.Context, rt *Runtime, ref vynilv1alpha1.PackageRef, name string, checker TagChecker) (vynilv1alpha1.PackageInfo, error) {
	distribs := HandlerFor(rt, "", func() *vynilv1alpha1.Distrib { return &vynilv1alpha1.Distrib{} })
	distrib, err := distribs.Get(ctx, ref.Distrib)
	if err != nil {
		var herr *HandlerError
		if errors.As(err, &herr) && herr.Reason == HandlerNotFound {
			return vynilv1alpha1.PackageInfo{}, Errorf(ReasonMissingDistrib, "distrib %s not found", ref.Distrib)
		}
		return vynilv1alpha1.PackageInfo{}, Wrap(ReasonUnknown, err, "failed to read distrib")
	}

	candidates := distrib.FindPackages(ref.Category, name)
	if len(candidates) == 0 {
		return vynilv1alpha1.PackageInfo{}, Errorf(ReasonPackageNotFound,
			"package %s/%s not found in distrib %s", ref.Category, name, ref.Distrib)
	}
	pkg, err := packages.Resolve(candidates, ref.Version)
	if err != nil {
		if errors.Is(err, packages.ErrTagNotFound) {
			return vynilv1alpha1.PackageInfo{}, &Error{Reason: ReasonPackageNotFound, Message: err.Error()}
		}
		return vynilv1alpha1.PackageInfo{}, Wrap(ReasonPackageNotFound, err, "failed to resolve version")
	}

	if checker != nil {
		ok, err := checker.Exists(ctx, pkg.Image)
		if err != nil {
			return vynilv1alpha1.PackageInfo{}, Wrap(ReasonRegistryCheck, err, fmt.Sprintf("failed to check %s", pkg.Image))
		}
		if !ok {
			return vynilv1alpha1.PackageInfo{}, &Error{Reason: ReasonPackageNotFound, Message: packages.ErrTagNotFound.Error()}
		}
	}
	return pkg, nil
}
