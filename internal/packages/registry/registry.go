// Copyright 2025 The Vynil Authors
// SPDX-License-Identifier: Apache-2.0

// Package registry checks that package images are published.
package registry

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/google/go-containerregistry/pkg/authn"
	"github.com/google/go-containerregistry/pkg/name"
	"github.com/google/go-containerregistry/pkg/v1/remote"
	"github.com/google/go-containerregistry/pkg/v1/remote/transport"
)

// Checker looks up image tags with a HEAD request on the manifest.
type Checker struct {
	insecure bool
	keychain authn.Keychain
}

// NewChecker returns a checker. insecure allows plain http registries.
func NewChecker(insecure bool) *Checker {
	return &Checker{insecure: insecure, keychain: authn.DefaultKeychain}
}

// Exists reports whether image, a reference with tag or digest, is published.
func (c *Checker) Exists(ctx context.Context, image string) (bool, error) {
	opts := []name.Option{name.WeakValidation}
	if c.insecure {
		opts = append(opts, name.Insecure)
	}
	ref, err := name.ParseReference(image, opts...)
	if err != nil {
		return false, fmt.Errorf("parse reference %q: %w", image, err)
	}

	_, err = remote.Head(ref, remote.WithContext(ctx), remote.WithAuthFromKeychain(c.keychain))
	if err == nil {
		return true, nil
	}
	var terr *transport.Error
	if errors.As(err, &terr) && terr.StatusCode == http.StatusNotFound {
		return false, nil
	}
	return false, fmt.Errorf("check %s: %w", ref, err)
}
