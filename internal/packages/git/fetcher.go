// Copyright 2025 The Vynil Authors
// SPDX-License-Identifier: Apache-2.0

// Package git builds a package index from a distrib git repository.
package git

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/go-git/go-git/v5/plumbing/transport/http"
	"github.com/go-git/go-git/v5/storage/memory"

	vynilv1alpha1 "github.com/vynil/vynil/api/v1alpha1"
	"github.com/vynil/vynil/internal/packages"
)

// Source is the repository to fetch.
type Source struct {
	URL      string
	Branch   string
	Insecure bool
	Username string
	Password string
}

// Result is the index found at the head of the branch.
type Result struct {
	Commit   string
	Packages []vynilv1alpha1.PackageInfo
	// Invalid holds one error per descriptor that was skipped.
	Invalid []error
}

// Fetcher clones repositories in memory.
type Fetcher struct {
	timeout time.Duration
}

// NewFetcher returns a fetcher bounding each clone by timeout.
func NewFetcher(timeout time.Duration) *Fetcher {
	return &Fetcher{timeout: timeout}
}

// Fetch clones the branch head and scans it for package descriptors.
func (f *Fetcher) Fetch(ctx context.Context, src Source) (*Result, error) {
	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	opts := &gogit.CloneOptions{
		URL:             src.URL,
		ReferenceName:   plumbing.NewBranchReferenceName(src.Branch),
		SingleBranch:    true,
		InsecureSkipTLS: src.Insecure,
		Tags:            gogit.NoTags,
	}
	if ep, err := transport.NewEndpoint(src.URL); err == nil && ep.Protocol != "file" {
		opts.Depth = 1
	}
	if src.Username != "" || src.Password != "" {
		opts.Auth = &http.BasicAuth{Username: src.Username, Password: src.Password}
	}

	fs := memfs.New()
	repo, err := gogit.CloneContext(ctx, memory.NewStorage(), fs, opts)
	if err != nil {
		return nil, fmt.Errorf("git clone %s@%s: %w", src.URL, src.Branch, err)
	}
	head, err := repo.Head()
	if err != nil {
		return nil, fmt.Errorf("git clone %s@%s: no head: %w", src.URL, src.Branch, err)
	}

	res, err := Scan(fs)
	if err != nil {
		return nil, err
	}
	res.Commit = head.Hash().String()
	return res, nil
}

// Scan walks fs for <category>/<name>/package.yaml descriptors.
func Scan(fs billy.Filesystem) (*Result, error) {
	res := &Result{}
	err := util.Walk(fs, "/", func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			if info.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}
		category, name, ok := packages.SplitPath(filepath.ToSlash(p))
		if !ok {
			return nil
		}
		data, err := util.ReadFile(fs, p)
		if err != nil {
			return err
		}
		d, err := packages.ParseDescriptor(data, category, name)
		if err != nil {
			res.Invalid = append(res.Invalid, err)
			return nil
		}
		pkgs, err := d.Packages()
		if err != nil {
			res.Invalid = append(res.Invalid, err)
			return nil
		}
		res.Packages = append(res.Packages, pkgs...)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan packages: %w", err)
	}
	packages.Sort(res.Packages)
	return res, nil
}
