// Copyright 2025 The Vynil Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"fmt"
	"path"
	"slices"
	"strings"

	"github.com/google/go-containerregistry/pkg/name"
	"golang.org/x/exp/constraints"
)

// Path is the dotted location of a configuration key, e.g. "reconcile.timeout".
type Path string

// NewPath returns the path of a top level section.
func NewPath(root string) Path {
	return Path(root)
}

// Child appends a key.
func (p Path) Child(key string) Path {
	if p == "" {
		return Path(key)
	}
	return p + "." + Path(key)
}

// Index appends a list index to the last key.
func (p Path) Index(i int) Path {
	return Path(fmt.Sprintf("%s[%d]", p, i))
}

func (p Path) String() string {
	return string(p)
}

// FieldError is a validation failure of one key.
type FieldError struct {
	Field   string
	Message string
}

func (e *FieldError) Error() string {
	return e.Field + ": " + e.Message
}

func invalid(p Path, format string, args ...any) *FieldError {
	return &FieldError{Field: p.String(), Message: fmt.Sprintf(format, args...)}
}

// ValidationErrors collects every failure of a configuration.
type ValidationErrors []*FieldError

// Check appends the non-nil errors.
func (ve *ValidationErrors) Check(errs ...*FieldError) {
	for _, e := range errs {
		if e != nil {
			*ve = append(*ve, e)
		}
	}
}

func (ve ValidationErrors) Error() string {
	lines := make([]string, len(ve))
	for i, e := range ve {
		lines[i] = "- " + e.Error()
	}
	return strings.Join(lines, "\n")
}

// OrNil returns nil when nothing failed.
func (ve ValidationErrors) OrNil() error {
	if len(ve) == 0 {
		return nil
	}
	return ve
}

// InRange fails unless lo <= v <= hi.
func InRange[T constraints.Ordered](p Path, v, lo, hi T) *FieldError {
	if v < lo || v > hi {
		return invalid(p, "must be between %v and %v", lo, hi)
	}
	return nil
}

// NonNegative fails when v < 0.
func NonNegative[T constraints.Integer | constraints.Float](p Path, v T) *FieldError {
	if v < 0 {
		return invalid(p, "must be non-negative")
	}
	return nil
}

// Positive fails when v <= 0.
func Positive[T constraints.Integer | constraints.Float](p Path, v T) *FieldError {
	if v <= 0 {
		return invalid(p, "must be greater than 0")
	}
	return nil
}

// AtMost fails when v > limit. limitKey names the key holding the limit.
func AtMost[T constraints.Ordered](p Path, v, limit T, limitKey string) *FieldError {
	if v > limit {
		return invalid(p, "must not exceed %s (%v)", limitKey, limit)
	}
	return nil
}

// OneOf fails unless v is one of allowed.
func OneOf(p Path, v string, allowed ...string) *FieldError {
	if slices.Contains(allowed, v) {
		return nil
	}
	return invalid(p, "must be one of: %s", strings.Join(allowed, ", "))
}

// NotEmpty fails on an empty string.
func NotEmpty(p Path, v string) *FieldError {
	if v == "" {
		return invalid(p, "must not be empty")
	}
	return nil
}

// AbsolutePath fails unless v is an absolute slash separated path.
func AbsolutePath(p Path, v string) *FieldError {
	if !path.IsAbs(v) {
		return invalid(p, "must be an absolute path")
	}
	return nil
}

// ImageReference fails unless v parses as an image reference.
func ImageReference(p Path, v string) *FieldError {
	if v == "" {
		return invalid(p, "must not be empty")
	}
	if _, err := name.ParseReference(v); err != nil {
		return invalid(p, "invalid image reference: %v", err)
	}
	return nil
}
