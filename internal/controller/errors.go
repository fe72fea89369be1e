// Copyright 2025 The Vynil Authors
// SPDX-License-Identifier: Apache-2.0

package controller

import (
	"context"
	"errors"
	"fmt"

	apierrors "k8s.io/apimachinery/pkg/api/errors"
)

// HandlerReason classifies a failed call to the cluster API.
type HandlerReason string

const (
	HandlerNotFound      HandlerReason = "NotFound"
	HandlerConflict      HandlerReason = "Conflict"
	HandlerAlreadyExists HandlerReason = "AlreadyExists"
	HandlerTimeout       HandlerReason = "Timeout"
	HandlerInvalid       HandlerReason = "Invalid"
	HandlerOther         HandlerReason = "Other"
)

// HandlerError is returned by Handler operations.
type HandlerError struct {
	Op     string
	Kind   string
	Name   string
	Reason HandlerReason
	Err    error
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("%s %s %q: %v", e.Op, e.Kind, e.Name, e.Err)
}

func (e *HandlerError) Unwrap() error {
	return e.Err
}

func newHandlerError(op, kind, name string, err error) *HandlerError {
	return &HandlerError{Op: op, Kind: kind, Name: name, Reason: classifyAPIError(err), Err: err}
}

func classifyAPIError(err error) HandlerReason {
	switch {
	case apierrors.IsNotFound(err):
		return HandlerNotFound
	case apierrors.IsConflict(err):
		return HandlerConflict
	case apierrors.IsAlreadyExists(err):
		return HandlerAlreadyExists
	case apierrors.IsTimeout(err), apierrors.IsServerTimeout(err), apierrors.IsTooManyRequests(err),
		errors.Is(err, context.DeadlineExceeded):
		return HandlerTimeout
	case apierrors.IsInvalid(err), apierrors.IsBadRequest(err):
		return HandlerInvalid
	default:
		return HandlerOther
	}
}

// Reason is the reconciler level error code. It is used as the metric label
// and decides how the controller retries.
type Reason string

const (
	ReasonIllegalDistrib  Reason = "IllegalDistrib"
	ReasonIllegalInstall  Reason = "IllegalInstall"
	ReasonIllegalInstance Reason = "IllegalInstance"
	ReasonMissingDistrib  Reason = "MissingDistrib"
	ReasonPackageNotFound Reason = "PackageNotFound"
	ReasonGitFetch        Reason = "GitFetch"
	ReasonJobFailed       Reason = "JobFailed"
	ReasonChildApply      Reason = "ChildApply"
	ReasonChildDelete     Reason = "ChildDelete"
	ReasonStatusWrite     Reason = "StatusWrite"
	ReasonElapsed         Reason = "Elapsed"
	ReasonTooLongDelete   Reason = "TooLongDelete"
	ReasonRegistryCheck   Reason = "RegistryCheck"
	ReasonUnknown         Reason = "Unknown"
)

// Class tells whether retrying without a spec change can help.
type Class int

const (
	// ClassTransient errors are retried with exponential backoff.
	ClassTransient Class = iota
	// ClassSemantic errors wait for the user to fix the spec.
	ClassSemantic
)

// Class returns the retry class of the reason.
func (r Reason) Class() Class {
	switch r {
	case ReasonIllegalDistrib, ReasonIllegalInstall, ReasonIllegalInstance,
		ReasonMissingDistrib, ReasonPackageNotFound, ReasonJobFailed:
		return ClassSemantic
	default:
		return ClassTransient
	}
}

// Error is returned by kind reconcilers.
type Error struct {
	Reason  Reason
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return e.Message + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Semantic reports whether the error waits for a spec change.
func (e *Error) Semantic() bool {
	return e.Reason.Class() == ClassSemantic
}

// Errorf builds an Error without a cause.
func Errorf(reason Reason, format string, args ...any) *Error {
	return &Error{Reason: reason, Message: fmt.Sprintf(format, args...)}
}

// Wrap builds an Error around a cause.
func Wrap(reason Reason, err error, message string) *Error {
	return &Error{Reason: reason, Message: message, Err: err}
}

// AsError returns err as an *Error. Deadline errors become Elapsed, any
// other unclassified error is reported as Unknown.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var rerr *Error
	if errors.As(err, &rerr) {
		return rerr
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Wrap(ReasonElapsed, err, "reconcile deadline exceeded")
	}
	return &Error{Reason: ReasonUnknown, Message: err.Error()}
}
