// Copyright 2025 The Vynil Authors
// SPDX-License-Identifier: Apache-2.0

// Package validation validates managed resource specs and package descriptors.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"unicode"

	"github.com/Masterminds/semver/v3"
	"github.com/go-playground/validator/v10"
	k8svalidation "k8s.io/apimachinery/pkg/util/validation"
)

// Validator checks struct tags, including the Kubernetes and semver tags
// registered by New.
type Validator struct {
	v *validator.Validate
}

// New returns a Validator with the dns1123 and semverconstraint tags registered.
func New() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("dns1123", func(fl validator.FieldLevel) bool {
		return len(k8svalidation.IsDNS1123Subdomain(fl.Field().String())) == 0
	})
	_ = v.RegisterValidation("semverconstraint", func(fl validator.FieldLevel) bool {
		_, err := semver.NewConstraint(fl.Field().String())
		return err == nil
	})
	return &Validator{v: v}
}

// Struct validates s and renders every failure as "field: rule".
func (v *Validator) Struct(s any) error {
	err := v.v.Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, describe(fe))
	}
	return errors.New(strings.Join(msgs, ", "))
}

func describe(fe validator.FieldError) string {
	field := fieldPath(fe.Namespace())
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, fe.Param())
	case "dns1123":
		return fmt.Sprintf("%s must be a lowercase RFC 1123 name", field)
	case "semverconstraint":
		return fmt.Sprintf("%s is not a valid semver constraint", field)
	case "semver":
		return fmt.Sprintf("%s is not a valid semver version", field)
	default:
		return fmt.Sprintf("%s failed the %s check", field, fe.Tag())
	}
}

// fieldPath turns a validator namespace into a json path. The root struct
// and inlined structs keep their Go names, which start upper case.
func fieldPath(ns string) string {
	parts := strings.Split(ns, ".")
	out := parts[:0]
	for _, p := range parts[1:] {
		if p != "" && unicode.IsUpper(rune(p[0])) {
			continue
		}
		out = append(out, p)
	}
	return strings.Join(out, ".")
}
