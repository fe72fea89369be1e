// Copyright 2025 The Vynil Authors
// SPDX-License-Identifier: Apache-2.0

// Package hash computes content hashes of API objects.
package hash

import (
	"fmt"
	"hash/fnv"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/util/dump"
	"k8s.io/apimachinery/pkg/util/rand"
)

// Of returns a short deterministic hash of obj. The string representation
// comes from dump.ForHash, the encoding avoids bad words.
func Of(obj any) string {
	hasher := fnv.New32a()
	hasher.Write([]byte(dump.ForHash(obj)))
	return rand.SafeEncodeString(fmt.Sprint(hasher.Sum32()))
}

// Annotate stores the hash of spec on obj under key.
func Annotate(obj metav1.Object, key string, spec any) {
	a := obj.GetAnnotations()
	if a == nil {
		a = map[string]string{}
	}
	a[key] = Of(spec)
	obj.SetAnnotations(a)
}
