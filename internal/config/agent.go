// Copyright 2025 The Vynil Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"time"

	corev1 "k8s.io/api/core/v1"

	"github.com/vynil/vynil/internal/controller/render"
)

// AgentConfig defines the worker jobs.
type AgentConfig struct {
	// Image runs the install and backup actions.
	Image string `koanf:"image"`
	// ServiceAccount the worker pods run as.
	ServiceAccount string `koanf:"service_account"`
	// PullPolicy of the agent image (Always, IfNotPresent, Never).
	PullPolicy string `koanf:"pull_policy"`
	// BackoffLimit of the install job.
	BackoffLimit int32 `koanf:"backoff_limit"`
	// PackageDir is where the package image is unpacked.
	PackageDir string `koanf:"package_dir"`
}

// AgentDefaults returns the default agent configuration.
func AgentDefaults() AgentConfig {
	return AgentConfig{
		Image:          "ghcr.io/vynil/agent:latest",
		ServiceAccount: "vynil-agent",
		PullPolicy:     string(corev1.PullIfNotPresent),
		BackoffLimit:   3,
		PackageDir:     "/package",
	}
}

// Validate validates the agent configuration.
func (c *AgentConfig) Validate(p Path) ValidationErrors {
	var errs ValidationErrors
	errs.Check(
		ImageReference(p.Child("image"), c.Image),
		OneOf(p.Child("pull_policy"), c.PullPolicy,
			string(corev1.PullAlways), string(corev1.PullIfNotPresent), string(corev1.PullNever)),
		NonNegative(p.Child("backoff_limit"), c.BackoffLimit),
		AbsolutePath(p.Child("package_dir"), c.PackageDir),
	)
	return errs
}

// ToAgent converts to the renderer agent settings.
func (c *AgentConfig) ToAgent() render.Agent {
	return render.Agent{
		Image:          c.Image,
		ServiceAccount: c.ServiceAccount,
		PullPolicy:     corev1.PullPolicy(c.PullPolicy),
		BackoffLimit:   c.BackoffLimit,
		PackageDir:     c.PackageDir,
	}
}

// GitConfig defines how distribs are cloned.
type GitConfig struct {
	// Timeout bounds one clone.
	Timeout time.Duration `koanf:"timeout"`
}

// GitDefaults returns the default git configuration.
func GitDefaults() GitConfig {
	return GitConfig{Timeout: time.Minute}
}

// Validate validates the git configuration.
func (c *GitConfig) Validate(p Path) ValidationErrors {
	var errs ValidationErrors
	errs.Check(Positive(p.Child("timeout"), c.Timeout))
	return errs
}

// RegistryConfig defines the package image checks.
type RegistryConfig struct {
	// VerifyTags checks that a resolved package image exists before installing it.
	VerifyTags bool `koanf:"verify_tags"`
	// Insecure allows plain HTTP registries.
	Insecure bool `koanf:"insecure"`
}

// RegistryDefaults returns the default registry configuration.
func RegistryDefaults() RegistryConfig {
	return RegistryConfig{}
}
