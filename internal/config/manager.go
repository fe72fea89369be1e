// Copyright 2025 The Vynil Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"time"

	"github.com/vynil/vynil/internal/controller"
)

// ManagerConfig defines the controller manager settings.
type ManagerConfig struct {
	// Name is the field manager and the event reporting controller.
	Name string `koanf:"name"`
	// Namespace restricts the watches to one namespace. Empty watches all.
	Namespace string `koanf:"namespace"`
	// LeaderElection enables leader election.
	LeaderElection bool `koanf:"leader_election"`
	// LeaderElectionID is the name of the lease.
	LeaderElectionID string `koanf:"leader_election_id"`
	// MaxConcurrentReconciles is the number of workers per kind.
	MaxConcurrentReconciles int `koanf:"max_concurrent_reconciles"`
	// SyncPeriod is the informer resync period.
	SyncPeriod time.Duration `koanf:"sync_period"`
}

// ManagerDefaults returns the default manager configuration.
func ManagerDefaults() ManagerConfig {
	return ManagerConfig{
		Name:                    "vynil-controller",
		LeaderElectionID:        "vynil-controller.vynil.dev",
		MaxConcurrentReconciles: 4,
		SyncPeriod:              10 * time.Hour,
	}
}

// Validate validates the manager configuration.
func (c *ManagerConfig) Validate(p Path) ValidationErrors {
	var errs ValidationErrors
	errs.Check(
		NotEmpty(p.Child("name"), c.Name),
		InRange(p.Child("max_concurrent_reconciles"), c.MaxConcurrentReconciles, 1, 64),
		Positive(p.Child("sync_period"), c.SyncPeriod),
	)
	if c.LeaderElection {
		errs.Check(NotEmpty(p.Child("leader_election_id"), c.LeaderElectionID))
	}
	return errs
}

// ReconcileConfig defines the requeue intervals and deadlines of reconcile passes.
type ReconcileConfig struct {
	DriftInterval   time.Duration `koanf:"drift_interval"`
	ErrorRequeue    time.Duration `koanf:"error_requeue"`
	JobPollInterval time.Duration `koanf:"job_poll_interval"`
	Timeout         time.Duration `koanf:"timeout"`
	DeleteWarnAfter time.Duration `koanf:"delete_warn_after"`
}

// ReconcileDefaults returns the default reconcile configuration.
func ReconcileDefaults() ReconcileConfig {
	t := controller.DefaultTiming()
	return ReconcileConfig{
		DriftInterval:   t.DriftInterval,
		ErrorRequeue:    t.ErrorRequeue,
		JobPollInterval: t.JobPollInterval,
		Timeout:         t.Timeout,
		DeleteWarnAfter: t.DeleteWarnAfter,
	}
}

// Validate validates the reconcile configuration. Job polling faster than
// the drift interval is required for phase updates to be seen.
func (c *ReconcileConfig) Validate(p Path) ValidationErrors {
	var errs ValidationErrors
	errs.Check(
		Positive(p.Child("drift_interval"), c.DriftInterval),
		Positive(p.Child("error_requeue"), c.ErrorRequeue),
		Positive(p.Child("job_poll_interval"), c.JobPollInterval),
		Positive(p.Child("timeout"), c.Timeout),
		Positive(p.Child("delete_warn_after"), c.DeleteWarnAfter),
		AtMost(p.Child("job_poll_interval"), c.JobPollInterval, c.DriftInterval, "reconcile.drift_interval"),
	)
	return errs
}

// ToTiming converts to the controller timing.
func (c *ReconcileConfig) ToTiming() controller.Timing {
	return controller.Timing{
		DriftInterval:   c.DriftInterval,
		ErrorRequeue:    c.ErrorRequeue,
		JobPollInterval: c.JobPollInterval,
		Timeout:         c.Timeout,
		DeleteWarnAfter: c.DeleteWarnAfter,
	}
}
