// Copyright 2025 The Vynil Authors
// SPDX-License-Identifier: Apache-2.0

// Package manager wires the controllers, the event pipeline and the
// diagnostics server into one controller-runtime manager.
package manager

import (
	"context"
	"fmt"
	"log/slog"

	"k8s.io/apimachinery/pkg/runtime"
	utilruntime "k8s.io/apimachinery/pkg/util/runtime"
	"k8s.io/client-go/kubernetes"
	clientgoscheme "k8s.io/client-go/kubernetes/scheme"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/events"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/cache"
	ctrlmetrics "sigs.k8s.io/controller-runtime/pkg/metrics"
	metricsserver "sigs.k8s.io/controller-runtime/pkg/metrics/server"

	vynilv1alpha1 "github.com/vynil/vynil/api/v1alpha1"
	"github.com/vynil/vynil/internal/config"
	"github.com/vynil/vynil/internal/controller"
	"github.com/vynil/vynil/internal/controller/distrib"
	"github.com/vynil/vynil/internal/controller/install"
	"github.com/vynil/vynil/internal/controller/instance"
	"github.com/vynil/vynil/internal/logging"
	"github.com/vynil/vynil/internal/packages/git"
	"github.com/vynil/vynil/internal/packages/registry"
	"github.com/vynil/vynil/internal/server"
	"github.com/vynil/vynil/internal/validation"
)

// NewScheme returns a scheme holding the core kinds and the vynil kinds.
func NewScheme() *runtime.Scheme {
	scheme := runtime.NewScheme()
	utilruntime.Must(clientgoscheme.AddToScheme(scheme))
	utilruntime.Must(vynilv1alpha1.AddToScheme(scheme))
	return scheme
}

// Options returns the controller-runtime manager options for cfg. The
// built-in metrics and probe servers are disabled: the diagnostics server
// serves both.
func Options(cfg *config.Config, scheme *runtime.Scheme) ctrl.Options {
	opts := ctrl.Options{
		Scheme:                 scheme,
		Metrics:                metricsserver.Options{BindAddress: "0"},
		HealthProbeBindAddress: "0",
		LeaderElection:         cfg.Manager.LeaderElection,
		LeaderElectionID:       cfg.Manager.LeaderElectionID,
		Cache: cache.Options{
			SyncPeriod: &cfg.Manager.SyncPeriod,
		},
	}
	if ns := cfg.Manager.Namespace; ns != "" {
		opts.Cache.DefaultNamespaces = map[string]cache.Config{ns: {}}
		opts.LeaderElectionNamespace = ns
	}
	return opts
}

// Run starts the manager and blocks until ctx is cancelled or a runnable fails.
func Run(ctx context.Context, restConfig *rest.Config, cfg *config.Config, logger *slog.Logger) error {
	ctrl.SetLogger(logging.Logr(logger))

	scheme := NewScheme()
	mgr, err := ctrl.NewManager(restConfig, Options(cfg, scheme))
	if err != nil {
		return fmt.Errorf("unable to create manager: %w", err)
	}

	clientset, err := kubernetes.NewForConfig(restConfig)
	if err != nil {
		return fmt.Errorf("unable to create clientset: %w", err)
	}
	broadcaster := events.NewBroadcaster(&events.EventSinkImpl{Interface: clientset.EventsV1()})
	broadcaster.StartRecordingToSink(ctx.Done())
	defer broadcaster.Shutdown()
	recorder := broadcaster.NewRecorder(scheme, cfg.Manager.Name)

	rt := controller.NewRuntime(mgr.GetClient(), mgr.GetAPIReader(), recorder, cfg.Manager.Name, cfg.Reconcile.ToTiming())
	if err := Setup(mgr, rt, cfg); err != nil {
		return err
	}

	diag, err := server.New(cfg.Server.ToServerConfig(), ctrlmetrics.Registry,
		func() any { return rt.Diagnostics.Snapshot() }, logger)
	if err != nil {
		return err
	}
	if err := mgr.Add(diag); err != nil {
		return fmt.Errorf("unable to add diagnostics server: %w", err)
	}

	logger.Info("starting manager",
		slog.String("name", cfg.Manager.Name),
		slog.String("namespace", cfg.Manager.Namespace),
		slog.String("diagnostics", diag.Addr()))
	return mgr.Start(ctx)
}

// Setup registers the distrib, install and instance controllers with mgr.
func Setup(mgr ctrl.Manager, rt *controller.Runtime, cfg *config.Config) error {
	validator := validation.New()
	agent := cfg.Agent.ToAgent()
	workers := cfg.Manager.MaxConcurrentReconciles

	var checker controller.TagChecker
	if cfg.Registry.VerifyTags {
		checker = registry.NewChecker(cfg.Registry.Insecure)
	}

	distribs := &distrib.Reconciler{
		Fetcher:   git.NewFetcher(cfg.Git.Timeout),
		Validator: validator,
	}
	if err := distribs.SetupWithManager(mgr, rt, workers); err != nil {
		return fmt.Errorf("unable to create controller %s: %w", distrib.ControllerName, err)
	}

	installs := &install.Reconciler{
		Agent:     agent,
		Registry:  checker,
		Validator: validator,
	}
	if err := installs.SetupWithManager(mgr, rt, workers); err != nil {
		return fmt.Errorf("unable to create controller %s: %w", install.ControllerName, err)
	}

	opts := instance.Options{Agent: agent, Registry: checker, Validator: validator}
	if err := instance.SetupWithManager(mgr, rt, opts, workers); err != nil {
		return fmt.Errorf("unable to create instance controllers: %w", err)
	}
	return nil
}
