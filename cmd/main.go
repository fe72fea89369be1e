// Copyright 2025 The Vynil Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	_ "k8s.io/client-go/plugin/pkg/client/auth"
	ctrl "sigs.k8s.io/controller-runtime"

	"github.com/vynil/vynil/internal/config"
	"github.com/vynil/vynil/internal/logging"
	"github.com/vynil/vynil/internal/manager"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:           "vynil-controller",
		Short:         "Reconcile vynil distributions, installs and instances",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath, cmd.Flags())
			if err != nil {
				return err
			}
			logger := logging.New(cfg.Logging.ToLoggingConfig())

			restConfig, err := ctrl.GetConfig()
			if err != nil {
				return fmt.Errorf("unable to load kubeconfig: %w", err)
			}
			return manager.Run(ctrl.SetupSignalHandler(), restConfig, cfg, logger)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&configPath, "config", "", "path to the configuration file")
	flags.Int("diagnostics-port", 9000, "port of the health, metrics and diagnostics server")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
	flags.Bool("leader-elect", false, "enable leader election")
	flags.String("namespace", "", "watch only this namespace")
	return cmd
}
