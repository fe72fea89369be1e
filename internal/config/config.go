// Copyright 2025 The Vynil Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"fmt"

	"github.com/spf13/pflag"
)

// EnvPrefix prefixes every environment override: VYNIL__AGENT__IMAGE -> agent.image.
const EnvPrefix = "VYNIL"

// Config is the configuration of the controller process.
type Config struct {
	// Manager defines the controller manager settings.
	Manager ManagerConfig `koanf:"manager"`
	// Reconcile defines the requeue intervals and deadlines of reconcile passes.
	Reconcile ReconcileConfig `koanf:"reconcile"`
	// Agent defines the worker jobs.
	Agent AgentConfig `koanf:"agent"`
	// Git defines how distribs are cloned.
	Git GitConfig `koanf:"git"`
	// Registry defines the package image checks.
	Registry RegistryConfig `koanf:"registry"`
	// Server defines the diagnostics HTTP server.
	Server ServerConfig `koanf:"server"`
	// Logging defines logging settings.
	Logging LoggingConfig `koanf:"logging"`
}

// Defaults returns the configuration used when nothing overrides it.
func Defaults() Config {
	return Config{
		Manager:   ManagerDefaults(),
		Reconcile: ReconcileDefaults(),
		Agent:     AgentDefaults(),
		Git:       GitDefaults(),
		Registry:  RegistryDefaults(),
		Server:    ServerDefaults(),
		Logging:   LoggingDefaults(),
	}
}

// FlagMappings maps command line flag names to configuration keys.
var FlagMappings = map[string]string{
	"diagnostics-port": "server.port",
	"log-level":        "logging.level",
	"leader-elect":     "manager.leader_election",
	"namespace":        "manager.namespace",
}

// Load reads the configuration from the defaults, the optional file at
// configPath, the environment and the explicitly set flags, in increasing
// priority. flags may be nil.
func Load(configPath string, flags *pflag.FlagSet) (*Config, error) {
	loader := NewLoader(EnvPrefix)

	if err := loader.LoadDefaults(Defaults()); err != nil {
		return nil, err
	}
	if err := loader.LoadFile(configPath); err != nil {
		return nil, err
	}
	if err := loader.LoadEnv(); err != nil {
		return nil, err
	}
	if flags != nil {
		if err := loader.LoadFlags(flags, FlagMappings); err != nil {
			return nil, err
		}
	}

	var cfg Config
	if err := loader.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// Validate validates the whole configuration.
func (c *Config) Validate() error {
	var errs ValidationErrors
	errs.Check(c.Manager.Validate(NewPath("manager"))...)
	errs.Check(c.Reconcile.Validate(NewPath("reconcile"))...)
	errs.Check(c.Agent.Validate(NewPath("agent"))...)
	errs.Check(c.Git.Validate(NewPath("git"))...)
	errs.Check(c.Server.Validate(NewPath("server"))...)
	errs.Check(c.Logging.Validate(NewPath("logging"))...)
	return errs.OrNil()
}
