// Copyright 2025 The Vynil Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads the controller configuration from defaults, a YAML
// file, the environment and command line flags.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	koanfyaml "github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// Validator is implemented by configurations that check themselves after loading.
type Validator interface {
	Validate() error
}

// Loader merges configuration layers. Each Load call overrides the keys
// set by the previous ones.
type Loader struct {
	k         *koanf.Koanf
	envPrefix string
}

// NewLoader returns a loader reading environment variables named
// <prefix>__SECTION__KEY, e.g. VYNIL__SERVER__PORT for server.port.
func NewLoader(prefix string) *Loader {
	return &Loader{k: koanf.New("."), envPrefix: prefix + "__"}
}

// LoadDefaults loads a struct tagged with `koanf`.
func (l *Loader) LoadDefaults(defaults any) error {
	if err := l.k.Load(structs.Provider(defaults, "koanf"), nil); err != nil {
		return fmt.Errorf("failed to load defaults: %w", err)
	}
	return nil
}

// LoadFile loads a YAML file. An empty path is skipped, a missing file is an error.
func (l *Loader) LoadFile(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("config file not found: %s", path)
	}
	if err := l.k.Load(file.Provider(path), koanfyaml.Parser()); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return nil
}

// LoadEnv loads the prefixed environment variables.
func (l *Loader) LoadEnv() error {
	p := env.Provider(l.envPrefix, ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, l.envPrefix)), "__", ".")
	})
	if err := l.k.Load(p, nil); err != nil {
		return fmt.Errorf("failed to load environment: %w", err)
	}
	return nil
}

// LoadFlags sets the keys of the flags given on the command line. Flags left
// at their default do not override anything.
func (l *Loader) LoadFlags(flags *pflag.FlagSet, mappings map[string]string) error {
	var errs []error
	flags.Visit(func(f *pflag.Flag) {
		key, ok := mappings[f.Name]
		if !ok {
			return
		}
		if err := l.k.Set(key, f.Value.String()); err != nil {
			errs = append(errs, fmt.Errorf("flag --%s: %w", f.Name, err))
		}
	})
	return errors.Join(errs...)
}

// Set overrides one key.
func (l *Loader) Set(key string, value any) error {
	return l.k.Set(key, value)
}

// Raw returns the merged configuration as a nested map.
func (l *Loader) Raw() map[string]any {
	return l.k.Raw()
}

// Unmarshal decodes the merged configuration into out and validates it when
// out implements Validator.
func (l *Loader) Unmarshal(out any) error {
	if err := l.k.Unmarshal("", out); err != nil {
		return err
	}
	if v, ok := out.(Validator); ok {
		return v.Validate()
	}
	return nil
}
