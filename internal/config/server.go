// Copyright 2025 The Vynil Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"fmt"
	"time"

	"github.com/vynil/vynil/internal/logging"
	"github.com/vynil/vynil/internal/server"
)

// ServerConfig defines the diagnostics HTTP server.
type ServerConfig struct {
	// Port is the HTTP server port.
	Port int `koanf:"port"`
	// ReadTimeout is the maximum duration for reading the entire request.
	ReadTimeout time.Duration `koanf:"read_timeout"`
	// WriteTimeout is the maximum duration before timing out writes of the response.
	WriteTimeout time.Duration `koanf:"write_timeout"`
	// IdleTimeout is the maximum duration to wait for the next request.
	IdleTimeout time.Duration `koanf:"idle_timeout"`
	// ShutdownTimeout is the maximum duration to wait for active connections to close.
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// ServerDefaults returns the default server configuration.
func ServerDefaults() ServerConfig {
	return ServerConfig{
		Port:            9000,
		ReadTimeout:     15 * time.Second,
		WriteTimeout:    15 * time.Second,
		IdleTimeout:     60 * time.Second,
		ShutdownTimeout: 30 * time.Second,
	}
}

// Validate validates the server configuration. Zero timeouts disable them.
func (c *ServerConfig) Validate(p Path) ValidationErrors {
	var errs ValidationErrors
	errs.Check(
		InRange(p.Child("port"), c.Port, 1, 65535),
		NonNegative(p.Child("read_timeout"), c.ReadTimeout),
		NonNegative(p.Child("write_timeout"), c.WriteTimeout),
		NonNegative(p.Child("idle_timeout"), c.IdleTimeout),
		NonNegative(p.Child("shutdown_timeout"), c.ShutdownTimeout),
	)
	return errs
}

// ToServerConfig converts to the server library config.
func (c *ServerConfig) ToServerConfig() server.Config {
	return server.Config{
		Addr:            fmt.Sprintf(":%d", c.Port),
		ReadTimeout:     c.ReadTimeout,
		WriteTimeout:    c.WriteTimeout,
		IdleTimeout:     c.IdleTimeout,
		ShutdownTimeout: c.ShutdownTimeout,
	}
}

// LoggingConfig defines logging settings.
type LoggingConfig struct {
	// Level is the minimum log level (debug, info, warn, error).
	Level string `koanf:"level"`
	// Format is the log output format (json, text).
	Format string `koanf:"format"`
	// AddSource includes source file and line number in log entries.
	AddSource bool `koanf:"add_source"`
}

// LoggingDefaults returns the default logging configuration.
func LoggingDefaults() LoggingConfig {
	return LoggingConfig{
		Level:  "info",
		Format: "json",
	}
}

// Validate validates the logging configuration.
func (c *LoggingConfig) Validate(p Path) ValidationErrors {
	var errs ValidationErrors
	errs.Check(
		OneOf(p.Child("level"), c.Level, "debug", "info", "warn", "error"),
		OneOf(p.Child("format"), c.Format, "json", "text"),
	)
	return errs
}

// ToLoggingConfig converts to the logging library config.
func (c *LoggingConfig) ToLoggingConfig() logging.Config {
	return logging.Config{
		Level:     c.Level,
		Format:    c.Format,
		AddSource: c.AddSource,
	}
}
