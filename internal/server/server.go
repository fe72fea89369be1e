// Copyright 2025 The Vynil Authors
// SPDX-License-Identifier: Apache-2.0

// Package server serves the diagnostics endpoints of the controller.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// DefaultShutdownTimeout is the default timeout for graceful shutdown.
const DefaultShutdownTimeout = 30 * time.Second

// Config holds the configuration for an HTTP server.
type Config struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// SnapshotFunc returns the document served on the root path.
type SnapshotFunc func() any

// Server serves /health, /metrics and the diagnostics snapshot on /.
type Server struct {
	echo            *echo.Echo
	httpServer      *http.Server
	listener        net.Listener
	logger          *slog.Logger
	shutdownTimeout time.Duration
}

// New binds the listen address and builds the routes. A failure to bind is
// returned immediately so the process can stop before starting controllers.
func New(cfg Config, gatherer prometheus.Gatherer, snapshot SnapshotFunc, logger *slog.Logger) (*Server, error) {
	shutdownTimeout := cfg.ShutdownTimeout
	if shutdownTimeout == 0 {
		shutdownTimeout = DefaultShutdownTimeout
	}

	listener, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", cfg.Addr, err)
	}

	logger = logger.With("module", "server")
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(accessLog(logger))

	e.GET("/health", health)
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})))
	e.GET("/", func(c echo.Context) error {
		return c.JSON(http.StatusOK, snapshot())
	})

	return &Server{
		echo: e,
		httpServer: &http.Server{
			Handler:      e,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			IdleTimeout:  cfg.IdleTimeout,
		},
		listener:        listener,
		logger:          logger,
		shutdownTimeout: shutdownTimeout,
	}, nil
}

type healthResponse struct {
	Health bool `json:"health"`
}

func health(c echo.Context) error {
	return c.JSON(http.StatusOK, healthResponse{Health: true})
}

// Handler returns the router, for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Addr returns the bound address.
func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

// Run serves until the context is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		s.logger.Info("server starting", "addr", s.Addr())
		if err := s.httpServer.Serve(s.listener); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		s.logger.Info("server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	}
}

// Start implements manager.Runnable.
func (s *Server) Start(ctx context.Context) error {
	return s.Run(ctx)
}

// NeedLeaderElection is false: every replica serves diagnostics.
func (s *Server) NeedLeaderElection() bool {
	return false
}
