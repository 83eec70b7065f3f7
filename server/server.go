// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package server exposes a read-only HTTP view of a running session.
//
// The server never mutates the session. It serves the current session
// snapshot, streams session events over a WebSocket, and hosts the
// Prometheus metrics handler. It is disabled by default and meant to run
// on the session's errgroup next to the interactive loop.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/AleutianAI/moduleforge/agent"
	"github.com/AleutianAI/moduleforge/pkg/logging"
)

// shutdownTimeout bounds how long Run waits for in-flight requests after
// its context is cancelled.
const shutdownTimeout = 5 * time.Second

// SessionSource provides the session snapshot served on /v1/session.
// *agent.Controller satisfies it.
type SessionSource interface {
	Snapshot() agent.Snapshot
}

// EventSource provides the event stream served on /v1/events.
// *agent.Broadcaster satisfies it.
type EventSource interface {
	Subscribe() (<-chan agent.SessionEvent, func())
}

// Config holds status server configuration.
type Config struct {
	// Addr is the listen address, e.g. "127.0.0.1:12270".
	Addr string

	// Session supplies the snapshot for /v1/session. Required.
	Session SessionSource

	// Events supplies the stream for /v1/events. Optional; when nil the
	// endpoint reports that events are unavailable.
	Events EventSource

	// Metrics is the handler mounted on /metrics, typically
	// telemetry.MetricsHandler(). Optional.
	Metrics http.Handler

	// Logger receives server lifecycle and stream logs. Defaults to
	// logging.Default().
	Logger *logging.Logger
}

// Server is the read-only status server.
type Server struct {
	addr   string
	router *gin.Engine
	logger *logging.Logger
}

// New builds a status server with its routes registered.
func New(cfg Config) (*Server, error) {
	if cfg.Addr == "" {
		return nil, errors.New("server: addr is required")
	}
	if cfg.Session == nil {
		return nil, errors.New("server: session source is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware("moduleforge"))

	h := NewHandlers(cfg.Session, cfg.Events, cfg.Logger)
	v1 := router.Group("/v1")
	RegisterRoutes(v1, h)

	if cfg.Metrics != nil {
		router.GET("/metrics", gin.WrapH(cfg.Metrics))
	}

	return &Server{
		addr:   cfg.Addr,
		router: router,
		logger: cfg.Logger,
	}, nil
}

// Run serves until ctx is cancelled, then drains in-flight requests and
// returns. The error is nil on a clean shutdown.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("status server listening", "addr", s.addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("status server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("status server shutdown: %w", err)
		}
		// ListenAndServe returns ErrServerClosed once Shutdown begins.
		<-errCh
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("status server: %w", err)
	}
}

// Router returns the underlying Gin engine for testing.
func (s *Server) Router() *gin.Engine {
	return s.router
}
