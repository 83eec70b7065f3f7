// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/AleutianAI/moduleforge/agent"
	"github.com/AleutianAI/moduleforge/pkg/logging"
)

// upgrader is the WebSocket upgrader for the event stream.
var upgrader = websocket.Upgrader{
	// CheckOrigin allows all origins - the server binds to localhost and
	// serves a single operator.
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
}

// HealthResponse is the response for GET /v1/health.
type HealthResponse struct {
	Status string `json:"status"`
}

// Handlers holds the dependencies for the status endpoints.
type Handlers struct {
	sessions SessionSource
	events   EventSource
	logger   *logging.Logger
}

// NewHandlers creates handlers backed by the given sources.
func NewHandlers(sessions SessionSource, events EventSource, logger *logging.Logger) *Handlers {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handlers{
		sessions: sessions,
		events:   events,
		logger:   logger,
	}
}

// RegisterRoutes registers the status endpoints on the given router group.
//
// Routes:
//
//	GET /session - current session snapshot
//	GET /events  - WebSocket stream of session events
//	GET /health  - liveness check
func RegisterRoutes(rg *gin.RouterGroup, h *Handlers) {
	rg.GET("/session", h.HandleSession)
	rg.GET("/events", h.HandleEvents)
	rg.GET("/health", h.HandleHealth)
}

// HandleSession returns the current session snapshot.
func (h *Handlers) HandleSession(c *gin.Context) {
	c.JSON(http.StatusOK, h.sessions.Snapshot())
}

// HandleHealth reports liveness.
func (h *Handlers) HandleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

// HandleEvents upgrades the connection and streams session events as JSON
// frames until the client disconnects, the broadcaster closes, or the
// request context ends. Subscribers that fall behind miss events rather
// than stalling the session; this endpoint is for observation, not replay.
func (h *Handlers) HandleEvents(c *gin.Context) {
	if h.events == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "event stream not configured"})
		return
	}

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", "error", err)
		return
	}
	defer ws.Close()

	events, cancel := h.events.Subscribe()
	defer cancel()

	// Inbound frames are discarded; the read loop exists to notice the
	// peer closing the connection.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := h.sendJSON(ws, ev); err != nil {
				return
			}
		case <-closed:
			return
		case <-c.Request.Context().Done():
			return
		}
	}
}

// sendJSON sends a JSON frame over the WebSocket connection.
func (h *Handlers) sendJSON(ws *websocket.Conn, ev agent.SessionEvent) error {
	if err := ws.WriteJSON(ev); err != nil {
		h.logger.Warn("failed to send websocket frame", "error", err)
		return err
	}
	return nil
}
