// Upsell - Product Relation Build & Serve Engine
// Copyright 2026 FF Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fflabs/upsell

package api

import (
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

const (
	wsWriteTimeout = 10 * time.Second
	wsPingInterval = 30 * time.Second
)

// checkOrigin enforces the configured CORS allowlist on websocket
// upgrades; the router's CORS middleware governs only plain HTTP.
// Same-origin requests and clients that send no Origin header are
// allowed.
func (h *Handler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	if u, err := url.Parse(origin); err == nil && strings.EqualFold(u.Host, r.Host) {
		return true
	}
	for _, allowed := range h.allowedOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	return false
}

// ProgressStream handles GET /api/v1/rebuild/progress/ws. The client
// receives the current snapshot on connect, then one event per
// completed batch and a final terminal event. The polling endpoint
// remains the stable contract; this stream is additive.
func (h *Handler) ProgressStream(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	events, unsubscribe := h.rebuilder.Subscribe()
	defer unsubscribe()

	// Drain client frames so close/ping handling works.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	snapshot := h.rebuilder.Progress()
	if err := h.writeProgress(conn, snapshot); err != nil {
		return
	}

	pinger := time.NewTicker(wsPingInterval)
	defer pinger.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-pinger.C:
			deadline := time.Now().Add(wsWriteTimeout)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				return
			}
		case event, ok := <-events:
			if !ok {
				return
			}
			if err := h.writeProgress(conn, event); err != nil {
				return
			}
			if event.Status.Terminal() {
				return
			}
		}
	}
}

func (h *Handler) writeProgress(conn *websocket.Conn, p interface{}) error {
	if err := conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout)); err != nil {
		return err
	}
	return conn.WriteJSON(p)
}
