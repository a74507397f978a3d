// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package ws implements the mobile API's WebSocket notification channel
// (spec §4.9, §4.10): it carries only unsolicited pushes — revocation and
// new-alert notices — and never re-exports the full entity stream.
package ws

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// The server only ever binds to localhost/LAN and is reached
		// through a pinned-TLS connection the client already verified;
		// Origin is meaningless for a native mobile client.
		return true
	},
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
}

// Notification is one unsolicited push delivered over a device's socket.
type Notification struct {
	Type    string `json:"type"`
	Subject string `json:"subject,omitempty"`
}

const (
	TypeRevoked  = "revoked"
	TypeNewAlert = "new_alert"
)

// Hub tracks live WebSocket connections per device and lets callers push
// notifications or force-close a device's sockets on revocation.
type Hub struct {
	mu    sync.Mutex
	conns map[string]map[*websocket.Conn]struct{}
}

// NewHub constructs an empty Hub.
func NewHub() *Hub {
	return &Hub{conns: make(map[string]map[*websocket.Conn]struct{})}
}

// Upgrade upgrades an HTTP request to a WebSocket for deviceID and
// registers it with the hub. The caller owns pumping the connection
// until it closes (see Serve).
func (h *Hub) Upgrade(w http.ResponseWriter, r *http.Request, deviceID string) (*websocket.Conn, error) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, err
	}
	h.register(deviceID, conn)
	return conn, nil
}

func (h *Hub) register(deviceID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.conns[deviceID]
	if !ok {
		set = make(map[*websocket.Conn]struct{})
		h.conns[deviceID] = set
	}
	set[conn] = struct{}{}
}

func (h *Hub) unregister(deviceID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.conns[deviceID]
	if !ok {
		return
	}
	delete(set, conn)
	if len(set) == 0 {
		delete(h.conns, deviceID)
	}
}

// Serve blocks reading (and discarding) frames from conn until it closes
// or errors, then unregisters it. The channel is push-only from the
// server's side, so any inbound frame is drained and ignored — only its
// absence (a close) matters.
func (h *Hub) Serve(deviceID string, conn *websocket.Conn) {
	defer func() {
		h.unregister(deviceID, conn)
		_ = conn.Close()
	}()
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// Notify pushes a notification to every live connection for deviceID. A
// write failure closes and unregisters that connection; it does not stop
// delivery to the device's other connections.
func (h *Hub) Notify(deviceID string, n Notification) {
	h.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(h.conns[deviceID]))
	for c := range h.conns[deviceID] {
		conns = append(conns, c)
	}
	h.mu.Unlock()

	payload, err := json.Marshal(n)
	if err != nil {
		return
	}
	for _, c := range conns {
		if err := c.WriteMessage(websocket.TextMessage, payload); err != nil {
			h.unregister(deviceID, c)
			_ = c.Close()
		}
	}
}

// NotifyAll broadcasts n to every connected device — used for alerts that
// are not device-specific (the profile has exactly one data owner, but
// may be paired to several devices).
func (h *Hub) NotifyAll(n Notification) {
	h.mu.Lock()
	deviceIDs := make([]string, 0, len(h.conns))
	for id := range h.conns {
		deviceIDs = append(deviceIDs, id)
	}
	h.mu.Unlock()
	for _, id := range deviceIDs {
		h.Notify(id, n)
	}
}

// CloseDevice force-closes every live connection for deviceID. Called on
// revocation (unpair) so spec §4.9's "signals any connected WebSocket to
// close" holds immediately rather than waiting for the next failed read.
func (h *Hub) CloseDevice(deviceID string) {
	h.mu.Lock()
	set, ok := h.conns[deviceID]
	if !ok {
		h.mu.Unlock()
		return
	}
	conns := make([]*websocket.Conn, 0, len(set))
	for c := range set {
		conns = append(conns, c)
	}
	delete(h.conns, deviceID)
	h.mu.Unlock()

	closeMsg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "device revoked")
	for _, c := range conns {
		_ = c.WriteMessage(websocket.CloseMessage, closeMsg)
		_ = c.Close()
	}
}

// ConnectionCount reports how many live connections a device currently
// has open. Exposed for tests and diagnostics.
func (h *Hub) ConnectionCount(deviceID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns[deviceID])
}
