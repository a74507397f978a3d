// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package mobileapi

import (
	"context"
	"crypto/tls"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/coheara/engine/pkg/logging"
)

// Server wraps the gin engine in a real http.Server so it can be stopped
// gracefully from session.State.Lock — the mobile server is torn down
// the instant a profile locks (spec §4.8).
type Server struct {
	httpServer *http.Server
	log        *logging.Logger

	mu      sync.Mutex
	started bool
}

// NewServer builds a Server bound to addr, serving engine over tlsConfig
// (the self-signed, fingerprint-pinned certificate from §4.9).
func NewServer(addr string, engine http.Handler, tlsConfig *tls.Config) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:      addr,
			Handler:   engine,
			TLSConfig: tlsConfig,
		},
		log: logging.Default(),
	}
}

// Start begins serving in the background and returns once the listener
// is bound, so callers can read back the chosen port immediately.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return nil
	}

	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return err
	}
	if s.httpServer.TLSConfig != nil {
		ln = tls.NewListener(ln, s.httpServer.TLSConfig)
	}
	s.httpServer.Addr = ln.Addr().String()
	s.started = true

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.log.Warn("mobile server stopped", "error", err)
		}
	}()
	return nil
}

// Addr returns the address the server bound to after Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.httpServer.Addr
}

// Stop gracefully shuts the server down, satisfying session.Stoppable.
func (s *Server) Stop() error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = false
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(ctx)
}
