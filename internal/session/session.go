// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package session holds the single process-wide active-profile state
// (spec §4.8): at most one unlocked profile at a time, an inactivity
// timeout, and a handle to the mobile server so Lock can tear all of it
// down safely from any goroutine.
package session

import (
	"sync"
	"time"

	ccrypto "github.com/coheara/engine/internal/crypto"
	"github.com/coheara/engine/pkg/logging"
)

// Active describes the currently unlocked profile.
type Active struct {
	ProfileID    string
	ProfileName  string
	Key          *ccrypto.Key
	DatabasePath string
}

// Stoppable is anything State.Lock should shut down alongside the
// profile key — the mobile server implements this.
type Stoppable interface {
	Stop() error
}

// State is the process-wide session singleton. Safe for concurrent use;
// every method takes the lock it needs and releases it before returning.
type State struct {
	mu                sync.RWMutex
	active            *Active
	profilesRoot      string
	inactivityTimeout time.Duration
	lastActivity      time.Time
	mobileServer      Stoppable
	log               *logging.Logger
}

// New creates session state with the given profiles root and inactivity
// timeout. No profile is active until SetActive is called.
func New(profilesRoot string, inactivityTimeout time.Duration) *State {
	return &State{
		profilesRoot:      profilesRoot,
		inactivityTimeout: inactivityTimeout,
		lastActivity:      time.Now(),
		log:               logging.Default(),
	}
}

// SetActive installs the unlocked profile as the active session,
// replacing (and locking out) any previously active one. Callers must
// have already destroyed any prior active key themselves if they held a
// reference to it; State.Lock is the usual route to do that safely.
func (s *State) SetActive(active *Active) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = active
	s.lastActivity = time.Now()
}

// Active returns the current session, or nil if no profile is unlocked.
func (s *State) Active() *Active {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active
}

// SetMobileServer records the running mobile server handle so Lock can
// stop it.
func (s *State) SetMobileServer(server Stoppable) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mobileServer = server
}

// Lock tears down the active session: destroys the profile key, stops
// the mobile server if one is running, and clears the active profile.
// Always safe to call, including when nothing is unlocked.
func (s *State) Lock() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active != nil {
		s.active.Key.Destroy()
		s.log.Info("profile locked", "profile_id", s.active.ProfileID)
		s.active = nil
	}
	if s.mobileServer != nil {
		if err := s.mobileServer.Stop(); err != nil {
			s.log.Warn("lock: mobile server stop failed", "error", err)
		}
		s.mobileServer = nil
	}
}

// UpdateActivity records that a profile-touching request just happened.
// Every request that mutates or reads a profile must call this.
func (s *State) UpdateActivity() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastActivity = time.Now()
}

// CheckTimeout reports whether the inactivity timeout has elapsed since
// the last UpdateActivity call. Does not itself lock the session;
// callers act on the result (typically by calling Lock).
func (s *State) CheckTimeout() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.active == nil {
		return false
	}
	return time.Since(s.lastActivity) >= s.inactivityTimeout
}

// ProfilesRoot returns the configured profiles root directory.
func (s *State) ProfilesRoot() string { return s.profilesRoot }
