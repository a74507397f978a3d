// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package config loads ~/.coheara/coheara.yaml into a process-wide
// singleton, writing a default file on first run.
package config

import "time"

// CohearaConfig is the root configuration document.
type CohearaConfig struct {
	ProfilesRoot string        `yaml:"profiles_root"`
	Session      Session       `yaml:"session"`
	Server       Server        `yaml:"server"`
	Mobile       Mobile        `yaml:"mobile"`
	Ingestion    Ingestion     `yaml:"ingestion"`
	Sync         Sync          `yaml:"sync"`
	Logging      LoggingConfig `yaml:"logging"`
}

// Session controls inactivity locking (spec §4.8).
type Session struct {
	InactivityTimeoutMinutes int `yaml:"inactivity_timeout_minutes"`
}

// Server controls the desktop-facing local HTTP server.
type Server struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// Mobile controls the mobile API server and pairing (spec §4.9, §4.10).
// RateLimitPerMinute, NonceCacheSize and WSTicketTTLSeconds are not read
// by the mobile API, which uses fixed values of 100 requests a minute,
// 4096 nonces and a 30-second ticket.
type Mobile struct {
	Port                   int `yaml:"port"`
	MaxDevicesPerProfile   int `yaml:"max_devices_per_profile"`
	PairingWindowSeconds   int `yaml:"pairing_window_seconds"`
	TokenRotationGraceSecs int `yaml:"token_rotation_grace_seconds"`
	RateLimitPerMinute     int `yaml:"rate_limit_per_minute"`
	NonceCacheSize         int `yaml:"nonce_cache_size"`
	WSTicketTTLSeconds     int `yaml:"ws_ticket_ttl_seconds"`
}

// Ingestion controls the import pipeline (spec §4.5).
type Ingestion struct {
	NearDuplicateHammingThreshold int     `yaml:"near_duplicate_hamming_threshold"`
	OCRConfidenceFloor            float64 `yaml:"ocr_confidence_floor"`
	StructuringConfidenceFloor    float64 `yaml:"structuring_confidence_floor"`
	BatchIntervalMinutes          int     `yaml:"batch_interval_minutes"`
}

// Sync controls delta sync batching (spec §4.11).
type Sync struct {
	MaxDeltaBatchSize int `yaml:"max_delta_batch_size"`
}

// LoggingConfig controls the ambient logger.
type LoggingConfig struct {
	Level     string `yaml:"level"`
	Directory string `yaml:"directory"`
}

// DefaultConfig returns the configuration written on first run.
func DefaultConfig() CohearaConfig {
	return CohearaConfig{
		ProfilesRoot: "~/.coheara/profiles",
		Session: Session{
			InactivityTimeoutMinutes: 15,
		},
		Server: Server{
			Host: "127.0.0.1",
			Port: 8420,
		},
		Mobile: Mobile{
			Port:                   8421,
			MaxDevicesPerProfile:   5,
			PairingWindowSeconds:   120,
			TokenRotationGraceSecs: 30,
			RateLimitPerMinute:     100,
			NonceCacheSize:         4096,
			WSTicketTTLSeconds:     30,
		},
		Ingestion: Ingestion{
			NearDuplicateHammingThreshold: 10,
			OCRConfidenceFloor:            0.85,
			StructuringConfidenceFloor:    0.75,
			BatchIntervalMinutes:          15,
		},
		Sync: Sync{
			MaxDeltaBatchSize: 500,
		},
		Logging: LoggingConfig{
			Level:     "info",
			Directory: "~/.coheara/logs",
		},
	}
}

// InactivityTimeout returns the configured inactivity timeout as a
// duration.
func (c CohearaConfig) InactivityTimeout() time.Duration {
	return time.Duration(c.Session.InactivityTimeoutMinutes) * time.Minute
}
