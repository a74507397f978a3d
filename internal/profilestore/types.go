// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package profilestore owns the on-disk profile directory tree: the
// registry of profiles, the per-profile salts and verification token,
// the encrypted markdown sidecar files, and the staging directories
// mobile imports land in before the ingestion pipeline claims them.
package profilestore

import (
	"time"

	ccrypto "github.com/coheara/engine/internal/crypto"
)

// ProfileMeta is one row of profiles.json.
type ProfileMeta struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	ColorIndex int       `json:"color_index"`
	ManagedBy  string    `json:"managed_by,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// UnlockedProfile is the in-memory handle returned by Unlock and Recover.
// internal/session wraps exactly one of these in the process-wide active
// session; profilestore itself holds no session state.
type UnlockedProfile struct {
	ProfileID    string
	ProfileName  string
	Key          *ccrypto.Key
	DatabasePath string
}

const (
	registryFileName      = "profiles.json"
	appDBFileName         = "app.db"
	saltFileName          = "salt.bin"
	recoverySaltFileName  = "recovery_salt.bin"
	verificationFileName  = "verification.enc"
	databaseDirName       = "database"
	profileDBFileName     = "profile.db"
	markdownDirName       = "markdown"
	mobileStagingDirName  = "staging/mobile"
	wifiStagingDirName    = "wifi_staging"
	verificationPlaintext = "COHEARA_VERIFY"
)
