// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package pairing implements the desktop-initiated, phone-completed
// device pairing handshake and the bearer-token registry that backs
// every subsequent mobile API request (spec §4.9).
package pairing

import (
	"errors"
	"time"

	"github.com/coheara/engine/internal/store"
)

// ErrDeviceCapReached is returned by StartPairing when a profile already
// has as many registered devices as the configured cap.
var ErrDeviceCapReached = errors.New("pairing: device cap reached")

// ErrTokenInvalid covers an unknown, expired, or already-consumed pairing
// token.
var ErrTokenInvalid = errors.New("pairing: token invalid or expired")

// ErrPairingDenied is returned to the waiting phone request when the
// desktop calls DenyPairing, or when the 60-second approval wait expires.
var ErrPairingDenied = errors.New("pairing: denied")

// ErrNoActiveProfile is returned by any operation that requires a bound
// profile (set via SetActiveProfile) when none is bound.
var ErrNoActiveProfile = errors.New("pairing: no active profile")

// TokenStore is the per-profile persistence pairing needs for the
// session-token hash; internal/store.DeviceTokenRepo implements it
// against the currently unlocked profile's encrypted database.
type TokenStore interface {
	Upsert(deviceID, tokenHash string) error
	TokenHash(deviceID string) (string, error)
	Revoke(deviceID string) error
	All() (map[string]string, error)
}

// DeviceRegistry is the cross-profile, unencrypted persistence pairing
// needs for the device row itself; internal/store.AppRepo implements it.
type DeviceRegistry interface {
	RegisterDevice(store.DeviceRegistration) error
	RevokeDevice(deviceID string) error
	GrantDeviceAccess(deviceID, profileID string, level store.AccessLevel) error
	ListDevicesForProfile(profileID string) ([]store.DeviceRegistration, error)
}

// PairingPayload is the QR payload StartPairing returns for the phone to
// scan.
type PairingPayload struct {
	ServerURL string `json:"server_url"`
	Fingerprint string `json:"fingerprint"`
	Token     string `json:"token"`
	PublicKey []byte `json:"public_key"`
}

// PendingRequest describes a phone pairing request awaiting desktop
// approval.
type PendingRequest struct {
	Token        string
	DeviceName   string
	DeviceModel  string
	RequestedAt  time.Time
}

// PairResult is returned to the phone on successful ApprovePairing.
type PairResult struct {
	SessionToken      string
	CacheKeyEncrypted []byte
	ProfileName       string
}
