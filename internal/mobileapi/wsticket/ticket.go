// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package wsticket mints and validates the short-lived WebSocket upgrade
// ticket spec §4.10 describes: a separate endpoint mints a 30-second
// opaque ticket bound to a device, and the upgrade query carries the
// ticket instead of exposing the bearer token in the URL.
package wsticket

import (
	"crypto/rand"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/coheara/engine/pkg/cherr"
)

const (
	// TTL is how long a minted ticket remains valid.
	TTL = 30 * time.Second

	secretBytes = 32
	issuer      = "coheara-mobileapi"
)

// Claims binds a ticket to the device that requested it.
type Claims struct {
	DeviceID string `json:"device_id"`
	jwt.RegisteredClaims
}

// Minter issues and validates WebSocket tickets. Its signing secret lives
// only in process memory and is regenerated on every server start, so a
// ticket never outlives the server that minted it.
type Minter struct {
	secret []byte
}

// NewMinter constructs a Minter with a fresh random signing secret.
func NewMinter() (*Minter, error) {
	secret := make([]byte, secretBytes)
	if _, err := rand.Read(secret); err != nil {
		return nil, cherr.Wrap(cherr.Crypto, "generate ticket secret", err)
	}
	return &Minter{secret: secret}, nil
}

// Mint issues a ticket bound to deviceID, valid for TTL.
func (m *Minter) Mint(deviceID string) (string, error) {
	now := time.Now()
	claims := Claims{
		DeviceID: deviceID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   deviceID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(TTL)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", cherr.Wrap(cherr.Crypto, "sign ticket", err)
	}
	return signed, nil
}

// Validate parses ticket and returns the device ID it was bound to. It
// rejects expired, malformed, or mis-signed tickets, and a ticket bound
// to a device other than wantDeviceID.
func (m *Minter) Validate(ticket, wantDeviceID string) (string, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(ticket, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, cherr.New(cherr.TokenExpired, "unexpected ticket signing method")
		}
		return m.secret, nil
	}, jwt.WithIssuer(issuer))
	if err != nil || !parsed.Valid {
		return "", cherr.New(cherr.TokenExpired, "ws ticket invalid or expired")
	}
	if wantDeviceID != "" && claims.DeviceID != wantDeviceID {
		return "", cherr.New(cherr.AuthRequired, "ws ticket bound to a different device")
	}
	return claims.DeviceID, nil
}
