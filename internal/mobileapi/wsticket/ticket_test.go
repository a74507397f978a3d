// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package wsticket

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

func TestMinter_MintThenValidateRoundTrips(t *testing.T) {
	m, err := NewMinter()
	require.NoError(t, err)

	ticket, err := m.Mint("device-1")
	require.NoError(t, err)

	deviceID, err := m.Validate(ticket, "device-1")
	require.NoError(t, err)
	require.Equal(t, "device-1", deviceID)
}

func TestMinter_ValidateRejectsWrongDevice(t *testing.T) {
	m, err := NewMinter()
	require.NoError(t, err)

	ticket, err := m.Mint("device-1")
	require.NoError(t, err)

	_, err = m.Validate(ticket, "device-2")
	require.Error(t, err)
}

func TestMinter_ValidateRejectsExpiredTicket(t *testing.T) {
	m, err := NewMinter()
	require.NoError(t, err)

	now := time.Now()
	claims := Claims{
		DeviceID: "device-1",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   "device-1",
			IssuedAt:  jwt.NewNumericDate(now.Add(-time.Minute)),
			ExpiresAt: jwt.NewNumericDate(now.Add(-30 * time.Second)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	expired, err := token.SignedString(m.secret)
	require.NoError(t, err)

	_, err = m.Validate(expired, "device-1")
	require.Error(t, err)
}

func TestMinter_ValidateRejectsTicketFromDifferentMinter(t *testing.T) {
	m1, err := NewMinter()
	require.NoError(t, err)
	m2, err := NewMinter()
	require.NoError(t, err)

	ticket, err := m1.Mint("device-1")
	require.NoError(t, err)

	_, err = m2.Validate(ticket, "device-1")
	require.Error(t, err)
}

func TestMinter_MintProducesTicketValidForAboutThirtySeconds(t *testing.T) {
	m, err := NewMinter()
	require.NoError(t, err)

	ticket, err := m.Mint("device-1")
	require.NoError(t, err)

	claims := &Claims{}
	_, _, err = jwt.NewParser().ParseUnverified(ticket, claims)
	require.NoError(t, err)

	remaining := claims.ExpiresAt.Time.Sub(time.Now())
	require.InDelta(t, TTL.Seconds(), remaining.Seconds(), 2)
}
