// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package pairing

import (
	"context"
	"crypto/ecdh"
	"crypto/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coheara/engine/internal/store"
)

type fakeTokenStore struct {
	mu     sync.Mutex
	hashes map[string]string
}

func newFakeTokenStore() *fakeTokenStore { return &fakeTokenStore{hashes: make(map[string]string)} }

func (f *fakeTokenStore) Upsert(deviceID, tokenHash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hashes[deviceID] = tokenHash
	return nil
}

func (f *fakeTokenStore) TokenHash(deviceID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hashes[deviceID], nil
}

func (f *fakeTokenStore) Revoke(deviceID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.hashes, deviceID)
	return nil
}

func (f *fakeTokenStore) All() (map[string]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]string, len(f.hashes))
	for k, v := range f.hashes {
		out[k] = v
	}
	return out, nil
}

type fakeDeviceRegistry struct {
	mu      sync.Mutex
	devices map[string]store.DeviceRegistration
	access  map[string]store.AccessLevel
}

func newFakeDeviceRegistry() *fakeDeviceRegistry {
	return &fakeDeviceRegistry{devices: make(map[string]store.DeviceRegistration), access: make(map[string]store.AccessLevel)}
}

func (f *fakeDeviceRegistry) RegisterDevice(d store.DeviceRegistration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.devices[d.DeviceID] = d
	return nil
}

func (f *fakeDeviceRegistry) RevokeDevice(deviceID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.devices, deviceID)
	delete(f.access, deviceID)
	return nil
}

func (f *fakeDeviceRegistry) GrantDeviceAccess(deviceID, profileID string, level store.AccessLevel) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.access[deviceID] = level
	return nil
}

func (f *fakeDeviceRegistry) ListDevicesForProfile(profileID string) ([]store.DeviceRegistration, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]store.DeviceRegistration, 0, len(f.devices))
	for _, d := range f.devices {
		if d.OwnerProfileID == profileID {
			out = append(out, d)
		}
	}
	return out, nil
}

func phoneKeypair(t *testing.T) (priv *ecdh.PrivateKey, pub []byte) {
	t.Helper()
	key, err := ecdh.X25519().GenerateKey(rand.Reader)
	require.NoError(t, err)
	return key, key.PublicKey().Bytes()
}

func newTestRegistry(t *testing.T) (*Registry, *fakeTokenStore, *fakeDeviceRegistry) {
	t.Helper()
	devices := newFakeDeviceRegistry()
	tokens := newFakeTokenStore()
	reg := NewRegistry(devices, 5, time.Minute, time.Second)
	require.NoError(t, reg.SetActiveProfile("profile-1", "Alex", tokens))
	return reg, tokens, devices
}

func TestStartPairing_ReturnsPayloadWithToken(t *testing.T) {
	reg, _, _ := newTestRegistry(t)
	payload, err := reg.StartPairing("https://192.168.1.5:8421", "AA:BB:CC")
	require.NoError(t, err)
	assert.NotEmpty(t, payload.Token)
	assert.Len(t, payload.PublicKey, 32)
}

func TestStartPairing_FailsWithNoActiveProfile(t *testing.T) {
	reg := NewRegistry(newFakeDeviceRegistry(), 5, time.Minute, time.Second)
	_, err := reg.StartPairing("https://host", "fp")
	assert.ErrorIs(t, err, ErrNoActiveProfile)
}

func TestStartPairing_FailsAtDeviceCap(t *testing.T) {
	devices := newFakeDeviceRegistry()
	tokens := newFakeTokenStore()
	reg := NewRegistry(devices, 1, time.Minute, time.Second)
	require.NoError(t, reg.SetActiveProfile("profile-1", "Alex", tokens))
	require.NoError(t, devices.RegisterDevice(store.DeviceRegistration{DeviceID: "d1", OwnerProfileID: "profile-1"}))

	_, err := reg.StartPairing("https://host", "fp")
	assert.ErrorIs(t, err, ErrDeviceCapReached)
}

func TestPairingHandshake_ApproveCompletesPhoneRequest(t *testing.T) {
	reg, tokens, devices := newTestRegistry(t)
	payload, err := reg.StartPairing("https://192.168.1.5:8421", "AA:BB:CC")
	require.NoError(t, err)

	_, phonePub := phoneKeypair(t)

	resultCh := make(chan *PairResult, 1)
	errCh := make(chan error, 1)
	go func() {
		r, err := reg.RequestPairing(payload.Token, phonePub, "Alex's Phone", "Pixel 9")
		resultCh <- r
		errCh <- err
	}()

	require.Eventually(t, func() bool { return len(reg.ListPendingRequests()) == 1 }, time.Second, time.Millisecond)

	approved, err := reg.ApprovePairing(payload.Token)
	require.NoError(t, err)
	assert.NotEmpty(t, approved.SessionToken)
	assert.Equal(t, "Alex", approved.ProfileName)

	phoneResult := <-resultCh
	require.NoError(t, <-errCh)
	assert.Equal(t, approved.SessionToken, phoneResult.SessionToken)

	hashes, err := tokens.All()
	require.NoError(t, err)
	assert.Len(t, hashes, 1)

	regDevices, err := devices.ListDevicesForProfile("profile-1")
	require.NoError(t, err)
	require.Len(t, regDevices, 1)
	assert.Equal(t, "Alex's Phone", regDevices[0].DeviceName)
}

func TestPairingHandshake_DenyReturnsErrorToPhone(t *testing.T) {
	reg, _, _ := newTestRegistry(t)
	payload, err := reg.StartPairing("https://host", "fp")
	require.NoError(t, err)
	_, phonePub := phoneKeypair(t)

	errCh := make(chan error, 1)
	go func() {
		_, err := reg.RequestPairing(payload.Token, phonePub, "Phone", "Model")
		errCh <- err
	}()

	require.Eventually(t, func() bool { return len(reg.ListPendingRequests()) == 1 }, time.Second, time.Millisecond)
	require.NoError(t, reg.DenyPairing(payload.Token))
	assert.ErrorIs(t, <-errCh, ErrPairingDenied)
}

func TestRequestPairing_RejectsUnknownToken(t *testing.T) {
	reg, _, _ := newTestRegistry(t)
	_, phonePub := phoneKeypair(t)
	_, err := reg.RequestPairing("not-a-real-token", phonePub, "Phone", "Model")
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestRequestPairing_RejectsMalformedPublicKey(t *testing.T) {
	reg, _, _ := newTestRegistry(t)
	payload, err := reg.StartPairing("https://host", "fp")
	require.NoError(t, err)
	_, err = reg.RequestPairing(payload.Token, []byte{0x01, 0x02}, "Phone", "Model")
	assert.Error(t, err)
}

func pairedDevice(t *testing.T, reg *Registry) (sessionToken string) {
	t.Helper()
	payload, err := reg.StartPairing("https://host", "fp")
	require.NoError(t, err)
	_, phonePub := phoneKeypair(t)

	go reg.RequestPairing(payload.Token, phonePub, "Phone", "Model")
	require.Eventually(t, func() bool { return len(reg.ListPendingRequests()) == 1 }, time.Second, time.Millisecond)

	result, err := reg.ApprovePairing(payload.Token)
	require.NoError(t, err)
	return result.SessionToken
}

func TestValidate_RotatesTokenOnSuccess(t *testing.T) {
	reg, _, _ := newTestRegistry(t)
	sessionToken := pairedDevice(t, reg)

	info, newToken, err := reg.Validate(context.Background(), sessionToken)
	require.NoError(t, err)
	assert.Equal(t, "profile-1", info.ProfileID)
	assert.NotEqual(t, sessionToken, newToken)

	// Old token still works briefly within the rotation grace window.
	_, _, err = reg.Validate(context.Background(), sessionToken)
	require.NoError(t, err)

	// New token also works.
	_, _, err = reg.Validate(context.Background(), newToken)
	require.NoError(t, err)
}

func TestValidate_RejectsUnknownToken(t *testing.T) {
	reg, _, _ := newTestRegistry(t)
	_, err := reg.StartPairing("https://host", "fp")
	require.NoError(t, err)
	_, _, err = reg.Validate(context.Background(), "garbage-token")
	assert.Error(t, err)
}

func TestRevokeDevice_InvalidatesFutureValidation(t *testing.T) {
	reg, _, _ := newTestRegistry(t)
	sessionToken := pairedDevice(t, reg)

	info, newToken, err := reg.Validate(context.Background(), sessionToken)
	require.NoError(t, err)

	require.NoError(t, reg.RevokeDevice(info.DeviceID))

	_, _, err = reg.Validate(context.Background(), newToken)
	assert.Error(t, err)
}

func TestRevokeDevice_InvokesOnRevokeCallback(t *testing.T) {
	reg, _, _ := newTestRegistry(t)
	sessionToken := pairedDevice(t, reg)
	info, _, err := reg.Validate(context.Background(), sessionToken)
	require.NoError(t, err)

	var revoked string
	reg.OnRevoke(func(deviceID string) { revoked = deviceID })

	require.NoError(t, reg.RevokeDevice(info.DeviceID))
	assert.Equal(t, info.DeviceID, revoked)
}

func TestClearActiveProfile_DeniesWaitingPhoneRequests(t *testing.T) {
	reg, _, _ := newTestRegistry(t)
	payload, err := reg.StartPairing("https://host", "fp")
	require.NoError(t, err)
	_, phonePub := phoneKeypair(t)

	errCh := make(chan error, 1)
	go func() {
		_, err := reg.RequestPairing(payload.Token, phonePub, "Phone", "Model")
		errCh <- err
	}()
	require.Eventually(t, func() bool { return len(reg.ListPendingRequests()) == 1 }, time.Second, time.Millisecond)

	reg.ClearActiveProfile()
	assert.ErrorIs(t, <-errCh, ErrPairingDenied)
}
