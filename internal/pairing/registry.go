// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package pairing

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/coheara/engine/internal/store"
	"github.com/coheara/engine/pkg/cherr"
	"github.com/coheara/engine/pkg/extensions"
	"github.com/coheara/engine/pkg/logging"
)

const tokenBytes = 32

var _ extensions.DeviceAuthProvider = (*Registry)(nil)

type pendingToken struct {
	keypair     *ephemeralKeypair
	profileID   string
	profileName string
	expiresAt   time.Time
	consumed    bool
	request     *pendingRequest
}

type pendingRequest struct {
	deviceName     string
	deviceModel    string
	phonePublicKey []byte
	requestedAt    time.Time
	decision       chan decision
}

type decision struct {
	result *PairResult
	err    error
}

type graceEntry struct {
	deviceID  string
	expiresAt time.Time
}

// Registry holds every piece of pairing state for the single profile
// that can be active at a time: in-flight pairing tokens, the live
// session-token-hash lookup, and the short rotation-grace window that
// tolerates an in-flight request racing a rotation.
type Registry struct {
	mu            sync.Mutex
	log           *logging.Logger
	deviceCap     int
	pairingTTL    time.Duration
	approvalWait  time.Duration
	rotationGrace time.Duration
	limiter       *rate.Limiter

	devices DeviceRegistry

	activeProfileID   string
	activeProfileName string
	tokens            TokenStore

	pending      map[string]*pendingToken
	byTokenHash  map[string]string
	hashByDevice map[string]string
	graceHashes  map[string]graceEntry
	deviceNames  map[string]string
	onRevoke     func(deviceID string)
}

// OnRevoke registers a callback invoked after RevokeDevice removes a
// device's in-memory and persisted state. The mobile API wires this to
// its WebSocket hub so spec §4.9's "signals any connected WebSocket to
// close" happens synchronously with revocation rather than waiting for
// the socket's next failed read.
func (r *Registry) OnRevoke(fn func(deviceID string)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onRevoke = fn
}

// NewRegistry constructs a pairing registry bound to the cross-profile
// device registry. No profile is active until SetActiveProfile is called.
func NewRegistry(devices DeviceRegistry, deviceCap int, pairingTTL, rotationGrace time.Duration) *Registry {
	return &Registry{
		log:           logging.Default(),
		deviceCap:     deviceCap,
		pairingTTL:    pairingTTL,
		approvalWait:  60 * time.Second,
		rotationGrace: rotationGrace,
		limiter:       rate.NewLimiter(rate.Every(12*time.Second), 5),
		devices:       devices,
		pending:       make(map[string]*pendingToken),
		byTokenHash:   make(map[string]string),
		hashByDevice:  make(map[string]string),
		graceHashes:   make(map[string]graceEntry),
		deviceNames:   make(map[string]string),
	}
}

// SetActiveProfile binds the registry to the unlocked profile, loading
// its existing device token hashes so requests from already-paired
// devices keep working across a lock/unlock cycle.
func (r *Registry) SetActiveProfile(profileID, profileName string, tokens TokenStore) error {
	hashes, err := tokens.All()
	if err != nil {
		return err
	}
	devices, err := r.devices.ListDevicesForProfile(profileID)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.activeProfileID = profileID
	r.activeProfileName = profileName
	r.tokens = tokens
	r.byTokenHash = make(map[string]string, len(hashes))
	r.hashByDevice = make(map[string]string, len(hashes))
	for deviceID, hash := range hashes {
		r.byTokenHash[hash] = deviceID
		r.hashByDevice[deviceID] = hash
	}
	r.deviceNames = make(map[string]string, len(devices))
	for _, d := range devices {
		r.deviceNames[d.DeviceID] = d.DeviceName
	}
	r.graceHashes = make(map[string]graceEntry)
	r.pending = make(map[string]*pendingToken)
	return nil
}

// ClearActiveProfile unbinds the registry (called on session lock). Any
// phone requests still waiting on approval are denied.
func (r *Registry) ClearActiveProfile() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, pt := range r.pending {
		if pt.request != nil {
			sendDecision(pt.request.decision, decision{err: ErrPairingDenied})
		}
	}
	r.activeProfileID = ""
	r.activeProfileName = ""
	r.tokens = nil
	r.pending = make(map[string]*pendingToken)
	r.byTokenHash = make(map[string]string)
	r.hashByDevice = make(map[string]string)
	r.graceHashes = make(map[string]graceEntry)
	r.deviceNames = make(map[string]string)
}

// StartPairing allocates an ephemeral keypair and a single-use pairing
// token, returning the QR payload for the desktop to display.
func (r *Registry) StartPairing(serverURL, fingerprint string) (*PairingPayload, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pruneExpiredLocked()

	if r.activeProfileID == "" {
		return nil, ErrNoActiveProfile
	}
	existing, err := r.devices.ListDevicesForProfile(r.activeProfileID)
	if err != nil {
		return nil, err
	}
	if len(existing) >= r.deviceCap {
		return nil, ErrDeviceCapReached
	}

	keypair, err := newEphemeralKeypair()
	if err != nil {
		return nil, err
	}
	token, err := randomToken()
	if err != nil {
		return nil, err
	}
	r.pending[token] = &pendingToken{
		keypair:     keypair,
		profileID:   r.activeProfileID,
		profileName: r.activeProfileName,
		expiresAt:   time.Now().Add(r.pairingTTL),
	}
	return &PairingPayload{
		ServerURL:   serverURL,
		Fingerprint: fingerprint,
		Token:       token,
		PublicKey:   keypair.public,
	}, nil
}

// RequestPairing is called from the phone's POST /api/auth/pair handler.
// It validates the rate limit and token, then blocks up to the 60-second
// approval wait for the desktop to call ApprovePairing or DenyPairing.
func (r *Registry) RequestPairing(token string, phonePublicKey []byte, deviceName, deviceModel string) (*PairResult, error) {
	if !r.limiter.Allow() {
		return nil, cherr.New(cherr.RateLimited, "too many pairing requests")
	}
	if token == "" {
		return nil, ErrTokenInvalid
	}
	if !validPublicKeyShape(phonePublicKey) {
		return nil, cherr.New(cherr.BadRequest, "malformed phone public key")
	}

	r.mu.Lock()
	r.pruneExpiredLocked()
	pt, ok := r.pending[token]
	if !ok || pt.consumed || time.Now().After(pt.expiresAt) {
		r.mu.Unlock()
		return nil, ErrTokenInvalid
	}
	if pt.request != nil {
		r.mu.Unlock()
		return nil, ErrTokenInvalid
	}
	pt.request = &pendingRequest{
		deviceName:     deviceName,
		deviceModel:    deviceModel,
		phonePublicKey: phonePublicKey,
		requestedAt:    time.Now(),
		decision:       make(chan decision, 1),
	}
	ch := pt.request.decision
	r.mu.Unlock()

	select {
	case d := <-ch:
		return d.result, d.err
	case <-time.After(r.approvalWait):
		r.mu.Lock()
		pt.consumed = true
		delete(r.pending, token)
		r.mu.Unlock()
		return nil, ErrPairingDenied
	}
}

// ListPendingRequests returns a snapshot of phone requests awaiting
// desktop approval, for display in a pairing UI.
func (r *Registry) ListPendingRequests() []PendingRequest {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]PendingRequest, 0)
	for token, pt := range r.pending {
		if pt.consumed || pt.request == nil {
			continue
		}
		out = append(out, PendingRequest{
			Token:       token,
			DeviceName:  pt.request.deviceName,
			DeviceModel: pt.request.deviceModel,
			RequestedAt: pt.request.requestedAt,
		})
	}
	return out
}

// ApprovePairing completes the handshake: ECDH, device registration, and
// initial token persistence. Any persistence failure is rolled back
// best-effort and reported to the waiting phone request.
func (r *Registry) ApprovePairing(token string) (*PairResult, error) {
	r.mu.Lock()
	pt, ok := r.pending[token]
	if !ok || pt.consumed || pt.request == nil || time.Now().After(pt.expiresAt) {
		r.mu.Unlock()
		return nil, ErrTokenInvalid
	}
	pt.consumed = true
	delete(r.pending, token)
	profileID, profileName := pt.profileID, pt.profileName
	tokens := r.tokens
	r.mu.Unlock()

	secret, err := pt.keypair.sharedSecret(pt.request.phonePublicKey)
	if err != nil {
		sendDecision(pt.request.decision, decision{err: err})
		return nil, err
	}

	deviceID := uuid.New().String()
	sessionToken, err := randomToken()
	if err != nil {
		sendDecision(pt.request.decision, decision{err: err})
		return nil, err
	}
	hash := sha256Hex(sessionToken)
	now := time.Now().UTC()

	if err := r.devices.RegisterDevice(store.DeviceRegistration{
		DeviceID: deviceID, DeviceName: pt.request.deviceName, DeviceModel: pt.request.deviceModel,
		OwnerProfileID: profileID, PublicKey: pt.request.phonePublicKey,
		RegisteredAt: now, LastSeenAt: now,
	}); err != nil {
		wrapped := cherr.Wrap(cherr.Internal, "register paired device", err)
		sendDecision(pt.request.decision, decision{err: wrapped})
		return nil, wrapped
	}
	if err := r.devices.GrantDeviceAccess(deviceID, profileID, store.AccessFull); err != nil {
		r.devices.RevokeDevice(deviceID)
		wrapped := cherr.Wrap(cherr.Internal, "grant device access", err)
		sendDecision(pt.request.decision, decision{err: wrapped})
		return nil, wrapped
	}
	if tokens == nil || tokens.Upsert(deviceID, hash) != nil {
		r.devices.RevokeDevice(deviceID)
		wrapped := cherr.New(cherr.Internal, "persist device token failed")
		sendDecision(pt.request.decision, decision{err: wrapped})
		return nil, wrapped
	}

	r.mu.Lock()
	r.byTokenHash[hash] = deviceID
	r.hashByDevice[deviceID] = hash
	r.deviceNames[deviceID] = pt.request.deviceName
	r.mu.Unlock()

	result := &PairResult{SessionToken: sessionToken, CacheKeyEncrypted: secret, ProfileName: profileName}
	sendDecision(pt.request.decision, decision{result: result})
	return result, nil
}

// DenyPairing resolves a pending phone request with a denial. The token
// becomes consumed either way.
func (r *Registry) DenyPairing(token string) error {
	r.mu.Lock()
	pt, ok := r.pending[token]
	if !ok {
		r.mu.Unlock()
		return ErrTokenInvalid
	}
	pt.consumed = true
	delete(r.pending, token)
	r.mu.Unlock()

	if pt.request != nil {
		sendDecision(pt.request.decision, decision{err: ErrPairingDenied})
	}
	return nil
}

// Validate implements extensions.DeviceAuthProvider: it checks the
// bearer token against the live hash (or the short rotation-grace
// window) and, on success, atomically rotates it.
func (r *Registry) Validate(_ context.Context, token string) (*extensions.DeviceAuthInfo, string, error) {
	hash := sha256Hex(token)

	r.mu.Lock()
	if r.activeProfileID == "" {
		r.mu.Unlock()
		return nil, "", cherr.New(cherr.AuthRequired, "no profile unlocked")
	}
	r.pruneGraceLocked()

	deviceID, live := r.byTokenHash[hash]
	if !live {
		if g, ok := r.graceHashes[hash]; ok && time.Now().Before(g.expiresAt) {
			deviceID = g.deviceID
			live = true
		}
	}
	if !live {
		r.mu.Unlock()
		return nil, "", cherr.New(cherr.AuthRequired, "invalid or expired token")
	}

	newToken, err := randomToken()
	if err != nil {
		r.mu.Unlock()
		return nil, "", err
	}
	newHash := sha256Hex(newToken)

	if oldHash, ok := r.hashByDevice[deviceID]; ok {
		delete(r.byTokenHash, oldHash)
		r.graceHashes[oldHash] = graceEntry{deviceID: deviceID, expiresAt: time.Now().Add(r.rotationGrace)}
	}
	r.byTokenHash[newHash] = deviceID
	r.hashByDevice[deviceID] = newHash
	profileID := r.activeProfileID
	name := r.deviceNames[deviceID]
	tokens := r.tokens
	r.mu.Unlock()

	if tokens != nil {
		if err := tokens.Upsert(deviceID, newHash); err != nil {
			r.log.Warn("token rotation persistence failed", "device_id", deviceID, "error", err)
		}
	}

	return &extensions.DeviceAuthInfo{DeviceID: deviceID, DeviceName: name, ProfileID: profileID}, newToken, nil
}

// RevokeDevice unpairs a device immediately: its row, its token hash,
// and every in-memory trace of it are removed.
func (r *Registry) RevokeDevice(deviceID string) error {
	r.mu.Lock()
	if hash, ok := r.hashByDevice[deviceID]; ok {
		delete(r.byTokenHash, hash)
		delete(r.hashByDevice, deviceID)
	}
	for hash, g := range r.graceHashes {
		if g.deviceID == deviceID {
			delete(r.graceHashes, hash)
		}
	}
	delete(r.deviceNames, deviceID)
	tokens := r.tokens
	onRevoke := r.onRevoke
	r.mu.Unlock()

	if tokens != nil {
		if err := tokens.Revoke(deviceID); err != nil {
			r.log.Warn("revoke device token failed", "device_id", deviceID, "error", err)
		}
	}
	err := r.devices.RevokeDevice(deviceID)
	if onRevoke != nil {
		onRevoke(deviceID)
	}
	return err
}

func (r *Registry) pruneExpiredLocked() {
	now := time.Now()
	for token, pt := range r.pending {
		if pt.consumed || now.After(pt.expiresAt) {
			delete(r.pending, token)
		}
	}
}

func (r *Registry) pruneGraceLocked() {
	now := time.Now()
	for hash, g := range r.graceHashes {
		if now.After(g.expiresAt) {
			delete(r.graceHashes, hash)
		}
	}
}

func sendDecision(ch chan decision, d decision) {
	select {
	case ch <- d:
	default:
	}
}

func randomToken() (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", cherr.Wrap(cherr.Crypto, "generate token", err)
	}
	return hex.EncodeToString(b), nil
}

func sha256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}
