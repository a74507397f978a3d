// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package mobileapi

import (
	"crypto/ecdh"
	"crypto/rand"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/coheara/engine/internal/coherence"
	ccrypto "github.com/coheara/engine/internal/crypto"
	"github.com/coheara/engine/internal/mobileapi/ws"
	"github.com/coheara/engine/internal/mobileapi/wsticket"
	"github.com/coheara/engine/internal/pairing"
	"github.com/coheara/engine/internal/profilestore"
	"github.com/coheara/engine/internal/store"
	syncengine "github.com/coheara/engine/internal/sync"
	"github.com/coheara/engine/pkg/extensions"
)

type fakeDeviceRegistry struct {
	mu      sync.Mutex
	devices map[string]store.DeviceRegistration
}

func newFakeDeviceRegistry() *fakeDeviceRegistry {
	return &fakeDeviceRegistry{devices: make(map[string]store.DeviceRegistration)}
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
	return nil
}
func (f *fakeDeviceRegistry) GrantDeviceAccess(string, string, store.AccessLevel) error { return nil }
func (f *fakeDeviceRegistry) ListDevicesForProfile(profileID string) ([]store.DeviceRegistration, error) {
	return nil, nil
}

type fakeTokenStore struct {
	mu     sync.Mutex
	hashes map[string]string
}

func newFakeTokenStore() *fakeTokenStore { return &fakeTokenStore{hashes: make(map[string]string)} }
func (f *fakeTokenStore) Upsert(deviceID, hash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hashes[deviceID] = hash
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

func pairedDevice(t *testing.T, reg *pairing.Registry) string {
	t.Helper()
	payload, err := reg.StartPairing("https://host", "fp")
	require.NoError(t, err)

	key, err := ecdh.X25519().GenerateKey(rand.Reader)
	require.NoError(t, err)
	phonePub := key.PublicKey().Bytes()

	go func() { _, _ = reg.RequestPairing(payload.Token, phonePub, "Phone", "Model") }()
	require.Eventually(t, func() bool { return len(reg.ListPendingRequests()) == 1 }, time.Second, time.Millisecond)

	result, err := reg.ApprovePairing(payload.Token)
	require.NoError(t, err)
	return result.SessionToken
}

func openTestDB(t *testing.T) *store.DB {
	t.Helper()
	salt, err := ccrypto.NewSalt()
	require.NoError(t, err)
	key := ccrypto.DeriveKey([]byte("password"), salt)
	envelope := filepath.Join(t.TempDir(), "profile.db")
	db, err := store.Open(envelope, key)
	require.NoError(t, err)
	t.Cleanup(func() {
		db.Close(envelope)
		key.Destroy()
	})
	return db
}

func testDeps(t *testing.T) (Deps, *pairing.Registry) {
	t.Helper()
	db := openTestDB(t)
	reg := pairing.NewRegistry(newFakeDeviceRegistry(), 5, time.Minute, time.Second)
	require.NoError(t, reg.SetActiveProfile("profile-1", "Alex", newFakeTokenStore()))

	alerts := store.NewAlertRepo(db)
	docs := store.NewDocumentRepo(db)
	meds := store.NewMedicationRepo(db)
	labs := store.NewLabResultRepo(db)
	diagnoses := store.NewDiagnosisRepo(db)
	allergies := store.NewAllergyRepo(db)
	search := store.NewSearchRepo(db)
	trust := store.NewTrustRepo(db)
	symptoms := store.NewSymptomRepo(db)
	conversations := store.NewConversationRepo(db)
	chatMessages := store.NewChatMessageRepo(db)

	appDB, err := store.OpenApp(filepath.Join(t.TempDir(), "app.db"))
	require.NoError(t, err)
	t.Cleanup(func() { appDB.Close() })
	appRepo := store.NewAppRepo(appDB)

	profiles, err := profilestore.NewManager(t.TempDir())
	require.NoError(t, err)

	minter, err := wsticket.NewMinter()
	require.NoError(t, err)
	versions := syncengine.NewVersionRepo(db.DB)
	appts := store.NewAppointmentRepo(db)

	deps := Deps{
		Pairing:       reg,
		Alerts:        alerts,
		Appointments:  appts,
		Medications:   meds,
		Documents:     docs,
		Trust:         trust,
		Symptoms:      symptoms,
		Conversations: conversations,
		ChatMessages:  chatMessages,
		App:           appRepo,
		Profiles:      profiles,
		Audit:         &extensions.NopAuditLogger{},
		Checker:       coherence.NewConsistencyChecker(docs, meds, labs, diagnoses, allergies, search, trust, versions),
		Dismiss:       coherence.NewDismissalService(alerts, versions, &extensions.NopAuditLogger{}),
		Hub:           ws.NewHub(),
		TicketMn:      minter,
		Sync:          syncengine.NewEngine(versions, meds, labs, docs, alerts, appts, trust, symptoms),
		ProfileActive: func() bool { return true },
	}
	return deps, reg
}

func signedReq(method, path, body, token string) *http.Request {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("X-Request-Nonce", uuid.NewString())
	req.Header.Set("X-Request-Timestamp", strconv.FormatInt(time.Now().Unix(), 10))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestRouter_ListCriticalAlertsSucceedsWithValidAuth(t *testing.T) {
	deps, reg := testDeps(t)
	token := pairedDevice(t, reg)
	engine := NewEngine(deps)

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, signedReq(http.MethodGet, "/api/alerts/critical", "", token))
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "no-store", w.Header().Get("Cache-Control"))
}

func TestRouter_ProtectedRouteRejectsMissingAuth(t *testing.T) {
	deps, _ := testDeps(t)
	engine := NewEngine(deps)

	req := httptest.NewRequest(http.MethodGet, "/api/alerts/critical", nil)
	req.Header.Set("X-Request-Nonce", uuid.NewString())
	req.Header.Set("X-Request-Timestamp", strconv.FormatInt(time.Now().Unix(), 10))
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRouter_ProtectedRouteRejectsMissingNonce(t *testing.T) {
	deps, reg := testDeps(t)
	token := pairedDevice(t, reg)
	engine := NewEngine(deps)

	req := httptest.NewRequest(http.MethodGet, "/api/alerts/critical", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRouter_WSTicketEndpointMintsTicketForAuthedDevice(t *testing.T) {
	deps, reg := testDeps(t)
	token := pairedDevice(t, reg)
	engine := NewEngine(deps)

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, signedReq(http.MethodPost, "/api/auth/ws-ticket", "", token))
	require.Equal(t, http.StatusOK, w.Code)
}

func TestRouter_HealthCheckIsUnauthenticated(t *testing.T) {
	deps, _ := testDeps(t)
	engine := NewEngine(deps)

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"profile_active":true`)
}

func TestRouter_DoctorScanReturnsFindingsList(t *testing.T) {
	deps, reg := testDeps(t)
	token := pairedDevice(t, reg)
	engine := NewEngine(deps)

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, signedReq(http.MethodPost, "/api/doctor/scan", "", token))
	require.Equal(t, http.StatusOK, w.Code)
}

func TestRouter_ListAppointmentsSucceedsWithValidAuth(t *testing.T) {
	deps, reg := testDeps(t)
	token := pairedDevice(t, reg)
	engine := NewEngine(deps)

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, signedReq(http.MethodGet, "/api/appointments", "", token))
	require.Equal(t, http.StatusOK, w.Code)
}

func TestRouter_AppointmentPrepReturns404ForUnknownID(t *testing.T) {
	deps, reg := testDeps(t)
	token := pairedDevice(t, reg)
	engine := NewEngine(deps)

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, signedReq(http.MethodGet, "/api/appointments/nonexistent/prep", "", token))
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestRouter_SyncReturnsNoContentWhenClientIsCurrent(t *testing.T) {
	deps, reg := testDeps(t)
	token := pairedDevice(t, reg)
	engine := NewEngine(deps)

	body := `{"versions":{"medications":0,"labs":0,"timeline":0,"alerts":0,"appointments":0,"profile":0}}`
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, signedReq(http.MethodPost, "/api/sync", body, token))
	require.Equal(t, http.StatusNoContent, w.Code)
}

func TestRouter_SyncPersistsJournalEntries(t *testing.T) {
	deps, reg := testDeps(t)
	token := pairedDevice(t, reg)
	engine := NewEngine(deps)

	body := `{"versions":{},"journal_entries":[{"description":"headache"}]}`
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, signedReq(http.MethodPost, "/api/sync", body, token))
	require.Equal(t, http.StatusOK, w.Code)

	found, err := deps.Symptoms.ListJournal(nil, nil)
	require.NoError(t, err)
	require.Len(t, found, 1)
	require.Equal(t, "headache", found[0].Description)
}

func TestRouter_ChatSendStartsConversationThenAppends(t *testing.T) {
	deps, reg := testDeps(t)
	token := pairedDevice(t, reg)
	engine := NewEngine(deps)

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, signedReq(http.MethodPost, "/api/chat/send", `{"body":"hello"}`, token))
	require.Equal(t, http.StatusOK, w.Code)

	var first struct {
		ConversationID string `json:"conversation_id"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &first))
	require.NotEmpty(t, first.ConversationID)

	w2 := httptest.NewRecorder()
	body := `{"conversation_id":"` + first.ConversationID + `","body":"again"}`
	engine.ServeHTTP(w2, signedReq(http.MethodPost, "/api/chat/send", body, token))
	require.Equal(t, http.StatusOK, w2.Code)

	w3 := httptest.NewRecorder()
	engine.ServeHTTP(w3, signedReq(http.MethodGet, "/api/chat/conversations/"+first.ConversationID, "", token))
	require.Equal(t, http.StatusOK, w3.Code)
	require.Contains(t, w3.Body.String(), "again")
}

func TestRouter_HomeBundlesDashboardFeeds(t *testing.T) {
	deps, reg := testDeps(t)
	token := pairedDevice(t, reg)
	engine := NewEngine(deps)

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, signedReq(http.MethodGet, "/api/home", "", token))
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "alerts")
	require.Contains(t, w.Body.String(), "medications")
}

func TestRouter_JournalRecordThenHistory(t *testing.T) {
	deps, reg := testDeps(t)
	token := pairedDevice(t, reg)
	engine := NewEngine(deps)

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, signedReq(http.MethodPost, "/api/journal/record", `{"description":"fatigue"}`, token))
	require.Equal(t, http.StatusOK, w.Code)

	w2 := httptest.NewRecorder()
	engine.ServeHTTP(w2, signedReq(http.MethodGet, "/api/journal/history", "", token))
	require.Equal(t, http.StatusOK, w2.Code)
	require.Contains(t, w2.Body.String(), "fatigue")
}

func TestRouter_MedicationsListAndDetail(t *testing.T) {
	deps, reg := testDeps(t)
	token := pairedDevice(t, reg)
	engine := NewEngine(deps)

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, signedReq(http.MethodGet, "/api/medications", "", token))
	require.Equal(t, http.StatusOK, w.Code)

	w2 := httptest.NewRecorder()
	engine.ServeHTTP(w2, signedReq(http.MethodGet, "/api/medications/nonexistent", "", token))
	require.Equal(t, http.StatusNotFound, w2.Code)
}

func TestRouter_TimelineRecentSucceeds(t *testing.T) {
	deps, reg := testDeps(t)
	token := pairedDevice(t, reg)
	engine := NewEngine(deps)

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, signedReq(http.MethodGet, "/api/timeline/recent", "", token))
	require.Equal(t, http.StatusOK, w.Code)
}

func TestRouter_AccessibleProfilesSucceeds(t *testing.T) {
	deps, reg := testDeps(t)
	token := pairedDevice(t, reg)
	engine := NewEngine(deps)

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, signedReq(http.MethodGet, "/api/profiles/accessible", "", token))
	require.Equal(t, http.StatusOK, w.Code)
}

func TestRouter_SyncResetSucceeds(t *testing.T) {
	deps, reg := testDeps(t)
	token := pairedDevice(t, reg)
	engine := NewEngine(deps)

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, signedReq(http.MethodPost, "/api/sync/reset", "", token))
	require.Equal(t, http.StatusNoContent, w.Code)
}
