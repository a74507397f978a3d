// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package coherence

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	ccrypto "github.com/coheara/engine/internal/crypto"
	"github.com/coheara/engine/internal/store"
	"github.com/coheara/engine/pkg/extensions"
)

func testKey(t *testing.T) *ccrypto.Key {
	t.Helper()
	salt, err := ccrypto.NewSalt()
	require.NoError(t, err)
	return ccrypto.DeriveKey([]byte("profile-password"), salt)
}

func openTestDB(t *testing.T) *store.DB {
	t.Helper()
	envelope := filepath.Join(t.TempDir(), "profile.db")
	key := testKey(t)
	db, err := store.Open(envelope, key)
	require.NoError(t, err)
	t.Cleanup(func() {
		db.Close(envelope)
		key.Destroy()
	})
	return db
}

func newTestAlert(t *testing.T, repo *store.AlertRepo, severity string) string {
	t.Helper()
	id := uuid.NewString()
	require.NoError(t, repo.Create(store.CoherenceAlert{
		ID:        id,
		Category:  "critical_lab",
		Severity:  severity,
		Detail:    "Potassium is critically high: 7.20 mmol/L",
		CreatedAt: time.Now().UTC(),
	}))
	return id
}

func TestDismissalService_AskConfirmationSucceedsForCriticalAlert(t *testing.T) {
	db := openTestDB(t)
	alerts := store.NewAlertRepo(db)
	id := newTestAlert(t, alerts, string(SeverityCritical))

	svc := NewDismissalService(alerts, nil, &extensions.NopAuditLogger{})
	alert, err := svc.AskConfirmation(id)

	require.NoError(t, err)
	require.Equal(t, id, alert.ID)
}

func TestDismissalService_AskConfirmationRejectsNonCriticalAlert(t *testing.T) {
	db := openTestDB(t)
	alerts := store.NewAlertRepo(db)
	id := newTestAlert(t, alerts, "low")

	svc := NewDismissalService(alerts, nil, &extensions.NopAuditLogger{})
	_, err := svc.AskConfirmation(id)

	require.Error(t, err)
}

func TestDismissalService_ConfirmDismissalRequiresReason(t *testing.T) {
	db := openTestDB(t)
	alerts := store.NewAlertRepo(db)
	id := newTestAlert(t, alerts, string(SeverityCritical))

	svc := NewDismissalService(alerts, nil, &extensions.NopAuditLogger{})
	err := svc.ConfirmDismissal(context.Background(), id, "", "patient")

	require.Error(t, err)

	dismissed, dErr := alerts.IsDismissed(id)
	require.NoError(t, dErr)
	require.False(t, dismissed)
}

func TestDismissalService_ConfirmDismissalWritesDismissalRow(t *testing.T) {
	db := openTestDB(t)
	alerts := store.NewAlertRepo(db)
	id := newTestAlert(t, alerts, string(SeverityCritical))

	svc := NewDismissalService(alerts, nil, &extensions.NopAuditLogger{})
	err := svc.ConfirmDismissal(context.Background(), id, "confirmed with physician", "patient")

	require.NoError(t, err)
	dismissed, dErr := alerts.IsDismissed(id)
	require.NoError(t, dErr)
	require.True(t, dismissed)
}

func TestDismissalService_ConfirmDismissalRejectsAlreadyDismissedAlert(t *testing.T) {
	db := openTestDB(t)
	alerts := store.NewAlertRepo(db)
	id := newTestAlert(t, alerts, string(SeverityCritical))

	svc := NewDismissalService(alerts, nil, &extensions.NopAuditLogger{})
	require.NoError(t, svc.ConfirmDismissal(context.Background(), id, "first dismissal", "patient"))

	err := svc.ConfirmDismissal(context.Background(), id, "second attempt", "patient")
	require.Error(t, err)
}

func TestDismissalService_DismissSucceedsForStandardAlertWithReason(t *testing.T) {
	db := openTestDB(t)
	alerts := store.NewAlertRepo(db)
	id := newTestAlert(t, alerts, "low")

	svc := NewDismissalService(alerts, nil, &extensions.NopAuditLogger{})
	err := svc.Dismiss(context.Background(), id, KindDuplicate, "already reviewed", "patient")

	require.NoError(t, err)
	dismissed, dErr := alerts.IsDismissed(id)
	require.NoError(t, dErr)
	require.True(t, dismissed)
}

func TestDismissalService_DismissRejectsEmptyReason(t *testing.T) {
	db := openTestDB(t)
	alerts := store.NewAlertRepo(db)
	id := newTestAlert(t, alerts, "low")

	svc := NewDismissalService(alerts, nil, &extensions.NopAuditLogger{})
	err := svc.Dismiss(context.Background(), id, KindDuplicate, "", "patient")

	require.Error(t, err)
}

func TestDismissalService_DismissRejectsCriticalAlert(t *testing.T) {
	db := openTestDB(t)
	alerts := store.NewAlertRepo(db)
	id := newTestAlert(t, alerts, string(SeverityCritical))

	svc := NewDismissalService(alerts, nil, &extensions.NopAuditLogger{})
	err := svc.Dismiss(context.Background(), id, KindCritical, "trying to skip the state machine", "patient")

	require.Error(t, err)
}
